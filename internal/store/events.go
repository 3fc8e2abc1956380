package store

import (
	"sync"

	"github.com/KingRain/octrix/internal/models"
)

// EventLog is a bounded ring buffer of healing events. Once written an event
// is immutable; when the buffer is full the oldest entry is dropped.
type EventLog struct {
	mu     sync.RWMutex
	events []models.HealingEvent
	max    int
}

// NewEventLog creates a log retaining up to max events.
func NewEventLog(max int) *EventLog {
	if max <= 0 {
		max = 1000
	}
	return &EventLog{max: max}
}

// Append records one healing event, evicting the oldest when full.
func (l *EventLog) Append(event models.HealingEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, event)
	if len(l.events) > l.max {
		copy(l.events[0:], l.events[1:])
		l.events = l.events[:l.max]
	}
}

// List returns all retained events, newest first.
func (l *EventLog) List() []models.HealingEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.HealingEvent, len(l.events))
	for i, event := range l.events {
		out[len(l.events)-1-i] = event
	}
	return out
}

// ForIncident returns the retained events for one incident in append order.
func (l *EventLog) ForIncident(incidentID string) []models.HealingEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.HealingEvent
	for _, event := range l.events {
		if event.IncidentID == incidentID {
			out = append(out, event)
		}
	}
	return out
}

// Clear discards all retained events.
func (l *EventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// Len returns the number of retained events.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
