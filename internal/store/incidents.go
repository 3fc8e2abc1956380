package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KingRain/octrix/internal/models"
)

// ErrNotFound signals a lookup for an id the store does not hold.
var ErrNotFound = fmt.Errorf("not found")

// IncidentStore is the mutex-guarded in-memory incident repository. Incidents
// live for the process lifetime; nothing is ever deleted.
type IncidentStore struct {
	mu        sync.RWMutex
	incidents map[string]*models.Incident
	order     []string
	now       func() time.Time
}

// NewIncidentStore creates an empty store.
func NewIncidentStore() *IncidentStore {
	return &IncidentStore{
		incidents: make(map[string]*models.Incident),
		now:       time.Now,
	}
}

// Create inserts a new incident. The stored copy is detached from the caller's.
func (s *IncidentStore) Create(inc models.Incident) models.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = s.now()
	}
	inc.UpdatedAt = inc.CreatedAt
	stored := inc
	s.incidents[inc.ID] = &stored
	s.order = append(s.order, inc.ID)
	return stored
}

// Get returns a copy of the incident with the given id.
func (s *IncidentStore) Get(id string) (models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inc, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	return *inc, nil
}

// List returns incidents, newest first, optionally filtered by status.
func (s *IncidentStore) List(status models.Status) []models.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Incident, 0, len(s.order))
	for _, id := range s.order {
		inc := s.incidents[id]
		if status != "" && inc.Status != status {
			continue
		}
		out = append(out, *inc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Open returns all incidents currently in the open state.
func (s *IncidentStore) Open() []models.Incident {
	return s.List(models.StatusOpen)
}

// Transition advances an incident along the state machine, applying mutate to
// the stored record while the lock is held. It fails when the transition is
// not legal from the current state, which keeps resolved/escalated terminal.
func (s *IncidentStore) Transition(id string, next models.Status, mutate func(*models.Incident)) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	if !inc.Status.CanTransition(next) {
		return models.Incident{}, fmt.Errorf("incident %s: illegal transition %s -> %s", id, inc.Status, next)
	}

	inc.Status = next
	inc.UpdatedAt = s.now()
	switch next {
	case models.StatusResolved:
		at := inc.UpdatedAt
		inc.ResolvedAt = &at
	case models.StatusEscalated:
		at := inc.UpdatedAt
		inc.Escalated = true
		inc.EscalatedAt = &at
	}
	if mutate != nil {
		mutate(inc)
	}
	return *inc, nil
}

// Update applies mutate to the stored incident without a status change.
func (s *IncidentStore) Update(id string, mutate func(*models.Incident)) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	if mutate != nil {
		mutate(inc)
		inc.UpdatedAt = s.now()
	}
	return *inc, nil
}

// Stats summarises the store for the stats endpoint.
func (s *IncidentStore) Stats() models.IncidentStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.IncidentStats{
		ByStatus:   make(map[models.Status]int),
		BySeverity: make(map[models.Severity]int),
	}
	cutoff := s.now().Add(-24 * time.Hour)
	for _, inc := range s.incidents {
		stats.Total++
		stats.ByStatus[inc.Status]++
		stats.BySeverity[inc.Severity]++
		if inc.CreatedAt.After(cutoff) {
			stats.Last24hCreated++
		}
		if inc.ResolvedAt != nil && inc.ResolvedAt.After(cutoff) {
			stats.Last24hResolved++
		}
		if inc.AutoHealAttempted {
			switch inc.AutoHealResult {
			case models.AutoHealSuccess:
				stats.AutoHealSuccess++
			case models.AutoHealFailed:
				stats.AutoHealFailed++
			}
		}
	}
	return stats
}

// SetClock overrides the time source for tests.
func (s *IncidentStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}
