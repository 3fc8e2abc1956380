// Package escalation hands incidents to humans and owns the global
// automation-freeze switch.
package escalation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KingRain/octrix/internal/metrics"
	"github.com/KingRain/octrix/internal/models"
)

// Sink receives escalation records for external delivery.
type Sink interface {
	NotifyEscalation(record models.EscalationRecord)
}

// Manager records escalations and enforces the automation freeze. Certain
// categories are too risky to auto-remediate: escalating one of them halts
// all automated healing cluster-wide until an operator unfreezes it.
type Manager struct {
	logger *slog.Logger
	sink   Sink

	mu       sync.RWMutex
	records  []models.EscalationRecord
	byID     map[string]int
	frozen   bool
	frozenBy string // incident id that tripped the freeze
	frozenAt time.Time
}

// AutomationStatus is the freeze state exposed through the API.
type AutomationStatus struct {
	Frozen     bool       `json:"frozen"`
	FrozenBy   string     `json:"frozenBy,omitempty"`
	FrozenAt   *time.Time `json:"frozenAt,omitempty"`
	Escalations int       `json:"escalations"`
}

// NewManager constructs a Manager. sink may be nil.
func NewManager(logger *slog.Logger, sink Sink) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger,
		sink:   sink,
		byID:   make(map[string]int),
	}
}

// Escalate records a hand-off for the incident and, for freeze-forcing
// categories, halts automation globally. Exactly one record is created per
// incident; a repeat call for the same incident returns the existing record.
func (m *Manager) Escalate(inc models.Incident, reason string) models.EscalationRecord {
	m.mu.Lock()
	if idx, ok := m.indexForIncident(inc.ID); ok {
		record := m.records[idx]
		m.mu.Unlock()
		return record
	}

	record := models.EscalationRecord{
		ID:         uuid.New().String(),
		IncidentID: inc.ID,
		Reason:     reason,
		Timestamp:  time.Now(),
	}
	m.records = append(m.records, record)
	m.byID[record.ID] = len(m.records) - 1

	froze := false
	if models.FreezesAutomation(inc.Category) && !m.frozen {
		m.frozen = true
		m.frozenBy = inc.ID
		m.frozenAt = record.Timestamp
		froze = true
	}
	m.mu.Unlock()

	metrics.ObserveEscalation(string(inc.Category))
	if froze {
		metrics.SetAutomationFrozen(true)
		m.logger.Warn("automation frozen",
			slog.String("incident_id", inc.ID),
			slog.String("category", string(inc.Category)),
		)
	}
	m.logger.Info("incident escalated",
		slog.String("incident_id", inc.ID),
		slog.String("reason", reason),
	)
	if m.sink != nil {
		m.sink.NotifyEscalation(record)
	}
	return record
}

// Frozen reports whether automated healing is currently halted.
func (m *Manager) Frozen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frozen
}

// Unfreeze lifts the automation freeze. It returns false when automation was
// not frozen; by must identify the acknowledging operator.
func (m *Manager) Unfreeze(by string) bool {
	if by == "" {
		return false
	}
	m.mu.Lock()
	if !m.frozen {
		m.mu.Unlock()
		return false
	}
	m.frozen = false
	m.frozenBy = ""
	m.frozenAt = time.Time{}
	m.mu.Unlock()

	metrics.SetAutomationFrozen(false)
	m.logger.Info("automation unfrozen", slog.String("by", by))
	return true
}

// Acknowledge marks the escalation record for an incident as acknowledged.
// It does not unfreeze automation.
func (m *Manager) Acknowledge(incidentID, by string) (models.EscalationRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.indexForIncident(incidentID)
	if !ok {
		return models.EscalationRecord{}, false
	}
	record := &m.records[idx]
	if !record.Acknowledged {
		now := time.Now()
		record.Acknowledged = true
		record.AcknowledgedBy = by
		record.AcknowledgedAt = &now
	}
	return *record, true
}

// Records returns all escalation records, oldest first.
func (m *Manager) Records() []models.EscalationRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.EscalationRecord(nil), m.records...)
}

// Status summarises the freeze state.
func (m *Manager) Status() AutomationStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := AutomationStatus{
		Frozen:      m.frozen,
		FrozenBy:    m.frozenBy,
		Escalations: len(m.records),
	}
	if m.frozen {
		at := m.frozenAt
		status.FrozenAt = &at
	}
	return status
}

// indexForIncident must be called with the lock held.
func (m *Manager) indexForIncident(incidentID string) (int, bool) {
	for i, record := range m.records {
		if record.IncidentID == incidentID {
			return i, true
		}
	}
	return 0, false
}
