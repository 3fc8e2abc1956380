package models

import "time"

// EventStatus labels the outcome stored on a healing event.
type EventStatus string

const (
	EventSuccess    EventStatus = "success"
	EventFailed     EventStatus = "failed"
	EventInProgress EventStatus = "in-progress"
)

// HealingEvent is an append-only record of one remediation attempt. Events are
// immutable once written and retained in a bounded ring buffer.
type HealingEvent struct {
	ID         string        `json:"id"`
	RuleID     string        `json:"ruleId"`
	RuleName   string        `json:"ruleName"`
	IncidentID string        `json:"incidentId"`
	Status     EventStatus   `json:"status"`
	Resource   ResourceRef   `json:"resource"`
	Action     ActionType    `json:"action"`
	Detail     string        `json:"detail"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

// EscalationRecord captures a hand-off to a human operator. Created exactly
// once per incident escalation; acknowledgment mutates it, nothing deletes it.
type EscalationRecord struct {
	ID             string     `json:"id"`
	IncidentID     string     `json:"incidentId"`
	Reason         string     `json:"reason"`
	Timestamp      time.Time  `json:"timestamp"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
}

// Alert is the low-detail notification emitted when an incident is raised.
// Delivery is an external concern; the orchestrator only hands alerts to a
// sink.
type Alert struct {
	ID         string      `json:"id"`
	IncidentID string      `json:"incidentId"`
	Category   Category    `json:"category"`
	Severity   Severity    `json:"severity"`
	Resource   ResourceRef `json:"resource"`
	Message    string      `json:"message"`
	Timestamp  time.Time   `json:"timestamp"`
}
