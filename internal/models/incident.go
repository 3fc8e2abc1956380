package models

import (
	"fmt"
	"time"
)

// Category enumerates the incident classes the orchestrator understands.
type Category string

const (
	CategoryPodCrash            Category = "pod-crash"
	CategoryHighCPU             Category = "high-cpu"
	CategoryHighMemory          Category = "high-memory"
	CategoryOOMKilled           Category = "oom-killed"
	CategoryNodePressure        Category = "node-pressure"
	CategoryNodeNotReady        Category = "node-not-ready"
	CategoryPersistentRestarts  Category = "persistent-restarts"
	CategoryCrashLoop           Category = "crash-loop"
	CategoryImagePullError      Category = "image-pull-error"
	CategoryBuggyDeployment     Category = "buggy-deployment"
	CategoryConfigMapError      Category = "configmap-error"
	CategoryDBFailure           Category = "db-failure"
	CategoryMultiServiceFailure Category = "multi-service-failure"
	CategoryUnknownCrash        Category = "unknown-crash"
)

// ParseCategory validates a raw category string.
func ParseCategory(raw string) (Category, error) {
	switch Category(raw) {
	case CategoryPodCrash, CategoryHighCPU, CategoryHighMemory, CategoryOOMKilled,
		CategoryNodePressure, CategoryNodeNotReady, CategoryPersistentRestarts,
		CategoryCrashLoop, CategoryImagePullError, CategoryBuggyDeployment,
		CategoryConfigMapError, CategoryDBFailure, CategoryMultiServiceFailure,
		CategoryUnknownCrash:
		return Category(raw), nil
	default:
		return "", fmt.Errorf("unknown category %q", raw)
	}
}

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status tracks an incident through its lifecycle. Resolved and escalated are
// terminal; a fresh detection after cooldown expiry creates a new incident.
type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusHealing      Status = "healing"
	StatusResolved     Status = "resolved"
	StatusEscalated    Status = "escalated"
)

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusOpen, StatusAcknowledged, StatusHealing, StatusResolved, StatusEscalated:
		return Status(raw), nil
	default:
		return "", fmt.Errorf("unknown status %q", raw)
	}
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusEscalated
}

// CanTransition reports whether moving from s to next is legal. Transitions
// are monotonic: open → acknowledged|healing → resolved|escalated.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusOpen:
		return next == StatusAcknowledged || next == StatusHealing ||
			next == StatusResolved || next == StatusEscalated
	case StatusAcknowledged:
		return next == StatusHealing || next == StatusResolved || next == StatusEscalated
	case StatusHealing:
		return next == StatusResolved || next == StatusEscalated
	default:
		return false
	}
}

// AutoHealResult records the outcome of the most recent automated attempt.
type AutoHealResult string

const (
	AutoHealPending AutoHealResult = "pending"
	AutoHealSuccess AutoHealResult = "success"
	AutoHealFailed  AutoHealResult = "failed"
)

// ResourceRef identifies the fleet object an incident is bound to.
type ResourceRef struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Namespace string `json:"namespace"`
}

// Key returns the cooldown/deduplication identity for a resource+category pair.
func (r ResourceRef) Key(category Category) string {
	return r.Namespace + "/" + r.Name + ":" + string(category)
}

// Incident is a detected abnormal condition tied to one resource and one
// category, tracked through the lifecycle state machine.
type Incident struct {
	ID       string      `json:"id"`
	Category Category    `json:"category"`
	Severity Severity    `json:"severity"`
	Status   Status      `json:"status"`
	Resource ResourceRef `json:"resource"`
	Summary  string      `json:"summary"`

	// Metrics holds the named numeric values captured at detection time.
	Metrics map[string]float64 `json:"metrics,omitempty"`

	AutoHealAttempted bool           `json:"autoHealAttempted"`
	AutoHealResult    AutoHealResult `json:"autoHealResult,omitempty"`

	Escalated   bool       `json:"escalated"`
	EscalatedAt *time.Time `json:"escalatedAt,omitempty"`

	Classification *Classification `json:"classification,omitempty"`

	RelatedAlerts []string `json:"relatedAlerts,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// SeverityForCategory is the authoritative category → severity table used for
// injected incidents and rule seeding. Threshold-derived incidents take the
// severity of the crossed threshold instead.
func SeverityForCategory(category Category) Severity {
	switch category {
	case CategoryCrashLoop, CategoryOOMKilled, CategoryNodeNotReady,
		CategoryBuggyDeployment, CategoryDBFailure, CategoryMultiServiceFailure:
		return SeverityCritical
	case CategoryPodCrash, CategoryPersistentRestarts, CategoryNodePressure,
		CategoryConfigMapError, CategoryImagePullError:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// FreezesAutomation reports whether an escalation of this category halts all
// automated healing until an operator unfreezes it.
func FreezesAutomation(category Category) bool {
	switch category {
	case CategoryBuggyDeployment, CategoryConfigMapError,
		CategoryDBFailure, CategoryMultiServiceFailure:
		return true
	default:
		return false
	}
}
