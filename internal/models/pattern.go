package models

import "time"

// RecurringPattern aggregates terminal incidents that keep coming back for
// the same resource and category.
type RecurringPattern struct {
	ID             string      `json:"id"`
	Resource       ResourceRef `json:"resource"`
	Category       Category    `json:"category"`
	Occurrences    int         `json:"occurrences"`
	Prevalence     float64     `json:"prevalence"`
	AutoHealedPct  float64     `json:"autoHealedPct"`
	LastSeen       time.Time   `json:"lastSeen"`
	DominantDriver Driver      `json:"dominantDriver,omitempty"`
}
