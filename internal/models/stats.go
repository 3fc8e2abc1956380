package models

// IncidentStats summarises the incident store for the stats endpoint.
type IncidentStats struct {
	Total           int              `json:"total"`
	ByStatus        map[Status]int   `json:"byStatus"`
	BySeverity      map[Severity]int `json:"bySeverity"`
	Last24hCreated  int              `json:"last24hCreated"`
	Last24hResolved int              `json:"last24hResolved"`
	AutoHealSuccess int              `json:"autoHealSuccess"`
	AutoHealFailed  int              `json:"autoHealFailed"`
}
