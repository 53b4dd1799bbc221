package domain

import "time"

// Incident records a problem with returned material.
type Incident struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	ReturnID    string        `json:"return_id,omitempty"`
	UnitID      string        `json:"unit_id,omitempty"`
	RecipientID string        `json:"recipient_id,omitempty"`
	State       IncidentState `json:"state"`
	ReportedAt  time.Time     `json:"reported_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// Clone returns a deep copy.
func (i Incident) Clone() Incident {
	c := i
	if i.ResolvedAt != nil {
		t := *i.ResolvedAt
		c.ResolvedAt = &t
	}
	return c
}
