package domain

import (
	"slices"
	"time"
)

// Experiment is a reusable order template: the consumables one group needs
// to run a lab practice.
type Experiment struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Lines     []ExperimentLine `json:"lines"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ExperimentLine is the quantity of one consumable type a single group uses.
type ExperimentLine struct {
	ConsumableTypeID string `json:"consumable_type_id"`
	QuantityPerGroup int    `json:"quantity_per_group"`
}

// Clone returns a deep copy.
func (e Experiment) Clone() Experiment {
	c := e
	c.Lines = slices.Clone(e.Lines)
	return c
}
