package domain

import (
	"slices"
	"time"
)

// Delivery is the share of an order handed to one student group.
type Delivery struct {
	ID          string        `json:"id"`
	OrderID     string        `json:"order_id"`
	GroupNumber int           `json:"group_number"`
	Schedule    Schedule      `json:"schedule"`
	RecipientID string        `json:"recipient_id,omitempty"`
	State       DeliveryState `json:"state"`

	UnitIDs         []string      `json:"unit_ids"`
	ReturnedUnitIDs []string      `json:"returned_unit_ids,omitempty"`
	Chemicals       []ChemicalRef `json:"chemicals,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChemicalRef points a delivery at the batches of a chemical line. Chemicals
// are shared by every group of the order, not partitioned.
type ChemicalRef struct {
	ConsumableTypeID string   `json:"consumable_type_id"`
	QuantityPerGroup int      `json:"quantity_per_group"`
	BatchIDs         []string `json:"batch_ids"`
}

// Assigned reports whether a recipient is set.
func (d Delivery) Assigned() bool { return d.RecipientID != "" }

// Outstanding reports whether unitID was delivered and not yet returned.
func (d Delivery) Outstanding(unitID string) bool {
	return slices.Contains(d.UnitIDs, unitID) && !slices.Contains(d.ReturnedUnitIDs, unitID)
}

// FullyReturned reports whether every delivered unit came back.
func (d Delivery) FullyReturned() bool {
	for _, id := range d.UnitIDs {
		if !slices.Contains(d.ReturnedUnitIDs, id) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (d Delivery) Clone() Delivery {
	c := d
	c.UnitIDs = slices.Clone(d.UnitIDs)
	c.ReturnedUnitIDs = slices.Clone(d.ReturnedUnitIDs)
	c.Chemicals = make([]ChemicalRef, len(d.Chemicals))
	for i, ref := range d.Chemicals {
		ref.BatchIDs = slices.Clone(ref.BatchIDs)
		c.Chemicals[i] = ref
	}
	return c
}
