package domain

import (
	"slices"
	"time"
)

// Return is a student's hand-back of a delivery, inspected line by line.
type Return struct {
	ID          string           `json:"id"`
	DeliveryID  string           `json:"delivery_id"`
	OrderID     string           `json:"order_id"`
	RecipientID string           `json:"recipient_id"`
	State       ReturnState      `json:"state"`
	Reason      string           `json:"reason,omitempty"`
	LineItems   []ReturnLineItem `json:"line_items"`
	CreatedAt   time.Time        `json:"created_at"`
	DecidedAt   *time.Time       `json:"decided_at,omitempty"`
}

// ReturnLineItem is the provisional classification of one returned unit.
type ReturnLineItem struct {
	UnitID    string    `json:"unit_id"`
	Condition Condition `json:"condition"`
	Notes     string    `json:"notes,omitempty"`
}

// Line returns the line item for unitID.
func (r Return) Line(unitID string) (ReturnLineItem, bool) {
	i := slices.IndexFunc(r.LineItems, func(li ReturnLineItem) bool { return li.UnitID == unitID })
	if i < 0 {
		return ReturnLineItem{}, false
	}
	return r.LineItems[i], true
}

// PutLine inserts or replaces the line item for li.UnitID.
func (r *Return) PutLine(li ReturnLineItem) {
	i := slices.IndexFunc(r.LineItems, func(x ReturnLineItem) bool { return x.UnitID == li.UnitID })
	if i < 0 {
		r.LineItems = append(r.LineItems, li)
		return
	}
	r.LineItems[i] = li
}

// Unreviewed counts lines still NOT_REVIEWED.
func (r Return) Unreviewed() int {
	n := 0
	for _, li := range r.LineItems {
		if li.Condition == ConditionNotReviewed {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (r Return) Clone() Return {
	c := r
	c.LineItems = slices.Clone(r.LineItems)
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		c.DecidedAt = &t
	}
	return c
}
