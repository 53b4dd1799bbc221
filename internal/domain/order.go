package domain

import (
	"slices"
	"time"
)

// Schedule is when the lab session using an order takes place.
type Schedule struct {
	Date     time.Time `json:"date"`
	StartsAt time.Time `json:"starts_at"`
}

// Order is a request for consumables for one lab session.
type Order struct {
	ID          string     `json:"id"`
	RequesterID string     `json:"requester_id"`
	CourseID    string     `json:"course_id,omitempty"`
	Schedule    Schedule   `json:"schedule"`
	GroupCount  int        `json:"group_count"`
	State       OrderState `json:"state"`
	Reason      string     `json:"reason,omitempty"`
	LineItems   []LineItem `json:"line_items"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// LineItem requests QuantityPerGroup of one consumable type for every group.
type LineItem struct {
	ID               string        `json:"id"`
	ConsumableTypeID string        `json:"consumable_type_id"`
	IsChemical       bool          `json:"is_chemical"`
	QuantityPerGroup int           `json:"quantity_per_group"`
	State            LineItemState `json:"state"`

	// ReservedUnitIDs are the exact units this line holds, ascending.
	ReservedUnitIDs []string `json:"reserved_unit_ids,omitempty"`
}

// TotalQuantity is the quantity the line needs across all groups.
func (l LineItem) TotalQuantity(groupCount int) int {
	return l.QuantityPerGroup * groupCount
}

// Expired reports whether an approved order's session already started.
func (o Order) Expired(now time.Time) bool {
	return o.State == OrderApproved && o.Schedule.StartsAt.Before(now)
}

// ConsumableTypeIDs returns the distinct type IDs of the order, ascending.
func (o Order) ConsumableTypeIDs() []string {
	ids := make([]string, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		ids = append(ids, li.ConsumableTypeID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Clone returns a deep copy.
func (o Order) Clone() Order {
	c := o
	c.LineItems = make([]LineItem, len(o.LineItems))
	for i, li := range o.LineItems {
		li.ReservedUnitIDs = slices.Clone(li.ReservedUnitIDs)
		c.LineItems[i] = li
	}
	return c
}
