package domain

import "slices"

// transitions maps a state to the states it may move to. Each lifecycle enum
// owns exactly one table and every mutation goes through CanTransitionTo.
type transitions[S comparable] map[S][]S

func (t transitions[S]) allows(from, to S) bool {
	return slices.Contains(t[from], to)
}

// UnitState is the physical state of a discrete supply unit.
type UnitState string

const (
	UnitAvailable UnitState = "AVAILABLE"
	UnitReserved  UnitState = "RESERVED"
	UnitInUse     UnitState = "IN_USE"
	UnitDamaged   UnitState = "DAMAGED"
	UnitLost      UnitState = "LOST"
)

// UnitStates lists every unit state in display order.
var UnitStates = []UnitState{UnitAvailable, UnitReserved, UnitInUse, UnitDamaged, UnitLost}

var unitTransitions = transitions[UnitState]{
	UnitAvailable: {UnitReserved},
	UnitReserved:  {UnitAvailable, UnitInUse},
	UnitInUse:     {UnitAvailable, UnitDamaged, UnitLost},
}

func (s UnitState) String() string { return string(s) }

// CanTransitionTo reports whether a unit may move from s to next.
func (s UnitState) CanTransitionTo(next UnitState) bool { return unitTransitions.allows(s, next) }

// OrderState is the lifecycle state of an order.
type OrderState string

const (
	OrderCreated       OrderState = "CREATED"
	OrderApproved      OrderState = "APPROVED"
	OrderInPreparation OrderState = "IN_PREPARATION"
	OrderRejected      OrderState = "REJECTED"
	OrderDelivered     OrderState = "DELIVERED"
	OrderCancelled     OrderState = "CANCELLED"
)

// OrderStates lists every order state.
var OrderStates = []OrderState{OrderCreated, OrderApproved, OrderInPreparation, OrderRejected, OrderDelivered, OrderCancelled}

var orderTransitions = transitions[OrderState]{
	OrderCreated:       {OrderApproved, OrderRejected, OrderCancelled},
	OrderApproved:      {OrderInPreparation, OrderDelivered, OrderRejected, OrderCancelled},
	OrderInPreparation: {OrderDelivered, OrderCancelled},
}

func (s OrderState) String() string { return string(s) }

// CanTransitionTo reports whether an order may move from s to next.
func (s OrderState) CanTransitionTo(next OrderState) bool { return orderTransitions.allows(s, next) }

// Terminal reports whether no further transition is possible.
func (s OrderState) Terminal() bool { return len(orderTransitions[s]) == 0 }

// LineItemState is the lifecycle state of an order line item.
type LineItemState string

const (
	LineCreated   LineItemState = "CREATED"
	LineReserved  LineItemState = "RESERVED"
	LineDelivered LineItemState = "DELIVERED"
	LineCancelled LineItemState = "CANCELLED"
)

// LineItemStates lists every line item state.
var LineItemStates = []LineItemState{LineCreated, LineReserved, LineDelivered, LineCancelled}

var lineTransitions = transitions[LineItemState]{
	LineCreated:  {LineReserved, LineCancelled},
	LineReserved: {LineDelivered, LineCancelled},
}

func (s LineItemState) String() string { return string(s) }

// CanTransitionTo reports whether a line item may move from s to next.
func (s LineItemState) CanTransitionTo(next LineItemState) bool {
	return lineTransitions.allows(s, next)
}

// DeliveryState tracks whether a delivery still holds units.
type DeliveryState string

const (
	// DeliveryOpen holds in-use units and accepts a new return.
	DeliveryOpen DeliveryState = "OPEN"
	// DeliveryReturning has a pending return under inspection.
	DeliveryReturning DeliveryState = "RETURNING"
	// DeliveryClosed has every delivered unit returned.
	DeliveryClosed DeliveryState = "CLOSED"
)

// DeliveryStates lists every delivery state.
var DeliveryStates = []DeliveryState{DeliveryOpen, DeliveryReturning, DeliveryClosed}

var deliveryTransitions = transitions[DeliveryState]{
	DeliveryOpen:      {DeliveryReturning},
	DeliveryReturning: {DeliveryOpen, DeliveryClosed},
}

func (s DeliveryState) String() string { return string(s) }

// CanTransitionTo reports whether a delivery may move from s to next.
func (s DeliveryState) CanTransitionTo(next DeliveryState) bool {
	return deliveryTransitions.allows(s, next)
}

// ReturnState is the lifecycle state of a return.
type ReturnState string

const (
	ReturnPending  ReturnState = "PENDING"
	ReturnApproved ReturnState = "APPROVED"
	ReturnRejected ReturnState = "REJECTED"
)

// ReturnStates lists every return state.
var ReturnStates = []ReturnState{ReturnPending, ReturnApproved, ReturnRejected}

var returnTransitions = transitions[ReturnState]{
	ReturnPending: {ReturnApproved, ReturnRejected},
}

func (s ReturnState) String() string { return string(s) }

// CanTransitionTo reports whether a return may move from s to next.
func (s ReturnState) CanTransitionTo(next ReturnState) bool {
	return returnTransitions.allows(s, next)
}

// Condition is the inspection verdict for one returned unit.
type Condition string

const (
	ConditionNotReviewed Condition = "NOT_REVIEWED"
	ConditionOK          Condition = "OK"
	ConditionDamaged     Condition = "DAMAGED"
	ConditionMissing     Condition = "MISSING"
)

// Conditions lists every condition.
var Conditions = []Condition{ConditionNotReviewed, ConditionOK, ConditionDamaged, ConditionMissing}

func (c Condition) String() string { return string(c) }

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool { return slices.Contains(Conditions, c) }

// RaisesIncident reports whether recording c opens an incident.
func (c Condition) RaisesIncident() bool {
	return c == ConditionDamaged || c == ConditionMissing
}

// ResultingUnitState is the unit state committed when a return is approved.
func (c Condition) ResultingUnitState() (UnitState, bool) {
	switch c {
	case ConditionOK:
		return UnitAvailable, true
	case ConditionDamaged:
		return UnitDamaged, true
	case ConditionMissing:
		return UnitLost, true
	default:
		return "", false
	}
}

// IncidentState is the lifecycle state of an incident.
type IncidentState string

const (
	IncidentReported  IncidentState = "REPORTED"
	IncidentInReview  IncidentState = "IN_REVIEW"
	IncidentResolved  IncidentState = "RESOLVED"
	IncidentCancelled IncidentState = "CANCELLED"
)

// IncidentStates lists every incident state.
var IncidentStates = []IncidentState{IncidentReported, IncidentInReview, IncidentResolved, IncidentCancelled}

var incidentTransitions = transitions[IncidentState]{
	IncidentReported: {IncidentInReview, IncidentCancelled},
	IncidentInReview: {IncidentResolved, IncidentCancelled},
}

func (s IncidentState) String() string { return string(s) }

// CanTransitionTo reports whether an incident may move from s to next.
func (s IncidentState) CanTransitionTo(next IncidentState) bool {
	return incidentTransitions.allows(s, next)
}

// Valid reports whether s is a known incident state.
func (s IncidentState) Valid() bool { return slices.Contains(IncidentStates, s) }

// Terminal reports whether the incident is immutable.
func (s IncidentState) Terminal() bool { return len(incidentTransitions[s]) == 0 }
