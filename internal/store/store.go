// Package store defines the transactional persistence boundary used by the
// lifecycle engines.
//
// Every engine operation runs inside exactly one InTx call. Implementations
// guarantee that a failed callback leaves no trace and that concurrent
// transactions touching the same consumable type serialize.
package store

import (
	"context"
	"errors"
	"time"

	"kalium.io/kalium/internal/domain"
)

// ErrNotFound is returned by Get* when the row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrStateMismatch is returned by TransitionUnit when the unit is not in the
// expected state.
var ErrStateMismatch = errors.New("store: state mismatch")

// Store opens transactions.
type Store interface {
	// InTx runs fn in a read-write transaction. The transaction commits when
	// fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Close releases store resources.
	Close() error
}

// UnitFilter selects supply units. Results are ordered by ascending ID.
type UnitFilter struct {
	ConsumableTypeID string
	State            domain.UnitState
	Limit            int
}

// OrderFilter selects orders.
type OrderFilter struct {
	State domain.OrderState
	// StartsBefore keeps orders whose schedule starts strictly before it.
	StartsBefore *time.Time
}

// IncidentFilter selects incidents.
type IncidentFilter struct {
	State    domain.IncidentState
	ReturnID string
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	GetConsumableType(ctx context.Context, id string) (domain.ConsumableType, error)
	ListConsumableTypes(ctx context.Context) ([]domain.ConsumableType, error)
	SaveConsumableType(ctx context.Context, ct domain.ConsumableType) error
	// LockConsumableTypes takes the per-type lock guarding unit selection.
	// IDs are locked in ascending order.
	LockConsumableTypes(ctx context.Context, ids []string) error

	GetSupplyUnit(ctx context.Context, id string) (domain.SupplyUnit, error)
	InsertSupplyUnit(ctx context.Context, u domain.SupplyUnit) error
	ListSupplyUnits(ctx context.Context, f UnitFilter) ([]domain.SupplyUnit, error)
	// TransitionUnit moves a unit from one state to another and returns
	// ErrStateMismatch when the unit is not in from.
	TransitionUnit(ctx context.Context, id string, from, to domain.UnitState) error
	CountUnitsByState(ctx context.Context, consumableTypeID string) (map[domain.UnitState]int, error)

	InsertChemicalBatch(ctx context.Context, b domain.ChemicalBatch) error
	ListChemicalBatches(ctx context.Context, consumableTypeID string) ([]domain.ChemicalBatch, error)

	// GetOrder loads an order with its line items. Inside InTx the order row
	// is locked until commit.
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	SaveOrder(ctx context.Context, o domain.Order) error
	ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error)

	GetDelivery(ctx context.Context, id string) (domain.Delivery, error)
	SaveDelivery(ctx context.Context, d domain.Delivery) error
	ListDeliveries(ctx context.Context, orderID string) ([]domain.Delivery, error)

	GetReturn(ctx context.Context, id string) (domain.Return, error)
	SaveReturn(ctx context.Context, r domain.Return) error
	ListReturns(ctx context.Context, deliveryID string) ([]domain.Return, error)

	GetIncident(ctx context.Context, id string) (domain.Incident, error)
	SaveIncident(ctx context.Context, i domain.Incident) error
	ListIncidents(ctx context.Context, f IncidentFilter) ([]domain.Incident, error)

	GetExperiment(ctx context.Context, id string) (domain.Experiment, error)
	SaveExperiment(ctx context.Context, e domain.Experiment) error
	ListExperiments(ctx context.Context) ([]domain.Experiment, error)
}
