// Package reservation places orders and reserves or releases their stock.
//
// Approve locks every consumable type of the order in ascending ID order,
// selects exactly the needed AVAILABLE units in ascending ID order and moves
// them to RESERVED with compare-and-swap updates. Any shortfall aborts the
// whole approval. Chemical lines only change state.
package reservation

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/ledger"
	apperrors "kalium.io/kalium/internal/pkg/errors"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/store"
)

// ReasonExpired is the cancellation reason used for orders whose session
// started without being delivered.
const ReasonExpired = "expired"

// NewOrder is the input of PlaceOrder.
type NewOrder struct {
	RequesterID string
	CourseID    string
	Schedule    domain.Schedule
	GroupCount  int
	Lines       []NewLine
}

// NewLine requests QuantityPerGroup of a type for every group.
type NewLine struct {
	ConsumableTypeID string
	QuantityPerGroup int
}

// Engine runs order lifecycle operations. Every operation is one store
// transaction and returns the events to publish after commit.
type Engine struct {
	store store.Store
	clock domain.Clock
}

// New creates an Engine.
func New(s store.Store, clock domain.Clock) *Engine {
	return &Engine{store: s, clock: clock}
}

// PlaceOrder validates and stores a new order in CREATED.
func (e *Engine) PlaceOrder(ctx context.Context, req NewOrder) (domain.Order, []domain.DomainEvent, error) {
	if err := validate(req); err != nil {
		return domain.Order{}, nil, err
	}

	now := e.clock.Now()
	schedule := req.Schedule
	if schedule.Date.IsZero() {
		schedule.Date = schedule.StartsAt.Truncate(24 * time.Hour)
	}
	order := domain.Order{
		ID:          domain.NewID(),
		RequesterID: req.RequesterID,
		CourseID:    req.CourseID,
		Schedule:    schedule,
		GroupCount:  req.GroupCount,
		State:       domain.OrderCreated,
		LineItems:   make([]domain.LineItem, 0, len(req.Lines)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var events []domain.DomainEvent
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, l := range req.Lines {
			ct, err := tx.GetConsumableType(ctx, l.ConsumableTypeID)
			if errors.Is(err, store.ErrNotFound) {
				return apperrors.ErrEntityNotFoundf(apperrors.CodeConsumableTypeNotFound, "consumable type", l.ConsumableTypeID)
			}
			if err != nil {
				return err
			}
			order.LineItems = append(order.LineItems, domain.LineItem{
				ID:               domain.NewID(),
				ConsumableTypeID: ct.ID,
				IsChemical:       ct.IsChemical,
				QuantityPerGroup: l.QuantityPerGroup,
				State:            domain.LineCreated,
			})
		}
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}
		ev, err := orderEvent(domain.EventOrderCreated, order, now)
		if err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return domain.Order{}, nil, err
	}

	logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("requester_id", order.RequesterID),
		zap.Int("lines", len(order.LineItems)),
	)
	return order, events, nil
}

// ExperimentOrder is the input of PlaceOrderFromExperiment.
type ExperimentOrder struct {
	ExperimentID string
	RequesterID  string
	CourseID     string
	Schedule     domain.Schedule
	GroupCount   int
}

// PlaceOrderFromExperiment places an order whose lines copy the per-group
// quantities of an experiment template.
func (e *Engine) PlaceOrderFromExperiment(ctx context.Context, req ExperimentOrder) (domain.Order, []domain.DomainEvent, error) {
	var exp domain.Experiment
	err := e.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		exp, err = tx.GetExperiment(ctx, req.ExperimentID)
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.ErrEntityNotFoundf(apperrors.CodeExperimentNotFound, "experiment", req.ExperimentID)
		}
		return err
	})
	if err != nil {
		return domain.Order{}, nil, err
	}
	if len(exp.Lines) == 0 {
		return domain.Order{}, nil, apperrors.ErrValidationf("experiment_id", "experiment "+exp.ID+" defines no consumables")
	}

	lines := make([]NewLine, 0, len(exp.Lines))
	for _, l := range exp.Lines {
		lines = append(lines, NewLine{ConsumableTypeID: l.ConsumableTypeID, QuantityPerGroup: l.QuantityPerGroup})
	}
	order, events, err := e.PlaceOrder(ctx, NewOrder{
		RequesterID: req.RequesterID,
		CourseID:    req.CourseID,
		Schedule:    req.Schedule,
		GroupCount:  req.GroupCount,
		Lines:       lines,
	})
	if err != nil {
		return domain.Order{}, nil, err
	}
	logger.Debug("Order placed from experiment",
		zap.String("order_id", order.ID),
		zap.String("experiment_id", exp.ID),
	)
	return order, events, nil
}

func validate(req NewOrder) error {
	if strings.TrimSpace(req.RequesterID) == "" {
		return apperrors.ErrValidationf("requester_id", "requester is required")
	}
	if req.GroupCount <= 0 {
		return apperrors.ErrValidationf("group_count", "group count must be positive")
	}
	if req.Schedule.StartsAt.IsZero() {
		return apperrors.ErrValidationf("schedule.starts_at", "start time is required")
	}
	if len(req.Lines) == 0 {
		return apperrors.ErrValidationf("lines", "at least one line is required")
	}
	seen := make(map[string]struct{}, len(req.Lines))
	for _, l := range req.Lines {
		if l.ConsumableTypeID == "" {
			return apperrors.ErrValidationf("lines.consumable_type_id", "consumable type is required")
		}
		if l.QuantityPerGroup <= 0 {
			return apperrors.ErrValidationf("lines.quantity_per_group", "quantity must be positive")
		}
		if _, dup := seen[l.ConsumableTypeID]; dup {
			return apperrors.ErrValidationf("lines.consumable_type_id", "consumable type "+l.ConsumableTypeID+" appears twice")
		}
		seen[l.ConsumableTypeID] = struct{}{}
	}
	return nil
}

// Get returns an order.
func (e *Engine) Get(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := e.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		order, err = getOrder(ctx, tx, orderID)
		return err
	})
	return order, err
}

// List returns orders matching the filter.
func (e *Engine) List(ctx context.Context, f store.OrderFilter) ([]domain.Order, error) {
	var orders []domain.Order
	err := e.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		orders, err = tx.ListOrders(ctx, f)
		return err
	})
	return orders, err
}

// Approve reserves stock for every line of a CREATED order.
func (e *Engine) Approve(ctx context.Context, orderID string) (domain.Order, []domain.DomainEvent, error) {
	now := e.clock.Now()
	var (
		order  domain.Order
		events []domain.DomainEvent
	)
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		order, err = getOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.State.CanTransitionTo(domain.OrderApproved) {
			return apperrors.ErrInvalidStateTransitionf("order", order.ID, order.State, domain.OrderApproved)
		}
		if err := tx.LockConsumableTypes(ctx, order.ConsumableTypeIDs()); err != nil {
			return err
		}

		picked, err := selectUnits(ctx, tx, order)
		if err != nil {
			return err
		}

		var touched []string
		for i := range order.LineItems {
			li := &order.LineItems[i]
			if err := moveLine(order.ID, li, domain.LineReserved); err != nil {
				return err
			}
			if li.IsChemical {
				continue
			}
			for _, unitID := range picked[li.ID] {
				if err := transitionUnit(ctx, tx, unitID, domain.UnitAvailable, domain.UnitReserved); err != nil {
					return err
				}
			}
			li.ReservedUnitIDs = picked[li.ID]
			touched = append(touched, li.ConsumableTypeID)
		}

		order.State = domain.OrderApproved
		order.Reason = ""
		order.UpdatedAt = now
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}

		ev, err := orderEvent(domain.EventOrderApproved, order, now)
		if err != nil {
			return err
		}
		slices.Sort(touched)
		low, err := ledger.LowStockEvents(ctx, tx, touched, now)
		if err != nil {
			return err
		}
		events = append([]domain.DomainEvent{ev}, low...)
		return nil
	})
	if err != nil {
		return domain.Order{}, nil, err
	}

	logger.Info("Order approved",
		zap.String("order_id", order.ID),
		zap.Int("reserved_units", reservedCount(order)),
	)
	return order, events, nil
}

// selectUnits picks the units for every discrete line, processing lines in
// ascending type order. Nothing is written.
func selectUnits(ctx context.Context, tx store.Tx, order domain.Order) (map[string][]string, error) {
	lines := slices.Clone(order.LineItems)
	slices.SortFunc(lines, func(a, b domain.LineItem) int {
		return strings.Compare(a.ConsumableTypeID, b.ConsumableTypeID)
	})

	picked := make(map[string][]string, len(lines))
	for _, li := range lines {
		if li.IsChemical {
			continue
		}
		need := li.TotalQuantity(order.GroupCount)
		units, err := tx.ListSupplyUnits(ctx, store.UnitFilter{
			ConsumableTypeID: li.ConsumableTypeID,
			State:            domain.UnitAvailable,
			Limit:            need,
		})
		if err != nil {
			return nil, err
		}
		if len(units) < need {
			return nil, apperrors.ErrInsufficientStockf(li.ConsumableTypeID, need, len(units))
		}
		ids := make([]string, len(units))
		for i, u := range units {
			ids[i] = u.ID
		}
		picked[li.ID] = ids
	}
	return picked, nil
}

// Cancel cancels a CREATED, APPROVED or IN_PREPARATION order and releases its
// reserved units.
// Cancelling a CANCELLED order is a no-op without events.
func (e *Engine) Cancel(ctx context.Context, orderID, reason string) (domain.Order, []domain.DomainEvent, error) {
	return e.terminate(ctx, orderID, reason, domain.OrderCancelled, domain.EventOrderCancelled)
}

// Reject rejects a CREATED or APPROVED order and releases its reserved units.
func (e *Engine) Reject(ctx context.Context, orderID, reason string) (domain.Order, []domain.DomainEvent, error) {
	return e.terminate(ctx, orderID, reason, domain.OrderRejected, domain.EventOrderRejected)
}

func (e *Engine) terminate(
	ctx context.Context, orderID, reason string, target domain.OrderState, eventType domain.EventType,
) (domain.Order, []domain.DomainEvent, error) {
	now := e.clock.Now()
	var (
		order    domain.Order
		events   []domain.DomainEvent
		released int
		noop     bool
	)
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		order, err = getOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if target == domain.OrderCancelled && order.State == domain.OrderCancelled {
			noop = true
			return nil
		}
		if !order.State.CanTransitionTo(target) {
			return apperrors.ErrInvalidStateTransitionf("order", order.ID, order.State, target)
		}
		if err := tx.LockConsumableTypes(ctx, order.ConsumableTypeIDs()); err != nil {
			return err
		}

		for i := range order.LineItems {
			li := &order.LineItems[i]
			if li.State == domain.LineReserved {
				for _, unitID := range li.ReservedUnitIDs {
					if err := transitionUnit(ctx, tx, unitID, domain.UnitReserved, domain.UnitAvailable); err != nil {
						return err
					}
				}
				released += len(li.ReservedUnitIDs)
				li.ReservedUnitIDs = nil
			}
			if err := moveLine(order.ID, li, domain.LineCancelled); err != nil {
				return err
			}
		}

		order.State = target
		order.Reason = reason
		order.UpdatedAt = now
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}
		ev, err := orderEvent(eventType, order, now)
		if err != nil {
			return err
		}
		events = []domain.DomainEvent{ev}
		return nil
	})
	if err != nil {
		return domain.Order{}, nil, err
	}
	if noop {
		logger.Debug("Order already cancelled", zap.String("order_id", order.ID))
		return order, nil, nil
	}

	logger.Info("Order closed",
		zap.String("order_id", order.ID),
		zap.String("state", order.State.String()),
		zap.String("reason", reason),
		zap.Int("released_units", released),
	)
	return order, events, nil
}

// MarkInPreparation moves an APPROVED order to IN_PREPARATION.
func (e *Engine) MarkInPreparation(ctx context.Context, orderID string) (domain.Order, []domain.DomainEvent, error) {
	now := e.clock.Now()
	var (
		order  domain.Order
		events []domain.DomainEvent
	)
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		order, err = getOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.State.CanTransitionTo(domain.OrderInPreparation) {
			return apperrors.ErrInvalidStateTransitionf("order", order.ID, order.State, domain.OrderInPreparation)
		}
		order.State = domain.OrderInPreparation
		order.UpdatedAt = now
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}
		ev, err := orderEvent(domain.EventOrderInPreparation, order, now)
		if err != nil {
			return err
		}
		events = []domain.DomainEvent{ev}
		return nil
	})
	if err != nil {
		return domain.Order{}, nil, err
	}
	logger.Info("Order in preparation", zap.String("order_id", order.ID))
	return order, events, nil
}

func moveLine(orderID string, li *domain.LineItem, to domain.LineItemState) error {
	if !li.State.CanTransitionTo(to) {
		return apperrors.ErrInvalidStateTransitionf("order line item", orderID+"/"+li.ID, li.State, to)
	}
	li.State = to
	return nil
}

func transitionUnit(ctx context.Context, tx store.Tx, unitID string, from, to domain.UnitState) error {
	if !from.CanTransitionTo(to) {
		return apperrors.ErrInvalidStateTransitionf("supply unit", unitID, from, to)
	}
	err := tx.TransitionUnit(ctx, unitID, from, to)
	switch {
	case errors.Is(err, store.ErrStateMismatch):
		return apperrors.ErrConcurrentModificationf("supply unit", unitID)
	case errors.Is(err, store.ErrNotFound):
		return apperrors.ErrEntityNotFoundf(apperrors.CodeSupplyUnitNotFound, "supply unit", unitID)
	}
	return err
}

func getOrder(ctx context.Context, tx store.Tx, id string) (domain.Order, error) {
	o, err := tx.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return o, apperrors.ErrEntityNotFoundf(apperrors.CodeOrderNotFound, "order", id)
	}
	return o, err
}

func orderEvent(t domain.EventType, o domain.Order, now time.Time) (domain.DomainEvent, error) {
	return domain.NewEvent(t, domain.AggregateOrder, o.ID, domain.OrderPayload{
		OrderID:     o.ID,
		RequesterID: o.RequesterID,
		State:       o.State,
		Reason:      o.Reason,
	}, now)
}

func reservedCount(o domain.Order) int {
	n := 0
	for _, li := range o.LineItems {
		n += len(li.ReservedUnitIDs)
	}
	return n
}
