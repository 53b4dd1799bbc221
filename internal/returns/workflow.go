// Package returns runs the inspection of returned deliveries.
//
// A return is PENDING while its lines are classified. Classifications are
// provisional: unit states change only when the return is approved. Damaged
// and missing units raise an incident as soon as they are recorded.
package returns

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/incident"
	"kalium.io/kalium/internal/ledger"
	apperrors "kalium.io/kalium/internal/pkg/errors"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/store"
)

// Workflow runs return operations.
type Workflow struct {
	store store.Store
	clock domain.Clock
}

// New creates a Workflow.
func New(s store.Store, clock domain.Clock) *Workflow {
	return &Workflow{store: s, clock: clock}
}

// Open starts a PENDING return for an OPEN, assigned delivery. The delivery
// moves to RETURNING until the return is decided.
func (w *Workflow) Open(ctx context.Context, deliveryID string) (domain.Return, []domain.DomainEvent, error) {
	now := w.clock.Now()
	var (
		r      domain.Return
		events []domain.DomainEvent
	)
	err := w.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		d, err := getDelivery(ctx, tx, deliveryID)
		if err != nil {
			return err
		}
		if !d.State.CanTransitionTo(domain.DeliveryReturning) {
			return apperrors.ErrInvalidStateTransitionf("delivery", d.ID, d.State, domain.DeliveryReturning)
		}
		if !d.Assigned() {
			return apperrors.ErrValidationf("recipient_id", "delivery has no recipient")
		}

		r = domain.Return{
			ID:          domain.NewID(),
			DeliveryID:  d.ID,
			OrderID:     d.OrderID,
			RecipientID: d.RecipientID,
			State:       domain.ReturnPending,
			CreatedAt:   now,
		}
		d.State = domain.DeliveryReturning
		d.UpdatedAt = now
		if err := tx.SaveDelivery(ctx, d); err != nil {
			return err
		}
		if err := tx.SaveReturn(ctx, r); err != nil {
			return err
		}
		ev, err := returnEvent(domain.EventReturnOpened, r)
		if err != nil {
			return err
		}
		events = []domain.DomainEvent{ev}
		return nil
	})
	if err != nil {
		return domain.Return{}, nil, err
	}
	logger.Info("Return opened", zap.String("return_id", r.ID), zap.String("delivery_id", r.DeliveryID))
	return r, events, nil
}

// RecordLineItem stores the condition of one returned unit. An empty
// condition means NOT_REVIEWED. Moving a line to DAMAGED or MISSING raises an
// incident in the same transaction.
func (w *Workflow) RecordLineItem(
	ctx context.Context, returnID, unitID string, condition domain.Condition, notes string,
) (domain.Return, []domain.DomainEvent, error) {
	if condition == "" {
		condition = domain.ConditionNotReviewed
	}
	if !condition.Valid() {
		return domain.Return{}, nil, apperrors.ErrValidationf("condition", "unknown condition "+string(condition))
	}
	now := w.clock.Now()
	var (
		r      domain.Return
		events []domain.DomainEvent
	)
	err := w.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		r, err = getReturn(ctx, tx, returnID)
		if err != nil {
			return err
		}
		if r.State != domain.ReturnPending {
			return apperrors.ErrInvalidStatef("return", r.ID, r.State, "record line item")
		}
		d, err := getDelivery(ctx, tx, r.DeliveryID)
		if err != nil {
			return err
		}
		if !d.Outstanding(unitID) {
			return apperrors.ErrEntityNotFoundf(apperrors.CodeSupplyUnitNotFound, "outstanding supply unit", unitID)
		}

		prev, had := r.Line(unitID)
		r.PutLine(domain.ReturnLineItem{UnitID: unitID, Condition: condition, Notes: notes})
		if err := tx.SaveReturn(ctx, r); err != nil {
			return err
		}

		if condition.RaisesIncident() && (!had || prev.Condition != condition) {
			desc := fmt.Sprintf("unit %s returned %s", unitID, condition)
			if notes != "" {
				desc += ": " + notes
			}
			inc, ev, err := incident.Raise(ctx, tx, incident.NewIncident{
				Description: desc,
				ReturnID:    r.ID,
				UnitID:      unitID,
				RecipientID: r.RecipientID,
			}, now)
			if err != nil {
				return err
			}
			logger.Info("Incident raised from return",
				zap.String("incident_id", inc.ID),
				zap.String("return_id", r.ID),
				zap.String("unit_id", unitID),
			)
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return domain.Return{}, nil, err
	}
	return r, events, nil
}

// Approve commits the recorded conditions: OK units become AVAILABLE,
// DAMAGED units DAMAGED and MISSING units LOST. Every line must be reviewed,
// and a return without lines is accepted only when no unit is outstanding.
func (w *Workflow) Approve(ctx context.Context, returnID string) (domain.Return, []domain.DomainEvent, error) {
	now := w.clock.Now()
	var (
		r      domain.Return
		d      domain.Delivery
		events []domain.DomainEvent
	)
	err := w.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		r, err = getReturn(ctx, tx, returnID)
		if err != nil {
			return err
		}
		if !r.State.CanTransitionTo(domain.ReturnApproved) {
			return apperrors.ErrInvalidStateTransitionf("return", r.ID, r.State, domain.ReturnApproved)
		}
		if pending := r.Unreviewed(); pending > 0 {
			return apperrors.ErrIncompleteReviewf(r.ID, pending)
		}
		d, err = getDelivery(ctx, tx, r.DeliveryID)
		if err != nil {
			return err
		}
		// An empty return only closes a delivery with nothing outstanding,
		// such as one holding chemicals only.
		if len(r.LineItems) == 0 && !d.FullyReturned() {
			return apperrors.ErrIncompleteReviewf(r.ID, len(d.UnitIDs)-len(d.ReturnedUnitIDs))
		}

		var touched []string
		for _, li := range r.LineItems {
			to, ok := li.Condition.ResultingUnitState()
			if !ok {
				return apperrors.ErrIncompleteReviewf(r.ID, 1)
			}
			u, err := tx.GetSupplyUnit(ctx, li.UnitID)
			if err != nil {
				return err
			}
			err = tx.TransitionUnit(ctx, li.UnitID, domain.UnitInUse, to)
			if errors.Is(err, store.ErrStateMismatch) {
				return apperrors.ErrConcurrentModificationf("supply unit", li.UnitID)
			}
			if err != nil {
				return err
			}
			d.ReturnedUnitIDs = append(d.ReturnedUnitIDs, li.UnitID)
			touched = append(touched, u.ConsumableTypeID)
		}

		next := domain.DeliveryOpen
		if d.FullyReturned() {
			next = domain.DeliveryClosed
		}
		if err := moveDelivery(&d, next, now); err != nil {
			return err
		}
		if err := tx.SaveDelivery(ctx, d); err != nil {
			return err
		}

		r.State = domain.ReturnApproved
		r.DecidedAt = &now
		if err := tx.SaveReturn(ctx, r); err != nil {
			return err
		}

		ev, err := returnEvent(domain.EventReturnApproved, r)
		if err != nil {
			return err
		}
		slices.Sort(touched)
		low, err := ledger.LowStockEvents(ctx, tx, slices.Compact(touched), now)
		if err != nil {
			return err
		}
		events = append([]domain.DomainEvent{ev}, low...)
		return nil
	})
	if err != nil {
		return domain.Return{}, nil, err
	}
	logger.Info("Return approved",
		zap.String("return_id", r.ID),
		zap.String("delivery_id", d.ID),
		zap.String("delivery_state", d.State.String()),
		zap.Int("units", len(r.LineItems)),
	)
	return r, events, nil
}

// Reject declines a PENDING return. Units stay IN_USE with the recipient and
// the delivery reopens for another return.
func (w *Workflow) Reject(ctx context.Context, returnID, reason string) (domain.Return, []domain.DomainEvent, error) {
	now := w.clock.Now()
	var (
		r      domain.Return
		events []domain.DomainEvent
	)
	err := w.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		r, err = getReturn(ctx, tx, returnID)
		if err != nil {
			return err
		}
		if !r.State.CanTransitionTo(domain.ReturnRejected) {
			return apperrors.ErrInvalidStateTransitionf("return", r.ID, r.State, domain.ReturnRejected)
		}
		d, err := getDelivery(ctx, tx, r.DeliveryID)
		if err != nil {
			return err
		}
		if err := moveDelivery(&d, domain.DeliveryOpen, now); err != nil {
			return err
		}
		if err := tx.SaveDelivery(ctx, d); err != nil {
			return err
		}

		r.State = domain.ReturnRejected
		r.Reason = reason
		r.DecidedAt = &now
		if err := tx.SaveReturn(ctx, r); err != nil {
			return err
		}
		ev, err := returnEvent(domain.EventReturnRejected, r)
		if err != nil {
			return err
		}
		events = []domain.DomainEvent{ev}
		return nil
	})
	if err != nil {
		return domain.Return{}, nil, err
	}
	logger.Info("Return rejected", zap.String("return_id", r.ID), zap.String("reason", reason))
	return r, events, nil
}

// IsComplete reports whether every unit of the delivery has a line item.
func (w *Workflow) IsComplete(ctx context.Context, returnID string) (bool, error) {
	var complete bool
	err := w.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := getReturn(ctx, tx, returnID)
		if err != nil {
			return err
		}
		d, err := getDelivery(ctx, tx, r.DeliveryID)
		if err != nil {
			return err
		}
		complete = len(r.LineItems) == len(d.UnitIDs)
		return nil
	})
	return complete, err
}

// Get returns one return.
func (w *Workflow) Get(ctx context.Context, returnID string) (domain.Return, error) {
	var r domain.Return
	err := w.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		r, err = getReturn(ctx, tx, returnID)
		return err
	})
	return r, err
}

// List returns the returns of a delivery.
func (w *Workflow) List(ctx context.Context, deliveryID string) ([]domain.Return, error) {
	var out []domain.Return
	err := w.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getDelivery(ctx, tx, deliveryID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListReturns(ctx, deliveryID)
		return err
	})
	return out, err
}

func moveDelivery(d *domain.Delivery, to domain.DeliveryState, now time.Time) error {
	if !d.State.CanTransitionTo(to) {
		return apperrors.ErrInvalidStateTransitionf("delivery", d.ID, d.State, to)
	}
	d.State = to
	d.UpdatedAt = now
	return nil
}

func getReturn(ctx context.Context, tx store.Tx, id string) (domain.Return, error) {
	r, err := tx.GetReturn(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return r, apperrors.ErrEntityNotFoundf(apperrors.CodeReturnNotFound, "return", id)
	}
	return r, err
}

func getDelivery(ctx context.Context, tx store.Tx, id string) (domain.Delivery, error) {
	d, err := tx.GetDelivery(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return d, apperrors.ErrEntityNotFoundf(apperrors.CodeDeliveryNotFound, "delivery", id)
	}
	return d, err
}

func returnEvent(t domain.EventType, r domain.Return) (domain.DomainEvent, error) {
	at := r.CreatedAt
	if r.DecidedAt != nil {
		at = *r.DecidedAt
	}
	return domain.NewEvent(t, domain.AggregateReturn, r.ID, domain.ReturnPayload{
		ReturnID:    r.ID,
		DeliveryID:  r.DeliveryID,
		RecipientID: r.RecipientID,
		Reason:      r.Reason,
	}, at)
}
