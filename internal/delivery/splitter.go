// Package delivery splits approved orders into per-group deliveries and
// tracks who receives each one.
package delivery

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"

	"kalium.io/kalium/internal/domain"
	apperrors "kalium.io/kalium/internal/pkg/errors"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/store"
)

// Splitter runs delivery operations.
type Splitter struct {
	store store.Store
	clock domain.Clock
}

// New creates a Splitter.
func New(s store.Store, clock domain.Clock) *Splitter {
	return &Splitter{store: s, clock: clock}
}

// GenerateDeliveries creates one delivery per group of an APPROVED or
// IN_PREPARATION order. Each discrete line's reserved units are dealt in
// chunks of QuantityPerGroup to groups 1..N and move to IN_USE. Chemical
// lines are referenced by every delivery.
func (s *Splitter) GenerateDeliveries(ctx context.Context, orderID string) ([]domain.Delivery, []domain.DomainEvent, error) {
	now := s.clock.Now()
	var (
		deliveries []domain.Delivery
		events     []domain.DomainEvent
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.ErrEntityNotFoundf(apperrors.CodeOrderNotFound, "order", orderID)
		}
		if err != nil {
			return err
		}
		existing, err := tx.ListDeliveries(ctx, order.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return apperrors.ErrAlreadyGeneratedf(order.ID)
		}
		if !order.State.CanTransitionTo(domain.OrderDelivered) {
			return apperrors.ErrInvalidStateTransitionf("order", order.ID, order.State, domain.OrderDelivered)
		}

		deliveries = make([]domain.Delivery, order.GroupCount)
		for g := range deliveries {
			deliveries[g] = domain.Delivery{
				ID:          domain.NewID(),
				OrderID:     order.ID,
				GroupNumber: g + 1,
				Schedule:    order.Schedule,
				State:       domain.DeliveryOpen,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
		}

		for i := range order.LineItems {
			li := &order.LineItems[i]
			if li.State == domain.LineCancelled {
				continue
			}
			if !li.State.CanTransitionTo(domain.LineDelivered) {
				return apperrors.ErrInvalidStateTransitionf("order line item", order.ID+"/"+li.ID, li.State, domain.LineDelivered)
			}
			if li.IsChemical {
				ref, err := chemicalRef(ctx, tx, *li)
				if err != nil {
					return err
				}
				for g := range deliveries {
					shared := ref
					shared.BatchIDs = slices.Clone(ref.BatchIDs)
					deliveries[g].Chemicals = append(deliveries[g].Chemicals, shared)
				}
			} else if err := deal(ctx, tx, order, *li, deliveries); err != nil {
				return err
			}
			li.State = domain.LineDelivered
		}

		for _, d := range deliveries {
			if err := tx.SaveDelivery(ctx, d); err != nil {
				return err
			}
		}
		order.State = domain.OrderDelivered
		order.UpdatedAt = now
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}

		ids := make([]string, len(deliveries))
		for i, d := range deliveries {
			ids[i] = d.ID
		}
		ev, err := domain.NewEvent(domain.EventDeliveriesGenerated, domain.AggregateOrder, order.ID, domain.DeliveryPayload{
			OrderID:     order.ID,
			DeliveryIDs: ids,
			RequesterID: order.RequesterID,
		}, now)
		if err != nil {
			return err
		}
		events = []domain.DomainEvent{ev}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Deliveries generated",
		zap.String("order_id", orderID),
		zap.Int("groups", len(deliveries)),
	)
	return deliveries, events, nil
}

// deal hands QuantityPerGroup reserved units, in ascending ID order, to each
// delivery in group order.
func deal(ctx context.Context, tx store.Tx, order domain.Order, li domain.LineItem, deliveries []domain.Delivery) error {
	need := li.TotalQuantity(order.GroupCount)
	if len(li.ReservedUnitIDs) != need {
		return apperrors.Internal(apperrors.CodeConcurrentModification,
			"line "+li.ID+" holds a different number of units than its groups need")
	}
	for g := range deliveries {
		chunk := li.ReservedUnitIDs[g*li.QuantityPerGroup : (g+1)*li.QuantityPerGroup]
		for _, unitID := range chunk {
			err := tx.TransitionUnit(ctx, unitID, domain.UnitReserved, domain.UnitInUse)
			if errors.Is(err, store.ErrStateMismatch) {
				return apperrors.ErrConcurrentModificationf("supply unit", unitID)
			}
			if err != nil {
				return err
			}
			deliveries[g].UnitIDs = append(deliveries[g].UnitIDs, unitID)
		}
	}
	return nil
}

// chemicalRef points at the batches of the line's type at generation time.
func chemicalRef(ctx context.Context, tx store.Tx, li domain.LineItem) (domain.ChemicalRef, error) {
	batches, err := tx.ListChemicalBatches(ctx, li.ConsumableTypeID)
	if err != nil {
		return domain.ChemicalRef{}, err
	}
	ids := make([]string, len(batches))
	for i, b := range batches {
		ids[i] = b.ID
	}
	return domain.ChemicalRef{ConsumableTypeID: li.ConsumableTypeID, QuantityPerGroup: li.QuantityPerGroup, BatchIDs: ids}, nil
}

// AssignRecipient sets the student receiving a delivery. Reassignment
// overwrites; a CLOSED delivery cannot be reassigned.
func (s *Splitter) AssignRecipient(ctx context.Context, deliveryID, studentID string) (domain.Delivery, []domain.DomainEvent, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return domain.Delivery{}, nil, apperrors.ErrValidationf("student_id", "student is required")
	}
	now := s.clock.Now()
	var (
		d      domain.Delivery
		events []domain.DomainEvent
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		d, err = getDelivery(ctx, tx, deliveryID)
		if err != nil {
			return err
		}
		if d.State == domain.DeliveryClosed {
			return apperrors.ErrInvalidStatef("delivery", d.ID, d.State, "assign recipient")
		}
		d.RecipientID = studentID
		d.UpdatedAt = now
		if err := tx.SaveDelivery(ctx, d); err != nil {
			return err
		}
		ev, err := domain.NewEvent(domain.EventDeliveryAssigned, domain.AggregateDelivery, d.ID, domain.DeliveryPayload{
			OrderID:     d.OrderID,
			DeliveryIDs: []string{d.ID},
			GroupNumber: d.GroupNumber,
			RecipientID: studentID,
		}, now)
		if err != nil {
			return err
		}
		events = []domain.DomainEvent{ev}
		return nil
	})
	if err != nil {
		return domain.Delivery{}, nil, err
	}
	logger.Info("Delivery assigned",
		zap.String("delivery_id", d.ID),
		zap.String("recipient_id", studentID),
	)
	return d, events, nil
}

// ListUnassigned returns the deliveries of an order without a recipient.
func (s *Splitter) ListUnassigned(ctx context.Context, orderID string) ([]domain.Delivery, error) {
	all, err := s.List(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, d := range all {
		if !d.Assigned() {
			out = append(out, d)
		}
	}
	return out, nil
}

// List returns every delivery of an order by group number.
func (s *Splitter) List(ctx context.Context, orderID string) ([]domain.Delivery, error) {
	var out []domain.Delivery
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetOrder(ctx, orderID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperrors.ErrEntityNotFoundf(apperrors.CodeOrderNotFound, "order", orderID)
			}
			return err
		}
		var err error
		out, err = tx.ListDeliveries(ctx, orderID)
		return err
	})
	return out, err
}

// Get returns one delivery.
func (s *Splitter) Get(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	var d domain.Delivery
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		d, err = getDelivery(ctx, tx, deliveryID)
		return err
	})
	return d, err
}

func getDelivery(ctx context.Context, tx store.Tx, id string) (domain.Delivery, error) {
	d, err := tx.GetDelivery(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return d, apperrors.ErrEntityNotFoundf(apperrors.CodeDeliveryNotFound, "delivery", id)
	}
	return d, err
}
