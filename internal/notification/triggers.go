package notification

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/pkg/logger"
)

// Triggers turns lifecycle events into notifications.
//
// Lab staff hear about new orders, return submissions, incidents and low
// stock. Requesters hear about every decision on their orders; recipients
// hear about their deliveries, returns and incidents.
type Triggers struct {
	sink  Sink
	staff []string
}

// NewTriggers creates the trigger set. staff receives the staff notifications.
func NewTriggers(sink Sink, staff []string) *Triggers {
	return &Triggers{sink: sink, staff: slices.Clone(staff)}
}

// Register subscribes every trigger to d.
func (t *Triggers) Register(d *domain.EventDispatcher) {
	for _, et := range []domain.EventType{
		domain.EventOrderCreated,
		domain.EventOrderApproved,
		domain.EventOrderInPreparation,
		domain.EventOrderRejected,
		domain.EventOrderCancelled,
	} {
		d.Register(et, t.onOrder)
	}
	d.Register(domain.EventDeliveriesGenerated, t.onDeliveriesGenerated)
	d.Register(domain.EventDeliveryAssigned, t.onDeliveryAssigned)
	for _, et := range []domain.EventType{
		domain.EventReturnOpened,
		domain.EventReturnApproved,
		domain.EventReturnRejected,
	} {
		d.Register(et, t.onReturn)
	}
	for _, et := range []domain.EventType{
		domain.EventIncidentReported,
		domain.EventIncidentInReview,
		domain.EventIncidentResolved,
		domain.EventIncidentCancelled,
	} {
		d.Register(et, t.onIncident)
	}
	d.Register(domain.EventStockLow, t.onStockLow)
}

func (t *Triggers) onOrder(ctx context.Context, ev *domain.DomainEvent) error {
	var p domain.OrderPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if ev.EventType == domain.EventOrderCreated {
		return t.toStaff(ctx, ev, fmt.Sprintf("New order %s from %s awaits approval", p.OrderID, p.RequesterID))
	}

	var msg string
	switch ev.EventType {
	case domain.EventOrderApproved:
		msg = fmt.Sprintf("Your order %s was approved and its stock is reserved", p.OrderID)
	case domain.EventOrderInPreparation:
		msg = fmt.Sprintf("Your order %s is being prepared", p.OrderID)
	case domain.EventOrderRejected:
		msg = withReason(fmt.Sprintf("Your order %s was rejected", p.OrderID), p.Reason)
	case domain.EventOrderCancelled:
		msg = withReason(fmt.Sprintf("Your order %s was cancelled", p.OrderID), p.Reason)
	}
	return t.to(ctx, ev, p.RequesterID, msg)
}

func (t *Triggers) onDeliveriesGenerated(ctx context.Context, ev *domain.DomainEvent) error {
	var p domain.DeliveryPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	return t.to(ctx, ev, p.RequesterID,
		fmt.Sprintf("Order %s was split into %d deliveries; assign a recipient to each group", p.OrderID, len(p.DeliveryIDs)))
}

func (t *Triggers) onDeliveryAssigned(ctx context.Context, ev *domain.DomainEvent) error {
	var p domain.DeliveryPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	return t.to(ctx, ev, p.RecipientID,
		fmt.Sprintf("You are responsible for group %d of order %s", p.GroupNumber, p.OrderID))
}

func (t *Triggers) onReturn(ctx context.Context, ev *domain.DomainEvent) error {
	var p domain.ReturnPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	switch ev.EventType {
	case domain.EventReturnOpened:
		return t.toStaff(ctx, ev, fmt.Sprintf("Return %s for delivery %s awaits inspection", p.ReturnID, p.DeliveryID))
	case domain.EventReturnApproved:
		return t.to(ctx, ev, p.RecipientID, fmt.Sprintf("Your return %s was accepted", p.ReturnID))
	default:
		return t.to(ctx, ev, p.RecipientID, withReason(fmt.Sprintf("Your return %s was rejected", p.ReturnID), p.Reason))
	}
}

func (t *Triggers) onIncident(ctx context.Context, ev *domain.DomainEvent) error {
	var p domain.IncidentPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	var staffErr error
	if ev.EventType == domain.EventIncidentReported {
		staffErr = t.toStaff(ctx, ev, fmt.Sprintf("Incident %s reported: %s", p.IncidentID, p.Description))
	}
	if p.RecipientID == "" {
		return staffErr
	}
	return errors.Join(staffErr, t.to(ctx, ev, p.RecipientID,
		fmt.Sprintf("Incident %s (%s) is now %s", p.IncidentID, p.Description, p.State)))
}

func (t *Triggers) onStockLow(ctx context.Context, ev *domain.DomainEvent) error {
	var p domain.StockPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	return t.toStaff(ctx, ev,
		fmt.Sprintf("Stock of %s is low: %s available, minimum %d", p.Name, p.Available, p.MinimumStock))
}

func (t *Triggers) to(ctx context.Context, ev *domain.DomainEvent, userID, msg string) error {
	if userID == "" {
		logger.Warn("notification without recipient dropped",
			zap.String("event_type", string(ev.EventType)),
			zap.String("aggregate_id", ev.AggregateID),
		)
		return nil
	}
	return t.sink.Notify(ctx, userID, string(ev.EventType), msg)
}

func (t *Triggers) toStaff(ctx context.Context, ev *domain.DomainEvent, msg string) error {
	if len(t.staff) == 0 {
		logger.Warn("no staff recipients configured",
			zap.String("event_type", string(ev.EventType)),
			zap.String("aggregate_id", ev.AggregateID),
		)
		return nil
	}
	return notifyMany(ctx, t.sink, t.staff, string(ev.EventType), msg)
}

func withReason(msg, reason string) string {
	if reason == "" {
		return msg
	}
	return msg + ": " + reason
}
