package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kalium.io/kalium/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestOrderStateTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from OrderState
		to   OrderState
		want bool
	}{
		{OrderCreated, OrderApproved, true},
		{OrderCreated, OrderCancelled, true},
		{OrderCreated, OrderDelivered, false},
		{OrderApproved, OrderDelivered, true},
		{OrderApproved, OrderInPreparation, true},
		{OrderInPreparation, OrderDelivered, true},
		{OrderInPreparation, OrderCancelled, true},
		{OrderInPreparation, OrderRejected, false},
		{OrderDelivered, OrderCancelled, false},
		{OrderCancelled, OrderApproved, false},
		{OrderRejected, OrderApproved, false},
	}
	for _, tt := range tests {
		require.Equalf(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
	require.True(t, OrderCancelled.Terminal())
	require.False(t, OrderApproved.Terminal())
}

func TestUnitStateTransitions(t *testing.T) {
	t.Parallel()

	require.True(t, UnitAvailable.CanTransitionTo(UnitReserved))
	require.True(t, UnitReserved.CanTransitionTo(UnitAvailable))
	require.True(t, UnitReserved.CanTransitionTo(UnitInUse))
	require.True(t, UnitInUse.CanTransitionTo(UnitLost))
	require.False(t, UnitAvailable.CanTransitionTo(UnitInUse))
	require.False(t, UnitDamaged.CanTransitionTo(UnitAvailable))
	require.False(t, UnitLost.CanTransitionTo(UnitAvailable))
}

func TestIncidentStateTransitions(t *testing.T) {
	t.Parallel()

	require.True(t, IncidentReported.CanTransitionTo(IncidentInReview))
	require.False(t, IncidentReported.CanTransitionTo(IncidentResolved))
	require.True(t, IncidentInReview.CanTransitionTo(IncidentResolved))
	require.True(t, IncidentInReview.CanTransitionTo(IncidentCancelled))
	for _, s := range IncidentStates {
		require.False(t, IncidentResolved.CanTransitionTo(s))
		require.False(t, IncidentCancelled.CanTransitionTo(s))
	}
	require.True(t, IncidentResolved.Terminal())
	require.False(t, IncidentState("BOGUS").Valid())
}

func TestConditionResultingUnitState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cond   Condition
		want   UnitState
		ok     bool
		raises bool
	}{
		{ConditionOK, UnitAvailable, true, false},
		{ConditionDamaged, UnitDamaged, true, true},
		{ConditionMissing, UnitLost, true, true},
		{ConditionNotReviewed, "", false, false},
	}
	for _, tt := range tests {
		got, ok := tt.cond.ResultingUnitState()
		require.Equal(t, tt.want, got)
		require.Equal(t, tt.ok, ok)
		require.Equal(t, tt.raises, tt.cond.RaisesIncident())
		require.True(t, tt.cond.Valid())
	}
}

func TestOrderHelpers(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	o := Order{
		State:      OrderApproved,
		GroupCount: 3,
		Schedule:   Schedule{StartsAt: now.Add(-time.Minute)},
		LineItems: []LineItem{
			{ConsumableTypeID: "b", QuantityPerGroup: 2, ReservedUnitIDs: []string{"u1"}},
			{ConsumableTypeID: "a", QuantityPerGroup: 1},
			{ConsumableTypeID: "b", QuantityPerGroup: 1},
		},
	}

	require.True(t, o.Expired(now))
	require.False(t, o.Expired(now.Add(-time.Hour)))
	require.Equal(t, []string{"a", "b"}, o.ConsumableTypeIDs())
	require.Equal(t, 6, o.LineItems[0].TotalQuantity(o.GroupCount))

	c := o.Clone()
	c.LineItems[0].ReservedUnitIDs[0] = "changed"
	require.Equal(t, "u1", o.LineItems[0].ReservedUnitIDs[0])
}

func TestDeliveryHelpers(t *testing.T) {
	t.Parallel()

	d := Delivery{UnitIDs: []string{"u1", "u2"}, ReturnedUnitIDs: []string{"u1"}}
	require.False(t, d.Outstanding("u1"))
	require.True(t, d.Outstanding("u2"))
	require.False(t, d.Outstanding("u3"))
	require.False(t, d.FullyReturned())

	d.ReturnedUnitIDs = append(d.ReturnedUnitIDs, "u2")
	require.True(t, d.FullyReturned())
}

func TestReturnLines(t *testing.T) {
	t.Parallel()

	var r Return
	r.PutLine(ReturnLineItem{UnitID: "u1", Condition: ConditionNotReviewed})
	r.PutLine(ReturnLineItem{UnitID: "u2", Condition: ConditionOK})
	require.Equal(t, 1, r.Unreviewed())

	r.PutLine(ReturnLineItem{UnitID: "u1", Condition: ConditionDamaged})
	require.Len(t, r.LineItems, 2)
	require.Zero(t, r.Unreviewed())

	li, ok := r.Line("u1")
	require.True(t, ok)
	require.Equal(t, ConditionDamaged, li.Condition)
}

func TestValidateStateCatalog(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateStateCatalog(StateCatalog()))

	partial := StateCatalog()
	partial[EntityIncident] = []string{"REPORTED"}
	err := ValidateStateCatalog(partial)
	require.Error(t, err)
	require.Contains(t, err.Error(), "incident.IN_REVIEW")
	require.Contains(t, err.Error(), "incident.RESOLVED")
}

func TestNewEventAndDecode(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ev, err := NewEvent(EventOrderApproved, AggregateOrder, "o-1",
		OrderPayload{OrderID: "o-1", RequesterID: "instructor-1", State: OrderApproved}, now)
	require.NoError(t, err)
	require.NotEmpty(t, ev.EventID)
	require.Equal(t, now, ev.CreatedAt)

	var p OrderPayload
	require.NoError(t, ev.Decode(&p))
	require.Equal(t, "instructor-1", p.RequesterID)
}

func TestEventDispatcher(t *testing.T) {
	t.Parallel()

	d := NewEventDispatcher()
	var calls []string
	d.Register(EventOrderCancelled, func(_ context.Context, e *DomainEvent) error {
		calls = append(calls, "first:"+e.AggregateID)
		return errors.New("sink down")
	})
	d.Register(EventOrderCancelled, func(_ context.Context, e *DomainEvent) error {
		calls = append(calls, "second:"+e.AggregateID)
		return nil
	})

	events := []DomainEvent{
		{EventType: EventOrderCancelled, AggregateID: "o-1"},
		{EventType: EventStockLow, AggregateID: "t-1"},
	}
	err := d.DispatchAll(context.Background(), events)
	require.Error(t, err)
	require.Equal(t, []string{"first:o-1", "second:o-1"}, calls)
}
