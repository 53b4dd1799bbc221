package returns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kalium.io/kalium/internal/delivery"
	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/incident"
	apperrors "kalium.io/kalium/internal/pkg/errors"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/reservation"
	"kalium.io/kalium/internal/store"
	"kalium.io/kalium/internal/testutil"
)

func init() {
	_ = logger.Init("error", "json")
}

type fixture struct {
	lab       *testutil.Lab
	workflow  *Workflow
	incidents *incident.Tracker
	splitter  *delivery.Splitter
}

// deliveredGroup seeds units of "tube", runs an order with one group of
// size units through delivery and assigns it to student-1.
func deliveredGroup(t *testing.T, size, minimum int) (fixture, domain.Delivery) {
	t.Helper()
	lab := testutil.NewLab(t)
	lab.DiscreteType(t, "tube", size, minimum)
	ctx := context.Background()

	orders := reservation.New(lab.Store, lab.Clock)
	splitter := delivery.New(lab.Store, lab.Clock)
	o, _, err := orders.PlaceOrder(ctx, reservation.NewOrder{
		RequesterID: "instructor-1",
		Schedule:    domain.Schedule{StartsAt: testutil.Epoch.Add(time.Hour)},
		GroupCount:  1,
		Lines:       []reservation.NewLine{{ConsumableTypeID: "tube", QuantityPerGroup: size}},
	})
	require.NoError(t, err)
	_, _, err = orders.Approve(ctx, o.ID)
	require.NoError(t, err)
	deliveries, _, err := splitter.GenerateDeliveries(ctx, o.ID)
	require.NoError(t, err)
	d, _, err := splitter.AssignRecipient(ctx, deliveries[0].ID, "student-1")
	require.NoError(t, err)

	return fixture{
		lab:       lab,
		workflow:  New(lab.Store, lab.Clock),
		incidents: incident.New(lab.Store, lab.Clock),
		splitter:  splitter,
	}, d
}

func (f fixture) open(t *testing.T, d domain.Delivery) domain.Return {
	t.Helper()
	r, events, err := f.workflow.Open(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EventReturnOpened, events[0].EventType)
	return r
}

func (f fixture) record(t *testing.T, r domain.Return, unitID string, c domain.Condition) []domain.DomainEvent {
	t.Helper()
	_, events, err := f.workflow.RecordLineItem(context.Background(), r.ID, unitID, c, "")
	require.NoError(t, err)
	return events
}

func TestOpen(t *testing.T) {
	t.Parallel()
	f, d := deliveredGroup(t, 2, 0)
	ctx := context.Background()

	r := f.open(t, d)
	require.Equal(t, domain.ReturnPending, r.State)
	require.Equal(t, "student-1", r.RecipientID)
	require.Equal(t, d.OrderID, r.OrderID)

	got, err := f.splitter.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryReturning, got.State)

	_, _, err = f.workflow.Open(ctx, d.ID)
	require.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)

	_, _, err = f.workflow.Open(ctx, "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOpen_RequiresRecipient(t *testing.T) {
	t.Parallel()
	f, d := deliveredGroup(t, 1, 0)
	ctx := context.Background()
	require.NoError(t, f.lab.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		d.RecipientID = ""
		return tx.SaveDelivery(ctx, d)
	}))

	_, _, err := f.workflow.Open(ctx, d.ID)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRecordLineItem_DamagedRaisesIncidentImmediately(t *testing.T) {
	t.Parallel()
	f, d := deliveredGroup(t, 2, 0)
	ctx := context.Background()
	r := f.open(t, d)

	events := f.record(t, r, d.UnitIDs[0], domain.ConditionDamaged)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventIncidentReported, events[0].EventType)

	incidents, err := f.incidents.List(ctx, store.IncidentFilter{ReturnID: r.ID})
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	require.Equal(t, domain.IncidentReported, incidents[0].State)
	require.Equal(t, d.UnitIDs[0], incidents[0].UnitID)
	require.Equal(t, "student-1", incidents[0].RecipientID)

	// Provisional: the unit itself is untouched until approval.
	require.Equal(t, domain.UnitInUse, f.lab.UnitState(t, d.UnitIDs[0]))

	// Same verdict again does not duplicate the incident; a new one does.
	require.Empty(t, f.record(t, r, d.UnitIDs[0], domain.ConditionDamaged))
	require.Len(t, f.record(t, r, d.UnitIDs[0], domain.ConditionMissing), 1)
	require.Empty(t, f.record(t, r, d.UnitIDs[1], domain.ConditionOK))
}

func TestRecordLineItem_Guards(t *testing.T) {
	t.Parallel()
	f, d := deliveredGroup(t, 1, 0)
	ctx := context.Background()
	r := f.open(t, d)

	_, _, err := f.workflow.RecordLineItem(ctx, r.ID, d.UnitIDs[0], "BROKEN", "")
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, _, err = f.workflow.RecordLineItem(ctx, r.ID, "not-delivered", domain.ConditionOK, "")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, _, err = f.workflow.RecordLineItem(ctx, "missing", d.UnitIDs[0], domain.ConditionOK, "")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	got, _, err := f.workflow.RecordLineItem(ctx, r.ID, d.UnitIDs[0], "", "looks fine")
	require.NoError(t, err)
	require.Equal(t, domain.ConditionNotReviewed, got.LineItems[0].Condition)

	_, _, err = f.workflow.Reject(ctx, r.ID, "wrong lab")
	require.NoError(t, err)
	_, _, err = f.workflow.RecordLineItem(ctx, r.ID, d.UnitIDs[0], domain.ConditionOK, "")
	require.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
}

func TestApprove_ReviewGate(t *testing.T) {
	t.Parallel()
	f, d := deliveredGroup(t, 3, 0)
	ctx := context.Background()
	r := f.open(t, d)

	f.record(t, r, d.UnitIDs[0], domain.ConditionOK)
	f.record(t, r, d.UnitIDs[1], domain.ConditionDamaged)
	f.record(t, r, d.UnitIDs[2], domain.ConditionNotReviewed)

	_, _, err := f.workflow.Approve(ctx, r.ID)
	require.ErrorIs(t, err, apperrors.ErrIncompleteReview)
	require.Equal(t, 3, f.lab.UnitCounts(t, "tube")[domain.UnitInUse])

	f.record(t, r, d.UnitIDs[2], domain.ConditionMissing)
	complete, err := f.workflow.IsComplete(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, complete)

	approved, events, err := f.workflow.Approve(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ReturnApproved, approved.State)
	require.NotNil(t, approved.DecidedAt)
	require.Equal(t, domain.EventReturnApproved, events[0].EventType)

	require.Equal(t, domain.UnitAvailable, f.lab.UnitState(t, d.UnitIDs[0]))
	require.Equal(t, domain.UnitDamaged, f.lab.UnitState(t, d.UnitIDs[1]))
	require.Equal(t, domain.UnitLost, f.lab.UnitState(t, d.UnitIDs[2]))
	f.lab.RequireConserved(t, "tube", 3)

	got, err := f.splitter.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryClosed, got.State)
	require.ElementsMatch(t, d.UnitIDs, got.ReturnedUnitIDs)

	_, _, err = f.workflow.Approve(ctx, r.ID)
	require.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
	_, _, err = f.splitter.AssignRecipient(ctx, d.ID, "student-2")
	require.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
}

func TestApprove_PartialReturnReopensDelivery(t *testing.T) {
	t.Parallel()
	f, d := deliveredGroup(t, 2, 0)
	ctx := context.Background()

	first := f.open(t, d)
	f.record(t, first, d.UnitIDs[0], domain.ConditionOK)
	complete, err := f.workflow.IsComplete(ctx, first.ID)
	require.NoError(t, err)
	require.False(t, complete)
	_, _, err = f.workflow.Approve(ctx, first.ID)
	require.NoError(t, err)

	got, err := f.splitter.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryOpen, got.State)
	require.Equal(t, []string{d.UnitIDs[0]}, got.ReturnedUnitIDs)

	second := f.open(t, got)
	_, _, err = f.workflow.RecordLineItem(ctx, second.ID, d.UnitIDs[0], domain.ConditionOK, "")
	require.ErrorIs(t, err, apperrors.ErrNotFound, "already returned unit")
	f.record(t, second, d.UnitIDs[1], domain.ConditionOK)
	_, _, err = f.workflow.Approve(ctx, second.ID)
	require.NoError(t, err)

	got, err = f.splitter.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryClosed, got.State)
	require.Equal(t, 2, f.lab.UnitCounts(t, "tube")[domain.UnitAvailable])

	returns, err := f.workflow.List(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, returns, 2)
}

func TestApprove_EmptyReturn(t *testing.T) {
	t.Parallel()
	f, d := deliveredGroup(t, 1, 0)
	r := f.open(t, d)

	_, _, err := f.workflow.Approve(context.Background(), r.ID)
	require.ErrorIs(t, err, apperrors.ErrIncompleteReview)

	got, err := f.splitter.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryReturning, got.State)
}

func TestApprove_ChemicalOnlyReturnClosesDelivery(t *testing.T) {
	t.Parallel()
	lab := testutil.NewLab(t)
	lab.ChemicalType(t, "ethanol", "500")
	ctx := context.Background()

	orders := reservation.New(lab.Store, lab.Clock)
	splitter := delivery.New(lab.Store, lab.Clock)
	workflow := New(lab.Store, lab.Clock)
	o, _, err := orders.PlaceOrder(ctx, reservation.NewOrder{
		RequesterID: "instructor-1",
		Schedule:    domain.Schedule{StartsAt: testutil.Epoch.Add(time.Hour)},
		GroupCount:  1,
		Lines:       []reservation.NewLine{{ConsumableTypeID: "ethanol", QuantityPerGroup: 50}},
	})
	require.NoError(t, err)
	_, _, err = orders.Approve(ctx, o.ID)
	require.NoError(t, err)
	deliveries, _, err := splitter.GenerateDeliveries(ctx, o.ID)
	require.NoError(t, err)
	d, _, err := splitter.AssignRecipient(ctx, deliveries[0].ID, "student-1")
	require.NoError(t, err)
	require.Empty(t, d.UnitIDs)

	r, _, err := workflow.Open(ctx, d.ID)
	require.NoError(t, err)
	complete, err := workflow.IsComplete(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, complete)

	r, events, err := workflow.Approve(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ReturnApproved, r.State)
	require.Equal(t, domain.EventReturnApproved, events[0].EventType)

	got, err := splitter.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryClosed, got.State)
}

func TestApprove_LowStockAfterDamage(t *testing.T) {
	t.Parallel()
	f, d := deliveredGroup(t, 2, 1)
	r := f.open(t, d)
	f.record(t, r, d.UnitIDs[0], domain.ConditionDamaged)
	f.record(t, r, d.UnitIDs[1], domain.ConditionMissing)

	_, events, err := f.workflow.Approve(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.EventStockLow, events[1].EventType)
}

func TestReject_KeepsUnitsInUseAndIncidents(t *testing.T) {
	t.Parallel()
	f, d := deliveredGroup(t, 1, 0)
	ctx := context.Background()
	r := f.open(t, d)
	f.record(t, r, d.UnitIDs[0], domain.ConditionMissing)

	rejected, events, err := f.workflow.Reject(ctx, r.ID, "student still has it")
	require.NoError(t, err)
	require.Equal(t, domain.ReturnRejected, rejected.State)
	require.Equal(t, "student still has it", rejected.Reason)

	var payload domain.ReturnPayload
	require.NoError(t, events[0].Decode(&payload))
	require.Equal(t, "student still has it", payload.Reason)
	require.Equal(t, "student-1", payload.RecipientID)

	require.Equal(t, domain.UnitInUse, f.lab.UnitState(t, d.UnitIDs[0]))
	got, err := f.splitter.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryOpen, got.State)

	incidents, err := f.incidents.List(ctx, store.IncidentFilter{ReturnID: r.ID})
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	require.Equal(t, domain.IncidentReported, incidents[0].State)

	_, _, err = f.workflow.Reject(ctx, r.ID, "again")
	require.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
}
