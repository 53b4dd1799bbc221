package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/observability"
	apperrors "kalium.io/kalium/internal/pkg/errors"
	"kalium.io/kalium/internal/pkg/worker"
	"kalium.io/kalium/internal/reservation"
	labtest "kalium.io/kalium/internal/testutil"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []domain.EventType
}

func (h *recordingHandler) handle(_ context.Context, ev *domain.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev.EventType)
	return nil
}

func (h *recordingHandler) seen() []domain.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.EventType(nil), h.events...)
}

func newTestService(t *testing.T, pools *worker.Pools) (*Service, *labtest.Lab, *recordingHandler, *observability.Metrics) {
	t.Helper()
	lab := labtest.NewLab(t)
	h := &recordingHandler{}
	d := domain.NewEventDispatcher()
	d.Register(domain.EventOrderCreated, h.handle)
	d.Register(domain.EventOrderApproved, h.handle)
	d.Register(domain.EventOrderCancelled, h.handle)
	m := observability.NewMetrics()
	svc := NewService(Deps{
		Store:     lab.Store,
		Clock:     lab.Clock,
		Publisher: NewPublisher(d, pools, m),
		Metrics:   m,
	})
	return svc, lab, h, m
}

func placeBeakers(t *testing.T, svc *Service, lab *labtest.Lab, startsIn time.Duration) domain.Order {
	t.Helper()
	lab.DiscreteType(t, "beaker", 4, 0)
	o, err := svc.PlaceOrder(context.Background(), reservation.NewOrder{
		RequesterID: "instructor-1",
		Schedule:    domain.Schedule{StartsAt: labtest.Epoch.Add(startsIn)},
		GroupCount:  2,
		Lines:       []reservation.NewLine{{ConsumableTypeID: "beaker", QuantityPerGroup: 2}},
	})
	require.NoError(t, err)
	return o
}

func TestService_PublishesAfterCommitInline(t *testing.T) {
	t.Parallel()
	svc, lab, h, _ := newTestService(t, nil)
	o := placeBeakers(t, svc, lab, 24*time.Hour)

	_, err := svc.Approve(context.Background(), o.ID)
	require.NoError(t, err)

	require.Equal(t, []domain.EventType{domain.EventOrderCreated, domain.EventOrderApproved}, h.seen())
}

func TestService_FailedOperationPublishesNothing(t *testing.T) {
	t.Parallel()
	svc, lab, h, m := newTestService(t, nil)
	lab.DiscreteType(t, "beaker", 1, 0)
	o, err := svc.PlaceOrder(context.Background(), reservation.NewOrder{
		RequesterID: "instructor-1",
		Schedule:    domain.Schedule{StartsAt: labtest.Epoch.Add(time.Hour)},
		GroupCount:  3,
		Lines:       []reservation.NewLine{{ConsumableTypeID: "beaker", QuantityPerGroup: 1}},
	})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), o.ID)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeInsufficientStock, appErr.Code)

	require.Equal(t, []domain.EventType{domain.EventOrderCreated}, h.seen())
	require.Equal(t, 1, lab.UnitCounts(t, "beaker")[domain.UnitAvailable])

	n, err := testutil.GatherAndCount(m.Registry, "kalium_operations_total")
	require.NoError(t, err)
	// place_order OK, approve_order INSUFFICIENT_STOCK
	require.Equal(t, 2, n)
}

func TestService_PublishesOnNotifyPool(t *testing.T) {
	t.Parallel()
	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{GeneralPoolSize: 1, NotifyPoolSize: 1})
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)

	svc, lab, h, _ := newTestService(t, pools)
	o := placeBeakers(t, svc, lab, 24*time.Hour)
	_, err = svc.Cancel(context.Background(), o.ID, "no longer needed")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.seen()) == 2 }, time.Second, 5*time.Millisecond)
	require.ElementsMatch(t, []domain.EventType{domain.EventOrderCreated, domain.EventOrderCancelled}, h.seen())
}

func TestService_SweepRecordsMetrics(t *testing.T) {
	t.Parallel()
	svc, lab, h, m := newTestService(t, nil)
	o := placeBeakers(t, svc, lab, time.Hour)
	_, err := svc.Approve(context.Background(), o.ID)
	require.NoError(t, err)

	lab.Clock.Advance(2 * time.Hour)
	res, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Cancelled)

	got, err := svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderCancelled, got.State)
	require.Contains(t, h.seen(), domain.EventOrderCancelled)

	n, err := testutil.GatherAndCount(m.Registry, "kalium_expired_orders_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestPublisher_NilIsNoop(t *testing.T) {
	t.Parallel()
	var p *Publisher
	require.NotPanics(t, func() {
		p.Publish(context.Background(), []domain.DomainEvent{{EventType: domain.EventOrderCreated}})
	})
}
