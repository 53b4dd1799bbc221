// Package sweeper cancels approved orders whose session already started.
//
// Cancellation goes through the same path as a manual cancel. One failing
// order is logged and counted; it never stops the sweep.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/store"
)

// Canceller is the order cancel path.
type Canceller interface {
	Cancel(ctx context.Context, orderID, reason string) (domain.Order, []domain.DomainEvent, error)
}

// Publisher receives the events of every successful cancellation.
type Publisher interface {
	Publish(ctx context.Context, events []domain.DomainEvent)
}

// Result summarizes one sweep.
type Result struct {
	Scanned   int `json:"scanned"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
}

// Sweeper finds and cancels expired orders.
type Sweeper struct {
	store     store.Store
	orders    Canceller
	clock     domain.Clock
	publisher Publisher
	reason    string
}

// New creates a Sweeper. publisher may be nil.
func New(s store.Store, orders Canceller, clock domain.Clock, publisher Publisher, reason string) *Sweeper {
	return &Sweeper{store: s, orders: orders, clock: clock, publisher: publisher, reason: reason}
}

// Sweep runs one pass. It returns an error only when the expired orders
// cannot be listed.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	now := s.clock.Now()
	var expired []domain.Order
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		expired, err = tx.ListOrders(ctx, store.OrderFilter{State: domain.OrderApproved, StartsBefore: &now})
		return err
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Scanned: len(expired)}
	for _, o := range expired {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, events, err := s.orders.Cancel(ctx, o.ID, s.reason)
		if err != nil {
			res.Failed++
			logger.Error("Failed to cancel expired order",
				zap.String("order_id", o.ID),
				zap.Time("starts_at", o.Schedule.StartsAt),
				zap.Error(err),
			)
			continue
		}
		res.Cancelled++
		if s.publisher != nil && len(events) > 0 {
			s.publisher.Publish(ctx, events)
		}
	}

	if res.Scanned > 0 {
		logger.Info("Expiration sweep completed",
			zap.Int("scanned", res.Scanned),
			zap.Int("cancelled", res.Cancelled),
			zap.Int("failed", res.Failed),
		)
	}
	return res, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	RunEvery(ctx, interval, s.Sweep)
}

// RunEvery calls sweep once immediately and then every interval until ctx is
// done. Listing failures are logged and retried on the next tick.
func RunEvery(ctx context.Context, interval time.Duration, sweep func(context.Context) (Result, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Expiration sweeper started", zap.Duration("interval", interval))
	for {
		if _, err := sweep(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Expiration sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			logger.Info("Expiration sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}
