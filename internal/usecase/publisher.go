package usecase

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/observability"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/pkg/worker"
)

// Publisher hands committed events to the dispatcher on the notify pool so
// slow sinks never hold up the caller. Without pools events are dispatched
// inline.
type Publisher struct {
	dispatcher *domain.EventDispatcher
	pools      *worker.Pools
	metrics    *observability.Metrics
}

// NewPublisher creates a Publisher. pools and metrics may be nil.
func NewPublisher(d *domain.EventDispatcher, pools *worker.Pools, metrics *observability.Metrics) *Publisher {
	return &Publisher{dispatcher: d, pools: pools, metrics: metrics}
}

// Publish dispatches events in order. It never fails the caller: the
// transaction that produced the events has already committed.
func (p *Publisher) Publish(ctx context.Context, events []domain.DomainEvent) {
	if p == nil || len(events) == 0 {
		return
	}
	if p.metrics != nil {
		for _, ev := range events {
			p.metrics.EventPublished(string(ev.EventType))
		}
	}
	if p.pools == nil {
		p.dispatch(ctx, events)
		return
	}

	// The detached task outlives the request; keep the span link only.
	sc := trace.SpanContextFromContext(ctx)
	err := p.pools.SubmitDetached(worker.PoolNotify, func(svcCtx context.Context) {
		p.dispatch(trace.ContextWithRemoteSpanContext(svcCtx, sc), events)
	})
	if err != nil {
		logger.Warn("Notify pool rejected events, dispatching inline",
			zap.Int("events", len(events)),
			zap.Error(err),
		)
		p.dispatch(ctx, events)
	}
}

func (p *Publisher) dispatch(ctx context.Context, events []domain.DomainEvent) {
	if err := p.dispatcher.DispatchAll(ctx, events); err != nil {
		logger.Warn("Event dispatch completed with errors",
			zap.String("first_event_id", events[0].EventID),
			zap.Error(err),
		)
	}
}
