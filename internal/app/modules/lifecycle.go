package modules

import (
	"context"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"kalium.io/kalium/internal/api/handlers"
	"kalium.io/kalium/internal/jobs"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/pkg/worker"
	"kalium.io/kalium/internal/sweeper"
	"kalium.io/kalium/internal/usecase"
)

// LifecycleModule wires the order, delivery, return and incident engines
// behind usecase.Service, and drives the expiration sweeper.
type LifecycleModule struct {
	infra   *Infrastructure
	service *usecase.Service
}

// NewLifecycleModule creates the service facade. Events are published on the
// notify pool after commit.
func NewLifecycleModule(infra *Infrastructure) *LifecycleModule {
	publisher := usecase.NewPublisher(infra.Dispatcher, infra.Pools, infra.Metrics)
	svc := usecase.NewService(usecase.Deps{
		Store:     infra.Store,
		Publisher: publisher,
		Tracer:    infra.Tracing.Tracer(),
		Metrics:   infra.Metrics,
	})
	return &LifecycleModule{infra: infra, service: svc}
}

func (m *LifecycleModule) Name() string { return "lifecycle" }

// Service returns the facade shared with the other modules.
func (m *LifecycleModule) Service() *usecase.Service { return m.service }

func (m *LifecycleModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Service = m.service
}

func (m *LifecycleModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil || !m.infra.Config.Sweeper.Enabled {
		return
	}
	river.AddWorker(workers, jobs.NewExpirationSweepWorker(m.service))
}

// Start runs the sweeper on a ticker when River is not available. With
// PostgreSQL the periodic expiration_sweep job replaces it.
func (m *LifecycleModule) Start(context.Context) error {
	cfg := m.infra.Config.Sweeper
	if !cfg.Enabled || m.infra.UsesRiver() {
		return nil
	}
	logger.Info("Starting in-process expiration sweeper", zap.Duration("interval", cfg.Interval))
	return m.infra.Pools.SubmitDetached(worker.PoolGeneral, func(ctx context.Context) {
		sweeper.RunEvery(ctx, cfg.Interval, m.service.Sweep)
	})
}

func (m *LifecycleModule) Shutdown(context.Context) error { return nil }
