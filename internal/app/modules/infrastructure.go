package modules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"kalium.io/kalium/internal/api/handlers"
	"kalium.io/kalium/internal/config"
	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/infrastructure"
	"kalium.io/kalium/internal/observability"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/pkg/worker"
	"kalium.io/kalium/internal/store"
	"kalium.io/kalium/internal/store/memory"
	"kalium.io/kalium/internal/store/sqlite"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config *config.Config

	// DB is nil unless the postgres driver is selected.
	DB          *infrastructure.DatabaseClients
	RiverClient *river.Client[pgx.Tx]

	Store      store.Store
	Pools      *worker.Pools
	Tracing    *observability.Tracing
	Metrics    *observability.Metrics
	Dispatcher *domain.EventDispatcher
}

// NewInfrastructure opens the configured store and builds pools and telemetry.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	infra := &Infrastructure{Config: cfg, Dispatcher: domain.NewEventDispatcher()}

	if err := infra.openStore(ctx); err != nil {
		infra.Close()
		return nil, err
	}

	tracing, err := observability.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	infra.Tracing = tracing
	infra.Metrics = observability.NewMetrics()

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		NotifyPoolSize:  cfg.Worker.NotifyPoolSize,
	})
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}
	infra.Pools = pools

	return infra, nil
}

func (i *Infrastructure) openStore(ctx context.Context) error {
	cfg := i.Config.Database
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := infrastructure.NewDatabaseClients(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init database: %w", err)
		}
		i.DB = db
		if cfg.AutoMigrate {
			if err := db.AutoMigrate(ctx); err != nil {
				return fmt.Errorf("auto-migrate: %w", err)
			}
		}
		// Missing reference state codes abort startup.
		if err := db.Store.ValidateStateCatalog(ctx); err != nil {
			return fmt.Errorf("validate state catalog: %w", err)
		}
		i.Store = db.Store
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		i.Store = s
	case config.DriverMemory:
		logger.Warn("Using the in-memory store, state is lost on restart")
		i.Store = memory.New()
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	logger.Info("Store opened", zap.String("driver", cfg.Driver))
	return nil
}

// UsesRiver reports whether background jobs run on River.
func (i *Infrastructure) UsesRiver() bool {
	return i != nil && i.DB != nil
}

// InitRiver initializes River client on top of a prepared worker registry.
func (i *Infrastructure) InitRiver(workers *river.Workers) error {
	if i == nil || i.DB == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if err := i.DB.InitRiverClient(workers, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	return nil
}

// HealthChecks returns the dependency checks served by GET /health.
func (i *Infrastructure) HealthChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if i.DB != nil {
		checks["database"] = i.DB.Pool.Ping
	}
	if i.Store != nil {
		checks["store"] = func(ctx context.Context) error {
			return i.Store.View(ctx, func(ctx context.Context, tx store.Tx) error {
				_, err := tx.ListConsumableTypes(ctx)
				return err
			})
		}
	}
	return checks
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.Tracing != nil {
		if err := i.Tracing.Shutdown(context.Background()); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}
	if i.Store != nil {
		if err := i.Store.Close(); err != nil {
			logger.Warn("Store close failed", zap.Error(err))
		}
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
