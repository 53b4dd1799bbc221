// Package app is the composition root. Bootstrap stays orchestration-only:
// every dependency is built by a module in internal/app/modules.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"kalium.io/kalium/internal/api/handlers"
	"kalium.io/kalium/internal/app/modules"
	"kalium.io/kalium/internal/config"
	"kalium.io/kalium/internal/jobs"
	"kalium.io/kalium/internal/usecase"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	Infra   *modules.Infrastructure
	Service *usecase.Service
	Modules []modules.Module
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	notifications, err := modules.NewNotificationModule(infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init notification module: %w", err)
	}
	lifecycle := modules.NewLifecycleModule(infra)
	reports, err := modules.NewReportModule(ctx, infra, lifecycle.Service())
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init report module: %w", err)
	}
	allModules := []modules.Module{notifications, lifecycle, reports}

	if infra.UsesRiver() {
		workers := river.NewWorkers()
		for _, mod := range allModules {
			mod.RegisterWorkers(workers)
		}
		if err := infra.InitRiver(workers); err != nil {
			infra.Close()
			return nil, fmt.Errorf("init river workers: %w", err)
		}

		schedule := jobs.Schedule{}
		if cfg.Sweeper.Enabled {
			schedule.ExpirationSweep = cfg.Sweeper.Interval
		}
		if reports.ExportEnabled() {
			schedule.InventoryReport = cfg.Report.Interval
		}
		if notifications.CleanupEnabled() {
			schedule.NotificationCleanup = jobs.DefaultCleanupInterval
		}
		infra.RiverClient.PeriodicJobs().AddMany(jobs.PeriodicJobs(schedule))
	}

	server := handlers.NewServer(modules.NewServerDeps(infra, allModules))

	return &Application{
		Config:  cfg,
		Router:  newRouter(cfg, server, infra),
		Infra:   infra,
		Service: lifecycle.Service(),
		Modules: allModules,
	}, nil
}
