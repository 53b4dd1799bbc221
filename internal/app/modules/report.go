package modules

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"kalium.io/kalium/internal/api/handlers"
	"kalium.io/kalium/internal/blob"
	"kalium.io/kalium/internal/jobs"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/pkg/worker"
	"kalium.io/kalium/internal/report"
	"kalium.io/kalium/internal/usecase"
)

// ReportModule exports the inventory report to blob storage on a schedule.
type ReportModule struct {
	infra    *Infrastructure
	exporter *report.Exporter
}

// NewReportModule opens the configured blob store. It returns a module with
// no exporter when report export is disabled.
func NewReportModule(ctx context.Context, infra *Infrastructure, svc *usecase.Service) (*ReportModule, error) {
	m := &ReportModule{infra: infra}
	cfg := infra.Config.Report
	if !cfg.Enabled {
		return m, nil
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open report blob store: %w", err)
	}
	m.exporter = report.NewExporter(svc.Reports(), blobs, cfg.Blob.Prefix)
	return m, nil
}

func (m *ReportModule) Name() string { return "report" }

func (m *ReportModule) ContributeServerDeps(*handlers.ServerDeps) {}

func (m *ReportModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil || m.exporter == nil {
		return
	}
	river.AddWorker(workers, jobs.NewInventoryReportWorker(m.exporter))
}

// ExportEnabled reports whether the inventory_report job should be scheduled.
func (m *ReportModule) ExportEnabled() bool { return m.exporter != nil }

// Start exports on a ticker when River is not available.
func (m *ReportModule) Start(context.Context) error {
	if m.exporter == nil || m.infra.UsesRiver() {
		return nil
	}
	interval := m.infra.Config.Report.Interval
	return m.infra.Pools.SubmitDetached(worker.PoolGeneral, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.exporter.Export(ctx); err != nil {
					logger.Error("Inventory report export failed", zap.Error(err))
				}
			}
		}
	})
}

func (m *ReportModule) Shutdown(context.Context) error { return nil }
