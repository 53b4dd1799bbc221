package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"kalium.io/kalium/internal/blob"
)

// ReportExporter writes one inventory report.
type ReportExporter interface {
	Export(ctx context.Context) (blob.Info, error)
}

// InventoryReportArgs exports the inventory report to blob storage.
type InventoryReportArgs struct{}

// Kind returns the job kind identifier for the report export.
func (InventoryReportArgs) Kind() string { return "inventory_report" }

// InsertOpts keeps at most one export per day and retries transient storage
// failures.
func (InventoryReportArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// InventoryReportWorker runs the exporter.
type InventoryReportWorker struct {
	river.WorkerDefaults[InventoryReportArgs]
	exporter ReportExporter
}

// NewInventoryReportWorker creates the worker.
func NewInventoryReportWorker(e ReportExporter) *InventoryReportWorker {
	return &InventoryReportWorker{exporter: e}
}

// Work exports one report.
func (w *InventoryReportWorker) Work(ctx context.Context, _ *river.Job[InventoryReportArgs]) error {
	if w == nil || w.exporter == nil {
		return fmt.Errorf("inventory report worker is not initialized")
	}
	if _, err := w.exporter.Export(ctx); err != nil {
		return fmt.Errorf("export inventory report: %w", err)
	}
	return nil
}
