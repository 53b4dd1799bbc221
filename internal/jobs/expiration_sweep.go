// Package jobs defines the River periodic jobs run against the PostgreSQL
// deployment.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/sweeper"
)

// Sweeper runs one expiration pass.
type Sweeper interface {
	Sweep(ctx context.Context) (sweeper.Result, error)
}

// QueueLifecycle runs jobs that move orders through their lifecycle. It has a
// single worker so two sweeps never cancel the same orders concurrently.
const QueueLifecycle = "lifecycle"

// ExpirationSweepArgs cancels approved orders whose session already started.
type ExpirationSweepArgs struct{}

// Kind returns the job kind identifier for the expiration sweep.
func (ExpirationSweepArgs) Kind() string { return "expiration_sweep" }

// defaultSweepPeriod is the uniqueness window of a sweep inserted outside the
// periodic schedule.
const defaultSweepPeriod = time.Hour

// InsertOpts returns ExpirationSweepInsertOpts for the default period.
func (ExpirationSweepArgs) InsertOpts() river.InsertOpts {
	return ExpirationSweepInsertOpts(defaultSweepPeriod)
}

// ExpirationSweepInsertOpts keeps at most one sweep per period. A failed
// sweep is not retried; the next period picks up whatever is still expired.
func ExpirationSweepInsertOpts(period time.Duration) river.InsertOpts {
	if period <= 0 {
		period = defaultSweepPeriod
	}
	return river.InsertOpts{
		Queue:       QueueLifecycle,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: period,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// ExpirationSweepWorker calls the shared Sweeper.
type ExpirationSweepWorker struct {
	river.WorkerDefaults[ExpirationSweepArgs]
	sweeper Sweeper
}

// NewExpirationSweepWorker creates the worker.
func NewExpirationSweepWorker(s Sweeper) *ExpirationSweepWorker {
	return &ExpirationSweepWorker{sweeper: s}
}

// Work runs one sweep. Per-order failures are logged by the sweeper and do
// not fail the job.
func (w *ExpirationSweepWorker) Work(ctx context.Context, job *river.Job[ExpirationSweepArgs]) error {
	if w == nil || w.sweeper == nil {
		return fmt.Errorf("expiration sweep worker is not initialized")
	}
	res, err := w.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("expiration sweep: %w", err)
	}
	var jobID int64
	if job != nil && job.JobRow != nil {
		jobID = job.ID
	}
	logger.Debug("expiration sweep job finished",
		zap.Int64("job_id", jobID),
		zap.Int("scanned", res.Scanned),
		zap.Int("cancelled", res.Cancelled),
		zap.Int("failed", res.Failed),
	)
	return nil
}
