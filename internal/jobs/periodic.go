package jobs

import (
	"time"

	"github.com/riverqueue/river"
)

// Schedule holds the intervals of the periodic jobs. A zero interval
// disables that job.
type Schedule struct {
	ExpirationSweep     time.Duration
	InventoryReport     time.Duration
	NotificationCleanup time.Duration
}

// PeriodicJobs returns the River periodic jobs enabled by s. The expiration
// sweep also runs on start so orders that expired during downtime are
// released right away.
func PeriodicJobs(s Schedule) []*river.PeriodicJob {
	var jobs []*river.PeriodicJob
	if s.ExpirationSweep > 0 {
		jobs = append(jobs, river.NewPeriodicJob(
			river.PeriodicInterval(s.ExpirationSweep),
			expirationSweepJob(s.ExpirationSweep),
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}
	if s.InventoryReport > 0 {
		jobs = append(jobs, river.NewPeriodicJob(
			river.PeriodicInterval(s.InventoryReport),
			func() (river.JobArgs, *river.InsertOpts) {
				return InventoryReportArgs{}, nil
			},
			nil,
		))
	}
	if s.NotificationCleanup > 0 {
		jobs = append(jobs, river.NewPeriodicJob(
			river.PeriodicInterval(s.NotificationCleanup),
			func() (river.JobArgs, *river.InsertOpts) {
				return NotificationCleanupArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}
	return jobs
}

// expirationSweepJob inserts sweeps unique per interval, so a sweep interval
// shorter than the default window still runs every tick.
func expirationSweepJob(interval time.Duration) river.PeriodicJobConstructor {
	return func() (river.JobArgs, *river.InsertOpts) {
		opts := ExpirationSweepInsertOpts(interval)
		return ExpirationSweepArgs{}, &opts
	}
}
