package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/riverqueue/river"

	"kalium.io/kalium/internal/blob"
	"kalium.io/kalium/internal/sweeper"
)

type fakeSweeper struct {
	res   sweeper.Result
	err   error
	calls int
}

func (f *fakeSweeper) Sweep(context.Context) (sweeper.Result, error) {
	f.calls++
	return f.res, f.err
}

type fakeExporter struct {
	err   error
	calls int
}

func (f *fakeExporter) Export(context.Context) (blob.Info, error) {
	f.calls++
	return blob.Info{Key: "inventory/x.json"}, f.err
}

func TestArgsKindsAndUniqueness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     interface{ Kind() string }
		opts     river.InsertOpts
		kind     string
		queue    string
		period   time.Duration
		attempts int
	}{
		{"expiration sweep", ExpirationSweepArgs{}, ExpirationSweepArgs{}.InsertOpts(), "expiration_sweep", QueueLifecycle, time.Hour, 1},
		{"inventory report", InventoryReportArgs{}, InventoryReportArgs{}.InsertOpts(), "inventory_report", river.QueueDefault, 24 * time.Hour, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.args.Kind(); got != tt.kind {
				t.Fatalf("Kind() = %q, want %q", got, tt.kind)
			}
			if tt.opts.Queue != tt.queue {
				t.Fatalf("Queue = %q, want %q", tt.opts.Queue, tt.queue)
			}
			if tt.opts.UniqueOpts.ByPeriod != tt.period {
				t.Fatalf("ByPeriod = %s, want %s", tt.opts.UniqueOpts.ByPeriod, tt.period)
			}
			if tt.opts.MaxAttempts != tt.attempts {
				t.Fatalf("MaxAttempts = %d, want %d", tt.opts.MaxAttempts, tt.attempts)
			}
		})
	}
}

func TestExpirationSweepWorkerWork(t *testing.T) {
	t.Parallel()

	t.Run("runs sweep and tolerates per-order failures", func(t *testing.T) {
		s := &fakeSweeper{res: sweeper.Result{Scanned: 3, Cancelled: 2, Failed: 1}}
		if err := NewExpirationSweepWorker(s).Work(context.Background(), nil); err != nil {
			t.Fatalf("Work() error = %v", err)
		}
		if s.calls != 1 {
			t.Fatalf("Sweep calls = %d, want 1", s.calls)
		}
	})

	t.Run("listing failure fails the job", func(t *testing.T) {
		s := &fakeSweeper{err: errors.New("db down")}
		err := NewExpirationSweepWorker(s).Work(context.Background(), nil)
		if err == nil || !strings.Contains(err.Error(), "db down") {
			t.Fatalf("Work() error = %v, want wrapped sweep error", err)
		}
	})

	t.Run("uninitialized", func(t *testing.T) {
		err := NewExpirationSweepWorker(nil).Work(context.Background(), nil)
		if err == nil || !strings.Contains(err.Error(), "not initialized") {
			t.Fatalf("Work() error = %v, want contains %q", err, "not initialized")
		}
	})
}

func TestInventoryReportWorkerWork(t *testing.T) {
	t.Parallel()

	e := &fakeExporter{}
	w := NewInventoryReportWorker(e)
	if err := w.Work(context.Background(), nil); err != nil {
		t.Fatalf("Work() error = %v", err)
	}
	e.err = errors.New("bucket missing")
	if err := w.Work(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "bucket missing") {
		t.Fatalf("Work() error = %v, want wrapped export error", err)
	}
	if e.calls != 2 {
		t.Fatalf("Export calls = %d, want 2", e.calls)
	}
}

func TestPeriodicJobs(t *testing.T) {
	t.Parallel()

	if got := PeriodicJobs(Schedule{}); len(got) != 0 {
		t.Fatalf("PeriodicJobs(zero) = %d jobs, want 0", len(got))
	}
	got := PeriodicJobs(Schedule{ExpirationSweep: time.Hour, InventoryReport: 24 * time.Hour, NotificationCleanup: 24 * time.Hour})
	if len(got) != 3 {
		t.Fatalf("PeriodicJobs(all) = %d jobs, want 3", len(got))
	}
}

func TestExpirationSweepJob_UniqueWindowFollowsInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		interval time.Duration
		want     time.Duration
	}{
		{"shorter than default", 15 * time.Minute, 15 * time.Minute},
		{"longer than default", 6 * time.Hour, 6 * time.Hour},
		{"unset falls back to default", 0, time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, opts := expirationSweepJob(tt.interval)()
			if _, ok := args.(ExpirationSweepArgs); !ok {
				t.Fatalf("args = %T, want ExpirationSweepArgs", args)
			}
			if opts == nil {
				t.Fatal("opts = nil, want insert options")
			}
			if opts.UniqueOpts.ByPeriod != tt.want {
				t.Fatalf("ByPeriod = %s, want %s", opts.UniqueOpts.ByPeriod, tt.want)
			}
			if opts.Queue != QueueLifecycle || opts.MaxAttempts != 1 {
				t.Fatalf("opts = %+v, want lifecycle queue with one attempt", opts)
			}
		})
	}
}
