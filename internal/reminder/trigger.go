package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/sapliy/rental-ecosystem/pkg/observability"
)

// DefaultInterval is how often the trigger runs a scan.
const DefaultInterval = time.Hour

// Runner performs one scan as of a timestamp.
type Runner interface {
	Run(ctx context.Context, asOf time.Time) (Report, error)
}

// Trigger runs a Runner on a fixed interval until its context ends.
type Trigger struct {
	runner   Runner
	interval time.Duration
	now      func() time.Time
	logger   *observability.Logger

	mu      sync.Mutex
	lastRun time.Time
	last    Report
	running bool
}

func NewTrigger(runner Runner, interval time.Duration, logger *observability.Logger) *Trigger {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Trigger{runner: runner, interval: interval, now: time.Now, logger: logger}
}

// Start runs one scan immediately, then one per interval. It blocks until ctx is done.
func (t *Trigger) Start(ctx context.Context) {
	t.fire(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.fire(ctx)
		}
	}
}

// fire skips a tick while the previous scan is still in flight.
func (t *Trigger) fire(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		t.logger.Warn("Previous reminder scan still running, skipping tick")
		return
	}
	t.running = true
	t.mu.Unlock()

	now := t.now()
	report, err := t.runner.Run(ctx, now)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	if err != nil {
		t.logger.Error("Reminder scan failed", "error", err)
		return
	}
	t.lastRun = now
	t.last = report
}

// LastRun returns the time and report of the last successful scan.
func (t *Trigger) LastRun() (time.Time, Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRun, t.last
}

// NextRun estimates when the next scan starts.
func (t *Trigger) NextRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastRun.IsZero() {
		return t.now()
	}
	return t.lastRun.Add(t.interval)
}
