// Package schedule runs periodic jobs, such as settings refreshes, on a
// cron expression or a fixed interval.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// jobTimeout bounds a single run. A BLE command with the default retry
// budget finishes well inside it.
const jobTimeout = 2 * time.Minute

// Poller runs named jobs. A job that is still running when its next tick
// arrives is skipped for that tick.
type Poller struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// NewPoller creates a stopped Poller. A nil logger uses slog.Default().
func NewPoller(logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// Add schedules fn under name. spec is a five-field cron expression, a
// descriptor such as "@hourly", or a Go duration like "30m".
func (p *Poller) Add(name, spec string, fn func(ctx context.Context) error) error {
	sched, err := ParseSchedule(spec)
	if err != nil {
		return fmt.Errorf("schedule: job %q: %w", name, err)
	}

	p.cron.Schedule(sched, cron.FuncJob(func() {
		p.mu.Lock()
		ctx := p.ctx
		p.mu.Unlock()
		if ctx == nil {
			return
		}

		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()

		start := time.Now()
		if err := fn(jobCtx); err != nil {
			p.logger.Warn("[POLL] job failed", "job", name, "error", err, "duration", time.Since(start))
			return
		}
		p.logger.Debug("[POLL] job done", "job", name, "duration", time.Since(start))
	}))

	p.logger.Info("[POLL] job scheduled", "job", name, "schedule", spec)
	return nil
}

// Start begins running jobs until ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.cron.Start()
	p.started = true
}

// Stop halts scheduling and waits for running jobs to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.started = false
	p.mu.Unlock()

	<-p.cron.Stop().Done()
}

// ParseSchedule accepts a cron expression first and falls back to a
// positive duration.
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(spec); err == nil {
		return sched, nil
	}

	d, err := time.ParseDuration(spec)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", spec)
	}
	if d <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", spec)
	}
	return constantDelay(d), nil
}

// constantDelay fires every d. cron.Every rounds to whole seconds; this
// does not.
type constantDelay time.Duration

func (d constantDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}
