// Package scheduler runs periodic background work (snapshot creation and
// retention passes) for the lifetime of the process.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/kebairia/budgetease/internal/logger"
)

// DefaultInterval is used when a loop has neither an interval nor a schedule.
const DefaultInterval = 24 * time.Hour

// Action is one unit of periodic work.
type Action func(ctx context.Context) error

// Loop repeatedly runs an Action: an initial warm-up, then action → sleep
// forever. It implements suture.Service.
type Loop struct {
	name     string
	action   Action
	warmup   time.Duration
	interval time.Duration
	schedule cron.Schedule
	timeout  time.Duration
	now      func() time.Time
	log      logger.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithWarmup delays the first run.
func WithWarmup(d time.Duration) LoopOption {
	return func(l *Loop) { l.warmup = d }
}

// WithInterval sets the fixed sleep between runs.
func WithInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithSchedule makes the loop sleep until the schedule's next activation
// instead of a fixed interval.
func WithSchedule(s cron.Schedule) LoopOption {
	return func(l *Loop) { l.schedule = s }
}

// WithTimeout bounds each run. Zero means no limit.
func WithTimeout(d time.Duration) LoopOption {
	return func(l *Loop) { l.timeout = d }
}

// WithLogger sets the loop logger.
func WithLogger(log logger.Logger) LoopOption {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoop returns a loop that runs action every DefaultInterval unless
// configured otherwise.
func NewLoop(name string, action Action, opts ...LoopOption) *Loop {
	l := &Loop{
		name:     name,
		action:   action,
		interval: DefaultInterval,
		now:      time.Now,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// String names the loop in supervisor events.
func (l *Loop) String() string { return l.name }

// Serve runs until ctx is cancelled and then returns ctx.Err(). A failing or
// panicking action is logged and the next run happens on the usual cadence.
func (l *Loop) Serve(ctx context.Context) error {
	l.log.Info("loop started", "loop", l.name, "warmup", l.warmup.String())

	if err := sleep(ctx, l.warmup); err != nil {
		l.log.Info("loop stopped", "loop", l.name)
		return err
	}

	for {
		l.runOnce(ctx)

		wait := l.next()
		l.log.Debug("loop sleeping", "loop", l.name, "next_run", l.now().Add(wait).Format(time.RFC3339))
		if err := sleep(ctx, wait); err != nil {
			l.log.Info("loop stopped", "loop", l.name)
			return err
		}
	}
}

func (l *Loop) runOnce(ctx context.Context) {
	log := l.log.With("loop", l.name, "run_id", uuid.NewString())

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("loop run panicked", "panic", fmt.Sprint(r))
		}
	}()

	start := time.Now()
	if err := l.action(ctx); err != nil {
		log.Error("loop run failed", "error", err.Error(), "duration", time.Since(start).String())
		return
	}
	log.Debug("loop run completed", "duration", time.Since(start).String())
}

// next returns how long to sleep before the following run. A schedule that
// has no future activation falls back to the interval.
func (l *Loop) next() time.Duration {
	if l.schedule == nil {
		return l.interval
	}
	now := l.now()
	at := l.schedule.Next(now)
	if at.IsZero() {
		l.log.Warn("schedule never fires, using interval", "loop", l.name, "interval", l.interval.String())
		return l.interval
	}
	return at.Sub(now)
}

// sleep blocks for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
