package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Resetter is the part of the Ledger the scheduler drives.
type Resetter interface {
	ResetDaily(ctx context.Context) (int, error)
	ResetMonthly(ctx context.Context) (int, error)
}

// SchedulerOptions configures a Scheduler. Location should match the
// ledger's so both agree on where a day begins.
type SchedulerOptions struct {
	Clock    clockwork.Clock
	Location *time.Location
	Logger   *slog.Logger
}

// Scheduler fires ResetDaily at every local midnight and ResetMonthly at
// midnight on the first of each month. A failed tick is logged and left to
// the next one; resets are absolute so nothing compounds.
type Scheduler struct {
	resetter Resetter
	clock    clockwork.Clock
	loc      *time.Location
	logger   *slog.Logger
}

func NewScheduler(r Resetter, opts SchedulerOptions) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		resetter: r,
		clock:    opts.Clock,
		loc:      opts.Location,
		logger:   opts.Logger.With("component", "quota-scheduler"),
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		now := s.clock.Now().In(s.loc)
		next := NextMidnight(now)
		s.logger.Debug("next quota reset scheduled", "at", next)

		timer := s.clock.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.Chan():
		}

		s.Tick(ctx)
	}
}

// Tick runs the resets due at the current instant: always daily, and
// monthly when the local date is the first.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now().In(s.loc)
	if now.Day() == 1 {
		if _, err := s.resetter.ResetMonthly(ctx); err != nil {
			s.logger.Error("monthly reset tick failed", "error", err)
		}
	}
	if _, err := s.resetter.ResetDaily(ctx); err != nil {
		s.logger.Error("daily reset tick failed", "error", err)
	}
}

// NextMidnight returns the first local midnight strictly after t.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
