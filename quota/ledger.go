package quota

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/examcore/internal/metrics"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// Options wires a Ledger. Store is required; Levels and Membership are only
// needed by InitializeQuota.
type Options struct {
	Store      Store
	Levels     LevelSource
	Membership MembershipCatalog
	Clock      clockwork.Clock
	Location   *time.Location
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Ledger is the quota entry point used by the engine and the scheduler.
type Ledger struct {
	store      Store
	levels     LevelSource
	membership MembershipCatalog
	clock      clockwork.Clock
	loc        *time.Location
	logger     *slog.Logger
	metrics    *metrics.Metrics

	init singleflight.Group
}

func NewLedger(opts Options) *Ledger {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Ledger{
		store:      opts.Store,
		levels:     opts.Levels,
		membership: opts.Membership,
		clock:      opts.Clock,
		loc:        opts.Location,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
}

// Window returns the current daily/monthly window in the ledger's location.
func (l *Ledger) Window() Window {
	return WindowAt(l.clock.Now().In(l.loc))
}

// HasQuota reports whether the account can spend at least one unit now.
// Accounts without a record have no quota.
func (l *Ledger) HasQuota(ctx context.Context, accountID string) (bool, error) {
	rec, err := l.Usage(ctx, accountID)
	if errors.Is(err, ErrNotInitialized) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.HasQuota(), nil
}

// Usage returns the account's record as seen from the current window.
func (l *Ledger) Usage(ctx context.Context, accountID string) (Record, error) {
	rec, err := l.store.Get(ctx, accountID)
	if err != nil {
		return Record{}, err
	}
	return rec.In(l.Window()), nil
}

// Consume charges amount against both windows atomically. On
// ErrQuotaExceeded or any store error nothing was charged by this call.
func (l *Ledger) Consume(ctx context.Context, accountID string, amount int64) (Record, error) {
	if amount <= 0 {
		return Record{}, ErrInvalidAmount
	}

	rec, applied, err := l.store.Consume(ctx, accountID, amount, l.Window())
	switch {
	case errors.Is(err, ErrNotInitialized):
		l.metrics.Consume("not_initialized")
		return Record{}, err
	case err != nil:
		l.metrics.Consume("error")
		l.logger.Warn("quota consume failed", "account_id", accountID, "amount", amount, "error", err)
		return Record{}, err
	case !applied:
		l.metrics.Consume("exceeded")
		return rec, ErrQuotaExceeded
	}

	l.metrics.Consume("success")
	return rec, nil
}

// ResetDaily zeroes every daily counter. Running it twice in the same day
// leaves the same state as running it once.
func (l *Ledger) ResetDaily(ctx context.Context) (int, error) {
	day := l.Window().Day
	n, err := l.store.ResetDaily(ctx, day)
	l.observeReset("daily", day, n, err)
	return n, err
}

// ResetMonthly zeroes every monthly counter.
func (l *Ledger) ResetMonthly(ctx context.Context) (int, error) {
	month := l.Window().Month
	n, err := l.store.ResetMonthly(ctx, month)
	l.observeReset("monthly", month, n, err)
	return n, err
}

func (l *Ledger) observeReset(windowName, stamp string, n int, err error) {
	if err != nil {
		l.metrics.Reset(windowName, "error")
		l.logger.Error("quota reset failed", "window", windowName, "stamp", stamp, "reset", n, "error", err)
		return
	}
	l.metrics.Reset(windowName, "success")
	l.logger.Info("quota reset", "window", windowName, "stamp", stamp, "reset", n)
}

// InitializeQuota derives the account's limits from its membership level
// and writes them. It is safe to call on every level change; used counters
// survive, clamped to the new limits. Concurrent calls for one account
// share a single lookup and write.
func (l *Ledger) InitializeQuota(ctx context.Context, accountID string) (Record, error) {
	if l.levels == nil || l.membership == nil {
		return Record{}, ErrMembershipNotConfigured
	}

	// The shared call outlives any single caller; each caller still stops
	// waiting when its own ctx ends.
	shared := context.WithoutCancel(ctx)
	ch := l.init.DoChan(accountID, func() (interface{}, error) {
		return l.initialize(shared, accountID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Record{}, res.Err
		}
		return res.Val.(Record), nil
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
}

func (l *Ledger) initialize(ctx context.Context, accountID string) (Record, error) {
	level, err := l.levels.MembershipLevel(ctx, accountID)
	if err != nil {
		return Record{}, err
	}
	limits, err := l.membership.Lookup(ctx, level)
	if err != nil {
		return Record{}, err
	}
	if err := limits.validate(); err != nil {
		return Record{}, err
	}

	rec, err := l.store.SetLimits(ctx, accountID, limits, l.Window())
	if err != nil {
		return Record{}, err
	}
	l.logger.Debug("quota initialized",
		"account_id", accountID,
		"level", level,
		"daily_limit", limits.Daily,
		"monthly_limit", limits.Monthly,
	)
	return rec, nil
}
