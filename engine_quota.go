package examcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/examcore/quota"
)

// ErrNoGenerator is returned by Generate when the engine was built without
// WithGenerator.
var ErrNoGenerator = errors.New("no generator configured")

// HasQuota reports whether the account may spend at least one unit in both
// the daily and monthly windows. Accounts without a quota record have none.
func (e *Engine) HasQuota(ctx context.Context, accountID string) (bool, error) {
	if e == nil || e.ledger == nil {
		return false, ErrEngineNotReady
	}
	if accountID == "" {
		return false, ErrInvalidAccount
	}
	return e.ledger.HasQuota(ctx, accountID)
}

// Consume describes the consume operation and its observable behavior.
//
// Consume charges amount against the daily and monthly counters as one atomic
// step: both are incremented or neither is. A charge that would cross either
// limit returns ErrQuotaExceeded and the current record. A store fault charges
// nothing.
func (e *Engine) Consume(ctx context.Context, accountID string, amount int64) (quota.Record, error) {
	if e == nil || e.ledger == nil {
		return quota.Record{}, ErrEngineNotReady
	}
	if accountID == "" {
		return quota.Record{}, ErrInvalidAccount
	}
	return e.ledger.Consume(ctx, accountID, amount)
}

// Usage returns the account's counters as seen from the current window.
func (e *Engine) Usage(ctx context.Context, accountID string) (quota.Record, error) {
	if e == nil || e.ledger == nil {
		return quota.Record{}, ErrEngineNotReady
	}
	if accountID == "" {
		return quota.Record{}, ErrInvalidAccount
	}
	return e.ledger.Usage(ctx, accountID)
}

// InitializeQuota derives limits from the account's membership level. Call it
// after registration and on every level change.
func (e *Engine) InitializeQuota(ctx context.Context, accountID string) (quota.Record, error) {
	if e == nil || e.ledger == nil {
		return quota.Record{}, ErrEngineNotReady
	}
	if accountID == "" {
		return quota.Record{}, ErrInvalidAccount
	}
	return e.ledger.InitializeQuota(ctx, accountID)
}

// ResetDaily zeroes every account's daily counter. It is idempotent.
func (e *Engine) ResetDaily(ctx context.Context) (int, error) {
	if e == nil || e.ledger == nil {
		return 0, ErrEngineNotReady
	}
	return e.ledger.ResetDaily(ctx)
}

// ResetMonthly zeroes every account's monthly counter. It is idempotent.
func (e *Engine) ResetMonthly(ctx context.Context) (int, error) {
	if e == nil || e.ledger == nil {
		return 0, ErrEngineNotReady
	}
	return e.ledger.ResetMonthly(ctx)
}

// Generate charges the configured generation cost and then streams the
// generator's output. A rejected charge never reaches the generator.
func (e *Engine) Generate(ctx context.Context, accountID, prompt string) (<-chan string, error) {
	if e == nil || e.ledger == nil {
		return nil, ErrEngineNotReady
	}
	if e.generator == nil {
		return nil, ErrNoGenerator
	}
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	return e.generator.Generate(ctx, accountID, prompt)
}

// Scheduler returns a reset scheduler bound to this engine's ledger, clock
// and timezone. Run it in one background goroutine per deployment.
func (e *Engine) Scheduler() *quota.Scheduler {
	if e == nil || e.ledger == nil {
		return nil
	}
	return quota.NewScheduler(e.ledger, quota.SchedulerOptions{
		Clock:    e.clock,
		Location: e.location,
		Logger:   e.logger,
	})
}
