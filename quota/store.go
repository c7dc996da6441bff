package quota

import "context"

// Store persists quota records. Consume must be linearizable per account:
// both counters are charged or neither is.
type Store interface {
	// Get returns the stored record, or ErrNotInitialized.
	Get(ctx context.Context, accountID string) (Record, error)
	// Consume charges amount against both windows as seen from w. It
	// returns the resulting record and whether the charge was applied.
	Consume(ctx context.Context, accountID string, amount int64, w Window) (Record, bool, error)
	// SetLimits writes limits, creating the record if needed. Used counters
	// are kept, clamped to the new limits.
	SetLimits(ctx context.Context, accountID string, limits Limits, w Window) (Record, error)
	// ResetDaily zeroes every daily counter and stamps day. It returns the
	// number of records touched.
	ResetDaily(ctx context.Context, day string) (int, error)
	// ResetMonthly zeroes every monthly counter and stamps month.
	ResetMonthly(ctx context.Context, month string) (int, error)
}
