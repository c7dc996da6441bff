package quota

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQuotaExceeded is returned when a consume would push either counter
	// past its limit. Nothing is charged.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrNotInitialized is returned for accounts without a quota record.
	ErrNotInitialized = errors.New("quota not initialized")
	// ErrInvalidAmount is returned for non-positive consume amounts.
	ErrInvalidAmount = errors.New("quota amount must be positive")
	// ErrUnknownLevel is returned by a MembershipCatalog for unmapped levels.
	ErrUnknownLevel = errors.New("unknown membership level")
	// ErrMembershipNotConfigured is returned by InitializeQuota on a ledger
	// built without a LevelSource or MembershipCatalog.
	ErrMembershipNotConfigured = errors.New("quota: membership lookup not configured")
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// Record is one account's quota state.
type Record struct {
	AccountID      string
	DailyLimit     int64
	UsedDaily      int64
	MonthlyLimit   int64
	UsedMonthly    int64
	LastResetDate  string
	LastResetMonth string
}

// HasQuota reports whether at least one more unit fits in both windows.
func (r Record) HasQuota() bool {
	return r.UsedDaily < r.DailyLimit && r.UsedMonthly < r.MonthlyLimit
}

// RemainingDaily is the unused part of the daily window.
func (r Record) RemainingDaily() int64 {
	return max(r.DailyLimit-r.UsedDaily, 0)
}

// RemainingMonthly is the unused part of the monthly window.
func (r Record) RemainingMonthly() int64 {
	return max(r.MonthlyLimit-r.UsedMonthly, 0)
}

// In returns the record as seen from w: counters stamped with an earlier
// window read as zero.
func (r Record) In(w Window) Record {
	if r.LastResetDate < w.Day {
		r.UsedDaily = 0
		r.LastResetDate = w.Day
	}
	if r.LastResetMonth < w.Month {
		r.UsedMonthly = 0
		r.LastResetMonth = w.Month
	}
	return r
}

// Limits are the per-window allowances of a membership level.
type Limits struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
}

func (l Limits) validate() error {
	if l.Daily < 0 || l.Monthly < 0 {
		return fmt.Errorf("quota limits must be non-negative: daily=%d monthly=%d", l.Daily, l.Monthly)
	}
	return nil
}

// MembershipCatalog maps a membership level to its limits.
type MembershipCatalog interface {
	Lookup(ctx context.Context, level string) (Limits, error)
}

// StaticMembership is a fixed level table.
type StaticMembership map[string]Limits

func (m StaticMembership) Lookup(_ context.Context, level string) (Limits, error) {
	l, ok := m[level]
	if !ok {
		return Limits{}, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	return l, nil
}

// LevelSource resolves an account's current membership level.
type LevelSource interface {
	MembershipLevel(ctx context.Context, accountID string) (string, error)
}

// LevelSourceFunc adapts a function to LevelSource.
type LevelSourceFunc func(ctx context.Context, accountID string) (string, error)

func (f LevelSourceFunc) MembershipLevel(ctx context.Context, accountID string) (string, error) {
	return f(ctx, accountID)
}

// Window names the daily and monthly buckets a timestamp falls in, as
// "2006-01-02" and "2006-01". Both compare correctly as strings.
type Window struct {
	Day   string
	Month string
}

// WindowAt returns the window containing t in t's location.
func WindowAt(t time.Time) Window {
	return Window{Day: t.Format(dayLayout), Month: t.Format(monthLayout)}
}
