package examcore

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/examcore/cursor"
	"github.com/MrEthical07/examcore/exam"
	"github.com/MrEthical07/examcore/internal/coord"
	"github.com/MrEthical07/examcore/internal/rate"
	"github.com/MrEthical07/examcore/quota"
)

var (
	// ErrAuthentication is returned for invalid, expired or superseded tokens.
	ErrAuthentication = errors.New("authentication failed")
	// ErrQuotaExceeded is returned when a charge would cross a daily or monthly limit.
	ErrQuotaExceeded = quota.ErrQuotaExceeded
	// ErrQuotaNotInitialized is returned when an account has no quota record yet.
	ErrQuotaNotInitialized = quota.ErrNotInitialized
	// ErrContentExhausted marks a delivery cursor with nothing left. NextQuestion
	// reports exhaustion as a result; see ExhaustedErr.
	ErrContentExhausted = errors.New("content exhausted")
	// ErrInsufficientPool marks an exam bucket the catalog could not fill. StartExam
	// reports shortfalls as a result; see ShortfallErr.
	ErrInsufficientPool = errors.New("insufficient question pool")
	// ErrValidation is returned for malformed configuration or score mismatches.
	ErrValidation = exam.ErrValidation
	// ErrStoreUnavailable marks a transient coordination store fault.
	ErrStoreUnavailable = coord.ErrUnavailable
	// ErrCursorNotFound is returned when no delivery cursor is active.
	ErrCursorNotFound = cursor.ErrNotFound
	// ErrBlueprintNotFound is returned when no frozen exam paper exists.
	ErrBlueprintNotFound = exam.ErrBlueprintNotFound
	// ErrLoginRateLimited is returned when an account logs in more often than
	// Session.LoginLimit allows within one window.
	ErrLoginRateLimited = rate.ErrRateLimited
	// ErrEngineNotReady is returned by methods on an Engine that was not built.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidAccount is returned for an empty account id.
	ErrInvalidAccount = errors.New("invalid account id")
)

// ExhaustedErr converts an exhausted delivery into ErrContentExhausted for
// callers that surface it as an error. It returns nil otherwise.
func ExhaustedErr(d cursor.Delivery) error {
	if !d.Exhausted {
		return nil
	}
	return fmt.Errorf("%w: %d of %d delivered", ErrContentExhausted, d.Position, d.Total)
}

// ShortfallErr converts an under-filled paper into ErrInsufficientPool. It
// returns nil for complete papers.
func ShortfallErr(bp *exam.Blueprint) error {
	if bp == nil || bp.Complete() {
		return nil
	}
	s := bp.Shortfalls[0]
	return fmt.Errorf("%w: %d bucket(s) short, first %s/%s drew %d of %d",
		ErrInsufficientPool, len(bp.Shortfalls), s.Type, s.Difficulty, s.Drawn, s.Requested)
}
