package coord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable marks a transient coordination store fault: network error,
// timeout, or open circuit breaker.
var ErrUnavailable = errors.New("coordination store unavailable")

// Unavailable wraps err with ErrUnavailable. nil and redis.Nil pass through
// untouched so callers can keep matching on them.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// IsUnavailable reports whether err is a transient store fault.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// WithTimeout bounds a single store call. A non-positive d leaves ctx as is.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
