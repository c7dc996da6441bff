package rate

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/examcore/internal/coord"
	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned once an account exceeds its budget for the
// current window.
var ErrRateLimited = errors.New("rate limited")

// Config holds limiter tuning parameters. A Limit of zero disables the
// limiter.
type Config struct {
	Prefix           string
	Limit            int
	Window           time.Duration
	OperationTimeout time.Duration
}

// Limiter enforces a per-account budget using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

const hitScript = `
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`

var hitLua = redis.NewScript(hitScript)

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) key(accountID string) string {
	return l.config.Prefix + ":{" + accountID + "}:logins"
}

// Allow records one hit for accountID and reports ErrRateLimited when the
// window's budget is exhausted. Store faults are returned wrapped in
// coord.ErrUnavailable; the caller decides whether to fail open.
func (l *Limiter) Allow(ctx context.Context, accountID string) error {
	if l == nil || l.config.Limit <= 0 {
		return nil
	}

	ctx, cancel := coord.WithTimeout(ctx, l.config.OperationTimeout)
	defer cancel()

	count, err := hitLua.Run(ctx, l.redis, []string{l.key(accountID)}, l.config.Window.Milliseconds()).Int64()
	if err != nil {
		return coord.Unavailable(err)
	}
	if count > int64(l.config.Limit) {
		return ErrRateLimited
	}
	return nil
}
