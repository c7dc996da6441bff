package cursor

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/examcore/internal/coord"
	"github.com/redis/go-redis/v9"
)

// KEYS[1]=ids list, KEYS[2]=position; ARGV[1]=ttl ms
// Returns {-1} missing, {0, pos, len} exhausted, {1, pos, len, id} delivered.
const nextScript = `
local pos = redis.call("GET", KEYS[2])
if not pos then
  return {-1}
end
local n = redis.call("LLEN", KEYS[1])
if n == 0 then
  return {-1}
end
pos = tonumber(pos)
redis.call("PEXPIRE", KEYS[1], ARGV[1])
redis.call("PEXPIRE", KEYS[2], ARGV[1])
if pos >= n then
  return {0, n, n}
end
local id = redis.call("LINDEX", KEYS[1], pos)
redis.call("INCR", KEYS[2])
return {1, pos, n, tonumber(id)}
`

var nextLua = redis.NewScript(nextScript)

// KEYS[1]=ids list, KEYS[2]=position; ARGV[1]=ttl ms
const rewindScript = `
if redis.call("EXISTS", KEYS[2]) == 0 or redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("SET", KEYS[2], 0, "PX", ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return 1
`

var rewindLua = redis.NewScript(rewindScript)

// Next returns the id at the current position and advances it. A store
// failure returns an ErrUnavailable-wrapped error and the position is left
// where the script left it; the caller may retry, and no index is guessed.
func (c *Cursor) Next(ctx context.Context, k Key) (Delivery, error) {
	if err := k.validate(); err != nil {
		return Delivery{}, err
	}

	d, err := c.next(ctx, k)
	switch {
	case errors.Is(err, ErrNotFound):
		c.metrics.Delivered("not_found")
	case err != nil:
		c.metrics.Delivered("error")
		c.logger.Warn("cursor advance failed", "account_id", k.AccountID, "filter", k.FilterKey(), "error", err)
	case d.Exhausted:
		c.metrics.Delivered("exhausted")
	default:
		c.metrics.Delivered("delivered")
	}
	return d, err
}

func (c *Cursor) next(ctx context.Context, k Key) (Delivery, error) {
	ctx, cancel := coord.WithTimeout(ctx, c.timeout)
	defer cancel()

	vals, err := nextLua.Run(ctx, c.redis,
		[]string{c.idsKey(k), c.posKey(k)},
		strconv.FormatInt(c.ttl.Milliseconds(), 10),
	).Int64Slice()
	if err != nil {
		return Delivery{}, coord.Unavailable(err)
	}

	switch {
	case len(vals) == 1 && vals[0] == -1:
		return Delivery{}, ErrNotFound
	case len(vals) == 3 && vals[0] == 0:
		return Delivery{Exhausted: true, Position: int(vals[1]), Total: int(vals[2])}, nil
	case len(vals) == 4 && vals[0] == 1:
		return Delivery{QuestionID: vals[3], Position: int(vals[1]), Total: int(vals[2])}, nil
	default:
		return Delivery{}, fmt.Errorf("cursor: unexpected next reply %v", vals)
	}
}

// Rewind moves the position back to zero without touching the order. The
// same sequence is replayed from the start.
func (c *Cursor) Rewind(ctx context.Context, k Key) error {
	if err := k.validate(); err != nil {
		return err
	}

	ctx, cancel := coord.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := rewindLua.Run(ctx, c.redis,
		[]string{c.idsKey(k), c.posKey(k)},
		strconv.FormatInt(c.ttl.Milliseconds(), 10),
	).Int64()
	if err != nil {
		return coord.Unavailable(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
