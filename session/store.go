package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/examcore/internal/coord"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any store fault. Callers must fail closed on it.
var ErrRedisUnavailable = coord.ErrUnavailable

const (
	checkStatusNoSession       int64 = 0
	checkStatusValid           int64 = 1
	checkStatusSuperseded      int64 = 2
	checkStatusMetadataMissing int64 = 3
)

// KEYS[1]=current pointer, KEYS[2]=new metadata key
// ARGV[1]=token id, ARGV[2]=encoded entry, ARGV[3]=ttl ms, ARGV[4]=metadata key prefix
const supersedeScript = `
local prev = redis.call("GET", KEYS[1])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
if prev and prev ~= ARGV[1] then
  redis.call("DEL", ARGV[4] .. prev)
  return prev
end
return ""
`

var supersedeLua = redis.NewScript(supersedeScript)

// KEYS[1]=current pointer, KEYS[2]=metadata key; ARGV[1]=token id
const checkScript = `
local cur = redis.call("GET", KEYS[1])
if not cur then
  return 0
end
if cur ~= ARGV[1] then
  return 2
end
if redis.call("EXISTS", KEYS[2]) == 0 then
  return 3
end
return 1
`

var checkLua = redis.NewScript(checkScript)

// KEYS[1]=current pointer, KEYS[2]=metadata key; ARGV[1]=token id
const revokeScript = `
redis.call("DEL", KEYS[2])
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`

var revokeLua = redis.NewScript(revokeScript)

// KEYS[1]=current pointer; ARGV[1]=metadata key prefix
const revokeAllScript = `
local cur = redis.call("GET", KEYS[1])
if not cur then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("DEL", ARGV[1] .. cur)
return 1
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// Store is the Redis-backed login registry.
type Store struct {
	redis   redis.UniversalClient
	prefix  string
	timeout time.Duration
	retry   coord.RetryPolicy
}

// NewStore creates a registry [Store]. prefix namespaces the keys; timeout
// bounds each Redis call; retry applies to read-only checks only.
func NewStore(client redis.UniversalClient, prefix string, timeout time.Duration, retry coord.RetryPolicy) *Store {
	if prefix == "" {
		prefix = "es"
	}
	return &Store{
		redis:   client,
		prefix:  prefix,
		timeout: timeout,
		retry:   retry,
	}
}

func (s *Store) currentKey(accountID string) string {
	return s.prefix + ":{" + accountID + "}:current"
}

func (s *Store) tokenPrefix(accountID string) string {
	return s.prefix + ":{" + accountID + "}:tok:"
}

func (s *Store) tokenKey(accountID, tokenID string) string {
	return s.tokenPrefix(accountID) + tokenID
}

// Supersede makes e the account's only valid token and returns the id of
// the token it replaced ("" if none).
//
//	Performance: 1 script, 3–4 Redis commands.
func (s *Store) Supersede(ctx context.Context, e *Entry, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("session ttl must be positive")
	}
	data, err := Encode(e)
	if err != nil {
		return "", err
	}

	ctx, cancel := coord.WithTimeout(ctx, s.timeout)
	defer cancel()

	prev, err := supersedeLua.Run(ctx, s.redis,
		[]string{s.currentKey(e.AccountID), s.tokenKey(e.AccountID, e.TokenID)},
		e.TokenID,
		data,
		strconv.FormatInt(ttl.Milliseconds(), 10),
		s.tokenPrefix(e.AccountID),
	).Text()
	if err != nil {
		return "", coord.Unavailable(err)
	}
	return prev, nil
}

// Check reports whether tokenID is the account's current token and its
// metadata still exists. Any store error is returned; the caller treats it
// as unauthenticated.
func (s *Store) Check(ctx context.Context, accountID, tokenID string) (Status, error) {
	return coord.Retry(ctx, s.retry, func(ctx context.Context) (Status, error) {
		ctx, cancel := coord.WithTimeout(ctx, s.timeout)
		defer cancel()

		code, err := checkLua.Run(ctx, s.redis,
			[]string{s.currentKey(accountID), s.tokenKey(accountID, tokenID)},
			tokenID,
		).Int64()
		if err != nil {
			return 0, coord.Unavailable(err)
		}

		switch code {
		case checkStatusValid:
			return StatusValid, nil
		case checkStatusSuperseded:
			return StatusSuperseded, nil
		case checkStatusMetadataMissing:
			return StatusMetadataMissing, nil
		case checkStatusNoSession:
			return StatusNoSession, nil
		default:
			return 0, fmt.Errorf("unexpected check status %d", code)
		}
	})
}

// Revoke deletes tokenID's metadata and clears the current pointer only if
// it still names tokenID, so a late logout cannot end a newer session.
// It reports whether the pointer was cleared.
func (s *Store) Revoke(ctx context.Context, accountID, tokenID string) (bool, error) {
	ctx, cancel := coord.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := revokeLua.Run(ctx, s.redis,
		[]string{s.currentKey(accountID), s.tokenKey(accountID, tokenID)},
		tokenID,
	).Int64()
	if err != nil {
		return false, coord.Unavailable(err)
	}
	return n == 1, nil
}

// RevokeAll deletes the account's current pointer and its metadata. It is
// idempotent and reports whether a session existed.
func (s *Store) RevokeAll(ctx context.Context, accountID string) (bool, error) {
	ctx, cancel := coord.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := revokeAllLua.Run(ctx, s.redis,
		[]string{s.currentKey(accountID)},
		s.tokenPrefix(accountID),
	).Int64()
	if err != nil {
		return false, coord.Unavailable(err)
	}
	return n == 1, nil
}

// Current returns the account's current entry, or redis.Nil when there is
// none.
func (s *Store) Current(ctx context.Context, accountID string) (*Entry, error) {
	return coord.Retry(ctx, s.retry, func(ctx context.Context) (*Entry, error) {
		ctx, cancel := coord.WithTimeout(ctx, s.timeout)
		defer cancel()

		tokenID, err := s.redis.Get(ctx, s.currentKey(accountID)).Result()
		if err != nil {
			return nil, coord.Unavailable(err)
		}

		data, err := s.redis.Get(ctx, s.tokenKey(accountID, tokenID)).Bytes()
		if err != nil {
			return nil, coord.Unavailable(err)
		}

		return Decode(data)
	})
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := coord.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), coord.Unavailable(err)
	}
	return time.Since(start), nil
}
