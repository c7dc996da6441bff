package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/examcore/internal/coord"
	"github.com/redis/go-redis/v9"
)

const (
	fieldDailyLimit   = "dl"
	fieldUsedDaily    = "ud"
	fieldMonthlyLimit = "ml"
	fieldUsedMonthly  = "um"
	fieldResetDate    = "rd"
	fieldResetMonth   = "rm"

	resetScanBatch = 500
)

// KEYS[1]=quota hash
// ARGV[1]=amount, ARGV[2]=day, ARGV[3]=month
// Returns {applied(-1 missing,0 rejected,1 applied), dl, ud, ml, um}.
const consumeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {-1, 0, 0, 0, 0}
end
local v = redis.call("HMGET", KEYS[1], "dl", "ud", "ml", "um", "rd", "rm")
local dl = tonumber(v[1]) or 0
local ud = tonumber(v[2]) or 0
local ml = tonumber(v[3]) or 0
local um = tonumber(v[4]) or 0
local rd = v[5]
local rm = v[6]
if not rd or rd < ARGV[2] then
  ud = 0
  rd = ARGV[2]
end
if not rm or rm < ARGV[3] then
  um = 0
  rm = ARGV[3]
end
local amt = tonumber(ARGV[1])
if amt > dl - ud or amt > ml - um then
  return {0, dl, ud, ml, um}
end
ud = ud + amt
um = um + amt
redis.call("HSET", KEYS[1], "ud", ud, "um", um, "rd", rd, "rm", rm)
return {1, dl, ud, ml, um}
`

var consumeLua = redis.NewScript(consumeScript)

// KEYS[1]=quota hash
// ARGV[1]=daily limit, ARGV[2]=monthly limit, ARGV[3]=day, ARGV[4]=month
const setLimitsScript = `
local v = redis.call("HMGET", KEYS[1], "ud", "um", "rd", "rm")
local ud = tonumber(v[1]) or 0
local um = tonumber(v[2]) or 0
local rd = v[3]
local rm = v[4]
if not rd or rd < ARGV[3] then
  ud = 0
  rd = ARGV[3]
end
if not rm or rm < ARGV[4] then
  um = 0
  rm = ARGV[4]
end
local dl = tonumber(ARGV[1])
local ml = tonumber(ARGV[2])
if ud > dl then ud = dl end
if um > ml then um = ml end
redis.call("HSET", KEYS[1], "dl", dl, "ud", ud, "ml", ml, "um", um, "rd", rd, "rm", rm)
return {dl, ud, ml, um}
`

var setLimitsLua = redis.NewScript(setLimitsScript)

// KEYS[1]=quota hash; ARGV[1]=counter field, ARGV[2]=stamp field, ARGV[3]=stamp
const resetScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], ARGV[1], 0, ARGV[2], ARGV[3])
return 1
`

var resetLua = redis.NewScript(resetScript)

// RedisStore keeps one hash per account plus an index set of every
// initialised account for the batch resets.
type RedisStore struct {
	redis   redis.UniversalClient
	prefix  string
	timeout time.Duration
	retry   coord.RetryPolicy
}

// NewRedisStore creates a [RedisStore]. prefix defaults to "eq".
func NewRedisStore(client redis.UniversalClient, prefix string, timeout time.Duration, retry coord.RetryPolicy) *RedisStore {
	if prefix == "" {
		prefix = "eq"
	}
	return &RedisStore{
		redis:   client,
		prefix:  prefix,
		timeout: timeout,
		retry:   retry,
	}
}

func (s *RedisStore) key(accountID string) string {
	return s.prefix + ":{" + accountID + "}"
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":accounts"
}

// Get is retried on transient faults.
func (s *RedisStore) Get(ctx context.Context, accountID string) (Record, error) {
	return coord.Retry(ctx, s.retry, func(ctx context.Context) (Record, error) {
		ctx, cancel := coord.WithTimeout(ctx, s.timeout)
		defer cancel()

		fields, err := s.redis.HGetAll(ctx, s.key(accountID)).Result()
		if err != nil {
			return Record{}, coord.Unavailable(err)
		}
		if len(fields) == 0 {
			return Record{}, ErrNotInitialized
		}
		return decodeRecord(accountID, fields)
	})
}

// Consume runs the check-and-increment script once. It is never retried:
// a timeout leaves the outcome unknown to this caller, and the caller
// reports a failed charge.
func (s *RedisStore) Consume(ctx context.Context, accountID string, amount int64, w Window) (Record, bool, error) {
	ctx, cancel := coord.WithTimeout(ctx, s.timeout)
	defer cancel()

	vals, err := consumeLua.Run(ctx, s.redis,
		[]string{s.key(accountID)},
		amount, w.Day, w.Month,
	).Int64Slice()
	if err != nil {
		return Record{}, false, coord.Unavailable(err)
	}
	if len(vals) != 5 {
		return Record{}, false, fmt.Errorf("quota consume: unexpected reply length %d", len(vals))
	}
	if vals[0] < 0 {
		return Record{}, false, ErrNotInitialized
	}

	rec := Record{
		AccountID:      accountID,
		DailyLimit:     vals[1],
		UsedDaily:      vals[2],
		MonthlyLimit:   vals[3],
		UsedMonthly:    vals[4],
		LastResetDate:  w.Day,
		LastResetMonth: w.Month,
	}
	return rec, vals[0] == 1, nil
}

func (s *RedisStore) SetLimits(ctx context.Context, accountID string, limits Limits, w Window) (Record, error) {
	ctx, cancel := coord.WithTimeout(ctx, s.timeout)
	defer cancel()

	vals, err := setLimitsLua.Run(ctx, s.redis,
		[]string{s.key(accountID)},
		limits.Daily, limits.Monthly, w.Day, w.Month,
	).Int64Slice()
	if err != nil {
		return Record{}, coord.Unavailable(err)
	}
	if len(vals) != 4 {
		return Record{}, fmt.Errorf("quota set limits: unexpected reply length %d", len(vals))
	}

	// The index lives in another slot; it only drives resets, and a reset
	// of an unindexed record is covered by lazy roll-over.
	if err := s.redis.SAdd(ctx, s.indexKey(), accountID).Err(); err != nil {
		return Record{}, coord.Unavailable(err)
	}

	return Record{
		AccountID:      accountID,
		DailyLimit:     vals[0],
		UsedDaily:      vals[1],
		MonthlyLimit:   vals[2],
		UsedMonthly:    vals[3],
		LastResetDate:  w.Day,
		LastResetMonth: w.Month,
	}, nil
}

func (s *RedisStore) ResetDaily(ctx context.Context, day string) (int, error) {
	return s.resetAll(ctx, fieldUsedDaily, fieldResetDate, day)
}

func (s *RedisStore) ResetMonthly(ctx context.Context, month string) (int, error) {
	return s.resetAll(ctx, fieldUsedMonthly, fieldResetMonth, month)
}

// resetAll walks the index with SSCAN and pipelines one guarded reset per
// account. The scan has no per-call timeout; each batch does.
func (s *RedisStore) resetAll(ctx context.Context, counterField, stampField, stamp string) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		batchCtx, cancel := coord.WithTimeout(ctx, s.timeout)
		ids, next, err := s.redis.SScan(batchCtx, s.indexKey(), cursor, "", resetScanBatch).Result()
		if err != nil {
			cancel()
			return total, coord.Unavailable(err)
		}

		if len(ids) > 0 {
			n, err := s.resetBatch(batchCtx, ids, counterField, stampField, stamp)
			total += n
			if err != nil {
				cancel()
				return total, err
			}
		}
		cancel()

		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

func (s *RedisStore) resetBatch(ctx context.Context, ids []string, counterField, stampField, stamp string) (int, error) {
	pipe := s.redis.Pipeline()
	cmds := make([]*redis.Cmd, 0, len(ids))
	for _, id := range ids {
		cmds = append(cmds, resetLua.Eval(ctx, pipe, []string{s.key(id)}, counterField, stampField, stamp))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, coord.Unavailable(err)
	}

	n := 0
	for _, cmd := range cmds {
		if v, err := cmd.Int64(); err == nil && v == 1 {
			n++
		}
	}
	return n, nil
}

func decodeRecord(accountID string, fields map[string]string) (Record, error) {
	rec := Record{
		AccountID:      accountID,
		LastResetDate:  fields[fieldResetDate],
		LastResetMonth: fields[fieldResetMonth],
	}
	for name, dst := range map[string]*int64{
		fieldDailyLimit:   &rec.DailyLimit,
		fieldUsedDaily:    &rec.UsedDaily,
		fieldMonthlyLimit: &rec.MonthlyLimit,
		fieldUsedMonthly:  &rec.UsedMonthly,
	} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("quota record %s: field %s: %w", accountID, name, err)
		}
		*dst = v
	}
	return rec, nil
}
