package cursor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/MrEthical07/examcore/catalog"
	"github.com/MrEthical07/examcore/internal/coord"
	"github.com/MrEthical07/examcore/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no cursor exists for a key, either because
// Start was never called or because the inactivity TTL expired.
var ErrNotFound = errors.New("delivery cursor not found")

// Mode selects the snapshot order.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeRandom     Mode = "random"
)

func (m Mode) valid() bool {
	return m == ModeSequential || m == ModeRandom
}

// Key identifies one cursor.
type Key struct {
	AccountID string
	Filter    catalog.Filter
	Mode      Mode
}

func (k Key) validate() error {
	if k.AccountID == "" {
		return errors.New("cursor: account id required")
	}
	if !k.Mode.valid() {
		return fmt.Errorf("cursor: unknown mode %q", k.Mode)
	}
	return nil
}

// FilterKey is the stable string form of the filter and mode. Free-text
// fields are length-prefixed so distinct filters never share a key.
func (k Key) FilterKey() string {
	return fmt.Sprintf("s%d|t%d:%s|d%d:%s|%s",
		k.Filter.SubjectID,
		len(k.Filter.Type), k.Filter.Type,
		len(k.Filter.Difficulty), k.Filter.Difficulty,
		k.Mode)
}

// StartResult reports what Start built. NoContent means nothing matched
// after exclusions and no cursor exists.
type StartResult struct {
	NoContent bool
	Total     int
}

// Delivery is the outcome of Next. Exhausted is a normal result, not an
// error.
type Delivery struct {
	QuestionID int64
	Position   int
	Total      int
	Exhausted  bool
}

// Progress is a read-only view of a cursor.
type Progress struct {
	Position int
	Total    int
}

// Remaining is the number of ids not yet delivered.
func (p Progress) Remaining() int {
	return p.Total - p.Position
}

// Options configures a Cursor.
type Options struct {
	Prefix           string
	TTL              time.Duration
	OperationTimeout time.Duration
	Retry            coord.RetryPolicy
	// Rand drives random-mode shuffles. nil uses the global source.
	Rand    *rand.Rand
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Cursor is the Redis-backed delivery cursor.
type Cursor struct {
	redis   redis.UniversalClient
	catalog catalog.Catalog
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	retry   coord.RetryPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics

	randMu sync.Mutex
	rand   *rand.Rand
}

const pushChunk = 1000

func New(client redis.UniversalClient, cat catalog.Catalog, opts Options) *Cursor {
	if opts.Prefix == "" {
		opts.Prefix = "ec"
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cursor{
		redis:   client,
		catalog: cat,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
		timeout: opts.OperationTimeout,
		retry:   opts.Retry,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		rand:    opts.Rand,
	}
}

func (c *Cursor) base(k Key) string {
	return c.prefix + ":{" + k.AccountID + "}:" + k.FilterKey()
}

func (c *Cursor) idsKey(k Key) string { return c.base(k) + ":ids" }
func (c *Cursor) posKey(k Key) string { return c.base(k) + ":pos" }

// Start snapshots the catalog for k, minus excludeIDs, and resets the
// position to zero. An existing cursor for k is replaced.
func (c *Cursor) Start(ctx context.Context, k Key, excludeIDs []int64) (StartResult, error) {
	if err := k.validate(); err != nil {
		return StartResult{}, err
	}

	questions, err := c.catalog.Query(ctx, k.Filter)
	if err != nil {
		return StartResult{}, fmt.Errorf("cursor: catalog query: %w", err)
	}

	ids := snapshot(questions, excludeIDs)
	if len(ids) == 0 {
		if err := c.Discard(ctx, k); err != nil {
			return StartResult{}, err
		}
		c.metrics.Delivered("no_content")
		return StartResult{NoContent: true}, nil
	}

	switch k.Mode {
	case ModeSequential:
		slices.Sort(ids)
	case ModeRandom:
		c.shuffle(ids)
	}

	if err := c.write(ctx, k, ids); err != nil {
		return StartResult{}, err
	}

	c.logger.Debug("delivery cursor started",
		"account_id", k.AccountID,
		"filter", k.FilterKey(),
		"total", len(ids),
		"excluded", len(excludeIDs),
	)
	return StartResult{Total: len(ids)}, nil
}

// Restart is a full re-snapshot: the catalog is queried again and random
// mode reshuffles. Use Rewind to replay the same order.
func (c *Cursor) Restart(ctx context.Context, k Key, excludeIDs []int64) (StartResult, error) {
	return c.Start(ctx, k, excludeIDs)
}

// snapshot returns the distinct question ids not in exclude.
func snapshot(questions []catalog.Question, exclude []int64) []int64 {
	skip := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	ids := make([]int64, 0, len(questions))
	for _, q := range questions {
		if _, ok := skip[q.ID]; ok {
			continue
		}
		skip[q.ID] = struct{}{}
		ids = append(ids, q.ID)
	}
	return ids
}

func (c *Cursor) shuffle(ids []int64) {
	swap := func(i, j int) { ids[i], ids[j] = ids[j], ids[i] }
	if c.rand == nil {
		rand.Shuffle(len(ids), swap)
		return
	}
	c.randMu.Lock()
	c.rand.Shuffle(len(ids), swap)
	c.randMu.Unlock()
}

func (c *Cursor) write(ctx context.Context, k Key, ids []int64) error {
	ctx, cancel := coord.WithTimeout(ctx, c.timeout)
	defer cancel()

	idsKey, posKey := c.idsKey(k), c.posKey(k)
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, idsKey, posKey)
		for start := 0; start < len(ids); start += pushChunk {
			end := min(start+pushChunk, len(ids))
			vals := make([]interface{}, 0, end-start)
			for _, id := range ids[start:end] {
				vals = append(vals, id)
			}
			pipe.RPush(ctx, idsKey, vals...)
		}
		pipe.PExpire(ctx, idsKey, c.ttl)
		pipe.Set(ctx, posKey, 0, c.ttl)
		return nil
	})
	return coord.Unavailable(err)
}

// Discard deletes the cursor for k. Missing cursors are not an error.
func (c *Cursor) Discard(ctx context.Context, k Key) error {
	if err := k.validate(); err != nil {
		return err
	}
	ctx, cancel := coord.WithTimeout(ctx, c.timeout)
	defer cancel()
	return coord.Unavailable(c.redis.Del(ctx, c.idsKey(k), c.posKey(k)).Err())
}

// Peek returns the cursor position without advancing it.
func (c *Cursor) Peek(ctx context.Context, k Key) (Progress, error) {
	if err := k.validate(); err != nil {
		return Progress{}, err
	}
	return coord.Retry(ctx, c.retry, func(ctx context.Context) (Progress, error) {
		ctx, cancel := coord.WithTimeout(ctx, c.timeout)
		defer cancel()

		pipe := c.redis.Pipeline()
		posCmd := pipe.Get(ctx, c.posKey(k))
		lenCmd := pipe.LLen(ctx, c.idsKey(k))
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return Progress{}, coord.Unavailable(err)
		}

		raw, err := posCmd.Result()
		if errors.Is(err, redis.Nil) {
			return Progress{}, ErrNotFound
		}
		if err != nil {
			return Progress{}, coord.Unavailable(err)
		}
		pos, err := strconv.Atoi(raw)
		if err != nil {
			return Progress{}, fmt.Errorf("cursor: corrupt position %q", raw)
		}
		total := int(lenCmd.Val())
		if total == 0 {
			return Progress{}, ErrNotFound
		}
		return Progress{Position: pos, Total: total}, nil
	})
}
