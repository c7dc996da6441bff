package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/MrEthical07/examcore/catalog"
	"github.com/MrEthical07/examcore/internal/coord"
	"github.com/MrEthical07/examcore/internal/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

// Options configures an Assembler.
type Options struct {
	Prefix string
	// Retention bounds how long a frozen blueprint is kept. Zero keeps it
	// until deleted.
	Retention        time.Duration
	OperationTimeout time.Duration
	Retry            coord.RetryPolicy
	Rand             *rand.Rand
	Now              func() time.Time
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
}

// Assembler builds and freezes exam papers.
type Assembler struct {
	redis     redis.UniversalClient
	catalog   catalog.Catalog
	prefix    string
	retention time.Duration
	timeout   time.Duration
	retry     coord.RetryPolicy
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
	validate  *validator.Validate

	randMu sync.Mutex
	rand   *rand.Rand
}

func New(client redis.UniversalClient, cat catalog.Catalog, opts Options) *Assembler {
	if opts.Prefix == "" {
		opts.Prefix = "ex"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Assembler{
		redis:     client,
		catalog:   cat,
		prefix:    opts.Prefix,
		retention: opts.Retention,
		timeout:   opts.OperationTimeout,
		retry:     opts.Retry,
		now:       opts.Now,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		rand:      opts.Rand,
	}
}

func (a *Assembler) validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %q", ErrValidation, fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// intN returns a uniform int in [0, n).
func (a *Assembler) intN(n int) int {
	if a.rand == nil {
		return rand.IntN(n)
	}
	a.randMu.Lock()
	defer a.randMu.Unlock()
	return a.rand.IntN(n)
}

// draw picks k distinct questions from pool uniformly at random with a
// partial Fisher-Yates shuffle. pool is reordered in place.
func (a *Assembler) draw(pool []catalog.Question, k int) []catalog.Question {
	k = min(k, len(pool))
	for i := 0; i < k; i++ {
		j := i + a.intN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

// Assemble draws every bucket and returns the paper. Under-filled buckets
// are listed in Shortfalls; the paper is never padded. A declared
// ExpectedTotal that differs from the computed total is ErrValidation.
func (a *Assembler) Assemble(ctx context.Context, cfg Config) (*Blueprint, error) {
	bp, err := a.assemble(ctx, cfg)
	switch {
	case errors.Is(err, ErrValidation):
		a.metrics.Assembly("invalid")
	case err != nil:
		a.metrics.Assembly("error")
	case !bp.Complete():
		a.metrics.Assembly("shortfall")
	default:
		a.metrics.Assembly("complete")
	}
	return bp, err
}

func (a *Assembler) assemble(ctx context.Context, cfg Config) (*Blueprint, error) {
	if err := a.validate.Struct(cfg); err != nil {
		return nil, a.validationError(err)
	}

	bp := &Blueprint{
		ExamID:    cfg.ExamID,
		Buckets:   make([]BucketResult, 0, len(cfg.Buckets)),
		CreatedAt: a.now().UTC(),
	}

	// A question matching two buckets is only drawn once.
	used := make(map[int64]struct{})
	for i, b := range cfg.Buckets {
		matches, err := a.catalog.Query(ctx, catalog.Filter{
			SubjectID:  cfg.SubjectID,
			Type:       b.Type,
			Difficulty: b.Difficulty,
		})
		if err != nil {
			return nil, fmt.Errorf("exam: catalog query for bucket %d: %w", i, err)
		}

		pool := make([]catalog.Question, 0, len(matches))
		for _, q := range matches {
			if _, ok := used[q.ID]; ok {
				continue
			}
			used[q.ID] = struct{}{}
			pool = append(pool, q)
		}

		picked := a.draw(pool, b.Count)
		for _, q := range picked {
			bp.Items = append(bp.Items, Item{
				QuestionID: q.ID,
				Type:       q.Type,
				Difficulty: q.Difficulty,
				Score:      b.ScorePerItem,
				Bucket:     i,
			})
		}
		// Questions left in the pool go back to being available.
		for _, q := range pool[len(picked):] {
			delete(used, q.ID)
		}

		bp.Buckets = append(bp.Buckets, BucketResult{Bucket: b, Actual: len(picked)})
		bp.TotalScore += len(picked) * b.ScorePerItem
		if len(picked) < b.Count {
			bp.Shortfalls = append(bp.Shortfalls, Shortfall{
				Bucket:     i,
				Type:       b.Type,
				Difficulty: b.Difficulty,
				Requested:  b.Count,
				Drawn:      len(picked),
			})
		}
	}

	if cfg.ExpectedTotal != nil && *cfg.ExpectedTotal != bp.TotalScore {
		return nil, fmt.Errorf("%w: declared total %d, computed %d", ErrValidation, *cfg.ExpectedTotal, bp.TotalScore)
	}
	if err := bp.checkTotals(); err != nil {
		return nil, err
	}

	if len(bp.Shortfalls) > 0 {
		a.logger.Info("exam assembled with shortfall",
			"exam_id", cfg.ExamID,
			"shortfalls", len(bp.Shortfalls),
			"total_score", bp.TotalScore,
		)
	}
	return bp, nil
}

// AssembleManual builds a paper from an explicit id list. Every id must
// exist and appear once. Scores come from per-question overrides; the
// remaining TotalScore is split evenly over the other questions, with any
// remainder going one point each to the earliest of them.
func (a *Assembler) AssembleManual(ctx context.Context, cfg ManualConfig) (*Blueprint, error) {
	bp, err := a.assembleManual(ctx, cfg)
	switch {
	case errors.Is(err, ErrValidation):
		a.metrics.Assembly("invalid")
	case err != nil:
		a.metrics.Assembly("error")
	default:
		a.metrics.Assembly("manual")
	}
	return bp, err
}

func (a *Assembler) assembleManual(ctx context.Context, cfg ManualConfig) (*Blueprint, error) {
	if err := a.validate.Struct(cfg); err != nil {
		return nil, a.validationError(err)
	}

	seen := make(map[int64]struct{}, len(cfg.QuestionIDs))
	for _, id := range cfg.QuestionIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate question id %d", ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	for id := range cfg.Scores {
		if _, ok := seen[id]; !ok {
			return nil, fmt.Errorf("%w: score override for question %d not on paper", ErrValidation, id)
		}
	}

	found, err := a.catalog.Lookup(ctx, cfg.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("exam: catalog lookup: %w", err)
	}
	for _, id := range cfg.QuestionIDs {
		if _, ok := found[id]; !ok {
			return nil, fmt.Errorf("%w: %w: %d", ErrValidation, catalog.ErrQuestionNotFound, id)
		}
	}

	overridden := 0
	for _, s := range cfg.Scores {
		overridden += s
	}
	even := len(cfg.QuestionIDs) - len(cfg.Scores)
	pool := cfg.TotalScore - overridden
	if even == 0 {
		pool = 0
	} else if pool < 0 {
		return nil, fmt.Errorf("%w: overrides (%d) exceed total score %d", ErrValidation, overridden, cfg.TotalScore)
	}

	var share, extra int
	if even > 0 {
		share, extra = pool/even, pool%even
	}

	bp := &Blueprint{
		ExamID:    cfg.ExamID,
		Manual:    true,
		Items:     make([]Item, 0, len(cfg.QuestionIDs)),
		CreatedAt: a.now().UTC(),
	}
	for _, id := range cfg.QuestionIDs {
		q := found[id]
		score, ok := cfg.Scores[id]
		if !ok {
			score = share
			if extra > 0 {
				score++
				extra--
			}
		}
		bp.Items = append(bp.Items, Item{
			QuestionID: id,
			Type:       q.Type,
			Difficulty: q.Difficulty,
			Score:      score,
			Bucket:     -1,
		})
		bp.TotalScore += score
	}

	if cfg.ExpectedTotal != nil && *cfg.ExpectedTotal != bp.TotalScore {
		return nil, fmt.Errorf("%w: declared total %d, computed %d", ErrValidation, *cfg.ExpectedTotal, bp.TotalScore)
	}
	if err := bp.checkTotals(); err != nil {
		return nil, err
	}
	return bp, nil
}
