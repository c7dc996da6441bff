package exam

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/MrEthical07/examcore/catalog"
	"github.com/MrEthical07/examcore/internal/coord"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)

func poolCatalog() *catalog.Static {
	var qs []catalog.Question
	for i := 1; i <= 5; i++ {
		qs = append(qs, catalog.Question{ID: int64(100 + i), SubjectID: 7, Type: "single", Difficulty: "easy", CorrectAnswer: "A"})
	}
	for i := 1; i <= 3; i++ {
		qs = append(qs, catalog.Question{ID: int64(200 + i), SubjectID: 7, Type: "single", Difficulty: "medium", CorrectAnswer: "B"})
	}
	qs = append(qs,
		catalog.Question{ID: 301, SubjectID: 7, Type: "multi", Difficulty: "easy", CorrectAnswer: "AC"},
		catalog.Question{ID: 401, SubjectID: 8, Type: "single", Difficulty: "easy", CorrectAnswer: "D"},
	)
	return catalog.NewStatic(qs...)
}

func newTestAssembler(t *testing.T, cat catalog.Catalog) (*Assembler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, cat, Options{
		OperationTimeout: time.Second,
		Retry:            coord.RetryPolicy{MaxAttempts: 1},
		Rand:             rand.New(rand.NewPCG(7, 11)),
		Now:              func() time.Time { return fixedNow },
	}), mr
}

func standardConfig() Config {
	return Config{
		ExamID:    "midterm",
		SubjectID: 7,
		Buckets: []Bucket{
			{Type: "single", Difficulty: "easy", Count: 5, ScorePerItem: 2},
			{Type: "single", Difficulty: "medium", Count: 5, ScorePerItem: 3},
		},
	}
}

func intPtr(v int) *int { return &v }

func TestAssembleReportsShortfallWithoutPadding(t *testing.T) {
	a, _ := newTestAssembler(t, poolCatalog())

	bp, err := a.Assemble(context.Background(), standardConfig())
	require.NoError(t, err)

	assert.Equal(t, 19, bp.TotalScore)
	require.Len(t, bp.Items, 8)
	require.Len(t, bp.Buckets, 2)
	assert.Equal(t, 5, bp.Buckets[0].Actual)
	assert.Equal(t, 3, bp.Buckets[1].Actual)

	require.Len(t, bp.Shortfalls, 1)
	sf := bp.Shortfalls[0]
	assert.Equal(t, 1, sf.Bucket)
	assert.Equal(t, "medium", sf.Difficulty)
	assert.Equal(t, 2, sf.Missing())
	assert.False(t, bp.Complete())

	seen := map[int64]bool{}
	for _, it := range bp.Items {
		assert.False(t, seen[it.QuestionID], "duplicate %d", it.QuestionID)
		seen[it.QuestionID] = true
		assert.Equal(t, "single", it.Type)
		want := cfgBucket(it.Bucket)
		assert.Equal(t, want, it.Difficulty)
	}
}

func cfgBucket(i int) string {
	if i == 0 {
		return "easy"
	}
	return "medium"
}

func TestAssembleDrawsDistinctSubset(t *testing.T) {
	a, _ := newTestAssembler(t, poolCatalog())
	cfg := Config{
		ExamID:    "quiz",
		SubjectID: 7,
		Buckets:   []Bucket{{Type: "single", Difficulty: "easy", Count: 3, ScorePerItem: 1}},
	}

	hits := map[int64]int{}
	for i := 0; i < 200; i++ {
		bp, err := a.Assemble(context.Background(), cfg)
		require.NoError(t, err)
		require.Len(t, bp.Items, 3)
		require.True(t, bp.Complete())
		ids := map[int64]bool{}
		for _, it := range bp.Items {
			require.False(t, ids[it.QuestionID])
			ids[it.QuestionID] = true
			hits[it.QuestionID]++
		}
	}
	assert.Len(t, hits, 5, "every easy question should be drawn at some point")
}

func TestAssembleExpectedTotalMismatch(t *testing.T) {
	a, _ := newTestAssembler(t, poolCatalog())

	cfg := standardConfig()
	cfg.ExpectedTotal = intPtr(25)
	_, err := a.Assemble(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrValidation)

	cfg.ExpectedTotal = intPtr(19)
	bp, err := a.Assemble(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 19, bp.TotalScore)
}

func TestAssembleValidatesConfig(t *testing.T) {
	a, _ := newTestAssembler(t, poolCatalog())
	ctx := context.Background()

	cases := map[string]Config{
		"no exam id": {Buckets: []Bucket{{Type: "single", Difficulty: "easy", Count: 1}}},
		"no buckets": {ExamID: "x"},
		"zero count": {ExamID: "x", Buckets: []Bucket{{Type: "single", Difficulty: "easy", Count: 0}}},
		"no type":    {ExamID: "x", Buckets: []Bucket{{Difficulty: "easy", Count: 1}}},
		"neg score":  {ExamID: "x", Buckets: []Bucket{{Type: "single", Difficulty: "easy", Count: 1, ScorePerItem: -1}}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := a.Assemble(ctx, cfg)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAssembleManualSplitsEvenly(t *testing.T) {
	a, _ := newTestAssembler(t, poolCatalog())

	bp, err := a.AssembleManual(context.Background(), ManualConfig{
		ExamID:      "manual",
		QuestionIDs: []int64{101, 201, 301},
		TotalScore:  10,
	})
	require.NoError(t, err)
	assert.True(t, bp.Manual)
	assert.Equal(t, 10, bp.TotalScore)
	assert.Equal(t, []int64{101, 201, 301}, bp.QuestionIDs())

	scores := []int{bp.Items[0].Score, bp.Items[1].Score, bp.Items[2].Score}
	assert.Equal(t, []int{4, 3, 3}, scores)
}

func TestAssembleManualOverrides(t *testing.T) {
	a, _ := newTestAssembler(t, poolCatalog())

	bp, err := a.AssembleManual(context.Background(), ManualConfig{
		ExamID:        "manual",
		QuestionIDs:   []int64{101, 201, 301},
		Scores:        map[int64]int{301: 6},
		TotalScore:    10,
		ExpectedTotal: intPtr(10),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, bp.Items[0].Score)
	assert.Equal(t, 2, bp.Items[1].Score)
	assert.Equal(t, 6, bp.Items[2].Score)
}

func TestAssembleManualRejectsBadIDs(t *testing.T) {
	a, _ := newTestAssembler(t, poolCatalog())
	ctx := context.Background()

	_, err := a.AssembleManual(ctx, ManualConfig{ExamID: "m", QuestionIDs: []int64{101, 101}, TotalScore: 2})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = a.AssembleManual(ctx, ManualConfig{ExamID: "m", QuestionIDs: []int64{101, 9999}, TotalScore: 2})
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, catalog.ErrQuestionNotFound)

	_, err = a.AssembleManual(ctx, ManualConfig{ExamID: "m", QuestionIDs: []int64{101}, Scores: map[int64]int{202: 1}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = a.AssembleManual(ctx, ManualConfig{ExamID: "m", QuestionIDs: []int64{101, 102}, Scores: map[int64]int{101: 9}, TotalScore: 5})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = a.AssembleManual(ctx, ManualConfig{ExamID: "m", QuestionIDs: []int64{101}, TotalScore: 5, ExpectedTotal: intPtr(4)})
	assert.ErrorIs(t, err, ErrValidation)
}
