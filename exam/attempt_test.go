package exam

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeConfig() Config {
	return Config{
		ExamID:    "final",
		SubjectID: 7,
		Buckets: []Bucket{
			{Type: "single", Difficulty: "easy", Count: 3, ScorePerItem: 2},
			{Type: "single", Difficulty: "medium", Count: 2, ScorePerItem: 3},
		},
	}
}

func TestStartAttemptFreezesBlueprint(t *testing.T) {
	a, _ := newTestAssembler(t, poolCatalog())
	ctx := context.Background()

	first, err := a.StartAttempt(ctx, "acct", "b1", completeConfig())
	require.NoError(t, err)
	assert.True(t, first.Frozen)
	assert.False(t, first.Resumed)
	assert.Equal(t, 12, first.Blueprint.TotalScore)

	for i := 0; i < 5; i++ {
		again, err := a.StartAttempt(ctx, "acct", "b1", completeConfig())
		require.NoError(t, err)
		assert.True(t, again.Resumed)
		assert.Equal(t, first.Blueprint.QuestionIDs(), again.Blueprint.QuestionIDs())
	}

	other, err := a.StartAttempt(ctx, "acct", "b2", completeConfig())
	require.NoError(t, err)
	assert.False(t, other.Resumed, "another batch is a new attempt")
}

func TestStartAttemptRaceHasOneWinner(t *testing.T) {
	a, _ := newTestAssembler(t, poolCatalog())
	ctx := context.Background()

	const n = 16
	results := make([]*Attempt, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			att, err := a.StartAttempt(ctx, "acct", "race", completeConfig())
			if err != nil {
				t.Errorf("start attempt: %v", err)
				return
			}
			results[i] = att
		}(i)
	}
	wg.Wait()

	want := results[0].Blueprint.QuestionIDs()
	fresh := 0
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, want, r.Blueprint.QuestionIDs())
		if !r.Resumed {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
}

func TestStartAttemptShortfallNotFrozenByDefault(t *testing.T) {
	a, mr := newTestAssembler(t, poolCatalog())
	ctx := context.Background()

	att, err := a.StartAttempt(ctx, "acct", "b1", standardConfig())
	require.NoError(t, err)
	assert.False(t, att.Frozen)
	assert.Len(t, att.Blueprint.Shortfalls, 1)
	assert.Empty(t, mr.Keys())

	cfg := standardConfig()
	cfg.AllowShortfall = true
	att, err = a.StartAttempt(ctx, "acct", "b1", cfg)
	require.NoError(t, err)
	assert.True(t, att.Frozen)
	assert.Equal(t, 19, att.Blueprint.TotalScore)
}

func TestSubmitGradesFrozenPaper(t *testing.T) {
	cat := poolCatalog()
	a, _ := newTestAssembler(t, cat)
	ctx := context.Background()

	att, err := a.StartManualAttempt(ctx, "acct", "b1", ManualConfig{
		ExamID:      "manual",
		QuestionIDs: []int64{101, 201, 301},
		TotalScore:  9,
	})
	require.NoError(t, err)
	require.True(t, att.Frozen)

	answers := map[int64]string{101: " a ", 201: "C", 301: "ac", 999: "A"}
	g, err := a.Submit(ctx, "manual", "acct", "b1", answers)
	require.NoError(t, err)
	assert.Equal(t, 9, g.MaxScore)
	assert.Equal(t, 6, g.Score)
	assert.Equal(t, 2, g.Correct)
	require.Len(t, g.Items, 3)
	assert.True(t, g.Items[0].Correct)
	assert.False(t, g.Items[1].Correct)

	// Resubmission grades the same paper even after the catalog changes.
	cat.Remove(301)
	g, err = a.Submit(ctx, "manual", "acct", "b1", answers)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Score)
	assert.True(t, g.Items[2].Missing)
}

func TestSubmitWithoutAttempt(t *testing.T) {
	a, _ := newTestAssembler(t, poolCatalog())
	_, err := a.Submit(context.Background(), "x", "acct", "b1", nil)
	assert.ErrorIs(t, err, ErrBlueprintNotFound)
}

func TestDiscardAllowsNewAttempt(t *testing.T) {
	a, _ := newTestAssembler(t, poolCatalog())
	ctx := context.Background()

	_, err := a.StartAttempt(ctx, "acct", "b1", completeConfig())
	require.NoError(t, err)
	require.NoError(t, a.Discard(ctx, "final", "acct", "b1"))

	_, err = a.Blueprint(ctx, "final", "acct", "b1")
	assert.ErrorIs(t, err, ErrBlueprintNotFound)

	att, err := a.StartAttempt(ctx, "acct", "b1", completeConfig())
	require.NoError(t, err)
	assert.False(t, att.Resumed)
}

func TestAttemptArgsRequired(t *testing.T) {
	a, _ := newTestAssembler(t, poolCatalog())
	_, err := a.StartAttempt(context.Background(), "", "b1", completeConfig())
	assert.ErrorIs(t, err, ErrValidation)
}
