package quota

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatedGeneratorChargesBeforeGenerating(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), clockwork.NewFakeClockAt(testStart), map[string]string{"x": "tiny"})
	_, err := l.InitializeQuota(ctx, "x")
	require.NoError(t, err)

	calls := 0
	gen := GeneratorFunc(func(_ context.Context, prompt string) (<-chan string, error) {
		calls++
		ch := make(chan string, 2)
		ch <- "echo:"
		ch <- prompt
		close(ch)
		return ch, nil
	})
	g := NewGatedGenerator(l, gen, 1)

	for i := 0; i < 2; i++ {
		stream, err := g.Generate(ctx, "x", "hi")
		require.NoError(t, err)
		var out string
		for tok := range stream {
			out += tok
		}
		assert.Equal(t, "echo:hi", out)
	}

	_, err = g.Generate(ctx, "x", "hi")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 2, calls, "generator must not run without quota")
}

func TestGatedGeneratorUninitializedAccount(t *testing.T) {
	l := newTestLedger(t, NewMemoryStore(), clockwork.NewFakeClock(), nil)
	g := NewGatedGenerator(l, GeneratorFunc(func(context.Context, string) (<-chan string, error) {
		t.Fatal("generator called")
		return nil, nil
	}), 0)

	_, err := g.Generate(context.Background(), "ghost", "hi")
	assert.ErrorIs(t, err, ErrNotInitialized)
}
