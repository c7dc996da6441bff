package examcore

import (
	"context"

	"github.com/MrEthical07/examcore/cursor"
)

// PracticeKey identifies one delivery cursor: account, catalog filter and
// ordering mode.
type PracticeKey = cursor.Key

// StartPractice snapshots the filtered catalog minus excludeIDs and starts
// delivering it. An empty snapshot returns StartResult.NoContent and leaves
// no cursor behind.
func (e *Engine) StartPractice(ctx context.Context, key PracticeKey, excludeIDs []int64) (cursor.StartResult, error) {
	if e == nil || e.cursor == nil {
		return cursor.StartResult{}, ErrEngineNotReady
	}
	return e.cursor.Start(ctx, key, excludeIDs)
}

// NextQuestion describes the nextquestion operation and its observable behavior.
//
// NextQuestion returns the next id in the snapshot and advances the cursor in
// one atomic step, so concurrent callers never receive the same id. Once every
// id was delivered it returns Delivery.Exhausted. A store fault advances
// nothing; the caller may retry.
func (e *Engine) NextQuestion(ctx context.Context, key PracticeKey) (cursor.Delivery, error) {
	if e == nil || e.cursor == nil {
		return cursor.Delivery{}, ErrEngineNotReady
	}
	return e.cursor.Next(ctx, key)
}

// RewindPractice moves the cursor back to the start of the same snapshot.
func (e *Engine) RewindPractice(ctx context.Context, key PracticeKey) error {
	if e == nil || e.cursor == nil {
		return ErrEngineNotReady
	}
	return e.cursor.Rewind(ctx, key)
}

// RestartPractice takes a fresh catalog snapshot. In random mode the order
// is reshuffled.
func (e *Engine) RestartPractice(ctx context.Context, key PracticeKey, excludeIDs []int64) (cursor.StartResult, error) {
	if e == nil || e.cursor == nil {
		return cursor.StartResult{}, ErrEngineNotReady
	}
	return e.cursor.Restart(ctx, key, excludeIDs)
}

// PracticeProgress reports the cursor position without advancing it.
func (e *Engine) PracticeProgress(ctx context.Context, key PracticeKey) (cursor.Progress, error) {
	if e == nil || e.cursor == nil {
		return cursor.Progress{}, ErrEngineNotReady
	}
	return e.cursor.Peek(ctx, key)
}

func (e *Engine) DiscardPractice(ctx context.Context, key PracticeKey) error {
	if e == nil || e.cursor == nil {
		return ErrEngineNotReady
	}
	return e.cursor.Discard(ctx, key)
}
