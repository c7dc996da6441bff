package examcore

import (
	"context"

	"github.com/MrEthical07/examcore/exam"
)

// Assemble builds an exam paper from bucket configuration without persisting
// it. Under-filled buckets are reported in Blueprint.Shortfalls, never padded.
func (e *Engine) Assemble(ctx context.Context, cfg exam.Config) (*exam.Blueprint, error) {
	if e == nil || e.exams == nil {
		return nil, ErrEngineNotReady
	}
	return e.exams.Assemble(ctx, cfg)
}

// AssembleManual builds a paper from an explicit question list.
func (e *Engine) AssembleManual(ctx context.Context, cfg exam.ManualConfig) (*exam.Blueprint, error) {
	if e == nil || e.exams == nil {
		return nil, ErrEngineNotReady
	}
	return e.exams.AssembleManual(ctx, cfg)
}

// StartExam describes the startexam operation and its observable behavior.
//
// StartExam returns the paper frozen for (exam, account, batch), assembling
// and freezing it on first use. Concurrent first calls agree on one paper.
// A paper with shortfalls is returned unfrozen unless cfg.AllowShortfall is
// set; use ShortfallErr to surface it as an error.
func (e *Engine) StartExam(ctx context.Context, accountID, batch string, cfg exam.Config) (*exam.Attempt, error) {
	if e == nil || e.exams == nil {
		return nil, ErrEngineNotReady
	}
	return e.exams.StartAttempt(ctx, accountID, batch, cfg)
}

// StartManualExam is StartExam for an explicit question list.
func (e *Engine) StartManualExam(ctx context.Context, accountID, batch string, cfg exam.ManualConfig) (*exam.Attempt, error) {
	if e == nil || e.exams == nil {
		return nil, ErrEngineNotReady
	}
	return e.exams.StartManualAttempt(ctx, accountID, batch, cfg)
}

// Blueprint reads a frozen paper.
func (e *Engine) Blueprint(ctx context.Context, examID, accountID, batch string) (*exam.Blueprint, error) {
	if e == nil || e.exams == nil {
		return nil, ErrEngineNotReady
	}
	return e.exams.Blueprint(ctx, examID, accountID, batch)
}

// SubmitExam grades answers against the frozen paper. Answers are keyed by
// question id.
func (e *Engine) SubmitExam(ctx context.Context, examID, accountID, batch string, answers map[int64]string) (*exam.Grade, error) {
	if e == nil || e.exams == nil {
		return nil, ErrEngineNotReady
	}
	return e.exams.Submit(ctx, examID, accountID, batch, answers)
}

// DiscardExam deletes a frozen paper so the next StartExam assembles anew.
func (e *Engine) DiscardExam(ctx context.Context, examID, accountID, batch string) error {
	if e == nil || e.exams == nil {
		return ErrEngineNotReady
	}
	return e.exams.Discard(ctx, examID, accountID, batch)
}
