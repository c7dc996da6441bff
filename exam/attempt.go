package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/examcore/internal/coord"
	"github.com/redis/go-redis/v9"
)

func (a *Assembler) blueprintKey(examID, accountID, batch string) string {
	return a.prefix + ":bp:{" + accountID + "}:" + examID + ":" + batch
}

func attemptArgs(examID, accountID, batch string) error {
	if examID == "" || accountID == "" || batch == "" {
		return fmt.Errorf("%w: exam id, account id and batch are required", ErrValidation)
	}
	return nil
}

// StartAttempt returns the frozen paper for (cfg.ExamID, accountID, batch),
// assembling and freezing it on the first call. Concurrent first calls
// race on SET NX; the losers return the winner's paper. An under-filled
// paper is returned unfrozen unless cfg.AllowShortfall is set.
func (a *Assembler) StartAttempt(ctx context.Context, accountID, batch string, cfg Config) (*Attempt, error) {
	return a.startAttempt(ctx, cfg.ExamID, accountID, batch, cfg.AllowShortfall, func() (*Blueprint, error) {
		return a.Assemble(ctx, cfg)
	})
}

// StartManualAttempt is StartAttempt for an explicit question list.
func (a *Assembler) StartManualAttempt(ctx context.Context, accountID, batch string, cfg ManualConfig) (*Attempt, error) {
	return a.startAttempt(ctx, cfg.ExamID, accountID, batch, false, func() (*Blueprint, error) {
		return a.AssembleManual(ctx, cfg)
	})
}

func (a *Assembler) startAttempt(ctx context.Context, examID, accountID, batch string, allowShortfall bool, build func() (*Blueprint, error)) (*Attempt, error) {
	if err := attemptArgs(examID, accountID, batch); err != nil {
		return nil, err
	}

	existing, err := a.Blueprint(ctx, examID, accountID, batch)
	switch {
	case err == nil:
		return &Attempt{Blueprint: existing, Frozen: true, Resumed: true}, nil
	case !errors.Is(err, ErrBlueprintNotFound):
		return nil, err
	}

	bp, err := build()
	if err != nil {
		return nil, err
	}
	bp.AccountID = accountID
	bp.Batch = batch

	if !bp.Complete() && !allowShortfall {
		return &Attempt{Blueprint: bp, Frozen: false}, nil
	}

	data, err := json.Marshal(bp)
	if err != nil {
		return nil, fmt.Errorf("exam: encode blueprint: %w", err)
	}

	key := a.blueprintKey(examID, accountID, batch)
	setCtx, cancel := coord.WithTimeout(ctx, a.timeout)
	won, err := a.redis.SetNX(setCtx, key, data, a.retention).Result()
	cancel()
	if err != nil {
		return nil, coord.Unavailable(err)
	}
	if won {
		a.logger.Debug("exam blueprint frozen",
			"exam_id", examID,
			"account_id", accountID,
			"batch", batch,
			"items", len(bp.Items),
		)
		return &Attempt{Blueprint: bp, Frozen: true}, nil
	}

	winner, err := a.Blueprint(ctx, examID, accountID, batch)
	if err != nil {
		return nil, err
	}
	return &Attempt{Blueprint: winner, Frozen: true, Resumed: true}, nil
}

// Blueprint reads a frozen paper. Reads are retried on transient faults.
func (a *Assembler) Blueprint(ctx context.Context, examID, accountID, batch string) (*Blueprint, error) {
	if err := attemptArgs(examID, accountID, batch); err != nil {
		return nil, err
	}
	key := a.blueprintKey(examID, accountID, batch)

	return coord.Retry(ctx, a.retry, func(ctx context.Context) (*Blueprint, error) {
		ctx, cancel := coord.WithTimeout(ctx, a.timeout)
		defer cancel()

		data, err := a.redis.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, ErrBlueprintNotFound
		}
		if err != nil {
			return nil, coord.Unavailable(err)
		}

		var bp Blueprint
		if err := json.Unmarshal(data, &bp); err != nil {
			return nil, fmt.Errorf("exam: decode blueprint %s: %w", key, err)
		}
		return &bp, nil
	})
}

// Submit grades answers against the frozen paper. Answers for questions
// not on the paper are ignored. Resubmitting grades against the same
// paper again.
func (a *Assembler) Submit(ctx context.Context, examID, accountID, batch string, answers map[int64]string) (*Grade, error) {
	bp, err := a.Blueprint(ctx, examID, accountID, batch)
	if err != nil {
		return nil, err
	}

	questions, err := a.catalog.Lookup(ctx, bp.QuestionIDs())
	if err != nil {
		return nil, fmt.Errorf("exam: catalog lookup: %w", err)
	}

	g := &Grade{
		ExamID:    examID,
		AccountID: accountID,
		Batch:     batch,
		Items:     make([]ItemResult, 0, len(bp.Items)),
		MaxScore:  bp.TotalScore,
	}
	for _, it := range bp.Items {
		res := ItemResult{QuestionID: it.QuestionID, MaxScore: it.Score}
		res.Answer, res.Answered = answers[it.QuestionID]

		q, ok := questions[it.QuestionID]
		switch {
		case !ok:
			res.Missing = true
		case res.Answered && answerMatches(res.Answer, q.CorrectAnswer):
			res.Correct = true
			res.Score = it.Score
			g.Correct++
		}
		g.Score += res.Score
		g.Items = append(g.Items, res)
	}
	return g, nil
}

// Discard deletes a frozen paper, allowing a fresh attempt for the batch.
func (a *Assembler) Discard(ctx context.Context, examID, accountID, batch string) error {
	if err := attemptArgs(examID, accountID, batch); err != nil {
		return err
	}
	ctx, cancel := coord.WithTimeout(ctx, a.timeout)
	defer cancel()
	return coord.Unavailable(a.redis.Del(ctx, a.blueprintKey(examID, accountID, batch)).Err())
}

func answerMatches(given, correct string) bool {
	given = strings.TrimSpace(given)
	return given != "" && strings.EqualFold(given, strings.TrimSpace(correct))
}
