package exam

import (
	"errors"
	"time"
)

var (
	// ErrValidation is returned for malformed configuration, unknown or
	// duplicate manual ids, and declared totals that disagree with the
	// computed one.
	ErrValidation = errors.New("exam validation failed")
	// ErrBlueprintNotFound is returned when no attempt has been frozen.
	ErrBlueprintNotFound = errors.New("exam blueprint not found")
)

// Bucket is one (type, difficulty) draw.
type Bucket struct {
	Type         string `json:"type" validate:"required"`
	Difficulty   string `json:"difficulty" validate:"required"`
	Count        int    `json:"count" validate:"gte=1"`
	ScorePerItem int    `json:"score_per_item" validate:"gte=0"`
}

// Config drives bucket assembly.
type Config struct {
	ExamID    string   `json:"exam_id" validate:"required"`
	SubjectID int64    `json:"subject_id" validate:"gte=0"`
	Buckets   []Bucket `json:"buckets" validate:"required,min=1,dive"`
	// ExpectedTotal, when set, must equal the computed total.
	ExpectedTotal *int `json:"expected_total,omitempty" validate:"omitempty,gte=0"`
	// AllowShortfall lets StartAttempt freeze an under-filled paper.
	AllowShortfall bool `json:"allow_shortfall"`
}

// ManualConfig drives assembly from an explicit id list.
type ManualConfig struct {
	ExamID      string  `json:"exam_id" validate:"required"`
	QuestionIDs []int64 `json:"question_ids" validate:"required,min=1,dive,gt=0"`
	// Scores overrides the score of individual questions.
	Scores map[int64]int `json:"scores,omitempty" validate:"omitempty,dive,gte=0"`
	// TotalScore is split evenly over questions without an override.
	TotalScore    int  `json:"total_score" validate:"gte=0"`
	ExpectedTotal *int `json:"expected_total,omitempty" validate:"omitempty,gte=0"`
}

// Item is one question on a paper.
type Item struct {
	QuestionID int64  `json:"question_id"`
	Type       string `json:"type,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Score      int    `json:"score"`
	// Bucket is the index into Blueprint.Buckets, or -1 for manual papers.
	Bucket int `json:"bucket"`
}

// BucketResult records what a bucket actually drew.
type BucketResult struct {
	Bucket
	Actual int `json:"actual"`
}

// Shortfall reports an under-filled bucket.
type Shortfall struct {
	Bucket     int    `json:"bucket"`
	Type       string `json:"type"`
	Difficulty string `json:"difficulty"`
	Requested  int    `json:"requested"`
	Drawn      int    `json:"drawn"`
}

// Missing is the number of questions the bucket could not supply.
func (s Shortfall) Missing() int {
	return s.Requested - s.Drawn
}

// Blueprint is an assembled paper. Once frozen it never changes.
type Blueprint struct {
	ExamID     string         `json:"exam_id"`
	AccountID  string         `json:"account_id,omitempty"`
	Batch      string         `json:"batch,omitempty"`
	Manual     bool           `json:"manual,omitempty"`
	Buckets    []BucketResult `json:"buckets,omitempty"`
	Items      []Item         `json:"items"`
	TotalScore int            `json:"total_score"`
	Shortfalls []Shortfall    `json:"shortfalls,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// QuestionIDs returns the paper's question ids in paper order.
func (b *Blueprint) QuestionIDs() []int64 {
	ids := make([]int64, len(b.Items))
	for i, it := range b.Items {
		ids[i] = it.QuestionID
	}
	return ids
}

// Complete reports whether every bucket was filled.
func (b *Blueprint) Complete() bool {
	return len(b.Shortfalls) == 0
}

// checkTotals enforces the blueprint invariants: the total is the sum of
// item scores, and for bucket papers each bucket contributes
// actual * scorePerItem with one item per drawn question.
func (b *Blueprint) checkTotals() error {
	sum := 0
	for _, it := range b.Items {
		sum += it.Score
	}
	if sum != b.TotalScore {
		return errors.New("exam: item scores do not add up to total")
	}
	if b.Manual {
		return nil
	}

	items, total := 0, 0
	for _, br := range b.Buckets {
		items += br.Actual
		total += br.Actual * br.ScorePerItem
	}
	if items != len(b.Items) || total != b.TotalScore {
		return errors.New("exam: bucket totals do not match items")
	}
	return nil
}

// Attempt is the result of StartAttempt.
type Attempt struct {
	Blueprint *Blueprint
	// Frozen is false only when the paper was under-filled and shortfalls
	// were not allowed; nothing was stored.
	Frozen bool
	// Resumed means an earlier call had already frozen this attempt.
	Resumed bool
}

// ItemResult grades one question.
type ItemResult struct {
	QuestionID int64  `json:"question_id"`
	Answer     string `json:"answer,omitempty"`
	Answered   bool   `json:"answered"`
	Correct    bool   `json:"correct"`
	Score      int    `json:"score"`
	MaxScore   int    `json:"max_score"`
	// Missing means the question left the catalog after the freeze; it
	// scores zero.
	Missing bool `json:"missing,omitempty"`
}

// Grade is the result of Submit.
type Grade struct {
	ExamID    string       `json:"exam_id"`
	AccountID string       `json:"account_id"`
	Batch     string       `json:"batch"`
	Items     []ItemResult `json:"items"`
	Score     int          `json:"score"`
	MaxScore  int          `json:"max_score"`
	Correct   int          `json:"correct"`
}
