package catalog

import (
	"context"
	"errors"
)

// ErrQuestionNotFound is returned by Lookup when an id is unknown.
var ErrQuestionNotFound = errors.New("question not found")

// Question is the catalog view of one question.
type Question struct {
	ID            int64
	SubjectID     int64
	Type          string
	Difficulty    string
	CorrectAnswer string
	ScoreHint     int
}

// Filter narrows a catalog query. Zero values match everything.
type Filter struct {
	SubjectID  int64
	Type       string
	Difficulty string
}

// Matches reports whether q satisfies every non-empty field of f.
func (f Filter) Matches(q Question) bool {
	if f.SubjectID != 0 && q.SubjectID != f.SubjectID {
		return false
	}
	if f.Type != "" && q.Type != f.Type {
		return false
	}
	if f.Difficulty != "" && q.Difficulty != f.Difficulty {
		return false
	}
	return true
}

// Catalog supplies filtered question sets. Results are assumed stable for
// the duration of a single call.
type Catalog interface {
	Query(ctx context.Context, filter Filter) ([]Question, error)
	Lookup(ctx context.Context, ids []int64) (map[int64]Question, error)
}
