package catalog

import (
	"context"
	"sort"
	"sync"
)

// Static is an in-memory Catalog. Query results are returned in ascending
// id order.
type Static struct {
	mu        sync.RWMutex
	questions map[int64]Question
}

// NewStatic builds a Static catalog from qs. Later duplicates replace
// earlier ones.
func NewStatic(qs ...Question) *Static {
	s := &Static{questions: make(map[int64]Question, len(qs))}
	for _, q := range qs {
		s.questions[q.ID] = q
	}
	return s
}

// Put adds or replaces questions.
func (s *Static) Put(qs ...Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range qs {
		s.questions[q.ID] = q
	}
}

// Remove drops questions by id.
func (s *Static) Remove(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.questions, id)
	}
}

func (s *Static) Query(ctx context.Context, filter Filter) ([]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]Question, 0, len(s.questions))
	for _, q := range s.questions {
		if filter.Matches(q) {
			out = append(out, q)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Static) Lookup(ctx context.Context, ids []int64) (map[int64]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]Question, len(ids))
	for _, id := range ids {
		if q, ok := s.questions[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}
