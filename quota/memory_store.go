package quota

import (
	"context"
	"sync"
)

// MemoryStore is a single-instance Store. Each account has its own mutex;
// the map lock is only held to find or create an entry.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	mu  sync.Mutex
	rec Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) entry(accountID string, create bool) *memoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[accountID]
	if !ok && create {
		e = &memoryEntry{rec: Record{AccountID: accountID}}
		s.entries[accountID] = e
	}
	return e
}

func (s *MemoryStore) snapshot() []*memoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*memoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

func (s *MemoryStore) Get(ctx context.Context, accountID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	e := s.entry(accountID, false)
	if e == nil {
		return Record{}, ErrNotInitialized
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, nil
}

func (s *MemoryStore) Consume(ctx context.Context, accountID string, amount int64, w Window) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	e := s.entry(accountID, false)
	if e == nil {
		return Record{}, false, ErrNotInitialized
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Compare against headroom: used <= limit holds, so the subtraction
	// cannot overflow where used+amount could.
	rec := e.rec.In(w)
	if amount > rec.DailyLimit-rec.UsedDaily || amount > rec.MonthlyLimit-rec.UsedMonthly {
		return rec, false, nil
	}
	rec.UsedDaily += amount
	rec.UsedMonthly += amount
	e.rec = rec
	return rec, true, nil
}

func (s *MemoryStore) SetLimits(ctx context.Context, accountID string, limits Limits, w Window) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	e := s.entry(accountID, true)

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.rec.In(w)
	rec.DailyLimit = limits.Daily
	rec.MonthlyLimit = limits.Monthly
	rec.UsedDaily = min(rec.UsedDaily, rec.DailyLimit)
	rec.UsedMonthly = min(rec.UsedMonthly, rec.MonthlyLimit)
	e.rec = rec
	return rec, nil
}

func (s *MemoryStore) ResetDaily(ctx context.Context, day string) (int, error) {
	return s.reset(ctx, func(r *Record) {
		r.UsedDaily = 0
		r.LastResetDate = day
	})
}

func (s *MemoryStore) ResetMonthly(ctx context.Context, month string) (int, error) {
	return s.reset(ctx, func(r *Record) {
		r.UsedMonthly = 0
		r.LastResetMonth = month
	})
}

func (s *MemoryStore) reset(ctx context.Context, apply func(*Record)) (int, error) {
	n := 0
	for _, e := range s.snapshot() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		e.mu.Lock()
		apply(&e.rec)
		e.mu.Unlock()
		n++
	}
	return n, nil
}
