package calls

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("calls: not found")

// HistoryFilter narrows ListHistory results. Zero values mean "no filter".
type HistoryFilter struct {
	CustomerNumber string
	Limit          int
	Offset         int
}

// Store is the persistence contract for Call records.
//
// FindByLeg matches either leg id and prefers a non-terminal record, so a
// redelivered event for a finished leg cannot attach to the wrong call when a
// new call reuses the number.
type Store interface {
	Create(ctx context.Context, c Call) (Call, error)
	FindByID(ctx context.Context, id string) (Call, error)
	FindByLeg(ctx context.Context, legID string) (Call, error)
	Update(ctx context.Context, id string, p Patch) (Call, error)
	ListActive(ctx context.Context) ([]Call, error)
	ListHistory(ctx context.Context, f HistoryFilter) ([]Call, error)
}

// MemoryStore is an in-memory Store for tests and early development.
// Updates are serialized under one mutex, which gives the same per-record
// atomicity the SQL store gets from single-statement updates.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]*Call
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]*Call{}, clock: time.Now}
}

// SetClock overrides the store clock; tests only.
func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) Create(ctx context.Context, c Call) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusInitiated
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = now
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	cp := c
	s.byID[c.ID] = &cp
	return c, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[id]; ok {
		return *c, nil
	}
	return Call{}, ErrNotFound
}

func (s *MemoryStore) FindByLeg(ctx context.Context, legID string) (Call, error) {
	if legID == "" {
		return Call{}, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Call
	for _, c := range s.byID {
		if c.LegA != legID && c.LegB != legID {
			continue
		}
		if best == nil {
			best = c
			continue
		}
		// Prefer non-terminal, then the newest record.
		switch {
		case best.Status.IsTerminal() && !c.Status.IsTerminal():
			best = c
		case best.Status.IsTerminal() == c.Status.IsTerminal() && c.CreatedAt.After(best.CreatedAt):
			best = c
		}
	}
	if best == nil {
		return Call{}, ErrNotFound
	}
	return *best, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, p Patch) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	applyPatch(c, p, s.clock().UTC())
	return *c, nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Call, 0)
	for _, c := range s.byID {
		if !c.Status.IsTerminal() {
			out = append(out, *c)
		}
	}
	sortByStartedDesc(out)
	return out, nil
}

func (s *MemoryStore) ListHistory(ctx context.Context, f HistoryFilter) ([]Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Call, 0)
	for _, c := range s.byID {
		if f.CustomerNumber != "" && c.CustomerNumber != f.CustomerNumber {
			continue
		}
		out = append(out, *c)
	}
	sortByStartedDesc(out)

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []Call{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func sortByStartedDesc(cs []Call) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].StartedAt.After(cs[j].StartedAt) })
}
