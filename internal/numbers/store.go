package numbers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("numbers: not found")
	ErrDuplicate = errors.New("numbers: number already provisioned")
)

// Update is a partial update to one number. Nil fields are unchanged.
type Update struct {
	Label  *string
	Active *bool
}

type Store interface {
	Create(ctx context.Context, n PhoneNumber) (PhoneNumber, error)
	FindByID(ctx context.Context, id string) (PhoneNumber, error)
	List(ctx context.Context) ([]PhoneNumber, error)
	Update(ctx context.Context, id string, u Update) (PhoneNumber, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-memory Store for tests and early development.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]*PhoneNumber
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]*PhoneNumber{}, clock: time.Now}
}

// SetClock overrides the store clock; tests only.
func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) Create(ctx context.Context, n PhoneNumber) (PhoneNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if existing.Number == n.Number {
			return PhoneNumber{}, ErrDuplicate
		}
	}

	now := s.clock().UTC()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = now
	n.UpdatedAt = now

	cp := n
	s.byID[n.ID] = &cp
	return n, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (PhoneNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byID[id]; ok {
		return *n, nil
	}
	return PhoneNumber{}, ErrNotFound
}

func (s *MemoryStore) List(ctx context.Context) ([]PhoneNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PhoneNumber, 0, len(s.byID))
	for _, n := range s.byID {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, u Update) (PhoneNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[id]
	if !ok {
		return PhoneNumber{}, ErrNotFound
	}
	if u.Label != nil {
		n.Label = *u.Label
	}
	if u.Active != nil {
		n.Active = *u.Active
	}
	n.UpdatedAt = s.clock().UTC()
	return *n, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	return nil
}
