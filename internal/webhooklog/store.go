package webhooklog

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("webhooklog: not found")

// Store persists webhook deliveries.
//
// Append and MarkProcessed are the hot path (every delivery); the rest back
// the operator inspection API.
type Store interface {
	Append(ctx context.Context, d Delivery) (Delivery, error)
	MarkProcessed(ctx context.Context, id string, procErr string) error
	FindByID(ctx context.Context, id string) (Delivery, error)
	List(ctx context.Context, page, limit int) ([]Delivery, int, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// MemoryStore is an in-memory Store for tests and early development.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]*Delivery
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]*Delivery{}, clock: time.Now}
}

// SetClock overrides the store clock; tests only.
func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) Append(ctx context.Context, d Delivery) (Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = s.clock().UTC()
	}
	cp := d
	s.byID[d.ID] = &cp
	return d, nil
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, id string, procErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	d.Processed = true
	d.Error = procErr
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.byID[id]; ok {
		return *d, nil
	}
	return Delivery{}, ErrNotFound
}

func (s *MemoryStore) List(ctx context.Context, page, limit int) ([]Delivery, int, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]Delivery, 0, len(s.byID))
	for _, d := range s.byID {
		all = append(all, *d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ReceivedAt.After(all[j].ReceivedAt) })

	total := len(all)
	start := (page - 1) * limit
	if start >= total {
		return []Delivery{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
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

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = map[string]*Delivery{}
	return nil
}
