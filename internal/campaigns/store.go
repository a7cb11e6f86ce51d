package campaigns

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("campaigns: not found")

// Store persists campaigns and their dial targets.
type Store interface {
	Create(ctx context.Context, c Campaign, targets []string) (Campaign, error)
	FindByID(ctx context.Context, id string) (Campaign, error)
	List(ctx context.Context) ([]Campaign, error)
	SetStatus(ctx context.Context, id string, status Status) (Campaign, error)

	// PendingTargets returns up to limit targets still waiting to be dialed.
	PendingTargets(ctx context.Context, campaignID string, limit int) ([]Target, error)
	// FindTargetByCallID resolves the target a dialed call belongs to.
	FindTargetByCallID(ctx context.Context, callID string) (Target, error)
	MarkTarget(ctx context.Context, targetID string, status TargetStatus, callID string) error
	Targets(ctx context.Context, campaignID string) ([]Target, error)
}

// MemoryStore is an in-memory Store for tests and early development.
type MemoryStore struct {
	mu        sync.Mutex
	campaigns map[string]*Campaign
	targets   map[string]*Target
	clock     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns: map[string]*Campaign{},
		targets:   map[string]*Target{},
		clock:     time.Now,
	}
}

// SetClock overrides the store clock; tests only.
func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) Create(ctx context.Context, c Campaign, targets []string) (Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusDraft
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	cp := c
	s.campaigns[c.ID] = &cp
	for _, number := range targets {
		t := Target{
			ID:         uuid.NewString(),
			CampaignID: c.ID,
			Number:     number,
			Status:     TargetPending,
			UpdatedAt:  now,
		}
		s.targets[t.ID] = &t
	}
	return c, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[id]; ok {
		return *c, nil
	}
	return Campaign{}, ErrNotFound
}

func (s *MemoryStore) List(ctx context.Context) ([]Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id string, status Status) (Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = s.clock().UTC()
	return *c, nil
}

func (s *MemoryStore) PendingTargets(ctx context.Context, campaignID string, limit int) ([]Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Target, 0, limit)
	for _, t := range s.sortedTargets(campaignID) {
		if t.Status != TargetPending {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) FindTargetByCallID(ctx context.Context, callID string) (Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if callID == "" {
		return Target{}, ErrNotFound
	}
	for _, t := range s.targets {
		if t.CallID == callID {
			return *t, nil
		}
	}
	return Target{}, ErrNotFound
}

func (s *MemoryStore) MarkTarget(ctx context.Context, targetID string, status TargetStatus, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[targetID]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	if callID != "" {
		t.CallID = callID
	}
	t.UpdatedAt = s.clock().UTC()
	return nil
}

func (s *MemoryStore) Targets(ctx context.Context, campaignID string) ([]Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedTargets(campaignID), nil
}

func (s *MemoryStore) sortedTargets(campaignID string) []Target {
	out := make([]Target, 0)
	for _, t := range s.targets {
		if t.CampaignID == campaignID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
