package campaigns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/numbers"
	"callcenter-platform/pkg/logger"
)

var ErrValidation = errors.New("campaigns: invalid request")

// maxConcurrency is a hard ceiling regardless of what the request asks for.
const maxConcurrency = 50

// Dialer is the slice of the call service campaigns need.
type Dialer interface {
	StartOutbound(ctx context.Context, p calls.DialParams) (calls.Call, error)
}

// Service runs outbound campaigns. Dialing is capacity-driven: each dial
// holds one limiter slot, and DialNext tops the campaign back up to its cap.
// The limiter is shared across instances, so two API processes running the
// same campaign cannot overshoot the cap between them.
type Service struct {
	store   Store
	dialer  Dialer
	limiter Limiter
	clock   func() time.Time
}

func NewService(store Store, dialer Dialer, limiter Limiter) *Service {
	return &Service{store: store, dialer: dialer, limiter: limiter, clock: time.Now}
}

// SetClock overrides the service clock; tests only.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

type CreateParams struct {
	Name        string   `json:"name"`
	Concurrency int      `json:"concurrency"`
	Targets     []string `json:"targets"`
}

func (s *Service) Create(ctx context.Context, p CreateParams) (Campaign, error) {
	if p.Name == "" {
		return Campaign{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	if len(p.Targets) == 0 {
		return Campaign{}, fmt.Errorf("%w: at least one target required", ErrValidation)
	}
	for _, number := range p.Targets {
		if !numbers.IsE164(number) {
			return Campaign{}, fmt.Errorf("%w: target %q is not E.164", ErrValidation, number)
		}
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	if p.Concurrency > maxConcurrency {
		p.Concurrency = maxConcurrency
	}

	return s.store.Create(ctx, Campaign{Name: p.Name, Concurrency: p.Concurrency}, p.Targets)
}

// Start moves the campaign to RUNNING and dials the first batch.
func (s *Service) Start(ctx context.Context, id string) (Campaign, error) {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Campaign{}, err
	}
	if c.Status == StatusCompleted {
		return Campaign{}, fmt.Errorf("%w: campaign already completed", ErrValidation)
	}

	c, err = s.store.SetStatus(ctx, id, StatusRunning)
	if err != nil {
		return Campaign{}, err
	}
	if _, err := s.DialNext(ctx, id); err != nil {
		return Campaign{}, err
	}
	return s.store.FindByID(ctx, id)
}

// Stop halts dialing. Calls already in flight run to completion; their
// limiter slots free up as they end.
func (s *Service) Stop(ctx context.Context, id string) (Campaign, error) {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Campaign{}, err
	}
	if c.Status != StatusRunning {
		return c, nil
	}
	return s.store.SetStatus(ctx, id, StatusStopped)
}

// DialNext dials pending targets until the concurrency cap rejects a slot or
// the list is exhausted. It is safe to call at any time; it does nothing for
// campaigns that are not RUNNING. Returns how many targets were dialed.
func (s *Service) DialNext(ctx context.Context, id string) (int, error) {
	log := logger.From(ctx)

	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if c.Status != StatusRunning {
		return 0, nil
	}

	targets, err := s.store.PendingTargets(ctx, id, c.Concurrency)
	if err != nil {
		return 0, err
	}
	if len(targets) == 0 {
		_, err := s.store.SetStatus(ctx, id, StatusCompleted)
		return 0, err
	}

	dialed := 0
	for _, t := range targets {
		ok, err := s.limiter.Acquire(ctx, id, c.Concurrency)
		if err != nil {
			return dialed, err
		}
		if !ok {
			break
		}

		call, err := s.dialer.StartOutbound(ctx, calls.DialParams{To: t.Number})
		if err != nil {
			// Slot back, mark the target so the campaign does not stall on it.
			if rerr := s.limiter.Release(ctx, id); rerr != nil {
				log.Warn("campaign slot release failed", "campaign_id", id, "err", rerr)
			}
			log.Warn("campaign dial failed", "campaign_id", id, "number", t.Number, "err", err)
			if merr := s.store.MarkTarget(ctx, t.ID, TargetFailed, ""); merr != nil {
				return dialed, merr
			}
			continue
		}
		if err := s.store.MarkTarget(ctx, t.ID, TargetDialed, call.ID); err != nil {
			return dialed, err
		}
		dialed++
	}
	return dialed, nil
}

// HandleCallEnded frees the dial slot held by a finished call and tops its
// campaign back up. Calls that belong to no campaign are ignored. The target
// row is the release ledger: duplicate end signals for the same call release
// at most one slot.
func (s *Service) HandleCallEnded(ctx context.Context, callID string) {
	log := logger.From(ctx)

	t, err := s.store.FindTargetByCallID(ctx, callID)
	if errors.Is(err, ErrNotFound) {
		return
	}
	if err != nil {
		log.Warn("campaign target lookup failed", "call_id", callID, "err", err)
		return
	}
	if t.Status != TargetDialed {
		return
	}
	if err := s.store.MarkTarget(ctx, t.ID, TargetCompleted, ""); err != nil {
		log.Warn("campaign target settle failed", "target_id", t.ID, "err", err)
		return
	}
	s.OnCallEnded(ctx, t.CampaignID)
}

// OnCallEnded releases the campaign's limiter slot for a finished call and
// tops the campaign back up.
func (s *Service) OnCallEnded(ctx context.Context, id string) {
	if err := s.limiter.Release(ctx, id); err != nil {
		logger.From(ctx).Warn("campaign slot release failed", "campaign_id", id, "err", err)
	}
	if _, err := s.DialNext(ctx, id); err != nil {
		logger.From(ctx).Warn("campaign refill failed", "campaign_id", id, "err", err)
	}
}

func (s *Service) Get(ctx context.Context, id string) (Campaign, []Target, error) {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Campaign{}, nil, err
	}
	targets, err := s.store.Targets(ctx, id)
	if err != nil {
		return Campaign{}, nil, err
	}
	return c, targets, nil
}

func (s *Service) List(ctx context.Context) ([]Campaign, error) {
	return s.store.List(ctx)
}
