package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callcenter-platform/internal/realtime"
	"callcenter-platform/internal/telnyx"
	"callcenter-platform/pkg/logger"
)

var ErrValidation = errors.New("calls: invalid request")

// ProviderConfig carries the provider-side identifiers commands need.
type ProviderConfig struct {
	ConnectionID string
	CallerID     string
	StreamURL    string
}

// Service executes call commands against the provider and keeps the local
// record in step. Commands mutate state synchronously only where the outcome
// is already known (dial creates the record, hangup completes it); everything
// else is left to the webhook reconciler.
type Service struct {
	store    Store
	provider telnyx.Client
	hub      realtime.Broadcaster
	cfg      ProviderConfig
	clock    func() time.Time
}

func NewService(store Store, provider telnyx.Client, hub realtime.Broadcaster, cfg ProviderConfig) *Service {
	if hub == nil {
		hub = realtime.Nop{}
	}
	return &Service{store: store, provider: provider, hub: hub, cfg: cfg, clock: time.Now}
}

// SetClock overrides the service clock; tests only.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

type DialParams struct {
	To      string `json:"to"`
	AgentID string `json:"agentId"`
}

// StartOutbound dials a customer and records the new call. The record exists
// before the provider emits any webhook for the leg, which is what lets the
// reconciler treat outbound call.initiated as an update instead of a create.
func (s *Service) StartOutbound(ctx context.Context, p DialParams) (Call, error) {
	if p.To == "" {
		return Call{}, fmt.Errorf("%w: missing destination number", ErrValidation)
	}

	res, err := s.provider.Dial(ctx, telnyx.DialRequest{
		To:           p.To,
		From:         s.cfg.CallerID,
		ConnectionID: s.cfg.ConnectionID,
	})
	if err != nil {
		return Call{}, err
	}

	created, err := s.store.Create(ctx, Call{
		Direction:      DirectionOutbound,
		Status:         StatusInitiated,
		CustomerNumber: p.To,
		AgentID:        p.AgentID,
		LegA:           res.CallControlID,
	})
	if err != nil {
		// The leg is live but untracked; hang it up rather than leak a call.
		logger.From(ctx).Error("call record create failed after dial, hanging up leg",
			"leg", res.CallControlID, "err", err)
		if herr := s.provider.Hangup(ctx, res.CallControlID); herr != nil {
			logger.From(ctx).Error("orphan leg hangup failed", "leg", res.CallControlID, "err", herr)
		}
		return Call{}, err
	}

	s.hub.Publish(realtime.EventCallUpdate, created)
	return created, nil
}

// Hangup tears down every leg of the call and marks it completed. Terminal
// calls are returned as-is, making repeated hangups harmless.
func (s *Service) Hangup(ctx context.Context, id string) (Call, error) {
	call, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Call{}, err
	}
	if call.Status.IsTerminal() {
		return call, nil
	}

	var hangupErr error
	for _, leg := range []string{call.LegA, call.LegB} {
		if leg == "" {
			continue
		}
		if err := s.provider.Hangup(ctx, leg); err != nil {
			// A leg that already hung up on its own is fine; keep going so the
			// other leg still comes down.
			logger.From(ctx).Warn("provider hangup failed", "call_id", id, "leg", leg, "err", err)
			hangupErr = err
		}
	}
	if hangupErr != nil && call.LegB == "" {
		// Single leg and the provider refused; the call is still up.
		return Call{}, hangupErr
	}

	now := s.clock().UTC()
	status := StatusCompleted
	updated, err := s.store.Update(ctx, id, Patch{Status: &status, EndedAt: &now})
	if err != nil {
		return Call{}, err
	}
	s.hub.Publish(realtime.EventCallUpdate, updated)
	return updated, nil
}

// Bridge connects an existing provider leg into the call and records it as
// the second leg. Status stays webhook-driven: the provider's call.bridged
// event is what moves the call to ACTIVE.
func (s *Service) Bridge(ctx context.Context, id, otherLegID string) (Call, error) {
	if otherLegID == "" {
		return Call{}, fmt.Errorf("%w: missing call_control_id to bridge", ErrValidation)
	}
	call, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Call{}, err
	}
	if call.Status.IsTerminal() {
		return Call{}, fmt.Errorf("%w: call already ended", ErrValidation)
	}

	if err := s.provider.Bridge(ctx, call.LegA, otherLegID); err != nil {
		return Call{}, err
	}
	if call.LegB != "" {
		return call, nil
	}
	updated, err := s.store.Update(ctx, id, Patch{LegB: &otherLegID})
	if err != nil {
		return Call{}, err
	}
	s.hub.Publish(realtime.EventCallUpdate, updated)
	return updated, nil
}

// StartRecording asks the provider to record the call. The recording URL
// arrives later via webhook.
func (s *Service) StartRecording(ctx context.Context, id string) error {
	call, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return s.provider.StartRecording(ctx, call.LegA)
}

// StartAI attaches the provider's AI assistant to the call.
func (s *Service) StartAI(ctx context.Context, id string, cfg telnyx.AIConfig) error {
	call, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return s.provider.StartAI(ctx, call.LegA, cfg)
}

// StartStreaming starts forking call media to streamURL, defaulting to the
// configured destination.
func (s *Service) StartStreaming(ctx context.Context, id, streamURL string) error {
	if streamURL == "" {
		streamURL = s.cfg.StreamURL
	}
	if streamURL == "" {
		return fmt.Errorf("%w: no stream destination configured", ErrValidation)
	}
	call, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return s.provider.StartStreaming(ctx, call.LegA, streamURL)
}

func (s *Service) Get(ctx context.Context, id string) (Call, error) {
	return s.store.FindByID(ctx, id)
}

func (s *Service) ListActive(ctx context.Context) ([]Call, error) {
	return s.store.ListActive(ctx)
}

func (s *Service) History(ctx context.Context, f HistoryFilter) ([]Call, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListHistory(ctx, f)
}
