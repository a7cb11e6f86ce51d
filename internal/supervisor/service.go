package supervisor

import (
	"context"
	"errors"
	"fmt"

	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/telnyx"
)

// Supervisor join modes. They map straight onto the provider's
// supervisor_role values.
const (
	ModeMonitor = "monitor"
	ModeWhisper = "whisper"
	ModeBarge   = "barge"
)

var (
	ErrValidation = errors.New("supervisor: invalid request")

	// ErrNoConference means the call has no conference to attach to.
	// Supervisor features only work on conference-backed calls.
	ErrNoConference = errors.New("supervisor: call has no conference")
)

// Service attaches supervisor legs to live calls.
//
// The supervisor already has a provider leg (their dashboard softphone dials
// in); this service joins that leg into the call's conference in the
// requested mode. Monitor hears everything and is heard by no one, whisper
// is heard only by the agent leg, barge is a full participant.
type Service struct {
	store    calls.Store
	provider telnyx.Client
}

func NewService(store calls.Store, provider telnyx.Client) *Service {
	return &Service{store: store, provider: provider}
}

type JoinParams struct {
	CallID        string
	SupervisorLeg string
	Mode          string
}

func (s *Service) Join(ctx context.Context, p JoinParams) (calls.Call, error) {
	if p.SupervisorLeg == "" {
		return calls.Call{}, fmt.Errorf("%w: missing supervisor call_control_id", ErrValidation)
	}
	if !validMode(p.Mode) {
		return calls.Call{}, fmt.Errorf("%w: unknown mode %q", ErrValidation, p.Mode)
	}

	call, err := s.store.FindByID(ctx, p.CallID)
	if err != nil {
		return calls.Call{}, err
	}
	if call.Status.IsTerminal() {
		return calls.Call{}, fmt.Errorf("%w: call already ended", ErrValidation)
	}
	if call.ConferenceID == "" {
		return calls.Call{}, ErrNoConference
	}

	opts := telnyx.JoinOptions{SupervisorRole: p.Mode}
	if p.Mode == ModeWhisper {
		opts.WhisperTo = []string{agentLeg(call)}
	}
	if err := s.provider.JoinConference(ctx, call.ConferenceID, p.SupervisorLeg, opts); err != nil {
		return calls.Call{}, err
	}
	return call, nil
}

// Switch changes the mode of an already-joined supervisor leg without
// rejoining the conference.
func (s *Service) Switch(ctx context.Context, supervisorLeg, mode string) error {
	if supervisorLeg == "" {
		return fmt.Errorf("%w: missing supervisor call_control_id", ErrValidation)
	}
	if !validMode(mode) {
		return fmt.Errorf("%w: unknown mode %q", ErrValidation, mode)
	}
	return s.provider.SwitchSupervisorRole(ctx, supervisorLeg, mode)
}

func validMode(mode string) bool {
	switch mode {
	case ModeMonitor, ModeWhisper, ModeBarge:
		return true
	default:
		return false
	}
}

// agentLeg picks the leg the agent is on. Outbound calls put the agent on
// the first leg; inbound calls bridge the agent in as the second.
func agentLeg(c calls.Call) string {
	if c.Direction == calls.DirectionInbound && c.LegB != "" {
		return c.LegB
	}
	return c.LegA
}
