package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/realtime"
	"callcenter-platform/internal/telnyx"
	"callcenter-platform/pkg/logger"
)

// Action describes what a single Reconcile invocation did.
type Action string

const (
	// ActionCreated: a new Call record was created (inbound call.initiated only).
	ActionCreated Action = "created"
	// ActionUpdated: an existing Call record was patched.
	ActionUpdated Action = "updated"
	// ActionIgnored: the event referenced a leg this instance does not track.
	ActionIgnored Action = "ignored"
	// ActionPassthrough: broadcast-only event (AI), no Call mutation.
	ActionPassthrough Action = "passthrough"
	// ActionNoop: unrecognized event type, nothing to do.
	ActionNoop Action = "noop"
)

// Outcome is the result of reconciling one provider event.
type Outcome struct {
	Action Action
	Call   *calls.Call
}

// Reconciler maps asynchronous, out-of-order, at-least-once provider events
// onto local Call state.
//
// It is stateless between invocations: idempotency and lookups rely entirely
// on the store. Each transition is an idempotent patch (set-once timestamps,
// terminal statuses never revert), so a duplicate delivery converges to the
// same record, and concurrent deliveries for the same leg serialize on the
// store's atomic update rather than on an application lock.
type Reconciler struct {
	store calls.Store
	hub   realtime.Broadcaster
	ended EndHook
	clock func() time.Time
}

// EndHook is notified when a hangup or no-answer event lands on a call that
// is now terminal. Implementations must tolerate duplicate notifications for
// the same call, since providers redeliver.
type EndHook interface {
	HandleCallEnded(ctx context.Context, callID string)
}

func New(store calls.Store, hub realtime.Broadcaster) *Reconciler {
	if hub == nil {
		hub = realtime.Nop{}
	}
	return &Reconciler{store: store, hub: hub, clock: time.Now}
}

// SetEndHook registers h to be notified of call endings.
func (r *Reconciler) SetEndHook(h EndHook) { r.ended = h }

// SetClock overrides the reconciler clock; tests only.
func (r *Reconciler) SetClock(clock func() time.Time) { r.clock = clock }

// Reconcile applies one decoded provider event.
//
// Untracked legs are ignored, not errored: events routinely arrive for calls
// another process handled, or as very late redeliveries after cleanup. The
// only event allowed to create a record is inbound call.initiated; outbound
// calls are created synchronously by the dial command, so an outbound
// call.initiated without a record is ignored too.
func (r *Reconciler) Reconcile(ctx context.Context, ev telnyx.Event) (Outcome, error) {
	log := logger.From(ctx)

	leg := ev.Payload.CallControlID
	call, err := r.store.FindByLeg(ctx, leg)
	found := err == nil
	if err != nil && !errors.Is(err, calls.ErrNotFound) {
		return Outcome{}, err
	}

	now := r.clock().UTC()

	switch ev.Type {
	case telnyx.EventCallInitiated:
		if ev.Payload.Direction == telnyx.DirectionIncoming {
			if !found {
				return r.createInbound(ctx, ev, leg)
			}
			return r.transition(ctx, call, calls.Patch{Status: statusPtr(calls.StatusRinging)})
		}
		if !found {
			log.Debug("outbound call.initiated for unknown leg, ignoring", "leg", leg)
			return Outcome{Action: ActionIgnored}, nil
		}
		return r.transition(ctx, call, calls.Patch{Status: statusPtr(calls.StatusRinging)})

	case telnyx.EventCallAnswered:
		if !found {
			return Outcome{Action: ActionIgnored}, nil
		}
		return r.transition(ctx, call, calls.Patch{
			Status:     statusPtr(calls.StatusActive),
			AnsweredAt: &now,
		})

	case telnyx.EventCallBridged:
		if !found {
			return Outcome{Action: ActionIgnored}, nil
		}
		p := calls.Patch{Status: statusPtr(calls.StatusActive)}
		if peer := peerLeg(call, ev.Payload); call.LegB == "" && peer != "" {
			p.LegB = &peer
		}
		return r.transition(ctx, call, p)

	case telnyx.EventCallHangup:
		if !found {
			return Outcome{Action: ActionIgnored}, nil
		}
		out, err := r.transition(ctx, call, calls.Patch{
			Status:  statusPtr(calls.StatusCompleted),
			EndedAt: &now,
		})
		r.notifyEnded(ctx, out, err)
		return out, err

	case telnyx.EventCallNoAnswer:
		if !found {
			return Outcome{Action: ActionIgnored}, nil
		}
		out, err := r.transition(ctx, call, calls.Patch{Status: statusPtr(calls.StatusNoAnswer)})
		r.notifyEnded(ctx, out, err)
		return out, err

	case telnyx.EventConferenceCreated:
		if !found {
			return Outcome{Action: ActionIgnored}, nil
		}
		// Supervisor monitor/whisper/barge needs this id to attach.
		confID := ev.Payload.ConferenceID
		if confID == "" {
			return Outcome{Action: ActionNoop, Call: &call}, nil
		}
		return r.transition(ctx, call, calls.Patch{ConferenceID: &confID})

	case telnyx.EventRecordingSaved:
		if !found {
			return Outcome{Action: ActionIgnored}, nil
		}
		url := ev.Payload.RecordingURL
		if url == "" {
			return Outcome{Action: ActionNoop, Call: &call}, nil
		}
		return r.transition(ctx, call, calls.Patch{RecordingURL: &url})

	case telnyx.EventCallCost:
		if !found {
			return Outcome{Action: ActionIgnored}, nil
		}
		cost, err := strconv.ParseFloat(strings.TrimSpace(ev.Payload.TotalCost), 64)
		if err != nil {
			log.Debug("unparsable call cost, ignoring", "leg", leg, "total_cost", ev.Payload.TotalCost)
			return Outcome{Action: ActionNoop, Call: &call}, nil
		}
		return r.transition(ctx, call, calls.Patch{Cost: &cost})

	case telnyx.EventAITranscription, telnyx.EventAISuggestion:
		if !found {
			return Outcome{Action: ActionIgnored}, nil
		}
		r.hub.Publish(realtime.EventAIUpdate, aiUpdate{
			CallID: call.ID,
			Type:   strings.TrimPrefix(ev.Type, "ai."),
			Data:   ev.Raw,
		})
		return Outcome{Action: ActionPassthrough, Call: &call}, nil

	default:
		log.Debug("unrecognized webhook event type, ignoring", "event_type", ev.Type)
		return Outcome{Action: ActionNoop}, nil
	}
}

func (r *Reconciler) createInbound(ctx context.Context, ev telnyx.Event, leg string) (Outcome, error) {
	from := ev.Payload.From
	if from == "" {
		from = ev.Payload.CallerIDName
	}
	created, err := r.store.Create(ctx, calls.Call{
		Direction:      calls.DirectionInbound,
		Status:         calls.StatusRinging,
		CustomerNumber: from,
		LegA:           leg,
	})
	if err != nil {
		return Outcome{}, err
	}
	r.hub.Publish(realtime.EventCallUpdate, created)
	return Outcome{Action: ActionCreated, Call: &created}, nil
}

// transition persists one idempotent patch and emits the resulting record,
// not the raw provider payload, so downstream consumers stay decoupled from
// the provider wire format.
func (r *Reconciler) transition(ctx context.Context, c calls.Call, p calls.Patch) (Outcome, error) {
	updated, err := r.store.Update(ctx, c.ID, p)
	if err != nil {
		return Outcome{}, err
	}
	r.hub.Publish(realtime.EventCallUpdate, updated)
	return Outcome{Action: ActionUpdated, Call: &updated}, nil
}

// notifyEnded tells the end hook about a call that reached a terminal state.
// Fires on the final status rather than on the transition edge, so a call
// already completed by the hangup command still notifies on its webhook.
func (r *Reconciler) notifyEnded(ctx context.Context, out Outcome, err error) {
	if err != nil || r.ended == nil || out.Call == nil {
		return
	}
	if out.Call.Status.IsTerminal() {
		r.ended.HandleCallEnded(ctx, out.Call.ID)
	}
}

// peerLeg picks "the other leg" out of a bridged payload.
//
// Rule: the event's own call_control_id confirms the leg the record matched
// on; the payload's call_session_id is treated as the peer. It only counts
// when it differs from both legs we already know about.
func peerLeg(c calls.Call, p telnyx.Payload) string {
	peer := p.CallSessionID
	if peer == "" || peer == c.LegA || peer == c.LegB {
		return ""
	}
	return peer
}

type aiUpdate struct {
	CallID string          `json:"callId"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
}

func statusPtr(s calls.Status) *calls.Status { return &s }
