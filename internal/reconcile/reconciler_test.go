package reconcile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/realtime"
	"callcenter-platform/internal/telnyx"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestReconciler() (*Reconciler, *calls.MemoryStore, *realtime.Capture, *testClock) {
	store := calls.NewMemoryStore()
	hub := realtime.NewCapture()
	clock := &testClock{now: time.Unix(1700000000, 0).UTC()}
	store.SetClock(clock.Now)
	r := New(store, hub)
	r.SetClock(clock.Now)
	return r, store, hub, clock
}

func event(eventType string, p telnyx.Payload) telnyx.Event {
	raw, _ := json.Marshal(p)
	return telnyx.Event{Type: eventType, Payload: p, Raw: raw}
}

func TestReconcile_InboundLifecycle(t *testing.T) {
	r, store, hub, clock := newTestReconciler()
	ctx := context.Background()

	out, err := r.Reconcile(ctx, event(telnyx.EventCallInitiated, telnyx.Payload{
		CallControlID: "X1", Direction: telnyx.DirectionIncoming, From: "+15551234567",
	}))
	if err != nil {
		t.Fatalf("initiated: unexpected err: %v", err)
	}
	if out.Action != ActionCreated {
		t.Fatalf("expected created, got %s", out.Action)
	}
	if out.Call.Status != calls.StatusRinging || out.Call.Direction != calls.DirectionInbound {
		t.Fatalf("unexpected call after initiated: %+v", out.Call)
	}
	if out.Call.CustomerNumber != "+15551234567" || out.Call.LegA != "X1" {
		t.Fatalf("unexpected call identity: %+v", out.Call)
	}

	clock.Advance(5 * time.Second)
	out, err = r.Reconcile(ctx, event(telnyx.EventCallAnswered, telnyx.Payload{CallControlID: "X1"}))
	if err != nil {
		t.Fatalf("answered: unexpected err: %v", err)
	}
	if out.Call.Status != calls.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", out.Call.Status)
	}
	if out.Call.AnsweredAt == nil {
		t.Fatalf("expected answeredAt set")
	}

	clock.Advance(30 * time.Second)
	out, err = r.Reconcile(ctx, event(telnyx.EventCallHangup, telnyx.Payload{CallControlID: "X1"}))
	if err != nil {
		t.Fatalf("hangup: unexpected err: %v", err)
	}
	if out.Call.Status != calls.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", out.Call.Status)
	}
	if out.Call.EndedAt == nil {
		t.Fatalf("expected endedAt set")
	}
	if !out.Call.StartedAt.Before(*out.Call.AnsweredAt) || !out.Call.AnsweredAt.Before(*out.Call.EndedAt) {
		t.Fatalf("expected startedAt < answeredAt < endedAt")
	}

	all, _ := store.ListHistory(ctx, calls.HistoryFilter{})
	if len(all) != 1 {
		t.Fatalf("expected exactly one call record, got %d", len(all))
	}
	updates := hub.ByEvent(realtime.EventCallUpdate)
	if len(updates) != 3 {
		t.Fatalf("expected 3 callUpdate broadcasts, got %d", len(updates))
	}
}

func TestReconcile_AnsweredIsIdempotent(t *testing.T) {
	r, store, _, clock := newTestReconciler()
	ctx := context.Background()

	created, err := store.Create(ctx, calls.Call{
		Direction: calls.DirectionInbound, Status: calls.StatusRinging, LegA: "X1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	clock.Advance(time.Second)
	first, err := r.Reconcile(ctx, event(telnyx.EventCallAnswered, telnyx.Payload{CallControlID: "X1"}))
	if err != nil {
		t.Fatalf("first answered: %v", err)
	}

	clock.Advance(10 * time.Second)
	second, err := r.Reconcile(ctx, event(telnyx.EventCallAnswered, telnyx.Payload{CallControlID: "X1"}))
	if err != nil {
		t.Fatalf("second answered: %v", err)
	}

	if second.Call.Status != calls.StatusActive {
		t.Fatalf("expected ACTIVE after duplicate, got %s", second.Call.Status)
	}
	if !second.Call.AnsweredAt.Equal(*first.Call.AnsweredAt) {
		t.Fatalf("answeredAt changed on duplicate: %v vs %v", second.Call.AnsweredAt, first.Call.AnsweredAt)
	}

	got, _ := store.FindByID(ctx, created.ID)
	if !got.AnsweredAt.Equal(*first.Call.AnsweredAt) {
		t.Fatalf("persisted answeredAt changed on duplicate")
	}
}

func TestReconcile_NoDuplicateCreation(t *testing.T) {
	r, store, _, _ := newTestReconciler()
	ctx := context.Background()

	in := event(telnyx.EventCallInitiated, telnyx.Payload{
		CallControlID: "X1", Direction: telnyx.DirectionIncoming, From: "+15551234567",
	})
	if _, err := r.Reconcile(ctx, in); err != nil {
		t.Fatalf("first initiated: %v", err)
	}
	out, err := r.Reconcile(ctx, in)
	if err != nil {
		t.Fatalf("second initiated: %v", err)
	}
	if out.Action != ActionUpdated {
		t.Fatalf("expected redelivery to update, got %s", out.Action)
	}

	all, _ := store.ListHistory(ctx, calls.HistoryFilter{})
	if len(all) != 1 {
		t.Fatalf("expected one call row, got %d", len(all))
	}
}

func TestReconcile_TerminalStability(t *testing.T) {
	r, store, _, clock := newTestReconciler()
	ctx := context.Background()

	created, _ := store.Create(ctx, calls.Call{
		Direction: calls.DirectionInbound, Status: calls.StatusRinging, LegA: "X1",
	})

	// Caller gave up while the call was still ringing.
	clock.Advance(5 * time.Second)
	if _, err := r.Reconcile(ctx, event(telnyx.EventCallHangup, telnyx.Payload{CallControlID: "X1"})); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	// A stale answered after completion must not revive the call and must not
	// stamp an answeredAt later than endedAt.
	clock.Advance(10 * time.Second)
	out, err := r.Reconcile(ctx, event(telnyx.EventCallAnswered, telnyx.Payload{CallControlID: "X1"}))
	if err != nil {
		t.Fatalf("stale answered: %v", err)
	}
	if out.Call.Status != calls.StatusCompleted {
		t.Fatalf("terminal call revived: %s", out.Call.Status)
	}
	if out.Call.AnsweredAt != nil {
		t.Fatalf("stale answered stamped answeredAt=%v after endedAt=%v", out.Call.AnsweredAt, out.Call.EndedAt)
	}

	got, _ := store.FindByID(ctx, created.ID)
	if got.Status != calls.StatusCompleted {
		t.Fatalf("persisted status revived: %s", got.Status)
	}
	if got.AnsweredAt != nil {
		t.Fatalf("persisted answeredAt stamped on ended call: %v", got.AnsweredAt)
	}
}

type endRecorder struct{ ended []string }

func (e *endRecorder) HandleCallEnded(ctx context.Context, callID string) {
	e.ended = append(e.ended, callID)
}

func TestReconcile_TerminalEventsNotifyEndHook(t *testing.T) {
	r, store, _, _ := newTestReconciler()
	hook := &endRecorder{}
	r.SetEndHook(hook)
	ctx := context.Background()

	created, _ := store.Create(ctx, calls.Call{
		Direction: calls.DirectionOutbound, Status: calls.StatusRinging, LegA: "X1",
	})

	// Answered is not an ending.
	if _, err := r.Reconcile(ctx, event(telnyx.EventCallAnswered, telnyx.Payload{CallControlID: "X1"})); err != nil {
		t.Fatalf("answered: %v", err)
	}
	if len(hook.ended) != 0 {
		t.Fatalf("hook fired before call ended: %v", hook.ended)
	}

	if _, err := r.Reconcile(ctx, event(telnyx.EventCallHangup, telnyx.Payload{CallControlID: "X1"})); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if len(hook.ended) != 1 || hook.ended[0] != created.ID {
		t.Fatalf("expected one end notification for %s, got %v", created.ID, hook.ended)
	}

	// A redelivered hangup notifies again; the hook owns dedup.
	if _, err := r.Reconcile(ctx, event(telnyx.EventCallHangup, telnyx.Payload{CallControlID: "X1"})); err != nil {
		t.Fatalf("duplicate hangup: %v", err)
	}
	if len(hook.ended) != 2 {
		t.Fatalf("expected redelivery to notify, got %v", hook.ended)
	}

	// Untracked legs never notify.
	if _, err := r.Reconcile(ctx, event(telnyx.EventCallHangup, telnyx.Payload{CallControlID: "nope"})); err != nil {
		t.Fatalf("untracked hangup: %v", err)
	}
	if len(hook.ended) != 2 {
		t.Fatalf("untracked leg notified the hook: %v", hook.ended)
	}
}

func TestReconcile_NoAnswerNotifiesEndHook(t *testing.T) {
	r, store, _, _ := newTestReconciler()
	hook := &endRecorder{}
	r.SetEndHook(hook)
	ctx := context.Background()

	created, _ := store.Create(ctx, calls.Call{
		Direction: calls.DirectionOutbound, Status: calls.StatusRinging, LegA: "X1",
	})

	if _, err := r.Reconcile(ctx, event(telnyx.EventCallNoAnswer, telnyx.Payload{CallControlID: "X1"})); err != nil {
		t.Fatalf("no answer: %v", err)
	}
	if len(hook.ended) != 1 || hook.ended[0] != created.ID {
		t.Fatalf("expected end notification for %s, got %v", created.ID, hook.ended)
	}
}

func TestReconcile_UntrackedLegIgnored(t *testing.T) {
	r, store, hub, _ := newTestReconciler()
	ctx := context.Background()

	for _, eventType := range []string{
		telnyx.EventCallAnswered,
		telnyx.EventCallBridged,
		telnyx.EventCallHangup,
		telnyx.EventCallNoAnswer,
		telnyx.EventConferenceCreated,
		telnyx.EventRecordingSaved,
		telnyx.EventCallCost,
		telnyx.EventAITranscription,
	} {
		out, err := r.Reconcile(ctx, event(eventType, telnyx.Payload{CallControlID: "nope"}))
		if err != nil {
			t.Fatalf("%s: unexpected err: %v", eventType, err)
		}
		if out.Action != ActionIgnored {
			t.Fatalf("%s: expected ignored, got %s", eventType, out.Action)
		}
	}

	all, _ := store.ListHistory(ctx, calls.HistoryFilter{})
	if len(all) != 0 {
		t.Fatalf("expected no call rows, got %d", len(all))
	}
	if got := hub.ByEvent(realtime.EventCallUpdate); len(got) != 0 {
		t.Fatalf("expected no callUpdate broadcasts, got %d", len(got))
	}
}

func TestReconcile_OutboundInitiatedMatchesDialedCall(t *testing.T) {
	r, store, _, _ := newTestReconciler()
	ctx := context.Background()

	// The dial command creates the record synchronously before any webhook.
	created, _ := store.Create(ctx, calls.Call{
		Direction: calls.DirectionOutbound, Status: calls.StatusInitiated,
		CustomerNumber: "+15557654321", LegA: "Y1", AgentID: "agent-1",
	})

	out, err := r.Reconcile(ctx, event(telnyx.EventCallInitiated, telnyx.Payload{
		CallControlID: "Y1", Direction: telnyx.DirectionOutgoing,
	}))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Action != ActionUpdated || out.Call.ID != created.ID {
		t.Fatalf("expected update of dialed call, got %s %+v", out.Action, out.Call)
	}
	if out.Call.Status != calls.StatusRinging {
		t.Fatalf("expected RINGING, got %s", out.Call.Status)
	}

	all, _ := store.ListHistory(ctx, calls.HistoryFilter{})
	if len(all) != 1 {
		t.Fatalf("expected one call row, got %d", len(all))
	}
}

func TestReconcile_OutboundInitiatedUnknownIsIgnored(t *testing.T) {
	r, store, _, _ := newTestReconciler()
	ctx := context.Background()

	out, err := r.Reconcile(ctx, event(telnyx.EventCallInitiated, telnyx.Payload{
		CallControlID: "Y9", Direction: telnyx.DirectionOutgoing,
	}))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Action != ActionIgnored {
		t.Fatalf("expected ignored, got %s", out.Action)
	}
	all, _ := store.ListHistory(ctx, calls.HistoryFilter{})
	if len(all) != 0 {
		t.Fatalf("expected no rows, got %d", len(all))
	}
}

func TestReconcile_BridgedBeforeAnswered(t *testing.T) {
	r, store, _, _ := newTestReconciler()
	ctx := context.Background()

	store.Create(ctx, calls.Call{
		Direction: calls.DirectionOutbound, Status: calls.StatusRinging, LegA: "Y1",
	})

	// Providers do not guarantee answered-before-bridged ordering.
	out, err := r.Reconcile(ctx, event(telnyx.EventCallBridged, telnyx.Payload{
		CallControlID: "Y1", CallSessionID: "Z2",
	}))
	if err != nil {
		t.Fatalf("bridged: %v", err)
	}
	if out.Call.Status != calls.StatusActive {
		t.Fatalf("expected ACTIVE after bridge, got %s", out.Call.Status)
	}
	if out.Call.LegB != "Z2" {
		t.Fatalf("expected legB Z2, got %q", out.Call.LegB)
	}

	out, err = r.Reconcile(ctx, event(telnyx.EventCallAnswered, telnyx.Payload{CallControlID: "Y1"}))
	if err != nil {
		t.Fatalf("answered: %v", err)
	}
	if out.Call.Status != calls.StatusActive || out.Call.AnsweredAt == nil {
		t.Fatalf("expected ACTIVE with answeredAt, got %+v", out.Call)
	}

	// A later bridge event must not overwrite an established legB.
	out, err = r.Reconcile(ctx, event(telnyx.EventCallBridged, telnyx.Payload{
		CallControlID: "Y1", CallSessionID: "Z3",
	}))
	if err != nil {
		t.Fatalf("re-bridge: %v", err)
	}
	if out.Call.LegB != "Z2" {
		t.Fatalf("legB overwritten: %q", out.Call.LegB)
	}

	// Events addressed to the second leg resolve to the same record.
	out, err = r.Reconcile(ctx, event(telnyx.EventCallHangup, telnyx.Payload{CallControlID: "Z2"}))
	if err != nil {
		t.Fatalf("hangup via legB: %v", err)
	}
	if out.Action != ActionUpdated || out.Call.Status != calls.StatusCompleted {
		t.Fatalf("expected COMPLETED via legB lookup, got %s %s", out.Action, out.Call.Status)
	}
}

func TestReconcile_ConferenceCreatedStoresID(t *testing.T) {
	r, store, _, _ := newTestReconciler()
	ctx := context.Background()

	created, _ := store.Create(ctx, calls.Call{
		Direction: calls.DirectionInbound, Status: calls.StatusActive, LegA: "X1",
	})

	out, err := r.Reconcile(ctx, event(telnyx.EventConferenceCreated, telnyx.Payload{
		CallControlID: "X1", ConferenceID: "conf-77",
	}))
	if err != nil {
		t.Fatalf("conference created: %v", err)
	}
	if out.Action != ActionUpdated {
		t.Fatalf("expected updated, got %s", out.Action)
	}

	got, _ := store.FindByID(ctx, created.ID)
	if got.ConferenceID != "conf-77" {
		t.Fatalf("conference id not stored: %q", got.ConferenceID)
	}
	if got.Status != calls.StatusActive {
		t.Fatalf("status disturbed by conference event: %s", got.Status)
	}

	// A payload without the id has nothing to store.
	out, err = r.Reconcile(ctx, event(telnyx.EventConferenceCreated, telnyx.Payload{CallControlID: "X1"}))
	if err != nil {
		t.Fatalf("empty conference id: %v", err)
	}
	if out.Action != ActionNoop {
		t.Fatalf("expected noop for empty conference id, got %s", out.Action)
	}
}

func TestReconcile_RecordingAndCost(t *testing.T) {
	r, store, _, _ := newTestReconciler()
	ctx := context.Background()

	created, _ := store.Create(ctx, calls.Call{
		Direction: calls.DirectionInbound, Status: calls.StatusActive, LegA: "X1",
	})

	if _, err := r.Reconcile(ctx, event(telnyx.EventRecordingSaved, telnyx.Payload{
		CallControlID: "X1", RecordingURL: "https://cdn.example/rec.mp3",
	})); err != nil {
		t.Fatalf("recording: %v", err)
	}
	if _, err := r.Reconcile(ctx, event(telnyx.EventCallCost, telnyx.Payload{
		CallControlID: "X1", TotalCost: "0.042",
	})); err != nil {
		t.Fatalf("cost: %v", err)
	}

	got, _ := store.FindByID(ctx, created.ID)
	if got.RecordingURL != "https://cdn.example/rec.mp3" {
		t.Fatalf("recording url not stored: %q", got.RecordingURL)
	}
	if got.Cost != 0.042 {
		t.Fatalf("cost not stored: %v", got.Cost)
	}

	// Unparsable cost is ignored, not an error.
	out, err := r.Reconcile(ctx, event(telnyx.EventCallCost, telnyx.Payload{
		CallControlID: "X1", TotalCost: "n/a",
	}))
	if err != nil {
		t.Fatalf("bad cost: %v", err)
	}
	if out.Action != ActionNoop {
		t.Fatalf("expected noop for bad cost, got %s", out.Action)
	}
}

func TestReconcile_AIEventsAreBroadcastOnly(t *testing.T) {
	r, store, hub, _ := newTestReconciler()
	ctx := context.Background()

	created, _ := store.Create(ctx, calls.Call{
		Direction: calls.DirectionInbound, Status: calls.StatusActive, LegA: "X1",
	})

	out, err := r.Reconcile(ctx, event(telnyx.EventAITranscription, telnyx.Payload{CallControlID: "X1"}))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Action != ActionPassthrough {
		t.Fatalf("expected passthrough, got %s", out.Action)
	}

	got, _ := store.FindByID(ctx, created.ID)
	if got.Status != calls.StatusActive {
		t.Fatalf("ai event mutated call: %s", got.Status)
	}

	updates := hub.ByEvent(realtime.EventAIUpdate)
	if len(updates) != 1 {
		t.Fatalf("expected one ai.update broadcast, got %d", len(updates))
	}
	up, ok := updates[0].Payload.(aiUpdate)
	if !ok {
		t.Fatalf("unexpected payload type %T", updates[0].Payload)
	}
	if up.CallID != created.ID || up.Type != "transcription" {
		t.Fatalf("unexpected ai.update: %+v", up)
	}
}

func TestReconcile_UnrecognizedTypeIsNoop(t *testing.T) {
	r, _, hub, _ := newTestReconciler()

	out, err := r.Reconcile(context.Background(), event("call.fork.started", telnyx.Payload{CallControlID: "X1"}))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Action != ActionNoop {
		t.Fatalf("expected noop, got %s", out.Action)
	}
	if len(hub.Events()) != 0 {
		t.Fatalf("expected no broadcasts, got %d", len(hub.Events()))
	}
}
