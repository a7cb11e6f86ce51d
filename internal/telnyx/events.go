package telnyx

import "encoding/json"

// Webhook event types handled by the reconciler. Anything else is ignored.
const (
	EventCallInitiated     = "call.initiated"
	EventCallAnswered      = "call.answered"
	EventCallBridged       = "call.bridged"
	EventCallHangup        = "call.hangup"
	EventCallNoAnswer      = "call.no_answer"
	EventConferenceCreated = "conference.created"
	EventRecordingSaved    = "call.recording.saved"
	EventCallCost          = "call.cost"
	EventAITranscription   = "ai.transcription"
	EventAISuggestion      = "ai.suggestion"
)

// Direction hint values as Telnyx sends them.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Event is one decoded provider notification.
type Event struct {
	Type    string
	Payload Payload

	// Raw is the undecoded payload, passed through to AI broadcast consumers.
	Raw json.RawMessage
}

// Payload is the subset of Telnyx webhook payload fields the control plane
// reads. Everything else stays in Raw.
type Payload struct {
	CallControlID string `json:"call_control_id"`
	CallSessionID string `json:"call_session_id"`
	ConnectionID  string `json:"connection_id"`
	ConferenceID  string `json:"conference_id"`

	Direction    string `json:"direction"`
	From         string `json:"from"`
	To           string `json:"to"`
	CallerIDName string `json:"caller_id_name"`

	RecordingURL string `json:"recording_url"`
	TotalCost    string `json:"total_cost"`
	Currency     string `json:"currency"`
}

type envelope struct {
	Data struct {
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
	} `json:"data"`
}

// DecodeWebhook parses one webhook delivery body.
//
// The second return is false when the body carries no actionable event:
// invalid JSON, a missing data wrapper, or an empty event_type/payload.
// Those are expected background noise (provider health checks and probes),
// not errors.
func DecodeWebhook(body []byte) (Event, bool) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, false
	}
	if env.Data.EventType == "" || len(env.Data.Payload) == 0 {
		return Event{}, false
	}

	var p Payload
	if err := json.Unmarshal(env.Data.Payload, &p); err != nil {
		return Event{}, false
	}
	return Event{
		Type:    env.Data.EventType,
		Payload: p,
		Raw:     env.Data.Payload,
	}, true
}
