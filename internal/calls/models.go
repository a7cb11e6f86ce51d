package calls

import "time"

// Call represents one logical end-to-end conversation. A bridged call spans
// two provider legs (LegA, LegB) but stays a single record.
//
// Status and the lifecycle timestamps are mutated only by the event
// reconciler, or by the explicit hangup command. Both paths move status
// forward toward a terminal state, so record-level last-writer-wins is safe.

type Call struct {
	ID        string    `json:"id" db:"id"`
	Direction Direction `json:"direction" db:"direction"`
	Status    Status    `json:"status" db:"status"`

	CustomerNumber string `json:"customerNumber" db:"customer_number"`

	// AgentID is set for agent-initiated outbound calls; inbound calls have
	// no agent until one is assigned.
	AgentID string `json:"agentId,omitempty" db:"agent_id"`

	// LegA is the provider call_control_id of the first leg; LegB is set once
	// a second leg is bridged in.
	LegA string `json:"legA,omitempty" db:"leg_a"`
	LegB string `json:"legB,omitempty" db:"leg_b"`

	// ConferenceID is required before supervisor monitor/whisper/barge can attach.
	ConferenceID string `json:"conferenceId,omitempty" db:"conference_id"`

	RecordingURL string  `json:"recordingUrl,omitempty" db:"recording_url"`
	Cost         float64 `json:"cost,omitempty" db:"cost"`

	StartedAt  time.Time  `json:"startedAt" db:"started_at"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty" db:"answered_at"`
	EndedAt    *time.Time `json:"endedAt,omitempty" db:"ended_at"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Status string

const (
	StatusInitiated Status = "INITIATED"
	StatusRinging   Status = "RINGING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusNoAnswer  Status = "NO_ANSWER"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether s is a terminal status. Terminal calls are never
// revived into a non-terminal state, regardless of late or duplicate events.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusNoAnswer, StatusFailed:
		return true
	default:
		return false
	}
}

// Patch is a partial update applied atomically to one Call record.
//
// Application rules (enforced by every Store implementation):
//   - Status: ignored when the record is already terminal and the patch
//     status is non-terminal.
//   - AnsweredAt: set only if currently unset and the record is not already
//     terminal. A late answered event must never stamp a time after EndedAt.
//   - EndedAt: set only if currently unset.
//   - LegB/ConferenceID/RecordingURL/Cost/AgentID: plain overwrite.
type Patch struct {
	Status       *Status
	AgentID      *string
	LegB         *string
	ConferenceID *string
	RecordingURL *string
	Cost         *float64
	AnsweredAt   *time.Time
	EndedAt      *time.Time
}

// IsZero reports whether the patch would change nothing.
func (p Patch) IsZero() bool {
	return p.Status == nil && p.AgentID == nil && p.LegB == nil &&
		p.ConferenceID == nil && p.RecordingURL == nil && p.Cost == nil &&
		p.AnsweredAt == nil && p.EndedAt == nil
}

// applyPatch applies p to c under the rules documented on Patch.
// Shared by the memory store; the postgres store expresses the same rules in SQL.
func applyPatch(c *Call, p Patch, now time.Time) {
	wasTerminal := c.Status.IsTerminal()
	if p.Status != nil {
		if !(c.Status.IsTerminal() && !p.Status.IsTerminal()) {
			c.Status = *p.Status
		}
	}
	if p.AgentID != nil {
		c.AgentID = *p.AgentID
	}
	if p.LegB != nil {
		c.LegB = *p.LegB
	}
	if p.ConferenceID != nil {
		c.ConferenceID = *p.ConferenceID
	}
	if p.RecordingURL != nil {
		c.RecordingURL = *p.RecordingURL
	}
	if p.Cost != nil {
		c.Cost = *p.Cost
	}
	if p.AnsweredAt != nil && c.AnsweredAt == nil && !wasTerminal {
		t := *p.AnsweredAt
		c.AnsweredAt = &t
	}
	if p.EndedAt != nil && c.EndedAt == nil {
		t := *p.EndedAt
		c.EndedAt = &t
	}
	c.UpdatedAt = now
}
