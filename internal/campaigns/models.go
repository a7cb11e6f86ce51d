package campaigns

import "time"

// Campaign is an outbound dialing list with a per-campaign concurrency cap.
type Campaign struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Status      Status    `json:"status" db:"status"`
	Concurrency int       `json:"concurrency" db:"concurrency"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusRunning   Status = "RUNNING"
	StatusStopped   Status = "STOPPED"
	StatusCompleted Status = "COMPLETED"
)

// Target is one number on a campaign's dial list.
type Target struct {
	ID         string       `json:"id" db:"id"`
	CampaignID string       `json:"campaignId" db:"campaign_id"`
	Number     string       `json:"number" db:"number"`
	Status     TargetStatus `json:"status" db:"status"`

	// CallID links the target to the Call record once dialed.
	CallID string `json:"callId,omitempty" db:"call_id"`

	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type TargetStatus string

const (
	TargetPending   TargetStatus = "PENDING"
	TargetDialed    TargetStatus = "DIALED"
	TargetCompleted TargetStatus = "COMPLETED"
	TargetFailed    TargetStatus = "FAILED"
)
