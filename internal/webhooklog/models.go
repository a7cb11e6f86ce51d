package webhooklog

import "time"

// Delivery is the audit record of one inbound provider notification.
//
// Invariants:
// - Created on receipt, updated at most once to mark processed/error.
// - Never deleted by the reconciler; deletion is an operator action via the
//   inspection API only.
type Delivery struct {
	ID     string `json:"id" db:"id"`
	Method string `json:"method" db:"method"`
	URL    string `json:"url" db:"url"`

	// Headers is the JSON-encoded request header map.
	Headers string `json:"headers" db:"headers"`

	// Body is the raw request body, kept verbatim for replay/debugging.
	Body string `json:"body" db:"body"`

	SourceIP  string `json:"sourceIp" db:"source_ip"`
	UserAgent string `json:"userAgent" db:"user_agent"`

	ReceivedAt time.Time `json:"timestamp" db:"received_at"`

	Processed bool   `json:"processed" db:"processed"`
	Error     string `json:"error,omitempty" db:"error"`
}
