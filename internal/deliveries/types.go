package deliveries

import "time"

// Outcome classifies how an inbound webhook delivery ended.
type Outcome string

const (
	// OutcomeHandshake means the delivery was a URL-verification challenge.
	OutcomeHandshake Outcome = "handshake"
	// OutcomeProcessed means a reply was generated and dispatched.
	OutcomeProcessed Outcome = "processed"
	// OutcomeDuplicate means the message id had already been handled.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeFailed means the pipeline aborted before a reply was confirmed.
	OutcomeFailed Outcome = "failed"
)

// Entry is one row in the delivery log.
type Entry struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
