package purchase

import "time"

// OutcomeStatus is the terminal state reported for a purchase request.
type OutcomeStatus string

const (
	StatusSettled  OutcomeStatus = "settled"
	StatusRejected OutcomeStatus = "rejected"
)

// PurchaseRequestedEvent asks the service to settle a purchase asynchronously.
type PurchaseRequestedEvent struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Items     []Item `json:"items"`
}

// PurchaseOutcomeEvent reports how a purchase request ended. Records is set
// only when settled; ErrorKind and Reason only when rejected.
type PurchaseOutcomeEvent struct {
	EventID    string        `json:"event_id"`
	RequestID  string        `json:"request_id"`
	UserID     string        `json:"user_id"`
	Status     OutcomeStatus `json:"status"`
	Records    []Record      `json:"records,omitempty"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
