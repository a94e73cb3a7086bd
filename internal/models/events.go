package models

import "time"

// Event types
const (
	EventTypeOrderSubmitted        = "ORDER_SUBMITTED"
	EventTypeOrderSubmissionFailed = "ORDER_SUBMISSION_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderSubmittedEvent published when the ledger acknowledged an order
type OrderSubmittedEvent struct {
	BaseEvent
	Order    Order  `json:"order"`
	Strategy string `json:"strategy"`
	Message  string `json:"message,omitempty"`
}

// OrderSubmissionFailedEvent published when a submission ended without an ack
type OrderSubmissionFailedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Seller  string `json:"seller"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
}
