package mailer

import (
	"time"
)

// Status represents the delivery status of a queued email
type Status string

const (
	StatusPending   Status = "pending"
	StatusSending   Status = "sending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusDeferred  Status = "deferred"
)

// Email is an outbound message held in the delivery queue
type Email struct {
	ID          string    `json:"id"`
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	NextRetryAt time.Time `json:"next_retry_at"`
	RetryCount  int       `json:"retry_count"`
	LastError   string    `json:"last_error,omitempty"`
}

// QueueStats summarizes the state of the delivery queue
type QueueStats struct {
	Pending   int64 `json:"pending"`
	Sending   int64 `json:"sending"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Deferred  int64 `json:"deferred"`
	Total     int64 `json:"total"`
}
