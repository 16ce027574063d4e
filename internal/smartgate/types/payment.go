package types

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment sources accepted by the guest and wallet flows.
const (
	SourceWallet   = "wallet"
	SourceTouchNGo = "touchngo"
	SourceAdmin    = "admin"
)

// Payment settles exactly one billable target: a guest session or a pass.
type Payment struct {
	ID            string        `json:"id"`
	Amount        Cents         `json:"amount_cents"`
	Status        PaymentStatus `json:"status"`
	Processor     string        `json:"processor"`
	Currency      string        `json:"currency"`
	SessionID     string        `json:"session_id,omitempty"`
	PassID        string        `json:"pass_id,omitempty"`
	Reference     string        `json:"reference,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}
