/**
 * @description
 * Ledger records: pod member transactions, subscription transactions and
 * retry transactions. All three are append-only; status changes happen by
 * updating the referenced row, never by rewriting history.
 */
package domain

import "time"

// PaymentStatus is the outcome of a gateway attempt.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// TransactionType tags pod member ledger rows by settlement stage.
type TransactionType string

const (
	TransactionCharge   TransactionType = "charge"
	TransactionTransfer TransactionType = "transfer"
	TransactionPayout   TransactionType = "payout"
)

// PaymentSubmitType records whether a subscription charge was initiated by
// the daily sweep or by the user.
type PaymentSubmitType string

const (
	PaymentSubmitAuto   PaymentSubmitType = "auto"
	PaymentSubmitManual PaymentSubmitType = "manual"
)

// PodMemberTransaction is one ledger row per gateway outcome in a pod
// settlement cycle. PaymentResponse carries the serialized raw gateway
// payload or error.
type PodMemberTransaction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	PodID           string          `json:"pod_id"`
	TransactionType TransactionType `json:"transaction_type"`
	Status          PaymentStatus   `json:"status"`
	AmountPaid      float64         `json:"amount_paid"`
	PaymentDate     time.Time       `json:"payment_date"`
	PaymentResponse string          `json:"payment_response"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SubscriptionTransaction is one ledger row per subscription charge attempt.
type SubscriptionTransaction struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	SubscriptionID   string            `json:"subscription_id"`
	PaymentStatus    PaymentStatus     `json:"payment_status"`
	PaymentResponse  string            `json:"payment_response"`
	PaymentSubmitted PaymentSubmitType `json:"payment_submitted"`
	CreatedAt        time.Time         `json:"created_at"`
}

// RetryTransaction tracks re-attempts of a failed subscription charge.
// Notes holds the attempt history, most recent first. A retry stops being
// picked up once RetryCount reaches the attempt ceiling or Active is false.
type RetryTransaction struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	RetryCount    int       `json:"retry_count"`
	Notes         []string  `json:"notes"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`

	// Joined from the referenced transaction for retry processing.
	UserID          string  `json:"-"`
	SubscriptionID  string  `json:"-"`
	SubscriptionFee float64 `json:"-"`
}
