/**
 * @description
 * Event payloads published to the savesquad.events topic exchange. The
 * notification layer consumes these to deliver push/mail/SMS; this service
 * only emits.
 */
package domain

import "time"

// Exchange is the topic exchange all service events are published to.
const Exchange = "savesquad.events"

// Routing keys.
const (
	EventMemberCharged       = "pod.member.charged"
	EventMemberChargeFailed  = "pod.member.charge_failed"
	EventTransferCompleted   = "pod.transfer.completed"
	EventMemberPaid          = "pod.member.paid"
	EventPodClosed           = "pod.closed"
	EventCycleUndercollected = "pod.cycle.undercollected"
	EventInvitationCreated   = "pod.invitation.created"
	EventSubscriptionFailed  = "subscription.payment_failed"
)

// PodEvent is the payload for settlement lifecycle events.
type PodEvent struct {
	PodID     string    `json:"pod_id"`
	UserID    string    `json:"user_id,omitempty"`
	Amount    float64   `json:"amount,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// InvitationEvent is published when a join token is issued for a pending
// member. The token travels to the member out of band.
type InvitationEvent struct {
	PodID     string    `json:"pod_id"`
	MemberID  string    `json:"member_id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Timestamp time.Time `json:"timestamp"`
}

// SubscriptionEvent is published when an automatic subscription charge fails.
type SubscriptionEvent struct {
	UserID         string    `json:"user_id"`
	SubscriptionID string    `json:"subscription_id"`
	TransactionID  string    `json:"transaction_id"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
