/**
 * @description
 * Domain models for saving pods, their members and invitations.
 */
package domain

import (
	"errors"
	"time"
)

// ErrValidation marks synchronous validation failures surfaced to the caller.
var ErrValidation = errors.New("validation failed")

// InvitationStatus is the lifecycle state of a pod member's invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Pod is a rotating-savings pool. Amount is the per-cycle pool total in
// pounds; StartDate anchors the charge day-of-month. Version guards
// member-list updates against concurrent invitation accepts.
type Pod struct {
	ID        string      `json:"id"`
	OwnerID   string      `json:"owner_id"`
	Amount    float64     `json:"amount"`
	StartDate *time.Time  `json:"start_date,omitempty"`
	Members   []PodMember `json:"members"`
	Active    bool        `json:"active"`
	Expired   bool        `json:"expired"`
	Version   int         `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// PodMember is one participant in a pod. The nullable timestamps record the
// member's progress through a settlement cycle: charged, scheduled for
// transfer, transferred, scheduled for payout confirmation, paid out.
type PodMember struct {
	ID               string           `json:"id"`
	PodID            string           `json:"-"`
	UserID           string           `json:"user_id"`
	InvitationStatus InvitationStatus `json:"invitation_status"`
	Order            int              `json:"order"`
	Position         int              `json:"-"`
	AddedAt          time.Time        `json:"added_at"`
	ChargedAt        *time.Time       `json:"charged_at,omitempty"`
	TransferAt       *time.Time       `json:"transfer_at,omitempty"`
	TransferedAt     *time.Time       `json:"transfered_at,omitempty"`
	PayAt            *time.Time       `json:"pay_at,omitempty"`
	PaidAt           *time.Time       `json:"paid_at,omitempty"`
}

// AllMembersAccepted reports whether every member has accepted their
// invitation. Pods with pending members are not charged.
func (p *Pod) AllMembersAccepted() bool {
	for i := range p.Members {
		if p.Members[i].InvitationStatus != InvitationAccepted {
			return false
		}
	}
	return true
}

// AllMembersPaid reports whether every member has received their payout.
// True means the pod has completed its rotation and must be closed.
func (p *Pod) AllMembersPaid() bool {
	for i := range p.Members {
		if p.Members[i].PaidAt == nil {
			return false
		}
	}
	return len(p.Members) > 0
}

// PodInvitation is a single-use join token for a pending member, valid for
// 24 hours from creation.
type PodInvitation struct {
	ID        string    `json:"id"`
	PodID     string    `json:"pod_id"`
	MemberID  string    `json:"member_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	IsUsed    bool      `json:"is_used"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
