/**
 * @description
 * This file contains the core pod lifecycle logic: creation and update with
 * tier validation, invitation issuance, and the membership state machine
 * (pending -> accepted | declined). Settlement, billing and retries live in
 * their own files on the same Service.
 */
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	mrand "math/rand"
	"time"

	"github.com/shahzaibimran94/save-squad/internal/domain"
	"github.com/shahzaibimran94/save-squad/pkg/rabbitmq"
)

const (
	invitationTTL = 24 * time.Hour

	// transferDelayDays is the gap between a cycle's charge day and the
	// payee's transfer day, and again between transfer and payout confirm.
	transferDelayDays = 7

	// maxRetryAttempts is the subscription charge retry ceiling.
	maxRetryAttempts = 3
)

// Service provides the business logic for pods, settlement and billing.
type Service struct {
	repo      Repository
	gateway   PaymentGateway
	publisher rabbitmq.Publisher
	logger    *slog.Logger
	currency  string
	loc       *time.Location

	// maxConcurrent bounds gateway fan-out within one sweep.
	maxConcurrent int

	rng *mrand.Rand
	now func() time.Time
}

// NewService creates a new pod service instance.
func NewService(repo Repository, gateway PaymentGateway, publisher rabbitmq.Publisher, logger *slog.Logger, currency, timezone string, maxConcurrent int) *Service {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warn("invalid timezone, defaulting to UTC", "timezone", timezone)
		loc = time.UTC
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	return &Service{
		repo:          repo,
		gateway:       gateway,
		publisher:     publisher,
		logger:        logger,
		currency:      currency,
		loc:           loc,
		maxConcurrent: maxConcurrent,
		rng:           mrand.New(mrand.NewSource(time.Now().UnixNano())),
		now:           time.Now,
	}
}

// CreatePodRequest is the payload for pod creation and update.
type CreatePodRequest struct {
	Amount    float64           `json:"amount"`
	StartDate *time.Time        `json:"start_date,omitempty"`
	Members   []CreatePodMember `json:"members"`
}

// CreatePodMember is one requested member with an optional rotation order.
type CreatePodMember struct {
	UserID string `json:"user_id"`
	Order  int    `json:"order"`
}

// CreatePod validates the request against the owner's tier and persists the
// pod. The creator joins auto-accepted; everyone else starts pending and
// gets a single-use invitation token.
func (s *Service) CreatePod(ctx context.Context, ownerID string, req CreatePodRequest) (*domain.Pod, error) {
	tier, err := s.repo.GetSubscriptionForUser(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription tier: %w", err)
	}

	if err := s.validatePodAmount(req.Amount, tier); err != nil {
		return nil, err
	}
	if err := s.validatePodCount(ctx, ownerID, tier); err != nil {
		return nil, err
	}
	if err := validatePodMembers(req.Members, tier); err != nil {
		return nil, err
	}

	pod := &domain.Pod{
		OwnerID:   ownerID,
		Amount:    req.Amount,
		StartDate: req.StartDate,
		Active:    true,
	}
	pod.Members = buildMembers(ownerID, req.Members, tier.PayByChoice(), nil)

	created, err := s.repo.CreatePod(ctx, pod)
	if err != nil {
		return nil, fmt.Errorf("failed to create pod: %w", err)
	}

	if err := s.issueInvitations(ctx, created); err != nil {
		s.logger.Error("failed to issue pod invitations", "pod_id", created.ID, "error", err)
	}

	return created, nil
}

// UpdatePod replaces the member list and amount of a pod. A pod locks once
// its first charge cycle has run. Invitation statuses of existing members
// survive the update; new members start pending.
func (s *Service) UpdatePod(ctx context.Context, ownerID, podID string, req CreatePodRequest) (*domain.Pod, error) {
	pod, err := s.repo.GetPod(ctx, podID)
	if err != nil {
		return nil, err
	}
	if pod.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: only the pod owner can update it", domain.ErrValidation)
	}
	for i := range pod.Members {
		if pod.Members[i].ChargedAt != nil {
			return nil, fmt.Errorf("%w: pod is locked once its first charge cycle has run", domain.ErrValidation)
		}
	}

	tier, err := s.repo.GetSubscriptionForUser(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription tier: %w", err)
	}

	if req.Amount != 0 {
		if err := s.validatePodAmount(req.Amount, tier); err != nil {
			return nil, err
		}
		pod.Amount = req.Amount
	}
	if req.StartDate != nil {
		pod.StartDate = req.StartDate
	}
	if err := validatePodMembers(req.Members, tier); err != nil {
		return nil, err
	}

	existing := make(map[string]domain.InvitationStatus, len(pod.Members))
	for _, m := range pod.Members {
		existing[m.UserID] = m.InvitationStatus
	}

	members := buildMembers(ownerID, req.Members, tier.PayByChoice(), existing)
	if err := s.repo.UpdatePodMembers(ctx, pod, members); err != nil {
		return nil, fmt.Errorf("failed to update pod: %w", err)
	}

	updated, err := s.repo.GetPod(ctx, podID)
	if err != nil {
		return nil, err
	}
	if err := s.issueInvitations(ctx, updated); err != nil {
		s.logger.Error("failed to issue pod invitations", "pod_id", podID, "error", err)
	}

	return updated, nil
}

// GetUserPods returns the caller's own non-expired pods.
func (s *Service) GetUserPods(ctx context.Context, userID string) ([]domain.Pod, error) {
	return s.repo.ListUserPods(ctx, userID)
}

// GetMemberPods returns active pods the caller participates in as a member.
func (s *Service) GetMemberPods(ctx context.Context, userID string) ([]domain.Pod, error) {
	return s.repo.ListMemberPods(ctx, userID)
}

// JoinPod accepts an invitation by token. The token is single-use and
// expires 24 hours after issuance; a reused, expired or unknown token is a
// not-found to the caller. Consuming the token and flipping the member to
// accepted are row-level updates, so a concurrent member-list edit cannot
// resurrect a consumed invitation.
func (s *Service) JoinPod(ctx context.Context, token string) error {
	invitation, err := s.repo.ConsumeInvitation(ctx, token, s.now())
	if err != nil {
		return err
	}

	pod, err := s.repo.GetPod(ctx, invitation.PodID)
	if err != nil {
		return err
	}
	if pod.Expired {
		return fmt.Errorf("pod %s: %w", pod.ID, ErrPodNotJoinable)
	}

	return s.repo.AcceptMember(ctx, invitation.MemberID)
}

// DeclinePod removes the caller from a pod's member list.
func (s *Service) DeclinePod(ctx context.Context, podID, userID string) error {
	if _, err := s.repo.GetPod(ctx, podID); err != nil {
		return err
	}
	return s.repo.RemoveMember(ctx, podID, userID)
}

// ErrPodNotJoinable is returned for join attempts against expired pods.
// Surfaced to callers as a not-found, same as a bad token.
var ErrPodNotJoinable = fmt.Errorf("pod can no longer be joined")

func (s *Service) issueInvitations(ctx context.Context, pod *domain.Pod) error {
	expiresAt := s.now().Add(invitationTTL)

	var invitations []domain.PodInvitation
	var events []domain.InvitationEvent
	for _, m := range pod.Members {
		if m.InvitationStatus != domain.InvitationPending {
			continue
		}
		token, err := generateSecureToken()
		if err != nil {
			return err
		}
		invitations = append(invitations, domain.PodInvitation{
			PodID:     pod.ID,
			MemberID:  m.ID,
			Token:     token,
			ExpiresAt: expiresAt,
			Active:    true,
		})
		events = append(events, domain.InvitationEvent{
			PodID:     pod.ID,
			MemberID:  m.ID,
			UserID:    m.UserID,
			Token:     token,
			ExpiresAt: expiresAt,
			Timestamp: s.now(),
		})
	}

	if len(invitations) == 0 {
		return nil
	}
	if err := s.repo.CreateInvitations(ctx, invitations); err != nil {
		return err
	}

	for _, event := range events {
		if err := s.publisher.Publish(ctx, domain.Exchange, domain.EventInvitationCreated, event); err != nil {
			s.logger.Error("failed to publish invitation event", "pod_id", pod.ID, "error", err)
		}
	}
	return nil
}

func buildMembers(ownerID string, requested []CreatePodMember, payByChoice bool, existing map[string]domain.InvitationStatus) []domain.PodMember {
	members := make([]domain.PodMember, 0, len(requested))
	for i, rm := range requested {
		status := domain.InvitationPending
		if rm.UserID == ownerID {
			status = domain.InvitationAccepted
		} else if existing != nil {
			if prev, ok := existing[rm.UserID]; ok {
				status = prev
			}
		}

		order := 0
		if payByChoice {
			order = rm.Order
		}

		members = append(members, domain.PodMember{
			UserID:           rm.UserID,
			InvitationStatus: status,
			Order:            order,
			Position:         i,
		})
	}
	return members
}

func (s *Service) validatePodAmount(amount float64, tier *domain.Subscription) error {
	if min := tier.Option(domain.OptionPodMinAmount); amount < min {
		return fmt.Errorf("%w: minimum amount required is %.2f", domain.ErrValidation, min)
	}
	if max := tier.Option(domain.OptionPodMaxAmount); amount > max {
		return fmt.Errorf("%w: maximum amount cannot be more than %.2f", domain.ErrValidation, max)
	}
	return nil
}

func (s *Service) validatePodCount(ctx context.Context, ownerID string, tier *domain.Subscription) error {
	pods, err := s.repo.ListUserPods(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to count active pods: %w", err)
	}
	if len(pods) >= int(tier.Option(domain.OptionPods)) {
		return fmt.Errorf("%w: maximum pod limit reached", domain.ErrValidation)
	}
	return nil
}

func validatePodMembers(members []CreatePodMember, tier *domain.Subscription) error {
	if len(members) > int(tier.Option(domain.OptionMembers)) {
		return fmt.Errorf("%w: maximum pod members limit reached", domain.ErrValidation)
	}

	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m.UserID]; dup {
			return fmt.Errorf("%w: duplicate members provided", domain.ErrValidation)
		}
		seen[m.UserID] = struct{}{}
	}
	return nil
}

func generateSecureToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
