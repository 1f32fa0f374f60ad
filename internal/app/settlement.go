/**
 * @description
 * The settlement engine. One daily pass walks every active pod through its
 * per-member state machine: charge every member on the pod's anchor day,
 * transfer the pot to the cycle's payee seven days later, confirm the payout
 * seven days after that, and close the pod once everyone has been paid.
 *
 * Every stage is gated on the absence of the next date stamp, so re-running
 * a pass on the same day is a no-op. Gateway calls fan out on a bounded
 * worker group and are all awaited; one member's failure never cancels or
 * blocks siblings, and every outcome lands as its own ledger row.
 */
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shahzaibimran94/save-squad/internal/domain"
	"github.com/shahzaibimran94/save-squad/pkg/stripeclient"
)

const chargeTag = "saving-pod"

// RunDailyPodSettlement executes the four settlement sweeps for today:
// charges, transfers, payout confirmations and pod closes. Invoked once per
// day by the scheduler; the trigger owns mutual exclusion between runs.
func (s *Service) RunDailyPodSettlement(ctx context.Context) error {
	today := s.now().In(s.loc)

	pods, err := s.repo.ListPodsForSettlement(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pods for settlement: %w", err)
	}

	for i := range pods {
		pod := &pods[i]
		if s.podDueForCharge(pod, today) {
			s.chargePodMembers(ctx, pod, today)
		}
		s.runPodTransfers(ctx, pod, today)
		s.runPodPayouts(ctx, pod, today)
		s.closePodIfComplete(ctx, pod)
	}

	return nil
}

// podDueForCharge applies the charge-stage gate: the pod is active and
// unexpired, fully accepted, anchored on today, still has an unpaid member,
// and has not already been charged today.
func (s *Service) podDueForCharge(pod *domain.Pod, today time.Time) bool {
	if !pod.Active || pod.Expired || pod.StartDate == nil || len(pod.Members) == 0 {
		return false
	}
	if !pod.AllMembersAccepted() || pod.AllMembersPaid() {
		return false
	}
	if !isAnchorDay(pod.StartDate.Day(), today) {
		return false
	}
	for i := range pod.Members {
		if pod.Members[i].ChargedAt != nil && sameDay(*pod.Members[i].ChargedAt, today) {
			return false
		}
	}
	return true
}

// chargePodMembers charges every member their gross share concurrently and
// stamps the cycle calendar. The payee for this cycle is selected before
// charging so the transfer schedule does not depend on charge outcomes; the
// calendar advances even under partial failure, and the transfer stage later
// pays out only what was actually collected.
func (s *Service) chargePodMembers(ctx context.Context, pod *domain.Pod, today time.Time) {
	tier, err := s.repo.GetSubscriptionForUser(ctx, pod.OwnerID)
	if err != nil {
		s.logger.Error("failed to load owner tier, skipping pod charge", "pod_id", pod.ID, "error", err)
		return
	}

	payeeIdx, ok := SelectPayee(pod.Members, tier.PayByChoice(), s.rng)
	if !ok {
		return
	}

	netShare := pod.Amount / float64(len(pod.Members))
	gross := GrossChargeAmount(netShare)

	s.logger.Info("charging pod members",
		"pod_id", pod.ID, "members", len(pod.Members), "gross", gross,
		"payee", pod.Members[payeeIdx].UserID)

	g, gctx := s.boundedGroup(ctx)
	for i := range pod.Members {
		member := &pod.Members[i]
		g.Go(func() error {
			s.chargeMember(gctx, pod, member, gross, today)
			return nil
		})
	}
	// Workers never return errors; failures become ledger rows.
	_ = g.Wait()

	payee := &pod.Members[payeeIdx]
	transferAt := startOfDay(today).AddDate(0, 0, transferDelayDays)
	if err := s.repo.ScheduleMemberTransfer(ctx, payee.ID, transferAt); err != nil {
		s.logger.Error("failed to schedule transfer", "pod_id", pod.ID, "member_id", payee.ID, "error", err)
		return
	}
	payee.TransferAt = &transferAt
}

// chargeMember runs one member's gateway charge and records exactly one
// ledger row for the outcome. The charged-at stamp advances regardless of
// the charge result.
func (s *Service) chargeMember(ctx context.Context, pod *domain.Pod, member *domain.PodMember, gross float64, today time.Time) {
	status, response := s.chargeUserCard(ctx, member.UserID, gross, chargeTag)

	txn := &domain.PodMemberTransaction{
		UserID:          member.UserID,
		PodID:           pod.ID,
		TransactionType: domain.TransactionCharge,
		Status:          status,
		AmountPaid:      gross,
		PaymentDate:     today,
		PaymentResponse: response,
	}
	if err := s.repo.InsertPodMemberTransaction(ctx, txn); err != nil {
		s.logger.Error("failed to record charge transaction", "pod_id", pod.ID, "user_id", member.UserID, "error", err)
	}

	if err := s.repo.StampMemberCharged(ctx, member.ID, today); err != nil {
		s.logger.Error("failed to stamp member charged", "pod_id", pod.ID, "member_id", member.ID, "error", err)
	} else {
		chargedAt := today
		member.ChargedAt = &chargedAt
	}

	routingKey := domain.EventMemberCharged
	if status == domain.PaymentFailed {
		routingKey = domain.EventMemberChargeFailed
		s.logger.Warn("pod member charge failed", "pod_id", pod.ID, "user_id", member.UserID)
	}
	s.publishPodEvent(ctx, routingKey, domain.PodEvent{
		PodID:     pod.ID,
		UserID:    member.UserID,
		Amount:    gross,
		Timestamp: s.now(),
	})
}

// chargeUserCard charges a user's default card, falling back to the first
// card on file. Gateway errors are never propagated; the serialized failure
// becomes the ledger row's payment response.
func (s *Service) chargeUserCard(ctx context.Context, userID string, amount float64, tag string) (domain.PaymentStatus, string) {
	customer, err := s.repo.GetGatewayCustomer(ctx, userID)
	if err != nil {
		return domain.PaymentFailed, serializeFailure("no gateway customer on file", err)
	}

	methods, err := s.gateway.ListPaymentMethods(ctx, customer.CustomerID)
	if err != nil {
		return domain.PaymentFailed, serializeFailure("failed to list payment methods", err)
	}

	card, reason := pickCard(methods.Cards)
	if card == nil {
		return domain.PaymentFailed, serializeFailure(reason, nil)
	}

	result, err := s.gateway.CreatePaymentIntent(ctx, customer.CustomerID, card.ID, MinorUnits(amount), s.currency, tag)
	if err != nil {
		return domain.PaymentFailed, serializeFailure("charge declined", err)
	}

	return domain.PaymentPaid, result.Raw
}

// runPodTransfers moves the collected pot to members whose transfer day is
// today. The amount is derived from the cycle's successful charge rows, so
// an under-collected pot pays out only what actually arrived.
func (s *Service) runPodTransfers(ctx context.Context, pod *domain.Pod, today time.Time) {
	if len(pod.Members) == 0 {
		return
	}
	netShare := pod.Amount / float64(len(pod.Members))

	for i := range pod.Members {
		member := &pod.Members[i]
		if member.TransferAt == nil || member.PayAt != nil {
			continue
		}
		if member.TransferAt.Day() != today.Day() {
			continue
		}

		chargeDay := member.TransferAt.AddDate(0, 0, -transferDelayDays)
		collected, err := s.repo.CountSuccessfulCharges(ctx, pod.ID, chargeDay)
		if err != nil {
			s.logger.Error("failed to count cycle charges", "pod_id", pod.ID, "error", err)
			continue
		}

		amount := netShare * float64(collected)
		if collected < len(pod.Members) {
			s.logger.Warn("pod cycle under-collected",
				"pod_id", pod.ID, "collected", collected, "members", len(pod.Members))
			s.publishPodEvent(ctx, domain.EventCycleUndercollected, domain.PodEvent{
				PodID:     pod.ID,
				UserID:    member.UserID,
				Amount:    amount,
				Reason:    fmt.Sprintf("%d of %d charges collected", collected, len(pod.Members)),
				Timestamp: s.now(),
			})
		}
		if collected == 0 {
			// Nothing to move; leave the stamps so the next cycle proceeds.
			s.logger.Warn("skipping transfer, nothing collected", "pod_id", pod.ID, "member_id", member.ID)
		}

		status, response := s.transferToUser(ctx, member.UserID, amount)

		txn := &domain.PodMemberTransaction{
			UserID:          member.UserID,
			PodID:           pod.ID,
			TransactionType: domain.TransactionTransfer,
			Status:          status,
			AmountPaid:      amount,
			PaymentDate:     today,
			PaymentResponse: response,
		}
		if err := s.repo.InsertPodMemberTransaction(ctx, txn); err != nil {
			s.logger.Error("failed to record transfer transaction", "pod_id", pod.ID, "user_id", member.UserID, "error", err)
		}

		payAt := startOfDay(today).AddDate(0, 0, transferDelayDays)
		if err := s.repo.StampMemberTransferred(ctx, member.ID, today, payAt); err != nil {
			s.logger.Error("failed to stamp member transferred", "pod_id", pod.ID, "member_id", member.ID, "error", err)
			continue
		}
		transferedAt := today
		member.TransferedAt = &transferedAt
		member.PayAt = &payAt

		if status == domain.PaymentPaid {
			s.publishPodEvent(ctx, domain.EventTransferCompleted, domain.PodEvent{
				PodID:     pod.ID,
				UserID:    member.UserID,
				Amount:    amount,
				Timestamp: s.now(),
			})
		}
	}
}

// transferToUser sends funds to the user's payout account.
func (s *Service) transferToUser(ctx context.Context, userID string, amount float64) (domain.PaymentStatus, string) {
	if amount <= 0 {
		return domain.PaymentFailed, serializeFailure("nothing collected for cycle", nil)
	}

	customer, err := s.repo.GetGatewayCustomer(ctx, userID)
	if err != nil {
		return domain.PaymentFailed, serializeFailure("no gateway customer on file", err)
	}

	result, err := s.gateway.CreateTransfer(ctx, customer.AccountID, MinorUnits(amount), s.currency)
	if err != nil {
		return domain.PaymentFailed, serializeFailure("transfer failed", err)
	}
	return domain.PaymentPaid, result.Raw
}

// runPodPayouts confirms settlement for members whose pay day is today.
func (s *Service) runPodPayouts(ctx context.Context, pod *domain.Pod, today time.Time) {
	for i := range pod.Members {
		member := &pod.Members[i]
		if member.PayAt == nil || member.PaidAt != nil || member.TransferedAt == nil {
			continue
		}
		if member.PayAt.Day() != today.Day() {
			continue
		}

		txn := &domain.PodMemberTransaction{
			UserID:          member.UserID,
			PodID:           pod.ID,
			TransactionType: domain.TransactionPayout,
			Status:          domain.PaymentPaid,
			AmountPaid:      pod.Amount,
			PaymentDate:     today,
			PaymentResponse: `{"status":"settled"}`,
		}
		if err := s.repo.InsertPodMemberTransaction(ctx, txn); err != nil {
			s.logger.Error("failed to record payout transaction", "pod_id", pod.ID, "user_id", member.UserID, "error", err)
		}

		if err := s.repo.StampMemberPaid(ctx, member.ID, today); err != nil {
			s.logger.Error("failed to stamp member paid", "pod_id", pod.ID, "member_id", member.ID, "error", err)
			continue
		}
		paidAt := today
		member.PaidAt = &paidAt

		s.publishPodEvent(ctx, domain.EventMemberPaid, domain.PodEvent{
			PodID:     pod.ID,
			UserID:    member.UserID,
			Amount:    pod.Amount,
			Timestamp: s.now(),
		})
	}
}

// closePodIfComplete expires a pod once every member has been paid out.
// Expiry is terminal.
func (s *Service) closePodIfComplete(ctx context.Context, pod *domain.Pod) {
	if pod.Expired || !pod.AllMembersPaid() {
		return
	}

	if err := s.repo.MarkPodExpired(ctx, pod.ID); err != nil {
		s.logger.Error("failed to mark pod expired", "pod_id", pod.ID, "error", err)
		return
	}
	pod.Expired = true
	pod.Active = false

	s.logger.Info("pod completed rotation, closing", "pod_id", pod.ID)
	s.publishPodEvent(ctx, domain.EventPodClosed, domain.PodEvent{
		PodID:     pod.ID,
		Timestamp: s.now(),
	})
}

func (s *Service) boundedGroup(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	return g, gctx
}

func (s *Service) publishPodEvent(ctx context.Context, routingKey string, event domain.PodEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, domain.Exchange, routingKey, event); err != nil {
		s.logger.Error("failed to publish pod event", "routing_key", routingKey, "error", err)
	}
}

// pickCard returns the default card, falling back to the first card on
// file. A nil card comes with the reason recorded on the failed ledger row.
func pickCard(cards []stripeclient.Card) (*stripeclient.Card, string) {
	if len(cards) == 0 {
		return nil, noCardAvailable
	}
	for i := range cards {
		if cards[i].IsDefault {
			return &cards[i], ""
		}
	}
	return &cards[0], ""
}

const noCardAvailable = "no card available"

// serializeFailure packs a failure reason and the underlying error into the
// JSON shape stored in payment_response columns.
func serializeFailure(reason string, err error) string {
	payload := map[string]string{
		"status": string(domain.PaymentFailed),
		"raw":    reason,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	out, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return fmt.Sprintf(`{"status":"failed","raw":%q}`, reason)
	}
	return string(out)
}
