/**
 * @description
 * Subscription billing: a daily sweep charges every active subscriber whose
 * billing anchor falls on today and who has not yet paid this month. Every
 * attempt produces exactly one subscription transaction; failures spawn a
 * retry record for the retry coordinator. Manual payment lets a user settle
 * the month themselves.
 */
package app

import (
	"context"
	"fmt"

	"github.com/shahzaibimran94/save-squad/internal/domain"
)

const subscriptionTag = "subscription"

// ErrAlreadyPaid is returned when a manual payment is attempted for a month
// that already has a paid transaction.
var ErrAlreadyPaid = fmt.Errorf("subscription already paid for this month")

// RunDailySubscriptionBilling charges every subscription due today. Gateway
// calls fan out on a bounded group and all outcomes are awaited; a failed
// charge never blocks the rest of the sweep.
func (s *Service) RunDailySubscriptionBilling(ctx context.Context) error {
	today := s.now().In(s.loc)
	monthStart, monthEnd := monthRange(today)

	due, err := s.repo.ListSubscriptionsDueForBilling(ctx, monthStart, monthEnd)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions due for billing: %w", err)
	}

	g, gctx := s.boundedGroup(ctx)
	billed := 0
	for i := range due {
		sub := due[i]
		if !isAnchorDay(sub.ActivationDate.Day(), today) {
			continue
		}
		billed++
		g.Go(func() error {
			s.billSubscription(gctx, sub)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("subscription billing sweep finished", "evaluated", len(due), "billed", billed)
	return nil
}

// billSubscription charges one subscriber's tier fee and records the
// outcome. A failure also opens a retry record at attempt zero.
func (s *Service) billSubscription(ctx context.Context, sub domain.UserSubscription) {
	status, response := s.chargeUserCard(ctx, sub.UserID, sub.Fee, subscriptionTag)

	txn, err := s.repo.InsertSubscriptionTransaction(ctx, &domain.SubscriptionTransaction{
		UserID:           sub.UserID,
		SubscriptionID:   sub.SubscriptionID,
		PaymentStatus:    status,
		PaymentResponse:  response,
		PaymentSubmitted: domain.PaymentSubmitAuto,
	})
	if err != nil {
		s.logger.Error("failed to record subscription transaction", "user_id", sub.UserID, "error", err)
		return
	}

	if status != domain.PaymentFailed {
		return
	}

	if err := s.repo.InsertRetryTransaction(ctx, txn.ID); err != nil {
		s.logger.Error("failed to open retry record", "transaction_id", txn.ID, "error", err)
	}
	s.publishSubscriptionFailure(ctx, sub.UserID, sub.SubscriptionID, txn.ID, response)
}

// PaySubscriptionManually charges the caller's tier fee outside the daily
// sweep. Rejected when the month already has a paid transaction. Manual
// failures do not spawn retries; the user can simply try again.
func (s *Service) PaySubscriptionManually(ctx context.Context, userID string) (*domain.SubscriptionTransaction, error) {
	tier, err := s.repo.GetSubscriptionForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription tier: %w", err)
	}

	monthStart, monthEnd := monthRange(s.now().In(s.loc))
	paid, err := s.repo.HasPaidSubscriptionInRange(ctx, userID, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to check payment state: %w", err)
	}
	if paid {
		return nil, ErrAlreadyPaid
	}

	status, response := s.chargeUserCard(ctx, userID, tier.Fee, subscriptionTag)

	return s.repo.InsertSubscriptionTransaction(ctx, &domain.SubscriptionTransaction{
		UserID:           userID,
		SubscriptionID:   tier.ID,
		PaymentStatus:    status,
		PaymentResponse:  response,
		PaymentSubmitted: domain.PaymentSubmitManual,
	})
}

func (s *Service) publishSubscriptionFailure(ctx context.Context, userID, subscriptionID, transactionID, reason string) {
	if s.publisher == nil {
		return
	}
	event := domain.SubscriptionEvent{
		UserID:         userID,
		SubscriptionID: subscriptionID,
		TransactionID:  transactionID,
		Reason:         reason,
		Timestamp:      s.now(),
	}
	if err := s.publisher.Publish(ctx, domain.Exchange, domain.EventSubscriptionFailed, event); err != nil {
		s.logger.Error("failed to publish subscription failure event", "user_id", userID, "error", err)
	}
}
