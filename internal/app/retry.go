/**
 * @description
 * Retry coordinator: re-attempts failed subscription charges on subsequent
 * days, bounded by a three-attempt ceiling. Each pass appends a note to the
 * retry's attempt history (most recent first); a successful re-charge closes
 * the retry and flips the linked transaction to paid.
 */
package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shahzaibimran94/save-squad/internal/domain"
)

// RunDailySubscriptionRetries walks the month's active retry records that
// still have attempts left. The attempt counter increments whether or not a
// card was found, so a subscriber with no payment method cannot be probed
// forever. A retry that exhausts its attempts simply stops being selected.
func (s *Service) RunDailySubscriptionRetries(ctx context.Context) error {
	today := s.now().In(s.loc)
	monthStart, monthEnd := monthRange(today)

	retries, err := s.repo.ListActiveRetries(ctx, monthStart, monthEnd, maxRetryAttempts)
	if err != nil {
		return fmt.Errorf("failed to list active retries: %w", err)
	}
	if len(retries) == 0 {
		return nil
	}

	s.logger.Info("processing subscription retries", "count", len(retries))

	for i := range retries {
		retry := &retries[i]
		retry.RetryCount++

		status, response := s.chargeUserCard(ctx, retry.UserID, retry.SubscriptionFee, subscriptionTag)
		retry.Notes = append([]string{attemptNote(status, response)}, retry.Notes...)

		if status == domain.PaymentPaid {
			retry.Active = false
			if err := s.repo.MarkSubscriptionTransactionPaid(ctx, retry.TransactionID, response); err != nil {
				s.logger.Error("failed to mark transaction paid", "transaction_id", retry.TransactionID, "error", err)
			}
		}

		if err := s.repo.UpdateRetryTransaction(ctx, retry); err != nil {
			s.logger.Error("failed to update retry record", "retry_id", retry.ID, "error", err)
		}
	}

	return nil
}

// attemptNote is the serialized history entry for one retry attempt.
func attemptNote(status domain.PaymentStatus, response string) string {
	note, err := json.Marshal(map[string]string{
		"status": string(status),
		"raw":    response,
	})
	if err != nil {
		return fmt.Sprintf(`{"status":%q}`, status)
	}
	return string(note)
}
