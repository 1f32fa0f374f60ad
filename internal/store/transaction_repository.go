/**
 * @description
 * This file implements the ledger: pod member transactions, subscription
 * transactions and retry records. Rows are append-only; the only in-place
 * changes are status updates on subscription transactions and attempt
 * bookkeeping on retries.
 */
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shahzaibimran94/save-squad/internal/domain"
)

// InsertPodMemberTransaction appends one pod settlement ledger row.
func (r *Repository) InsertPodMemberTransaction(ctx context.Context, txn *domain.PodMemberTransaction) error {
	txn.ID = uuid.New().String()
	query := `
		INSERT INTO pod_member_transactions
			(id, user_id, pod_id, transaction_type, status, amount_paid, payment_date, payment_response)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		txn.ID, txn.UserID, txn.PodID, txn.TransactionType, txn.Status,
		txn.AmountPaid, txn.PaymentDate, txn.PaymentResponse)
	return err
}

// CountSuccessfulCharges counts paid charge rows for a pod on a given day.
// The transfer stage sizes the payout from this count.
func (r *Repository) CountSuccessfulCharges(ctx context.Context, podID string, onDay time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM pod_member_transactions
		WHERE pod_id = $1
		  AND transaction_type = 'charge'
		  AND status = 'paid'
		  AND payment_date::DATE = $2::DATE
	`
	err := r.db.QueryRow(ctx, query, podID, onDay).Scan(&count)
	return count, err
}

// InsertSubscriptionTransaction appends one subscription charge attempt.
func (r *Repository) InsertSubscriptionTransaction(ctx context.Context, txn *domain.SubscriptionTransaction) (*domain.SubscriptionTransaction, error) {
	txn.ID = uuid.New().String()
	query := `
		INSERT INTO subscription_transactions
			(id, user_id, subscription_id, payment_status, payment_response, payment_submitted)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		txn.ID, txn.UserID, txn.SubscriptionID, txn.PaymentStatus,
		txn.PaymentResponse, txn.PaymentSubmitted).Scan(&txn.CreatedAt)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// MarkSubscriptionTransactionPaid flips a transaction to paid after a
// successful retry.
func (r *Repository) MarkSubscriptionTransactionPaid(ctx context.Context, transactionID, response string) error {
	query := `
		UPDATE subscription_transactions
		SET payment_status = 'paid', payment_response = $1
		WHERE id = $2
	`
	_, err := r.db.Exec(ctx, query, response, transactionID)
	return err
}

// InsertRetryTransaction opens a retry record at attempt zero for a failed
// subscription transaction.
func (r *Repository) InsertRetryTransaction(ctx context.Context, transactionID string) error {
	query := `
		INSERT INTO retry_transactions (id, transaction_id, retry_count, notes, active)
		VALUES ($1, $2, 0, '[]'::jsonb, TRUE)
	`
	_, err := r.db.Exec(ctx, query, uuid.New().String(), transactionID)
	return err
}

// ListActiveRetries returns this month's open retries that still have
// attempts left, joined with the user and tier fee needed to re-charge.
func (r *Repository) ListActiveRetries(ctx context.Context, monthStart, monthEnd time.Time, maxAttempts int) ([]domain.RetryTransaction, error) {
	query := `
		SELECT rt.id, rt.transaction_id, rt.retry_count, rt.notes, rt.active, rt.created_at,
		       st.user_id, st.subscription_id, s.fee
		FROM retry_transactions rt
		JOIN subscription_transactions st ON st.id = rt.transaction_id
		JOIN subscriptions s ON s.id = st.subscription_id
		WHERE rt.active = TRUE
		  AND rt.retry_count < $1
		  AND rt.created_at >= $2 AND rt.created_at < $3
		ORDER BY rt.created_at
	`
	rows, err := r.db.Query(ctx, query, maxAttempts, monthStart, monthEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var retries []domain.RetryTransaction
	for rows.Next() {
		var rt domain.RetryTransaction
		var notes []byte
		err := rows.Scan(
			&rt.ID, &rt.TransactionID, &rt.RetryCount, &notes, &rt.Active, &rt.CreatedAt,
			&rt.UserID, &rt.SubscriptionID, &rt.SubscriptionFee)
		if err != nil {
			return nil, err
		}
		if len(notes) > 0 {
			if err := json.Unmarshal(notes, &rt.Notes); err != nil {
				return nil, err
			}
		}
		retries = append(retries, rt)
	}

	return retries, rows.Err()
}

// UpdateRetryTransaction persists attempt bookkeeping after a retry pass.
func (r *Repository) UpdateRetryTransaction(ctx context.Context, retry *domain.RetryTransaction) error {
	notes, err := json.Marshal(retry.Notes)
	if err != nil {
		return err
	}
	query := `
		UPDATE retry_transactions
		SET retry_count = $1, notes = $2::jsonb, active = $3
		WHERE id = $4
	`
	_, err = r.db.Exec(ctx, query, retry.RetryCount, notes, retry.Active, retry.ID)
	return err
}
