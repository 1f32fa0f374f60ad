/**
 * @description
 * This file implements subscription tier and gateway customer lookups used
 * by validation, billing and the settlement engine.
 */
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shahzaibimran94/save-squad/internal/domain"
)

// GetGatewayCustomer returns the user's payment-gateway references.
func (r *Repository) GetGatewayCustomer(ctx context.Context, userID string) (*domain.GatewayCustomer, error) {
	var customer domain.GatewayCustomer
	query := `SELECT user_id, customer_id, account_id FROM stripe_customers WHERE user_id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&customer.UserID, &customer.CustomerID, &customer.AccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return &customer, nil
}

// GetSubscriptionForUser returns the tier the user's active subscription
// points at, with its feature options decoded.
func (r *Repository) GetSubscriptionForUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	var options []byte
	query := `
		SELECT s.id, s.name, s.fee, s.currency, s.options, s.active
		FROM subscriptions s
		JOIN user_subscriptions us ON us.subscription_id = s.id
		WHERE us.user_id = $1 AND us.active = TRUE
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&sub.ID, &sub.Name, &sub.Fee, &sub.Currency, &options, &sub.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &sub.Options); err != nil {
			return nil, err
		}
	}
	return &sub, nil
}

// ListSubscriptionsDueForBilling returns active subscriptions with no paid
// transaction in the given month, joined with the tier fee. The engine
// applies the activation-day gate on top.
func (r *Repository) ListSubscriptionsDueForBilling(ctx context.Context, monthStart, monthEnd time.Time) ([]domain.UserSubscription, error) {
	query := `
		SELECT us.id, us.user_id, us.subscription_id, us.activation_date, us.active, s.fee, s.currency
		FROM user_subscriptions us
		JOIN subscriptions s ON s.id = us.subscription_id
		WHERE us.active = TRUE
		  AND NOT EXISTS (
			SELECT 1 FROM subscription_transactions st
			WHERE st.user_id = us.user_id
			  AND st.payment_status = 'paid'
			  AND st.created_at >= $1 AND st.created_at < $2
		  )
		ORDER BY us.created_at
	`
	rows, err := r.db.Query(ctx, query, monthStart, monthEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.UserSubscription
	for rows.Next() {
		var sub domain.UserSubscription
		err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.SubscriptionID, &sub.ActivationDate,
			&sub.Active, &sub.Fee, &sub.Currency)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// HasPaidSubscriptionInRange reports whether the user has a paid
// subscription transaction in the given window.
func (r *Repository) HasPaidSubscriptionInRange(ctx context.Context, userID string, start, end time.Time) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM subscription_transactions
			WHERE user_id = $1 AND payment_status = 'paid'
			  AND created_at >= $2 AND created_at < $3
		)
	`
	err := r.db.QueryRow(ctx, query, userID, start, end).Scan(&exists)
	return exists, err
}
