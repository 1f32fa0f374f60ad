/**
 * @description
 * Subscription tiers and user subscriptions. Tier feature options gate what
 * a user can do with pods (active pod count, member count, amount range,
 * pay-by-choice rotation).
 */
package domain

import "time"

// Tier option keys as stored in the subscriptions feature set.
const (
	OptionPods         = "pods"
	OptionMembers      = "members"
	OptionPodMinAmount = "pod-min-amount"
	OptionPodMaxAmount = "pod-max-amount"
	OptionPayByChoice  = "pod-pay-by-choice"
)

// Subscription is a tier from the catalog.
type Subscription struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Fee      float64            `json:"fee"`
	Currency string             `json:"currency"`
	Options  map[string]float64 `json:"options"`
	Active   bool               `json:"active"`
}

// Option returns a tier feature value, zero when absent.
func (s *Subscription) Option(key string) float64 {
	return s.Options[key]
}

// PayByChoice reports whether the tier allows ordered rotation.
func (s *Subscription) PayByChoice() bool {
	return s.Options[OptionPayByChoice] != 0
}

// UserSubscription links a user to a tier. ActivationDate anchors the
// monthly billing day; users activating on day 29-31 are anchored to the
// first of the following month.
type UserSubscription struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	SubscriptionID string    `json:"subscription_id"`
	ActivationDate time.Time `json:"activation_date"`
	Active         bool      `json:"active"`

	// Joined tier fee for billing sweeps.
	Fee      float64 `json:"-"`
	Currency string  `json:"-"`
}

// GatewayCustomer maps a user to their payment-gateway references: the
// customer used for charges and the connected account used for payouts.
type GatewayCustomer struct {
	UserID     string `json:"user_id"`
	CustomerID string `json:"customer_id"`
	AccountID  string `json:"account_id"`
}
