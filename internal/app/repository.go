/**
 * @description
 * Contracts the application layer depends on: the persistence repository and
 * the payment gateway. Concrete implementations live in internal/store and
 * pkg/stripeclient; tests substitute hand-written fakes.
 */
package app

import (
	"context"
	"time"

	"github.com/shahzaibimran94/save-squad/internal/domain"
	"github.com/shahzaibimran94/save-squad/pkg/stripeclient"
)

// Repository defines the database operations the service needs.
type Repository interface {
	// Pods and members.
	CreatePod(ctx context.Context, pod *domain.Pod) (*domain.Pod, error)
	GetPod(ctx context.Context, podID string) (*domain.Pod, error)
	ListUserPods(ctx context.Context, userID string) ([]domain.Pod, error)
	ListMemberPods(ctx context.Context, userID string) ([]domain.Pod, error)
	UpdatePodMembers(ctx context.Context, pod *domain.Pod, members []domain.PodMember) error
	ListPodsForSettlement(ctx context.Context) ([]domain.Pod, error)
	MarkPodExpired(ctx context.Context, podID string) error

	StampMemberCharged(ctx context.Context, memberID string, chargedAt time.Time) error
	ScheduleMemberTransfer(ctx context.Context, memberID string, transferAt time.Time) error
	StampMemberTransferred(ctx context.Context, memberID string, transferedAt, payAt time.Time) error
	StampMemberPaid(ctx context.Context, memberID string, paidAt time.Time) error
	AcceptMember(ctx context.Context, memberID string) error
	RemoveMember(ctx context.Context, podID, userID string) error

	// Invitations.
	CreateInvitations(ctx context.Context, invitations []domain.PodInvitation) error
	ConsumeInvitation(ctx context.Context, token string, now time.Time) (*domain.PodInvitation, error)

	// Gateway references and subscriptions.
	GetGatewayCustomer(ctx context.Context, userID string) (*domain.GatewayCustomer, error)
	GetSubscriptionForUser(ctx context.Context, userID string) (*domain.Subscription, error)
	ListSubscriptionsDueForBilling(ctx context.Context, monthStart, monthEnd time.Time) ([]domain.UserSubscription, error)
	HasPaidSubscriptionInRange(ctx context.Context, userID string, start, end time.Time) (bool, error)

	// Ledger.
	InsertPodMemberTransaction(ctx context.Context, txn *domain.PodMemberTransaction) error
	CountSuccessfulCharges(ctx context.Context, podID string, onDay time.Time) (int, error)
	InsertSubscriptionTransaction(ctx context.Context, txn *domain.SubscriptionTransaction) (*domain.SubscriptionTransaction, error)
	MarkSubscriptionTransactionPaid(ctx context.Context, transactionID, response string) error

	// Retries.
	InsertRetryTransaction(ctx context.Context, transactionID string) error
	ListActiveRetries(ctx context.Context, monthStart, monthEnd time.Time, maxAttempts int) ([]domain.RetryTransaction, error)
	UpdateRetryTransaction(ctx context.Context, retry *domain.RetryTransaction) error
}

// PaymentGateway defines the capability surface the engine needs from the
// payment provider. The client instance is injected at construction; nothing
// in this package reaches for a globally shared gateway.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, customerID, paymentMethodID string, amountMinor int64, currency, tag string) (*stripeclient.ChargeResult, error)
	CreateTransfer(ctx context.Context, destinationAccountID string, amountMinor int64, currency string) (*stripeclient.TransferResult, error)
	ListPaymentMethods(ctx context.Context, customerID string) (*stripeclient.PaymentMethods, error)
}
