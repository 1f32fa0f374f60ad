package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/shahzaibimran94/save-squad/internal/domain"
	"github.com/shahzaibimran94/save-squad/internal/store"
	"github.com/shahzaibimran94/save-squad/pkg/stripeclient"
)

// fakeRepository is an in-memory Repository. Settlement fans out gateway
// calls across goroutines, so every method takes the mutex.
type fakeRepository struct {
	mu sync.Mutex

	pods        map[string]*domain.Pod
	invitations map[string]*domain.PodInvitation
	customers   map[string]*domain.GatewayCustomer
	tiers       map[string]*domain.Subscription
	dueSubs     []domain.UserSubscription
	paidInRange bool

	podTxns  []domain.PodMemberTransaction
	subTxns  []*domain.SubscriptionTransaction
	retries  []*domain.RetryTransaction
	markPaid map[string]string

	nextID int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		pods:        make(map[string]*domain.Pod),
		invitations: make(map[string]*domain.PodInvitation),
		customers:   make(map[string]*domain.GatewayCustomer),
		tiers:       make(map[string]*domain.Subscription),
		markPaid:    make(map[string]string),
	}
}

func (f *fakeRepository) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeRepository) CreatePod(ctx context.Context, pod *domain.Pod) (*domain.Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pod.ID = f.id("pod")
	for i := range pod.Members {
		pod.Members[i].ID = f.id("member")
		pod.Members[i].PodID = pod.ID
	}
	f.pods[pod.ID] = pod
	return pod, nil
}

func (f *fakeRepository) GetPod(ctx context.Context, podID string) (*domain.Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pod, ok := f.pods[podID]
	if !ok {
		return nil, store.ErrPodNotFound
	}
	return pod, nil
}

func (f *fakeRepository) ListUserPods(ctx context.Context, userID string) ([]domain.Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pods []domain.Pod
	for _, p := range f.pods {
		if p.OwnerID == userID && !p.Expired {
			pods = append(pods, *p)
		}
	}
	return pods, nil
}

func (f *fakeRepository) ListMemberPods(ctx context.Context, userID string) ([]domain.Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pods []domain.Pod
	for _, p := range f.pods {
		for i := range p.Members {
			if p.Members[i].UserID == userID && p.Active {
				pods = append(pods, *p)
				break
			}
		}
	}
	return pods, nil
}

func (f *fakeRepository) UpdatePodMembers(ctx context.Context, pod *domain.Pod, members []domain.PodMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.pods[pod.ID]
	if !ok {
		return store.ErrPodNotFound
	}
	for i := range members {
		members[i].ID = f.id("member")
		members[i].PodID = pod.ID
	}
	stored.Amount = pod.Amount
	stored.StartDate = pod.StartDate
	stored.Members = members
	stored.Version++
	return nil
}

func (f *fakeRepository) ListPodsForSettlement(ctx context.Context) ([]domain.Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pods []domain.Pod
	for _, p := range f.pods {
		if p.Active && !p.Expired {
			pods = append(pods, *p)
		}
	}
	return pods, nil
}

func (f *fakeRepository) MarkPodExpired(ctx context.Context, podID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pod, ok := f.pods[podID]
	if !ok {
		return store.ErrPodNotFound
	}
	pod.Expired = true
	pod.Active = false
	return nil
}

func (f *fakeRepository) member(memberID string) *domain.PodMember {
	for _, p := range f.pods {
		for i := range p.Members {
			if p.Members[i].ID == memberID {
				return &p.Members[i]
			}
		}
	}
	return nil
}

func (f *fakeRepository) StampMemberCharged(ctx context.Context, memberID string, chargedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.member(memberID)
	if m == nil {
		return store.ErrMemberNotFound
	}
	m.ChargedAt = &chargedAt
	return nil
}

func (f *fakeRepository) ScheduleMemberTransfer(ctx context.Context, memberID string, transferAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.member(memberID)
	if m == nil {
		return store.ErrMemberNotFound
	}
	m.TransferAt = &transferAt
	return nil
}

func (f *fakeRepository) StampMemberTransferred(ctx context.Context, memberID string, transferedAt, payAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.member(memberID)
	if m == nil {
		return store.ErrMemberNotFound
	}
	m.TransferedAt = &transferedAt
	m.PayAt = &payAt
	return nil
}

func (f *fakeRepository) StampMemberPaid(ctx context.Context, memberID string, paidAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.member(memberID)
	if m == nil {
		return store.ErrMemberNotFound
	}
	m.PaidAt = &paidAt
	return nil
}

func (f *fakeRepository) AcceptMember(ctx context.Context, memberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.member(memberID)
	if m == nil || m.InvitationStatus != domain.InvitationPending {
		return store.ErrMemberNotFound
	}
	m.InvitationStatus = domain.InvitationAccepted
	return nil
}

func (f *fakeRepository) RemoveMember(ctx context.Context, podID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pod, ok := f.pods[podID]
	if !ok {
		return store.ErrPodNotFound
	}
	for i := range pod.Members {
		if pod.Members[i].UserID == userID {
			pod.Members = append(pod.Members[:i], pod.Members[i+1:]...)
			return nil
		}
	}
	return store.ErrMemberNotFound
}

func (f *fakeRepository) CreateInvitations(ctx context.Context, invitations []domain.PodInvitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range invitations {
		inv := invitations[i]
		inv.ID = f.id("invitation")
		f.invitations[inv.Token] = &inv
	}
	return nil
}

func (f *fakeRepository) ConsumeInvitation(ctx context.Context, token string, now time.Time) (*domain.PodInvitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[token]
	if !ok || inv.IsUsed || !inv.Active || inv.ExpiresAt.Before(now) {
		return nil, store.ErrInvitationNotFound
	}
	inv.IsUsed = true
	return inv, nil
}

func (f *fakeRepository) GetGatewayCustomer(ctx context.Context, userID string) (*domain.GatewayCustomer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	customer, ok := f.customers[userID]
	if !ok {
		return nil, store.ErrCustomerNotFound
	}
	return customer, nil
}

func (f *fakeRepository) GetSubscriptionForUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tier, ok := f.tiers[userID]
	if !ok {
		return nil, store.ErrSubscriptionNotFound
	}
	return tier, nil
}

func (f *fakeRepository) ListSubscriptionsDueForBilling(ctx context.Context, monthStart, monthEnd time.Time) ([]domain.UserSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.UserSubscription(nil), f.dueSubs...), nil
}

func (f *fakeRepository) HasPaidSubscriptionInRange(ctx context.Context, userID string, start, end time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paidInRange, nil
}

func (f *fakeRepository) InsertPodMemberTransaction(ctx context.Context, txn *domain.PodMemberTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn.ID = f.id("txn")
	f.podTxns = append(f.podTxns, *txn)
	return nil
}

func (f *fakeRepository) CountSuccessfulCharges(ctx context.Context, podID string, onDay time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, txn := range f.podTxns {
		if txn.PodID == podID &&
			txn.TransactionType == domain.TransactionCharge &&
			txn.Status == domain.PaymentPaid &&
			sameDay(txn.PaymentDate, onDay) {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepository) InsertSubscriptionTransaction(ctx context.Context, txn *domain.SubscriptionTransaction) (*domain.SubscriptionTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn.ID = f.id("subtxn")
	f.subTxns = append(f.subTxns, txn)
	return txn, nil
}

func (f *fakeRepository) MarkSubscriptionTransactionPaid(ctx context.Context, transactionID, response string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markPaid[transactionID] = response
	return nil
}

func (f *fakeRepository) InsertRetryTransaction(ctx context.Context, transactionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, &domain.RetryTransaction{
		ID:            f.id("retry"),
		TransactionID: transactionID,
		Active:        true,
	})
	return nil
}

func (f *fakeRepository) ListActiveRetries(ctx context.Context, monthStart, monthEnd time.Time, maxAttempts int) ([]domain.RetryTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RetryTransaction
	for _, rt := range f.retries {
		if rt.Active && rt.RetryCount < maxAttempts {
			out = append(out, *rt)
		}
	}
	return out, nil
}

func (f *fakeRepository) UpdateRetryTransaction(ctx context.Context, retry *domain.RetryTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rt := range f.retries {
		if rt.ID == retry.ID {
			rt.RetryCount = retry.RetryCount
			rt.Notes = append([]string(nil), retry.Notes...)
			rt.Active = retry.Active
			return nil
		}
	}
	return fmt.Errorf("retry %s not found", retry.ID)
}

// fakeGateway scripts charge outcomes per customer and records every call.
type fakeGateway struct {
	mu sync.Mutex

	declineCustomers map[string]bool
	noCards          bool

	charges   []fakeCharge
	transfers []fakeTransfer
}

type fakeCharge struct {
	CustomerID  string
	AmountMinor int64
	Tag         string
}

type fakeTransfer struct {
	AccountID   string
	AmountMinor int64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{declineCustomers: make(map[string]bool)}
}

func (g *fakeGateway) CreatePaymentIntent(ctx context.Context, customerID, paymentMethodID string, amountMinor int64, currency, tag string) (*stripeclient.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.declineCustomers[customerID] {
		return nil, &stripeclient.APIError{StatusCode: 402, Code: "card_declined", Message: "Your card was declined."}
	}
	g.charges = append(g.charges, fakeCharge{CustomerID: customerID, AmountMinor: amountMinor, Tag: tag})
	return &stripeclient.ChargeResult{ID: "pi_test", Status: "succeeded", Raw: `{"id":"pi_test","status":"succeeded"}`}, nil
}

func (g *fakeGateway) CreateTransfer(ctx context.Context, destinationAccountID string, amountMinor int64, currency string) (*stripeclient.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transfers = append(g.transfers, fakeTransfer{AccountID: destinationAccountID, AmountMinor: amountMinor})
	return &stripeclient.TransferResult{ID: "tr_test", Destination: destinationAccountID, Raw: `{"id":"tr_test"}`}, nil
}

func (g *fakeGateway) ListPaymentMethods(ctx context.Context, customerID string) (*stripeclient.PaymentMethods, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.noCards {
		return &stripeclient.PaymentMethods{}, nil
	}
	return &stripeclient.PaymentMethods{Cards: []stripeclient.Card{
		{ID: "pm_backup", Brand: "visa", Last4: "1111"},
		{ID: "pm_default", Brand: "mastercard", Last4: "4242", IsDefault: true},
	}}, nil
}

// fakePublisher records routing keys of published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return nil
}

func (p *fakePublisher) Close() {}

func (p *fakePublisher) published(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, key := range p.events {
		if key == routingKey {
			count++
		}
	}
	return count
}

type testEnv struct {
	repo      *fakeRepository
	gateway   *fakeGateway
	publisher *fakePublisher
	service   *Service
}

// newTestEnv builds a Service over the fakes with a fixed clock and seeded
// rotation randomness.
func newTestEnv(now time.Time) *testEnv {
	repo := newFakeRepository()
	gateway := newFakeGateway()
	publisher := &fakePublisher{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewService(repo, gateway, publisher, logger, "gbp", "UTC", 4)
	service.now = func() time.Time { return now }
	service.rng = mrand.New(mrand.NewSource(1))

	return &testEnv{repo: repo, gateway: gateway, publisher: publisher, service: service}
}

func (e *testEnv) setClock(now time.Time) {
	e.service.now = func() time.Time { return now }
}

// addTier registers a subscription tier for a user.
func (e *testEnv) addTier(userID string, payByChoice bool) *domain.Subscription {
	options := map[string]float64{
		domain.OptionPods:         2,
		domain.OptionMembers:      5,
		domain.OptionPodMinAmount: 10,
		domain.OptionPodMaxAmount: 1000,
	}
	if payByChoice {
		options[domain.OptionPayByChoice] = 1
	}
	tier := &domain.Subscription{
		ID:       "tier-" + userID,
		Name:     "pro",
		Fee:      9.99,
		Currency: "gbp",
		Options:  options,
		Active:   true,
	}
	e.repo.tiers[userID] = tier
	return tier
}

// addCustomer registers gateway references for a user.
func (e *testEnv) addCustomer(userID string) {
	e.repo.customers[userID] = &domain.GatewayCustomer{
		UserID:     userID,
		CustomerID: "cus_" + userID,
		AccountID:  "acct_" + userID,
	}
}

// acceptedPod seeds a fully accepted pod directly into the repository.
func acceptedPod(repo *fakeRepository, ownerID string, amount float64, startDate time.Time, memberIDs ...string) *domain.Pod {
	pod := &domain.Pod{
		OwnerID:   ownerID,
		Amount:    amount,
		StartDate: &startDate,
		Active:    true,
	}
	for i, userID := range memberIDs {
		pod.Members = append(pod.Members, domain.PodMember{
			UserID:           userID,
			InvitationStatus: domain.InvitationAccepted,
			Order:            i + 1,
			Position:         i,
		})
	}
	created, _ := repo.CreatePod(context.Background(), pod)
	return created
}
