// Package memory реализует хранилище в памяти. Используется сервисными
// тестами вместо postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
)

// Store хранилище в памяти. Atomic сериализуется одним мьютексом, поэтому
// гарантии идемпотентности те же, что у postgres-реализации, но без
// отката при ошибке.
type Store struct {
	mu       sync.RWMutex
	atomicMu sync.Mutex

	customers      map[uuid.UUID]domain.Customer
	providers      map[uuid.UUID]domain.Provider
	plans          map[uuid.UUID]domain.Plan
	subscriptions  map[uuid.UUID]domain.Subscription
	usageLogs      []domain.MeteredFeatureUnitsLog
	billingLogs    []domain.BillingLog
	documents      map[uuid.UUID]domain.BillingDocument
	transactions   map[uuid.UUID]domain.Transaction
	paymentMethods map[uuid.UUID]domain.PaymentMethod
}

// NewStore создает пустое хранилище в памяти
func NewStore() *Store {
	return &Store{
		customers:      make(map[uuid.UUID]domain.Customer),
		providers:      make(map[uuid.UUID]domain.Provider),
		plans:          make(map[uuid.UUID]domain.Plan),
		subscriptions:  make(map[uuid.UUID]domain.Subscription),
		documents:      make(map[uuid.UUID]domain.BillingDocument),
		transactions:   make(map[uuid.UUID]domain.Transaction),
		paymentMethods: make(map[uuid.UUID]domain.PaymentMethod),
	}
}

func (s *Store) Customers() repository.CustomerRepository           { return &customerRepo{s} }
func (s *Store) Providers() repository.ProviderRepository           { return &providerRepo{s} }
func (s *Store) Plans() repository.PlanRepository                   { return &planRepo{s} }
func (s *Store) Subscriptions() repository.SubscriptionRepository   { return &subscriptionRepo{s} }
func (s *Store) Usage() repository.UsageRepository                  { return &usageRepo{s} }
func (s *Store) BillingLogs() repository.BillingLogRepository       { return &billingLogRepo{s} }
func (s *Store) Documents() repository.DocumentRepository           { return &documentRepo{s} }
func (s *Store) Transactions() repository.TransactionRepository     { return &transactionRepo{s} }
func (s *Store) PaymentMethods() repository.PaymentMethodRepository { return &paymentMethodRepo{s} }

// Atomic выполняет fn под общим мьютексом
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	s.atomicMu.Lock()
	defer s.atomicMu.Unlock()
	return fn(ctx)
}

// LockSubscription сериализация уже обеспечена мьютексом Atomic
func (s *Store) LockSubscription(ctx context.Context, id uuid.UUID) error { return nil }

// LockDocument сериализация уже обеспечена мьютексом Atomic
func (s *Store) LockDocument(ctx context.Context, id uuid.UUID) error { return nil }

// --- customers ---

type customerRepo struct{ s *Store }

func (r *customerRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Customer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.customers[id]
	if !ok {
		return domain.Customer{}, repository.ErrNotFound
	}
	return c, nil
}

func (r *customerRepo) GetAll(ctx context.Context) ([]domain.Customer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	customers := make([]domain.Customer, 0, len(r.s.customers))
	for _, c := range r.s.customers {
		customers = append(customers, c)
	}
	sort.Slice(customers, func(i, j int) bool {
		return customers[i].CreatedAt.Before(customers[j].CreatedAt)
	})
	return customers, nil
}

func (r *customerRepo) Create(ctx context.Context, customer domain.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.customers[customer.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.customers[customer.ID] = customer
	return nil
}

func (r *customerRepo) Update(ctx context.Context, customer domain.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.customers[customer.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.customers[customer.ID] = customer
	return nil
}

// --- providers ---

type providerRepo struct{ s *Store }

func (r *providerRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Provider, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.providers[id]
	if !ok {
		return domain.Provider{}, repository.ErrNotFound
	}
	return p, nil
}

func (r *providerRepo) GetByMetaKey(ctx context.Context, key string) (domain.Provider, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.providers {
		if _, ok := p.Metadata[key]; ok {
			return p, nil
		}
	}
	return domain.Provider{}, repository.ErrNotFound
}

func (r *providerRepo) Create(ctx context.Context, provider domain.Provider) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.providers[provider.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.providers[provider.ID] = provider
	return nil
}

// --- plans ---

type planRepo struct{ s *Store }

func (r *planRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Plan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.plans[id]
	if !ok {
		return domain.Plan{}, repository.ErrNotFound
	}
	features := make([]domain.MeteredFeature, len(p.MeteredFeatures))
	copy(features, p.MeteredFeatures)
	p.MeteredFeatures = features
	return p, nil
}

func (r *planRepo) Create(ctx context.Context, plan domain.Plan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.plans[plan.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.plans[plan.ID] = plan
	return nil
}

// --- subscriptions ---

type subscriptionRepo struct{ s *Store }

func (r *subscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sub, ok := r.s.subscriptions[id]
	if !ok {
		return domain.Subscription{}, repository.ErrNotFound
	}
	return sub, nil
}

func (r *subscriptionRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var subs []domain.Subscription
	for _, sub := range r.s.subscriptions {
		if sub.CustomerID == customerID {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

func (r *subscriptionRepo) ListByStates(ctx context.Context, states ...domain.SubscriptionState) ([]domain.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var subs []domain.Subscription
	for _, sub := range r.s.subscriptions {
		for _, state := range states {
			if sub.State == state {
				subs = append(subs, sub)
				break
			}
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

func (r *subscriptionRepo) Create(ctx context.Context, subscription domain.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.subscriptions[subscription.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.subscriptions[subscription.ID] = subscription
	return nil
}

func (r *subscriptionRepo) Update(ctx context.Context, subscription domain.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.subscriptions[subscription.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.subscriptions[subscription.ID] = subscription
	return nil
}

// --- usage logs ---

type usageRepo struct{ s *Store }

func (r *usageRepo) Create(ctx context.Context, log domain.MeteredFeatureUnitsLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.usageLogs = append(r.s.usageLogs, log)
	return nil
}

func (r *usageRepo) ListIntersecting(ctx context.Context, subscriptionID, featureID uuid.UUID,
	start, end time.Time) ([]domain.MeteredFeatureUnitsLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var logs []domain.MeteredFeatureUnitsLog
	for i := range r.s.usageLogs {
		log := r.s.usageLogs[i]
		if log.SubscriptionID == subscriptionID && log.FeatureID == featureID &&
			log.Intersects(start, end) {
			logs = append(logs, log)
		}
	}
	return logs, nil
}

// --- billing logs ---

type billingLogRepo struct{ s *Store }

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func (r *billingLogRepo) Create(ctx context.Context, log domain.BillingLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.billingLogs {
		existing := &r.s.billingLogs[i]
		if existing.SubscriptionID == log.SubscriptionID &&
			sameDay(existing.CycleStart, log.CycleStart) &&
			sameDay(existing.CycleEnd, log.CycleEnd) &&
			existing.Flow == log.Flow {
			return repository.ErrDuplicate
		}
	}
	r.s.billingLogs = append(r.s.billingLogs, log)
	return nil
}

func (r *billingLogRepo) Exists(ctx context.Context, subscriptionID uuid.UUID,
	cycleStart, cycleEnd time.Time, flow domain.BillingFlow) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for i := range r.s.billingLogs {
		log := &r.s.billingLogs[i]
		if log.SubscriptionID == subscriptionID && sameDay(log.CycleStart, cycleStart) &&
			sameDay(log.CycleEnd, cycleEnd) && log.Flow == flow {
			return true, nil
		}
	}
	return false, nil
}

func (r *billingLogRepo) LastForSubscription(ctx context.Context, subscriptionID uuid.UUID,
	flow domain.BillingFlow) (*domain.BillingLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var last *domain.BillingLog
	for i := range r.s.billingLogs {
		log := r.s.billingLogs[i]
		if log.SubscriptionID != subscriptionID || log.Flow != flow {
			continue
		}
		if last == nil || log.CycleEnd.After(last.CycleEnd) {
			last = &log
		}
	}
	if last == nil {
		return nil, repository.ErrNotFound
	}
	copied := *last
	return &copied, nil
}

// --- documents ---

type documentRepo struct{ s *Store }

func copyDocument(d domain.BillingDocument) domain.BillingDocument {
	entries := make([]domain.DocumentEntry, len(d.Entries))
	copy(entries, d.Entries)
	d.Entries = entries
	return d
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.BillingDocument, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.documents[id]
	if !ok {
		return domain.BillingDocument{}, repository.ErrNotFound
	}
	return copyDocument(d), nil
}

func (r *documentRepo) Create(ctx context.Context, document domain.BillingDocument) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.documents[document.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.documents[document.ID] = copyDocument(document)
	return nil
}

func (r *documentRepo) Update(ctx context.Context, document domain.BillingDocument) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.documents[document.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.documents[document.ID] = copyDocument(document)
	return nil
}

func (r *documentRepo) OpenDraft(ctx context.Context, customerID, providerID uuid.UUID) (domain.BillingDocument, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, d := range r.s.documents {
		if d.CustomerID == customerID && d.ProviderID == providerID &&
			d.State == domain.DocumentStateDraft {
			return copyDocument(d), nil
		}
	}
	return domain.BillingDocument{}, repository.ErrNotFound
}

func (r *documentRepo) ListOpenForProvider(ctx context.Context, customerID, providerID uuid.UUID) ([]domain.BillingDocument, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var docs []domain.BillingDocument
	for _, d := range r.s.documents {
		if d.CustomerID == customerID && d.ProviderID == providerID && d.IsOpen() {
			docs = append(docs, copyDocument(d))
		}
	}
	return docs, nil
}

func (r *documentRepo) ListPaidForCustomer(ctx context.Context, customerID uuid.UUID,
	date time.Time) ([]domain.BillingDocument, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var docs []domain.BillingDocument
	for _, d := range r.s.documents {
		if d.CustomerID == customerID && d.State == domain.DocumentStatePaid &&
			d.PaidDate != nil && !d.PaidDate.Truncate(24*time.Hour).After(date) {
			docs = append(docs, copyDocument(d))
		}
	}
	return docs, nil
}

func (r *documentRepo) ListIssued(ctx context.Context) ([]domain.BillingDocument, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var docs []domain.BillingDocument
	for _, d := range r.s.documents {
		if d.State == domain.DocumentStateIssued {
			docs = append(docs, copyDocument(d))
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

// --- transactions ---

type transactionRepo struct{ s *Store }

func (r *transactionRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.transactions[id]
	if !ok {
		return domain.Transaction{}, repository.ErrNotFound
	}
	return t, nil
}

func (r *transactionRepo) Create(ctx context.Context, transaction domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.transactions[transaction.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.transactions[transaction.ID] = transaction
	return nil
}

func (r *transactionRepo) Update(ctx context.Context, transaction domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.transactions[transaction.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.transactions[transaction.ID] = transaction
	return nil
}

func (r *transactionRepo) ListForDocument(ctx context.Context, documentID uuid.UUID) ([]domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var txs []domain.Transaction
	for _, t := range r.s.transactions {
		if t.DocumentID == documentID {
			txs = append(txs, t)
		}
	}
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CreatedAt.Before(txs[j].CreatedAt)
	})
	return txs, nil
}

func (r *transactionRepo) ListByState(ctx context.Context, state domain.TransactionState) ([]domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var txs []domain.Transaction
	for _, t := range r.s.transactions {
		if t.State == state {
			txs = append(txs, t)
		}
	}
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CreatedAt.Before(txs[j].CreatedAt)
	})
	return txs, nil
}

// --- payment methods ---

type paymentMethodRepo struct{ s *Store }

func (r *paymentMethodRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.PaymentMethod, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.paymentMethods[id]
	if !ok {
		return domain.PaymentMethod{}, repository.ErrNotFound
	}
	return m, nil
}

func (r *paymentMethodRepo) Create(ctx context.Context, method domain.PaymentMethod) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.paymentMethods[method.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.paymentMethods[method.ID] = method
	return nil
}

func (r *paymentMethodRepo) Update(ctx context.Context, method domain.PaymentMethod) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.paymentMethods[method.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.paymentMethods[method.ID] = method
	return nil
}
