package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/kafka"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/processor"
	"github.com/Dhoini/Billing-microservice/internal/repository/memory"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// testEnv собирает все сервисы поверх хранилища в памяти и триггерного
// процессора
type testEnv struct {
	store       *memory.Store
	proc        *processor.TriggeredProcessor
	usage       UsageService
	billing     BillingService
	payments    PaymentService
	retries     RetryService
	lifecycle   LifecycleService
	overpayment OverpaymentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	log := logger.New(logger.ERROR)
	producer := &kafka.NopProducer{}
	billingMetrics := metrics.NopBillingMetrics{}
	proc := processor.NewTriggeredProcessor(processor.TriggeredConfig{})
	registry := processor.NewRegistry(processor.NewManualProcessor(), proc)

	usage := NewUsageService(store.Usage(), log)
	return &testEnv{
		store:       store,
		proc:        proc,
		usage:       usage,
		billing:     NewBillingService(store, store.Plans(), usage, producer, billingMetrics, log),
		payments:    NewPaymentService(store, registry, producer, billingMetrics, log),
		retries:     NewRetryService(store, billingMetrics, log),
		lifecycle:   NewLifecycleService(store, producer, billingMetrics, log),
		overpayment: NewOverpaymentService(store, producer, billingMetrics, log),
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (e *testEnv) seedCustomer(t *testing.T, mutate func(*domain.Customer)) domain.Customer {
	t.Helper()
	customer := domain.NewCustomer("John", "Doe", "john@example.com", "USD")
	if mutate != nil {
		mutate(customer)
	}
	require.NoError(t, e.store.Customers().Create(context.Background(), *customer))
	return *customer
}

func (e *testEnv) seedProvider(t *testing.T) domain.Provider {
	t.Helper()
	now := time.Now().UTC()
	provider := domain.Provider{
		ID:             uuid.New(),
		Name:           "Acme Hosting",
		InvoiceSeries:  "AH",
		StartingNumber: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, e.store.Providers().Create(context.Background(), provider))
	return provider
}

func (e *testEnv) seedPlan(t *testing.T, providerID uuid.UUID, mutate func(*domain.Plan)) domain.Plan {
	t.Helper()
	now := time.Now().UTC()
	plan := domain.Plan{
		ID:            uuid.New(),
		ProviderID:    providerID,
		Name:          "Standard",
		Interval:      domain.IntervalMonth,
		IntervalCount: 1,
		Amount:        decimal.NewFromInt(10),
		Currency:      "USD",
		Enabled:       true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(&plan)
	}
	require.NoError(t, e.store.Plans().Create(context.Background(), plan))
	return plan
}

func (e *testEnv) seedSubscription(t *testing.T, customerID, planID uuid.UUID,
	start time.Time, mutate func(*domain.Subscription)) domain.Subscription {
	t.Helper()
	sub := domain.NewSubscription(customerID, planID, start, 0)
	if mutate != nil {
		mutate(sub)
	}
	require.NoError(t, e.store.Subscriptions().Create(context.Background(), *sub))
	return *sub
}

func (e *testEnv) seedPaymentMethod(t *testing.T, customerID uuid.UUID,
	mutate func(*domain.PaymentMethod)) domain.PaymentMethod {
	t.Helper()
	now := time.Now().UTC()
	method := domain.PaymentMethod{
		ID:                  uuid.New(),
		CustomerID:          customerID,
		Processor:           processor.TriggeredProcessorName,
		Verified:            true,
		AttemptRetriesAfter: 1,
		StopRetryAttempts:   7,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if mutate != nil {
		mutate(&method)
	}
	require.NoError(t, e.store.PaymentMethods().Create(context.Background(), method))
	return method
}

// issuedDocuments возвращает выставленные документы клиента
func (e *testEnv) issuedDocuments(t *testing.T) []domain.BillingDocument {
	t.Helper()
	docs, err := e.store.Documents().ListIssued(context.Background())
	require.NoError(t, err)
	return docs
}
