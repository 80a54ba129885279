package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

func TestRunBillingBillsCompletedCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	plan := env.seedPlan(t, provider.ID, nil)
	sub := env.seedSubscription(t, customer.ID, plan.ID, day(2024, time.March, 1), nil)

	result, err := env.billing.RunBilling(ctx, day(2024, time.April, 1), BillingRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Evaluated)
	assert.Equal(t, 1, result.CyclesBilled)
	assert.Equal(t, 1, result.DocumentsIssued)
	assert.Equal(t, 0, result.SubscriptionsErr)

	docs := env.issuedDocuments(t)
	require.Len(t, docs, 1)
	assert.True(t, docs[0].Total().Equal(decimal.NewFromInt(10)), "got %s", docs[0].Total())
	require.Len(t, docs[0].Entries, 1)
	assert.True(t, docs[0].Entries[0].Quantity.Equal(decimal.NewFromInt(1)))

	updated, err := env.store.Subscriptions().GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.BilledUpTo)
	assert.Equal(t, day(2024, time.March, 31), *updated.BilledUpTo)
}

func TestRunBillingIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	plan := env.seedPlan(t, provider.ID, nil)
	env.seedSubscription(t, customer.ID, plan.ID, day(2024, time.March, 1), nil)

	first, err := env.billing.RunBilling(ctx, day(2024, time.April, 1), BillingRunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, first.CyclesBilled)

	second, err := env.billing.RunBilling(ctx, day(2024, time.April, 1), BillingRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.CyclesBilled)
	assert.Equal(t, 0, second.DocumentsIssued)

	assert.Len(t, env.issuedDocuments(t), 1)
}

func TestRunBillingCombinesBaseAndUsage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	featureID := uuid.New()
	plan := env.seedPlan(t, provider.ID, func(p *domain.Plan) {
		p.MeteredFeatures = []domain.MeteredFeature{{
			ID:           featureID,
			PlanID:       p.ID,
			Name:         "API calls",
			Unit:         "call",
			PricePerUnit: decimal.NewFromInt(5),
		}}
	})
	sub := env.seedSubscription(t, customer.ID, plan.ID, day(2024, time.March, 1), nil)

	_, err := env.usage.Record(ctx, sub.ID, featureID,
		day(2024, time.March, 5), day(2024, time.March, 5), decimal.NewFromInt(20))
	require.NoError(t, err)

	_, err = env.billing.RunBilling(ctx, day(2024, time.April, 1), BillingRunOptions{})
	require.NoError(t, err)

	docs := env.issuedDocuments(t)
	require.Len(t, docs, 1)
	// База 1.00 x 10 плюс потребление 20 x 5
	assert.True(t, docs[0].Total().Equal(decimal.NewFromInt(110)), "got %s", docs[0].Total())
	assert.Len(t, docs[0].Entries, 2)
}

func TestRunBillingTrialStraddlingCycleBillsActiveRemainder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	plan := env.seedPlan(t, provider.ID, func(p *domain.Plan) {
		p.TrialPeriodDays = 14
	})
	sub := env.seedSubscription(t, customer.ID, plan.ID, day(2024, time.March, 1),
		func(s *domain.Subscription) {
			s.State = domain.SubscriptionStateTrial
		})

	result, err := env.billing.RunBilling(ctx, day(2024, time.April, 1), BillingRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CyclesBilled)

	// Пробный период закончился - подписка активировалась
	updated, err := env.store.Subscriptions().GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStateActive, updated.State)

	// Пробный период покрывает 1-14 марта; активный остаток 15-31 марта
	// тарифицируется: 17/31 x 10
	docs := env.issuedDocuments(t)
	require.Len(t, docs, 1)
	assert.True(t, docs[0].Total().Equal(decimal.RequireFromString("5.48")),
		"got %s", docs[0].Total())
	require.Len(t, docs[0].Entries, 1)
	assert.True(t, day(2024, time.March, 15).Equal(*docs[0].Entries[0].StartDate))
}

func TestRunBillingCycleInsideTrialCarriesNoBaseAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	plan := env.seedPlan(t, provider.ID, func(p *domain.Plan) {
		p.TrialPeriodDays = 45
	})
	sub := env.seedSubscription(t, customer.ID, plan.ID, day(2024, time.March, 1),
		func(s *domain.Subscription) {
			s.State = domain.SubscriptionStateTrial
		})

	result, err := env.billing.RunBilling(ctx, day(2024, time.April, 1), BillingRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CyclesBilled)

	// Цикл целиком внутри пробного периода базовой суммы не несет, и
	// подписка все еще на пробном периоде
	updated, err := env.store.Subscriptions().GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStateTrial, updated.State)

	docs := env.issuedDocuments(t)
	require.Len(t, docs, 1)
	assert.True(t, docs[0].Total().IsZero(), "got %s", docs[0].Total())
}

func TestRunBillingForceTruncatesCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	plan := env.seedPlan(t, provider.ID, nil)
	sub := env.seedSubscription(t, customer.ID, plan.ID, day(2024, time.March, 1), nil)

	result, err := env.billing.RunBilling(ctx, day(2024, time.March, 16),
		BillingRunOptions{SubscriptionID: &sub.ID, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CyclesBilled)

	docs := env.issuedDocuments(t)
	require.Len(t, docs, 1)
	require.Len(t, docs[0].Entries, 1)

	// 16 из 31 дня марта
	expected := decimal.NewFromInt(16).DivRound(decimal.NewFromInt(31), 4)
	assert.True(t, docs[0].Entries[0].Quantity.Equal(expected),
		"got %s want %s", docs[0].Entries[0].Quantity, expected)

	updated, err := env.store.Subscriptions().GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.BilledUpTo)
	assert.Equal(t, day(2024, time.March, 16), *updated.BilledUpTo)
}

func TestRunBillingEndsCanceledSubscriptionAfterFinalCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	plan := env.seedPlan(t, provider.ID, nil)
	canceledAt := day(2024, time.March, 20)
	sub := env.seedSubscription(t, customer.ID, plan.ID, day(2024, time.March, 1),
		func(s *domain.Subscription) {
			s.State = domain.SubscriptionStateCanceled
			s.CanceledAt = &canceledAt
		})

	result, err := env.billing.RunBilling(ctx, day(2024, time.April, 1), BillingRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CyclesBilled)

	updated, err := env.store.Subscriptions().GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStateEnded, updated.State)

	// Завершенная подписка больше не оценивается
	again, err := env.billing.RunBilling(ctx, day(2024, time.May, 1), BillingRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.CyclesBilled)
}

func TestRunBillingSkipsCycleAfterBillingWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	plan := env.seedPlan(t, provider.ID, func(p *domain.Plan) {
		p.CycleBillingDuration = 5 * 24 * time.Hour
	})
	sub := env.seedSubscription(t, customer.ID, plan.ID, day(2024, time.March, 1), nil)

	result, err := env.billing.RunBilling(ctx, day(2024, time.April, 20), BillingRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.CyclesBilled)
	assert.Equal(t, 0, result.DocumentsIssued)

	// Пропущенный цикл все равно залогирован, BilledUpTo продвинулся
	exists, err := env.store.BillingLogs().Exists(ctx, sub.ID,
		day(2024, time.March, 1), day(2024, time.March, 31), domain.FlowInvoice)
	require.NoError(t, err)
	assert.True(t, exists)

	updated, err := env.store.Subscriptions().GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.BilledUpTo)
	assert.Equal(t, day(2024, time.March, 31), *updated.BilledUpTo)
}

func TestRunBillingConsolidatesCustomerDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, func(c *domain.Customer) {
		c.ConsolidatedBilling = true
	})
	provider := env.seedProvider(t)
	planA := env.seedPlan(t, provider.ID, nil)
	planB := env.seedPlan(t, provider.ID, func(p *domain.Plan) {
		p.Name = "Addon"
		p.Amount = decimal.NewFromInt(4)
	})
	env.seedSubscription(t, customer.ID, planA.ID, day(2024, time.March, 1), nil)
	env.seedSubscription(t, customer.ID, planB.ID, day(2024, time.March, 1), nil)

	result, err := env.billing.RunBilling(ctx, day(2024, time.April, 1), BillingRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.CyclesBilled)
	assert.Equal(t, 1, result.DocumentsIssued)

	docs := env.issuedDocuments(t)
	require.Len(t, docs, 1)
	assert.Len(t, docs[0].Entries, 2)
	assert.True(t, docs[0].Total().Equal(decimal.NewFromInt(14)), "got %s", docs[0].Total())
}

func TestRunBillingCycleEndOverride(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	plan := env.seedPlan(t, provider.ID, nil)
	override := day(2024, time.March, 15)
	sub := env.seedSubscription(t, customer.ID, plan.ID, day(2024, time.March, 1),
		func(s *domain.Subscription) {
			s.CycleEndOverride = &override
		})

	result, err := env.billing.RunBilling(ctx, day(2024, time.March, 16), BillingRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CyclesBilled)

	updated, err := env.store.Subscriptions().GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.BilledUpTo)
	assert.Equal(t, override, *updated.BilledUpTo)
	// Коррекция отрабатывает один раз
	assert.Nil(t, updated.CycleEndOverride)
}

func TestRunBillingCreatesInitialTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	plan := env.seedPlan(t, provider.ID, nil)
	method := env.seedPaymentMethod(t, customer.ID, nil)
	env.seedSubscription(t, customer.ID, plan.ID, day(2024, time.March, 1),
		func(s *domain.Subscription) {
			s.PaymentMethodID = &method.ID
		})

	_, err := env.billing.RunBilling(ctx, day(2024, time.April, 1), BillingRunOptions{})
	require.NoError(t, err)

	docs := env.issuedDocuments(t)
	require.Len(t, docs, 1)

	txns, err := env.store.Transactions().ListForDocument(ctx, docs[0].ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.TransactionStateInitial, txns[0].State)
	assert.True(t, txns[0].Amount.Equal(decimal.NewFromInt(10)))
}

func TestRunBillingCatchesUpMissedCycles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	plan := env.seedPlan(t, provider.ID, nil)
	env.seedSubscription(t, customer.ID, plan.ID, day(2024, time.January, 1), nil)

	// Биллинг не запускался три месяца: все завершившиеся циклы добираются
	// одним проходом
	result, err := env.billing.RunBilling(ctx, day(2024, time.April, 1), BillingRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.CyclesBilled)
}

func TestRunBillingPrebillPlanBillsCycleAtStart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	plan := env.seedPlan(t, provider.ID, func(p *domain.Plan) {
		p.PrebillPlan = true
	})
	sub := env.seedSubscription(t, customer.ID, plan.ID, day(2024, time.March, 1), nil)

	// Авансовый план: цикл причитается уже в день своего начала
	result, err := env.billing.RunBilling(ctx, day(2024, time.March, 1), BillingRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CyclesBilled)

	docs := env.issuedDocuments(t)
	require.Len(t, docs, 1)
	assert.True(t, docs[0].Total().Equal(decimal.NewFromInt(10)), "got %s", docs[0].Total())

	updated, err := env.store.Subscriptions().GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.BilledUpTo)
	assert.True(t, day(2024, time.March, 31).Equal(*updated.BilledUpTo))

	// Повторный прогон в середине оплаченного вперед цикла - no-op
	result, err = env.billing.RunBilling(ctx, day(2024, time.March, 20), BillingRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.CyclesBilled)
}

func TestRunBillingPrebillPlanBillsPreviousCycleUsage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	featureID := uuid.New()
	plan := env.seedPlan(t, provider.ID, func(p *domain.Plan) {
		p.PrebillPlan = true
		p.MeteredFeatures = []domain.MeteredFeature{{
			ID:           featureID,
			PlanID:       p.ID,
			Name:         "API calls",
			Unit:         "call",
			PricePerUnit: decimal.NewFromInt(5),
		}}
	})
	sub := env.seedSubscription(t, customer.ID, plan.ID, day(2024, time.March, 1), nil)

	// Первый цикл: только аванс базовой суммы, предыдущего цикла нет
	_, err := env.billing.RunBilling(ctx, day(2024, time.March, 1), BillingRunOptions{})
	require.NoError(t, err)

	_, err = env.usage.Record(ctx, sub.ID, featureID,
		day(2024, time.March, 5), day(2024, time.March, 10), decimal.NewFromInt(4))
	require.NoError(t, err)

	// Второй цикл: аванс апреля плюс потребление завершившегося марта
	result, err := env.billing.RunBilling(ctx, day(2024, time.April, 1), BillingRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CyclesBilled)

	docs := env.issuedDocuments(t)
	require.Len(t, docs, 2)

	var aprilDoc *domain.BillingDocument
	for i := range docs {
		if len(docs[i].Entries) == 2 {
			aprilDoc = &docs[i]
		}
	}
	require.NotNil(t, aprilDoc)
	// База 1.00 x 10 плюс потребление 4 x 5
	assert.True(t, aprilDoc.Total().Equal(decimal.NewFromInt(30)), "got %s", aprilDoc.Total())

	usageEntry := aprilDoc.Entries[1]
	require.NotNil(t, usageEntry.StartDate)
	assert.True(t, day(2024, time.March, 1).Equal(*usageEntry.StartDate))
	assert.True(t, day(2024, time.March, 31).Equal(*usageEntry.EndDate))
}
