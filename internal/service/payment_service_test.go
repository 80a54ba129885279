package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/processor"
)

// issueTestDocument создает и выставляет документ на заданную сумму
func issueTestDocument(t *testing.T, env *testEnv, customer domain.Customer,
	provider domain.Provider, amount decimal.Decimal) domain.BillingDocument {
	t.Helper()

	doc := domain.NewDocument(customer.ID, provider.ID, "USD")
	require.NoError(t, doc.AddEntry(domain.DocumentEntry{
		Description: "Hosting",
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   amount,
	}))
	require.NoError(t, doc.Issue(day(2024, time.April, 1), customer.PaymentDueDays))
	require.NoError(t, env.store.Documents().Create(context.Background(), *doc))
	return *doc
}

func TestExecuteSettlesTransactionAndPaysDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	method := env.seedPaymentMethod(t, customer.ID, nil)
	doc := issueTestDocument(t, env, customer, provider, decimal.NewFromInt(150))

	txn, err := env.payments.CreatePayment(ctx, doc.ID, method.ID, decimal.NewFromInt(150), false)
	require.NoError(t, err)
	require.NoError(t, env.payments.Execute(ctx, txn.ID))

	settled, err := env.store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStateSettled, settled.State)
	assert.NotEmpty(t, settled.ExternalReference)

	paid, err := env.store.Documents().GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatePaid, paid.State)
	require.NotNil(t, paid.PaidDate)
}

func TestExecuteAppliesProcessorDecline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	method := env.seedPaymentMethod(t, customer.ID, nil)
	doc := issueTestDocument(t, env, customer, provider, decimal.NewFromInt(150))

	env.proc.SetBehavior(processor.TriggeredFail, domain.FailCodeInsufficientFunds)

	txn, err := env.payments.CreatePayment(ctx, doc.ID, method.ID, decimal.NewFromInt(150), false)
	require.NoError(t, err)
	require.NoError(t, env.payments.Execute(ctx, txn.ID))

	failed, err := env.store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStateFailed, failed.State)
	assert.Equal(t, domain.FailCodeInsufficientFunds, failed.FailCode)

	// Документ остается выставленным для ретраев
	reloaded, err := env.store.Documents().GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStateIssued, reloaded.State)
}

func TestExecuteGatewayFailureLeavesTransactionPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	method := env.seedPaymentMethod(t, customer.ID, nil)
	doc := issueTestDocument(t, env, customer, provider, decimal.NewFromInt(150))

	env.proc.SetBehavior(processor.TriggeredGatewayDown, "")

	txn, err := env.payments.CreatePayment(ctx, doc.ID, method.ID, decimal.NewFromInt(150), false)
	require.NoError(t, err)

	err = env.payments.Execute(ctx, txn.ID)
	assert.ErrorIs(t, err, domain.ErrGateway)

	// Сбой связи не отказывает транзакцию
	pending, err := env.store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatePending, pending.State)
	assert.Empty(t, pending.FailCode)
}

func TestConfirmManualSettlesHeldTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	method := env.seedPaymentMethod(t, customer.ID, nil)
	doc := issueTestDocument(t, env, customer, provider, decimal.NewFromInt(150))

	env.proc.SetBehavior(processor.TriggeredHold, "")

	txn, err := env.payments.CreatePayment(ctx, doc.ID, method.ID, decimal.NewFromInt(150), false)
	require.NoError(t, err)
	require.NoError(t, env.payments.Execute(ctx, txn.ID))

	held, err := env.store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionStatePending, held.State)

	require.NoError(t, env.payments.ConfirmManual(ctx, txn.ID, "wire-42"))

	settled, err := env.store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStateSettled, settled.State)
	assert.Equal(t, "wire-42", settled.ExternalReference)

	paid, err := env.store.Documents().GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatePaid, paid.State)
}

func TestCreatePaymentRejectsExcessWithoutOverpaymentFlag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	method := env.seedPaymentMethod(t, customer.ID, nil)
	doc := issueTestDocument(t, env, customer, provider, decimal.NewFromInt(150))

	_, err := env.payments.CreatePayment(ctx, doc.ID, method.ID, decimal.NewFromInt(300), false)
	assert.ErrorIs(t, err, domain.ErrInconsistentState)

	txn, err := env.payments.CreatePayment(ctx, doc.ID, method.ID, decimal.NewFromInt(300), true)
	require.NoError(t, err)
	assert.True(t, txn.Overpayment)
}

func TestCreatePaymentRequiresIssuedDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	method := env.seedPaymentMethod(t, customer.ID, nil)

	draft := domain.NewDocument(customer.ID, provider.ID, "USD")
	require.NoError(t, env.store.Documents().Create(ctx, *draft))

	_, err := env.payments.CreatePayment(ctx, draft.ID, method.ID, decimal.NewFromInt(10), false)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCreatePaymentRejectsUnusableMethod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	method := env.seedPaymentMethod(t, customer.ID, func(m *domain.PaymentMethod) {
		m.Canceled = true
	})
	doc := issueTestDocument(t, env, customer, provider, decimal.NewFromInt(150))

	_, err := env.payments.CreatePayment(ctx, doc.ID, method.ID, decimal.NewFromInt(150), false)
	assert.ErrorIs(t, err, domain.ErrPaymentMethodUnusable)
}

func TestPartialPaymentsAccumulateUntilCovered(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	method := env.seedPaymentMethod(t, customer.ID, nil)
	doc := issueTestDocument(t, env, customer, provider, decimal.NewFromInt(150))

	first, err := env.payments.CreatePayment(ctx, doc.ID, method.ID, decimal.NewFromInt(100), false)
	require.NoError(t, err)
	require.NoError(t, env.payments.Execute(ctx, first.ID))

	reloaded, err := env.store.Documents().GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStateIssued, reloaded.State)

	second, err := env.payments.CreatePayment(ctx, doc.ID, method.ID, decimal.NewFromInt(50), false)
	require.NoError(t, err)
	require.NoError(t, env.payments.Execute(ctx, second.ID))

	reloaded, err = env.store.Documents().GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatePaid, reloaded.State)
}

func TestExecuteInitialRunsAllCreatedTransactions(t *testing.T) {
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

	executed, err := env.payments.ExecuteInitial(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, executed)

	docs, err := env.store.Documents().ListIssued(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs, "document should be paid after initial execution")
}

func TestRefundSettledTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	method := env.seedPaymentMethod(t, customer.ID, nil)
	doc := issueTestDocument(t, env, customer, provider, decimal.NewFromInt(150))

	txn, err := env.payments.CreatePayment(ctx, doc.ID, method.ID, decimal.NewFromInt(150), false)
	require.NoError(t, err)
	require.NoError(t, env.payments.Execute(ctx, txn.ID))

	require.NoError(t, env.payments.Refund(ctx, txn.ID))

	refunded, err := env.store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStateRefunded, refunded.State)
}

func TestRefundRejectsInitialTransactionBeforeGateway(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	method := env.seedPaymentMethod(t, customer.ID, nil)
	doc := issueTestDocument(t, env, customer, provider, decimal.NewFromInt(150))

	txn, err := env.payments.CreatePayment(ctx, doc.ID, method.ID, decimal.NewFromInt(150), false)
	require.NoError(t, err)

	// Непроведенная транзакция возврату не подлежит, и до шлюза возврат
	// не доходит
	err = env.payments.Refund(ctx, txn.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Empty(t, env.proc.RefundedTransactions())

	loaded, err := env.store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStateInitial, loaded.State)
}
