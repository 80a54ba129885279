package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

// overpaidCustomerFixture оплачивает документ на 150 переплатной
// транзакцией на 300
func overpaidCustomerFixture(t *testing.T, env *testEnv) domain.Customer {
	t.Helper()
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	method := env.seedPaymentMethod(t, customer.ID, nil)
	doc := issueTestDocument(t, env, customer, provider, decimal.NewFromInt(150))

	txn, err := env.payments.CreatePayment(ctx, doc.ID, method.ID, decimal.NewFromInt(300), true)
	require.NoError(t, err)
	require.NoError(t, env.payments.Execute(ctx, txn.ID))

	paid, err := env.store.Documents().GetByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DocumentStatePaid, paid.State)
	return customer
}

func TestBalanceOnDateDerivedFromPaidDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := overpaidCustomerFixture(t, env)

	balance, err := env.overpayment.BalanceOnDate(ctx, customer.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(150)), "got %s", balance)
}

func TestBalanceZeroWithoutOverpayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.seedCustomer(t, nil)
	provider := env.seedProvider(t)
	method := env.seedPaymentMethod(t, customer.ID, nil)
	doc := issueTestDocument(t, env, customer, provider, decimal.NewFromInt(150))

	txn, err := env.payments.CreatePayment(ctx, doc.ID, method.ID, decimal.NewFromInt(150), false)
	require.NoError(t, err)
	require.NoError(t, env.payments.Execute(ctx, txn.ID))

	balance, err := env.overpayment.BalanceOnDate(ctx, customer.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "got %s", balance)
}

func TestOverpaymentCheckIssuesCorrection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := overpaidCustomerFixture(t, env)

	corrected, err := env.overpayment.Check(ctx, time.Now().UTC(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, corrected)

	// Корректировка выставлена от выделенного внутреннего поставщика с
	// отрицательным итогом
	provider, err := env.store.Providers().GetByMetaKey(ctx, domain.OverpaymentProviderMetaKey)
	require.NoError(t, err)

	open, err := env.store.Documents().ListOpenForProvider(ctx, customer.ID, provider.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.DocumentStateIssued, open[0].State)
	assert.True(t, open[0].Total().Equal(decimal.NewFromInt(-150)), "got %s", open[0].Total())
}

func TestOverpaymentCheckNoDuplicateWhileCorrectionOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	overpaidCustomerFixture(t, env)

	corrected, err := env.overpayment.Check(ctx, time.Now().UTC(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, corrected)

	corrected, err = env.overpayment.Check(ctx, time.Now().UTC(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, corrected)
}

func TestOverpaymentSettledCorrectionZeroesBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := overpaidCustomerFixture(t, env)

	_, err := env.overpayment.Check(ctx, time.Now().UTC(), nil)
	require.NoError(t, err)

	provider, err := env.store.Providers().GetByMetaKey(ctx, domain.OverpaymentProviderMetaKey)
	require.NoError(t, err)
	open, err := env.store.Documents().ListOpenForProvider(ctx, customer.ID, provider.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)

	// Возврат проводится отрицательной транзакцией по корректировке
	methods := env.seedPaymentMethod(t, customer.ID, nil)
	txn, err := env.payments.CreatePayment(ctx, open[0].ID, methods.ID,
		decimal.NewFromInt(-150), false)
	require.NoError(t, err)
	require.NoError(t, env.payments.Execute(ctx, txn.ID))

	correction, err := env.store.Documents().GetByID(ctx, open[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatePaid, correction.State)

	balance, err := env.overpayment.BalanceOnDate(ctx, customer.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "got %s", balance)

	// Баланс погашен: новый проход корректировок не выставляет
	corrected, err := env.overpayment.Check(ctx, time.Now().UTC(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, corrected)
}

func TestOverpaymentCheckSkipsZeroBalanceCustomers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedCustomer(t, nil)

	corrected, err := env.overpayment.Check(ctx, time.Now().UTC(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, corrected)
}
