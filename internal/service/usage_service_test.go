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

func TestConsumedUnitsSumsIntersectingLogs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	subID, featureID := uuid.New(), uuid.New()

	_, err := env.usage.Record(ctx, subID, featureID,
		day(2024, time.March, 3), day(2024, time.March, 3), decimal.NewFromInt(7))
	require.NoError(t, err)
	_, err = env.usage.Record(ctx, subID, featureID,
		day(2024, time.March, 10), day(2024, time.March, 12), decimal.NewFromInt(5))
	require.NoError(t, err)
	// Вне цикла
	_, err = env.usage.Record(ctx, subID, featureID,
		day(2024, time.April, 2), day(2024, time.April, 2), decimal.NewFromInt(100))
	require.NoError(t, err)

	total, err := env.usage.ConsumedUnits(ctx, subID, featureID,
		day(2024, time.March, 1), day(2024, time.March, 31))
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(12)), "got %s", total)
}

func TestRecordRejectsInvertedRange(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.usage.Record(context.Background(), uuid.New(), uuid.New(),
		day(2024, time.March, 10), day(2024, time.March, 5), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChargeAppliesIncludedUnits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	feature := domain.MeteredFeature{
		ID:            uuid.New(),
		Name:          "API calls",
		PricePerUnit:  decimal.NewFromInt(2),
		IncludedUnits: decimal.NewFromInt(10),
	}
	plan := domain.Plan{ID: uuid.New(), MeteredFeatures: []domain.MeteredFeature{feature}}
	sub := domain.Subscription{ID: uuid.New()}

	_, err := env.usage.Record(ctx, sub.ID, feature.ID,
		day(2024, time.March, 5), day(2024, time.March, 5), decimal.NewFromInt(25))
	require.NoError(t, err)

	charge, err := env.usage.Charge(ctx, sub, plan, feature,
		day(2024, time.March, 1), day(2024, time.March, 31), false)
	require.NoError(t, err)
	assert.True(t, charge.ConsumedUnits.Equal(decimal.NewFromInt(25)))
	assert.True(t, charge.BillableUnits.Equal(decimal.NewFromInt(15)))
	assert.True(t, charge.Cost.Equal(decimal.NewFromInt(30)), "got %s", charge.Cost)
}

func TestChargeConsumptionUnderIncludedIsFree(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	feature := domain.MeteredFeature{
		ID:            uuid.New(),
		PricePerUnit:  decimal.NewFromInt(2),
		IncludedUnits: decimal.NewFromInt(10),
	}
	plan := domain.Plan{ID: uuid.New(), MeteredFeatures: []domain.MeteredFeature{feature}}
	sub := domain.Subscription{ID: uuid.New()}

	_, err := env.usage.Record(ctx, sub.ID, feature.ID,
		day(2024, time.March, 5), day(2024, time.March, 5), decimal.NewFromInt(4))
	require.NoError(t, err)

	charge, err := env.usage.Charge(ctx, sub, plan, feature,
		day(2024, time.March, 1), day(2024, time.March, 31), false)
	require.NoError(t, err)
	assert.True(t, charge.BillableUnits.IsZero())
	assert.True(t, charge.Cost.IsZero())
}

func TestChargeUsesTrialIncludedUnits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	feature := domain.MeteredFeature{
		ID:                       uuid.New(),
		PricePerUnit:             decimal.NewFromInt(2),
		IncludedUnits:            decimal.NewFromInt(10),
		IncludedUnitsDuringTrial: decimal.NewFromInt(3),
	}
	plan := domain.Plan{ID: uuid.New(), MeteredFeatures: []domain.MeteredFeature{feature}}
	sub := domain.Subscription{ID: uuid.New()}

	_, err := env.usage.Record(ctx, sub.ID, feature.ID,
		day(2024, time.March, 5), day(2024, time.March, 5), decimal.NewFromInt(5))
	require.NoError(t, err)

	charge, err := env.usage.Charge(ctx, sub, plan, feature,
		day(2024, time.March, 1), day(2024, time.March, 31), true)
	require.NoError(t, err)
	assert.True(t, charge.IncludedUnits.Equal(decimal.NewFromInt(3)))
	assert.True(t, charge.BillableUnits.Equal(decimal.NewFromInt(2)))
}

// Фича A включает 20 единиц на каждую потребленную единицу связанной фичи B
func TestChargeLinkedFeatureMultiply(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	featureB := domain.MeteredFeature{
		ID:           uuid.New(),
		Name:         "Seats",
		PricePerUnit: decimal.NewFromInt(50),
	}
	featureA := domain.MeteredFeature{
		ID:                       uuid.New(),
		Name:                     "API calls",
		PricePerUnit:             decimal.NewFromInt(1),
		IncludedUnits:            decimal.NewFromInt(20),
		LinkedFeatureID:          &featureB.ID,
		IncludedUnitsCalculation: domain.CalculationMultiply,
	}
	plan := domain.Plan{ID: uuid.New(), MeteredFeatures: []domain.MeteredFeature{featureA, featureB}}
	sub := domain.Subscription{ID: uuid.New()}

	_, err := env.usage.Record(ctx, sub.ID, featureB.ID,
		day(2024, time.March, 1), day(2024, time.March, 1), decimal.NewFromInt(2))
	require.NoError(t, err)
	_, err = env.usage.Record(ctx, sub.ID, featureA.ID,
		day(2024, time.March, 10), day(2024, time.March, 10), decimal.NewFromInt(40))
	require.NoError(t, err)

	charge, err := env.usage.Charge(ctx, sub, plan, featureA,
		day(2024, time.March, 1), day(2024, time.March, 31), false)
	require.NoError(t, err)
	// 2 единицы B умножают 20 включенных до 40: все 40 потребленных бесплатны
	assert.True(t, charge.IncludedUnits.Equal(decimal.NewFromInt(40)), "got %s", charge.IncludedUnits)
	assert.True(t, charge.BillableUnits.IsZero())
	assert.True(t, charge.Cost.IsZero())
}

func TestChargeLinkedFeatureZeroConsumptionKeepsBase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	featureB := domain.MeteredFeature{ID: uuid.New(), PricePerUnit: decimal.NewFromInt(50)}
	featureA := domain.MeteredFeature{
		ID:                       uuid.New(),
		PricePerUnit:             decimal.NewFromInt(1),
		IncludedUnits:            decimal.NewFromInt(20),
		LinkedFeatureID:          &featureB.ID,
		IncludedUnitsCalculation: domain.CalculationMultiply,
	}
	plan := domain.Plan{ID: uuid.New(), MeteredFeatures: []domain.MeteredFeature{featureA, featureB}}
	sub := domain.Subscription{ID: uuid.New()}

	charge, err := env.usage.Charge(ctx, sub, plan, featureA,
		day(2024, time.March, 1), day(2024, time.March, 31), false)
	require.NoError(t, err)
	// Нулевое потребление связанной фичи не обнуляет включенные единицы
	assert.True(t, charge.IncludedUnits.Equal(decimal.NewFromInt(20)), "got %s", charge.IncludedUnits)
}

func TestChargeLinkedFeatureFromLinkedSubscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	featureB := domain.MeteredFeature{ID: uuid.New(), PricePerUnit: decimal.NewFromInt(50)}
	featureA := domain.MeteredFeature{
		ID:                       uuid.New(),
		PricePerUnit:             decimal.NewFromInt(1),
		IncludedUnits:            decimal.NewFromInt(10),
		LinkedFeatureID:          &featureB.ID,
		IncludedUnitsCalculation: domain.CalculationAdd,
	}
	plan := domain.Plan{ID: uuid.New(), MeteredFeatures: []domain.MeteredFeature{featureA, featureB}}

	linkedSubID := uuid.New()
	sub := domain.Subscription{ID: uuid.New(), LinkedSubscriptionID: &linkedSubID}

	// Потребление связанной фичи логируется на связанной подписке
	_, err := env.usage.Record(ctx, linkedSubID, featureB.ID,
		day(2024, time.March, 1), day(2024, time.March, 1), decimal.NewFromInt(5))
	require.NoError(t, err)

	charge, err := env.usage.Charge(ctx, sub, plan, featureA,
		day(2024, time.March, 1), day(2024, time.March, 31), false)
	require.NoError(t, err)
	assert.True(t, charge.IncludedUnits.Equal(decimal.NewFromInt(15)), "got %s", charge.IncludedUnits)
}

func TestChargeLinkedFeatureNotInPlan(t *testing.T) {
	env := newTestEnv(t)

	missingID := uuid.New()
	featureA := domain.MeteredFeature{
		ID:                       uuid.New(),
		PricePerUnit:             decimal.NewFromInt(1),
		LinkedFeatureID:          &missingID,
		IncludedUnitsCalculation: domain.CalculationMultiply,
	}
	plan := domain.Plan{ID: uuid.New(), MeteredFeatures: []domain.MeteredFeature{featureA}}
	sub := domain.Subscription{ID: uuid.New()}

	_, err := env.usage.Charge(context.Background(), sub, plan, featureA,
		day(2024, time.March, 1), day(2024, time.March, 31), false)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
