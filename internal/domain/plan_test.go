package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPlan() Plan {
	return Plan{
		ID:            uuid.New(),
		ProviderID:    uuid.New(),
		Name:          "Standard",
		Interval:      IntervalMonth,
		IntervalCount: 1,
		Amount:        decimal.NewFromInt(10),
		Currency:      "USD",
	}
}

func TestPlanValidate(t *testing.T) {
	plan := validPlan()
	require.NoError(t, plan.Validate())
}

func TestPlanValidateRejectsZeroIntervalCount(t *testing.T) {
	plan := validPlan()
	plan.IntervalCount = 0
	assert.ErrorIs(t, plan.Validate(), ErrInvalidConfiguration)
}

func TestPlanValidateRejectsUnknownInterval(t *testing.T) {
	plan := validPlan()
	plan.Interval = Interval("fortnight")
	assert.ErrorIs(t, plan.Validate(), ErrInvalidConfiguration)
}

func TestPlanValidateRejectsNegativeAmount(t *testing.T) {
	plan := validPlan()
	plan.Amount = decimal.NewFromInt(-1)
	assert.ErrorIs(t, plan.Validate(), ErrInvalidConfiguration)
}

func TestPlanValidateLinkedFeatureRequiresCalculation(t *testing.T) {
	plan := validPlan()
	linkedID := uuid.New()
	plan.MeteredFeatures = []MeteredFeature{{
		ID:              uuid.New(),
		Name:            "Feature A",
		PricePerUnit:    decimal.NewFromInt(1),
		LinkedFeatureID: &linkedID,
	}}
	assert.ErrorIs(t, plan.Validate(), ErrInvalidConfiguration)

	plan.MeteredFeatures[0].IncludedUnitsCalculation = CalculationMultiply
	require.NoError(t, plan.Validate())
}

func TestFeatureByID(t *testing.T) {
	plan := validPlan()
	feature := MeteredFeature{ID: uuid.New(), Name: "Feature A"}
	plan.MeteredFeatures = []MeteredFeature{feature}

	found := plan.FeatureByID(feature.ID)
	require.NotNil(t, found)
	assert.Equal(t, "Feature A", found.Name)

	assert.Nil(t, plan.FeatureByID(uuid.New()))
}
