package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Interval период тарификации плана
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalMonth Interval = "month"
	// IntervalMonthish месячный цикл, привязанный к дню месяца начала
	// подписки, а не к календарному месяцу. Для коротких месяцев день
	// привязки сдвигается на последний день месяца.
	IntervalMonthish Interval = "monthish"
	IntervalYear     Interval = "year"
)

// IncludedUnitsCalculation способ комбинирования включенных единиц со
// связанной фичей
type IncludedUnitsCalculation string

const (
	CalculationMultiply IncludedUnitsCalculation = "multiply"
	CalculationAdd      IncludedUnitsCalculation = "add"
	CalculationSubtract IncludedUnitsCalculation = "subtract"
)

// Plan представляет собой тарифный план
type Plan struct {
	ID              uuid.UUID       `json:"id"`
	ProviderID      uuid.UUID       `json:"provider_id"`
	Name            string          `json:"name"`
	Interval        Interval        `json:"interval"`
	IntervalCount   int             `json:"interval_count"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	TrialPeriodDays int             `json:"trial_period_days"`
	// GenerateAfter дней после конца цикла, раньше которых документ не
	// выставляется
	GenerateAfter int `json:"generate_after"`
	// PrebillPlan тарифицировать базовую сумму в начале цикла, а не в конце
	PrebillPlan bool `json:"prebill_plan"`
	// CycleBillingDuration верхняя граница того, как долго после начала
	// цикла для него еще может быть выставлен документ. Ноль - без границы.
	CycleBillingDuration time.Duration     `json:"cycle_billing_duration"`
	ProductCode          string            `json:"product_code"`
	Enabled              bool              `json:"enabled"`
	MeteredFeatures      []MeteredFeature  `json:"metered_features,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// MeteredFeature представляет собой тарифицируемую по потреблению фичу плана
type MeteredFeature struct {
	ID           uuid.UUID       `json:"id"`
	PlanID       uuid.UUID       `json:"plan_id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	// IncludedUnits бесплатно включенные единицы за цикл
	IncludedUnits            decimal.Decimal `json:"included_units"`
	IncludedUnitsDuringTrial decimal.Decimal `json:"included_units_during_trial"`
	// LinkedFeatureID фича, чье потребление масштабирует включенные единицы
	// этой фичи
	LinkedFeatureID          *uuid.UUID               `json:"linked_feature_id,omitempty"`
	IncludedUnitsCalculation IncludedUnitsCalculation `json:"included_units_calculation,omitempty"`
	// PrebillIncludedUnits включенные единицы тарифицируются авансом в
	// начале цикла, перерасход отдельной записью в конце
	PrebillIncludedUnits bool   `json:"prebill_included_units"`
	ProductCode          string `json:"product_code"`
}

// Validate проверяет конфигурацию плана. Вызывается до любой календарной
// арифметики: план с interval_count <= 0 отклоняется сразу, иначе генерация
// дат цикла зациклится.
func (p *Plan) Validate() error {
	if p.IntervalCount <= 0 {
		return NewConfigurationError("interval_count", "must be at least 1")
	}

	switch p.Interval {
	case IntervalDay, IntervalMonth, IntervalMonthish, IntervalYear:
	default:
		return NewConfigurationError("interval", "unknown interval "+string(p.Interval))
	}

	if p.Amount.IsNegative() {
		return NewConfigurationError("amount", "must not be negative")
	}
	if p.GenerateAfter < 0 {
		return NewConfigurationError("generate_after", "must not be negative")
	}
	if p.TrialPeriodDays < 0 {
		return NewConfigurationError("trial_period_days", "must not be negative")
	}

	for i := range p.MeteredFeatures {
		mf := &p.MeteredFeatures[i]
		if mf.PricePerUnit.IsNegative() {
			return NewConfigurationError("price_per_unit", "must not be negative")
		}
		if mf.LinkedFeatureID != nil {
			switch mf.IncludedUnitsCalculation {
			case CalculationMultiply, CalculationAdd, CalculationSubtract:
			default:
				return NewConfigurationError("included_units_calculation",
					"required when linked_feature is set")
			}
		}
	}

	return nil
}

// FeatureByID возвращает фичу плана по идентификатору
func (p *Plan) FeatureByID(id uuid.UUID) *MeteredFeature {
	for i := range p.MeteredFeatures {
		if p.MeteredFeatures[i].ID == id {
			return &p.MeteredFeatures[i]
		}
	}
	return nil
}
