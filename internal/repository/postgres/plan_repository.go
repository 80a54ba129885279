package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

// planRepo реализация репозитория планов через PostgreSQL
type planRepo struct{ s *Store }

func (r *planRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Plan, error) {
	query := `
		SELECT id, provider_id, name, interval, interval_count, amount::text,
			currency, trial_period_days, generate_after, prebill_plan,
			cycle_billing_duration_days, product_code, enabled, metadata,
			created_at, updated_at
		FROM plans
		WHERE id = $1
	`

	var p domain.Plan
	var amount string
	var cycleBillingDays int
	var metadataBytes []byte

	err := r.s.q(ctx).QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.ProviderID,
		&p.Name,
		&p.Interval,
		&p.IntervalCount,
		&amount,
		&p.Currency,
		&p.TrialPeriodDays,
		&p.GenerateAfter,
		&p.PrebillPlan,
		&cycleBillingDays,
		&p.ProductCode,
		&p.Enabled,
		&metadataBytes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Plan{}, mapError(err)
	}

	if p.Amount, err = parseDecimal(amount); err != nil {
		return domain.Plan{}, err
	}
	p.CycleBillingDuration = time.Duration(cycleBillingDays) * 24 * time.Hour
	if p.Metadata, err = unmarshalMetadata(metadataBytes); err != nil {
		return domain.Plan{}, err
	}

	if p.MeteredFeatures, err = r.featuresForPlan(ctx, p.ID); err != nil {
		return domain.Plan{}, err
	}
	return p, nil
}

// featuresForPlan загружает фичи плана в объявленном порядке
func (r *planRepo) featuresForPlan(ctx context.Context, planID uuid.UUID) ([]domain.MeteredFeature, error) {
	query := `
		SELECT id, plan_id, name, unit, price_per_unit::text,
			included_units::text, included_units_during_trial::text,
			linked_feature_id, included_units_calculation,
			prebill_included_units, product_code
		FROM metered_features
		WHERE plan_id = $1
		ORDER BY position
	`

	rows, err := r.s.q(ctx).Query(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query metered features: %w", err)
	}
	defer rows.Close()

	var features []domain.MeteredFeature
	for rows.Next() {
		var f domain.MeteredFeature
		var price, included, includedTrial string
		var calculation *string

		err := rows.Scan(
			&f.ID,
			&f.PlanID,
			&f.Name,
			&f.Unit,
			&price,
			&included,
			&includedTrial,
			&f.LinkedFeatureID,
			&calculation,
			&f.PrebillIncludedUnits,
			&f.ProductCode,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metered feature: %w", err)
		}

		if f.PricePerUnit, err = parseDecimal(price); err != nil {
			return nil, err
		}
		if f.IncludedUnits, err = parseDecimal(included); err != nil {
			return nil, err
		}
		if f.IncludedUnitsDuringTrial, err = parseDecimal(includedTrial); err != nil {
			return nil, err
		}
		if calculation != nil {
			f.IncludedUnitsCalculation = domain.IncludedUnitsCalculation(*calculation)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metered features: %w", err)
	}
	return features, nil
}

func (r *planRepo) Create(ctx context.Context, plan domain.Plan) error {
	// План и его фичи пишутся вместе
	return r.s.Atomic(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO plans (id, provider_id, name, interval, interval_count,
				amount, currency, trial_period_days, generate_after,
				prebill_plan, cycle_billing_duration_days, product_code,
				enabled, metadata, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`

		metadataBytes, err := marshalMetadata(plan.Metadata)
		if err != nil {
			return err
		}

		_, err = r.s.q(ctx).Exec(ctx, query,
			plan.ID, plan.ProviderID, plan.Name, plan.Interval, plan.IntervalCount,
			plan.Amount.String(), plan.Currency, plan.TrialPeriodDays,
			plan.GenerateAfter, plan.PrebillPlan,
			int(plan.CycleBillingDuration.Hours()/24), plan.ProductCode,
			plan.Enabled, metadataBytes, plan.CreatedAt, plan.UpdatedAt,
		)
		if err != nil {
			return mapError(err)
		}

		featureQuery := `
			INSERT INTO metered_features (id, plan_id, name, unit, price_per_unit,
				included_units, included_units_during_trial, linked_feature_id,
				included_units_calculation, prebill_included_units, product_code,
				position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`
		for i := range plan.MeteredFeatures {
			f := &plan.MeteredFeatures[i]
			var calculation *string
			if f.IncludedUnitsCalculation != "" {
				value := string(f.IncludedUnitsCalculation)
				calculation = &value
			}

			_, err = r.s.q(ctx).Exec(ctx, featureQuery,
				f.ID, plan.ID, f.Name, f.Unit, f.PricePerUnit.String(),
				f.IncludedUnits.String(), f.IncludedUnitsDuringTrial.String(),
				f.LinkedFeatureID, calculation, f.PrebillIncludedUnits,
				f.ProductCode, i,
			)
			if err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}
