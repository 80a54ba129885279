package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

// usageRepo реализация репозитория логов потребления через PostgreSQL.
// Записи только добавляются, обновлений нет.
type usageRepo struct{ s *Store }

func (r *usageRepo) Create(ctx context.Context, log domain.MeteredFeatureUnitsLog) error {
	query := `
		INSERT INTO metered_feature_units_logs (id, subscription_id, feature_id,
			start_date, end_date, consumed_units, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.s.q(ctx).Exec(ctx, query,
		log.ID, log.SubscriptionID, log.FeatureID,
		log.StartDate, log.EndDate, log.ConsumedUnits.String(), log.CreatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (r *usageRepo) ListIntersecting(ctx context.Context, subscriptionID, featureID uuid.UUID,
	start, end time.Time) ([]domain.MeteredFeatureUnitsLog, error) {
	query := `
		SELECT id, subscription_id, feature_id, start_date, end_date,
			consumed_units::text, created_at
		FROM metered_feature_units_logs
		WHERE subscription_id = $1
			AND feature_id = $2
			AND end_date >= $3
			AND start_date <= $4
		ORDER BY start_date
	`

	rows, err := r.s.q(ctx).Query(ctx, query, subscriptionID, featureID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query units logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.MeteredFeatureUnitsLog
	for rows.Next() {
		var log domain.MeteredFeatureUnitsLog
		var consumed string

		err := rows.Scan(
			&log.ID,
			&log.SubscriptionID,
			&log.FeatureID,
			&log.StartDate,
			&log.EndDate,
			&consumed,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan units log: %w", err)
		}

		if log.ConsumedUnits, err = parseDecimal(consumed); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating units logs: %w", err)
	}
	return logs, nil
}
