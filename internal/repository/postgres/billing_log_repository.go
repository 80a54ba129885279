package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
)

// billingLogRepo реализация репозитория записей биллинга через PostgreSQL.
// Таблица несет уникальный индекс по (subscription_id, cycle_start,
// cycle_end, flow) - это и есть страж идемпотентности.
type billingLogRepo struct{ s *Store }

func (r *billingLogRepo) Create(ctx context.Context, log domain.BillingLog) error {
	query := `
		INSERT INTO billing_logs (id, subscription_id, document_id, cycle_start,
			cycle_end, flow, billing_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.s.q(ctx).Exec(ctx, query,
		log.ID, log.SubscriptionID, log.DocumentID,
		log.CycleStart, log.CycleEnd, log.Flow, log.BillingDate, log.CreatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (r *billingLogRepo) Exists(ctx context.Context, subscriptionID uuid.UUID,
	cycleStart, cycleEnd time.Time, flow domain.BillingFlow) (bool, error) {
	query := `
		SELECT 1 FROM billing_logs
		WHERE subscription_id = $1 AND cycle_start = $2 AND cycle_end = $3 AND flow = $4
	`

	var one int
	err := r.s.q(ctx).QueryRow(ctx, query, subscriptionID, cycleStart, cycleEnd, flow).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *billingLogRepo) LastForSubscription(ctx context.Context, subscriptionID uuid.UUID,
	flow domain.BillingFlow) (*domain.BillingLog, error) {
	query := `
		SELECT id, subscription_id, document_id, cycle_start, cycle_end,
			flow, billing_date, created_at
		FROM billing_logs
		WHERE subscription_id = $1 AND flow = $2
		ORDER BY cycle_end DESC
		LIMIT 1
	`

	var log domain.BillingLog
	err := r.s.q(ctx).QueryRow(ctx, query, subscriptionID, flow).Scan(
		&log.ID,
		&log.SubscriptionID,
		&log.DocumentID,
		&log.CycleStart,
		&log.CycleEnd,
		&log.Flow,
		&log.BillingDate,
		&log.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &log, nil
}
