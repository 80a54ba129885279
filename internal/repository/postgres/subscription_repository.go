package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
)

// subscriptionRepo реализация репозитория подписок через PostgreSQL
type subscriptionRepo struct{ s *Store }

const subscriptionColumns = `
	id, customer_id, plan_id, state, start_date, cycle_end_override,
	linked_subscription_id, payment_method_id, billed_up_to, canceled_at,
	ended_at, metadata, created_at, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (domain.Subscription, error) {
	var sub domain.Subscription
	var metadataBytes []byte

	err := row.Scan(
		&sub.ID,
		&sub.CustomerID,
		&sub.PlanID,
		&sub.State,
		&sub.StartDate,
		&sub.CycleEndOverride,
		&sub.LinkedSubscriptionID,
		&sub.PaymentMethodID,
		&sub.BilledUpTo,
		&sub.CanceledAt,
		&sub.EndedAt,
		&metadataBytes,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return domain.Subscription{}, err
	}

	if sub.Metadata, err = unmarshalMetadata(metadataBytes); err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

func (r *subscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := scanSubscription(r.s.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return domain.Subscription{}, mapError(err)
	}
	return sub, nil
}

func (r *subscriptionRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions WHERE customer_id = $1 ORDER BY created_at`
	return r.list(ctx, query, customerID)
}

func (r *subscriptionRepo) ListByStates(ctx context.Context, states ...domain.SubscriptionState) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions WHERE state = ANY($1) ORDER BY created_at`

	stateValues := make([]string, len(states))
	for i, state := range states {
		stateValues[i] = string(state)
	}
	return r.list(ctx, query, stateValues)
}

func (r *subscriptionRepo) list(ctx context.Context, query string, args ...any) ([]domain.Subscription, error) {
	rows, err := r.s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return subs, nil
}

func (r *subscriptionRepo) Create(ctx context.Context, sub domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, customer_id, plan_id, state, start_date,
			cycle_end_override, linked_subscription_id, payment_method_id,
			billed_up_to, canceled_at, ended_at, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	metadataBytes, err := marshalMetadata(sub.Metadata)
	if err != nil {
		return err
	}

	_, err = r.s.q(ctx).Exec(ctx, query,
		sub.ID, sub.CustomerID, sub.PlanID, sub.State, sub.StartDate,
		sub.CycleEndOverride, sub.LinkedSubscriptionID, sub.PaymentMethodID,
		sub.BilledUpTo, sub.CanceledAt, sub.EndedAt, metadataBytes,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (r *subscriptionRepo) Update(ctx context.Context, sub domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET state = $2, cycle_end_override = $3, linked_subscription_id = $4,
			payment_method_id = $5, billed_up_to = $6, canceled_at = $7,
			ended_at = $8, metadata = $9, updated_at = now()
		WHERE id = $1
	`

	metadataBytes, err := marshalMetadata(sub.Metadata)
	if err != nil {
		return err
	}

	tag, err := r.s.q(ctx).Exec(ctx, query,
		sub.ID, sub.State, sub.CycleEndOverride, sub.LinkedSubscriptionID,
		sub.PaymentMethodID, sub.BilledUpTo, sub.CanceledAt, sub.EndedAt,
		metadataBytes,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
