package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
)

// paymentMethodRepo реализация репозитория методов оплаты через PostgreSQL
type paymentMethodRepo struct{ s *Store }

const paymentMethodColumns = `
	id, customer_id, processor, verified, canceled, attempt_retries_after,
	stop_retry_attempts, metadata, created_at, updated_at`

func scanPaymentMethod(row interface{ Scan(...any) error }) (domain.PaymentMethod, error) {
	var method domain.PaymentMethod
	var metadataBytes []byte

	err := row.Scan(
		&method.ID,
		&method.CustomerID,
		&method.Processor,
		&method.Verified,
		&method.Canceled,
		&method.AttemptRetriesAfter,
		&method.StopRetryAttempts,
		&metadataBytes,
		&method.CreatedAt,
		&method.UpdatedAt,
	)
	if err != nil {
		return domain.PaymentMethod{}, err
	}

	if method.Metadata, err = unmarshalMetadata(metadataBytes); err != nil {
		return domain.PaymentMethod{}, err
	}
	return method, nil
}

func (r *paymentMethodRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.PaymentMethod, error) {
	query := `SELECT ` + paymentMethodColumns + ` FROM payment_methods WHERE id = $1`

	method, err := scanPaymentMethod(r.s.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return domain.PaymentMethod{}, mapError(err)
	}
	return method, nil
}

func (r *paymentMethodRepo) Create(ctx context.Context, method domain.PaymentMethod) error {
	query := `
		INSERT INTO payment_methods (id, customer_id, processor, verified,
			canceled, attempt_retries_after, stop_retry_attempts, metadata,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	metadataBytes, err := marshalMetadata(method.Metadata)
	if err != nil {
		return err
	}

	_, err = r.s.q(ctx).Exec(ctx, query,
		method.ID, method.CustomerID, method.Processor, method.Verified,
		method.Canceled, method.AttemptRetriesAfter, method.StopRetryAttempts,
		metadataBytes, method.CreatedAt, method.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (r *paymentMethodRepo) Update(ctx context.Context, method domain.PaymentMethod) error {
	query := `
		UPDATE payment_methods
		SET verified = $2, canceled = $3, attempt_retries_after = $4,
			stop_retry_attempts = $5, metadata = $6, updated_at = now()
		WHERE id = $1
	`

	metadataBytes, err := marshalMetadata(method.Metadata)
	if err != nil {
		return err
	}

	tag, err := r.s.q(ctx).Exec(ctx, query,
		method.ID, method.Verified, method.Canceled,
		method.AttemptRetriesAfter, method.StopRetryAttempts, metadataBytes,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
