package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
)

// transactionRepo реализация репозитория транзакций через PostgreSQL
type transactionRepo struct{ s *Store }

const transactionColumns = `
	id, document_id, payment_method_id, state, amount::text, currency,
	overpayment, fail_code, external_reference, processed_at, created_at,
	updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (domain.Transaction, error) {
	var txn domain.Transaction
	var amount string
	var failCode, externalReference *string

	err := row.Scan(
		&txn.ID,
		&txn.DocumentID,
		&txn.PaymentMethodID,
		&txn.State,
		&amount,
		&txn.Currency,
		&txn.Overpayment,
		&failCode,
		&externalReference,
		&txn.ProcessedAt,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}

	if txn.Amount, err = parseDecimal(amount); err != nil {
		return domain.Transaction{}, err
	}
	if failCode != nil {
		txn.FailCode = domain.FailCode(*failCode)
	}
	if externalReference != nil {
		txn.ExternalReference = *externalReference
	}
	return txn, nil
}

func (r *transactionRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	txn, err := scanTransaction(r.s.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return domain.Transaction{}, mapError(err)
	}
	return txn, nil
}

func (r *transactionRepo) Create(ctx context.Context, txn domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, document_id, payment_method_id, state,
			amount, currency, overpayment, fail_code, external_reference,
			processed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.s.q(ctx).Exec(ctx, query,
		txn.ID, txn.DocumentID, txn.PaymentMethodID, txn.State,
		txn.Amount.String(), txn.Currency, txn.Overpayment,
		nullableString(string(txn.FailCode)), nullableString(txn.ExternalReference),
		txn.ProcessedAt, txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// Update сохраняет изменяемые поля транзакции. Сумма неизменяема и в
// обновление не входит.
func (r *transactionRepo) Update(ctx context.Context, txn domain.Transaction) error {
	query := `
		UPDATE transactions
		SET state = $2, fail_code = $3, external_reference = $4,
			processed_at = $5, updated_at = now()
		WHERE id = $1
	`

	tag, err := r.s.q(ctx).Exec(ctx, query,
		txn.ID, txn.State, nullableString(string(txn.FailCode)),
		nullableString(txn.ExternalReference), txn.ProcessedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *transactionRepo) ListForDocument(ctx context.Context, documentID uuid.UUID) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions WHERE document_id = $1 ORDER BY created_at`
	return r.list(ctx, query, documentID)
}

func (r *transactionRepo) ListByState(ctx context.Context, state domain.TransactionState) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions WHERE state = $1 ORDER BY created_at`
	return r.list(ctx, query, state)
}

func (r *transactionRepo) list(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}

// nullableString возвращает nil для пустой строки
func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
