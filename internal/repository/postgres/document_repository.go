package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
)

// documentRepo реализация репозитория платежных документов через PostgreSQL.
// Записи документа хранятся в отдельной таблице document_entries и
// загружаются и сохраняются вместе с документом.
type documentRepo struct{ s *Store }

const documentColumns = `
	id, customer_id, provider_id, state, currency,
	transaction_currency_rate::text, issue_date, due_date, paid_date,
	created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (domain.BillingDocument, error) {
	var doc domain.BillingDocument
	var rate string

	err := row.Scan(
		&doc.ID,
		&doc.CustomerID,
		&doc.ProviderID,
		&doc.State,
		&doc.Currency,
		&rate,
		&doc.IssueDate,
		&doc.DueDate,
		&doc.PaidDate,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return domain.BillingDocument{}, err
	}

	if doc.TransactionCurrencyRate, err = parseDecimal(rate); err != nil {
		return domain.BillingDocument{}, err
	}
	return doc, nil
}

// entriesForDocument загружает записи документа в порядке добавления
func (r *documentRepo) entriesForDocument(ctx context.Context, documentID uuid.UUID) ([]domain.DocumentEntry, error) {
	query := `
		SELECT id, description, quantity::text, unit_price::text, product_code,
			start_date, end_date
		FROM document_entries
		WHERE document_id = $1
		ORDER BY position
	`

	rows, err := r.s.q(ctx).Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query document entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.DocumentEntry
	for rows.Next() {
		var entry domain.DocumentEntry
		var quantity, unitPrice string

		err := rows.Scan(
			&entry.ID,
			&entry.Description,
			&quantity,
			&unitPrice,
			&entry.ProductCode,
			&entry.StartDate,
			&entry.EndDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document entry: %w", err)
		}
		if entry.Quantity, err = parseDecimal(quantity); err != nil {
			return nil, err
		}
		if entry.UnitPrice, err = parseDecimal(unitPrice); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document entries: %w", err)
	}
	return entries, nil
}

// replaceEntries перезаписывает записи документа. Вызывается только пока
// документ в draft; после выставления набор записей не меняется.
func (r *documentRepo) replaceEntries(ctx context.Context, doc domain.BillingDocument) error {
	if _, err := r.s.q(ctx).Exec(ctx,
		`DELETE FROM document_entries WHERE document_id = $1`, doc.ID); err != nil {
		return mapError(err)
	}

	query := `
		INSERT INTO document_entries (id, document_id, position, description,
			quantity, unit_price, product_code, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for i, entry := range doc.Entries {
		_, err := r.s.q(ctx).Exec(ctx, query,
			entry.ID, doc.ID, i, entry.Description,
			entry.Quantity.String(), entry.UnitPrice.String(),
			entry.ProductCode, entry.StartDate, entry.EndDate,
		)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.BillingDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	doc, err := scanDocument(r.s.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return domain.BillingDocument{}, mapError(err)
	}
	if doc.Entries, err = r.entriesForDocument(ctx, doc.ID); err != nil {
		return domain.BillingDocument{}, err
	}
	return doc, nil
}

func (r *documentRepo) Create(ctx context.Context, doc domain.BillingDocument) error {
	return r.s.Atomic(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO documents (id, customer_id, provider_id, state, currency,
				transaction_currency_rate, issue_date, due_date, paid_date,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`

		_, err := r.s.q(ctx).Exec(ctx, query,
			doc.ID, doc.CustomerID, doc.ProviderID, doc.State, doc.Currency,
			doc.TransactionCurrencyRate.String(), doc.IssueDate, doc.DueDate,
			doc.PaidDate, doc.CreatedAt, doc.UpdatedAt,
		)
		if err != nil {
			return mapError(err)
		}
		return r.replaceEntries(ctx, doc)
	})
}

func (r *documentRepo) Update(ctx context.Context, doc domain.BillingDocument) error {
	return r.s.Atomic(ctx, func(ctx context.Context) error {
		query := `
			UPDATE documents
			SET state = $2, transaction_currency_rate = $3, issue_date = $4,
				due_date = $5, paid_date = $6, updated_at = now()
			WHERE id = $1
		`

		tag, err := r.s.q(ctx).Exec(ctx, query,
			doc.ID, doc.State, doc.TransactionCurrencyRate.String(),
			doc.IssueDate, doc.DueDate, doc.PaidDate,
		)
		if err != nil {
			return mapError(err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return r.replaceEntries(ctx, doc)
	})
}

func (r *documentRepo) OpenDraft(ctx context.Context, customerID, providerID uuid.UUID) (domain.BillingDocument, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE customer_id = $1 AND provider_id = $2 AND state = 'draft'
		ORDER BY created_at
		LIMIT 1`

	doc, err := scanDocument(r.s.q(ctx).QueryRow(ctx, query, customerID, providerID))
	if err != nil {
		return domain.BillingDocument{}, mapError(err)
	}
	if doc.Entries, err = r.entriesForDocument(ctx, doc.ID); err != nil {
		return domain.BillingDocument{}, err
	}
	return doc, nil
}

func (r *documentRepo) ListOpenForProvider(ctx context.Context, customerID, providerID uuid.UUID) ([]domain.BillingDocument, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE customer_id = $1 AND provider_id = $2 AND state IN ('draft', 'issued')
		ORDER BY created_at`
	return r.list(ctx, query, customerID, providerID)
}

func (r *documentRepo) ListPaidForCustomer(ctx context.Context, customerID uuid.UUID, date time.Time) ([]domain.BillingDocument, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE customer_id = $1 AND state = 'paid' AND paid_date::date <= $2::date
		ORDER BY paid_date`
	return r.list(ctx, query, customerID, date)
}

func (r *documentRepo) ListIssued(ctx context.Context) ([]domain.BillingDocument, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents WHERE state = 'issued' ORDER BY due_date`
	return r.list(ctx, query)
}

func (r *documentRepo) list(ctx context.Context, query string, args ...any) ([]domain.BillingDocument, error) {
	rows, err := r.s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.BillingDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	for i := range docs {
		if docs[i].Entries, err = r.entriesForDocument(ctx, docs[i].ID); err != nil {
			return nil, err
		}
	}
	return docs, nil
}
