package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
)

// customerRepo реализация репозитория клиентов через PostgreSQL
type customerRepo struct{ s *Store }

const customerColumns = `
	id, first_name, last_name, company, email, payment_due_days,
	consolidated_billing, sales_tax_percent, currency, metadata,
	created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (domain.Customer, error) {
	var c domain.Customer
	var metadataBytes []byte

	err := row.Scan(
		&c.ID,
		&c.FirstName,
		&c.LastName,
		&c.Company,
		&c.Email,
		&c.PaymentDueDays,
		&c.ConsolidatedBilling,
		&c.SalesTaxPercent,
		&c.Currency,
		&metadataBytes,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return domain.Customer{}, err
	}

	if c.Metadata, err = unmarshalMetadata(metadataBytes); err != nil {
		return domain.Customer{}, err
	}
	return c, nil
}

func (r *customerRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	customer, err := scanCustomer(r.s.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return domain.Customer{}, mapError(err)
	}
	return customer, nil
}

func (r *customerRepo) GetAll(ctx context.Context) ([]domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers ORDER BY created_at`

	rows, err := r.s.q(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var customers []domain.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}
	return customers, nil
}

func (r *customerRepo) Create(ctx context.Context, customer domain.Customer) error {
	query := `
		INSERT INTO customers (id, first_name, last_name, company, email,
			payment_due_days, consolidated_billing, sales_tax_percent,
			currency, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	metadataBytes, err := marshalMetadata(customer.Metadata)
	if err != nil {
		return err
	}

	_, err = r.s.q(ctx).Exec(ctx, query,
		customer.ID, customer.FirstName, customer.LastName, customer.Company,
		customer.Email, customer.PaymentDueDays, customer.ConsolidatedBilling,
		customer.SalesTaxPercent, customer.Currency, metadataBytes,
		customer.CreatedAt, customer.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (r *customerRepo) Update(ctx context.Context, customer domain.Customer) error {
	query := `
		UPDATE customers
		SET first_name = $2, last_name = $3, company = $4, email = $5,
			payment_due_days = $6, consolidated_billing = $7,
			sales_tax_percent = $8, currency = $9, metadata = $10,
			updated_at = now()
		WHERE id = $1
	`

	metadataBytes, err := marshalMetadata(customer.Metadata)
	if err != nil {
		return err
	}

	tag, err := r.s.q(ctx).Exec(ctx, query,
		customer.ID, customer.FirstName, customer.LastName, customer.Company,
		customer.Email, customer.PaymentDueDays, customer.ConsolidatedBilling,
		customer.SalesTaxPercent, customer.Currency, metadataBytes,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
