package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

// providerRepo реализация репозитория поставщиков через PostgreSQL
type providerRepo struct{ s *Store }

const providerColumns = `id, name, invoice_series, starting_number, metadata, created_at, updated_at`

func scanProvider(row interface{ Scan(...any) error }) (domain.Provider, error) {
	var p domain.Provider
	var metadataBytes []byte

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.InvoiceSeries,
		&p.StartingNumber,
		&metadataBytes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Provider{}, err
	}

	if p.Metadata, err = unmarshalMetadata(metadataBytes); err != nil {
		return domain.Provider{}, err
	}
	return p, nil
}

func (r *providerRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`

	provider, err := scanProvider(r.s.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return domain.Provider{}, mapError(err)
	}
	return provider, nil
}

func (r *providerRepo) GetByMetaKey(ctx context.Context, key string) (domain.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE metadata ? $1 LIMIT 1`

	provider, err := scanProvider(r.s.q(ctx).QueryRow(ctx, query, key))
	if err != nil {
		return domain.Provider{}, mapError(err)
	}
	return provider, nil
}

func (r *providerRepo) Create(ctx context.Context, provider domain.Provider) error {
	query := `
		INSERT INTO providers (id, name, invoice_series, starting_number,
			metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	metadataBytes, err := marshalMetadata(provider.Metadata)
	if err != nil {
		return err
	}

	_, err = r.s.q(ctx).Exec(ctx, query,
		provider.ID, provider.Name, provider.InvoiceSeries,
		provider.StartingNumber, metadataBytes,
		provider.CreatedAt, provider.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}
