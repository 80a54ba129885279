// Package postgres реализует хранилище через PostgreSQL (pgx).
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// querier общий интерфейс для pgxpool.Pool и pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txContextKey ключ транзакции в контексте
type txContextKey struct{}

// Store реализация repository.Store через PostgreSQL
type Store struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewStore создает новое хранилище поверх пула соединений
func NewStore(pool *pgxpool.Pool, log *logger.Logger) *Store {
	return &Store{pool: pool, log: log}
}

// Connect открывает пул соединений и проверяет его
func Connect(ctx context.Context, dsn string, log *logger.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Infow("Connected to PostgreSQL")
	return pool, nil
}

// q возвращает активную транзакцию из контекста либо пул
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

func (s *Store) Customers() repository.CustomerRepository           { return &customerRepo{s} }
func (s *Store) Providers() repository.ProviderRepository           { return &providerRepo{s} }
func (s *Store) Plans() repository.PlanRepository                   { return &planRepo{s} }
func (s *Store) Subscriptions() repository.SubscriptionRepository   { return &subscriptionRepo{s} }
func (s *Store) Usage() repository.UsageRepository                  { return &usageRepo{s} }
func (s *Store) BillingLogs() repository.BillingLogRepository       { return &billingLogRepo{s} }
func (s *Store) Documents() repository.DocumentRepository           { return &documentRepo{s} }
func (s *Store) Transactions() repository.TransactionRepository     { return &transactionRepo{s} }
func (s *Store) PaymentMethods() repository.PaymentMethodRepository { return &paymentMethodRepo{s} }

// Atomic выполняет fn внутри одной транзакции БД. Вложенный Atomic
// продолжает уже открытую транзакцию.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txContextKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.log.Errorw("Failed to rollback transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LockSubscription берет advisory-блокировку на подписку до конца
// транзакции. Конкурентные проходы по одной подписке сериализуются,
// проходы по разным подпискам идут параллельно.
func (s *Store) LockSubscription(ctx context.Context, id uuid.UUID) error {
	return s.advisoryLock(ctx, "subscription:"+id.String())
}

// LockDocument берет advisory-блокировку на документ до конца транзакции
func (s *Store) LockDocument(ctx context.Context, id uuid.UUID) error {
	return s.advisoryLock(ctx, "document:"+id.String())
}

func (s *Store) advisoryLock(ctx context.Context, key string) error {
	if _, ok := ctx.Value(txContextKey{}).(pgx.Tx); !ok {
		return fmt.Errorf("advisory lock requires an open transaction")
	}
	_, err := s.q(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	if err != nil {
		return fmt.Errorf("failed to take advisory lock: %w", err)
	}
	return nil
}

// mapError переводит ошибки pgx в ошибки хранилища
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repository.ErrDuplicate
	}
	return err
}
