// Package repository определяет интерфейсы хранилищ для сущностей биллинга.
// Реализации: postgres (pgx) и memory (для тестов).
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

// Ошибки хранилища
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate нарушение уникальности
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidData неверные данные для сохранения
	ErrInvalidData = errors.New("invalid data")
)

// CustomerRepository определяет методы для работы с хранилищем клиентов
type CustomerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Customer, error)
	GetAll(ctx context.Context) ([]domain.Customer, error)
	Create(ctx context.Context, customer domain.Customer) error
	Update(ctx context.Context, customer domain.Customer) error
}

// ProviderRepository определяет методы для работы с хранилищем поставщиков
type ProviderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Provider, error)
	// GetByMetaKey возвращает поставщика, в Metadata которого установлен
	// заданный ключ. Используется корректором переплат для поиска своего
	// внутреннего поставщика.
	GetByMetaKey(ctx context.Context, key string) (domain.Provider, error)
	Create(ctx context.Context, provider domain.Provider) error
}

// PlanRepository определяет методы для работы с хранилищем планов.
// План загружается вместе с его фичами.
type PlanRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Plan, error)
	Create(ctx context.Context, plan domain.Plan) error
}

// SubscriptionRepository определяет методы для работы с хранилищем подписок
type SubscriptionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Subscription, error)
	ListByStates(ctx context.Context, states ...domain.SubscriptionState) ([]domain.Subscription, error)
	Create(ctx context.Context, subscription domain.Subscription) error
	Update(ctx context.Context, subscription domain.Subscription) error
}

// UsageRepository определяет методы для работы с логами потребления
type UsageRepository interface {
	Create(ctx context.Context, log domain.MeteredFeatureUnitsLog) error
	// ListIntersecting возвращает записи потребления фичи подписки, чей
	// диапазон дат пересекает [start, end]
	ListIntersecting(ctx context.Context, subscriptionID, featureID uuid.UUID,
		start, end time.Time) ([]domain.MeteredFeatureUnitsLog, error)
}

// BillingLogRepository определяет методы для работы со стражем
// идемпотентности биллинга. Ключ (subscription, cycle_start, cycle_end,
// flow) уникален; Create возвращает ErrDuplicate при повторе.
type BillingLogRepository interface {
	Create(ctx context.Context, log domain.BillingLog) error
	Exists(ctx context.Context, subscriptionID uuid.UUID, cycleStart, cycleEnd time.Time,
		flow domain.BillingFlow) (bool, error)
	LastForSubscription(ctx context.Context, subscriptionID uuid.UUID,
		flow domain.BillingFlow) (*domain.BillingLog, error)
}

// DocumentRepository определяет методы для работы с платежными документами
type DocumentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.BillingDocument, error)
	Create(ctx context.Context, document domain.BillingDocument) error
	Update(ctx context.Context, document domain.BillingDocument) error
	// OpenDraft возвращает черновик документа клиента у поставщика для
	// консолидированного биллинга, либо ErrNotFound
	OpenDraft(ctx context.Context, customerID, providerID uuid.UUID) (domain.BillingDocument, error)
	// ListOpenForProvider возвращает открытые (draft/issued) документы
	// клиента у поставщика
	ListOpenForProvider(ctx context.Context, customerID, providerID uuid.UUID) ([]domain.BillingDocument, error)
	// ListPaidForCustomer возвращает оплаченные документы клиента с датой
	// оплаты не позже date. Используется расчетом баланса.
	ListPaidForCustomer(ctx context.Context, customerID uuid.UUID, date time.Time) ([]domain.BillingDocument, error)
	// ListIssued возвращает выставленные документы
	ListIssued(ctx context.Context) ([]domain.BillingDocument, error)
}

// TransactionRepository определяет методы для работы с транзакциями
type TransactionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Transaction, error)
	Create(ctx context.Context, transaction domain.Transaction) error
	Update(ctx context.Context, transaction domain.Transaction) error
	// ListForDocument возвращает транзакции документа в порядке создания
	ListForDocument(ctx context.Context, documentID uuid.UUID) ([]domain.Transaction, error)
	ListByState(ctx context.Context, state domain.TransactionState) ([]domain.Transaction, error)
}

// PaymentMethodRepository определяет методы для работы с методами оплаты
type PaymentMethodRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.PaymentMethod, error)
	Create(ctx context.Context, method domain.PaymentMethod) error
	Update(ctx context.Context, method domain.PaymentMethod) error
}

// Store агрегирует репозитории и транзакционные примитивы
type Store interface {
	Customers() CustomerRepository
	Providers() ProviderRepository
	Plans() PlanRepository
	Subscriptions() SubscriptionRepository
	Usage() UsageRepository
	BillingLogs() BillingLogRepository
	Documents() DocumentRepository
	Transactions() TransactionRepository
	PaymentMethods() PaymentMethodRepository

	// Atomic выполняет fn внутри одной транзакции хранилища: BillingLog,
	// документ и его записи фиксируются вместе либо никак
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error

	// LockSubscription сериализует конкурентные проходы по одной подписке.
	// Вызывается внутри Atomic; блокировка держится до конца транзакции.
	LockSubscription(ctx context.Context, id uuid.UUID) error

	// LockDocument сериализует создание ретрай-транзакций по документу
	LockDocument(ctx context.Context, id uuid.UUID) error
}
