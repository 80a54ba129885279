// Package processor определяет единый интерфейс платежных процессоров и
// закрытый реестр их реализаций. Выбор процессора происходит на этапе
// конфигурации, без строкового разрешения классов во время исполнения.
package processor

import (
	"context"
	"sort"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

// OutcomeStatus статус ответа процессора
type OutcomeStatus string

const (
	// OutcomeSettled платеж прошел
	OutcomeSettled OutcomeStatus = "settled"
	// OutcomeFailed процессор явно отклонил платеж
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomePending платеж принят, но результат будет известен позже.
	// Транзакция остается в pending.
	OutcomePending OutcomeStatus = "pending"
)

// Outcome ответ процессора на операцию. Статус отображается в переход
// машины состояний транзакции; FailCode заполняется только для failed.
type Outcome struct {
	Status            OutcomeStatus
	FailCode          domain.FailCode
	ExternalReference string
}

// Processor единый интерфейс платежного процессора. Ошибка возвращается
// только при сбое связи (GatewayError): явный отказ процессора - это
// Outcome со статусом failed, а не ошибка.
type Processor interface {
	Name() string
	Charge(ctx context.Context, txn domain.Transaction) (Outcome, error)
	Void(ctx context.Context, txn domain.Transaction) (Outcome, error)
	Refund(ctx context.Context, txn domain.Transaction) (Outcome, error)
	Status(ctx context.Context, txn domain.Transaction) (Outcome, error)
}

// Registry закрытый набор процессоров, собранный при старте приложения
type Registry struct {
	processors map[string]Processor
}

// NewRegistry создает реестр из переданных процессоров
func NewRegistry(processors ...Processor) *Registry {
	r := &Registry{processors: make(map[string]Processor, len(processors))}
	for _, p := range processors {
		r.processors[p.Name()] = p
	}
	return r
}

// Get возвращает процессор по имени либо ErrUnsupportedProcessor
func (r *Registry) Get(name string) (Processor, error) {
	p, ok := r.processors[name]
	if !ok {
		return nil, domain.ErrUnsupportedProcessor
	}
	return p, nil
}

// Names возвращает отсортированные имена зарегистрированных процессоров
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
