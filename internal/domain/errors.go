package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate дубликат записи
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrInternal внутренняя ошибка
	ErrInternal = errors.New("internal error")

	// ErrInvalidConfiguration неверная конфигурация плана или процессора
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidTransition недопустимый переход состояния
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGateway ошибка связи с платежным шлюзом
	ErrGateway = errors.New("payment gateway communication error")

	// ErrInconsistentState несогласованное состояние документа
	ErrInconsistentState = errors.New("inconsistent document state")

	// ErrUnsupportedProcessor неподдерживаемый платежный процессор
	ErrUnsupportedProcessor = errors.New("unsupported payment processor")

	// ErrImmutableEntries записи выставленного документа неизменяемы
	ErrImmutableEntries = errors.New("entries of an issued document are immutable")

	// ErrPaymentMethodUnusable метод оплаты не подтвержден или отозван
	ErrPaymentMethodUnusable = errors.New("payment method is not usable")
)

// ConfigurationError представляет фатальную ошибку конфигурации. Проверяется
// до любых календарных вычислений.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error реализует интерфейс error
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s - %s", e.Field, e.Message)
}

// Is проверяет, является ли ошибка ошибкой конфигурации
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// NewConfigurationError создает новую ошибку конфигурации
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// StateTransitionError представляет отклоненный переход состояния.
// Вызывающая сторона обязана обработать его явно, а не игнорировать.
type StateTransitionError struct {
	Entity string
	From   string
	To     string
}

// Error реализует интерфейс error
func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("%s: transition %s -> %s is not allowed", e.Entity, e.From, e.To)
}

// Is проверяет, является ли ошибка ошибкой перехода состояния
func (e *StateTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NewStateTransitionError создает новую ошибку перехода состояния
func NewStateTransitionError(entity, from, to string) *StateTransitionError {
	return &StateTransitionError{Entity: entity, From: from, To: to}
}

// GatewayError представляет ошибку связи с процессором. Транзакция при такой
// ошибке остается в исходном состоянии: перевод в failed допустим только при
// явном отказе со стороны процессора.
type GatewayError struct {
	Processor   string
	Message     string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *GatewayError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("gateway error [%s]: %s: %v", e.Processor, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("gateway error [%s]: %s", e.Processor, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *GatewayError) Unwrap() error {
	return e.OriginalErr
}

// Is проверяет, является ли ошибка ошибкой шлюза
func (e *GatewayError) Is(target error) bool {
	return target == ErrGateway
}

// NewGatewayError создает новую ошибку шлюза
func NewGatewayError(processor, message string, err error) *GatewayError {
	return &GatewayError{Processor: processor, Message: message, OriginalErr: err}
}

// ConsistencyError представляет расхождение между итогом документа и его
// записями либо неожиданное покрытие транзакциями. Логируется, документ
// остается как есть для ручного разбора.
type ConsistencyError struct {
	DocumentID string
	Message    string
}

// Error реализует интерфейс error
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency error (document_id: %s): %s", e.DocumentID, e.Message)
}

// Is проверяет, является ли ошибка ошибкой согласованности
func (e *ConsistencyError) Is(target error) bool {
	return target == ErrInconsistentState
}

// NewConsistencyError создает новую ошибку согласованности
func NewConsistencyError(documentID, message string) *ConsistencyError {
	return &ConsistencyError{DocumentID: documentID, Message: message}
}

// NotFoundError представляет ошибку "не найдено"
type NotFoundError struct {
	Entity string
	ID     string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is проверяет, является ли ошибка ошибкой типа "не найдено"
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError создает новую ошибку "не найдено"
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}
