package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod представляет собой метод оплаты клиента
type PaymentMethod struct {
	ID         uuid.UUID `json:"id"`
	CustomerID uuid.UUID `json:"customer_id"`
	// Processor имя процессора из закрытого реестра
	Processor string `json:"processor"`
	Verified  bool   `json:"verified"`
	Canceled  bool   `json:"canceled"`
	// AttemptRetriesAfter дней после создания отказавшей попытки, раньше
	// которых ретрай не делается. Ноль вместе с StopRetryAttempts
	// запрещает ретраи: бесконечные повторы не допускаются.
	AttemptRetriesAfter int `json:"attempt_retries_after"`
	// StopRetryAttempts дней после создания отказавшей попытки, позже
	// которых ретраи прекращаются
	StopRetryAttempts int               `json:"stop_retry_attempts"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Usable сообщает, можно ли создавать транзакции по методу
func (m *PaymentMethod) Usable() bool {
	return m.Verified && !m.Canceled
}

// HasRetryPolicy сообщает, настроено ли окно ретраев
func (m *PaymentMethod) HasRetryPolicy() bool {
	return m.AttemptRetriesAfter > 0 || m.StopRetryAttempts > 0
}

// RetryWindow возвращает границы окна ретраев для отказавшей попытки,
// созданной в createdAt: [createdAt + attempt_retries_after, createdAt +
// stop_retry_attempts]
func (m *PaymentMethod) RetryWindow(createdAt time.Time) (time.Time, time.Time) {
	return createdAt.AddDate(0, 0, m.AttemptRetriesAfter),
		createdAt.AddDate(0, 0, m.StopRetryAttempts)
}

// CanRetryAt сообщает, попадает ли дата биллинга в окно ретраев
func (m *PaymentMethod) CanRetryAt(createdAt, billingDate time.Time) bool {
	if !m.HasRetryPolicy() {
		return false
	}
	notBefore, notAfter := m.RetryWindow(createdAt)
	return !billingDate.Before(notBefore) && !billingDate.After(notAfter)
}
