package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPaymentMethodUsable(t *testing.T) {
	m := PaymentMethod{Verified: true}
	assert.True(t, m.Usable())

	m.Canceled = true
	assert.False(t, m.Usable())

	m = PaymentMethod{Verified: false}
	assert.False(t, m.Usable())
}

func TestCanRetryAtWindow(t *testing.T) {
	createdAt := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	m := PaymentMethod{AttemptRetriesAfter: 2, StopRetryAttempts: 7}

	assert.False(t, m.CanRetryAt(createdAt, createdAt.AddDate(0, 0, 1)))
	assert.True(t, m.CanRetryAt(createdAt, createdAt.AddDate(0, 0, 2)))
	assert.True(t, m.CanRetryAt(createdAt, createdAt.AddDate(0, 0, 7)))
	assert.False(t, m.CanRetryAt(createdAt, createdAt.AddDate(0, 0, 8)))
}

func TestCanRetryAtWithoutPolicy(t *testing.T) {
	// Обе границы нулевые: ретраи запрещены, бесконечные повторы не
	// допускаются
	createdAt := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	m := PaymentMethod{}

	assert.False(t, m.CanRetryAt(createdAt, createdAt))
	assert.False(t, m.CanRetryAt(createdAt, createdAt.AddDate(0, 0, 3)))
}
