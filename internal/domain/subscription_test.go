package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSubscriptionInitialState(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	sub := NewSubscription(uuid.New(), uuid.New(), start, 0)
	assert.Equal(t, SubscriptionStateActive, sub.State)

	sub = NewSubscription(uuid.New(), uuid.New(), start, 14)
	assert.Equal(t, SubscriptionStateTrial, sub.State)
}

func TestSubscriptionTransitions(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	sub := NewSubscription(uuid.New(), uuid.New(), start, 14)

	require.NoError(t, sub.Activate())
	assert.Equal(t, SubscriptionStateActive, sub.State)

	// active нельзя завершить, минуя canceled
	assert.ErrorIs(t, sub.End(start), ErrInvalidTransition)

	canceledAt := start.AddDate(0, 1, 0)
	require.NoError(t, sub.Cancel(canceledAt))
	assert.Equal(t, SubscriptionStateCanceled, sub.State)
	require.NotNil(t, sub.CanceledAt)

	require.NoError(t, sub.End(canceledAt.AddDate(0, 1, 0)))
	assert.Equal(t, SubscriptionStateEnded, sub.State)
	require.NotNil(t, sub.EndedAt)

	// ended терминально
	assert.ErrorIs(t, sub.Activate(), ErrInvalidTransition)
	assert.ErrorIs(t, sub.Cancel(start), ErrInvalidTransition)
}

func TestSubscriptionTrialCanBeCanceled(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	sub := NewSubscription(uuid.New(), uuid.New(), start, 14)

	require.NoError(t, sub.Cancel(start.AddDate(0, 0, 3)))
	assert.Equal(t, SubscriptionStateCanceled, sub.State)
}

func TestTrialEnd(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	sub := NewSubscription(uuid.New(), uuid.New(), start, 14)

	end := sub.TrialEnd(14)
	require.NotNil(t, end)
	assert.Equal(t, start.AddDate(0, 0, 14), *end)

	assert.Nil(t, sub.TrialEnd(0))
}

func TestOnTrial(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	sub := NewSubscription(uuid.New(), uuid.New(), start, 14)

	assert.True(t, sub.OnTrial(14, start.AddDate(0, 0, 13)))
	assert.False(t, sub.OnTrial(14, start.AddDate(0, 0, 14)))

	require.NoError(t, sub.Activate())
	assert.False(t, sub.OnTrial(14, start.AddDate(0, 0, 5)))
}
