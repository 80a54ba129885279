package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MeteredFeatureUnitsLog неизменяемая запись потребления. После создания не
// мутируется; исправления вносятся только новыми корректирующими записями.
type MeteredFeatureUnitsLog struct {
	ID             uuid.UUID       `json:"id"`
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	FeatureID      uuid.UUID       `json:"feature_id"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	ConsumedUnits  decimal.Decimal `json:"consumed_units"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewUnitsLog создает запись потребления для фичи подписки
func NewUnitsLog(subscriptionID, featureID uuid.UUID, start, end time.Time, consumed decimal.Decimal) *MeteredFeatureUnitsLog {
	return &MeteredFeatureUnitsLog{
		ID:             uuid.New(),
		SubscriptionID: subscriptionID,
		FeatureID:      featureID,
		StartDate:      start,
		EndDate:        end,
		ConsumedUnits:  consumed,
		CreatedAt:      time.Now().UTC(),
	}
}

// Intersects сообщает, пересекается ли диапазон записи с циклом [start, end]
func (l *MeteredFeatureUnitsLog) Intersects(start, end time.Time) bool {
	return !l.EndDate.Before(start) && !l.StartDate.After(end)
}
