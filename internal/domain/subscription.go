package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionState состояние подписки
type SubscriptionState string

const (
	SubscriptionStateTrial    SubscriptionState = "trial"
	SubscriptionStateActive   SubscriptionState = "active"
	SubscriptionStateCanceled SubscriptionState = "canceled"
	SubscriptionStateEnded    SubscriptionState = "ended"
)

// BillingFlow поток документов, к которому относится запись биллинга.
// Ретраи и жизненный цикл работают только с потоком invoice.
type BillingFlow string

const (
	FlowInvoice  BillingFlow = "invoice"
	FlowProforma BillingFlow = "proforma"
)

// subscriptionTransitions таблица допустимых переходов состояния подписки
var subscriptionTransitions = map[SubscriptionState][]SubscriptionState{
	SubscriptionStateTrial:    {SubscriptionStateActive, SubscriptionStateCanceled},
	SubscriptionStateActive:   {SubscriptionStateCanceled},
	SubscriptionStateCanceled: {SubscriptionStateEnded},
	SubscriptionStateEnded:    {},
}

// Subscription представляет собой модель подписки
type Subscription struct {
	ID         uuid.UUID         `json:"id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	PlanID     uuid.UUID         `json:"plan_id"`
	State      SubscriptionState `json:"state"`
	StartDate  time.Time         `json:"start_date"`
	// CycleEndOverride ручная коррекция границы текущего цикла. Более
	// ранняя дата усекает период, более поздняя растягивает; следующий
	// цикл начинается на следующий день после нее.
	CycleEndOverride *time.Time `json:"cycle_end_override,omitempty"`
	// LinkedSubscriptionID подписка, чьи логи потребления питают расчеты
	// связанных фич этой подписки
	LinkedSubscriptionID *uuid.UUID `json:"linked_subscription_id,omitempty"`
	PaymentMethodID      *uuid.UUID `json:"payment_method_id,omitempty"`
	// BilledUpTo последняя дата, до которой подписка тарифицирована в
	// потоке invoice
	BilledUpTo *time.Time        `json:"billed_up_to,omitempty"`
	CanceledAt *time.Time        `json:"canceled_at,omitempty"`
	EndedAt    *time.Time        `json:"ended_at,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewSubscription создает подписку в начальном состоянии
func NewSubscription(customerID, planID uuid.UUID, startDate time.Time, trialDays int) *Subscription {
	now := time.Now().UTC()
	state := SubscriptionStateActive
	if trialDays > 0 {
		state = SubscriptionStateTrial
	}
	return &Subscription{
		ID:         uuid.New(),
		CustomerID: customerID,
		PlanID:     planID,
		State:      state,
		StartDate:  startDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// canTransition проверяет переход по таблице
func (s *Subscription) canTransition(to SubscriptionState) bool {
	for _, allowed := range subscriptionTransitions[s.State] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transition выполняет переход либо возвращает StateTransitionError
func (s *Subscription) transition(to SubscriptionState) error {
	if !s.canTransition(to) {
		return NewStateTransitionError("subscription", string(s.State), string(to))
	}
	s.State = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Activate переводит подписку из trial в active
func (s *Subscription) Activate() error {
	return s.transition(SubscriptionStateActive)
}

// Cancel отменяет подписку. Последний цикл еще будет тарифицирован.
func (s *Subscription) Cancel(at time.Time) error {
	if err := s.transition(SubscriptionStateCanceled); err != nil {
		return err
	}
	s.CanceledAt = &at
	return nil
}

// End завершает отмененную подписку после тарификации последнего цикла
func (s *Subscription) End(at time.Time) error {
	if err := s.transition(SubscriptionStateEnded); err != nil {
		return err
	}
	s.EndedAt = &at
	return nil
}

// TrialEnd возвращает первый день после пробного периода, либо nil если
// пробного периода нет
func (s *Subscription) TrialEnd(trialDays int) *time.Time {
	if trialDays <= 0 {
		return nil
	}
	end := s.StartDate.AddDate(0, 0, trialDays)
	return &end
}

// OnTrial сообщает, находится ли подписка на пробном периоде на дату
func (s *Subscription) OnTrial(trialDays int, at time.Time) bool {
	if s.State != SubscriptionStateTrial {
		return false
	}
	end := s.TrialEnd(trialDays)
	return end != nil && at.Before(*end)
}

// BillingLog связывает цикл подписки с покрывающим его документом. Его
// существование - страж идемпотентности: повторный прогон биллинга по уже
// залогированному циклу не создает дубликат.
type BillingLog struct {
	ID             uuid.UUID   `json:"id"`
	SubscriptionID uuid.UUID   `json:"subscription_id"`
	DocumentID     uuid.UUID   `json:"document_id"`
	CycleStart     time.Time   `json:"cycle_start"`
	CycleEnd       time.Time   `json:"cycle_end"`
	Flow           BillingFlow `json:"flow"`
	BillingDate    time.Time   `json:"billing_date"`
	CreatedAt      time.Time   `json:"created_at"`
}
