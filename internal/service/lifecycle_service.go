package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/calendar"
	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/kafka"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// LifecycleService интерфейс проверки жизненного цикла: отменяет подписки,
// чьи документы остаются неоплаченными после льготного периода клиента.
// Это механизм, останавливающий тарификацию неплатящего клиента.
type LifecycleService interface {
	Check(ctx context.Context, billingDate time.Time) (int, error)
}

type lifecycleService struct {
	store    repository.Store
	producer kafka.Producer
	metrics  metrics.BillingMetrics
	log      *logger.Logger
}

// NewLifecycleService создает новый сервис жизненного цикла
func NewLifecycleService(store repository.Store, producer kafka.Producer,
	billingMetrics metrics.BillingMetrics, log *logger.Logger) LifecycleService {
	return &lifecycleService{
		store:    store,
		producer: producer,
		metrics:  billingMetrics,
		log:      log,
	}
}

func (s *lifecycleService) Check(ctx context.Context, billingDate time.Time) (int, error) {
	billingDate = calendar.Date(billingDate)

	subs, err := s.store.Subscriptions().ListByStates(ctx,
		domain.SubscriptionStateActive, domain.SubscriptionStateCanceled)
	if err != nil {
		return 0, err
	}

	transitioned := 0
	for i := range subs {
		changed, err := s.checkSubscription(ctx, subs[i].ID, billingDate)
		if err != nil {
			s.log.Errorw("Lifecycle check failed for subscription", "error", err,
				"subscriptionID", subs[i].ID)
			continue
		}
		if changed {
			transitioned++
		}
	}

	s.log.Infow("Lifecycle check finished", "billingDate", billingDate,
		"subscriptionsScanned", len(subs), "transitioned", transitioned)
	return transitioned, nil
}

func (s *lifecycleService) checkSubscription(ctx context.Context, subscriptionID uuid.UUID,
	billingDate time.Time) (bool, error) {
	changed := false
	var event *kafka.TransitionEvent

	err := s.store.Atomic(ctx, func(ctx context.Context) error {
		if err := s.store.LockSubscription(ctx, subscriptionID); err != nil {
			return err
		}

		sub, err := s.store.Subscriptions().GetByID(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if sub.State != domain.SubscriptionStateActive && sub.State != domain.SubscriptionStateCanceled {
			return nil
		}

		lastLog, err := s.store.BillingLogs().LastForSubscription(ctx, sub.ID, domain.FlowInvoice)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		if lastLog.DocumentID == uuid.Nil {
			return nil
		}

		doc, err := s.store.Documents().GetByID(ctx, lastLog.DocumentID)
		if err != nil {
			return err
		}
		if doc.State != domain.DocumentStateIssued || doc.DueDate == nil {
			return nil
		}

		customer, err := s.store.Customers().GetByID(ctx, sub.CustomerID)
		if err != nil {
			return err
		}

		deadline := calendar.Date(*doc.DueDate).AddDate(0, 0, customer.PaymentDueDays)
		if !billingDate.After(deadline) {
			return nil
		}

		from := sub.State
		if sub.State == domain.SubscriptionStateActive {
			if err := sub.Cancel(billingDate); err != nil {
				return err
			}
			s.metrics.IncSubscriptionsCanceled()
		} else {
			if err := sub.End(billingDate); err != nil {
				return err
			}
		}
		if err := s.store.Subscriptions().Update(ctx, sub); err != nil {
			return err
		}

		changed = true
		event = &kafka.TransitionEvent{
			Entity:     "subscription",
			EntityID:   sub.ID.String(),
			FromState:  string(from),
			ToState:    string(sub.State),
			OccurredAt: billingDate,
		}
		s.log.Infow("Subscription transitioned by lifecycle check",
			"subscriptionID", sub.ID, "from", from, "to", sub.State,
			"documentID", doc.ID, "dueDate", doc.DueDate)
		return nil
	})
	if err != nil {
		return false, err
	}

	if event != nil {
		if err := s.producer.PublishTransition(ctx, kafka.TopicSubscriptionCanceled, *event); err != nil {
			s.log.Warnw("Failed to publish lifecycle event", "error", err,
				"subscriptionID", event.EntityID)
		}
	}
	return changed, nil
}
