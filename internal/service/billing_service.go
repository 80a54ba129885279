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

// maxCyclesPerRun ограничивает число циклов, дотарифицируемых одной
// подпиской за один проход. Отставший биллинг догоняется за несколько
// проходов вместо одного неограниченного.
const maxCyclesPerRun = 120

// BillingRunOptions параметры прохода биллинга
type BillingRunOptions struct {
	// SubscriptionID ограничивает проход одной подпиской
	SubscriptionID *uuid.UUID
	// Force тарифицирует цикл по референсной дате, минуя естественную
	// границу cycle_end + generate_after
	Force bool
}

// BillingRunResult итог прохода биллинга
type BillingRunResult struct {
	Evaluated        int
	CyclesBilled     int
	DocumentsIssued  int
	SubscriptionsErr int
}

// BillingService интерфейс генератора биллинга: решает, что должно быть
// тарифицировано на референсную дату, и собирает документы
type BillingService interface {
	RunBilling(ctx context.Context, referenceDate time.Time, opts BillingRunOptions) (BillingRunResult, error)
}

type billingService struct {
	store    repository.Store
	planRepo repository.PlanRepository
	usage    UsageService
	producer kafka.Producer
	metrics  metrics.BillingMetrics
	log      *logger.Logger
}

// NewBillingService создает новый сервис биллинга
func NewBillingService(
	store repository.Store,
	planRepo repository.PlanRepository,
	usage UsageService,
	producer kafka.Producer,
	billingMetrics metrics.BillingMetrics,
	log *logger.Logger,
) BillingService {
	return &billingService{
		store:    store,
		planRepo: planRepo,
		usage:    usage,
		producer: producer,
		metrics:  billingMetrics,
		log:      log,
	}
}

// subscriptionOutcome результат оценки одной подписки внутри транзакции
type subscriptionOutcome struct {
	cyclesBilled int
	// touchedDrafts документы, собранные или расширенные этой подпиской.
	// Выставляются после завершения оценки, вне транзакции подписки.
	touchedDrafts []uuid.UUID
	// paymentMethod метод оплаты для первичных транзакций по документам
	paymentMethod *uuid.UUID
	events        []kafka.TransitionEvent
}

func (s *billingService) RunBilling(ctx context.Context, referenceDate time.Time, opts BillingRunOptions) (BillingRunResult, error) {
	referenceDate = calendar.Date(referenceDate)
	var result BillingRunResult

	subs, err := s.subscriptionsToEvaluate(ctx, opts)
	if err != nil {
		return result, err
	}

	// Документы, собранные за проход, и метод оплаты для каждого.
	// Подписки оцениваются независимо: ошибка одной не блокирует остальные.
	touched := make(map[uuid.UUID]*uuid.UUID)
	for i := range subs {
		result.Evaluated++

		outcome, err := s.evaluateSubscription(ctx, subs[i].ID, referenceDate, opts.Force)
		if err != nil {
			result.SubscriptionsErr++
			s.log.Errorw("Subscription billing evaluation failed", "error", err,
				"subscriptionID", subs[i].ID, "referenceDate", referenceDate)
			continue
		}

		result.CyclesBilled += outcome.cyclesBilled
		for _, docID := range outcome.touchedDrafts {
			if _, seen := touched[docID]; !seen {
				touched[docID] = outcome.paymentMethod
			}
		}
		s.publishEvents(ctx, outcome.events)
	}

	// Фаза выставления: черновики, собранные проходом, выставляются после
	// того, как все причитающиеся подписки клиента попали в них
	for docID, paymentMethodID := range touched {
		if err := s.issueDocument(ctx, docID, paymentMethodID, referenceDate); err != nil {
			s.log.Errorw("Failed to issue assembled document", "error", err, "documentID", docID)
			continue
		}
		result.DocumentsIssued++
	}

	s.log.Infow("Billing run finished", "referenceDate", referenceDate,
		"evaluated", result.Evaluated, "cyclesBilled", result.CyclesBilled,
		"documentsIssued", result.DocumentsIssued, "errors", result.SubscriptionsErr)
	return result, nil
}

func (s *billingService) subscriptionsToEvaluate(ctx context.Context, opts BillingRunOptions) ([]domain.Subscription, error) {
	if opts.SubscriptionID != nil {
		sub, err := s.store.Subscriptions().GetByID(ctx, *opts.SubscriptionID)
		if err != nil {
			return nil, err
		}
		return []domain.Subscription{sub}, nil
	}
	return s.store.Subscriptions().ListByStates(ctx,
		domain.SubscriptionStateTrial,
		domain.SubscriptionStateActive,
		domain.SubscriptionStateCanceled,
	)
}

// evaluateSubscription оценивает одну подписку внутри одной транзакции
// хранилища под advisory-блокировкой: BillingLog, документ и его записи
// фиксируются вместе либо никак
func (s *billingService) evaluateSubscription(ctx context.Context, subscriptionID uuid.UUID,
	referenceDate time.Time, force bool) (subscriptionOutcome, error) {
	var outcome subscriptionOutcome

	err := s.store.Atomic(ctx, func(ctx context.Context) error {
		if err := s.store.LockSubscription(ctx, subscriptionID); err != nil {
			return err
		}

		sub, err := s.store.Subscriptions().GetByID(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if sub.State == domain.SubscriptionStateEnded {
			return nil
		}

		plan, err := s.planRepo.GetByID(ctx, sub.PlanID)
		if err != nil {
			return err
		}
		if err := plan.Validate(); err != nil {
			return err
		}

		customer, err := s.store.Customers().GetByID(ctx, sub.CustomerID)
		if err != nil {
			return err
		}

		// Пробный период закончился - подписка активируется
		trialEnd := sub.TrialEnd(plan.TrialPeriodDays)
		if sub.State == domain.SubscriptionStateTrial && trialEnd != nil && !referenceDate.Before(*trialEnd) {
			if err := sub.Activate(); err != nil {
				return err
			}
		}

		out, err := s.billCycles(ctx, &sub, plan, customer, referenceDate, force)
		if err != nil {
			return err
		}
		outcome = out
		outcome.paymentMethod = sub.PaymentMethodID

		return s.store.Subscriptions().Update(ctx, sub)
	})
	return outcome, err
}

// billCycles тарифицирует все завершившиеся и причитающиеся циклы подписки
// начиная с первого нетарифицированного
func (s *billingService) billCycles(ctx context.Context, sub *domain.Subscription,
	plan domain.Plan, customer domain.Customer, referenceDate time.Time,
	force bool) (subscriptionOutcome, error) {
	var outcome subscriptionOutcome

	cycleStart := calendar.Date(sub.StartDate)
	if sub.BilledUpTo != nil {
		cycleStart = calendar.Date(*sub.BilledUpTo).AddDate(0, 0, 1)
	}

	for n := 0; n < maxCyclesPerRun; n++ {
		if cycleStart.After(referenceDate) {
			break
		}

		// Ручная коррекция границы применяется к первому
		// нетарифицированному циклу и отрабатывает один раз
		var override *time.Time
		if sub.CycleEndOverride != nil && !calendar.Date(*sub.CycleEndOverride).Before(cycleStart) {
			override = sub.CycleEndOverride
		}

		cycleEnd, err := calendar.CycleEnd(plan.Interval, plan.IntervalCount, sub.StartDate, cycleStart, override)
		if err != nil {
			return outcome, err
		}

		// Причитаемость: референсная дата достигла cycle_end +
		// generate_after. Авансовый план причитается уже с начала цикла.
		// Force тарифицирует по референсной дате.
		dueFrom := cycleEnd.AddDate(0, 0, plan.GenerateAfter)
		if plan.PrebillPlan {
			dueFrom = cycleStart.AddDate(0, 0, plan.GenerateAfter)
		}
		if !force && referenceDate.Before(dueFrom) {
			break
		}
		if force && !plan.PrebillPlan && cycleEnd.After(referenceDate) {
			cycleEnd = referenceDate
		}

		billed, err := s.billOneCycle(ctx, sub, plan, customer, cycleStart, cycleEnd, referenceDate, &outcome)
		if err != nil {
			return outcome, err
		}
		if billed {
			outcome.cyclesBilled++
		}

		billedUpTo := cycleEnd
		sub.BilledUpTo = &billedUpTo
		if override != nil {
			sub.CycleEndOverride = nil
		}

		// Отмененная подписка завершается после тарификации последнего
		// цикла
		if sub.State == domain.SubscriptionStateCanceled && sub.CanceledAt != nil &&
			!cycleEnd.Before(calendar.Date(*sub.CanceledAt)) {
			if err := sub.End(referenceDate); err != nil {
				return outcome, err
			}
			outcome.events = append(outcome.events, kafka.TransitionEvent{
				Entity:     "subscription",
				EntityID:   sub.ID.String(),
				FromState:  string(domain.SubscriptionStateCanceled),
				ToState:    string(domain.SubscriptionStateEnded),
				OccurredAt: referenceDate,
			})
			break
		}

		cycleStart = cycleEnd.AddDate(0, 0, 1)
	}
	return outcome, nil
}

// billOneCycle собирает документ для одного цикла. Возвращает false, если
// цикл уже залогирован или пропущен.
func (s *billingService) billOneCycle(ctx context.Context, sub *domain.Subscription,
	plan domain.Plan, customer domain.Customer, cycleStart, cycleEnd, referenceDate time.Time,
	outcome *subscriptionOutcome) (bool, error) {
	exists, err := s.store.BillingLogs().Exists(ctx, sub.ID, cycleStart, cycleEnd, domain.FlowInvoice)
	if err != nil {
		return false, err
	}
	if exists {
		// Повторный прогон по залогированному циклу - no-op
		return false, nil
	}

	// Верхняя граница на то, как долго после начала цикла для него еще
	// может быть выставлен документ
	if plan.CycleBillingDuration > 0 && referenceDate.After(cycleStart.Add(plan.CycleBillingDuration)) {
		s.log.Warnw("Cycle billing window elapsed, cycle skipped",
			"subscriptionID", sub.ID, "cycleStart", cycleStart, "cycleEnd", cycleEnd)
		return false, s.recordBillingLog(ctx, sub.ID, uuid.Nil, cycleStart, cycleEnd, referenceDate)
	}

	doc, isNew, err := s.openDocument(ctx, sub, plan, customer)
	if err != nil {
		return false, err
	}

	if err := s.addCycleEntries(ctx, &doc, sub, plan, cycleStart, cycleEnd); err != nil {
		return false, err
	}

	if isNew {
		err = s.store.Documents().Create(ctx, doc)
	} else {
		err = s.store.Documents().Update(ctx, doc)
	}
	if err != nil {
		return false, err
	}

	if err := s.recordBillingLog(ctx, sub.ID, doc.ID, cycleStart, cycleEnd, referenceDate); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Конкурентный проход успел первым; его документ уже покрывает цикл
			return false, nil
		}
		return false, err
	}

	outcome.touchedDrafts = append(outcome.touchedDrafts, doc.ID)
	return true, nil
}

// openDocument возвращает документ, в который тарифицируется цикл:
// консолидированный биллинг продолжает открытый черновик клиента у
// поставщика, иначе создается новый документ
func (s *billingService) openDocument(ctx context.Context, sub *domain.Subscription,
	plan domain.Plan, customer domain.Customer) (domain.BillingDocument, bool, error) {
	currency := customer.Currency
	if currency == "" {
		currency = plan.Currency
	}

	if customer.ConsolidatedBilling {
		doc, err := s.store.Documents().OpenDraft(ctx, customer.ID, plan.ProviderID)
		if err == nil {
			return doc, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.BillingDocument{}, false, err
		}
	}

	return *domain.NewDocument(customer.ID, plan.ProviderID, currency), true, nil
}

// addCycleEntries добавляет в документ базовую запись плана, прорированную
// по покрытию цикла, и по записи потребления на каждую фичу
func (s *billingService) addCycleEntries(ctx context.Context, doc *domain.BillingDocument,
	sub *domain.Subscription, plan domain.Plan, cycleStart, cycleEnd time.Time) error {
	trialEnd := sub.TrialEnd(plan.TrialPeriodDays)

	// Базовая запись плана. Цикл целиком внутри пробного периода базовую
	// сумму не несет; цикл, пересекающий конец пробного периода,
	// тарифицируется за активный остаток от конца пробного периода.
	baseStart := cycleStart
	billBase := !plan.Amount.IsZero()
	if trialEnd != nil && cycleStart.Before(*trialEnd) {
		if cycleEnd.Before(*trialEnd) {
			billBase = false
		} else {
			baseStart = calendar.Date(*trialEnd)
		}
	}
	if billBase {
		percent, err := calendar.ProrationPercent(plan.Interval, plan.IntervalCount, baseStart, cycleEnd)
		if err != nil {
			return err
		}
		if err := doc.AddEntry(domain.DocumentEntry{
			Description: plan.Name,
			Quantity:    percent,
			UnitPrice:   plan.Amount,
			ProductCode: plan.ProductCode,
			StartDate:   &baseStart,
			EndDate:     &cycleEnd,
		}); err != nil {
			return err
		}
	}

	// Потребление авансового плана тарифицируется за только что
	// завершившийся цикл; у первого цикла предыдущего нет
	usageStart, usageEnd := cycleStart, cycleEnd
	if plan.PrebillPlan {
		if calendar.Date(sub.StartDate).Equal(cycleStart) {
			return nil
		}
		usageEnd = cycleStart.AddDate(0, 0, -1)
		var err error
		usageStart, err = calendar.CycleStart(plan.Interval, plan.IntervalCount, sub.StartDate, usageEnd)
		if err != nil {
			return err
		}
	}
	onTrial := trialEnd != nil && usageStart.Before(*trialEnd)

	for i := range plan.MeteredFeatures {
		feature := plan.MeteredFeatures[i]
		charge, err := s.usage.Charge(ctx, *sub, plan, feature, usageStart, usageEnd, onTrial)
		if err != nil {
			return err
		}

		if feature.PrebillIncludedUnits {
			// Включенные единицы тарифицируются авансом независимо от
			// фактического потребления; перерасход - отдельной записью
			if charge.IncludedUnits.IsPositive() {
				if err := doc.AddEntry(domain.DocumentEntry{
					Description: feature.Name + " (prebilled)",
					Quantity:    charge.IncludedUnits,
					UnitPrice:   feature.PricePerUnit,
					ProductCode: feature.ProductCode,
					StartDate:   &usageStart,
					EndDate:     &usageEnd,
				}); err != nil {
					return err
				}
			}
			if charge.BillableUnits.IsPositive() {
				if err := doc.AddEntry(domain.DocumentEntry{
					Description: feature.Name + " (overage)",
					Quantity:    charge.BillableUnits,
					UnitPrice:   feature.PricePerUnit,
					ProductCode: feature.ProductCode,
					StartDate:   &usageStart,
					EndDate:     &usageEnd,
				}); err != nil {
					return err
				}
			}
			continue
		}

		if charge.BillableUnits.IsPositive() {
			if err := doc.AddEntry(domain.DocumentEntry{
				Description: feature.Name,
				Quantity:    charge.BillableUnits,
				UnitPrice:   feature.PricePerUnit,
				ProductCode: feature.ProductCode,
				StartDate:   &usageStart,
				EndDate:     &usageEnd,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *billingService) recordBillingLog(ctx context.Context, subscriptionID, documentID uuid.UUID,
	cycleStart, cycleEnd, billingDate time.Time) error {
	return s.store.BillingLogs().Create(ctx, domain.BillingLog{
		ID:             uuid.New(),
		SubscriptionID: subscriptionID,
		DocumentID:     documentID,
		CycleStart:     cycleStart,
		CycleEnd:       cycleEnd,
		Flow:           domain.FlowInvoice,
		BillingDate:    billingDate,
		CreatedAt:      time.Now().UTC(),
	})
}

// issueDocument выставляет собранный черновик и создает по нему первичную
// транзакцию, если у подписки есть пригодный метод оплаты
func (s *billingService) issueDocument(ctx context.Context, documentID uuid.UUID,
	paymentMethodID *uuid.UUID, referenceDate time.Time) error {
	var issued domain.BillingDocument

	err := s.store.Atomic(ctx, func(ctx context.Context) error {
		if err := s.store.LockDocument(ctx, documentID); err != nil {
			return err
		}

		doc, err := s.store.Documents().GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.State != domain.DocumentStateDraft {
			return nil
		}

		customer, err := s.store.Customers().GetByID(ctx, doc.CustomerID)
		if err != nil {
			return err
		}

		if err := doc.Issue(referenceDate, customer.PaymentDueDays); err != nil {
			return err
		}
		if err := s.store.Documents().Update(ctx, doc); err != nil {
			return err
		}

		if paymentMethodID != nil {
			if err := s.createInitialTransaction(ctx, doc, *paymentMethodID); err != nil {
				return err
			}
		}

		issued = doc
		return nil
	})
	if err != nil || issued.ID == uuid.Nil {
		return err
	}

	total, _ := issued.TotalInTransactionCurrency().Float64()
	s.metrics.IncDocumentsIssued(issued.Currency)
	s.metrics.ObserveDocumentTotal(total, issued.Currency)
	s.publishEvents(ctx, []kafka.TransitionEvent{{
		Entity:     "document",
		EntityID:   issued.ID.String(),
		FromState:  string(domain.DocumentStateDraft),
		ToState:    string(domain.DocumentStateIssued),
		OccurredAt: referenceDate,
	}})
	return nil
}

func (s *billingService) createInitialTransaction(ctx context.Context, doc domain.BillingDocument,
	paymentMethodID uuid.UUID) error {
	method, err := s.store.PaymentMethods().GetByID(ctx, paymentMethodID)
	if err != nil {
		return err
	}
	if !method.Usable() {
		s.log.Warnw("Payment method is not usable, document awaits manual payment",
			"documentID", doc.ID, "paymentMethodID", paymentMethodID)
		return nil
	}

	total := doc.TotalInTransactionCurrency()
	if !total.IsPositive() {
		return nil
	}

	txn := domain.NewTransaction(doc.ID, method.ID, total, doc.Currency)
	return s.store.Transactions().Create(ctx, *txn)
}

func (s *billingService) publishEvents(ctx context.Context, events []kafka.TransitionEvent) {
	for _, event := range events {
		topic := topicForEvent(event)
		if topic == "" {
			continue
		}
		if err := s.producer.PublishTransition(ctx, topic, event); err != nil {
			s.log.Warnw("Failed to publish transition event", "error", err,
				"entity", event.Entity, "entityID", event.EntityID)
		}
	}
}

func topicForEvent(event kafka.TransitionEvent) string {
	switch {
	case event.Entity == "document" && event.ToState == string(domain.DocumentStateIssued):
		return kafka.TopicDocumentIssued
	case event.Entity == "document" && event.ToState == string(domain.DocumentStatePaid):
		return kafka.TopicDocumentPaid
	case event.Entity == "transaction" && event.ToState == string(domain.TransactionStateSettled):
		return kafka.TopicTransactionSettled
	case event.Entity == "transaction" && event.ToState == string(domain.TransactionStateFailed):
		return kafka.TopicTransactionFailed
	case event.Entity == "subscription":
		return kafka.TopicSubscriptionCanceled
	}
	return ""
}
