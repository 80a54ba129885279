package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/kafka"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/processor"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// chargeMaxRetries число повторов обращения к шлюзу при сбоях связи.
// Повторяются только сбои связи: явный отказ процессора не повторяется.
const chargeMaxRetries = 3

// PaymentService интерфейс исполнителя платежей: проводит транзакции через
// процессор и отмечает документы оплаченными при достаточном покрытии
type PaymentService interface {
	// CreatePayment создает первичную транзакцию по выставленному
	// документу. Сумма может превышать итог документа только с флагом
	// overpayment; излишек становится балансом клиента.
	CreatePayment(ctx context.Context, documentID, paymentMethodID uuid.UUID,
		amount decimal.Decimal, overpayment bool) (domain.Transaction, error)

	// Execute проводит одну транзакцию из initial через процессор
	Execute(ctx context.Context, transactionID uuid.UUID) error

	// ExecuteInitial проводит все транзакции в состоянии initial
	ExecuteInitial(ctx context.Context) (int, error)

	// ReconcilePending сверяет зависшие pending транзакции со статусом
	// процессора
	ReconcilePending(ctx context.Context) (int, error)

	// ConfirmManual фиксирует подтвержденную оператором оплату по
	// транзакции ручного процессора
	ConfirmManual(ctx context.Context, transactionID uuid.UUID, externalReference string) error

	// Refund возвращает рассчитанную транзакцию через процессор
	Refund(ctx context.Context, transactionID uuid.UUID) error
}

type paymentService struct {
	store    repository.Store
	registry *processor.Registry
	producer kafka.Producer
	metrics  metrics.BillingMetrics
	log      *logger.Logger
}

// NewPaymentService создает новый сервис платежей
func NewPaymentService(
	store repository.Store,
	registry *processor.Registry,
	producer kafka.Producer,
	billingMetrics metrics.BillingMetrics,
	log *logger.Logger,
) PaymentService {
	return &paymentService{
		store:    store,
		registry: registry,
		producer: producer,
		metrics:  billingMetrics,
		log:      log,
	}
}

func (s *paymentService) CreatePayment(ctx context.Context, documentID, paymentMethodID uuid.UUID,
	amount decimal.Decimal, overpayment bool) (domain.Transaction, error) {
	var created domain.Transaction

	err := s.store.Atomic(ctx, func(ctx context.Context) error {
		if err := s.store.LockDocument(ctx, documentID); err != nil {
			return err
		}

		doc, err := s.store.Documents().GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.State != domain.DocumentStateIssued {
			return domain.NewStateTransitionError("document", string(doc.State),
				string(domain.DocumentStateIssued))
		}

		method, err := s.store.PaymentMethods().GetByID(ctx, paymentMethodID)
		if err != nil {
			return err
		}
		if !method.Usable() {
			return domain.ErrPaymentMethodUnusable
		}

		total := doc.TotalInTransactionCurrency()
		if !overpayment && amount.GreaterThan(total) {
			return domain.NewConsistencyError(doc.ID.String(),
				"payment amount "+amount.String()+" exceeds document total "+total.String())
		}

		txn := domain.NewTransaction(doc.ID, method.ID, amount, doc.Currency)
		txn.Overpayment = overpayment
		if err := s.store.Transactions().Create(ctx, *txn); err != nil {
			return err
		}
		created = *txn
		return nil
	})
	return created, err
}

func (s *paymentService) ExecuteInitial(ctx context.Context) (int, error) {
	txns, err := s.store.Transactions().ListByState(ctx, domain.TransactionStateInitial)
	if err != nil {
		return 0, err
	}

	executed := 0
	for i := range txns {
		if err := s.Execute(ctx, txns[i].ID); err != nil {
			s.log.Errorw("Failed to execute transaction", "error", err, "transactionID", txns[i].ID)
			continue
		}
		executed++
	}
	return executed, nil
}

// Execute проводит транзакцию в три фазы: перевод в pending под блокировкой
// документа, обращение к шлюзу вне транзакции хранилища, применение исхода.
// Задержка шлюза не блокирует оценку других подписок.
func (s *paymentService) Execute(ctx context.Context, transactionID uuid.UUID) error {
	txn, proc, err := s.markPending(ctx, transactionID)
	if err != nil {
		return err
	}

	outcome, err := s.chargeWithRetry(ctx, proc, txn)
	if err != nil {
		// Сбой связи: транзакция остается pending, сверка через
		// ReconcilePending или следующий проход
		s.log.Warnw("Gateway unreachable, transaction left pending",
			"error", err, "transactionID", txn.ID, "processor", proc.Name())
		return err
	}

	return s.applyOutcome(ctx, txn.ID, outcome)
}

// markPending переводит транзакцию initial -> pending и возвращает процессор
// ее метода оплаты
func (s *paymentService) markPending(ctx context.Context, transactionID uuid.UUID) (domain.Transaction, processor.Processor, error) {
	var txn domain.Transaction
	var proc processor.Processor

	err := s.store.Atomic(ctx, func(ctx context.Context) error {
		loaded, err := s.store.Transactions().GetByID(ctx, transactionID)
		if err != nil {
			return err
		}

		if err := s.store.LockDocument(ctx, loaded.DocumentID); err != nil {
			return err
		}

		method, err := s.store.PaymentMethods().GetByID(ctx, loaded.PaymentMethodID)
		if err != nil {
			return err
		}
		proc, err = s.registry.Get(method.Processor)
		if err != nil {
			return err
		}

		if err := loaded.Process(); err != nil {
			return err
		}
		if err := s.store.Transactions().Update(ctx, loaded); err != nil {
			return err
		}
		txn = loaded
		return nil
	})
	return txn, proc, err
}

// chargeWithRetry обращается к шлюзу с ограниченным экспоненциальным
// повтором сбоев связи. Явный отказ процессора не повторяется.
func (s *paymentService) chargeWithRetry(ctx context.Context, proc processor.Processor,
	txn domain.Transaction) (processor.Outcome, error) {
	var outcome processor.Outcome

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), chargeMaxRetries), ctx)

	err := backoff.Retry(func() error {
		out, err := proc.Charge(ctx, txn)
		if err != nil {
			if errors.Is(err, domain.ErrGateway) {
				return err
			}
			return backoff.Permanent(err)
		}
		outcome = out
		return nil
	}, policy)
	return outcome, err
}

// applyOutcome применяет ответ процессора к транзакции и, при достаточном
// покрытии, отмечает документ оплаченным
func (s *paymentService) applyOutcome(ctx context.Context, transactionID uuid.UUID,
	outcome processor.Outcome) error {
	var events []kafka.TransitionEvent

	err := s.store.Atomic(ctx, func(ctx context.Context) error {
		txn, err := s.store.Transactions().GetByID(ctx, transactionID)
		if err != nil {
			return err
		}
		if err := s.store.LockDocument(ctx, txn.DocumentID); err != nil {
			return err
		}

		now := time.Now().UTC()
		switch outcome.Status {
		case processor.OutcomeSettled:
			if err := txn.Settle(outcome.ExternalReference, now); err != nil {
				return err
			}
			if err := s.store.Transactions().Update(ctx, txn); err != nil {
				return err
			}
			s.metrics.IncTransactionsSettled(txn.Currency)
			events = append(events, kafka.TransitionEvent{
				Entity: "transaction", EntityID: txn.ID.String(),
				FromState: string(domain.TransactionStatePending),
				ToState:   string(domain.TransactionStateSettled),
				OccurredAt: now,
			})

			paid, err := s.payDocumentIfCovered(ctx, txn.DocumentID, now)
			if err != nil {
				return err
			}
			if paid {
				events = append(events, kafka.TransitionEvent{
					Entity: "document", EntityID: txn.DocumentID.String(),
					FromState: string(domain.DocumentStateIssued),
					ToState:   string(domain.DocumentStatePaid),
					OccurredAt: now,
				})
			}

		case processor.OutcomeFailed:
			if err := txn.Fail(outcome.FailCode, now); err != nil {
				return err
			}
			if err := s.store.Transactions().Update(ctx, txn); err != nil {
				return err
			}
			s.metrics.IncTransactionsFailed(txn.Currency, string(txn.FailCode))
			events = append(events, kafka.TransitionEvent{
				Entity: "transaction", EntityID: txn.ID.String(),
				FromState: string(domain.TransactionStatePending),
				ToState:   string(domain.TransactionStateFailed),
				OccurredAt: now,
			})

		case processor.OutcomePending:
			// Результат будет известен позже; транзакция остается pending
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publishEvents(ctx, events)
	return nil
}

// payDocumentIfCovered отмечает документ оплаченным, если сумма рассчитанных
// транзакций покрывает итог. Для отрицательных итогов условие симметрично.
func (s *paymentService) payDocumentIfCovered(ctx context.Context, documentID uuid.UUID,
	paidDate time.Time) (bool, error) {
	doc, err := s.store.Documents().GetByID(ctx, documentID)
	if err != nil {
		return false, err
	}
	if doc.State != domain.DocumentStateIssued {
		return false, nil
	}

	txns, err := s.store.Transactions().ListForDocument(ctx, documentID)
	if err != nil {
		return false, err
	}

	settled := decimal.Zero
	for i := range txns {
		settled = settled.Add(txns[i].SettledDelta())
	}
	if !doc.CoversTotal(settled) {
		return false, nil
	}

	if err := doc.Pay(paidDate, settled); err != nil {
		return false, err
	}
	if err := s.store.Documents().Update(ctx, doc); err != nil {
		return false, err
	}
	s.metrics.IncDocumentsPaid(doc.Currency)
	return true, nil
}

func (s *paymentService) ReconcilePending(ctx context.Context) (int, error) {
	txns, err := s.store.Transactions().ListByState(ctx, domain.TransactionStatePending)
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for i := range txns {
		method, err := s.store.PaymentMethods().GetByID(ctx, txns[i].PaymentMethodID)
		if err != nil {
			s.log.Errorw("Failed to load payment method for reconciliation",
				"error", err, "transactionID", txns[i].ID)
			continue
		}
		proc, err := s.registry.Get(method.Processor)
		if err != nil {
			s.log.Errorw("Unknown processor during reconciliation",
				"error", err, "transactionID", txns[i].ID)
			continue
		}

		outcome, err := proc.Status(ctx, txns[i])
		if err != nil {
			s.log.Warnw("Failed to query transaction status", "error", err,
				"transactionID", txns[i].ID)
			continue
		}
		if outcome.Status == processor.OutcomePending {
			continue
		}

		if err := s.applyOutcome(ctx, txns[i].ID, outcome); err != nil {
			s.log.Errorw("Failed to apply reconciled outcome", "error", err,
				"transactionID", txns[i].ID)
			continue
		}
		reconciled++
	}
	return reconciled, nil
}

func (s *paymentService) ConfirmManual(ctx context.Context, transactionID uuid.UUID,
	externalReference string) error {
	return s.applyOutcome(ctx, transactionID, processor.Outcome{
		Status:            processor.OutcomeSettled,
		ExternalReference: externalReference,
	})
}

func (s *paymentService) Refund(ctx context.Context, transactionID uuid.UUID) error {
	txn, err := s.store.Transactions().GetByID(ctx, transactionID)
	if err != nil {
		return err
	}

	// Переход проверяется до обращения к шлюзу: возврат по транзакции в
	// недопустимом состоянии не должен двигать деньги
	if !txn.CanRefund() {
		return domain.NewStateTransitionError("transaction",
			string(txn.State), string(domain.TransactionStateRefunded))
	}

	method, err := s.store.PaymentMethods().GetByID(ctx, txn.PaymentMethodID)
	if err != nil {
		return err
	}
	proc, err := s.registry.Get(method.Processor)
	if err != nil {
		return err
	}

	outcome, err := proc.Refund(ctx, txn)
	if err != nil {
		return err
	}
	if outcome.Status != processor.OutcomeSettled {
		return domain.NewGatewayError(proc.Name(), "refund was not accepted", nil)
	}

	return s.store.Atomic(ctx, func(ctx context.Context) error {
		if err := s.store.LockDocument(ctx, txn.DocumentID); err != nil {
			return err
		}
		loaded, err := s.store.Transactions().GetByID(ctx, transactionID)
		if err != nil {
			return err
		}
		if err := loaded.Refund(); err != nil {
			return err
		}
		return s.store.Transactions().Update(ctx, loaded)
	})
}

func (s *paymentService) publishEvents(ctx context.Context, events []kafka.TransitionEvent) {
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
