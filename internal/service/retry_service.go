package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/calendar"
	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// RetryService интерфейс повторителя платежей: сканирует неоплаченные
// документы с отказавшей последней транзакцией и создает новую попытку в
// пределах окна ретраев метода оплаты
type RetryService interface {
	// Check создает не более одной новой попытки на документ. Повторный
	// вызов с той же датой - no-op: свежесозданная попытка в initial
	// означает "ретрай не нужен".
	Check(ctx context.Context, billingDate time.Time, force bool) (int, error)
}

type retryService struct {
	store   repository.Store
	metrics metrics.BillingMetrics
	log     *logger.Logger
}

// NewRetryService создает новый сервис ретраев
func NewRetryService(store repository.Store, billingMetrics metrics.BillingMetrics,
	log *logger.Logger) RetryService {
	return &retryService{
		store:   store,
		metrics: billingMetrics,
		log:     log,
	}
}

func (s *retryService) Check(ctx context.Context, billingDate time.Time, force bool) (int, error) {
	billingDate = calendar.Date(billingDate)

	docs, err := s.store.Documents().ListIssued(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range docs {
		retried, err := s.checkDocument(ctx, docs[i].ID, billingDate, force)
		if err != nil {
			s.log.Errorw("Retry check failed for document", "error", err, "documentID", docs[i].ID)
			continue
		}
		if retried {
			created++
			s.metrics.IncRetryAttempts()
		}
	}

	s.log.Infow("Retry check finished", "billingDate", billingDate,
		"documentsScanned", len(docs), "retriesCreated", created)
	return created, nil
}

// checkDocument оценивает один документ под блокировкой: конкурентные
// проходы не создадут две ретрай-транзакции по одному отказу
func (s *retryService) checkDocument(ctx context.Context, documentID uuid.UUID,
	billingDate time.Time, force bool) (bool, error) {
	retried := false

	err := s.store.Atomic(ctx, func(ctx context.Context) error {
		if err := s.store.LockDocument(ctx, documentID); err != nil {
			return err
		}

		doc, err := s.store.Documents().GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.State != domain.DocumentStateIssued {
			return nil
		}

		txns, err := s.store.Transactions().ListForDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if len(txns) == 0 {
			// По документу еще не было ни одной попытки
			return nil
		}

		// Ретрай нужен только когда последняя попытка отказана; initial,
		// pending, settled, canceled и refunded попытки его исключают
		latest := txns[len(txns)-1]
		if latest.State != domain.TransactionStateFailed {
			return nil
		}

		method, err := s.store.PaymentMethods().GetByID(ctx, latest.PaymentMethodID)
		if err != nil {
			return err
		}
		if !method.Usable() {
			return nil
		}

		// Окно ретраев отсчитывается от создания отказавшей попытки, не
		// от момента отказа: зависшая в pending попытка окно не сдвигает
		if !force && !method.CanRetryAt(calendar.Date(latest.CreatedAt), billingDate) {
			// Слишком рано или слишком поздно; просроченные документы
			// добирает проверка жизненного цикла
			return nil
		}

		remaining := doc.TotalInTransactionCurrency()
		for i := range txns {
			remaining = remaining.Sub(txns[i].SettledDelta())
		}
		if !remaining.IsPositive() {
			return nil
		}

		retry := domain.NewTransaction(doc.ID, method.ID, remaining, doc.Currency)
		if err := s.store.Transactions().Create(ctx, *retry); err != nil {
			return err
		}
		retried = true

		s.log.Infow("Retry transaction created", "documentID", doc.ID,
			"transactionID", retry.ID, "amount", retry.Amount, "billingDate", billingDate)
		return nil
	})
	return retried, err
}
