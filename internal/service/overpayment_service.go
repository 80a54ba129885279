package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/Billing-microservice/internal/calendar"
	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/kafka"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// OverpaymentService интерфейс корректора переплат: находит клиентов с
// ненулевым балансом и выставляет корректирующий документ с отрицательным
// итогом от выделенного внутреннего поставщика
type OverpaymentService interface {
	// BalanceOnDate возвращает производный баланс клиента на дату: сумму
	// пере/недоплат по его оплаченным документам. Баланс нигде не хранится.
	BalanceOnDate(ctx context.Context, customerID uuid.UUID, date time.Time) (decimal.Decimal, error)

	// Check выставляет корректировки клиентам с ненулевым балансом.
	// Повторный вызов при открытой (draft/issued) корректировке - no-op.
	Check(ctx context.Context, billingDate time.Time, customerID *uuid.UUID) (int, error)
}

type overpaymentService struct {
	store    repository.Store
	producer kafka.Producer
	metrics  metrics.BillingMetrics
	log      *logger.Logger
}

// NewOverpaymentService создает новый сервис корректировки переплат
func NewOverpaymentService(store repository.Store, producer kafka.Producer,
	billingMetrics metrics.BillingMetrics, log *logger.Logger) OverpaymentService {
	return &overpaymentService{
		store:    store,
		producer: producer,
		metrics:  billingMetrics,
		log:      log,
	}
}

func (s *overpaymentService) BalanceOnDate(ctx context.Context, customerID uuid.UUID,
	date time.Time) (decimal.Decimal, error) {
	docs, err := s.store.Documents().ListPaidForCustomer(ctx, customerID, calendar.Date(date))
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for i := range docs {
		settled, err := s.settledAmount(ctx, docs[i].ID)
		if err != nil {
			return decimal.Zero, err
		}

		total := docs[i].TotalInTransactionCurrency()
		if total.IsNegative() {
			// Оплаченная корректировка гасит баланс своей рассчитанной
			// (отрицательной) суммой
			balance = balance.Add(settled)
		} else {
			balance = balance.Add(settled.Sub(total))
		}
	}
	return balance, nil
}

func (s *overpaymentService) settledAmount(ctx context.Context, documentID uuid.UUID) (decimal.Decimal, error) {
	txns, err := s.store.Transactions().ListForDocument(ctx, documentID)
	if err != nil {
		return decimal.Zero, err
	}

	settled := decimal.Zero
	for i := range txns {
		settled = settled.Add(txns[i].SettledDelta())
	}
	return settled, nil
}

func (s *overpaymentService) Check(ctx context.Context, billingDate time.Time,
	customerID *uuid.UUID) (int, error) {
	billingDate = calendar.Date(billingDate)

	customers, err := s.customersToCheck(ctx, customerID)
	if err != nil {
		return 0, err
	}

	provider, err := s.ensureProvider(ctx)
	if err != nil {
		return 0, err
	}

	corrected := 0
	for i := range customers {
		issued, err := s.checkCustomer(ctx, customers[i], provider, billingDate)
		if err != nil {
			s.log.Errorw("Overpayment check failed for customer", "error", err,
				"customerID", customers[i].ID)
			continue
		}
		if issued {
			corrected++
			s.metrics.IncOverpaymentCorrections()
		}
	}

	s.log.Infow("Overpayment check finished", "billingDate", billingDate,
		"customersChecked", len(customers), "correctionsIssued", corrected)
	return corrected, nil
}

func (s *overpaymentService) customersToCheck(ctx context.Context, customerID *uuid.UUID) ([]domain.Customer, error) {
	if customerID != nil {
		customer, err := s.store.Customers().GetByID(ctx, *customerID)
		if err != nil {
			return nil, err
		}
		return []domain.Customer{customer}, nil
	}
	return s.store.Customers().GetAll(ctx)
}

// ensureProvider находит выделенного внутреннего поставщика корректора по
// метаданным либо создает его при первом использовании
func (s *overpaymentService) ensureProvider(ctx context.Context) (domain.Provider, error) {
	provider, err := s.store.Providers().GetByMetaKey(ctx, domain.OverpaymentProviderMetaKey)
	if err == nil {
		return provider, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.Provider{}, err
	}

	now := time.Now().UTC()
	provider = domain.Provider{
		ID:             uuid.New(),
		Name:           "Overpayments",
		InvoiceSeries:  "OP",
		StartingNumber: 1,
		Metadata:       map[string]string{domain.OverpaymentProviderMetaKey: "true"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Providers().Create(ctx, provider); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return s.store.Providers().GetByMetaKey(ctx, domain.OverpaymentProviderMetaKey)
		}
		return domain.Provider{}, err
	}

	s.log.Infow("Overpayment provider created", "providerID", provider.ID)
	return provider, nil
}

func (s *overpaymentService) checkCustomer(ctx context.Context, customer domain.Customer,
	provider domain.Provider, billingDate time.Time) (bool, error) {
	balance, err := s.BalanceOnDate(ctx, customer.ID, billingDate)
	if err != nil {
		return false, err
	}
	if balance.IsZero() {
		return false, nil
	}

	// Открытая корректировка уже в пути; вторая не выставляется, пока
	// первая draft или issued
	open, err := s.store.Documents().ListOpenForProvider(ctx, customer.ID, provider.ID)
	if err != nil {
		return false, err
	}
	if len(open) > 0 {
		return false, nil
	}

	doc := domain.NewDocument(customer.ID, provider.ID, customer.Currency)
	if err := doc.AddEntry(domain.DocumentEntry{
		Description: "Balance correction",
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   balance.Neg(),
	}); err != nil {
		return false, err
	}
	if err := doc.Issue(billingDate, customer.PaymentDueDays); err != nil {
		return false, err
	}
	if err := s.store.Documents().Create(ctx, *doc); err != nil {
		return false, err
	}

	s.log.Infow("Overpayment correction issued", "customerID", customer.ID,
		"documentID", doc.ID, "balance", balance)

	event := kafka.TransitionEvent{
		Entity:     "document",
		EntityID:   doc.ID.String(),
		FromState:  string(domain.DocumentStateDraft),
		ToState:    string(domain.DocumentStateIssued),
		OccurredAt: billingDate,
	}
	if err := s.producer.PublishTransition(ctx, kafka.TopicDocumentIssued, event); err != nil {
		s.log.Warnw("Failed to publish correction event", "error", err, "documentID", doc.ID)
	}
	return true, nil
}
