package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// BillingMetrics интерфейс для метрик биллинга
type BillingMetrics interface {
	IncDocumentsIssued(currency string)
	IncDocumentsPaid(currency string)
	IncTransactionsSettled(currency string)
	IncTransactionsFailed(currency, failCode string)
	IncRetryAttempts()
	IncSubscriptionsCanceled()
	IncOverpaymentCorrections()
	ObserveDocumentTotal(amount float64, currency string)
	ObserveBillingRunDuration(seconds float64, pass string)
}

type billingMetrics struct {
	log                *logger.Logger
	documentsIssued    *prometheus.CounterVec
	documentsPaid      *prometheus.CounterVec
	transactionsStatus *prometheus.CounterVec
	retryAttempts      prometheus.Counter
	subsCanceled       prometheus.Counter
	overpaymentDocs    prometheus.Counter
	documentTotals     *prometheus.HistogramVec
	runDuration        *prometheus.HistogramVec
}

// NewBillingMetrics создает новые метрики биллинга
func NewBillingMetrics(registry *prometheus.Registry, log *logger.Logger) BillingMetrics {
	documentsIssued := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_documents_issued_total",
			Help: "The total number of issued billing documents",
		},
		[]string{"currency"},
	)

	documentsPaid := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_documents_paid_total",
			Help: "The total number of paid billing documents",
		},
		[]string{"currency"},
	)

	transactionsStatus := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_transactions_status_total",
			Help: "The total number of payment transactions by final status",
		},
		[]string{"status", "currency", "fail_code"},
	)

	retryAttempts := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "billing_retry_attempts_total",
			Help: "The total number of retry transactions created",
		},
	)

	subsCanceled := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "billing_subscriptions_canceled_total",
			Help: "The total number of subscriptions canceled by the lifecycle check",
		},
	)

	overpaymentDocs := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "billing_overpayment_corrections_total",
			Help: "The total number of overpayment correction documents issued",
		},
	)

	documentTotals := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_document_totals",
			Help:    "Issued document totals distribution",
			Buckets: prometheus.ExponentialBuckets(10, 10, 5), // 10, 100, 1000, 10000, 100000
		},
		[]string{"currency"},
	)

	runDuration := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_run_duration_seconds",
			Help:    "Duration of scheduler passes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pass"},
	)

	return &billingMetrics{
		log:                log,
		documentsIssued:    documentsIssued,
		documentsPaid:      documentsPaid,
		transactionsStatus: transactionsStatus,
		retryAttempts:      retryAttempts,
		subsCanceled:       subsCanceled,
		overpaymentDocs:    overpaymentDocs,
		documentTotals:     documentTotals,
		runDuration:        runDuration,
	}
}

// IncDocumentsIssued увеличивает счетчик выставленных документов
func (m *billingMetrics) IncDocumentsIssued(currency string) {
	m.documentsIssued.WithLabelValues(currency).Inc()
}

// IncDocumentsPaid увеличивает счетчик оплаченных документов
func (m *billingMetrics) IncDocumentsPaid(currency string) {
	m.documentsPaid.WithLabelValues(currency).Inc()
}

// IncTransactionsSettled увеличивает счетчик рассчитанных транзакций
func (m *billingMetrics) IncTransactionsSettled(currency string) {
	m.transactionsStatus.WithLabelValues("settled", currency, "").Inc()
}

// IncTransactionsFailed увеличивает счетчик отклоненных транзакций
func (m *billingMetrics) IncTransactionsFailed(currency, failCode string) {
	m.transactionsStatus.WithLabelValues("failed", currency, failCode).Inc()
}

// IncRetryAttempts увеличивает счетчик ретрай-транзакций
func (m *billingMetrics) IncRetryAttempts() {
	m.retryAttempts.Inc()
}

// IncSubscriptionsCanceled увеличивает счетчик отмененных подписок
func (m *billingMetrics) IncSubscriptionsCanceled() {
	m.subsCanceled.Inc()
}

// IncOverpaymentCorrections увеличивает счетчик корректировок переплат
func (m *billingMetrics) IncOverpaymentCorrections() {
	m.overpaymentDocs.Inc()
}

// ObserveDocumentTotal записывает итог выставленного документа
func (m *billingMetrics) ObserveDocumentTotal(amount float64, currency string) {
	m.documentTotals.WithLabelValues(currency).Observe(amount)
}

// ObserveBillingRunDuration записывает длительность прохода планировщика
func (m *billingMetrics) ObserveBillingRunDuration(seconds float64, pass string) {
	m.runDuration.WithLabelValues(pass).Observe(seconds)
}

// NopBillingMetrics метрики-заглушка для тестов
type NopBillingMetrics struct{}

func (NopBillingMetrics) IncDocumentsIssued(string)                 {}
func (NopBillingMetrics) IncDocumentsPaid(string)                   {}
func (NopBillingMetrics) IncTransactionsSettled(string)             {}
func (NopBillingMetrics) IncTransactionsFailed(string, string)      {}
func (NopBillingMetrics) IncRetryAttempts()                         {}
func (NopBillingMetrics) IncSubscriptionsCanceled()                 {}
func (NopBillingMetrics) IncOverpaymentCorrections()                {}
func (NopBillingMetrics) ObserveDocumentTotal(float64, string)      {}
func (NopBillingMetrics) ObserveBillingRunDuration(float64, string) {}
