package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Dhoini/Billing-microservice/internal/api/rest"
	"github.com/Dhoini/Billing-microservice/internal/api/rest/handlers"
	"github.com/Dhoini/Billing-microservice/internal/config"
	"github.com/Dhoini/Billing-microservice/internal/kafka"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/processor"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/internal/scheduler"
	"github.com/Dhoini/Billing-microservice/internal/service"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	Config    *config.Config
	Registry  *prometheus.Registry
	Handlers  rest.Handlers
	Scheduler *scheduler.Scheduler
	System    metrics.SystemMetrics
	Billing   service.BillingService
	Payments  service.PaymentService
	Logger    *logger.Logger
}

// NewApp создает и инициализирует новый экземпляр приложения
func NewApp(
	cfg *config.Config,
	store repository.Store,
	planRepo repository.PlanRepository,
	producer kafka.Producer,
	log *logger.Logger,
) *App {
	registry := prometheus.NewRegistry()
	billingMetrics := metrics.NewBillingMetrics(registry, log)
	systemMetrics := metrics.NewSystemMetrics(registry, log)

	// Закрытый реестр процессоров собирается при старте из конфигурации
	processors := []processor.Processor{processor.NewManualProcessor()}
	if cfg.Processors.Triggered {
		processors = append(processors, processor.NewTriggeredProcessor(processor.TriggeredConfig{}))
	}
	procRegistry := processor.NewRegistry(processors...)

	usageService := service.NewUsageService(store.Usage(), log)
	billingService := service.NewBillingService(store, planRepo, usageService, producer, billingMetrics, log)
	paymentService := service.NewPaymentService(store, procRegistry, producer, billingMetrics, log)
	retryService := service.NewRetryService(store, billingMetrics, log)
	lifecycleService := service.NewLifecycleService(store, producer, billingMetrics, log)
	overpaymentService := service.NewOverpaymentService(store, producer, billingMetrics, log)

	billingHandler := handlers.NewBillingHandler(
		billingService, paymentService, retryService, lifecycleService, overpaymentService, log)
	paymentHandler := handlers.NewPaymentHandler(paymentService, log)
	usageHandler := handlers.NewUsageHandler(usageService, log)

	sched := scheduler.New(
		billingService, paymentService, retryService, lifecycleService, overpaymentService,
		billingMetrics, log)

	return &App{
		Config:   cfg,
		Registry: registry,
		Handlers: rest.Handlers{
			Billing: billingHandler,
			Payment: paymentHandler,
			Usage:   usageHandler,
		},
		Scheduler: sched,
		System:    systemMetrics,
		Billing:   billingService,
		Payments:  paymentService,
		Logger:    log,
	}
}
