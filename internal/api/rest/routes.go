// Package rest настраивает HTTP поверхность сервиса: триггеры проходов
// биллинга, платежные операции, запись потребления, здоровье и метрики.
package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dhoini/Billing-microservice/internal/api/rest/handlers"
	"github.com/Dhoini/Billing-microservice/internal/api/rest/middleware"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// Handlers обработчики, монтируемые на роутер
type Handlers struct {
	Billing *handlers.BillingHandler
	Payment *handlers.PaymentHandler
	Usage   *handlers.UsageHandler
}

// SetupRoutes настраивает все маршруты API для Gin роутера
func SetupRoutes(router *gin.Engine, h Handlers, registry *prometheus.Registry, log *logger.Logger) {
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(gin.Recovery())

	router.GET("/healthz", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		// Триггеры планировщика; все проходы идемпотентны для заданной даты
		api.POST("/billing/run", h.Billing.RunBilling)
		api.POST("/retries/run", h.Billing.RunRetries)
		api.POST("/lifecycle/run", h.Billing.RunLifecycleCheck)
		api.POST("/overpayments/run", h.Billing.RunOverpaymentCheck)

		// Платежи
		api.POST("/payments", h.Payment.CreatePayment)
		api.POST("/transactions/:id/confirm", h.Payment.ConfirmManual)
		api.POST("/transactions/:id/refund", h.Payment.RefundTransaction)

		// Потребление
		api.POST("/usage", h.Usage.RecordUsage)
	}

	log.Infow("API routes successfully configured")
}
