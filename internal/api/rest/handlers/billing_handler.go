package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/internal/service"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// BillingHandler обрабатывает HTTP триггеры проходов биллинга. Проходы
// идемпотентны для заданной даты: повторный вызов - no-op.
type BillingHandler struct {
	billing     service.BillingService
	payments    service.PaymentService
	retries     service.RetryService
	lifecycle   service.LifecycleService
	overpayment service.OverpaymentService
	log         *logger.Logger
}

// NewBillingHandler создает новый экземпляр BillingHandler.
func NewBillingHandler(
	billing service.BillingService,
	payments service.PaymentService,
	retries service.RetryService,
	lifecycle service.LifecycleService,
	overpayment service.OverpaymentService,
	log *logger.Logger,
) *BillingHandler {
	return &BillingHandler{
		billing:     billing,
		payments:    payments,
		retries:     retries,
		lifecycle:   lifecycle,
		overpayment: overpayment,
		log:         log,
	}
}

// --- DTO ---

type RunBillingRequest struct {
	ReferenceDate  string  `json:"reference_date" binding:"required"`
	SubscriptionID *string `json:"subscription_id,omitempty"`
	Force          bool    `json:"force,omitempty"`
}

type RunRetriesRequest struct {
	BillingDate string `json:"billing_date" binding:"required"`
	Force       bool   `json:"force,omitempty"`
}

type RunLifecycleRequest struct {
	BillingDate string `json:"billing_date" binding:"required"`
}

type RunOverpaymentRequest struct {
	BillingDate string `json:"billing_date" binding:"required"`
	CustomerID  *string `json:"customer_id,omitempty"`
}

// parseDate разбирает дату в формате 2006-01-02
func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}

func parseOptionalUUID(value *string) (*uuid.UUID, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// RunBilling обрабатывает POST /billing/run
func (h *BillingHandler) RunBilling(c *gin.Context) {
	ctx := c.Request.Context()

	var req RunBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid request format"})
		return
	}

	referenceDate, err := parseDate(req.ReferenceDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid reference_date, expected YYYY-MM-DD"})
		return
	}
	subscriptionID, err := parseOptionalUUID(req.SubscriptionID)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid subscription_id"})
		return
	}

	result, err := h.billing.RunBilling(ctx, referenceDate, service.BillingRunOptions{
		SubscriptionID: subscriptionID,
		Force:          req.Force,
	})
	if err != nil {
		h.handleServiceError(c, err, "RunBilling")
		return
	}

	// Выставленные документы сразу отправляются на оплату
	executed, err := h.payments.ExecuteInitial(ctx)
	if err != nil {
		h.log.Errorw("Failed to execute initial transactions after billing run", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"evaluated":             result.Evaluated,
		"cycles_billed":         result.CyclesBilled,
		"documents_issued":      result.DocumentsIssued,
		"subscription_errors":   result.SubscriptionsErr,
		"transactions_executed": executed,
	})
}

// RunRetries обрабатывает POST /retries/run
func (h *BillingHandler) RunRetries(c *gin.Context) {
	ctx := c.Request.Context()

	var req RunRetriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid request format"})
		return
	}

	billingDate, err := parseDate(req.BillingDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid billing_date, expected YYYY-MM-DD"})
		return
	}

	created, err := h.retries.Check(ctx, billingDate, req.Force)
	if err != nil {
		h.handleServiceError(c, err, "RunRetries")
		return
	}

	executed, err := h.payments.ExecuteInitial(ctx)
	if err != nil {
		h.log.Errorw("Failed to execute retry transactions", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"retries_created":       created,
		"transactions_executed": executed,
	})
}

// RunLifecycleCheck обрабатывает POST /lifecycle/run
func (h *BillingHandler) RunLifecycleCheck(c *gin.Context) {
	var req RunLifecycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid request format"})
		return
	}

	billingDate, err := parseDate(req.BillingDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid billing_date, expected YYYY-MM-DD"})
		return
	}

	transitioned, err := h.lifecycle.Check(c.Request.Context(), billingDate)
	if err != nil {
		h.handleServiceError(c, err, "RunLifecycleCheck")
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions_transitioned": transitioned})
}

// RunOverpaymentCheck обрабатывает POST /overpayments/run
func (h *BillingHandler) RunOverpaymentCheck(c *gin.Context) {
	var req RunOverpaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid request format"})
		return
	}

	billingDate, err := parseDate(req.BillingDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid billing_date, expected YYYY-MM-DD"})
		return
	}
	customerID, err := parseOptionalUUID(req.CustomerID)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid customer_id"})
		return
	}

	corrected, err := h.overpayment.Check(c.Request.Context(), billingDate, customerID)
	if err != nil {
		h.handleServiceError(c, err, "RunOverpaymentCheck")
		return
	}

	c.JSON(http.StatusOK, gin.H{"corrections_issued": corrected})
}

func (h *BillingHandler) handleServiceError(c *gin.Context, err error, op string) {
	h.log.Errorw("Service call failed", "operation", op, "error", err)

	switch {
	case errors.Is(err, repository.ErrNotFound) || errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
	case errors.Is(err, domain.ErrInvalidConfiguration):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
