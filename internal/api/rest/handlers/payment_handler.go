package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/internal/service"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// PaymentHandler обрабатывает HTTP запросы, связанные с платежами по
// документам.
type PaymentHandler struct {
	payments service.PaymentService
	log      *logger.Logger
}

// NewPaymentHandler создает новый экземпляр PaymentHandler.
func NewPaymentHandler(payments service.PaymentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		log:      log,
	}
}

// --- DTO ---

type CreatePaymentRequest struct {
	DocumentID      string `json:"document_id" binding:"required"`
	PaymentMethodID string `json:"payment_method_id" binding:"required"`
	Amount          string `json:"amount" binding:"required"`
	Overpayment     bool   `json:"overpayment,omitempty"`
}

type ConfirmManualRequest struct {
	ExternalReference string `json:"external_reference" binding:"required"`
}

// CreatePayment обрабатывает POST /payments: создает транзакцию по
// выставленному документу и сразу проводит ее через процессор
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid request format"})
		return
	}

	documentID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid document_id"})
		return
	}
	paymentMethodID, err := uuid.Parse(req.PaymentMethodID)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid payment_method_id"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid amount"})
		return
	}

	txn, err := h.payments.CreatePayment(ctx, documentID, paymentMethodID, amount, req.Overpayment)
	if err != nil {
		h.handleError(c, err, "CreatePayment")
		return
	}

	if err := h.payments.Execute(ctx, txn.ID); err != nil {
		h.log.Warnw("Payment created but execution deferred", "error", err, "transactionID", txn.ID)
	}

	c.JSON(http.StatusCreated, gin.H{
		"transaction_id": txn.ID,
		"document_id":    txn.DocumentID,
		"amount":         txn.Amount,
		"currency":       txn.Currency,
	})
}

// ConfirmManual обрабатывает POST /transactions/:id/confirm: фиксирует
// подтвержденную оператором оплату
func (h *PaymentHandler) ConfirmManual(c *gin.Context) {
	transactionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid transaction id"})
		return
	}

	var req ConfirmManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid request format"})
		return
	}

	if err := h.payments.ConfirmManual(c.Request.Context(), transactionID, req.ExternalReference); err != nil {
		h.handleError(c, err, "ConfirmManual")
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction_id": transactionID, "status": "settled"})
}

// RefundTransaction обрабатывает POST /transactions/:id/refund
func (h *PaymentHandler) RefundTransaction(c *gin.Context) {
	transactionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid transaction id"})
		return
	}

	if err := h.payments.Refund(c.Request.Context(), transactionID); err != nil {
		h.handleError(c, err, "RefundTransaction")
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction_id": transactionID, "status": "refunded"})
}

func (h *PaymentHandler) handleError(c *gin.Context, err error, op string) {
	h.log.Errorw("Payment operation failed", "operation", op, "error", err)

	switch {
	case errors.Is(err, repository.ErrNotFound) || errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrPaymentMethodUnusable):
		c.JSON(http.StatusConflict, gin.H{"error": "Payment method is not usable"})
	case errors.Is(err, domain.ErrInconsistentState):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrGateway):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
