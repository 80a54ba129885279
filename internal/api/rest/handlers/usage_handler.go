package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/service"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// UsageHandler обрабатывает HTTP запросы записи потребления
type UsageHandler struct {
	usage service.UsageService
	log   *logger.Logger
}

// NewUsageHandler создает новый экземпляр UsageHandler.
func NewUsageHandler(usage service.UsageService, log *logger.Logger) *UsageHandler {
	return &UsageHandler{
		usage: usage,
		log:   log,
	}
}

type RecordUsageRequest struct {
	SubscriptionID string `json:"subscription_id" binding:"required"`
	FeatureID      string `json:"feature_id" binding:"required"`
	StartDate      string `json:"start_date" binding:"required"`
	EndDate        string `json:"end_date" binding:"required"`
	ConsumedUnits  string `json:"consumed_units" binding:"required"`
}

// RecordUsage обрабатывает POST /usage: создает неизменяемую запись
// потребления. Исправления вносятся только новыми корректирующими записями.
func (h *UsageHandler) RecordUsage(c *gin.Context) {
	var req RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid request format"})
		return
	}

	subscriptionID, err := uuid.Parse(req.SubscriptionID)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid subscription_id"})
		return
	}
	featureID, err := uuid.Parse(req.FeatureID)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid feature_id"})
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid start_date, expected YYYY-MM-DD"})
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid end_date, expected YYYY-MM-DD"})
		return
	}
	consumed, err := decimal.NewFromString(req.ConsumedUnits)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid consumed_units"})
		return
	}

	unitsLog, err := h.usage.Record(c.Request.Context(), subscriptionID, featureID, start, end, consumed)
	if err != nil {
		h.log.Errorw("Failed to record usage", "error", err,
			"subscriptionID", subscriptionID, "featureID", featureID)
		if errors.Is(err, domain.ErrInvalidInput) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"units_log_id":    unitsLog.ID,
		"subscription_id": unitsLog.SubscriptionID,
		"feature_id":      unitsLog.FeatureID,
		"consumed_units":  unitsLog.ConsumedUnits,
	})
}
