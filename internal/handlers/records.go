package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/Cyvadra/marketminds/internal/models"
	"github.com/Cyvadra/marketminds/internal/services"
	"github.com/gin-gonic/gin"
)

// AlertNotifier is told about every stored alert
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, alert *models.AlertRecord) error
}

// RecordHandler serves the backend alert and journal records
type RecordHandler struct {
	records  *services.RecordService
	notifier AlertNotifier
	logger   *log.Logger
}

// NewRecordHandler creates a new record handler; notifier may be nil
func NewRecordHandler(records *services.RecordService, notifier AlertNotifier) *RecordHandler {
	return &RecordHandler{
		records:  records,
		notifier: notifier,
		logger:   log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
}

// SetLogger sets the logger for the handler
func (h *RecordHandler) SetLogger(logger *log.Logger) {
	h.logger = logger
}

type alertInput struct {
	UserID       string   `json:"userId" binding:"required"`
	Symbol       string   `json:"symbol" binding:"required"`
	Condition    string   `json:"condition" binding:"oneof=above below crosses"`
	TargetPrice  float64  `json:"targetPrice" binding:"gt=0"`
	CurrentPrice *float64 `json:"currentPrice" binding:"omitempty,gt=0"`
	IsActive     *bool    `json:"isActive"`
}

type journalInput struct {
	UserID     string             `json:"userId" binding:"required"`
	Symbol     string             `json:"symbol" binding:"required"`
	Action     models.TradeAction `json:"action" binding:"oneof=buy sell"`
	Quantity   float64            `json:"quantity" binding:"gt=0"`
	EntryPrice float64            `json:"entryPrice" binding:"gt=0"`
	ExitPrice  *float64           `json:"exitPrice" binding:"omitempty,gt=0"`
	StopLoss   *float64           `json:"stopLoss" binding:"omitempty,gt=0"`
	TakeProfit *float64           `json:"takeProfit" binding:"omitempty,gt=0"`
	PnL        *float64           `json:"pnl"`
	PnLPercent *float64           `json:"pnlPercent"`
	Notes      string             `json:"notes"`
	Tags       []string           `json:"tags"`
	IsOpen     *bool              `json:"isOpen"`
	OpenedAt   *time.Time         `json:"openedAt"`
	ClosedAt   *time.Time         `json:"closedAt"`
}

// CreateAlert handles POST /api/extension/alerts
func (h *RecordHandler) CreateAlert(c *gin.Context) {
	var input alertInput
	if err := c.ShouldBindJSON(&input); err != nil {
		fail(c, &models.ValidationError{Reason: err.Error()})
		return
	}

	alert := &models.AlertRecord{
		UserID:       input.UserID,
		Symbol:       input.Symbol,
		Condition:    input.Condition,
		TargetPrice:  input.TargetPrice,
		CurrentPrice: input.CurrentPrice,
		IsActive:     input.IsActive == nil || *input.IsActive,
	}
	if err := h.records.SaveAlert(c.Request.Context(), alert); err != nil {
		h.logger.Printf("Failed to save alert: %v", err)
		fail(c, err)
		return
	}

	if h.notifier != nil {
		go func() {
			if err := h.notifier.NotifyAlert(context.Background(), alert); err != nil {
				h.logger.Printf("Failed to notify alert %d: %v", alert.ID, err)
			}
		}()
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": alert})
}

// GetAlerts handles GET /api/extension/alerts
func (h *RecordHandler) GetAlerts(c *gin.Context) {
	page, limit := pagination(c)
	activeOnly := c.Query("active") == "true"

	alerts, total, err := h.records.GetAlerts(c.Request.Context(), c.Query("userId"), page, limit, activeOnly)
	if err != nil {
		failRecords(c, err, "Failed to retrieve alerts")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"alerts": alerts,
			"total":  total,
			"page":   page,
			"limit":  limit,
		},
	})
}

// CreateJournalEntry handles POST /api/extension/journal
func (h *RecordHandler) CreateJournalEntry(c *gin.Context) {
	var input journalInput
	if err := c.ShouldBindJSON(&input); err != nil {
		fail(c, &models.ValidationError{Reason: err.Error()})
		return
	}

	entry := &models.JournalRecord{
		UserID:     input.UserID,
		Symbol:     input.Symbol,
		Action:     input.Action,
		Quantity:   input.Quantity,
		EntryPrice: input.EntryPrice,
		ExitPrice:  input.ExitPrice,
		StopLoss:   input.StopLoss,
		TakeProfit: input.TakeProfit,
		PnL:        input.PnL,
		PnLPercent: input.PnLPercent,
		Notes:      input.Notes,
		Tags:       input.Tags,
		IsOpen:     input.IsOpen == nil || *input.IsOpen,
		ClosedAt:   input.ClosedAt,
	}
	if input.OpenedAt != nil {
		entry.OpenedAt = *input.OpenedAt
	}
	if err := h.records.SaveJournalEntry(c.Request.Context(), entry); err != nil {
		h.logger.Printf("Failed to save journal entry: %v", err)
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": entry})
}

// GetJournal handles GET /api/extension/journal
func (h *RecordHandler) GetJournal(c *gin.Context) {
	page, limit := pagination(c)

	entries, total, err := h.records.GetJournal(c.Request.Context(), c.Query("userId"), page, limit)
	if err != nil {
		failRecords(c, err, "Failed to retrieve journal")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"entries": entries,
			"total":   total,
			"page":    page,
			"limit":   limit,
		},
	})
}

// GetJournalStats handles GET /api/extension/journal/stats
func (h *RecordHandler) GetJournalStats(c *gin.Context) {
	stats, err := h.records.GetJournalStats(c.Request.Context(), c.Query("userId"))
	if err != nil {
		failRecords(c, err, "Failed to compute journal statistics")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

func pagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return page, limit
}

func failRecords(c *gin.Context, err error, message string) {
	if errors.Is(err, services.ErrMissingUser) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": message})
}
