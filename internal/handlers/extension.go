package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/Cyvadra/marketminds/internal/models"
	"github.com/Cyvadra/marketminds/internal/services"
	"github.com/gin-gonic/gin"
)

// ExtensionHandler serves the AI actions over plain HTTP
type ExtensionHandler struct {
	actions *services.ActionService
	logger  *log.Logger
}

// NewExtensionHandler creates a new extension handler
func NewExtensionHandler(actions *services.ActionService) *ExtensionHandler {
	return &ExtensionHandler{
		actions: actions,
		logger:  log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
}

// SetLogger sets the logger for the handler
func (h *ExtensionHandler) SetLogger(logger *log.Logger) {
	h.logger = logger
}

// fileUpload is the HTTP body of a file analysis request
type fileUpload struct {
	FileData string `json:"fileData" binding:"required"`
	FileType string `json:"fileType" binding:"required"`
	FileName string `json:"fileName"`
}

// Chat handles POST /api/extension/chat
func (h *ExtensionHandler) Chat(c *gin.Context) {
	h.serve(c, models.ActionChat)
}

// AnalyzeFile handles POST /api/extension/analyze-file
func (h *ExtensionHandler) AnalyzeFile(c *gin.Context) {
	var upload fileUpload
	if err := c.ShouldBindJSON(&upload); err != nil {
		fail(c, &models.ValidationError{Reason: err.Error()})
		return
	}

	req := &models.FileAnalysisRequest{
		File:     upload.FileData,
		Type:     upload.FileType,
		FileName: upload.FileName,
	}
	if err := models.Validate(req); err != nil {
		fail(c, err)
		return
	}
	h.execute(c, req)
}

// MarketData handles POST /api/extension/market-data
func (h *ExtensionHandler) MarketData(c *gin.Context) {
	h.serve(c, models.ActionMarketData)
}

// AnalyzeNews handles POST /api/extension/analyze-news
func (h *ExtensionHandler) AnalyzeNews(c *gin.Context) {
	h.serve(c, models.ActionAnalyzeNews)
}

// RiskManagement handles POST /api/extension/risk-management
func (h *ExtensionHandler) RiskManagement(c *gin.Context) {
	h.serve(c, models.ActionRiskManagement)
}

// Education handles POST /api/extension/education
func (h *ExtensionHandler) Education(c *gin.Context) {
	h.serve(c, models.ActionEducation)
}

func (h *ExtensionHandler) serve(c *gin.Context, action models.Action) {
	body, err := c.GetRawData()
	if err != nil {
		fail(c, &models.ValidationError{Reason: "failed to read request body"})
		return
	}

	req, err := models.DecodeRequest(action, body)
	if err != nil {
		fail(c, err)
		return
	}
	h.execute(c, req)
}

func (h *ExtensionHandler) execute(c *gin.Context, req models.Request) {
	data, err := h.actions.Execute(c.Request.Context(), req)
	if err != nil {
		h.logger.Printf("%s error: %v", req.Action(), err)
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// fail writes the error shape shared by every extension endpoint
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, models.ErrValidation) {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}
