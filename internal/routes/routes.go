package routes

import (
	"github.com/Cyvadra/marketminds/internal/handlers"
	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers mounted by SetupRoutes
type Handlers struct {
	Extension *handlers.ExtensionHandler
	Records   *handlers.RecordHandler
	Bus       *handlers.BusHandler
}

// SetupRoutes configures all the routes for the application
func SetupRoutes(r *gin.Engine, h Handlers) {
	api := r.Group("/api/extension")
	{
		// AI actions, one endpoint per bus action
		api.POST("/chat", h.Extension.Chat)
		api.POST("/analyze-file", h.Extension.AnalyzeFile)
		api.POST("/market-data", h.Extension.MarketData)
		api.POST("/analyze-news", h.Extension.AnalyzeNews)
		api.POST("/risk-management", h.Extension.RiskManagement)
		api.POST("/education", h.Extension.Education)

		// Message bus for UI contexts
		api.GET("/bus", h.Bus.Connect)
		api.POST("/bus", h.Bus.Dispatch)

		if h.Records != nil {
			alerts := api.Group("/alerts")
			{
				alerts.POST("", h.Records.CreateAlert)
				alerts.GET("", h.Records.GetAlerts)
			}

			journal := api.Group("/journal")
			{
				journal.POST("", h.Records.CreateJournalEntry)
				journal.GET("", h.Records.GetJournal)
				journal.GET("/stats", h.Records.GetJournalStats)
			}
		}
	}

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "marketminds",
		})
	})

	// Root endpoint
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "MarketMinds AI Trading Assistant",
			"version": "1.0.0",
			"endpoints": gin.H{
				"chat":    "/api/extension/chat",
				"bus":     "/api/extension/bus",
				"alerts":  "/api/extension/alerts",
				"journal": "/api/extension/journal",
				"health":  "/health",
			},
		})
	})
}
