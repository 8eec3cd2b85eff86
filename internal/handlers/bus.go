package handlers

import (
	"log"
	"net/http"

	"github.com/Cyvadra/marketminds/internal/bus"
	"github.com/gin-gonic/gin"
)

// BusHandler exposes the background message bus to UI contexts
type BusHandler struct {
	server   *bus.Server
	upgrader *bus.Upgrader
	logger   *log.Logger
}

// NewBusHandler creates a bus handler admitting the given browser origins
func NewBusHandler(server *bus.Server, allowedOrigins []string) *BusHandler {
	return &BusHandler{
		server:   server,
		upgrader: bus.NewUpgrader(allowedOrigins...),
		logger:   log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
}

// SetLogger sets the logger for the handler
func (h *BusHandler) SetLogger(logger *log.Logger) {
	h.logger = logger
}

// Connect handles GET /api/extension/bus by upgrading to a websocket that
// carries bus frames until either side closes it
func (h *BusHandler) Connect(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request)
	if err != nil {
		h.logger.Printf("Error upgrading to WebSocket: %v", err)
		return
	}
	if err := h.server.Serve(c.Request.Context(), conn); err != nil {
		h.logger.Printf("Bus connection ended: %v", err)
	}
}

// Dispatch handles POST /api/extension/bus with a single request frame
func (h *BusHandler) Dispatch(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "failed to read request body"})
		return
	}

	var env bus.Envelope
	if err := env.UnmarshalJSON(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.server.Dispatch(c.Request.Context(), env))
}
