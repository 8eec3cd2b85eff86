package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Cyvadra/marketminds/internal/ai"
	"github.com/Cyvadra/marketminds/internal/bus"
	"github.com/Cyvadra/marketminds/internal/database"
	"github.com/Cyvadra/marketminds/internal/models"
	"github.com/Cyvadra/marketminds/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

var quiet = log.New(io.Discard, "", 0)

// MockModel is a mock implementation of ai.Model
type MockModel struct {
	mock.Mock
}

func (m *MockModel) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ai.GenerateResponse)
	return resp, args.Error(1)
}

type notifierFunc func(ctx context.Context, alert *models.AlertRecord) error

func (f notifierFunc) NotifyAlert(ctx context.Context, alert *models.AlertRecord) error {
	return f(ctx, alert)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newActionRouter(t *testing.T, model ai.Model) (*gin.Engine, *bus.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orchestrator := ai.NewOrchestrator(model, ai.Config{Timeout: time.Second})
	orchestrator.SetLogger(quiet)
	actions := services.NewActionService(orchestrator)
	actions.SetLogger(quiet)

	server := bus.NewServer(bus.ServerOptions{})
	server.SetLogger(quiet)
	actions.Register(server)

	ext := NewExtensionHandler(actions)
	ext.SetLogger(quiet)
	busHandler := NewBusHandler(server, []string{"chrome-extension://*"})
	busHandler.SetLogger(quiet)

	r := gin.New()
	api := r.Group("/api/extension")
	api.POST("/chat", ext.Chat)
	api.POST("/analyze-file", ext.AnalyzeFile)
	api.POST("/market-data", ext.MarketData)
	api.POST("/analyze-news", ext.AnalyzeNews)
	api.POST("/risk-management", ext.RiskManagement)
	api.POST("/education", ext.Education)
	api.GET("/bus", busHandler.Connect)
	api.POST("/bus", busHandler.Dispatch)
	return r, server
}

func perform(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestChatEndpoint(t *testing.T) {
	model := new(MockModel)
	model.On("Generate", mock.Anything, mock.Anything).Return(&ai.GenerateResponse{Text: "Support at 42k."}, nil).Once()
	r, _ := newActionRouter(t, model)

	w, env := perform(r, http.MethodPost, "/api/extension/chat", `{"message":"BTC levels?","context":{"tradingContext":true,"symbol":"BTCUSD"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	var chat ai.ChatResponse
	require.NoError(t, json.Unmarshal(env.Data, &chat))
	assert.Equal(t, "Support at 42k.", chat.Text)
	model.AssertExpectations(t)
}

func TestEndpointsRejectInvalidInput(t *testing.T) {
	model := new(MockModel)
	r, _ := newActionRouter(t, model)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"missing message", "/api/extension/chat", `{}`},
		{"empty body", "/api/extension/chat", ``},
		{"malformed json", "/api/extension/market-data", `{"symbol":`},
		{"missing news", "/api/extension/analyze-news", `{"symbols":["AAPL"]}`},
		{"risk out of range", "/api/extension/risk-management", `{"accountSize":1000,"riskPercentage":50,"tradeType":"swing"}`},
		{"bad level", "/api/extension/education", `{"topic":"RSI","level":"guru"}`},
		{"missing file", "/api/extension/analyze-file", `{"fileType":"image/png"}`},
		{"unsupported type", "/api/extension/analyze-file", `{"fileData":"aGk=","fileType":"application/zip"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := perform(r, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
	model.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestAnalyzeFileEndpoint(t *testing.T) {
	model := new(MockModel)
	model.On("Generate", mock.Anything, mock.MatchedBy(func(req ai.GenerateRequest) bool {
		return len(req.Parts) == 2 && req.Parts[0].MIMEType == "image/png"
	})).Return(&ai.GenerateResponse{Text: "Head and shoulders."}, nil).Once()
	r, _ := newActionRouter(t, model)

	body, _ := json.Marshal(map[string]string{
		"fileData": base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		"fileType": "image/png",
		"fileName": "chart.png",
	})
	w, env := perform(r, http.MethodPost, "/api/extension/analyze-file", string(body))
	require.Equal(t, http.StatusOK, w.Code)

	var analysis ai.FileAnalysisResponse
	require.NoError(t, json.Unmarshal(env.Data, &analysis))
	assert.Equal(t, "Head and shoulders.", analysis.Analysis)
	assert.Equal(t, "chart.png", analysis.FileName)
	model.AssertExpectations(t)
}

func TestUpstreamFailureIsServerError(t *testing.T) {
	model := new(MockModel)
	model.On("Generate", mock.Anything, mock.Anything).Return(nil, assert.AnError)
	r, _ := newActionRouter(t, model)

	w, env := perform(r, http.MethodPost, "/api/extension/education", `{"topic":"candlesticks"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, env.Success)
	assert.True(t, strings.HasPrefix(env.Error, "Education request failed: "))
}

func TestBusDispatchEndpoint(t *testing.T) {
	model := new(MockModel)
	model.On("Generate", mock.Anything, mock.Anything).Return(&ai.GenerateResponse{Text: "Go long."}, nil)
	r, _ := newActionRouter(t, model)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/extension/bus", bytes.NewBufferString(`{"id":"abc","action":"getChatResponse","message":"hi"}`))
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var reply bus.Reply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "abc", reply.ID)
	assert.True(t, reply.Success)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPost, "/api/extension/bus", bytes.NewBufferString(`{"id":"def","action":"launchRocket"}`))
	r.ServeHTTP(w, req)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "def", reply.ID)
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Error, "launchRocket")
}

func TestBusWebSocketEndpoint(t *testing.T) {
	model := new(MockModel)
	model.On("Generate", mock.Anything, mock.Anything).Return(&ai.GenerateResponse{Text: "Range bound."}, nil)
	r, _ := newActionRouter(t, model)

	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := bus.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/extension/bus", 1)
	require.NoError(t, err)
	client := bus.NewClient(conn, bus.DefaultClientOptions())
	client.SetLogger(quiet)
	defer client.Close()

	market, err := bus.Invoke[ai.MarketDataResponse](ctx, client, &models.MarketDataRequest{Symbol: "EURUSD", Timeframe: "4h"})
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", market.Symbol)
	assert.Equal(t, "Range bound.", market.Analysis)
}

func TestBusRejectsForeignOrigins(t *testing.T) {
	r, _ := newActionRouter(t, new(MockModel))
	srv := httptest.NewServer(r)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/extension/bus"

	header := http.Header{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": {"chrome-extension://abcdefghijklmnop"}}
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	ws.Close()
}

func newRecordRouter(t *testing.T, notifier AlertNotifier) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(filepath.Join(t.TempDir(), "handlers.db"), logger.Silent)
	require.NoError(t, err)

	h := NewRecordHandler(services.NewRecordService(db), notifier)
	h.SetLogger(quiet)

	r := gin.New()
	api := r.Group("/api/extension")
	api.POST("/alerts", h.CreateAlert)
	api.GET("/alerts", h.GetAlerts)
	api.POST("/journal", h.CreateJournalEntry)
	api.GET("/journal", h.GetJournal)
	api.GET("/journal/stats", h.GetJournalStats)
	return r
}

func TestAlertEndpoints(t *testing.T) {
	notified := make(chan *models.AlertRecord, 4)
	r := newRecordRouter(t, notifierFunc(func(ctx context.Context, alert *models.AlertRecord) error {
		notified <- alert
		return nil
	}))

	w, env := perform(r, http.MethodPost, "/api/extension/alerts", `{"userId":"u1","symbol":"BTCUSDT","condition":"above","targetPrice":50000}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.AlertRecord
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.NotZero(t, created.ID)
	assert.True(t, created.IsActive)

	select {
	case alert := <-notified:
		assert.Equal(t, "BTCUSDT", alert.Symbol)
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not forwarded to the notifier")
	}

	w, _ = perform(r, http.MethodPost, "/api/extension/alerts", `{"userId":"u1","symbol":"ETHUSDT","condition":"below","targetPrice":2000,"isActive":false}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = perform(r, http.MethodPost, "/api/extension/alerts", `{"userId":"u1","symbol":"ETHUSDT","condition":"sideways","targetPrice":2000}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = perform(r, http.MethodGet, "/api/extension/alerts?userId=u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Alerts []models.AlertRecord `json:"alerts"`
		Total  int64                `json:"total"`
		Page   int                  `json:"page"`
		Limit  int                  `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.Limit)

	w, env = perform(r, http.MethodGet, "/api/extension/alerts?userId=u1&active=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(1), page.Total)

	w, env = perform(r, http.MethodGet, "/api/extension/alerts", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, services.ErrMissingUser.Error(), env.Error)
}

func TestJournalEndpoints(t *testing.T) {
	r := newRecordRouter(t, nil)

	trades := []string{
		`{"userId":"u1","symbol":"BTCUSDT","action":"buy","quantity":1,"entryPrice":100,"exitPrice":110,"pnl":10,"isOpen":false}`,
		`{"userId":"u1","symbol":"BTCUSDT","action":"sell","quantity":1,"entryPrice":110,"exitPrice":115,"pnl":-5,"isOpen":false}`,
		`{"userId":"u1","symbol":"ETHUSDT","action":"buy","quantity":2,"entryPrice":20}`,
	}
	for _, body := range trades {
		w, _ := perform(r, http.MethodPost, "/api/extension/journal", body)
		require.Equal(t, http.StatusCreated, w.Code, body)
	}

	w, _ := perform(r, http.MethodPost, "/api/extension/journal", `{"userId":"u1","symbol":"BTCUSDT","action":"hold","quantity":1,"entryPrice":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := perform(r, http.MethodGet, "/api/extension/journal?userId=u1&limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Entries []models.JournalRecord `json:"entries"`
		Total   int64                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Entries, 2)

	w, env = perform(r, http.MethodGet, "/api/extension/journal/stats?userId=u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.PerformanceStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 2, stats.TotalTrades)
	assert.InDelta(t, 50.0, stats.WinRate, 1e-9)
	assert.InDelta(t, 5.0, stats.TotalPnL, 1e-9)
}
