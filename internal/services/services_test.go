package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Cyvadra/marketminds/internal/ai"
	"github.com/Cyvadra/marketminds/internal/bus"
	"github.com/Cyvadra/marketminds/internal/config"
	"github.com/Cyvadra/marketminds/internal/database"
	"github.com/Cyvadra/marketminds/internal/models"
	"github.com/Cyvadra/marketminds/internal/settings"
	"github.com/Cyvadra/marketminds/internal/storage"
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

func newSettings() *settings.Store {
	s := settings.NewStore(storage.NewMemoryArea(storage.AreaSync))
	s.SetLogger(quiet)
	return s
}

func serveActions(t *testing.T, model ai.Model) *bus.Client {
	t.Helper()
	orchestrator := ai.NewOrchestrator(model, ai.Config{Timeout: time.Second})
	orchestrator.SetLogger(quiet)

	actions := NewActionService(orchestrator)
	actions.SetLogger(quiet)

	server := bus.NewServer(bus.ServerOptions{})
	server.SetLogger(quiet)
	actions.Register(server)
	assert.Len(t, server.Actions(), 6)

	ctx, cancel := context.WithCancel(context.Background())
	client := bus.Connect(ctx, server, bus.ClientOptions{})
	client.SetLogger(quiet)
	t.Cleanup(func() {
		client.Close()
		cancel()
	})
	return client
}

func TestActionsOverBus(t *testing.T) {
	model := new(MockModel)
	model.On("Generate", mock.Anything, mock.Anything).Return(&ai.GenerateResponse{Text: "Looks strong."}, nil)
	client := serveActions(t, model)
	ctx := context.Background()

	chat, err := bus.Invoke[ai.ChatResponse](ctx, client, &models.ChatRequest{Message: "BTC?"})
	require.NoError(t, err)
	assert.Equal(t, "Looks strong.", chat.Text)

	risk, err := bus.Invoke[ai.RiskManagementResponse](ctx, client, &models.RiskManagementRequest{
		AccountSize: 5000, RiskPercentage: 2, TradeType: "swing",
	})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, risk.MaxRiskAmount, 1e-9)
	assert.Nil(t, risk.PositionSize)

	market, err := bus.Invoke[ai.MarketDataResponse](ctx, client, &models.MarketDataRequest{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, "1h", market.Timeframe)
	assert.Equal(t, ai.MarketDataNote, market.Note)
}

func TestActionFailureReachesClient(t *testing.T) {
	model := new(MockModel)
	model.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("quota exhausted"))
	client := serveActions(t, model)

	_, err := client.Send(context.Background(), &models.ChatRequest{Message: "hello"})
	var remote *bus.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "Chat request failed: quota exhausted", remote.Message)
}

func TestAPIKeyResolver(t *testing.T) {
	ctx := context.Background()
	store := newSettings()
	resolve := APIKeyResolver(store, "configured-key")

	assert.Equal(t, "configured-key", resolve(ctx))

	key := "user-key"
	store.Set(ctx, settings.Patch{GeminiAPIKey: &key})
	assert.Equal(t, "user-key", resolve(ctx))

	store.Remove(ctx, settings.KeyGeminiAPIKey)
	assert.Equal(t, "configured-key", resolve(ctx))
}

func TestNotifyAlert(t *testing.T) {
	var webhookCalls, telegramCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hook":
			var alert models.AlertRecord
			if json.NewDecoder(r.Body).Decode(&alert) == nil && alert.Symbol == "BTCUSDT" {
				webhookCalls.Add(1)
			}
		case "/bottoken123/sendMessage":
			telegramCalls.Add(1)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store := newSettings()
	notify := NewNotifyService(store)
	notify.SetLogger(quiet)
	notify.telegramURL = srv.URL
	notify.SetConfig(&config.Config{Endpoints: []config.EndpointConfig{
		{Name: "hook", Type: "webhook", URL: srv.URL + "/hook", IsActive: true},
		{Name: "tg", Type: "telegram", Token: "token123", ChatID: "42", IsActive: true},
		{Name: "off", Type: "webhook", URL: srv.URL + "/missing", IsActive: false},
	}})

	ctx := context.Background()
	alert := &models.AlertRecord{UserID: "u1", Symbol: "BTCUSDT", Condition: "above", TargetPrice: 70000, CreatedAt: time.Now()}

	require.NoError(t, notify.NotifyAlert(ctx, alert))
	assert.Equal(t, int32(1), webhookCalls.Load())
	assert.Equal(t, int32(1), telegramCalls.Load())

	off := false
	store.Set(ctx, settings.Patch{Notifications: &off})
	require.NoError(t, notify.NotifyAlert(ctx, alert))
	assert.Equal(t, int32(1), webhookCalls.Load())

	t.Run("failing endpoint is reported", func(t *testing.T) {
		on := true
		store.Set(ctx, settings.Patch{Notifications: &on})
		notify.SetConfig(&config.Config{Endpoints: []config.EndpointConfig{
			{Name: "broken", Type: "webhook", URL: srv.URL + "/missing", IsActive: true},
			{Name: "odd", Type: "pager", IsActive: true},
		}})
		err := notify.NotifyAlert(ctx, alert)
		assert.ErrorContains(t, err, "broken: webhook returned status 404")
		assert.ErrorContains(t, err, "unsupported endpoint type: pager")
	})
}

func TestFormatAlert(t *testing.T) {
	price := 69500.5
	alert := &models.AlertRecord{Symbol: "BTCUSDT", Condition: "crosses", TargetPrice: 70000, CurrentPrice: &price,
		CreatedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}

	html := formatAlert(alert, true)
	assert.Contains(t, html, "<b>Symbol:</b> BTCUSDT")
	assert.Contains(t, html, "CROSSES")
	assert.Contains(t, html, "69500.5")
	assert.Contains(t, html, "2024-05-01 08:00:00")
	assert.NotContains(t, formatAlert(alert, false), "<b>")
}

func TestRecordService(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "records.db"), logger.Silent)
	require.NoError(t, err)
	records := NewRecordService(db)
	ctx := context.Background()

	assert.ErrorIs(t, records.SaveAlert(ctx, &models.AlertRecord{Symbol: "X"}), ErrMissingUser)

	for i, symbol := range []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"} {
		require.NoError(t, records.SaveAlert(ctx, &models.AlertRecord{
			UserID: "u1", Symbol: symbol, Condition: "above", TargetPrice: 100, IsActive: i != 1,
			CreatedAt: time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
		}))
	}
	require.NoError(t, records.SaveAlert(ctx, &models.AlertRecord{UserID: "u2", Symbol: "DOGEUSDT", Condition: "below", TargetPrice: 0.1}))

	alerts, total, err := records.GetAlerts(ctx, "u1", 1, 2, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, alerts, 2)
	assert.Equal(t, "SOLUSDT", alerts[0].Symbol)

	alerts, total, err = records.GetAlerts(ctx, "u1", 1, 10, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, alerts, 2)

	_, _, err = records.GetAlerts(ctx, "", 1, 10, false)
	assert.ErrorIs(t, err, ErrMissingUser)

	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, pnl := range []float64{100, -40, 20, -80, 50} {
		pnl := pnl
		closedAt := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, records.SaveJournalEntry(ctx, &models.JournalRecord{
			UserID: "u1", Symbol: "BTCUSDT", Action: models.TradeActionBuy, Quantity: 1, EntryPrice: 100,
			PnL: &pnl, OpenedAt: base, ClosedAt: &closedAt,
		}))
	}
	require.NoError(t, records.SaveJournalEntry(ctx, &models.JournalRecord{
		UserID: "u1", Symbol: "ETHUSDT", Action: models.TradeActionSell, Quantity: 1, EntryPrice: 10, IsOpen: true,
	}))

	entries, total, err := records.GetJournal(ctx, "u1", 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
	assert.Len(t, entries, 6)

	stats, err := records.GetJournalStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalTrades)
	assert.InDelta(t, 100.0, stats.MaxDrawdown, 1e-9)
	assert.InDelta(t, 60.0, stats.WinRate, 1e-9)
}

func TestOpenAreas(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Storage.Sync = config.AreaConfig{Backend: config.BackendMemory, Quota: true}
	cfg.Storage.Local = config.AreaConfig{Backend: config.BackendFile, Path: filepath.Join(t.TempDir(), "local.json")}

	areas, err := OpenAreas(ctx, cfg, nil)
	require.NoError(t, err)
	defer areas.Close()

	assert.Equal(t, storage.AreaSync, areas.Sync.Name())
	assert.Equal(t, storage.AreaLocal, areas.Local.Name())

	big, err := storage.Encode(strings.Repeat("x", storage.SyncQuota.BytesPerItem))
	require.NoError(t, err)
	err = areas.Sync.Set(ctx, map[string]json.RawMessage{"blob": big})
	assert.ErrorIs(t, err, storage.ErrQuotaExceeded)
	require.NoError(t, areas.Local.Set(ctx, map[string]json.RawMessage{"blob": big}))

	cfg.Storage.Sync = config.AreaConfig{Backend: config.BackendSQLite}
	_, err = OpenAreas(ctx, cfg, nil)
	assert.Error(t, err)
}
