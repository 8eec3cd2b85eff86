package history

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/Cyvadra/marketminds/internal/models"
	"github.com/Cyvadra/marketminds/internal/settings"
	"github.com/Cyvadra/marketminds/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *settings.Store) {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)

	settingsStore := settings.NewStore(storage.NewMemoryArea(storage.AreaSync))
	settingsStore.SetLogger(quiet)

	store := NewStore(storage.NewMemoryArea(storage.AreaLocal), settingsStore)
	store.SetLogger(quiet)
	return store, settingsStore
}

func messages(n int) []models.ChatMessage {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.ChatMessage, n)
	for i := range out {
		out[i] = models.NewChatMessage(models.RoleUser, fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Second))
	}
	return out
}

func pnl(v float64) *float64 { return &v }

func TestChatHistoryIsBounded(t *testing.T) {
	ctx := context.Background()
	store, settingsStore := newTestStore(t)

	limit := 5
	settingsStore.Set(ctx, settings.Patch{MaxChatHistory: &limit})

	for _, n := range []int{1, 4, 5, 6, 12} {
		input := messages(n)
		require.NoError(t, store.SaveChatHistory(ctx, input))

		got, err := store.GetChatHistory(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), limit)

		// The most recent messages survive in order.
		if n > limit {
			assert.Equal(t, input[n-limit:], got)
		} else {
			assert.Equal(t, input, got)
		}
	}

	t.Run("lowering the limit applies on the next write", func(t *testing.T) {
		limit := 2
		settingsStore.Set(ctx, settings.Patch{MaxChatHistory: &limit})
		require.NoError(t, store.AppendChatMessages(ctx, messages(1)...))

		got, err := store.GetChatHistory(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestAppendChatMessages(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	batch := messages(3)
	require.NoError(t, store.AppendChatMessages(ctx, batch[0]))
	require.NoError(t, store.AppendChatMessages(ctx, batch[1:]...))

	got, err := store.GetChatHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, batch, got)
}

func TestClearChatHistory(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	empty, err := store.GetChatHistory(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	require.NoError(t, store.SaveChatHistory(ctx, messages(3)))
	require.NoError(t, store.ClearChatHistory(ctx))

	got, err := store.GetChatHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	raw, err := store.area.Get(ctx, KeyChatHistory)
	require.NoError(t, err)
	assert.NotContains(t, raw, KeyChatHistory)
}

func TestTradeEntryUpsert(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []models.TradeJournalEntry{
		{ID: "a", Symbol: "BTCUSDT", Action: models.TradeActionBuy, Quantity: 1, EntryPrice: 60000, IsOpen: true, Timestamp: now},
		{ID: "b", Symbol: "ETHUSDT", Action: models.TradeActionSell, Quantity: 2, EntryPrice: 3000, IsOpen: true, Timestamp: now},
		{ID: "c", Symbol: "SOLUSDT", Action: models.TradeActionBuy, Quantity: 10, EntryPrice: 150, IsOpen: true, Timestamp: now},
	}
	for _, e := range entries {
		require.NoError(t, store.SaveTradeEntry(ctx, e))
	}

	updated := entries[1]
	updated.IsOpen = false
	updated.ExitPrice = pnl(2900)
	updated.PnL = pnl(200)
	updated.Tags = []string{"swing"}
	require.NoError(t, store.SaveTradeEntry(ctx, updated))

	got, err := store.GetTradeJournal(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[1].ID)
	assert.False(t, got[1].IsOpen)
	assert.Equal(t, 200.0, *got[1].PnL)
	assert.Equal(t, []string{"swing"}, got[1].Tags)

	require.NoError(t, store.RemoveTradeEntry(ctx, "a"))
	got, err = store.GetTradeJournal(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestAlertUpsert(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	alert := models.TradingAlert{ID: "x", Symbol: "BTCUSDT", Condition: "above", TargetPrice: 70000, IsActive: true}
	require.NoError(t, store.SaveAlert(ctx, alert))
	require.NoError(t, store.SaveAlert(ctx, models.TradingAlert{ID: "y", Symbol: "ETHUSDT", Condition: "below", TargetPrice: 2500, IsActive: true}))

	alert.IsActive = false
	require.NoError(t, store.SaveAlert(ctx, alert))

	alerts, err := store.GetAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "x", alerts[0].ID)
	assert.False(t, alerts[0].IsActive)

	require.NoError(t, store.RemoveAlert(ctx, "x"))
	require.NoError(t, store.RemoveAlert(ctx, "missing"))
	alerts, err = store.GetAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "y", alerts[0].ID)
}

func TestComputePerformanceStats(t *testing.T) {
	t.Run("no closed trades", func(t *testing.T) {
		assert.Equal(t, models.PerformanceStats{}, ComputePerformanceStats(nil))

		open := []models.TradeJournalEntry{
			{ID: "1", IsOpen: true, PnL: pnl(10)},
			{ID: "2", IsOpen: false},
		}
		assert.Equal(t, models.PerformanceStats{}, ComputePerformanceStats(open))
	})

	t.Run("drawdown replay", func(t *testing.T) {
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		values := []float64{100, -40, 20, -80, 50}

		// Stored out of order; the replay sorts by timestamp.
		var entries []models.TradeJournalEntry
		for i := len(values) - 1; i >= 0; i-- {
			entries = append(entries, models.TradeJournalEntry{
				ID:        fmt.Sprintf("t%d", i),
				Timestamp: base.Add(time.Duration(i) * time.Hour),
				PnL:       pnl(values[i]),
			})
		}
		entries = append(entries, models.TradeJournalEntry{ID: "open", IsOpen: true, PnL: pnl(-500), Timestamp: base})

		stats := ComputePerformanceStats(entries)
		assert.Equal(t, 5, stats.TotalTrades)
		assert.InDelta(t, 60.0, stats.WinRate, 1e-9)
		assert.InDelta(t, 50.0, stats.TotalPnL, 1e-9)
		assert.InDelta(t, 100.0, stats.MaxDrawdown, 1e-9)
		assert.InDelta(t, 170.0/120.0, stats.ProfitFactor, 1e-9)
		assert.InDelta(t, 170.0/3, stats.AverageWin, 1e-9)
		assert.InDelta(t, 60.0, stats.AverageLoss, 1e-9)
	})

	t.Run("zero pnl and no losses", func(t *testing.T) {
		entries := []models.TradeJournalEntry{
			{ID: "1", PnL: pnl(0)},
			{ID: "2", PnL: pnl(30)},
		}
		stats := ComputePerformanceStats(entries)
		assert.Equal(t, 2, stats.TotalTrades)
		assert.InDelta(t, 50.0, stats.WinRate, 1e-9)
		assert.Zero(t, stats.ProfitFactor)
		assert.Zero(t, stats.AverageLoss)
		assert.Zero(t, stats.MaxDrawdown)
	})
}

func TestGetPerformanceStatsTracksJournal(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.SaveTradeEntry(ctx, models.TradeJournalEntry{ID: "1", PnL: pnl(40)}))
	stats, err := store.GetPerformanceStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalTrades)

	require.NoError(t, store.SaveTradeEntry(ctx, models.TradeJournalEntry{ID: "1", PnL: pnl(-40)}))
	stats, err = store.GetPerformanceStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalTrades)
	assert.InDelta(t, -40.0, stats.TotalPnL, 1e-9)
	assert.InDelta(t, 40.0, stats.MaxDrawdown, 1e-9)
}
