// Package history persists chat transcripts, trading alerts and the trade
// journal in the local storage area.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/Cyvadra/marketminds/internal/models"
	"github.com/Cyvadra/marketminds/internal/settings"
	"github.com/Cyvadra/marketminds/internal/storage"
)

// Local area keys
const (
	KeyChatHistory   = "chatHistory"
	KeyTradingAlerts = "tradingAlerts"
	KeyTradeJournal  = "tradeJournal"
)

// Store holds the per-installation history. The chat limit is read from
// settings on every save so the persisted transcript is always bounded by
// the current maxChatHistory value.
type Store struct {
	area     storage.Area
	settings *settings.Store
	logger   *log.Logger

	// mu serializes read-modify-write cycles issued through this handle
	mu sync.Mutex
}

// NewStore creates a history store over the local area
func NewStore(area storage.Area, settingsStore *settings.Store) *Store {
	return &Store{
		area:     area,
		settings: settingsStore,
		logger:   log.New(log.Writer(), "[History] ", log.LstdFlags),
	}
}

// SetLogger sets the logger for the store
func (s *Store) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// GetChatHistory returns the stored transcript, oldest first
func (s *Store) GetChatHistory(ctx context.Context) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	if err := s.load(ctx, KeyChatHistory, &messages); err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	return messages, nil
}

// SaveChatHistory persists the most recent maxChatHistory messages
func (s *Store) SaveChatHistory(ctx context.Context, messages []models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveChatHistory(ctx, messages)
}

func (s *Store) saveChatHistory(ctx context.Context, messages []models.ChatMessage) error {
	limit := s.settings.Get(ctx, settings.KeyMaxChatHistory).MaxChatHistory
	if len(messages) > limit {
		dropped := len(messages) - limit
		messages = messages[dropped:]
		s.logger.Printf("Chat history truncated: dropped %d oldest messages", dropped)
	}
	return s.store(ctx, KeyChatHistory, messages)
}

// AppendChatMessages adds messages to the end of the stored transcript
func (s *Store) AppendChatMessages(ctx context.Context, messages ...models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.GetChatHistory(ctx)
	if err != nil {
		return err
	}
	return s.saveChatHistory(ctx, append(current, messages...))
}

// ClearChatHistory deletes the transcript key
func (s *Store) ClearChatHistory(ctx context.Context) error {
	if err := s.area.Remove(ctx, KeyChatHistory); err != nil {
		return fmt.Errorf("failed to clear chat history: %w", err)
	}
	return nil
}

// GetAlerts returns the stored trading alerts
func (s *Store) GetAlerts(ctx context.Context) ([]models.TradingAlert, error) {
	var alerts []models.TradingAlert
	if err := s.load(ctx, KeyTradingAlerts, &alerts); err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []models.TradingAlert{}
	}
	return alerts, nil
}

// SaveAlert inserts alert or replaces the stored alert with the same id
func (s *Store) SaveAlert(ctx context.Context, alert models.TradingAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts, err := s.GetAlerts(ctx)
	if err != nil {
		return err
	}
	return s.store(ctx, KeyTradingAlerts, upsert(alerts, alert, alertID))
}

// RemoveAlert deletes the alert with id
func (s *Store) RemoveAlert(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts, err := s.GetAlerts(ctx)
	if err != nil {
		return err
	}
	return s.store(ctx, KeyTradingAlerts, without(alerts, id, alertID))
}

// GetTradeJournal returns the stored journal entries
func (s *Store) GetTradeJournal(ctx context.Context) ([]models.TradeJournalEntry, error) {
	var entries []models.TradeJournalEntry
	if err := s.load(ctx, KeyTradeJournal, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.TradeJournalEntry{}
	}
	return entries, nil
}

// SaveTradeEntry inserts entry or replaces the stored entry with the same id
func (s *Store) SaveTradeEntry(ctx context.Context, entry models.TradeJournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.GetTradeJournal(ctx)
	if err != nil {
		return err
	}
	return s.store(ctx, KeyTradeJournal, upsert(entries, entry, entryID))
}

// RemoveTradeEntry deletes the journal entry with id
func (s *Store) RemoveTradeEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.GetTradeJournal(ctx)
	if err != nil {
		return err
	}
	return s.store(ctx, KeyTradeJournal, without(entries, id, entryID))
}

// GetPerformanceStats computes statistics over the current journal
func (s *Store) GetPerformanceStats(ctx context.Context) (models.PerformanceStats, error) {
	entries, err := s.GetTradeJournal(ctx)
	if err != nil {
		return models.PerformanceStats{}, err
	}
	return ComputePerformanceStats(entries), nil
}

func (s *Store) load(ctx context.Context, key string, v any) error {
	items, err := s.area.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	raw, ok := items[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) store(ctx context.Context, key string, v any) error {
	raw, err := storage.Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.area.Set(ctx, map[string]json.RawMessage{key: raw}); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func alertID(a models.TradingAlert) string      { return a.ID }
func entryID(e models.TradeJournalEntry) string { return e.ID }

// upsert replaces the element sharing item's id in place, or appends item
func upsert[T any](items []T, item T, id func(T) string) []T {
	key := id(item)
	for i := range items {
		if id(items[i]) == key {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

func without[T any](items []T, key string, id func(T) string) []T {
	kept := items[:0]
	for _, item := range items {
		if id(item) != key {
			kept = append(kept, item)
		}
	}
	return kept
}
