package models

import (
	"time"

	"gorm.io/gorm"
)

// TradeAction is the direction of a journaled trade
type TradeAction string

const (
	TradeActionBuy  TradeAction = "buy"
	TradeActionSell TradeAction = "sell"
)

// TradeJournalEntry represents one trade in the local trading journal
type TradeJournalEntry struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Action     TradeAction `json:"action"`
	Quantity   float64     `json:"quantity"`
	EntryPrice float64     `json:"entryPrice"`
	ExitPrice  *float64    `json:"exitPrice,omitempty"`
	StopLoss   *float64    `json:"stopLoss,omitempty"`
	TakeProfit *float64    `json:"takeProfit,omitempty"`
	Notes      string      `json:"notes"`
	Tags       []string    `json:"tags"`
	Timestamp  time.Time   `json:"timestamp"`
	IsOpen     bool        `json:"isOpen"`
	PnL        *float64    `json:"pnl,omitempty"`
}

// Closed reports whether the entry takes part in performance statistics
func (e *TradeJournalEntry) Closed() bool {
	return !e.IsOpen && e.PnL != nil
}

// PerformanceStats is derived from the closed journal entries and never stored
type PerformanceStats struct {
	TotalTrades  int     `json:"totalTrades"`
	WinRate      float64 `json:"winRate"`
	TotalPnL     float64 `json:"totalPnL"`
	AverageWin   float64 `json:"averageWin"`
	AverageLoss  float64 `json:"averageLoss"`
	ProfitFactor float64 `json:"profitFactor"`
	MaxDrawdown  float64 `json:"maxDrawdown"`
}

// JournalRecord is the backend row for a trade journal entry
type JournalRecord struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	UserID     string         `json:"userId" gorm:"index;not null"`
	Symbol     string         `json:"symbol" gorm:"not null"`
	Action     TradeAction    `json:"action" gorm:"not null"`
	Quantity   float64        `json:"quantity" gorm:"not null"`
	EntryPrice float64        `json:"entryPrice" gorm:"not null"`
	ExitPrice  *float64       `json:"exitPrice,omitempty"`
	StopLoss   *float64       `json:"stopLoss,omitempty"`
	TakeProfit *float64       `json:"takeProfit,omitempty"`
	PnL        *float64       `json:"pnl,omitempty"`
	PnLPercent *float64       `json:"pnlPercent,omitempty"`
	Notes      string         `json:"notes" gorm:"type:text"`
	Tags       []string       `json:"tags" gorm:"serializer:json"`
	IsOpen     bool           `json:"isOpen"`
	OpenedAt   time.Time      `json:"openedAt"`
	ClosedAt   *time.Time     `json:"closedAt,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName pins the table name used by the backend schema
func (JournalRecord) TableName() string {
	return "trade_journal"
}
