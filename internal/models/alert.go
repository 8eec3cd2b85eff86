package models

import (
	"time"

	"gorm.io/gorm"
)

// TradingAlert represents a price alert kept in local storage
type TradingAlert struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Condition    string    `json:"condition"` // above, below, crosses
	TargetPrice  float64   `json:"targetPrice"`
	CurrentPrice float64   `json:"currentPrice"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AlertRecord is the backend row for a trading alert
type AlertRecord struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	UserID       string         `json:"userId" gorm:"index;not null"`
	Symbol       string         `json:"symbol" gorm:"not null"`
	Condition    string         `json:"condition" gorm:"not null"`
	TargetPrice  float64        `json:"targetPrice" gorm:"not null"`
	CurrentPrice *float64       `json:"currentPrice,omitempty"`
	IsActive     bool           `json:"isActive"`
	IsTriggered  bool           `json:"isTriggered"`
	TriggeredAt  *time.Time     `json:"triggeredAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName pins the table name used by the backend schema
func (AlertRecord) TableName() string {
	return "trading_alerts"
}
