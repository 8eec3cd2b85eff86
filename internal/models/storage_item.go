package models

import "time"

// StorageItem is one key of a storage area persisted in SQL
type StorageItem struct {
	Area      string    `gorm:"primaryKey;size:32"`
	Key       string    `gorm:"column:item_key;primaryKey;size:128"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name for storage items
func (StorageItem) TableName() string {
	return "storage_items"
}
