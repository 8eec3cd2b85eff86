package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Cyvadra/marketminds/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLArea persists items as rows of the storage_items table
type SQLArea struct {
	name string
	db   *gorm.DB
	mu   sync.Mutex
	feed Feed
}

// NewSQLArea creates an area over db. The storage_items table must be migrated.
func NewSQLArea(name string, db *gorm.DB) *SQLArea {
	return &SQLArea{name: name, db: db}
}

func (a *SQLArea) Name() string { return a.name }

func (a *SQLArea) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	return a.load(a.db.WithContext(ctx), keys)
}

func (a *SQLArea) load(tx *gorm.DB, keys []string) (map[string]json.RawMessage, error) {
	var rows []models.StorageItem
	query := tx.Where("area = ?", a.name)
	if len(keys) > 0 {
		query = query.Where("item_key IN ?", keys)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query storage area %s: %w", a.name, err)
	}

	out := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		out[row.Key] = json.RawMessage(row.Value)
	}
	return out, nil
}

func (a *SQLArea) Set(ctx context.Context, items map[string]json.RawMessage) error {
	if err := validateItems(items); err != nil {
		return err
	}
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var cs ChangeSet
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := a.load(tx, keys)
		if err != nil {
			return err
		}
		cs = diffSet(a.name, current, items)

		now := time.Now()
		for key, change := range cs.Changes {
			row := models.StorageItem{
				Area:      a.name,
				Key:       key,
				Value:     string(change.NewValue),
				UpdatedAt: now,
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to write storage key %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.feed.Publish(cs)
	return nil
}

func (a *SQLArea) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var cs ChangeSet
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := a.load(tx, keys)
		if err != nil {
			return err
		}
		cs = diffRemove(a.name, current, keys)
		return tx.Where("area = ? AND item_key IN ?", a.name, keys).Delete(&models.StorageItem{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to remove storage keys: %w", err)
	}

	a.feed.Publish(cs)
	return nil
}

func (a *SQLArea) Subscribe() *Subscription {
	return a.feed.Subscribe()
}

// Close ends all subscriptions; the database handle is owned by the caller
func (a *SQLArea) Close() error {
	a.feed.Close()
	return nil
}
