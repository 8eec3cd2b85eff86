package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileArea persists items as one JSON document on disk
type FileArea struct {
	name  string
	path  string
	mu    sync.RWMutex
	items map[string]json.RawMessage
	feed  Feed
}

// NewFileArea opens (or creates) the area stored at path
func NewFileArea(name, path string) (*FileArea, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	a := &FileArea{
		name:  name,
		path:  path,
		items: make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &a.items); err != nil {
			return nil, fmt.Errorf("failed to parse storage file %s: %w", path, err)
		}
	}

	return a, nil
}

func (a *FileArea) Name() string { return a.name }

func (a *FileArea) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return pick(a.items, keys), nil
}

func (a *FileArea) Set(ctx context.Context, items map[string]json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateItems(items); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	cs := diffSet(a.name, a.items, items)
	if len(cs.Changes) == 0 {
		return nil
	}
	next := pick(a.items, nil)
	for key, change := range cs.Changes {
		next[key] = change.NewValue
	}
	if err := a.flush(next); err != nil {
		return err
	}
	a.items = next
	a.feed.Publish(cs)
	return nil
}

func (a *FileArea) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	cs := diffRemove(a.name, a.items, keys)
	if len(cs.Changes) == 0 {
		return nil
	}
	next := pick(a.items, nil)
	for key := range cs.Changes {
		delete(next, key)
	}
	if err := a.flush(next); err != nil {
		return err
	}
	a.items = next
	a.feed.Publish(cs)
	return nil
}

func (a *FileArea) Subscribe() *Subscription {
	return a.feed.Subscribe()
}

// Close ends all subscriptions
func (a *FileArea) Close() error {
	a.feed.Close()
	return nil
}

// flush writes items to a temp file and renames it over the area file
func (a *FileArea) flush(items map[string]json.RawMessage) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal storage area: %w", err)
	}

	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	if err := os.Rename(tmp, a.path); err != nil {
		return fmt.Errorf("failed to replace storage file: %w", err)
	}
	return nil
}
