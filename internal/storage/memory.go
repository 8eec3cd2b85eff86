package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryArea keeps items in process memory
type MemoryArea struct {
	name  string
	mu    sync.RWMutex
	items map[string]json.RawMessage
	feed  Feed
}

// NewMemoryArea creates an empty in-memory area
func NewMemoryArea(name string) *MemoryArea {
	return &MemoryArea{
		name:  name,
		items: make(map[string]json.RawMessage),
	}
}

func (a *MemoryArea) Name() string { return a.name }

func (a *MemoryArea) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return pick(a.items, keys), nil
}

func (a *MemoryArea) Set(ctx context.Context, items map[string]json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateItems(items); err != nil {
		return err
	}

	a.mu.Lock()
	cs := diffSet(a.name, a.items, items)
	for key, change := range cs.Changes {
		a.items[key] = change.NewValue
	}
	// Publishing under the lock keeps change sets in write order.
	a.feed.Publish(cs)
	a.mu.Unlock()
	return nil
}

func (a *MemoryArea) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	cs := diffRemove(a.name, a.items, keys)
	for key := range cs.Changes {
		delete(a.items, key)
	}
	a.feed.Publish(cs)
	a.mu.Unlock()
	return nil
}

func (a *MemoryArea) Subscribe() *Subscription {
	return a.feed.Subscribe()
}

// Close ends all subscriptions
func (a *MemoryArea) Close() error {
	a.feed.Close()
	return nil
}

func pick(items map[string]json.RawMessage, keys []string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	if len(keys) == 0 {
		for key, value := range items {
			out[key] = cloneRaw(value)
		}
		return out
	}
	for _, key := range keys {
		if value, ok := items[key]; ok {
			out[key] = cloneRaw(value)
		}
	}
	return out
}
