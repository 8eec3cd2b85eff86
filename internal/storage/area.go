// Package storage provides the key/value areas that settings and history are
// persisted in, together with the change feed every live context observes.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

// Area names shared by all contexts of one installation
const (
	AreaSync  = "sync"
	AreaLocal = "local"
)

var (
	ErrClosed        = errors.New("storage area closed")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Area is a key/value store holding JSON values
type Area interface {
	// Name returns the area name carried on change sets
	Name() string

	// Get returns the stored values for keys; missing keys are absent from
	// the result. With no keys every item is returned.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)

	// Set writes items and publishes one change set for the keys that changed
	Set(ctx context.Context, items map[string]json.RawMessage) error

	// Remove deletes keys and publishes their removal
	Remove(ctx context.Context, keys ...string) error

	// Subscribe registers a listener for change sets
	Subscribe() *Subscription
}

// Change is the transition of a single key
type Change struct {
	OldValue json.RawMessage `json:"oldValue,omitempty"`
	NewValue json.RawMessage `json:"newValue,omitempty"`
}

// Removed reports whether the key no longer exists
func (c Change) Removed() bool {
	return c.NewValue == nil
}

// ChangeSet groups the changes applied by one write
type ChangeSet struct {
	Area    string            `json:"area"`
	Changes map[string]Change `json:"changes"`
}

// Encode marshals a Go value into a storage value
func Encode(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// Decode unmarshals a stored value into v
func Decode(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}

// diffSet builds the change set for writing items over current values.
// Keys whose stored value is unchanged are left out.
func diffSet(area string, current, items map[string]json.RawMessage) ChangeSet {
	cs := ChangeSet{Area: area, Changes: make(map[string]Change)}
	for key, value := range items {
		old, exists := current[key]
		if exists && sameJSON(old, value) {
			continue
		}
		change := Change{NewValue: cloneRaw(value)}
		if exists {
			change.OldValue = cloneRaw(old)
		}
		cs.Changes[key] = change
	}
	return cs
}

// diffRemove builds the change set for removing keys
func diffRemove(area string, current map[string]json.RawMessage, keys []string) ChangeSet {
	cs := ChangeSet{Area: area, Changes: make(map[string]Change)}
	for _, key := range keys {
		if old, exists := current[key]; exists {
			cs.Changes[key] = Change{OldValue: cloneRaw(old)}
		}
	}
	return cs
}

func sameJSON(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}

func validateItems(items map[string]json.RawMessage) error {
	for key, value := range items {
		if key == "" {
			return errors.New("storage key cannot be empty")
		}
		if !json.Valid(value) {
			return errors.New("storage value for " + key + " is not valid JSON")
		}
	}
	return nil
}
