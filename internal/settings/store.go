package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/Cyvadra/marketminds/internal/storage"
)

// Store reads and writes settings in a synchronized storage area. Reads
// always yield a complete Settings value and writes never return errors to
// the caller; failures are logged and the defaults stand in.
type Store struct {
	area     storage.Area
	defaults Settings
	logger   *log.Logger
}

// NewStore creates a settings store over area
func NewStore(area storage.Area) *Store {
	return &Store{
		area:     area,
		defaults: Defaults(),
		logger:   log.New(log.Writer(), "[Settings] ", log.LstdFlags),
	}
}

// SetLogger sets the logger for the store
func (s *Store) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// SetDefaults replaces the values used for missing or invalid keys
func (s *Store) SetDefaults(defaults Settings) {
	s.defaults = defaults
}

// Defaults returns the values used for missing or invalid keys
func (s *Store) Defaults() Settings {
	return s.defaults
}

// Get returns the settings with defaults filled in for every key that is
// missing, unreadable or not requested. With no keys every key is read.
func (s *Store) Get(ctx context.Context, keys ...string) Settings {
	result := s.defaults
	if len(keys) == 0 {
		keys = Keys
	}

	stored, err := s.area.Get(ctx, keys...)
	if err != nil {
		s.logger.Printf("Failed to read settings: %v", err)
		return result
	}

	for _, key := range keys {
		value, ok := stored[key]
		if !ok {
			continue
		}
		if err := result.apply(key, value, s.defaults); err != nil {
			s.logger.Printf("Ignoring stored value: %v", err)
		}
	}
	return result
}

// GetAll returns every setting
func (s *Store) GetAll(ctx context.Context) Settings {
	return s.Get(ctx)
}

// Update writes the non-nil fields of patch and reports any failure
func (s *Store) Update(ctx context.Context, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	items, err := patch.items()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	if err := s.area.Set(ctx, items); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Set writes the non-nil fields of patch, logging failures
func (s *Store) Set(ctx context.Context, patch Patch) {
	if err := s.Update(ctx, patch); err != nil {
		s.logger.Printf("Settings write dropped: %v", err)
	}
}

// Remove deletes keys so they read back as defaults, logging failures
func (s *Store) Remove(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.area.Remove(ctx, keys...); err != nil {
		s.logger.Printf("Failed to remove settings %v: %v", keys, err)
	}
}

// Initialize writes the default for every key not yet stored. Existing
// values, including ones the user changed, are left alone.
func (s *Store) Initialize(ctx context.Context) error {
	stored, err := s.area.Get(ctx, Keys...)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	defaults, err := json.Marshal(s.defaults)
	if err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(defaults, &all); err != nil {
		return err
	}

	missing := make(map[string]json.RawMessage)
	for _, key := range Keys {
		if _, ok := stored[key]; ok {
			continue
		}
		if value, ok := all[key]; ok {
			missing[key] = value
		}
	}
	if len(missing) == 0 {
		return nil
	}

	if err := s.area.Set(ctx, missing); err != nil {
		return fmt.Errorf("failed to write default settings: %w", err)
	}
	s.logger.Printf("Initialized %d default settings", len(missing))
	return nil
}
