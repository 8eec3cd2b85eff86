// Package settings holds the replicated user configuration of one
// installation and keeps live projections of it current.
package settings

import (
	"encoding/json"
	"fmt"
)

// Personality selects the tone of assistant replies
type Personality string

const (
	PersonalityProfessional Personality = "professional"
	PersonalityEducational  Personality = "educational"
	PersonalityAggressive   Personality = "aggressive"
	PersonalityConservative Personality = "conservative"
)

// Theme selects the widget color scheme
type Theme string

const (
	ThemeGalaxy Theme = "galaxy"
	ThemeDark   Theme = "dark"
	ThemeBlue   Theme = "blue"
)

// Position is the floating button location. Negative coordinates are
// offsets from the right and bottom edges of the viewport.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Persisted keys of the synchronized area
const (
	KeyEnabled        = "isEnabled"
	KeyPosition       = "position"
	KeyAIPersonality  = "aiPersonality"
	KeyNotifications  = "notifications"
	KeyGeminiAPIKey   = "geminiApiKey"
	KeyTheme          = "theme"
	KeyAutoSaveChats  = "autoSaveChats"
	KeyMaxChatHistory = "maxChatHistory"
)

// Keys lists every settings key
var Keys = []string{
	KeyEnabled,
	KeyPosition,
	KeyAIPersonality,
	KeyNotifications,
	KeyGeminiAPIKey,
	KeyTheme,
	KeyAutoSaveChats,
	KeyMaxChatHistory,
}

// Settings is the user configuration
type Settings struct {
	Enabled        bool        `json:"isEnabled"`
	Position       Position    `json:"position"`
	AIPersonality  Personality `json:"aiPersonality"`
	Notifications  bool        `json:"notifications"`
	GeminiAPIKey   string      `json:"geminiApiKey,omitempty"`
	Theme          Theme       `json:"theme"`
	AutoSaveChats  bool        `json:"autoSaveChats"`
	MaxChatHistory int         `json:"maxChatHistory"`
}

// Defaults returns the settings of a fresh installation
func Defaults() Settings {
	return Settings{
		Enabled:        true,
		Position:       Position{X: -80, Y: -80},
		AIPersonality:  PersonalityProfessional,
		Notifications:  true,
		Theme:          ThemeGalaxy,
		AutoSaveChats:  true,
		MaxChatHistory: 100,
	}
}

// Patch is a partial settings write; nil fields are left untouched
type Patch struct {
	Enabled        *bool
	Position       *Position
	AIPersonality  *Personality
	Notifications  *bool
	GeminiAPIKey   *string
	Theme          *Theme
	AutoSaveChats  *bool
	MaxChatHistory *int
}

// Validate rejects out-of-range values
func (p Patch) Validate() error {
	if p.AIPersonality != nil && !validPersonality(*p.AIPersonality) {
		return fmt.Errorf("invalid ai personality: %q", *p.AIPersonality)
	}
	if p.Theme != nil && !validTheme(*p.Theme) {
		return fmt.Errorf("invalid theme: %q", *p.Theme)
	}
	if p.MaxChatHistory != nil && *p.MaxChatHistory <= 0 {
		return fmt.Errorf("max chat history must be positive, got %d", *p.MaxChatHistory)
	}
	return nil
}

// items encodes the patch as storage values keyed by setting name
func (p Patch) items() (map[string]json.RawMessage, error) {
	fields := map[string]any{}
	if p.Enabled != nil {
		fields[KeyEnabled] = *p.Enabled
	}
	if p.Position != nil {
		fields[KeyPosition] = *p.Position
	}
	if p.AIPersonality != nil {
		fields[KeyAIPersonality] = *p.AIPersonality
	}
	if p.Notifications != nil {
		fields[KeyNotifications] = *p.Notifications
	}
	if p.GeminiAPIKey != nil {
		fields[KeyGeminiAPIKey] = *p.GeminiAPIKey
	}
	if p.Theme != nil {
		fields[KeyTheme] = *p.Theme
	}
	if p.AutoSaveChats != nil {
		fields[KeyAutoSaveChats] = *p.AutoSaveChats
	}
	if p.MaxChatHistory != nil {
		fields[KeyMaxChatHistory] = *p.MaxChatHistory
	}

	items := make(map[string]json.RawMessage, len(fields))
	for key, value := range fields {
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		items[key] = data
	}
	return items, nil
}

// apply decodes one stored value into s. A nil value restores the default.
func (s *Settings) apply(key string, value json.RawMessage, defaults Settings) error {
	if value == nil {
		s.reset(key, defaults)
		return nil
	}

	next := *s
	var err error
	switch key {
	case KeyEnabled:
		err = json.Unmarshal(value, &next.Enabled)
	case KeyPosition:
		err = json.Unmarshal(value, &next.Position)
	case KeyAIPersonality:
		if err = json.Unmarshal(value, &next.AIPersonality); err == nil && !validPersonality(next.AIPersonality) {
			err = fmt.Errorf("invalid ai personality: %q", next.AIPersonality)
		}
	case KeyNotifications:
		err = json.Unmarshal(value, &next.Notifications)
	case KeyGeminiAPIKey:
		err = json.Unmarshal(value, &next.GeminiAPIKey)
	case KeyTheme:
		if err = json.Unmarshal(value, &next.Theme); err == nil && !validTheme(next.Theme) {
			err = fmt.Errorf("invalid theme: %q", next.Theme)
		}
	case KeyAutoSaveChats:
		err = json.Unmarshal(value, &next.AutoSaveChats)
	case KeyMaxChatHistory:
		if err = json.Unmarshal(value, &next.MaxChatHistory); err == nil && next.MaxChatHistory <= 0 {
			err = fmt.Errorf("max chat history must be positive, got %d", next.MaxChatHistory)
		}
	default:
		return nil
	}

	if err != nil {
		s.reset(key, defaults)
		return fmt.Errorf("setting %s: %w", key, err)
	}
	*s = next
	return nil
}

func (s *Settings) reset(key string, defaults Settings) {
	switch key {
	case KeyEnabled:
		s.Enabled = defaults.Enabled
	case KeyPosition:
		s.Position = defaults.Position
	case KeyAIPersonality:
		s.AIPersonality = defaults.AIPersonality
	case KeyNotifications:
		s.Notifications = defaults.Notifications
	case KeyGeminiAPIKey:
		s.GeminiAPIKey = defaults.GeminiAPIKey
	case KeyTheme:
		s.Theme = defaults.Theme
	case KeyAutoSaveChats:
		s.AutoSaveChats = defaults.AutoSaveChats
	case KeyMaxChatHistory:
		s.MaxChatHistory = defaults.MaxChatHistory
	}
}

func validPersonality(p Personality) bool {
	switch p {
	case PersonalityProfessional, PersonalityEducational, PersonalityAggressive, PersonalityConservative:
		return true
	}
	return false
}

func validTheme(t Theme) bool {
	switch t {
	case ThemeGalaxy, ThemeDark, ThemeBlue:
		return true
	}
	return false
}
