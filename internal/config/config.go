package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Cyvadra/marketminds/internal/ai"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Storage   StorageConfig    `yaml:"storage"`
	Redis     RedisConfig      `yaml:"redis"`
	AI        AIConfig         `yaml:"ai"`
	Bus       BusConfig        `yaml:"bus"`
	Endpoints []EndpointConfig `yaml:"endpoints,omitempty"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Storage backends
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// StorageConfig selects where the sync and local areas live
type StorageConfig struct {
	Sync  AreaConfig `yaml:"sync"`
	Local AreaConfig `yaml:"local"`
}

// AreaConfig configures one storage area
type AreaConfig struct {
	Backend string `yaml:"backend"` // memory, file, sqlite, redis
	Path    string `yaml:"path,omitempty"`
	Quota   bool   `yaml:"quota"`
}

// RedisConfig represents the redis connection used by the redis backend
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// AIConfig configures the Gemini collaborator
type AIConfig struct {
	APIKey    string `yaml:"api_key"`
	ai.Config `yaml:",inline"`
}

// BusConfig bounds request traffic on the message bus
type BusConfig struct {
	ClientMaxInFlight int64         `yaml:"client_max_in_flight"`
	ServerMaxInFlight int64         `yaml:"server_max_in_flight"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	// AllowedOrigins lists the browser origins that may open the websocket
	// bus; a trailing "*" matches any suffix
	AllowedOrigins    []string      `yaml:"allowed_origins"`
}

// EndpointConfig represents a notification endpoint
type EndpointConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // telegram, wechat, dingtalk, webhook
	URL      string `yaml:"url"`
	Token    string `yaml:"token,omitempty"`
	ChatID   string `yaml:"chat_id,omitempty"`
	IsActive bool   `yaml:"is_active"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "localhost", Port: "8080"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "marketminds.db"},
		Storage: StorageConfig{
			Sync:  AreaConfig{Backend: BackendSQLite, Quota: true},
			Local: AreaConfig{Backend: BackendFile, Path: "data/local.json", Quota: true},
		},
		Redis: RedisConfig{KeyPrefix: "marketminds"},
		AI:    AIConfig{Config: ai.DefaultConfig()},
		Bus: BusConfig{
			ClientMaxInFlight: 4,
			ServerMaxInFlight: 16,
			RequestTimeout:    90 * time.Second,
			AllowedOrigins:    []string{"chrome-extension://*", "moz-extension://*"},
		},
	}
}

// LoadConfig loads configuration from a YAML file. Fields the file leaves
// out keep their default values. The result is not validated yet: call
// ApplyEnv, which validates once environment overrides are in place.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filename string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from the environment
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", v, err)
		}
		c.Server.Port = v
	}
	return c.Validate()
}

// Validate checks that the configuration can be served
func (c *Config) Validate() error {
	for _, area := range []struct {
		name string
		cfg  AreaConfig
	}{{"sync", c.Storage.Sync}, {"local", c.Storage.Local}} {
		switch area.cfg.Backend {
		case BackendMemory, BackendSQLite:
		case BackendFile:
			if area.cfg.Path == "" {
				return fmt.Errorf("storage.%s: file backend needs a path", area.name)
			}
		case BackendRedis:
			if c.Redis.URL == "" {
				return fmt.Errorf("storage.%s: redis backend needs redis.url", area.name)
			}
		default:
			return fmt.Errorf("storage.%s: unknown backend %q", area.name, area.cfg.Backend)
		}
	}
	if c.Bus.ClientMaxInFlight < 0 || c.Bus.ServerMaxInFlight < 0 {
		return fmt.Errorf("bus: in-flight limits must not be negative")
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
