// Package config provides configuration management for wabot.
// It uses Viper for flexible configuration loading with support for:
// - Multiple formats (JSON, YAML, TOML)
// - Environment variables
// - Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents the complete wabot configuration.
// It is read once at startup; the pipeline never re-reads it at runtime.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot" json:"bot"`
	Bridge    BridgeConfig    `mapstructure:"bridge" json:"bridge"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" json:"rate_limit"`
	Store     StoreConfig     `mapstructure:"store" json:"store"`
	Cache     CacheConfig     `mapstructure:"cache" json:"cache"`
	WebUI     WebUIConfig     `mapstructure:"webui" json:"webui"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
}

// BotConfig contains bot identity and command parsing settings.
type BotConfig struct {
	// Name is the display name used in replies.
	Name string `mapstructure:"name" json:"name"`

	// Prefix is the command prefix, e.g. "." or "!".
	Prefix string `mapstructure:"prefix" json:"prefix"`

	// OwnerNumbers are the phone numbers (jid user part) of bot owners.
	OwnerNumbers []string `mapstructure:"owner_numbers" json:"owner_numbers"`

	// SessionID partitions persisted state between bot accounts.
	// Empty means it is derived from the connected account id.
	SessionID string `mapstructure:"session_id" json:"session_id"`
}

// BridgeConfig for the WhatsApp WebSocket bridge.
type BridgeConfig struct {
	URL string `mapstructure:"url" json:"url"`

	// ReconnectSeconds is the delay between reconnect attempts.
	ReconnectSeconds int `mapstructure:"reconnect_seconds" json:"reconnect_seconds"`
}

// RateLimitConfig bounds command throughput per sender.
type RateLimitConfig struct {
	// MaxCommands per window for non-owner senders.
	MaxCommands int `mapstructure:"max_commands" json:"max_commands"`

	// WindowSeconds is the fixed window size.
	WindowSeconds int `mapstructure:"window_seconds" json:"window_seconds"`
}

// StoreConfig for the SQLite authorization/state store.
type StoreConfig struct {
	// Path to the SQLite database file. ":memory:" is allowed for tests.
	Path string `mapstructure:"path" json:"path"`
}

// CacheBackend selects the settings-cache backend.
type CacheBackend string

const (
	CacheBackendMemory CacheBackend = "memory"
	CacheBackendRedis  CacheBackend = "redis"
)

// CacheConfig for the hot-path settings cache.
type CacheConfig struct {
	Backend       CacheBackend `mapstructure:"backend" json:"backend"`
	TTLSeconds    int          `mapstructure:"ttl_seconds" json:"ttl_seconds"`
	RedisAddr     string       `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string       `mapstructure:"redis_password" json:"redis_password"`
	RedisDB       int          `mapstructure:"redis_db" json:"redis_db"`
	RedisPrefix   string       `mapstructure:"redis_prefix" json:"redis_prefix"`
}

// WebUIConfig for the status HTTP server.
type WebUIConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Host    string `mapstructure:"host" json:"host"`
	Port    int    `mapstructure:"port" json:"port"`
}

// LogConfig for the logger.
type LogConfig struct {
	Level       string `mapstructure:"level" json:"level"`
	OutputPath  string `mapstructure:"output_path" json:"output_path"`
	Development bool   `mapstructure:"development" json:"development"`
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".wabot")

	return &Config{
		Bot: BotConfig{
			Name:   "wabot",
			Prefix: ".",
		},
		Bridge: BridgeConfig{
			URL:              "ws://localhost:3001",
			ReconnectSeconds: 2,
		},
		RateLimit: RateLimitConfig{
			MaxCommands:   10,
			WindowSeconds: 60,
		},
		Store: StoreConfig{
			Path: filepath.Join(dataDir, "wabot.db"),
		},
		Cache: CacheConfig{
			Backend:     CacheBackendMemory,
			TTLSeconds:  30,
			RedisPrefix: "wabot:",
		},
		WebUI: WebUIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    18920,
		},
		Log: LogConfig{
			Level:      "info",
			OutputPath: filepath.Join(dataDir, "logs", "wabot.log"),
		},
	}
}

// IsOwner reports whether the sender jid belongs to a configured owner.
// The jid user part is compared with any device suffix stripped.
func (c *Config) IsOwner(senderJID string) bool {
	number := NumberFromJID(senderJID)
	for _, owner := range c.Bot.OwnerNumbers {
		if owner == number {
			return true
		}
	}
	return false
}

// NumberFromJID extracts the bare phone number from a jid such as
// "4915112345678:12@s.whatsapp.net".
func NumberFromJID(jid string) string {
	user := jid
	if at := strings.Index(user, "@"); at >= 0 {
		user = user[:at]
	}
	if colon := strings.Index(user, ":"); colon >= 0 {
		user = user[:colon]
	}
	return user
}

// ValidateConfig checks the loaded configuration for obvious mistakes.
func ValidateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.Bot.Prefix) == "" {
		return fmt.Errorf("bot.prefix must not be empty")
	}
	if cfg.Bridge.URL == "" {
		return fmt.Errorf("bridge.url is required")
	}
	if cfg.RateLimit.MaxCommands <= 0 {
		return fmt.Errorf("rate_limit.max_commands must be positive")
	}
	if cfg.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate_limit.window_seconds must be positive")
	}
	switch cfg.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == CacheBackendRedis && cfg.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.redis_addr is required for the redis backend")
	}
	return nil
}
