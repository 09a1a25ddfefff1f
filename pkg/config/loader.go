package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigPathEnv overrides the config file location globally.
const ConfigPathEnv = "WABOT_CONFIG_FILE"

// Loader handles configuration loading with Viper.
type Loader struct {
	viper *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("json")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".wabot"))
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("WABOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{viper: v}
}

// Load loads the configuration from file and environment variables.
// If configPath is empty, default search paths are used. A missing file is
// not an error: defaults apply.
func (l *Loader) Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(configPath) == "" {
		configPath = strings.TrimSpace(os.Getenv(ConfigPathEnv))
	}
	if strings.TrimSpace(configPath) != "" {
		l.viper.SetConfigFile(configPath)
	}

	if err := l.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := l.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a file, deriving the format from the
// file extension.
func (l *Loader) Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	format := "json"
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".toml":
		format = "toml"
	}

	v := viper.New()
	v.SetConfigType(format)
	v.Set("bot", cfg.Bot)
	v.Set("bridge", cfg.Bridge)
	v.Set("rate_limit", cfg.RateLimit)
	v.Set("store", cfg.Store)
	v.Set("cache", cfg.Cache)
	v.Set("webui", cfg.WebUI)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
