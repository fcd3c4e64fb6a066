// Package config loads the engine configuration from config.json and
// applies environment overrides for secrets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	envConfigPath    = "FLOWBOT_CONFIG"
	envTelegramToken = "TELEGRAM_BOT_TOKEN"
)

// Config is the root runtime configuration.
type Config struct {
	Server   ServerConfig             `json:"server"`
	Channels map[string]ChannelConfig `json:"channels"`
	Storage  StorageConfig            `json:"storage,omitempty"`
	Logging  LoggingConfig            `json:"logging,omitempty"`
}

// ServerConfig configures webhook server bind settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ChannelConfig describes one configured bot endpoint: which driver serves
// it and the provider credentials it needs.
type ChannelConfig struct {
	Driver  string `json:"driver"`
	Token   string `json:"token"`
	BaseURL string `json:"base_url,omitempty"`
}

// StorageConfig selects the context store: "memory" (default) or "sqlite".
type StorageConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// LoadConfig resolves the config file, unmarshals it, and applies
// environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides injects env-driven secrets on top of file config. The
// Telegram token override applies to every channel backed by the telegram
// driver.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramToken)); token != "" {
		for name, channel := range cfg.Channels {
			if channel.Driver == "telegram" {
				channel.Token = token
				cfg.Channels[name] = channel
			}
		}
	}
}

// findConfigPath resolves the active config file location.
//
// Precedence is FLOWBOT_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
