package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	envConfigPath  = "WABRIDGE_CONFIG"
	envStorePath   = "WABRIDGE_STORE_PATH"
	envCountryCode = "WABRIDGE_COUNTRY_CODE"
	envPort        = "WABRIDGE_PORT"
)

// Config is the root runtime configuration loaded from config.json. Every
// field has a working default; the bridge runs without any config file.
type Config struct {
	Server    ServerConfig    `json:"server"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Media     MediaConfig     `json:"media"`
	Reconnect ReconnectConfig `json:"reconnect"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// ServerConfig configures HTTP bind settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// WhatsAppConfig configures the transport session.
type WhatsAppConfig struct {
	// StorePath is where whatsmeow persists pairing credentials.
	StorePath string `json:"store_path"`
	// CountryCode replaces a leading zero when normalizing phone numbers.
	CountryCode string `json:"country_code"`
	// PrintQR additionally renders pairing QR codes to the terminal.
	PrintQR bool `json:"print_qr"`
}

// MediaConfig bounds the outbound media fetch.
type MediaConfig struct {
	FetchTimeoutSeconds int   `json:"fetch_timeout_seconds"`
	MaxBytes            int64 `json:"max_bytes"`
}

// ReconnectConfig bounds the recovery supervisor's reconnect loop.
type ReconnectConfig struct {
	InitialDelaySeconds int `json:"initial_delay_seconds"`
	MaxDelaySeconds     int `json:"max_delay_seconds"`
	MaxAttempts         int `json:"max_attempts"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment
// overrides. A missing config file is not an error; defaults apply.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server:    ServerConfig{Host: "0.0.0.0", Port: 8000},
		WhatsApp:  WhatsAppConfig{StorePath: "wabridge.db", CountryCode: "62", PrintQR: true},
		Media:     MediaConfig{FetchTimeoutSeconds: 30, MaxBytes: 16 << 20},
		Reconnect: ReconnectConfig{InitialDelaySeconds: 2, MaxDelaySeconds: 60, MaxAttempts: 10},
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if value := strings.TrimSpace(os.Getenv(envStorePath)); value != "" {
		cfg.WhatsApp.StorePath = value
	}

	if value := strings.TrimSpace(os.Getenv(envCountryCode)); value != "" {
		cfg.WhatsApp.CountryCode = value
	}

	if value := strings.TrimSpace(os.Getenv(envPort)); value != "" {
		if port, err := strconv.Atoi(value); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
}

// applyDefaults backfills zero values left by a partial config file.
func applyDefaults(cfg *Config) {
	defaults := defaultConfig()

	if strings.TrimSpace(cfg.Server.Host) == "" {
		cfg.Server.Host = defaults.Server.Host
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if strings.TrimSpace(cfg.WhatsApp.StorePath) == "" {
		cfg.WhatsApp.StorePath = defaults.WhatsApp.StorePath
	}
	if strings.TrimSpace(cfg.WhatsApp.CountryCode) == "" {
		cfg.WhatsApp.CountryCode = defaults.WhatsApp.CountryCode
	}
	if cfg.Media.FetchTimeoutSeconds <= 0 {
		cfg.Media.FetchTimeoutSeconds = defaults.Media.FetchTimeoutSeconds
	}
	if cfg.Media.MaxBytes <= 0 {
		cfg.Media.MaxBytes = defaults.Media.MaxBytes
	}
	if cfg.Reconnect.InitialDelaySeconds <= 0 {
		cfg.Reconnect.InitialDelaySeconds = defaults.Reconnect.InitialDelaySeconds
	}
	if cfg.Reconnect.MaxDelaySeconds <= 0 {
		cfg.Reconnect.MaxDelaySeconds = defaults.Reconnect.MaxDelaySeconds
	}
}

// findConfigPath resolves the active config file location. An empty result
// means no file exists and defaults should be used.
//
// Precedence is WABRIDGE_CONFIG first, then cwd-local fallback paths.
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

	return "", nil
}
