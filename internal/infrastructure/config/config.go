// Package config loads bridge configuration from the environment, with an
// optional YAML overlay for deployments that prefer files.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all bridge configuration.
type Config struct {
	Server    ServerConfig
	Runtime   RuntimeConfig
	Bridge    BridgeConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8400" yaml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" yaml:"host"`
	// AllowedOrigin is the single origin accepted on the bridge socket.
	// Empty means same-host only.
	AllowedOrigin string `envconfig:"BRIDGE_ALLOWED_ORIGIN" default:"" yaml:"allowed_origin"`
}

// RuntimeConfig holds notebook runtime (contents/sessions/kernels API) configuration.
type RuntimeConfig struct {
	BaseURL        string        `envconfig:"RUNTIME_URL" default:"http://localhost:8888" yaml:"base_url"`
	Token          string        `envconfig:"RUNTIME_TOKEN" default:"" yaml:"token"`
	RequestTimeout time.Duration `envconfig:"RUNTIME_REQUEST_TIMEOUT" default:"15s" yaml:"request_timeout"`
	RetryMax       int           `envconfig:"RUNTIME_RETRY_MAX" default:"3" yaml:"retry_max"`
	ExecTimeout    time.Duration `envconfig:"RUNTIME_EXEC_TIMEOUT" default:"30s" yaml:"exec_timeout"`
}

// BridgeConfig holds command protocol and workspace behavior.
type BridgeConfig struct {
	CommandTimeout     time.Duration `envconfig:"BRIDGE_COMMAND_TIMEOUT" default:"30s" yaml:"command_timeout"`
	ReadyTimeout       time.Duration `envconfig:"BRIDGE_READY_TIMEOUT" default:"20s" yaml:"ready_timeout"`
	ReadyProbeTimeout  time.Duration `envconfig:"BRIDGE_READY_PROBE_TIMEOUT" default:"750ms" yaml:"ready_probe_timeout"`
	ReadyProbeInterval time.Duration `envconfig:"BRIDGE_READY_PROBE_INTERVAL" default:"250ms" yaml:"ready_probe_interval"`
	AutosaveDebounce   time.Duration `envconfig:"BRIDGE_AUTOSAVE_DEBOUNCE" default:"5s" yaml:"autosave_debounce"`
	AutosaveInterval   time.Duration `envconfig:"BRIDGE_AUTOSAVE_INTERVAL" default:"60s" yaml:"autosave_interval"`
	SaveTimeout        time.Duration `envconfig:"BRIDGE_SAVE_TIMEOUT" default:"10s" yaml:"save_timeout"`
	// RootMount is the first import path candidate inside the kernel filesystem.
	RootMount string `envconfig:"BRIDGE_ROOT_MOUNT" default:"/" yaml:"root_mount"`
	// WorkspaceRoot is where per-notebook workspace directories live in the kernel.
	WorkspaceRoot string `envconfig:"BRIDGE_WORKSPACE_ROOT" default:"/workspace" yaml:"workspace_root"`
	// WatchDir, when set, is a local directory whose contents are mirrored into
	// the kernel workspace and re-synced on change.
	WatchDir string `envconfig:"BRIDGE_WATCH_DIR" default:"" yaml:"watch_dir"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// RateLimitConfig holds bridge socket message rate limiting.
type RateLimitConfig struct {
	MessagesPerSecond int  `envconfig:"RATE_LIMIT_MPS" default:"50" yaml:"messages_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadFile loads environment configuration, then applies a YAML overlay on top.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8400",
			Host: "0.0.0.0",
		},
		Runtime: RuntimeConfig{
			BaseURL:        "http://localhost:8888",
			RequestTimeout: 15 * time.Second,
			RetryMax:       3,
			ExecTimeout:    30 * time.Second,
		},
		Bridge: BridgeConfig{
			CommandTimeout:     30 * time.Second,
			ReadyTimeout:       20 * time.Second,
			ReadyProbeTimeout:  750 * time.Millisecond,
			ReadyProbeInterval: 250 * time.Millisecond,
			AutosaveDebounce:   5 * time.Second,
			AutosaveInterval:   60 * time.Second,
			SaveTimeout:        10 * time.Second,
			RootMount:          "/",
			WorkspaceRoot:      "/workspace",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			MessagesPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
