// Package config handles configuration loading and validation
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Engine   EngineConfig   `yaml:"engine"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port string `yaml:"port"`
}

// DatabaseConfig contains persistence settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig contains the optional price republish target. An empty
// address disables Redis entirely.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig contains API authentication settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// EngineConfig contains the trigger engine tunables. Durations are
// expressed in the unit named by the field.
type EngineConfig struct {
	// BridgeMarginPercent is withheld from a bridged amount before the
	// settle leg to cover destination-network transaction costs.
	BridgeMarginPercent float64 `yaml:"bridge_margin_percent"`
	// DefaultSlippage applies to trigger-driven settlement when the order
	// carries no explicit slippage.
	DefaultSlippage     float64 `yaml:"default_slippage"`
	SweepIntervalSec    int     `yaml:"sweep_interval_sec"`
	OrderTTLHours       int     `yaml:"order_ttl_hours"`
	PendingTPSLTTLSec   int     `yaml:"pending_tpsl_ttl_sec"`
	PriceCacheTTLSec    int     `yaml:"price_cache_ttl_sec"`
	ConfirmPollMs       int     `yaml:"confirm_poll_ms"`
	ConfirmTimeoutSec   int     `yaml:"confirm_timeout_sec"`
}

// NotifyConfig contains lifecycle notification settings
type NotifyConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Path: "trigger.db"},
		Auth:     AuthConfig{JWTSecret: "trigger-secret-key"},
		Engine: EngineConfig{
			BridgeMarginPercent: 5.0,
			DefaultSlippage:     30.0,
			SweepIntervalSec:    60,
			OrderTTLHours:       24,
			PendingTPSLTTLSec:   300,
			PriceCacheTTLSec:    30,
			ConfirmPollMs:       500,
			ConfirmTimeoutSec:   10,
		},
		Notify: NotifyConfig{QueueSize: 256},
	}
}

// Load reads the YAML config at path, falling back to defaults for any
// field the file omits. Environment variables PORT and DATABASE_PATH
// override the file, matching how the rest of the platform is deployed.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.BridgeMarginPercent < 0 || c.Engine.BridgeMarginPercent >= 100 {
		return fmt.Errorf("bridge_margin_percent must be in [0, 100), got %v", c.Engine.BridgeMarginPercent)
	}
	if c.Engine.DefaultSlippage < 0 {
		return fmt.Errorf("default_slippage must not be negative, got %v", c.Engine.DefaultSlippage)
	}
	if c.Engine.SweepIntervalSec <= 0 {
		return fmt.Errorf("sweep_interval_sec must be positive, got %d", c.Engine.SweepIntervalSec)
	}
	if c.Engine.ConfirmPollMs <= 0 || c.Engine.ConfirmTimeoutSec <= 0 {
		return fmt.Errorf("confirmation poll settings must be positive")
	}
	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("notify queue_size must be positive, got %d", c.Notify.QueueSize)
	}
	return nil
}

// SweepInterval returns the sweep cadence as a duration.
func (c EngineConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// OrderTTL returns how long a waiting order may sit unexecuted.
func (c EngineConfig) OrderTTL() time.Duration {
	return time.Duration(c.OrderTTLHours) * time.Hour
}

// PendingTPSLTTL returns the lifetime of an unconfirmed TP/SL config.
func (c EngineConfig) PendingTPSLTTL() time.Duration {
	return time.Duration(c.PendingTPSLTTLSec) * time.Second
}

// PriceCacheTTL returns the local price cache retention.
func (c EngineConfig) PriceCacheTTL() time.Duration {
	return time.Duration(c.PriceCacheTTLSec) * time.Second
}

// ConfirmPollInterval returns the transaction-log poll cadence.
func (c EngineConfig) ConfirmPollInterval() time.Duration {
	return time.Duration(c.ConfirmPollMs) * time.Millisecond
}

// ConfirmTimeout returns the bound on the confirmation poll.
func (c EngineConfig) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSec) * time.Second
}
