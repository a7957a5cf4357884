// Package config provides configuration loading for atreides.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (ATREIDES_SERVER_HTTP_PORT, ...)
//  2. YAML config file (~/.config/atreides/config.yaml)
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/atreides/internal/logging"
	"github.com/fyrsmithlabs/atreides/internal/policy"
	"github.com/fyrsmithlabs/atreides/internal/session"
)

// Config holds the complete atreides configuration.
type Config struct {
	Server  ServerConfig   `koanf:"server"`
	Logging logging.Config `koanf:"logging"`
	Session session.Config `koanf:"session"`
	Policy  policy.Config  `koanf:"policy"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// NewDefaultConfig returns the full default configuration.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9270,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: *logging.NewDefaultConfig(),
		Session: *session.DefaultConfig(),
		Policy:  *policy.DefaultConfig(),
	}
}

// Validate checks the whole configuration tree.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.http_port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}
