// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

// Package config provides layered configuration for Hearth via Koanf v2.
//
// Configuration sources, highest priority last:
//  1. Built-in defaults (struct literals)
//  2. Config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables (SERVER_PORT, LIBRARY_SYNC_INTERVAL, SMTP_HOST, ...)
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Hearth server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Library  LibraryConfig  `koanf:"library"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the database file path. Use an empty string for an
	// in-memory database (tests).
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// LibraryConfig holds the sync/notify subsystem settings.
//
// Environment variables:
//   - LIBRARY_SYNC_INTERVAL: recurring sync interval (default: 6h)
//   - LIBRARY_SYNC_START_DELAY: delay before the first recurring run (default: 2m)
//   - LIBRARY_NOTIFY_CRON: 5-field cron for the daily notification (default: "0 3 * * *")
//   - LIBRARY_PROVIDER_TIMEOUT: per-request timeout against catalog providers
type LibraryConfig struct {
	SyncInterval    time.Duration `koanf:"sync_interval"`
	SyncStartDelay  time.Duration `koanf:"sync_start_delay"`
	NotifyCron      string        `koanf:"notify_cron"`
	ProviderTimeout time.Duration `koanf:"provider_timeout"`

	// AdminEmail receives the due-item notification.
	AdminEmail string `koanf:"admin_email"`

	// SiteURL is included in notification emails so the link resolves
	// back to this deployment.
	SiteURL string `koanf:"site_url"`
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	FromAddress string `koanf:"from_address"`
	UseTLS      bool   `koanf:"use_tls"`
}

// SecurityConfig holds API hardening settings.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/hearth.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
		},
		Library: LibraryConfig{
			SyncInterval:    6 * time.Hour,
			SyncStartDelay:  2 * time.Minute,
			NotifyCron:      "0 3 * * *",
			ProviderTimeout: 30 * time.Second,
			AdminEmail:      "",
			SiteURL:         "",
		},
		SMTP: SMTPConfig{
			Host:        "",
			Port:        587,
			Username:    "",
			Password:    "",
			FromAddress: "",
			UseTLS:      true,
		},
		Security: SecurityConfig{
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the loaded configuration for values that would fail at
// runtime. Each section validates independently; the first failure wins.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateLibrary,
		c.validateSMTP,
		c.validateSecurity,
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("SERVER_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Threads < 0 {
		return fmt.Errorf("DATABASE_THREADS must be >= 0")
	}
	return nil
}

func (c *Config) validateLibrary() error {
	if c.Library.SyncInterval < time.Minute {
		return fmt.Errorf("LIBRARY_SYNC_INTERVAL must be at least 1m, got %s", c.Library.SyncInterval)
	}
	if c.Library.SyncStartDelay < 0 {
		return fmt.Errorf("LIBRARY_SYNC_START_DELAY must not be negative")
	}
	if c.Library.ProviderTimeout <= 0 {
		return fmt.Errorf("LIBRARY_PROVIDER_TIMEOUT must be positive")
	}
	if c.Library.NotifyCron == "" {
		return fmt.Errorf("LIBRARY_NOTIFY_CRON must not be empty")
	}
	return nil
}

func (c *Config) validateSMTP() error {
	// SMTP is optional; when a host is configured the rest must be usable.
	if c.SMTP.Host == "" {
		return nil
	}
	if c.SMTP.Port < 1 || c.SMTP.Port > 65535 {
		return fmt.Errorf("SMTP_PORT must be between 1 and 65535, got %d", c.SMTP.Port)
	}
	if c.SMTP.FromAddress == "" {
		return fmt.Errorf("SMTP_FROM_ADDRESS is required when SMTP_HOST is set")
	}
	if c.Library.AdminEmail == "" {
		return fmt.Errorf("LIBRARY_ADMIN_EMAIL is required when SMTP_HOST is set")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("SECURITY_RATE_LIMIT_REQUESTS must be at least 1")
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("SECURITY_RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// NotificationsEnabled reports whether outbound mail is configured.
func (c *Config) NotificationsEnabled() bool {
	return c.SMTP.Host != ""
}
