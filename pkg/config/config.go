// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config contains the definition of the application config structure
// and logic required to load and update it.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/stacklok/toolhive-core/env"

	"github.com/stacklok/thv-auth/pkg/session"
)

// Default values written to a new config file.
const (
	DefaultBackendURL      = "http://localhost:8000"
	DefaultCallbackPort    = 8666
	DefaultRefreshInterval = "30s"

	// MaxConfigRetries caps config_retries.
	MaxConfigRetries = 10
)

// Environment variables that override the config file.
const (
	BackendURLEnvVar      = "THV_AUTH_BACKEND_URL"
	SessionProviderEnvVar = "THV_AUTH_SESSION_PROVIDER"
	RedisPasswordEnvVar   = "THV_AUTH_REDIS_PASSWORD"
)

// Config represents the configuration of the application.
type Config struct {
	BackendURL        string  `yaml:"backend_url"`
	CallbackPort      int     `yaml:"callback_port"`
	CACertificatePath string  `yaml:"ca_certificate_path,omitempty"`
	RefreshInterval   string  `yaml:"refresh_interval,omitempty"`
	ConfigRetries     int     `yaml:"config_retries,omitempty"`
	Session           Session `yaml:"session"`
}

// Session contains the settings for the session store.
type Session struct {
	Provider string `yaml:"provider"`
	Scope    string `yaml:"scope"`
	Redis    Redis  `yaml:"redis,omitempty"`
}

// Redis contains the settings for the redis session store.
type Redis struct {
	Addr      string `yaml:"addr,omitempty"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"key_prefix,omitempty"`
	TTL       string `yaml:"ttl,omitempty"`
}

// createNewConfigWithDefaults creates a new config with default values
func createNewConfigWithDefaults() Config {
	return Config{
		BackendURL:      DefaultBackendURL,
		CallbackPort:    DefaultCallbackPort,
		RefreshInterval: DefaultRefreshInterval,
		Session: Session{
			Provider: string(session.FileType),
			Scope:    session.DefaultScope,
		},
	}
}

// ApplyEnv overrides config values with the environment variables that are set.
func (c *Config) ApplyEnv(envReader env.Reader) {
	if v := envReader.Getenv(BackendURLEnvVar); v != "" {
		c.BackendURL = v
	}
	if v := envReader.Getenv(SessionProviderEnvVar); v != "" {
		c.Session.Provider = v
	}
	if v := envReader.Getenv(RedisPasswordEnvVar); v != "" {
		c.Session.Redis.Password = v
	}
}

// Validate checks the config for errors.
func (c *Config) Validate() error {
	if _, err := validateURLScheme(c.BackendURL, true); err != nil {
		return fmt.Errorf("invalid backend_url: %w", err)
	}
	if c.CallbackPort < 0 || c.CallbackPort > 65535 {
		return fmt.Errorf("invalid callback_port: %d", c.CallbackPort)
	}
	if _, err := c.GetRefreshInterval(); err != nil {
		return err
	}
	if c.ConfigRetries < 0 || c.ConfigRetries > MaxConfigRetries {
		return fmt.Errorf("invalid config_retries: %d (must be between 0 and %d)", c.ConfigRetries, MaxConfigRetries)
	}
	if _, err := c.SessionConfig(); err != nil {
		return err
	}
	return nil
}

// GetRefreshInterval returns the background refresh poll interval.
func (c *Config) GetRefreshInterval() (time.Duration, error) {
	if c.RefreshInterval == "" {
		return time.ParseDuration(DefaultRefreshInterval)
	}
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid refresh_interval: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("invalid refresh_interval: must be positive")
	}
	return d, nil
}

// SessionConfig converts the session settings into a session.Config.
func (c *Config) SessionConfig() (session.Config, error) {
	provider, err := validateProvider(c.Session.Provider)
	if err != nil {
		return session.Config{}, err
	}

	scope := c.Session.Scope
	if scope == "" {
		scope = session.DefaultScope
	}
	if err := session.ValidateScope(scope); err != nil {
		return session.Config{}, err
	}

	var ttl time.Duration
	if c.Session.Redis.TTL != "" {
		ttl, err = time.ParseDuration(c.Session.Redis.TTL)
		if err != nil {
			return session.Config{}, fmt.Errorf("invalid session.redis.ttl: %w", err)
		}
	}
	if provider == session.RedisType && c.Session.Redis.Addr == "" {
		return session.Config{}, errors.New("session.redis.addr is required for the redis provider")
	}

	return session.Config{
		Provider: provider,
		Scope:    scope,
		Redis: session.RedisConfig{
			Addr:      c.Session.Redis.Addr,
			Username:  c.Session.Redis.Username,
			Password:  c.Session.Redis.Password,
			DB:        c.Session.Redis.DB,
			KeyPrefix: c.Session.Redis.KeyPrefix,
			TTL:       ttl,
		},
	}, nil
}

// validateProvider validates and returns the session provider type. An empty
// provider selects the file store.
func validateProvider(provider string) (session.ProviderType, error) {
	switch session.ProviderType(provider) {
	case session.MemoryType, session.FileType, session.KeyringType, session.RedisType:
		return session.ProviderType(provider), nil
	case "":
		return session.FileType, nil
	default:
		return "", fmt.Errorf("invalid session provider: %s (valid providers: %s, %s, %s, %s)",
			provider, session.MemoryType, session.FileType, session.KeyringType, session.RedisType)
	}
}

// setters maps the keys accepted by Set to the field they update.
var setters = map[string]func(c *Config, value string) error{
	"backend_url": func(c *Config, value string) error {
		if _, err := validateURLScheme(value, true); err != nil {
			return err
		}
		c.BackendURL = value
		return nil
	},
	"callback_port": func(c *Config, value string) error {
		port, err := strconv.Atoi(value)
		if err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("invalid port: %s", value)
		}
		c.CallbackPort = port
		return nil
	},
	"ca_certificate_path": func(c *Config, value string) error {
		if value == "" {
			c.CACertificatePath = ""
			return nil
		}
		path, err := validateCACertificate(value)
		if err != nil {
			return err
		}
		c.CACertificatePath = path
		return nil
	},
	"config_retries": func(c *Config, value string) error {
		retries, err := strconv.Atoi(value)
		if err != nil || retries < 0 || retries > MaxConfigRetries {
			return fmt.Errorf("must be a number between 0 and %d: %s", MaxConfigRetries, value)
		}
		c.ConfigRetries = retries
		return nil
	},
	"refresh_interval": func(c *Config, value string) error {
		c.RefreshInterval = value
		_, err := c.GetRefreshInterval()
		return err
	},
	"session.provider": func(c *Config, value string) error {
		provider, err := validateProvider(value)
		if err != nil {
			return err
		}
		c.Session.Provider = string(provider)
		return nil
	},
	"session.scope": func(c *Config, value string) error {
		if err := session.ValidateScope(value); err != nil {
			return err
		}
		c.Session.Scope = value
		return nil
	},
	"session.redis.addr": func(c *Config, value string) error {
		c.Session.Redis.Addr = value
		return nil
	},
	"session.redis.username": func(c *Config, value string) error {
		c.Session.Redis.Username = value
		return nil
	},
	"session.redis.db": func(c *Config, value string) error {
		db, err := strconv.Atoi(value)
		if err != nil || db < 0 {
			return fmt.Errorf("invalid redis db: %s", value)
		}
		c.Session.Redis.DB = db
		return nil
	},
	"session.redis.key_prefix": func(c *Config, value string) error {
		c.Session.Redis.KeyPrefix = value
		return nil
	},
	"session.redis.ttl": func(c *Config, value string) error {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		c.Session.Redis.TTL = value
		return nil
	},
}

// Keys returns the keys accepted by Set, sorted.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set validates value and assigns it to the field named by key.
func (c *Config) Set(key, value string) error {
	setter, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	if err := setter(c, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}
