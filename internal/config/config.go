// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads Gatehouse configuration from defaults, an optional
// YAML file, the environment, and command-line flags, in that order of
// precedence (later wins, flags only when explicitly set).
package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Session backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds the full service configuration.
type Config struct {
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`

	DatabaseURL    string `koanf:"database_url"`
	SessionBackend string `koanf:"session_backend"`
	RedisAddr      string `koanf:"redis_addr"`

	SessionTTLSeconds   int    `koanf:"session_ttl_seconds"`
	StoreTimeoutSeconds int    `koanf:"store_timeout_seconds"`
	CookieName          string `koanf:"cookie_name"`
	CookieSecure        bool   `koanf:"cookie_secure"`

	CORSOrigins []string `koanf:"cors_origins"`

	LogFormat string `koanf:"log_format"`
	LogLevel  string `koanf:"log_level"`

	Argon2Time      uint32 `koanf:"argon2_time"`
	Argon2MemoryKiB uint32 `koanf:"argon2_memory_kib"`
	Argon2Threads   uint8  `koanf:"argon2_threads"`
}

// Default returns the built-in configuration.
// CookieSecure defaults to true; deployments behind plain HTTP (local
// development only) must opt out explicitly.
func Default() Config {
	return Config{
		ListenAddr:          ":8080",
		MetricsAddr:         "127.0.0.1:9100",
		SessionBackend:      BackendPostgres,
		RedisAddr:           "localhost:6379",
		SessionTTLSeconds:   3600,
		StoreTimeoutSeconds: 5,
		CookieName:          "gatehouse_session",
		CookieSecure:        true,
		CORSOrigins:         []string{"*"},
		LogFormat:           "json",
		LogLevel:            "info",
		Argon2Time:          1,
		Argon2MemoryKiB:     64 * 1024,
		Argon2Threads:       4,
	}
}

// Load builds the configuration. path may be empty (no file); flags may be
// nil (no flag overrides). DATABASE_URL from the environment overrides the
// file but not an explicit flag.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		if err := k.Set("database_url", dbURL); err != nil {
			return nil, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.SessionBackend {
	case BackendPostgres, BackendRedis:
	default:
		return oops.Code("CONFIG_INVALID").
			With("session_backend", c.SessionBackend).
			Errorf("session_backend must be %q or %q", BackendPostgres, BackendRedis)
	}

	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required (set DATABASE_URL or the config file)")
	}
	if c.SessionBackend == BackendRedis && c.RedisAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("redis_addr is required for the redis session backend")
	}
	if c.CookieName == "" {
		return oops.Code("CONFIG_INVALID").Errorf("cookie_name cannot be empty")
	}
	if c.SessionTTLSeconds <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("session_ttl_seconds", c.SessionTTLSeconds).
			Errorf("session_ttl_seconds must be positive")
	}
	if c.StoreTimeoutSeconds <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("store_timeout_seconds", c.StoreTimeoutSeconds).
			Errorf("store_timeout_seconds must be positive")
	}
	return nil
}
