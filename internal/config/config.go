// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package config handles application configuration loading from environment
// variables, optionally layered over a YAML file named by CONFIG_FILE.
// Environment variables always win over file values.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds all application configuration values.
type Config struct {
	// Server settings
	Host     string
	Port     string
	Env      string // "development", "production", "testing"
	BasePath string // mount prefix, "" when served at the root

	// Reverse proxies whose X-Forwarded-For is believed. Empty means the
	// peer address is the client.
	TrustedProxies []netip.Prefix

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (sessions, player page cache, rate limiting)
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// Embed API
	EmbedAPIURL     string
	EmbedAPITimeout time.Duration

	PlayerRequiresAuth bool
	AdNetworks         []string

	// Sessions
	SessionIdleTimeout    time.Duration
	SessionRotateInterval time.Duration
	RememberTTL           time.Duration
	SecureCookies         bool
}

// fileConfig mirrors the YAML layout of CONFIG_FILE. Every value is kept
// as a string so it goes through the same parsing as the environment.
type fileConfig struct {
	App struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		Env      string `yaml:"env"`
		BasePath string `yaml:"base_path"`

		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"app"`
	Postgres struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DB       string `yaml:"db"`
	} `yaml:"postgres"`
	Valkey struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		Password string `yaml:"password"`
	} `yaml:"valkey"`
	EmbedAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"embed_api"`
	Player struct {
		RequiresAuth string `yaml:"requires_auth"`
	} `yaml:"player"`
	AdNetworks []string `yaml:"ad_networks"`
	Session    struct {
		IdleTimeout    string `yaml:"idle_timeout"`
		RotateInterval string `yaml:"rotate_interval"`
		RememberTTL    string `yaml:"remember_ttl"`
		SecureCookies  string `yaml:"secure_cookies"`
	} `yaml:"session"`
}

// values flattens the file into the environment variable names it stands in for.
func (f *fileConfig) values() map[string]string {
	return map[string]string{
		"APP_HOST":                f.App.Host,
		"APP_PORT":                f.App.Port,
		"APP_ENV":                 f.App.Env,
		"APP_BASE_PATH":           f.App.BasePath,
		"TRUSTED_PROXIES":         strings.Join(f.App.TrustedProxies, ","),
		"POSTGRES_HOST":           f.Postgres.Host,
		"POSTGRES_PORT":           f.Postgres.Port,
		"POSTGRES_USER":           f.Postgres.User,
		"POSTGRES_PASSWORD":       f.Postgres.Password,
		"POSTGRES_DB":             f.Postgres.DB,
		"VALKEY_HOST":             f.Valkey.Host,
		"VALKEY_PORT":             f.Valkey.Port,
		"VALKEY_PASSWORD":         f.Valkey.Password,
		"EMBED_API_URL":           f.EmbedAPI.URL,
		"EMBED_API_TIMEOUT":       f.EmbedAPI.Timeout,
		"PLAYER_REQUIRES_AUTH":    f.Player.RequiresAuth,
		"AD_NETWORKS":             strings.Join(f.AdNetworks, ","),
		"SESSION_IDLE_TIMEOUT":    f.Session.IdleTimeout,
		"SESSION_ROTATE_INTERVAL": f.Session.RotateInterval,
		"REMEMBER_TTL":            f.Session.RememberTTL,
		"COOKIE_SECURE":           f.Session.SecureCookies,
	}
}

// loadFile reads and parses a YAML config file.
func loadFile(filename string) (map[string]string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", filename, err)
	}
	return fc.values(), nil
}

// Load reads configuration from the environment (and CONFIG_FILE when set),
// applying defaults for development where appropriate. Returns an error if
// a value does not parse or critical values are missing in production mode.
func Load() (*Config, error) {
	file := map[string]string{}
	if name := os.Getenv("CONFIG_FILE"); name != "" {
		var err error
		if file, err = loadFile(name); err != nil {
			return nil, err
		}
	}

	get := func(key, fallback string) string {
		return envOrDefault(key, valueOrDefault(file[key], fallback))
	}

	cfg := &Config{
		Host:     get("APP_HOST", "0.0.0.0"),
		Port:     get("APP_PORT", "8080"),
		Env:      get("APP_ENV", "development"),
		BasePath: strings.TrimRight(get("APP_BASE_PATH", ""), "/"),

		DBHost:     get("POSTGRES_HOST", "localhost"),
		DBPort:     get("POSTGRES_PORT", "5432"),
		DBUser:     get("POSTGRES_USER", "proxyplayer"),
		DBPassword: get("POSTGRES_PASSWORD", "changeme"),
		DBName:     get("POSTGRES_DB", "proxyplayer"),

		ValkeyHost:     get("VALKEY_HOST", "localhost"),
		ValkeyPort:     get("VALKEY_PORT", "6379"),
		ValkeyPassword: get("VALKEY_PASSWORD", ""),

		EmbedAPIURL: get("EMBED_API_URL", "https://gdplayer.vip/api/video"),
		AdNetworks:  splitList(get("AD_NETWORKS", "monetag.com,hilltopads.net,richads.com")),
	}

	var err error
	if cfg.EmbedAPITimeout, err = parseDuration("EMBED_API_TIMEOUT", get("EMBED_API_TIMEOUT", "10s")); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTimeout, err = parseDuration("SESSION_IDLE_TIMEOUT", get("SESSION_IDLE_TIMEOUT", "12h")); err != nil {
		return nil, err
	}
	if cfg.SessionRotateInterval, err = parseDuration("SESSION_ROTATE_INTERVAL", get("SESSION_ROTATE_INTERVAL", "30m")); err != nil {
		return nil, err
	}
	if cfg.RememberTTL, err = parseDuration("REMEMBER_TTL", get("REMEMBER_TTL", "720h")); err != nil {
		return nil, err
	}
	if cfg.PlayerRequiresAuth, err = parseBool("PLAYER_REQUIRES_AUTH", get("PLAYER_REQUIRES_AUTH", "false")); err != nil {
		return nil, err
	}
	if cfg.TrustedProxies, err = parsePrefixes("TRUSTED_PROXIES", get("TRUSTED_PROXIES", "")); err != nil {
		return nil, err
	}
	secureDefault := strconv.FormatBool(cfg.Env == "production")
	if cfg.SecureCookies, err = parseBool("COOKIE_SECURE", get("COOKIE_SECURE", secureDefault)); err != nil {
		return nil, err
	}

	if cfg.BasePath != "" && !strings.HasPrefix(cfg.BasePath, "/") {
		cfg.BasePath = "/" + cfg.BasePath
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func valueOrDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, v)
	}
	return d, nil
}

func parseBool(key, v string) (bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

// parsePrefixes reads a comma separated list of CIDRs or bare addresses.
func parsePrefixes(key, v string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range splitList(v) {
		if !strings.Contains(part, "/") {
			addr, err := netip.ParseAddr(part)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid address %q", key, part)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid CIDR %q", key, part)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// splitList splits a comma separated list, trimming blanks and lowercasing.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
