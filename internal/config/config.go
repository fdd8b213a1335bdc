// Package config handles loading and validating runtime configuration for the Activity Lobby server.
// Values are read from environment variables, optionally seeded from a .env file in the working
// directory, so the same binary runs locally and inside the Discord Activity proxy unchanged.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// godotenv reads a .env file and loads its key=value pairs into the process environment.
	// Variables that are already set in the real environment win over the file.
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values for the application.
type Config struct {
	Port              string        // TCP port the HTTP server listens on (e.g. "3000")
	Env               string        // "development", "staging" or "production"
	JWTSecret         string        // HMAC secret used to sign and verify identity tokens
	TokenTTL          time.Duration // Lifetime of identity tokens issued by POST /api/token
	WSPath            string        // The only path on which WebSocket upgrades are admitted
	KeepaliveInterval time.Duration // Period of the {"type":"ping"} broadcast
	SendBuffer        int           // Outbound messages queued per session before sends fail
	WriteTimeout      time.Duration // Deadline for a single WebSocket frame write
	StaticDir         string        // Directory of client assets to serve at "/"; empty disables it

	DiscordClientID     string // OAuth application client id
	DiscordClientSecret string // OAuth application client secret
	DiscordAPIBase      string // Base URL of the Discord REST API

	DatabaseURL string // Postgres DSN for the activity log; empty disables it

	LogLevel  string // "debug", "info", "warn" or "error"
	LogFormat string // "json" or "console"
}

// Load reads configuration from environment variables and returns a validated Config.
// A missing .env file is fine; malformed durations or numbers and failed validation are errors.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getenv("ENV", "development")

	defaultFormat := "json"
	if env == "development" {
		defaultFormat = "console"
	}

	cfg := &Config{
		Port:                getenv("PORT", "3000"),
		Env:                 env,
		JWTSecret:           os.Getenv("JWT_SECRET"),
		WSPath:              getenv("WS_PATH", "/discord/ws"),
		StaticDir:           os.Getenv("STATIC_DIR"),
		DiscordClientID:     os.Getenv("CLIENT_ID"),
		DiscordClientSecret: os.Getenv("CLIENT_SECRET"),
		DiscordAPIBase:      strings.TrimRight(getenv("DISCORD_API_BASE", "https://discord.com/api"), "/"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		LogLevel:            strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(getenv("LOG_FORMAT", defaultFormat)),
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.KeepaliveInterval, err = durationEnv("KEEPALIVE_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = durationEnv("WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SendBuffer, err = intEnv("SEND_BUFFER", 32); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every configuration invariant and reports all violations in one error.
func (c *Config) Validate() error {
	var errs []string

	if c.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET must not be empty")
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be 1-65535, got %q", c.Port))
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		errs = append(errs, fmt.Sprintf("WS_PATH must start with '/', got %q", c.WSPath))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, "TOKEN_TTL must be positive")
	}
	if c.KeepaliveInterval <= 0 {
		errs = append(errs, "KEEPALIVE_INTERVAL must be positive")
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, "WRITE_TIMEOUT must be positive")
	}
	if c.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("SEND_BUFFER must be >= 1, got %d", c.SendBuffer))
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of [debug, info, warn, error], got %q", c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be one of [json, console], got %q", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// TokenExchangeEnabled reports whether the Discord OAuth credentials needed by POST /api/token are set.
func (c *Config) TokenExchangeEnabled() bool {
	return c.DiscordClientID != "" && c.DiscordClientSecret != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}
