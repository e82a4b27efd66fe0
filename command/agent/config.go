// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fieldward/fieldward/version"
)

const (
	// DefaultBindAddr listens on every interface so containerized
	// deployments work without configuration.
	DefaultBindAddr = "0.0.0.0"

	// DefaultPort is the agent's HTTP port.
	DefaultPort = 4680
)

// Config is the configuration for the Fieldward agent. Values come from the
// environment (optionally seeded from a .env file) plus command-line flags;
// flags win.
type Config struct {
	// BindAddr is the address the HTTP listener binds to.
	BindAddr string

	// Port is the HTTP listener port.
	Port int

	// DevMode runs an in-memory store with a generated JWT secret and
	// short worker ticks. Nothing survives a restart.
	DevMode bool

	// EnableDebug registers the pprof handlers.
	EnableDebug bool

	// LogLevel is the verbosity of agent logging: TRACE, DEBUG, INFO,
	// WARN, or ERROR.
	LogLevel string

	// LogJson enables JSON log output, for log shippers.
	LogJson bool

	// DatabaseURL is the Postgres DSN. Required outside dev mode.
	DatabaseURL string

	// JWTSecret signs bearer tokens. Required outside dev mode.
	JWTSecret string

	// GeocodingAPIKey is the geocoding provider key. The geocoding worker
	// idles when it is unset.
	GeocodingAPIKey string

	// RoutingBaseURL overrides the OSRM-compatible routing endpoint.
	RoutingBaseURL string

	// RedisURL points the ETA token store at Redis. Unset falls back to
	// the in-process store.
	RedisURL string

	// SMSWebhookSecret verifies inbound SMS webhook signatures. The
	// webhook rejects everything while it is unset.
	SMSWebhookSecret string

	// AllowedOrigins is the CORS allow-list for the public endpoints.
	AllowedOrigins []string

	// Workers holds the poller intervals, shortened in dev mode.
	Workers WorkerConfig

	// Version information for the agent.
	Version string

	// HTTPAPIResponseHeaders are additional headers set on every API
	// response.
	HTTPAPIResponseHeaders map[string]string
}

// WorkerConfig holds the background poller intervals. Zero values take each
// worker's default.
type WorkerConfig struct {
	GeocodeInterval    time.Duration
	ScheduleInterval   time.Duration
	RenewalInterval    time.Duration
	ReviewInterval     time.Duration
	EscalationInterval time.Duration
}

// DefaultConfig returns the baseline configuration before the environment
// and flags are applied.
func DefaultConfig() *Config {
	return &Config{
		BindAddr: DefaultBindAddr,
		Port:     DefaultPort,
		LogLevel: "INFO",
		Version:  version.GetVersion().VersionNumber(),
		Workers: WorkerConfig{
			EscalationInterval: time.Minute,
		},
	}
}

// DevConfig shortens every poller so behavior is observable interactively.
func DevConfig() *Config {
	conf := DefaultConfig()
	conf.DevMode = true
	conf.BindAddr = "127.0.0.1"
	conf.LogLevel = "DEBUG"
	conf.Workers = WorkerConfig{
		GeocodeInterval:    5 * time.Second,
		ScheduleInterval:   10 * time.Second,
		RenewalInterval:    10 * time.Second,
		ReviewInterval:     5 * time.Second,
		EscalationInterval: 5 * time.Second,
	}
	return conf
}

// LoadEnv layers the process environment onto the config. A .env file in
// the working directory is read first when present; real environment
// variables win over it.
func (c *Config) LoadEnv() error {
	// godotenv does not overwrite variables that are already set.
	_ = godotenv.Load()

	if v := os.Getenv("HOST"); v != "" {
		c.BindAddr = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("GEOCODING_API_KEY"); v != "" {
		c.GeocodingAPIKey = v
	}
	if v := os.Getenv("ROUTING_BASE_URL"); v != "" {
		c.RoutingBaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("SMS_WEBHOOK_SECRET"); v != "" {
		c.SMSWebhookSecret = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitOrigins(v)
	}
	return nil
}

// Validate rejects configurations that would fail after the listener
// opens. Dev mode substitutes the in-memory store and a generated secret.
func (c *Config) Validate() error {
	if c.DevMode {
		if c.JWTSecret == "" {
			c.JWTSecret = generateSecret()
		}
		return nil
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set (or run with -dev)")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set (or run with -dev)")
	}
	return nil
}

// HTTPAddr is the listener's host:port string.
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.BindAddr, strconv.Itoa(c.Port))
}

// Sanitized returns a copy of the config safe to expose over the agent
// introspection endpoint. Secrets are flagged as set or unset, never
// echoed.
func (c *Config) Sanitized() map[string]interface{} {
	return map[string]interface{}{
		"bindAddr":         c.BindAddr,
		"port":             c.Port,
		"devMode":          c.DevMode,
		"enableDebug":      c.EnableDebug,
		"logLevel":         c.LogLevel,
		"logJson":          c.LogJson,
		"databaseURL":      redact(c.DatabaseURL),
		"jwtSecret":        redact(c.JWTSecret),
		"geocodingAPIKey":  redact(c.GeocodingAPIKey),
		"routingBaseURL":   c.RoutingBaseURL,
		"redisURL":         redact(c.RedisURL),
		"smsWebhookSecret": redact(c.SMSWebhookSecret),
		"allowedOrigins":   c.AllowedOrigins,
	}
}

func redact(v string) string {
	if v == "" {
		return ""
	}
	return "<redacted>"
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// generateSecret produces a random dev-mode signing secret. Tokens do not
// survive an agent restart, which is acceptable for dev.
func generateSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to generate dev JWT secret: %w", err))
	}
	return hex.EncodeToString(buf)
}
