// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/notify and cmd/scheduler.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissing is returned by Validate when required values are not set.
var ErrMissing = errors.New("missing required configuration")

// --------------------------------------------------------------------------
// Transport and sink kinds
// --------------------------------------------------------------------------

const (
	TransportHTTP = "http"
	TransportLog  = "log"

	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Channels
	EmailEnabled bool
	SMSEnabled   bool

	// Email transport
	EmailTransport string // http, log
	EmailAPIURL    string
	EmailAPIKey    string
	EmailFrom      string
	EmailSubject   string

	// SMS transport
	SMSTransport  string // http, log
	SMSAPIURL     string
	SMSAPIKey     string
	SMSFromNumber string

	TransportRequestsPerSecond int

	// Orchestration
	Workers     int
	CallTimeout time.Duration

	// Notification log sink
	LogSink     string // postgres, sqlite
	LogSinkPath string

	// Maintenance; zero retention disables pruning
	LogRetention        time.Duration
	MaintenanceInterval time.Duration

	// Run lock
	RedisURL    string
	RunLockTTL  time.Duration
	RunSchedule string

	// Status API
	StatusHost       string
	StatusPort       int
	CORSAllowOrigins []string

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", envOr("SUPABASE_DB_URL", ""))
	if dbURL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL or SUPABASE_DB_URL must be set", ErrMissing)
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 8),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		EmailEnabled: envBool("NOTIFY_EMAIL_ENABLED", true),
		SMSEnabled:   envBool("NOTIFY_SMS_ENABLED", false),

		EmailTransport: strings.ToLower(envOr("EMAIL_TRANSPORT", TransportHTTP)),
		EmailAPIURL:    envOr("EMAIL_API_URL", ""),
		EmailAPIKey:    envOr("EMAIL_API_KEY", ""),
		EmailFrom:      envOr("EMAIL_FROM", ""),
		EmailSubject:   envOr("EMAIL_SUBJECT", "Your Stock Update"),

		SMSTransport:  strings.ToLower(envOr("SMS_TRANSPORT", TransportHTTP)),
		SMSAPIURL:     envOr("SMS_API_URL", ""),
		SMSAPIKey:     envOr("SMS_API_KEY", ""),
		SMSFromNumber: envOr("SMS_FROM_NUMBER", envOr("TWILIO_PHONE_NUMBER", "")),

		TransportRequestsPerSecond: envInt("TRANSPORT_REQUESTS_PER_SECOND", 10),

		Workers:     envInt("NOTIFY_WORKERS", 4),
		CallTimeout: time.Duration(envInt("NOTIFY_CALL_TIMEOUT_SECONDS", 10)) * time.Second,

		LogSink:     strings.ToLower(envOr("LOG_SINK", SinkPostgres)),
		LogSinkPath: envOr("LOG_SINK_PATH", "./data/notification_log.db"),

		LogRetention:        time.Duration(envInt("LOG_RETENTION_DAYS", 90)) * 24 * time.Hour,
		MaintenanceInterval: time.Duration(envInt("MAINTENANCE_INTERVAL_MINUTES", 60)) * time.Minute,

		RedisURL:    envOr("REDIS_URL", ""),
		RunLockTTL:  time.Duration(envInt("RUN_LOCK_TTL_MINUTES", 15)) * time.Minute,
		RunSchedule: envOr("NOTIFY_SCHEDULE", "0 * * * *"),

		StatusHost: envOr("STATUS_HOST", "0.0.0.0"),
		StatusPort: envInt("STATUS_PORT", envInt("PORT", 8090)),
		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:4321",
		}),

		LogLevel: strings.ToLower(envOr("LOG_LEVEL", "info")),
	}, nil
}

// Validate checks that every enabled channel has what its transport needs
// and that the sink and transport kinds are known. All problems are
// reported together.
func (c *Config) Validate() error {
	var missing []string

	if c.EmailEnabled {
		switch c.EmailTransport {
		case TransportHTTP:
			missing = appendIfEmpty(missing, "EMAIL_API_URL", c.EmailAPIURL)
			missing = appendIfEmpty(missing, "EMAIL_API_KEY", c.EmailAPIKey)
			missing = appendIfEmpty(missing, "EMAIL_FROM", c.EmailFrom)
		case TransportLog:
		default:
			return fmt.Errorf("unknown EMAIL_TRANSPORT %q", c.EmailTransport)
		}
	}

	if c.SMSEnabled {
		switch c.SMSTransport {
		case TransportHTTP:
			missing = appendIfEmpty(missing, "SMS_API_URL", c.SMSAPIURL)
			missing = appendIfEmpty(missing, "SMS_API_KEY", c.SMSAPIKey)
			missing = appendIfEmpty(missing, "SMS_FROM_NUMBER", c.SMSFromNumber)
		case TransportLog:
		default:
			return fmt.Errorf("unknown SMS_TRANSPORT %q", c.SMSTransport)
		}
	}

	switch c.LogSink {
	case SinkPostgres:
	case SinkSQLite:
		missing = appendIfEmpty(missing, "LOG_SINK_PATH", c.LogSinkPath)
	default:
		return fmt.Errorf("unknown LOG_SINK %q", c.LogSink)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func appendIfEmpty(missing []string, key, value string) []string {
	if strings.TrimSpace(value) == "" {
		return append(missing, key)
	}
	return missing
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
