// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ericfisherdev/homevault/internal/domain/model"
)

// Backend selects the credential and audit store implementation.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// KeyValue is the raw HOMEVAULT_KEY value. It is never logged.
	KeyValue     string
	KeyFile      string
	Backend      Backend
	DBPath       string
	DatabaseURL  string
	StoreTimeout time.Duration
	User         string
	LogLevel     slog.Level
}

// LogValue renders the configuration without key material or database passwords.
func (c *Config) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Bool("key_from_env", c.KeyValue != ""),
		slog.String("key_file", c.KeyFile),
		slog.String("backend", string(c.Backend)),
		slog.Duration("store_timeout", c.StoreTimeout),
		slog.String("user", c.User),
	}
	switch c.Backend {
	case BackendPostgres:
		attrs = append(attrs, slog.String("database_url", redactURL(c.DatabaseURL)))
	default:
		attrs = append(attrs, slog.String("db_path", c.DBPath))
	}
	return slog.GroupValue(attrs...)
}

// Load reads configuration from environment variables and returns a validated Config.
// Optional variables with defaults: HOMEVAULT_KEY_FILE (~/.homelab/.db_key),
// HOMEVAULT_BACKEND (sqlite), HOMEVAULT_DB_PATH (~/.homelab/homelab.db),
// HOMEVAULT_STORE_TIMEOUT (5s), HOMEVAULT_USER (system), HOMEVAULT_LOG_LEVEL (warn).
// HOMEVAULT_DATABASE_URL is required when the backend is postgres.
func Load() (*Config, error) {
	keyFile, err := pathFromEnv("HOMEVAULT_KEY_FILE", filepath.Join("~", ".homelab", ".db_key"))
	if err != nil {
		return nil, err
	}

	dbPath, err := pathFromEnv("HOMEVAULT_DB_PATH", filepath.Join("~", ".homelab", "homelab.db"))
	if err != nil {
		return nil, err
	}

	backend := BackendSQLite
	if v, ok := os.LookupEnv("HOMEVAULT_BACKEND"); ok && v != "" {
		backend = Backend(strings.ToLower(strings.TrimSpace(v)))
	}
	if backend != BackendSQLite && backend != BackendPostgres {
		return nil, configErr("HOMEVAULT_BACKEND must be %q or %q, got %q", BackendSQLite, BackendPostgres, backend)
	}

	databaseURL := os.Getenv("HOMEVAULT_DATABASE_URL")
	if backend == BackendPostgres && databaseURL == "" {
		return nil, configErr("HOMEVAULT_DATABASE_URL is required when HOMEVAULT_BACKEND=postgres")
	}

	storeTimeout := 5 * time.Second
	if v, ok := os.LookupEnv("HOMEVAULT_STORE_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, configErr("HOMEVAULT_STORE_TIMEOUT has invalid duration %q: %v", v, err)
		}
		if parsed <= 0 {
			return nil, configErr("HOMEVAULT_STORE_TIMEOUT must be positive, got %s", parsed)
		}
		storeTimeout = parsed
	}

	user := model.SystemUser
	if v := strings.TrimSpace(os.Getenv("HOMEVAULT_USER")); v != "" {
		user = v
	}

	logLevel := slog.LevelWarn
	if v, ok := os.LookupEnv("HOMEVAULT_LOG_LEVEL"); ok && v != "" {
		if err := logLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, configErr("HOMEVAULT_LOG_LEVEL has invalid level %q", v)
		}
	}

	return &Config{
		KeyValue:     strings.TrimSpace(os.Getenv("HOMEVAULT_KEY")),
		KeyFile:      keyFile,
		Backend:      backend,
		DBPath:       dbPath,
		DatabaseURL:  databaseURL,
		StoreTimeout: storeTimeout,
		User:         user,
		LogLevel:     logLevel,
	}, nil
}

func pathFromEnv(key, def string) (string, error) {
	p := def
	if v, ok := os.LookupEnv(key); ok && v != "" {
		p = v
	}
	expanded, err := expandHome(p)
	if err != nil {
		return "", configErr("%s: %v", key, err)
	}
	return expanded, nil
}

// expandHome replaces a leading "~" with the current user's home directory.
func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "[REDACTED]"
	}
	return u.Redacted()
}

func configErr(format string, args ...any) error {
	return &model.ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}
