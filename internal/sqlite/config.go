// File path: internal/sqlite/config.go
package sqlite

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config tunes the SQLite connection pool backing the clause catalog.
type Config struct {
	Path            string
	BusyTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfig reads the SOPCHECK_DB_* environment overrides and applies
// defaults.
func LoadConfig() Config {
	cfg := Config{
		Path:            "data/clauses.db",
		BusyTimeout:     5 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
	if path := strings.TrimSpace(os.Getenv("SOPCHECK_DB_PATH")); path != "" {
		cfg.Path = path
	}
	if busy := strings.TrimSpace(os.Getenv("SOPCHECK_DB_BUSY_TIMEOUT")); busy != "" {
		if parsed, err := time.ParseDuration(busy); err == nil && parsed > 0 {
			cfg.BusyTimeout = parsed
		}
	}
	if maxOpen := strings.TrimSpace(os.Getenv("SOPCHECK_DB_MAX_OPEN_CONNS")); maxOpen != "" {
		if value, err := strconv.Atoi(maxOpen); err == nil && value > 0 {
			cfg.MaxOpenConns = value
		}
	}
	if maxIdle := strings.TrimSpace(os.Getenv("SOPCHECK_DB_MAX_IDLE_CONNS")); maxIdle != "" {
		if value, err := strconv.Atoi(maxIdle); err == nil && value > 0 {
			cfg.MaxIdleConns = value
		}
	}
	return cfg
}
