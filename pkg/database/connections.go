package database

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	// PostgreSQL driver
	_ "github.com/lib/pq"

	"github.com/shamanic-technologies/agent-base-sub002/pkg/observability"
)

// PoolConfig holds pool settings applied to every opened connection
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig returns the pool settings used when none are supplied
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// ConnectionManager opens and caches one sqlx pool per connection string.
// Tenant databases are provisioned lazily, so pools appear as tenants make
// their first logged call and live for the process lifetime.
type ConnectionManager struct {
	config PoolConfig
	logger observability.Logger

	mu    sync.Mutex
	pools map[string]*sqlx.DB
}

// NewConnectionManager creates a ConnectionManager
func NewConnectionManager(config PoolConfig, logger observability.Logger) *ConnectionManager {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if config.MaxOpenConns == 0 {
		config = DefaultPoolConfig()
	}
	return &ConnectionManager{
		config: config,
		logger: logger.WithPrefix("database.connections"),
		pools:  make(map[string]*sqlx.DB),
	}
}

// Get returns the pool for a connection string, opening it on first use
func (m *ConnectionManager) Get(ctx context.Context, dsn string) (*sqlx.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.pools[dsn]; ok {
		return db, nil
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	db.SetMaxOpenConns(m.config.MaxOpenConns)
	db.SetMaxIdleConns(m.config.MaxIdleConns)
	db.SetConnMaxLifetime(m.config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	m.logger.Info("opened database pool", map[string]interface{}{
		"dsn": sanitizeDSN(dsn),
	})

	m.pools[dsn] = db
	return db, nil
}

// Close closes every pool. Used on process shutdown.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for dsn, db := range m.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.pools, dsn)
	}
	return firstErr
}

// sanitizeDSN removes credentials from a DSN for safe logging
func sanitizeDSN(dsn string) string {
	if strings.Contains(dsn, "password=") {
		parts := strings.Split(dsn, " ")
		var sanitized []string
		for _, part := range parts {
			if strings.HasPrefix(part, "password=") {
				sanitized = append(sanitized, "password=***")
			} else {
				sanitized = append(sanitized, part)
			}
		}
		return strings.Join(sanitized, " ")
	}
	if idx := strings.Index(dsn, "://"); idx != -1 {
		if atIdx := strings.Index(dsn[idx:], "@"); atIdx != -1 {
			return dsn[:idx+3] + "***:***" + dsn[idx+atIdx:]
		}
	}
	return dsn
}
