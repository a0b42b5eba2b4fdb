package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shamanic-technologies/agent-base-sub002/pkg/models"
	"github.com/shamanic-technologies/agent-base-sub002/pkg/observability"
)

// System columns present in every log table. The execution result lands in
// execution_result as JSONB; parameter columns follow the tool's schema.
const systemColumnsDDL = `id UUID PRIMARY KEY,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	execution_result JSONB`

// knownTableCacheSize bounds the known-table memo. The remote catalog is
// the source of truth; this only skips repeat existence checks.
const knownTableCacheSize = 4096

// TableProvisioner guarantees that a log table exists before a write. It is
// check-then-act against the remote catalog and therefore race-tolerant
// rather than race-free: a concurrent CREATE from another process is
// treated as success.
type TableProvisioner struct {
	known   *lru.Cache[string, struct{}]
	columns *lru.Cache[string, map[string]struct{}]
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewTableProvisioner creates a TableProvisioner
func NewTableProvisioner(logger observability.Logger, metrics observability.MetricsClient) (*TableProvisioner, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	known, err := lru.New[string, struct{}](knownTableCacheSize)
	if err != nil {
		return nil, err
	}
	columns, err := lru.New[string, map[string]struct{}](knownTableCacheSize)
	if err != nil {
		return nil, err
	}

	return &TableProvisioner{
		known:   known,
		columns: columns,
		logger:  logger.WithPrefix("database.tables"),
		metrics: metrics,
	}, nil
}

// EnsureTable creates the log table if it does not exist. The table name
// must be a valid identifier; column entries with invalid names are dropped
// with a warning rather than failing the operation. Existing tables are
// never altered: the column set is additive only, and values for columns a
// table never had are omitted at insert time instead.
func (p *TableProvisioner) EnsureTable(ctx context.Context, db *sqlx.DB, tableName string, columns []models.ColumnSpec) error {
	if !IsValidIdentifier(tableName) {
		return &ValidationError{Identifier: tableName}
	}

	cacheKey := fmt.Sprintf("%p:%s", db, tableName)
	if _, ok := p.known.Get(cacheKey); ok {
		return nil
	}

	exists, err := p.tableExists(ctx, db, tableName)
	if err != nil {
		return err
	}
	if exists {
		p.known.Add(cacheKey, struct{}{})
		return nil
	}

	if err := p.createTable(ctx, db, tableName, columns); err != nil {
		return err
	}

	p.known.Add(cacheKey, struct{}{})
	p.metrics.IncrementCounter("database.tables.created", 1)
	return nil
}

// TableColumns reports the columns the table actually has. A table whose
// tool schema later grew a parameter still has its original columns, so
// writers intersect against this set rather than the declared schema.
// Existing tables are never altered, which makes the set safe to memoize.
func (p *TableProvisioner) TableColumns(ctx context.Context, db *sqlx.DB, tableName string) (map[string]struct{}, error) {
	if !IsValidIdentifier(tableName) {
		return nil, &ValidationError{Identifier: tableName}
	}

	cacheKey := fmt.Sprintf("%p:%s", db, tableName)
	if cached, ok := p.columns.Get(cacheKey); ok {
		return cached, nil
	}

	var names []string
	err := db.SelectContext(ctx, &names,
		`SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1`, tableName)
	if err != nil {
		return nil, fmt.Errorf("listing columns of %s: %w", tableName, err)
	}

	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	p.columns.Add(cacheKey, set)
	return set, nil
}

func (p *TableProvisioner) tableExists(ctx context.Context, db *sqlx.DB, tableName string) (bool, error) {
	var exists bool
	err := db.GetContext(ctx, &exists,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, tableName)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", tableName, err)
	}
	return exists, nil
}

func (p *TableProvisioner) createTable(ctx context.Context, db *sqlx.DB, tableName string, columns []models.ColumnSpec) error {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(pq.QuoteIdentifier(tableName))
	b.WriteString(" (\n\t")
	b.WriteString(systemColumnsDDL)

	for _, column := range columns {
		if !IsValidIdentifier(column.Name) {
			p.logger.Warn("dropping column with invalid name", map[string]interface{}{
				"table":  tableName,
				"column": column.Name,
			})
			continue
		}
		b.WriteString(",\n\t")
		b.WriteString(pq.QuoteIdentifier(column.Name))
		b.WriteByte(' ')
		b.WriteString(sqlTypeFor(column.JSONType))
	}
	b.WriteString("\n)")

	if _, err := db.ExecContext(ctx, b.String()); err != nil {
		// Another writer racing on the same first log write may have
		// created the table between our existence check and this CREATE.
		if isDuplicateTable(err) {
			p.logger.Debug("table created concurrently", map[string]interface{}{
				"table": tableName,
			})
			return nil
		}
		return fmt.Errorf("creating table %s: %w", tableName, err)
	}

	p.logger.Info("created log table", map[string]interface{}{
		"table":   tableName,
		"columns": len(columns),
	})
	return nil
}

// isDuplicateTable recognizes the errors Postgres raises when two
// connections create the same table at once. IF NOT EXISTS does not fully
// close that race: the catalog insert itself can still collide.
func isDuplicateTable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 42P07 duplicate_table, 23505 unique_violation on the catalog row
		return pqErr.Code == "42P07" || pqErr.Code == "23505"
	}
	return false
}
