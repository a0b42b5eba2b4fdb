package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shamanic-technologies/agent-base-sub002/pkg/models"
	"github.com/shamanic-technologies/agent-base-sub002/pkg/observability"
	"github.com/shamanic-technologies/agent-base-sub002/pkg/tools"
)

// TenantResolver resolves a tenant to a database connection string.
// Implemented by provisioning.Provisioner.
type TenantResolver interface {
	ConnectionURIFor(ctx context.Context, key models.TenantKey) (string, error)
}

// ResultNormalizer cleans a result value before storage. Implemented by
// results.Normalizer.
type ResultNormalizer interface {
	Normalize(result interface{}) interface{}
}

// ConnectionProvider supplies database pools by connection string.
// Implemented by ConnectionManager.
type ConnectionProvider interface {
	Get(ctx context.Context, dsn string) (*sqlx.DB, error)
}

// ExecutionLoggerConfig holds ExecutionLogger dependencies
type ExecutionLoggerConfig struct {
	// Resolver supplies tenant database connections. Required for logging
	// api-tool executions.
	Resolver TenantResolver

	// SystemDSN is the fixed connection string for system-wide logs
	// (native tool executions). Required for logging native-tool
	// executions.
	SystemDSN string

	Connections ConnectionProvider
	Tables      *TableProvisioner
	Normalizer  ResultNormalizer
	Logger      observability.Logger
	Metrics     observability.MetricsClient
}

// ExecutionLogger records one row per tool invocation into that tool's log
// table, provisioning the tenant database and the table on the way when
// needed. Failures surface to the caller, but logging is best-effort
// observability: the tool invocation that produced the result must never
// be affected by a logging failure, so callers fire-and-report.
type ExecutionLogger struct {
	resolver    TenantResolver
	systemDSN   string
	connections ConnectionProvider
	tables      *TableProvisioner
	normalizer  ResultNormalizer
	logger      observability.Logger
	metrics     observability.MetricsClient
}

// NewExecutionLogger creates an ExecutionLogger
func NewExecutionLogger(cfg ExecutionLoggerConfig) (*ExecutionLogger, error) {
	if cfg.Connections == nil {
		return nil, fmt.Errorf("execution logger requires a connection manager")
	}
	if cfg.Tables == nil {
		return nil, fmt.Errorf("execution logger requires a table provisioner")
	}
	if cfg.Normalizer == nil {
		return nil, fmt.Errorf("execution logger requires a result normalizer")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNoopMetricsClient()
	}

	return &ExecutionLogger{
		resolver:    cfg.Resolver,
		systemDSN:   cfg.SystemDSN,
		connections: cfg.Connections,
		tables:      cfg.Tables,
		normalizer:  cfg.Normalizer,
		logger:      cfg.Logger.WithPrefix("database.execlog"),
		metrics:     cfg.Metrics,
	}, nil
}

// Log records one tool invocation. Native tool logs go to the fixed system
// database; api tool logs go to the invoking tenant's database. Within a
// call the steps are strictly sequential: provision, ensure table,
// normalize, insert.
func (l *ExecutionLogger) Log(ctx context.Context, tenant *models.TenantKey, def models.ToolDefinition, params map[string]interface{}, result interface{}) error {
	start := time.Now()

	if err := def.Validate(); err != nil {
		return err
	}

	tableName, err := tools.TableNameFor(def)
	if err != nil {
		return err
	}
	// Fail on a bad table name before any remote call is made
	if !IsValidIdentifier(tableName) {
		return &ValidationError{Identifier: tableName}
	}

	columns, err := tools.ExtractColumns(def)
	if err != nil {
		return err
	}

	dsn, err := l.resolveDSN(ctx, tenant, def)
	if err != nil {
		return err
	}

	db, err := l.connections.Get(ctx, dsn)
	if err != nil {
		return err
	}

	if err := l.tables.EnsureTable(ctx, db, tableName, columns); err != nil {
		return err
	}

	// Existing tables are never altered, so a tool schema that grew a
	// parameter after the table was created declares columns the table
	// does not have. The insert names only columns that actually exist.
	tableColumns, err := l.tables.TableColumns(ctx, db, tableName)
	if err != nil {
		return err
	}

	normalized := l.normalizer.Normalize(result)

	err = l.insert(ctx, db, tableName, columns, tableColumns, params, normalized)
	l.metrics.RecordOperation("execution_log", "insert", err == nil, time.Since(start).Seconds(), nil)
	if err != nil {
		return err
	}

	l.logger.Debug("logged tool execution", map[string]interface{}{
		"table": tableName,
	})
	return nil
}

// resolveDSN picks the target database for a log write: tenant-scoped for
// api tools, the fixed system database for native tools.
func (l *ExecutionLogger) resolveDSN(ctx context.Context, tenant *models.TenantKey, def models.ToolDefinition) (string, error) {
	if def.Kind == models.ToolKindNative {
		if l.systemDSN == "" {
			return "", fmt.Errorf("no system database configured for native tool logs")
		}
		return l.systemDSN, nil
	}

	if l.resolver == nil {
		return "", fmt.Errorf("no tenant resolver configured for api tool logs")
	}
	if tenant == nil {
		return "", fmt.Errorf("api tool logs require a tenant key")
	}
	return l.resolver.ConnectionURIFor(ctx, *tenant)
}

// insert writes one execution record. Identifiers come only from the
// already-sanitized schema; every value is bound through a placeholder.
// Declared parameters the call did not supply, supplied parameters the
// schema never declared, and declared parameters the table predates are
// all omitted rather than treated as errors, which tolerates schema
// evolution in every direction.
func (l *ExecutionLogger) insert(ctx context.Context, db *sqlx.DB, tableName string, columns []models.ColumnSpec, tableColumns map[string]struct{}, params map[string]interface{}, result interface{}) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling execution result: %w", err)
	}

	now := time.Now().UTC()
	names := []string{"id", "created_at", "updated_at", "execution_result"}
	values := []interface{}{uuid.New().String(), now, now, resultJSON}

	for _, column := range columns {
		if !IsValidIdentifier(column.Name) {
			continue
		}
		if _, ok := tableColumns[column.Name]; !ok {
			l.logger.Debug("omitting parameter the table predates", map[string]interface{}{
				"table":  tableName,
				"column": column.Name,
			})
			continue
		}
		value, ok := params[column.Name]
		if !ok {
			continue
		}
		bound, err := bindableValue(column.JSONType, value)
		if err != nil {
			l.logger.Warn("dropping unbindable parameter value", map[string]interface{}{
				"table":  tableName,
				"column": column.Name,
				"error":  err.Error(),
			})
			continue
		}
		names = append(names, column.Name)
		values = append(values, bound)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pq.QuoteIdentifier(tableName))
	b.WriteString(" (")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pq.QuoteIdentifier(name))
	}
	b.WriteString(") VALUES (")
	for i := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i+1)
	}
	b.WriteString(")")

	if _, err := db.ExecContext(ctx, b.String(), values...); err != nil {
		return fmt.Errorf("inserting into %s: %w", tableName, err)
	}
	return nil
}

// bindableValue converts a parameter value into something the driver can
// bind. Structured values go to their JSON encoding for JSONB columns;
// scalars pass through.
func bindableValue(jsonType string, value interface{}) (interface{}, error) {
	switch jsonType {
	case "object", "array":
		return json.Marshal(value)
	}
	switch value.(type) {
	case map[string]interface{}, []interface{}:
		return json.Marshal(value)
	default:
		return value, nil
	}
}
