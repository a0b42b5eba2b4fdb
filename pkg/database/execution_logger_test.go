package database

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shamanic-technologies/agent-base-sub002/pkg/models"
)

type fakeResolver struct {
	uri      string
	requests []models.TenantKey
}

func (f *fakeResolver) ConnectionURIFor(ctx context.Context, key models.TenantKey) (string, error) {
	f.requests = append(f.requests, key)
	return f.uri, nil
}

type fakeConnections struct {
	db   *sqlx.DB
	dsns []string
}

func (f *fakeConnections) Get(ctx context.Context, dsn string) (*sqlx.DB, error) {
	f.dsns = append(f.dsns, dsn)
	return f.db, nil
}

type passthroughNormalizer struct{}

func (passthroughNormalizer) Normalize(result interface{}) interface{} { return result }

func newTestLogger(t *testing.T, db *sqlx.DB, resolver TenantResolver, systemDSN string) *ExecutionLogger {
	tables, err := NewTableProvisioner(nil, nil)
	require.NoError(t, err)

	logger, err := NewExecutionLogger(ExecutionLoggerConfig{
		Resolver:    resolver,
		SystemDSN:   systemDSN,
		Connections: &fakeConnections{db: db},
		Tables:      tables,
		Normalizer:  passthroughNormalizer{},
	})
	require.NoError(t, err)
	return logger
}

// expectTableKnown stubs the existence check and the actual-column lookup
// for a table holding the system columns plus the given parameter columns.
func expectTableKnown(mock sqlmock.Sqlmock, tableName string, columns ...string) {
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(tableName).
		WillReturnRows(existsRows(true))

	rows := sqlmock.NewRows([]string{"column_name"})
	for _, name := range []string{"id", "created_at", "updated_at", "execution_result"} {
		rows.AddRow(name)
	}
	for _, name := range columns {
		rows.AddRow(name)
	}
	mock.ExpectQuery("SELECT column_name").
		WithArgs(tableName).
		WillReturnRows(rows)
}

func TestLogInsertsDeclaredParameters(t *testing.T) {
	db, mock := setupMockDB(t)
	logger := newTestLogger(t, db, nil, "system-dsn")

	def := models.ToolDefinition{
		Kind: models.ToolKindNative,
		Native: &models.NativeTool{
			ID: "send_email",
			Parameters: models.ParameterSchema{
				{Name: "email", Type: "string"},
				{Name: "age", Type: "integer"},
			},
		},
	}

	expectTableKnown(mock, "send_email", "email", "age")
	mock.ExpectExec(`INSERT INTO "send_email" \("id", "created_at", "updated_at", "execution_result", "email", "age"\)`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), []byte(`{"status":"sent"}`), "bob@example.com", 42).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := logger.Log(context.Background(), nil, def,
		map[string]interface{}{"email": "bob@example.com", "age": 42},
		map[string]interface{}{"status": "sent"},
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogOmitsUndeclaredAndMissingParameters(t *testing.T) {
	db, mock := setupMockDB(t)
	logger := newTestLogger(t, db, nil, "system-dsn")

	def := models.ToolDefinition{
		Kind: models.ToolKindNative,
		Native: &models.NativeTool{
			ID: "send_email",
			Parameters: models.ParameterSchema{
				{Name: "email", Type: "string"},
				{Name: "age", Type: "integer"},
			},
		},
	}

	expectTableKnown(mock, "send_email", "email", "age")
	// age was not supplied and surprise was never declared: neither may
	// appear in the insert
	mock.ExpectExec(`INSERT INTO "send_email" \("id", "created_at", "updated_at", "execution_result", "email"\) VALUES \(\$1, \$2, \$3, \$4, \$5\)`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "bob@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := logger.Log(context.Background(), nil, def,
		map[string]interface{}{"email": "bob@example.com", "surprise": "extra"},
		"ok",
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogOmitsParametersTheTablePredates(t *testing.T) {
	db, mock := setupMockDB(t)
	logger := newTestLogger(t, db, nil, "system-dsn")

	// The table was created before the schema gained age. Existing tables
	// are never altered, so the insert must not name that column even
	// though the schema declares it and the call supplies a value.
	def := models.ToolDefinition{
		Kind: models.ToolKindNative,
		Native: &models.NativeTool{
			ID: "send_email",
			Parameters: models.ParameterSchema{
				{Name: "email", Type: "string"},
				{Name: "age", Type: "integer"},
			},
		},
	}

	expectTableKnown(mock, "send_email", "email")
	mock.ExpectExec(`INSERT INTO "send_email" \("id", "created_at", "updated_at", "execution_result", "email"\) VALUES \(\$1, \$2, \$3, \$4, \$5\)`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "bob@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := logger.Log(context.Background(), nil, def,
		map[string]interface{}{"email": "bob@example.com", "age": 42},
		"ok",
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogMarshalsStructuredParameterValues(t *testing.T) {
	db, mock := setupMockDB(t)
	logger := newTestLogger(t, db, nil, "system-dsn")

	def := models.ToolDefinition{
		Kind: models.ToolKindNative,
		Native: &models.NativeTool{
			ID: "create_order",
			Parameters: models.ParameterSchema{
				{Name: "items", Type: "array"},
			},
		},
	}

	expectTableKnown(mock, "create_order", "items")
	mock.ExpectExec(`INSERT INTO "create_order"`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), []byte(`["a","b"]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := logger.Log(context.Background(), nil, def,
		map[string]interface{}{"items": []interface{}{"a", "b"}},
		nil,
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogNativeToolUsesSystemDatabase(t *testing.T) {
	db, mock := setupMockDB(t)
	connections := &fakeConnections{db: db}
	tables, err := NewTableProvisioner(nil, nil)
	require.NoError(t, err)

	logger, err := NewExecutionLogger(ExecutionLoggerConfig{
		SystemDSN:   "system-dsn",
		Connections: connections,
		Tables:      tables,
		Normalizer:  passthroughNormalizer{},
	})
	require.NoError(t, err)

	def := models.ToolDefinition{
		Kind:   models.ToolKindNative,
		Native: &models.NativeTool{ID: "ping"},
	}

	expectTableKnown(mock, "ping")
	mock.ExpectExec(`INSERT INTO "ping"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, logger.Log(context.Background(), nil, def, nil, "pong"))
	assert.Equal(t, []string{"system-dsn"}, connections.dsns)
}

func TestLogAPIToolUsesTenantDatabase(t *testing.T) {
	db, mock := setupMockDB(t)
	resolver := &fakeResolver{uri: "tenant-dsn"}
	connections := &fakeConnections{db: db}
	tables, err := NewTableProvisioner(nil, nil)
	require.NoError(t, err)

	logger, err := NewExecutionLogger(ExecutionLoggerConfig{
		Resolver:    resolver,
		Connections: connections,
		Tables:      tables,
		Normalizer:  passthroughNormalizer{},
	})
	require.NoError(t, err)

	spec, err := json.Marshal(map[string]interface{}{
		"openapi": "3.0.0",
		"info":    map[string]string{"title": "CRM", "version": "2.0"},
		"paths": map[string]interface{}{
			"/contacts": map[string]interface{}{
				"get": map[string]interface{}{
					"parameters": []interface{}{
						map[string]interface{}{
							"name": "query", "in": "query",
							"schema": map[string]string{"type": "string"},
						},
					},
					"responses": map[string]interface{}{"200": map[string]string{"description": "ok"}},
				},
			},
		},
	})
	require.NoError(t, err)

	def := models.ToolDefinition{
		Kind: models.ToolKindAPI,
		API:  &models.APITool{Name: "crm_search", OpenAPISpec: spec},
	}
	tenant := &models.TenantKey{OrganizationID: "org", UserID: "user"}

	expectTableKnown(mock, "crm_2_0", "query")
	mock.ExpectExec(`INSERT INTO "crm_2_0" \("id", "created_at", "updated_at", "execution_result", "query"\)`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "acme").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = logger.Log(context.Background(), tenant, def,
		map[string]interface{}{"query": "acme"},
		map[string]interface{}{"contacts": []interface{}{}},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant-dsn"}, connections.dsns)
	require.Len(t, resolver.requests, 1)
	assert.Equal(t, *tenant, resolver.requests[0])
}

func TestLogAPIToolRequiresTenant(t *testing.T) {
	db, _ := setupMockDB(t)
	logger := newTestLogger(t, db, &fakeResolver{uri: "tenant-dsn"}, "")

	def := models.ToolDefinition{
		Kind: models.ToolKindAPI,
		API: &models.APITool{Name: "x", OpenAPISpec: json.RawMessage(
			`{"openapi":"3.0.0","info":{"title":"X","version":"1"},"paths":{}}`,
		)},
	}

	err := logger.Log(context.Background(), nil, def, nil, nil)
	assert.Error(t, err)
}

func TestLogNativeToolWithoutSystemDSN(t *testing.T) {
	db, _ := setupMockDB(t)
	logger := newTestLogger(t, db, nil, "")

	def := models.ToolDefinition{
		Kind:   models.ToolKindNative,
		Native: &models.NativeTool{ID: "ping"},
	}

	err := logger.Log(context.Background(), nil, def, nil, nil)
	assert.Error(t, err)
}

func TestLogRejectsInvalidTableIdentifier(t *testing.T) {
	db, _ := setupMockDB(t)
	logger := newTestLogger(t, db, nil, "system-dsn")

	def := models.ToolDefinition{
		Kind:   models.ToolKindNative,
		Native: &models.NativeTool{ID: "drop;table"},
	}

	err := logger.Log(context.Background(), nil, def, nil, nil)
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestLogSurfacesInsertFailures(t *testing.T) {
	db, mock := setupMockDB(t)
	logger := newTestLogger(t, db, nil, "system-dsn")

	def := models.ToolDefinition{
		Kind:   models.ToolKindNative,
		Native: &models.NativeTool{ID: "ping"},
	}

	expectTableKnown(mock, "ping")
	mock.ExpectExec(`INSERT INTO "ping"`).
		WillReturnError(assert.AnError)

	err := logger.Log(context.Background(), nil, def, nil, nil)
	assert.Error(t, err)
}
