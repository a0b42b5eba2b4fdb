package database

// sqlTypes maps JSON Schema types to the SQL column types used in derived
// log tables. Unrecognized types fall back to TEXT so a novel parameter
// type never blocks table creation.
var sqlTypes = map[string]string{
	"string":  "TEXT",
	"integer": "INTEGER",
	"number":  "REAL",
	"boolean": "BOOLEAN",
	"object":  "JSONB",
	"array":   "JSONB",
}

// sqlTypeFor returns the SQL column type for a JSON Schema type.
func sqlTypeFor(jsonType string) string {
	if sqlType, ok := sqlTypes[jsonType]; ok {
		return sqlType
	}
	return "TEXT"
}
