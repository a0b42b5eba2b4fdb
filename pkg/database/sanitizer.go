// Package database owns all SQL performed by the execution-logging core:
// per-tool log-table creation, execution-record inserts, and the identifier
// validation that makes dynamic DDL safe.
package database

import (
	"fmt"
	"regexp"
)

// identifierPattern is the full grammar accepted for dynamic identifiers.
// SQL has no placeholder syntax for identifiers, so this check is the sole
// defense against injection through table and column names.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsValidIdentifier reports whether name is safe to embed as a SQL
// identifier.
func IsValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// ValidationError reports an identifier that failed sanitization. It is
// raised before any remote call is attempted for that identifier.
type ValidationError struct {
	Identifier string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid SQL identifier %q", e.Identifier)
}
