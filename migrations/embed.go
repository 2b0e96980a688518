// Package migrations embeds the SQL schema for both stores. Each store has
// its own directory and its own schema_migrations table.
package migrations

import "embed"

// FS holds primary/*.sql and ledger/*.sql.
//
//go:embed primary/*.sql ledger/*.sql
var FS embed.FS

// Store directories inside FS.
const (
	Primary = "primary"
	Ledger  = "ledger"
)
