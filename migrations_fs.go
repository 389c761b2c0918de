package rfp

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the engine schema with sqlite alternatives under
// data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the schema for actions, requests for proposal and counterparties.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}
