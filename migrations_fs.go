package relay

import (
	"embed"
	"io/fs"
)

//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var schemaFS embed.FS

// GetCoreMigrationsFS returns the embedded delivery ledger schema. Postgres
// files live under data/sql/migrations and the sqlite variants one level below.
func GetCoreMigrationsFS() fs.FS {
	return schemaFS
}
