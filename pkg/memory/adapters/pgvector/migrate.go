package pgvector

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	sharederrors "github.com/devbackplane/backplane/pkg/shared/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every pending migration in migrations/ against db
// (spec's "goose owns its migration set"). Call once at startup before
// constructing an Adapter.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return sharederrors.FailedTo("set goose dialect", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return sharederrors.FailedTo("apply pgvector migrations", err)
	}
	return nil
}
