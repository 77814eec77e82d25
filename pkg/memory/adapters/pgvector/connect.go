package pgvector

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	sharederrors "github.com/devbackplane/backplane/pkg/shared/errors"
)

// Connect opens a pgxpool.Pool against dsn, pinging before returning.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("connect vector db", "pgvector", dsn, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, sharederrors.FailedToWithDetails("ping vector db", "pgvector", dsn, err)
	}
	return pool, nil
}

// OpenMigrationDB opens a plain database/sql handle over the same DSN,
// via the pgx stdlib driver, for goose's sql.DB-shaped API (Migrate).
// It is independent of the pgxpool.Pool Connect returns; Migrate does
// not close it, so the caller closes it once migrations are applied.
func OpenMigrationDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("open vector db for migration", "pgvector", dsn, err)
	}
	return db, nil
}
