package db

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InitPostgres opens the shared connection pool. A missing DSN is allowed so
// the service can run memory-only in development; callers get nil back and
// must tolerate it.
func InitPostgres(ctx context.Context, dsn string) *pgxpool.Pool {
	if dsn == "" {
		log.Println("DATABASE_URL not set, running without Postgres persistence")
		return nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("failed to ping Postgres: %v", err)
	}
	log.Println("Connected to Postgres")
	return pool
}
