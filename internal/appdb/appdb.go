// Package appdb opens connection pools against the pipeline's two
// Postgres-compatible databases (§6): the Audit Ledger and the extraction
// metadata store. cmd/nilscore calls Open once per database per run rather
// than sharing one pool across both (§5: "no inherited connection pool").
package appdb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open establishes a pool against dsn and verifies connectivity with a
// single Ping before returning, so a misconfigured DSN fails fast instead
// of surfacing on the first query deep into a run.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open application database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not reach application database: %w", err)
	}
	return pool, nil
}
