package platform

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewMetadataPool creates the pgxpool used to read the services_public
// catalog. LISTEN on the invalidation channel does not use this pool;
// pkg/notify opens its own dedicated connection. It is distinct from
// the per-tenant pools held by the pool registry.
func NewMetadataPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating metadata pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging metadata database: %w", err)
	}
	return pool, nil
}
