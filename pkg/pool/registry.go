// Package pool maintains a process-wide, reference-counted registry of
// per-tenant PostgreSQL connection pools, keyed by database name.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/constructive-io/apigateway/internal/telemetry"
)

// GracePeriod is how long a pool with a zero refcount is kept open
// before being closed, so that a flush immediately followed by a
// re-resolve does not pay a fresh connect cost.
const GracePeriod = 30 * time.Second

type entry struct {
	pool     *pgxpool.Pool
	refcount int
	closer   *time.Timer
}

// Registry is safe for concurrent use. Its lock is never held across a
// network operation: pool construction happens outside the lock and is
// published into the map only on success.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	connect func(ctx context.Context, dsn string) (*pgxpool.Pool, error)
	dsnFor  func(dbname string) string
}

// New creates a Registry. dsnFor maps a dbname to a full connection
// string; pools are opened with pgxpool.New.
func New(dsnFor func(dbname string) string) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		connect: func(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
			return pgxpool.New(ctx, dsn)
		},
		dsnFor: dsnFor,
	}
}

// Acquire increments dbname's refcount, connecting a new pool on first
// use. Pool connect errors are surfaced to the caller; the registry
// never retries internally.
func (r *Registry) Acquire(ctx context.Context, dbname string) (*pgxpool.Pool, error) {
	r.mu.Lock()
	if e, ok := r.entries[dbname]; ok {
		if e.closer != nil {
			e.closer.Stop()
			e.closer = nil
		}
		e.refcount++
		telemetry.PoolRefcount.WithLabelValues(dbname).Set(float64(e.refcount))
		r.mu.Unlock()
		return e.pool, nil
	}
	r.mu.Unlock()

	p, err := r.connect(ctx, r.dsnFor(dbname))
	if err != nil {
		return nil, fmt.Errorf("connecting pool for %q: %w", dbname, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have won the race while we were connecting.
	if e, ok := r.entries[dbname]; ok {
		e.refcount++
		telemetry.PoolRefcount.WithLabelValues(dbname).Set(float64(e.refcount))
		p.Close()
		return e.pool, nil
	}

	r.entries[dbname] = &entry{pool: p, refcount: 1}
	telemetry.PoolRefcount.WithLabelValues(dbname).Set(1)
	return p, nil
}

// Release decrements dbname's refcount. When it reaches zero the pool
// is scheduled for close after GracePeriod, unless re-acquired first.
func (r *Registry) Release(dbname string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[dbname]
	if !ok {
		return
	}
	e.refcount--
	if e.refcount < 0 {
		e.refcount = 0
	}
	telemetry.PoolRefcount.WithLabelValues(dbname).Set(float64(e.refcount))
	if e.refcount > 0 {
		return
	}

	e.closer = time.AfterFunc(GracePeriod, func() {
		r.closeIfIdle(dbname)
	})
}

func (r *Registry) closeIfIdle(dbname string) {
	r.mu.Lock()
	e, ok := r.entries[dbname]
	if !ok || e.refcount > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.entries, dbname)
	r.mu.Unlock()

	e.pool.Close()
	telemetry.PoolRefcount.DeleteLabelValues(dbname)
}

// Refcount returns the current refcount for dbname, for diagnostics.
func (r *Registry) Refcount(dbname string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[dbname]; ok {
		return e.refcount
	}
	return 0
}

// Snapshot returns a point-in-time copy of every tracked dbname's
// refcount, for introspection endpoints.
func (r *Registry) Snapshot() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.entries))
	for dbname, e := range r.entries {
		out[dbname] = e.refcount
	}
	return out
}

// CloseAll closes every pool immediately, regardless of refcount. It is
// idempotent and intended for process shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for dbname, e := range entries {
		if e.closer != nil {
			e.closer.Stop()
		}
		e.pool.Close()
		telemetry.PoolRefcount.DeleteLabelValues(dbname)
	}
}
