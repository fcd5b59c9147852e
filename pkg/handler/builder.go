package handler

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/constructive-io/apigateway/internal/telemetry"
	"github.com/constructive-io/apigateway/pkg/apierr"
	"github.com/constructive-io/apigateway/pkg/pool"
)

// Builder caches compiled handlers and guarantees at most one
// concurrent build per tenant key (§4.4).
type Builder struct {
	mu      sync.RWMutex
	cache   *lru.LRU[string, *Entry]
	group   singleflight.Group
	factory Factory
	pools   *pool.Registry
	dsnFor  func(dbname string) string
}

// NewBuilder constructs a Builder. factory wraps the external GraphQL
// engine; pools is the shared PG pool registry; dsnFor maps a dbname to
// the connection string the factory should use.
func NewBuilder(factory Factory, pools *pool.Registry, dsnFor func(dbname string) string, size int, ttl time.Duration) *Builder {
	b := &Builder{factory: factory, pools: pools, dsnFor: dsnFor}
	b.cache = lru.NewLRU[string, *Entry](size, b.onEvict, ttl)
	return b
}

func (b *Builder) onEvict(key string, entry *Entry) {
	b.pools.Release(entry.DBName)
}

// GetOrBuild dispatches to the cached handler for key, or builds
// exactly one new handler if none exists, coalescing concurrent
// callers via single-flight. A waiter that is cancelled returns ctx.Err();
// the in-flight build is never cancelled by a waiter (§4.4 step 4).
func (b *Builder) GetOrBuild(ctx context.Context, key string, spec Spec, settings SettingsFunc) (Handler, error) {
	b.mu.RLock()
	entry, ok := b.cache.Get(key)
	b.mu.RUnlock()
	if ok {
		telemetry.HandlerCacheLookupsTotal.WithLabelValues("hit").Inc()
		return entry.Handler, nil
	}

	telemetry.HandlerCacheLookupsTotal.WithLabelValues("inflight").Inc()
	resultCh := b.group.DoChan(key, func() (any, error) {
		return b.build(key, spec, settings)
	})

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry).Handler, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// build runs the external factory. It uses context.Background rather
// than the originating request's context, since the build must run to
// completion even if the request that triggered it is cancelled.
func (b *Builder) build(key string, spec Spec, settings SettingsFunc) (*Entry, error) {
	ctx := context.Background()
	start := time.Now()

	telemetry.HandlerCacheLookupsTotal.WithLabelValues("build").Inc()

	if _, err := b.pools.Acquire(ctx, spec.DBName); err != nil {
		telemetry.HandlerBuildDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, apierr.Wrap(apierr.KindHandlerBuildFailed, "acquiring tenant pool", err)
	}

	h, err := b.factory(ctx, b.dsnFor(spec.DBName), spec, settings)
	if err != nil {
		b.pools.Release(spec.DBName)
		telemetry.HandlerBuildDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, apierr.Wrap(apierr.KindHandlerBuildFailed, "building tenant handler", err)
	}

	entry := &Entry{DBName: spec.DBName, DatabaseID: spec.DatabaseID, Schemas: spec.Schemas, Handler: h, CreatedAt: time.Now()}

	b.mu.Lock()
	b.cache.Add(key, entry)
	b.mu.Unlock()

	telemetry.HandlerBuildDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
	return entry, nil
}

// Delete removes key from the cache, releasing its pool reference.
func (b *Builder) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Remove(key)
}

// DeleteMatching removes every entry for which predicate returns true.
func (b *Builder) DeleteMatching(predicate func(key string, entry *Entry) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range b.cache.Keys() {
		e, ok := b.cache.Peek(key)
		if !ok {
			continue
		}
		if predicate(key, e) {
			b.cache.Remove(key)
		}
	}
}

// Len reports the current number of cached handlers.
func (b *Builder) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cache.Len()
}
