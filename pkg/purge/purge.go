// Package purge implements the single invalidation primitive the flush
// endpoint and the notify listener both drive: dropping every cached
// service and handler entry that belongs to a given tenant database.
package purge

import (
	"context"

	"github.com/google/uuid"

	"github.com/constructive-io/apigateway/internal/telemetry"
	"github.com/constructive-io/apigateway/pkg/handler"
	"github.com/constructive-io/apigateway/pkg/tenant"
)

// Service removes cache entries by database id. Handler entries are
// removed through Builder.DeleteMatching, which runs the builder's
// eviction hook and releases the matching pool reference, so callers
// never need to touch the pool registry directly.
type Service struct {
	Cache    *tenant.ServiceCache
	Handlers *handler.Builder
}

// New builds a purge Service over the given caches.
func New(cache *tenant.ServiceCache, handlers *handler.Builder) *Service {
	return &Service{Cache: cache, Handlers: handlers}
}

// Result reports how many entries were removed from each cache.
type Result struct {
	ServiceEntries int
	HandlerEntries int
}

// Database drops every service-cache and handler-cache entry for
// databaseID, wherever its tenant key resolved to (domain, api name,
// schemata, or meta-schema mode all share the same underlying
// database id). trigger labels the telemetry counter ("notify" or
// "flush").
func (s *Service) Database(ctx context.Context, databaseID uuid.UUID, trigger string) Result {
	var result Result

	removed := s.Cache.DeleteMatching(func(key string, v *tenant.ApiStructure) bool {
		return v.DatabaseID == databaseID
	})
	result.ServiceEntries = len(removed)

	want := databaseID.String()
	before := s.Handlers.Len()
	s.Handlers.DeleteMatching(func(key string, e *handler.Entry) bool {
		return e.DatabaseID == want
	})
	result.HandlerEntries = before - s.Handlers.Len()

	telemetry.InvalidationsTotal.WithLabelValues(trigger).Add(float64(result.ServiceEntries + result.HandlerEntries))

	return result
}
