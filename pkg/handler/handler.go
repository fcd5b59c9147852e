// Package handler builds and caches per-tenant GraphQL handlers,
// coalescing concurrent builds for the same key into a single call to
// the external handler factory.
package handler

import (
	"context"
	"net/http"
	"time"
)

// Handler is the HTTP surface the external GraphQL engine exposes for
// a resolved tenant. The engine itself is out of scope; this package
// only owns its lifecycle (build-once, cache, evict).
type Handler interface {
	http.Handler
}

// Spec is the (dbname, schemas, anonRole, authRole, modules) triplet
// extracted from an ApiStructure, sufficient to build a Handler.
type Spec struct {
	DBName     string
	Schemas    []string
	AnonRole   string
	AuthRole   string
	Modules    map[string]any
	DatabaseID string
}

// SettingsFunc produces the per-request database session settings
// described in the request-context hook (role, jwt.claims.*). It is a
// pure function of the request context; it holds no shared mutable
// state.
type SettingsFunc func(ctx context.Context) map[string]string

// Factory builds a Handler bound to a specific database, schema list,
// and role pair, with a settings callback installed. Implemented by
// the external GraphQL engine; out of core scope beyond this contract.
type Factory func(ctx context.Context, connURL string, spec Spec, settings SettingsFunc) (Handler, error)

// Entry is the handler-cache value.
type Entry struct {
	DBName     string
	DatabaseID string
	Schemas    []string
	Handler    Handler
	CreatedAt  time.Time
}
