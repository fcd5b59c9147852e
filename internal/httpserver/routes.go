package httpserver

import (
	"net"
	"net/http"
	"strings"

	"github.com/constructive-io/apigateway/pkg/apierr"
	"github.com/constructive-io/apigateway/pkg/handler"
	"github.com/constructive-io/apigateway/pkg/tenant"
	"github.com/constructive-io/apigateway/pkg/tenantkey"
)

// handleGraphQL implements the dynamic dispatch pipeline: resolve the
// tenant, acquire its pool, build or reuse its handler, authenticate,
// and dispatch. Every failure before dispatch is reported through
// apierr's content-negotiated envelope.
func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := RequestIDFromContext(ctx)

	ctx, api, err := s.resolver.Resolve(ctx, r)
	if err != nil {
		apierr.Respond(w, r, s.logger, requestID, err, s.cfg.Development)
		return
	}

	ip := clientIP(r, s.cfg.TrustProxy)
	meta := requestMeta{
		anonRole:   api.AnonRole,
		authRole:   api.AuthRole,
		databaseID: api.DatabaseID.String(),
		clientIP:   ip,
		origin:     r.Header.Get("Origin"),
		userAgent:  r.Header.Get("User-Agent"),
	}
	ctx = withRequestMeta(ctx, meta)
	r = r.WithContext(ctx)

	pgPool, err := s.pools.Acquire(ctx, api.DBName)
	if err != nil {
		apierr.Respond(w, r, s.logger, requestID,
			apierr.Wrap(apierr.KindUpstreamUnavailable, "acquiring tenant pool", err), s.cfg.Development)
		return
	}
	defer s.pools.Release(api.DBName)

	key := tenantkey.Build(r, s.cfg.IsPublic).String()
	spec := handler.Spec{
		DBName:     api.DBName,
		Schemas:    api.Schema,
		AnonRole:   api.AnonRole,
		AuthRole:   api.AuthRole,
		Modules:    modulesToSettings(api.ApiModules),
		DatabaseID: api.DatabaseID.String(),
	}

	h, err := s.builder.GetOrBuild(ctx, key, spec, handler.NewSettingsFunc(settingsExtractor))
	if err != nil {
		apierr.Respond(w, r, s.logger, requestID, err, s.cfg.Development)
		return
	}

	s.authenticator.Guard(s.logger, api, pgPool, w, r, h)
}

// handleGraphiQL serves a minimal static console pointed at /graphql.
// The GraphQL execution engine itself is out of scope here; this is
// just the browser entry point operators use to poke a tenant handler.
func (s *Server) handleGraphiQL(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(graphiqlPage))
}

const graphiqlPage = `<!doctype html>
<html>
<head><title>GraphiQL</title></head>
<body>
<p>Point your GraphQL client at <code>POST /graphql</code> with the
appropriate Host or routing headers for your tenant.</p>
</body>
</html>
`

type debugCacheResponse struct {
	ServiceCacheEntries int            `json:"serviceCacheEntries"`
	HandlerCacheEntries int            `json:"handlerCacheEntries"`
	PoolRefcounts       map[string]int `json:"poolRefcounts"`
}

// handleDebugCache is a read-only introspection endpoint behind the
// same admin guard as the private routing headers; see SPEC_FULL.md
// supplement 5. The guard only challenges requests that carry one of
// those headers, so a request without them is served.
func (s *Server) handleDebugCache(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, debugCacheResponse{
		ServiceCacheEntries: s.cache.Len(),
		HandlerCacheEntries: s.builder.Len(),
		PoolRefcounts:       s.pools.Snapshot(),
	})
}

// modulesToSettings drops api modules down to the map[string]any shape
// the external handler factory expects, discarding the module name key
// (already the map key) and keeping only each module's data payload.
func modulesToSettings(modules map[string]tenant.ApiModule) map[string]any {
	if len(modules) == 0 {
		return nil
	}
	out := make(map[string]any, len(modules))
	for name, m := range modules {
		out[name] = m.Data
	}
	return out
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if i := strings.IndexByte(fwd, ','); i >= 0 {
				return strings.TrimSpace(fwd[:i])
			}
			return strings.TrimSpace(fwd)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
