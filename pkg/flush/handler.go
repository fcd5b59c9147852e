// Package flush implements the POST /flush endpoint: a shared-secret,
// rate-limited trigger that purges the cached entries for the
// requesting tenant key (§4.8).
package flush

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/constructive-io/apigateway/pkg/purge"
	"github.com/constructive-io/apigateway/pkg/tenant"
	"github.com/constructive-io/apigateway/pkg/tenantkey"
)

// Handler serves POST /flush.
type Handler struct {
	secret   string
	limiter  *RateLimiter
	cache    *tenant.ServiceCache
	purge    *purge.Service
	isPublic bool
}

// New builds a flush Handler. secret is the shared bearer token
// required to invoke it; cache is consulted (never queried fresh) to
// find the database id behind the caller's tenant key, per §4.8.
func New(secret string, limiter *RateLimiter, cache *tenant.ServiceCache, purgeSvc *purge.Service, isPublic bool) *Handler {
	return &Handler{secret: secret, limiter: limiter, cache: cache, purge: purgeSvc, isPublic: isPublic}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(r.Context(), clientIP(r))
		if err != nil || !allowed {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
	}

	key := tenantkey.Build(r, h.isPublic)
	api, ok := h.cache.Get(key.String())
	if ok {
		h.purge.Database(r.Context(), api.DatabaseID, "flush")
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return false
	}
	presented := strings.TrimSpace(auth[len(prefix):])
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.secret)) == 1
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
