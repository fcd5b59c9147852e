// Package adminguard gates the private-gateway routing headers
// (X-Api-Name, X-Schemata, X-Meta-Schema) behind an admin API key and
// an IP allowlist when the gateway is not running in public mode.
package adminguard

import (
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/constructive-io/apigateway/pkg/apierr"
)

// Guard verifies the X-Admin-Api-Key header and the caller's IP before
// letting a private-routing-header request through.
type Guard struct {
	keyHash    []byte
	allowed    []*net.IPNet
	trustProxy bool
	configured bool
}

// New builds a Guard. apiKey is hashed once, at construction time,
// with bcrypt; allowedCIDRs that fail to parse are skipped. A Guard
// built with an empty apiKey treats every request as unauthorized,
// since an unset admin key must never silently allow private routing.
func New(apiKey string, allowedCIDRs []string, trustProxy bool) (*Guard, error) {
	g := &Guard{trustProxy: trustProxy}
	if apiKey == "" {
		return g, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	g.keyHash = hash
	g.configured = true

	for _, cidr := range allowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		g.allowed = append(g.allowed, network)
	}
	return g, nil
}

// Allow reports whether r may use the private routing headers.
func (g *Guard) Allow(r *http.Request) bool {
	if !g.configured {
		return false
	}
	presented := r.Header.Get("X-Admin-Api-Key")
	if presented == "" {
		return false
	}
	if bcrypt.CompareHashAndPassword(g.keyHash, []byte(presented)) != nil {
		return false
	}
	return g.ipAllowed(r)
}

// Middleware rejects requests that carry a private routing header
// (X-Api-Name, X-Schemata, X-Meta-Schema) unless Allow(r) passes.
// Requests without any of those headers pass through untouched.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !usesPrivateRouting(r) {
			next.ServeHTTP(w, r)
			return
		}
		if !g.Allow(r) {
			apierr.Respond(w, r, nil, "", apierr.ErrAdminAuthRequired, false)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func usesPrivateRouting(r *http.Request) bool {
	if r.Header.Get("X-Api-Name") != "" {
		return true
	}
	if _, present := r.Header["X-Schemata"]; present {
		return true
	}
	return r.Header.Get("X-Meta-Schema") != ""
}

func (g *Guard) ipAllowed(r *http.Request) bool {
	if len(g.allowed) == 0 {
		return true
	}
	ip := clientIP(r, g.trustProxy)
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range g.allowed {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
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

