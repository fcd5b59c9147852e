// Package tenant resolves an inbound HTTP request to the ApiStructure
// that describes which database, roles, and schemas serve it, and
// caches that resolution.
package tenant

import "github.com/google/uuid"

// ApiModule is a named feature descriptor attached to an API. Only
// "cors" is read by the gateway itself (by the HTTP layer's CORS
// check); all modules are forwarded verbatim to the handler builder.
type ApiModule struct {
	Name string
	Data map[string]any
}

// RLSModule configures row-level-security-backed authentication for a
// tenant. Its presence toggles whether the auth middleware runs at all.
type RLSModule struct {
	PrivateSchema      string
	Authenticate       string
	AuthenticateStrict string
	CurrentRole        string
	CurrentRoleID      string
}

// ApiStructure is the resolved, cacheable description of a tenant
// endpoint.
type ApiStructure struct {
	DBName     string
	AnonRole   string
	AuthRole   string
	Schema     []string
	ApiModules map[string]ApiModule
	RLSModule  *RLSModule
	Domains    []string
	DatabaseID uuid.UUID
	IsPublic   bool
}

// CORSOrigins returns the domain list owned by this tenant, the set an
// AllowOriginFunc should check against. Returns nil when no domains
// were configured; the "cors" module's urls are not included.
func (a *ApiStructure) CORSOrigins() []string {
	if len(a.Domains) == 0 {
		return nil
	}
	return a.Domains
}

// Token is the opaque record returned by a tenant's authenticate SQL
// function. Only ID and UserID are relied on by the core; everything
// else is forwarded as jwt.claims.* settings via Claims.
type Token struct {
	ID     string
	UserID string
	Claims map[string]any
}
