package httpserver

import (
	"net/http"

	"github.com/constructive-io/apigateway/pkg/tenant"
	"github.com/constructive-io/apigateway/pkg/tenantkey"
)

// dynamicOriginAllowed builds the cors.Options.AllowOriginFunc for the
// gateway: a tenant's resolved domains and its "cors" module's url list
// are the only valid Origins, read from whatever the resolver already
// cached for this tenant key. A cache miss denies the request rather
// than issuing the metadata-DB lookup a full Resolve would require,
// since CORS runs ahead of the resolver in the middleware chain.
func dynamicOriginAllowed(cache *tenant.ServiceCache, isPublic bool) func(r *http.Request, origin string) bool {
	return func(r *http.Request, origin string) bool {
		key := tenantkey.Build(r, isPublic)
		api, ok := cache.Get(key.String())
		if !ok {
			return false
		}

		for _, allowed := range api.CORSOrigins() {
			if origin == allowed {
				return true
			}
		}

		mod, ok := api.ApiModules["cors"]
		if !ok {
			return false
		}
		urls, ok := mod.Data["urls"].([]any)
		if !ok {
			return false
		}
		for _, u := range urls {
			if s, ok := u.(string); ok && s == origin {
				return true
			}
		}
		return false
	}
}
