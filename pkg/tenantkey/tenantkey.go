// Package tenantkey builds the canonical cache key used by the service
// cache and handler cache from an inbound HTTP request.
package tenantkey

import (
	"net/http"
	"strings"
)

// Mode identifies which of the four TenantKey shapes was used.
type Mode string

const (
	ModeAPIName    Mode = "api"
	ModeSchemata   Mode = "schemata"
	ModeMetaSchema Mode = "metaschema"
	ModeDomain     Mode = "domain"
)

// Key is the canonical cache key plus the metadata needed to resolve it.
type Key struct {
	Mode       Mode
	Raw        string
	DatabaseID string
	APIName    string
	Schemas    []string // raw, unvalidated header schemas for Mode == ModeSchemata
	Domain     string
	Subdomain  string
}

// String returns the canonical cache-key string for this Key.
func (k Key) String() string {
	return k.Raw
}

// Build computes the TenantKey for req per the fixed precedence order
// X-Api-Name -> X-Schemata -> X-Meta-Schema -> domain. Private-header
// modes are only consulted when isPublic is false. Header names match
// case-insensitively (net/http canonicalizes them); header values are
// used as sent.
func Build(req *http.Request, isPublic bool) Key {
	if !isPublic {
		if apiName := req.Header.Get("X-Api-Name"); apiName != "" {
			databaseID := req.Header.Get("X-Database-Id")
			return Key{
				Mode:       ModeAPIName,
				Raw:        "api:" + databaseID + ":" + apiName,
				DatabaseID: databaseID,
				APIName:    apiName,
			}
		}
		if _, present := req.Header["X-Schemata"]; present {
			databaseID := req.Header.Get("X-Database-Id")
			schemas := splitCSV(req.Header.Get("X-Schemata"))
			return Key{
				Mode:       ModeSchemata,
				Raw:        "schemata:" + databaseID + ":" + strings.Join(schemas, ","),
				DatabaseID: databaseID,
				Schemas:    schemas,
			}
		}
		if req.Header.Get("X-Meta-Schema") != "" {
			databaseID := req.Header.Get("X-Database-Id")
			return Key{
				Mode:       ModeMetaSchema,
				Raw:        "metaschema:api:" + databaseID,
				DatabaseID: databaseID,
			}
		}
	}

	domain, subdomain := splitHost(req.Host)
	raw := domain
	if subdomain != "" {
		raw = subdomain + "." + domain
	}
	return Key{
		Mode:      ModeDomain,
		Raw:       raw,
		Domain:    domain,
		Subdomain: subdomain,
	}
}

// splitHost separates a request Host into (domain, subdomain), stripping
// any port and the leading "www" label, which is never part of the key.
func splitHost(host string) (domain, subdomain string) {
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host, ""
	}

	sub := labels[0]
	domain = strings.Join(labels[1:], ".")
	if sub == "www" {
		return domain, ""
	}
	return domain, sub
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
