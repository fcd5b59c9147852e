package tenant

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/constructive-io/apigateway/pkg/apierr"
	"github.com/constructive-io/apigateway/pkg/tenantkey"
)

// Resolver implements §4.3: it maps an inbound request to an
// ApiStructure, consulting the service cache before any metadata-DB
// I/O and populating it on a successful lookup.
type Resolver struct {
	store       Store
	cache       *ServiceCache
	metaSchemas []string
	isPublic    bool
}

// NewResolver constructs a Resolver. metaSchemas is the gateway's
// configured candidate schema list (api.metaSchemas); isPublic mirrors
// the gateway's api.isPublic setting.
func NewResolver(store Store, cache *ServiceCache, metaSchemas []string, isPublic bool) *Resolver {
	return &Resolver{store: store, cache: cache, metaSchemas: metaSchemas, isPublic: isPublic}
}

type contextKey string

const tenantKeyContextKey contextKey = "tenant_key"

// KeyFromContext returns the TenantKey attached to req's context by
// Resolve, or the zero Key if none was attached.
func KeyFromContext(ctx context.Context) tenantkey.Key {
	k, _ := ctx.Value(tenantKeyContextKey).(tenantkey.Key)
	return k
}

// Resolve implements the algorithm in §4.3. The returned context
// carries the computed TenantKey for downstream consumers even on
// error, so error logging can still report which key failed.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (context.Context, *ApiStructure, error) {
	key := tenantkey.Build(req, r.isPublic)
	ctx = context.WithValue(ctx, tenantKeyContextKey, key)

	if api, ok := r.cache.Get(key.String()); ok {
		return ctx, api, nil
	}

	candidates := append([]string{}, r.metaSchemas...)
	if key.Mode == tenantkey.ModeSchemata {
		candidates = append(candidates, key.Schemas...)
	}
	valid, err := r.store.ValidSchemas(ctx, dedupe(candidates))
	if err != nil {
		return ctx, nil, apierr.Wrap(apierr.KindUpstreamUnavailable, "validating configured schemas", err)
	}
	if len(valid) == 0 {
		return ctx, nil, apierr.ErrNoValidSchemas
	}
	validSet := toSet(valid)

	var api *ApiStructure
	switch key.Mode {
	case tenantkey.ModeSchemata:
		if len(key.Schemas) == 0 {
			return ctx, nil, apierr.ErrNoValidSchemas
		}
		api, err = r.resolveSchemata(key, validSet)
	case tenantkey.ModeAPIName:
		api, err = r.resolveAPIName(ctx, key)
	case tenantkey.ModeMetaSchema:
		api, err = r.resolveMetaSchema(key, valid)
	default:
		api, err = r.resolveDomain(ctx, key)
	}
	if err != nil {
		return ctx, nil, err
	}

	r.cache.Set(key.String(), api)
	return ctx, api, nil
}

func (r *Resolver) resolveSchemata(key tenantkey.Key, validSet map[string]struct{}) (*ApiStructure, error) {
	var granted []string
	for _, s := range key.Schemas {
		if _, ok := validSet[s]; ok {
			granted = append(granted, s)
		}
	}
	if len(granted) == 0 {
		return nil, apierr.ErrAccessDenied
	}

	databaseID, _ := uuid.Parse(key.DatabaseID)
	return &ApiStructure{
		DBName:     "administrator",
		AnonRole:   "administrator",
		AuthRole:   "administrator",
		Schema:     granted,
		DatabaseID: databaseID,
		IsPublic:   false,
	}, nil
}

func (r *Resolver) resolveAPIName(ctx context.Context, key tenantkey.Key) (*ApiStructure, error) {
	databaseID, err := uuid.Parse(key.DatabaseID)
	if err != nil {
		return nil, apierr.New(apierr.KindNotFound, "invalid X-Database-Id")
	}

	row, err := r.store.APIByName(ctx, databaseID, key.APIName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierr.ErrNotFound
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamUnavailable, "looking up api by name", err)
	}
	if row.IsPublic {
		return nil, apierr.ErrNotFound
	}

	return r.normalize(ctx, row)
}

func (r *Resolver) resolveMetaSchema(key tenantkey.Key, metaSchemas []string) (*ApiStructure, error) {
	databaseID, _ := uuid.Parse(key.DatabaseID)
	return &ApiStructure{
		DBName:     "administrator",
		AnonRole:   "administrator",
		AuthRole:   "administrator",
		Schema:     metaSchemas,
		DatabaseID: databaseID,
		IsPublic:   false,
	}, nil
}

func (r *Resolver) resolveDomain(ctx context.Context, key tenantkey.Key) (*ApiStructure, error) {
	rows, err := r.store.APIsByDomain(ctx, key.Domain, key.Subdomain, r.isPublic)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamUnavailable, "looking up api by domain", err)
	}
	if len(rows) == 0 {
		return nil, apierr.ErrNotFound
	}
	if len(rows) > 1 {
		return nil, apierr.ErrAmbiguous
	}

	return r.normalize(ctx, rows[0])
}

// normalize converts a store row into the cacheable ApiStructure,
// merging extension-level schemas and deduplicating per §4.3 step 5.
func (r *Resolver) normalize(ctx context.Context, row *apiRow) (*ApiStructure, error) {
	extSchemas, err := r.store.ExtensionSchemas(ctx, row.APIID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamUnavailable, "loading extension schemas", err)
	}

	modules, err := r.store.Modules(ctx, row.APIID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamUnavailable, "loading api modules", err)
	}

	domains, err := r.store.Domains(ctx, row.APIID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamUnavailable, "loading api domains", err)
	}

	schema := dedupe(append(append([]string{}, row.Schema...), extSchemas...))
	if len(schema) == 0 {
		return nil, apierr.ErrNoValidSchemas
	}

	return &ApiStructure{
		DBName:     row.DBName,
		AnonRole:   row.AnonRole,
		AuthRole:   row.AuthRole,
		Schema:     schema,
		ApiModules: modules,
		RLSModule:  row.RLS,
		Domains:    domains,
		DatabaseID: row.DatabaseID,
		IsPublic:   row.IsPublic,
	}, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func toSet(in []string) map[string]struct{} {
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		set[s] = struct{}{}
	}
	return set
}
