package tenant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/constructive-io/apigateway/pkg/apierr"
)

type fakeStore struct {
	valid      []string
	byName     map[string]*apiRow // key: databaseID:name
	byDomain   map[string][]*apiRow
	extensions map[uuid.UUID][]string
	modules    map[uuid.UUID]map[string]ApiModule
	domains    map[uuid.UUID][]string
	validErr   error
	domainErr  error
	apiNameErr error
}

func (f *fakeStore) ValidSchemas(ctx context.Context, candidates []string) ([]string, error) {
	if f.validErr != nil {
		return nil, f.validErr
	}
	validSet := toSet(f.valid)
	var out []string
	for _, c := range candidates {
		if _, ok := validSet[c]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) APIByName(ctx context.Context, databaseID uuid.UUID, name string) (*apiRow, error) {
	if f.apiNameErr != nil {
		return nil, f.apiNameErr
	}
	row, ok := f.byName[databaseID.String()+":"+name]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return row, nil
}

func (f *fakeStore) APIsByDomain(ctx context.Context, domain, subdomain string, isPublic bool) ([]*apiRow, error) {
	if f.domainErr != nil {
		return nil, f.domainErr
	}
	return f.byDomain[domain+"|"+subdomain], nil
}

func (f *fakeStore) ExtensionSchemas(ctx context.Context, apiID uuid.UUID) ([]string, error) {
	return f.extensions[apiID], nil
}

func (f *fakeStore) Modules(ctx context.Context, apiID uuid.UUID) (map[string]ApiModule, error) {
	return f.modules[apiID], nil
}

func (f *fakeStore) Domains(ctx context.Context, apiID uuid.UUID) ([]string, error) {
	return f.domains[apiID], nil
}

func (f *fakeStore) TenantsUnderDatabase(ctx context.Context, databaseID uuid.UUID) ([]DomainRef, error) {
	return nil, nil
}

func TestResolveDomainHappyPath(t *testing.T) {
	apiID := uuid.New()
	databaseID := uuid.New()
	store := &fakeStore{
		valid: []string{"app_public"},
		byDomain: map[string][]*apiRow{
			"example.com|api": {{
				APIID: apiID, DatabaseID: databaseID, Name: "main",
				DBName: "tenant1", AnonRole: "anonymous", AuthRole: "authenticated",
				Schema: []string{"app_public"}, IsPublic: true,
			}},
		},
	}
	cache := NewServiceCache(100, 0)
	resolver := NewResolver(store, cache, []string{"app_public"}, true)

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Host = "api.example.com"

	_, api, err := resolver.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if api.DBName != "tenant1" {
		t.Errorf("DBName = %q, want tenant1", api.DBName)
	}

	// Second identical request hits the cache; ValidSchemas/APIsByDomain
	// must not be consulted again.
	store.validErr = errors.New("should not be called")
	store.domainErr = errors.New("should not be called")
	_, api2, err := resolver.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve (cached): %v", err)
	}
	if api2 != api {
		t.Error("expected the cached ApiStructure instance to be returned")
	}
}

func TestResolveAmbiguous(t *testing.T) {
	row := &apiRow{APIID: uuid.New(), DatabaseID: uuid.New(), DBName: "tenant1", Schema: []string{"app_public"}, IsPublic: true}
	store := &fakeStore{
		valid:    []string{"app_public"},
		byDomain: map[string][]*apiRow{"example.com|api": {row, row}},
	}
	resolver := NewResolver(store, NewServiceCache(100, 0), []string{"app_public"}, true)

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Host = "api.example.com"

	_, _, err := resolver.Resolve(context.Background(), req)
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.KindAmbiguous {
		t.Fatalf("err = %v, want KindAmbiguous", err)
	}
}

func TestResolveNotFound(t *testing.T) {
	store := &fakeStore{valid: []string{"app_public"}}
	resolver := NewResolver(store, NewServiceCache(100, 0), []string{"app_public"}, true)

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Host = "api.example.com"

	_, _, err := resolver.Resolve(context.Background(), req)
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.KindNotFound {
		t.Fatalf("err = %v, want KindNotFound", err)
	}
}

func TestResolveNoValidSchemas(t *testing.T) {
	store := &fakeStore{valid: nil}
	resolver := NewResolver(store, NewServiceCache(100, 0), []string{"app_public"}, true)

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Host = "api.example.com"

	_, _, err := resolver.Resolve(context.Background(), req)
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.KindNoValidSchemas {
		t.Fatalf("err = %v, want KindNoValidSchemas", err)
	}
}

func TestResolveSchemataAccessDenied(t *testing.T) {
	store := &fakeStore{valid: []string{"a"}}
	resolver := NewResolver(store, NewServiceCache(100, 0), []string{"a"}, false)

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("X-Database-Id", uuid.New().String())
	req.Header.Set("X-Schemata", "nonexistent")

	_, _, err := resolver.Resolve(context.Background(), req)
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.KindAccessDenied {
		t.Fatalf("err = %v, want KindAccessDenied", err)
	}
}

func TestResolveSchemataEmptyHeaderIsNoValidSchemas(t *testing.T) {
	store := &fakeStore{valid: []string{"a"}}
	resolver := NewResolver(store, NewServiceCache(100, 0), []string{"a"}, false)

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("X-Database-Id", uuid.New().String())
	req.Header.Set("X-Schemata", "")

	_, _, err := resolver.Resolve(context.Background(), req)
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.KindNoValidSchemas {
		t.Fatalf("err = %v, want KindNoValidSchemas", err)
	}
}

func TestResolveSchemataGranted(t *testing.T) {
	store := &fakeStore{valid: []string{"a", "b"}}
	resolver := NewResolver(store, NewServiceCache(100, 0), []string{"a", "b"}, false)

	dbID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("X-Database-Id", dbID.String())
	req.Header.Set("X-Schemata", "a,b")

	_, api, err := resolver.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if api.AnonRole != "administrator" || len(api.Schema) != 2 {
		t.Errorf("got %+v", api)
	}
}

func TestResolveAPINameNotFoundWhenAPIIsPublic(t *testing.T) {
	dbID := uuid.New()
	store := &fakeStore{
		valid: []string{"a"},
		byName: map[string]*apiRow{
			dbID.String() + ":billing": {DBName: "tenant1", IsPublic: true, Schema: []string{"a"}},
		},
	}
	resolver := NewResolver(store, NewServiceCache(100, 0), []string{"a"}, false)

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("X-Database-Id", dbID.String())
	req.Header.Set("X-Api-Name", "billing")

	_, _, err := resolver.Resolve(context.Background(), req)
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.KindNotFound {
		t.Fatalf("err = %v, want KindNotFound (public api via private header)", err)
	}
}

func TestResolveUpstreamUnavailable(t *testing.T) {
	store := &fakeStore{validErr: context.DeadlineExceeded}
	resolver := NewResolver(store, NewServiceCache(100, 0), []string{"a"}, true)

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Host = "example.com"

	_, _, err := resolver.Resolve(context.Background(), req)
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.KindUpstreamUnavailable {
		t.Fatalf("err = %v, want KindUpstreamUnavailable", err)
	}
}

func TestKeyFromContextAttachedEvenOnError(t *testing.T) {
	store := &fakeStore{valid: []string{"a"}}
	resolver := NewResolver(store, NewServiceCache(100, 0), []string{"a"}, true)

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Host = "api.example.com"

	ctx, _, err := resolver.Resolve(context.Background(), req)
	if err == nil {
		t.Fatal("expected ErrNotFound")
	}
	key := KeyFromContext(ctx)
	if key.String() != "api.example.com" {
		t.Errorf("KeyFromContext = %q, want api.example.com", key.String())
	}
}
