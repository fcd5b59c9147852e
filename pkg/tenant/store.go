package tenant

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// apiRow mirrors one row of services_public.apis. Extension-level
// schemas are fetched separately and merged by the resolver.
type apiRow struct {
	APIID      uuid.UUID
	DatabaseID uuid.UUID
	Name       string
	DBName     string
	AnonRole   string
	AuthRole   string
	Schema     []string
	IsPublic   bool
	RLS        *RLSModule
}

// Store abstracts the metadata-database operations the resolver needs,
// decoupling it from any specific catalog implementation.
type Store interface {
	// ValidSchemas intersects candidates against information_schema.schemata.
	ValidSchemas(ctx context.Context, candidates []string) ([]string, error)
	APIByName(ctx context.Context, databaseID uuid.UUID, name string) (*apiRow, error)
	APIsByDomain(ctx context.Context, domain, subdomain string, isPublic bool) ([]*apiRow, error)
	ExtensionSchemas(ctx context.Context, apiID uuid.UUID) ([]string, error)
	Modules(ctx context.Context, apiID uuid.UUID) (map[string]ApiModule, error)
	Domains(ctx context.Context, apiID uuid.UUID) ([]string, error)
	TenantsUnderDatabase(ctx context.Context, databaseID uuid.UUID) ([]DomainRef, error)
}

// DomainRef names one (domain, subdomain) pair owned by a database, as
// returned by TenantsUnderDatabase. Cache invalidation (pkg/purge)
// matches entries by database id and does not call it.
type DomainRef struct {
	Domain    string
	Subdomain string
}

const apiColumns = `a.id, a.database_id, a.name, a.dbname, a.anon_role, a.auth_role, a.schema, a.is_public,
		       a.rls_private_schema, a.rls_authenticate, a.rls_authenticate_strict,
		       a.rls_current_role, a.rls_current_role_id`

// PGStore is the Store implementation backed by the metadata pgxpool.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps pool as a Store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) ValidSchemas(ctx context.Context, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT schema_name FROM information_schema.schemata WHERE schema_name = ANY($1)`,
		candidates,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var valid []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		valid = append(valid, name)
	}
	return valid, rows.Err()
}

func (s *PGStore) APIByName(ctx context.Context, databaseID uuid.UUID, name string) (*apiRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+apiColumns+`
		FROM services_public.apis a
		WHERE a.database_id = $1 AND a.name = $2
	`, databaseID, name)
	return scanAPIRow(row)
}

func (s *PGStore) APIsByDomain(ctx context.Context, domain, subdomain string, isPublic bool) ([]*apiRow, error) {
	var subdomainArg any
	if subdomain == "" {
		subdomainArg = nil
	} else {
		subdomainArg = subdomain
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+apiColumns+`
		FROM services_public.apis a
		JOIN services_public.domains d ON d.api_id = a.id
		WHERE d.domain = $1 AND d.subdomain IS NOT DISTINCT FROM $2 AND a.is_public = $3
	`, domain, subdomainArg, isPublic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*apiRow
	for rows.Next() {
		r, err := scanAPIRowFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) ExtensionSchemas(ctx context.Context, apiID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT schema FROM services_public.extensions WHERE api_id = $1`, apiID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var schema string
		if err := rows.Scan(&schema); err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	return schemas, rows.Err()
}

func (s *PGStore) Modules(ctx context.Context, apiID uuid.UUID) (map[string]ApiModule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, data FROM services_public.api_modules WHERE api_id = $1`, apiID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	modules := make(map[string]ApiModule)
	for rows.Next() {
		var m ApiModule
		var data map[string]any
		if err := rows.Scan(&m.Name, &data); err != nil {
			return nil, err
		}
		m.Data = data
		modules[m.Name] = m
	}
	return modules, rows.Err()
}

func (s *PGStore) Domains(ctx context.Context, apiID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT domain, subdomain FROM services_public.domains WHERE api_id = $1`, apiID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var domain string
		var subdomain *string
		if err := rows.Scan(&domain, &subdomain); err != nil {
			return nil, err
		}
		urls = append(urls, canonicalURL(domain, subdomain))
	}
	return urls, rows.Err()
}

func (s *PGStore) TenantsUnderDatabase(ctx context.Context, databaseID uuid.UUID) ([]DomainRef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.domain, COALESCE(d.subdomain, '')
		FROM services_public.domains d
		JOIN services_public.apis a ON a.id = d.api_id
		WHERE a.database_id = $1
	`, databaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DomainRef
	for rows.Next() {
		var ref DomainRef
		if err := rows.Scan(&ref.Domain, &ref.Subdomain); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// canonicalURL builds the https/http URL for a domain row per §4.3:
// https unless host is localhost.
func canonicalURL(domain string, subdomain *string) string {
	host := domain
	if subdomain != nil && *subdomain != "" {
		host = *subdomain + "." + domain
	}
	scheme := "https"
	if host == "localhost" {
		scheme = "http"
	}
	return scheme + "://" + host
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIRow(row pgx.Row) (*apiRow, error) {
	return scanAPIRowFromRows(row)
}

func scanAPIRowFromRows(row rowScanner) (*apiRow, error) {
	var r apiRow
	var privateSchema, authenticate, authenticateStrict, currentRole, currentRoleID *string

	if err := row.Scan(
		&r.APIID, &r.DatabaseID, &r.Name, &r.DBName, &r.AnonRole, &r.AuthRole, &r.Schema, &r.IsPublic,
		&privateSchema, &authenticate, &authenticateStrict, &currentRole, &currentRoleID,
	); err != nil {
		return nil, err
	}

	if privateSchema != nil && *privateSchema != "" {
		r.RLS = &RLSModule{
			PrivateSchema:      *privateSchema,
			Authenticate:       deref(authenticate),
			AuthenticateStrict: deref(authenticateStrict),
			CurrentRole:        deref(currentRole),
			CurrentRoleID:      deref(currentRoleID),
		}
	}

	return &r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
