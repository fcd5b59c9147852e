// Package auth validates request credentials against a tenant's
// SQL-function-based authenticate contract (§4.6) and attaches the
// resulting token to the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/constructive-io/apigateway/pkg/tenant"
)

// DefaultCookieName is used when the operator does not configure one.
const DefaultCookieName = "session"

// Outcome classifies how Authenticate resolved a request.
type Outcome int

const (
	// OutcomeNone means no credential was presented; the request
	// proceeds anonymously.
	OutcomeNone Outcome = iota
	// OutcomeAuthenticated means a token was returned and attached.
	OutcomeAuthenticated
	// OutcomeRejected means the bearer credential was checked and the
	// authenticate function returned zero rows.
	OutcomeRejected
	// OutcomeInvalid means the authenticate function itself errored.
	OutcomeInvalid
)

// Authenticator runs a tenant's authenticate SQL function against a
// presented credential.
type Authenticator struct {
	strict     bool
	cookieName string
}

// New builds an Authenticator. strict selects authenticateStrict over
// authenticate when both are declared; cookieName defaults to
// DefaultCookieName when empty.
func New(strict bool, cookieName string) *Authenticator {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Authenticator{strict: strict, cookieName: cookieName}
}

// Authenticate checks the cookie credential first, falling through to
// the bearer credential on absence or rejection, per §4.6. It returns
// nil, OutcomeNone, nil when no rlsModule is configured or no
// credential at all is presented.
func (a *Authenticator) Authenticate(ctx context.Context, pool *pgxpool.Pool, rls *tenant.RLSModule, r *http.Request) (*tenant.Token, Outcome, error) {
	if rls == nil {
		return nil, OutcomeNone, nil
	}
	fn := rls.Authenticate
	if a.strict {
		fn = rls.AuthenticateStrict
	}
	if fn == "" || rls.PrivateSchema == "" {
		return nil, OutcomeNone, nil
	}

	ip := clientIP(r)
	origin := r.Header.Get("Origin")
	ua := r.Header.Get("User-Agent")

	if cookie, err := r.Cookie(a.cookieName); err == nil && cookie.Value != "" {
		token, err := a.invoke(ctx, pool, rls.PrivateSchema, fn, cookie.Value, map[string]string{
			"credential_kind": "cookie",
			"ip_address":      ip,
			"origin":          origin,
			"user_agent":      ua,
		})
		if err == nil && token != nil {
			return token, OutcomeAuthenticated, nil
		}
		// A rejected or erroring cookie falls through to the bearer
		// credential, which is authoritative.
	}

	bearer := bearerToken(r)
	if bearer == "" {
		return nil, OutcomeNone, nil
	}

	token, err := a.invoke(ctx, pool, rls.PrivateSchema, fn, bearer, map[string]string{
		"ip_address": ip,
		"origin":     origin,
		"user_agent": ua,
	})
	if err != nil {
		return nil, OutcomeInvalid, err
	}
	if token == nil {
		return nil, OutcomeRejected, nil
	}
	return token, OutcomeAuthenticated, nil
}

// invoke runs SELECT * FROM <schema>.<fn>($1) with the given session
// settings applied via set_config for the duration of the transaction.
// A nil, nil return means the function returned zero rows.
func (a *Authenticator) invoke(ctx context.Context, pool *pgxpool.Pool, schema, fn, credential string, settings map[string]string) (*tenant.Token, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning auth transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for key, value := range settings {
		if value == "" {
			continue
		}
		if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", key, value); err != nil {
			return nil, fmt.Errorf("applying session setting %q: %w", key, err)
		}
	}

	qualified := pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(fn)
	rows, err := tx.Query(ctx, fmt.Sprintf("SELECT * FROM %s($1)", qualified), credential)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	values, err := rows.Values()
	if err != nil {
		return nil, err
	}

	token := &tenant.Token{Claims: make(map[string]any, len(values))}
	for i, f := range rows.FieldDescriptions() {
		name := string(f.Name)
		switch name {
		case "id":
			token.ID = fmt.Sprint(values[i])
		case "user_id":
			token.UserID = fmt.Sprint(values[i])
		default:
			token.Claims[name] = values[i]
		}
	}

	if rows.Next() {
		return nil, errors.New("authenticate function returned more than one row")
	}

	return token, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
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
