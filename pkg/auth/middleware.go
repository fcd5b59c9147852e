package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/constructive-io/apigateway/internal/telemetry"
	"github.com/constructive-io/apigateway/pkg/apierr"
	"github.com/constructive-io/apigateway/pkg/tenant"
)

type contextKey int

const tokenContextKey contextKey = iota

// TokenFromContext returns the token Guard attached, or nil for an
// anonymous request.
func TokenFromContext(ctx context.Context) *tenant.Token {
	tok, _ := ctx.Value(tokenContextKey).(*tenant.Token)
	return tok
}

// Guard authenticates a single request against api's rlsModule using
// pool, short-circuiting with a GraphQL-style error envelope on
// rejection. Tenants with no rlsModule configured pass through
// untouched. Returns true if next was invoked.
func (a *Authenticator) Guard(logger *slog.Logger, api *tenant.ApiStructure, pool *pgxpool.Pool, w http.ResponseWriter, r *http.Request, next http.Handler) bool {
	if api.RLSModule == nil {
		next.ServeHTTP(w, r)
		return true
	}

	token, outcome, err := a.Authenticate(r.Context(), pool, api.RLSModule, r)
	switch outcome {
	case OutcomeRejected:
		telemetry.AuthOutcomesTotal.WithLabelValues("unauthenticated").Inc()
		apierr.RespondAuthFailure(w, "UNAUTHENTICATED", "credential was not accepted")
		return false
	case OutcomeInvalid:
		telemetry.AuthOutcomesTotal.WithLabelValues("bad_token").Inc()
		if logger != nil {
			logger.Error("authenticate function error", "database", api.DBName, "error", err)
		}
		apierr.RespondAuthFailure(w, "BAD_TOKEN_DEFINITION", "authenticate function returned an error")
		return false
	case OutcomeAuthenticated:
		telemetry.AuthOutcomesTotal.WithLabelValues("authenticated").Inc()
	default:
		telemetry.AuthOutcomesTotal.WithLabelValues("anonymous").Inc()
	}

	ctx := r.Context()
	if token != nil {
		ctx = context.WithValue(ctx, tokenContextKey, token)
	}
	next.ServeHTTP(w, r.WithContext(ctx))
	return true
}
