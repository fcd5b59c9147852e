package httpserver

import (
	"context"

	"github.com/constructive-io/apigateway/pkg/auth"
	"github.com/constructive-io/apigateway/pkg/handler"
)

type requestMetaKey struct{}

// requestMeta carries the per-request fields the handler's settings
// callback needs, gathered once at dispatch time so the callback
// itself (handler.Extractor) stays a pure function of ctx, per §4.5.
type requestMeta struct {
	anonRole   string
	authRole   string
	databaseID string
	clientIP   string
	origin     string
	userAgent  string
}

func withRequestMeta(ctx context.Context, m requestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, m)
}

// settingsExtractor adapts the request metadata and whatever token the
// auth middleware attached into a handler.SettingsInput.
func settingsExtractor(ctx context.Context) handler.SettingsInput {
	m, _ := ctx.Value(requestMetaKey{}).(requestMeta)

	in := handler.SettingsInput{
		AnonRole:   m.anonRole,
		AuthRole:   m.authRole,
		DatabaseID: m.databaseID,
		ClientIP:   m.clientIP,
		Origin:     m.origin,
		UserAgent:  m.userAgent,
	}

	if tok := auth.TokenFromContext(ctx); tok != nil {
		in.Authorized = true
		in.TokenID = tok.ID
		in.TokenUserID = tok.UserID
	}

	return in
}
