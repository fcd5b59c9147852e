package handler

import "context"

// SettingsInput is the per-request data the settings callback needs,
// gathered by the HTTP layer from the tenant resolution and auth
// middleware before handler dispatch (§4.5).
type SettingsInput struct {
	AnonRole    string
	AuthRole    string
	Authorized  bool
	DatabaseID  string
	ClientIP    string
	Origin      string
	UserAgent   string
	TokenID     string
	TokenUserID string
}

// Extractor pulls a SettingsInput out of a request context. The HTTP
// layer supplies the concrete implementation; this package has no
// dependency on how the context values were set.
type Extractor func(ctx context.Context) SettingsInput

// NewSettingsFunc adapts an Extractor into the SettingsFunc the
// handler builder installs on each built handler.
func NewSettingsFunc(extract Extractor) SettingsFunc {
	return func(ctx context.Context) map[string]string {
		in := extract(ctx)

		role := in.AnonRole
		if in.Authorized {
			role = in.AuthRole
		}

		settings := map[string]string{
			"role":                   role,
			"jwt.claims.database_id": in.DatabaseID,
			"jwt.claims.ip_address":  in.ClientIP,
		}
		if in.Origin != "" {
			settings["jwt.claims.origin"] = in.Origin
		}
		if in.UserAgent != "" {
			settings["jwt.claims.user_agent"] = in.UserAgent
		}
		if in.TokenID != "" {
			settings["jwt.claims.token_id"] = in.TokenID
		}
		if in.TokenUserID != "" {
			settings["jwt.claims.user_id"] = in.TokenUserID
		}
		return settings
	}
}
