package handler

import (
	"context"
	"testing"
)

func TestNewSettingsFuncAnonymousRole(t *testing.T) {
	extract := func(ctx context.Context) SettingsInput {
		return SettingsInput{AnonRole: "anonymous", AuthRole: "authenticated", Authorized: false, DatabaseID: "db1", ClientIP: "10.0.0.1"}
	}
	fn := NewSettingsFunc(extract)
	settings := fn(context.Background())

	if settings["role"] != "anonymous" {
		t.Errorf("role = %q, want anonymous", settings["role"])
	}
	if settings["jwt.claims.database_id"] != "db1" {
		t.Errorf("database_id = %q, want db1", settings["jwt.claims.database_id"])
	}
	if settings["jwt.claims.ip_address"] != "10.0.0.1" {
		t.Errorf("ip_address = %q, want 10.0.0.1", settings["jwt.claims.ip_address"])
	}
	for _, k := range []string{"jwt.claims.origin", "jwt.claims.user_agent", "jwt.claims.token_id", "jwt.claims.user_id"} {
		if _, ok := settings[k]; ok {
			t.Errorf("unexpected key %q present for anonymous request", k)
		}
	}
}

func TestNewSettingsFuncAuthorizedRole(t *testing.T) {
	extract := func(ctx context.Context) SettingsInput {
		return SettingsInput{
			AnonRole: "anonymous", AuthRole: "authenticated", Authorized: true,
			DatabaseID: "db1", ClientIP: "10.0.0.1", Origin: "https://app.example.com",
			UserAgent: "curl/8.0", TokenID: "tok-1", TokenUserID: "user-1",
		}
	}
	fn := NewSettingsFunc(extract)
	settings := fn(context.Background())

	if settings["role"] != "authenticated" {
		t.Errorf("role = %q, want authenticated", settings["role"])
	}
	want := map[string]string{
		"jwt.claims.origin":     "https://app.example.com",
		"jwt.claims.user_agent": "curl/8.0",
		"jwt.claims.token_id":   "tok-1",
		"jwt.claims.user_id":    "user-1",
	}
	for k, v := range want {
		if settings[k] != v {
			t.Errorf("%s = %q, want %q", k, settings[k], v)
		}
	}
}

func TestNewSettingsFuncOmitsEmptyOptionalClaims(t *testing.T) {
	extract := func(ctx context.Context) SettingsInput {
		return SettingsInput{AnonRole: "anonymous", AuthRole: "authenticated", Authorized: true, DatabaseID: "db1", ClientIP: "10.0.0.1"}
	}
	fn := NewSettingsFunc(extract)
	settings := fn(context.Background())

	if settings["role"] != "authenticated" {
		t.Errorf("role = %q, want authenticated", settings["role"])
	}
	if len(settings) != 3 {
		t.Errorf("settings = %+v, want exactly role/database_id/ip_address", settings)
	}
}
