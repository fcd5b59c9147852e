package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/constructive-io/apigateway/pkg/tenant"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"well formed", "Bearer abc123", "abc123"},
		{"lowercase scheme", "bearer abc123", "abc123"},
		{"missing", "", ""},
		{"basic scheme", "Basic dXNlcjpwYXNz", ""},
		{"empty token", "Bearer ", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/graphql", nil)
			if c.header != "" {
				r.Header.Set("Authorization", c.header)
			}
			got := bearerToken(r)
			if got != c.want {
				t.Errorf("bearerToken(%q) = %q, want %q", c.header, got, c.want)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	r.RemoteAddr = "10.0.0.5:54321"
	if got := clientIP(r); got != "10.0.0.5" {
		t.Errorf("clientIP = %q, want 10.0.0.5", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.4, 10.0.0.5")
	if got := clientIP(r); got != "203.0.113.4" {
		t.Errorf("clientIP with X-Forwarded-For = %q, want 203.0.113.4", got)
	}
}

func TestAuthenticateNoRLSModule(t *testing.T) {
	a := New(false, "")
	r := httptest.NewRequest(http.MethodGet, "/graphql", nil)

	token, outcome, err := a.Authenticate(context.Background(), nil, nil, r)
	if err != nil || token != nil || outcome != OutcomeNone {
		t.Fatalf("got (%v, %v, %v), want (nil, OutcomeNone, nil)", token, outcome, err)
	}
}

func TestAuthenticateNoAuthenticateFunctionConfigured(t *testing.T) {
	a := New(false, "")
	r := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	rls := &tenant.RLSModule{PrivateSchema: "auth"}

	token, outcome, err := a.Authenticate(context.Background(), nil, rls, r)
	if err != nil || token != nil || outcome != OutcomeNone {
		t.Fatalf("got (%v, %v, %v), want (nil, OutcomeNone, nil)", token, outcome, err)
	}
}

func TestAuthenticateNoCredentialPresented(t *testing.T) {
	a := New(false, "")
	r := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	rls := &tenant.RLSModule{PrivateSchema: "auth", Authenticate: "authenticate"}

	token, outcome, err := a.Authenticate(context.Background(), nil, rls, r)
	if err != nil || token != nil || outcome != OutcomeNone {
		t.Fatalf("got (%v, %v, %v), want (nil, OutcomeNone, nil)", token, outcome, err)
	}
}

func TestAuthenticateStrictModePicksStrictFunction(t *testing.T) {
	a := New(true, "")
	r := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	// authenticateStrict left blank; strict mode must not fall back to
	// the non-strict function name, so this still resolves to "no
	// function configured" rather than silently using Authenticate.
	rls := &tenant.RLSModule{PrivateSchema: "auth", Authenticate: "authenticate"}

	token, outcome, err := a.Authenticate(context.Background(), nil, rls, r)
	if err != nil || token != nil || outcome != OutcomeNone {
		t.Fatalf("got (%v, %v, %v), want (nil, OutcomeNone, nil)", token, outcome, err)
	}
}
