package adminguard

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUnconfiguredGuardRejectsEverything(t *testing.T) {
	g, err := New("", nil, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("X-Api-Name", "billing")
	req.Header.Set("X-Admin-Api-Key", "anything")
	if g.Allow(req) {
		t.Error("expected unconfigured guard to reject")
	}
}

func TestAllowWithCorrectKeyAndNoIPRestriction(t *testing.T) {
	g, err := New("s3cret-admin-key", nil, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("X-Admin-Api-Key", "s3cret-admin-key")
	if !g.Allow(req) {
		t.Error("expected guard to allow correct key")
	}
}

func TestRejectWithWrongKey(t *testing.T) {
	g, err := New("s3cret-admin-key", nil, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("X-Admin-Api-Key", "wrong-key")
	if g.Allow(req) {
		t.Error("expected guard to reject wrong key")
	}
}

func TestIPAllowlistEnforced(t *testing.T) {
	g, err := New("s3cret-admin-key", []string{"10.0.0.0/24"}, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	allowed := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	allowed.Header.Set("X-Admin-Api-Key", "s3cret-admin-key")
	allowed.RemoteAddr = "10.0.0.5:1234"
	if !g.Allow(allowed) {
		t.Error("expected request from allowed CIDR to pass")
	}

	denied := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	denied.Header.Set("X-Admin-Api-Key", "s3cret-admin-key")
	denied.RemoteAddr = "192.168.1.5:1234"
	if g.Allow(denied) {
		t.Error("expected request from disallowed CIDR to be rejected")
	}
}

func TestIPAllowlistUsesForwardedForOnlyWhenTrustProxy(t *testing.T) {
	g, err := New("s3cret-admin-key", []string{"10.0.0.0/24"}, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("X-Admin-Api-Key", "s3cret-admin-key")
	req.Header.Set("X-Forwarded-For", "10.0.0.9")
	req.RemoteAddr = "203.0.113.1:1234"
	if !g.Allow(req) {
		t.Error("expected forwarded IP to be honored when trustProxy is set")
	}

	untrusting, err := New("s3cret-admin-key", []string{"10.0.0.0/24"}, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if untrusting.Allow(req) {
		t.Error("expected forwarded IP to be ignored when trustProxy is not set")
	}
}

func TestMiddlewarePassesThroughNonPrivateRequests(t *testing.T) {
	g, err := New("s3cret-admin-key", nil, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Host = "tenant.example.com"
	rec := httptest.NewRecorder()

	g.Middleware(next).ServeHTTP(rec, req)

	if !called {
		t.Error("expected domain-mode request to pass through without admin credentials")
	}
}

func TestMiddlewareBlocksPrivateRequestWithoutCredentials(t *testing.T) {
	g, err := New("s3cret-admin-key", nil, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("X-Api-Name", "billing")
	rec := httptest.NewRecorder()

	g.Middleware(next).ServeHTTP(rec, req)

	if called {
		t.Error("expected private-header request without credentials to be blocked")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
