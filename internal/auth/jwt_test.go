package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("clerk_abc")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("token %q does not look like a JWT", token)
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("clerk_abc")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != "clerk_abc" {
		t.Errorf("Validate() = %q, want %q", got, "clerk_abc")
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration("clerk_abc", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}

	if _, err := ts.Validate(token); err == nil {
		t.Error("Validate() should reject an expired token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts := newTestTokenService(t)
	other, err := NewTokenService("a-completely-different-secret!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	token, _ := ts.Generate("clerk_abc")
	if _, err := other.Validate(token); err == nil {
		t.Error("Validate() should reject a token signed with another secret")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Validate("not.a.token"); err == nil {
		t.Error("Validate() should reject garbage input")
	}
}

// =========================================================================
// MIDDLEWARE TESTS
// =========================================================================

func protectedProbe(t *testing.T, ts *TokenService) (http.Handler, *string) {
	t.Helper()
	var seen string
	handler := RequireAuth(ts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := ExternalIDFromContext(r.Context())
		seen = id
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &seen
}

func TestRequireAuth_BearerHeader(t *testing.T) {
	ts := newTestTokenService(t)
	handler, seen := protectedProbe(t, ts)

	token, _ := ts.Generate("clerk_abc")
	req := httptest.NewRequest(http.MethodGet, "/api/living-essay", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if *seen != "clerk_abc" {
		t.Errorf("context external ID = %q, want %q", *seen, "clerk_abc")
	}
}

func TestRequireAuth_Cookie(t *testing.T) {
	ts := newTestTokenService(t)
	handler, seen := protectedProbe(t, ts)

	token, _ := ts.Generate("clerk_abc")
	req := httptest.NewRequest(http.MethodGet, "/api/living-essay", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if *seen != "clerk_abc" {
		t.Errorf("context external ID = %q, want %q", *seen, "clerk_abc")
	}
}

func TestRequireAuth_NoToken(t *testing.T) {
	ts := newTestTokenService(t)
	handler, _ := protectedProbe(t, ts)

	req := httptest.NewRequest(http.MethodGet, "/api/living-essay", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuth_BadToken(t *testing.T) {
	ts := newTestTokenService(t)
	handler, _ := protectedProbe(t, ts)

	req := httptest.NewRequest(http.MethodGet, "/api/living-essay", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestExternalIDFromContext_Anonymous(t *testing.T) {
	if id, ok := ExternalIDFromContext(context.Background()); ok || id != "" {
		t.Errorf("ExternalIDFromContext() = %q, %v; want empty, false", id, ok)
	}
}
