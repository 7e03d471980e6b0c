package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(tenant string, roles ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		TenantID: tenant,
		Roles:    roles,
	}
}

func runJWT(t *testing.T, cfg JWTConfig, header string, handler echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return JWTMiddleware(cfg)(handler)(c)
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "", okHandler)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, tt.header, okHandler)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tokenStr := createTestToken(t, validClaims("tenant-abc", RoleReceptionist, RoleProfessional), testSigningKey)

	var called bool
	err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr, func(c echo.Context) error {
		called = true
		s := SessionFromContext(c.Request().Context())
		if s == nil {
			t.Fatal("expected session in context")
		}
		if s.UserID != "user-123" || s.TenantID != "tenant-abc" {
			t.Errorf("unexpected session %+v", s)
		}
		if !s.HasRole(RoleReceptionist) || !s.HasRole(RoleProfessional) || s.HasRole(RoleAdmin) {
			t.Errorf("unexpected roles %v", s.Roles)
		}
		if tid, _ := c.Get("jwt_tenant_id").(string); tid != "tenant-abc" {
			t.Errorf("expected jwt_tenant_id=tenant-abc, got %q", tid)
		}
		return okHandler(c)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := validClaims("tenant-1")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-1 * time.Hour))
	tokenStr := createTestToken(t, claims, testSigningKey)

	err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr, okHandler)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	tokenStr := createTestToken(t, validClaims("tenant-1"), []byte("another-key"))
	err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr, okHandler)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_MissingTenant(t *testing.T) {
	tokenStr := createTestToken(t, validClaims(""), testSigningKey)
	err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr, okHandler)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_IssuerAndAudience(t *testing.T) {
	claims := validClaims("tenant-1")
	claims.Issuer = "https://id.example.com"
	claims.Audience = jwt.ClaimStrings{"clinic-api"}
	tokenStr := createTestToken(t, claims, testSigningKey)

	good := JWTConfig{SigningKey: testSigningKey, Issuer: "https://id.example.com", Audience: "clinic-api"}
	if err := runJWT(t, good, "Bearer "+tokenStr, okHandler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	badAud := JWTConfig{SigningKey: testSigningKey, Issuer: "https://id.example.com", Audience: "other"}
	expectStatus(t, runJWT(t, badAud, "Bearer "+tokenStr, okHandler), http.StatusUnauthorized)
}

func TestJWTMiddleware_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwks := JWKSResponse{Keys: []JWKSKey{{
		Kty: "RSA",
		Kid: "k1",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	defer srv.Close()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims("tenant-rsa", RoleAdmin))
	token.Header["kid"] = "k1"
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	err = runJWT(t, JWTConfig{JWKSURL: srv.URL}, "Bearer "+tokenStr, func(c echo.Context) error {
		if s := SessionFromContext(c.Request().Context()); s == nil || s.TenantID != "tenant-rsa" {
			t.Errorf("unexpected session %+v", s)
		}
		return okHandler(c)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// An HS256 token must not pass an RS256-only verifier.
	hsToken := createTestToken(t, validClaims("tenant-rsa"), testSigningKey)
	expectStatus(t, runJWT(t, JWTConfig{JWKSURL: srv.URL}, "Bearer "+hsToken, okHandler), http.StatusUnauthorized)
}

func TestJWKSCache_UnknownKid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(JWKSResponse{})
	}))
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Minute)
	if _, err := cache.GetKey("missing"); err == nil {
		t.Error("expected error for unknown kid")
	}
}

func TestDevAuthMiddleware_InjectsAdminSession(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		s := SessionFromContext(c.Request().Context())
		if s == nil {
			t.Fatal("expected session")
		}
		if s.UserID != "dev-user" {
			t.Errorf("expected user_id=dev-user, got %s", s.UserID)
		}
		if s.TenantID != "default" {
			t.Errorf("expected tenant default, got %s", s.TenantID)
		}
		roles := RolesFromContext(c.Request().Context())
		if len(roles) != 1 || roles[0] != RoleAdmin {
			t.Errorf("expected roles=[admin], got %v", roles)
		}
		return okHandler(c)
	}

	if err := DevAuthMiddleware("default")(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
