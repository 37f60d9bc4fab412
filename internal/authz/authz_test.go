package authz

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthenticateWithBearerToken(t *testing.T) {
	a := NewAuthenticator(Config{BearerToken: "secret-token"})

	p, err := a.Authenticate("Bearer secret-token", false)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Role != RoleWriter {
		t.Fatalf("expected bearer principal to be a writer, got %q", p.Role)
	}

	if _, err := a.Authenticate("Bearer wrong-token", false); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for a wrong token, got %v", err)
	}
}

func TestAuthenticateRejectsEmptyHeader(t *testing.T) {
	a := NewAuthenticator(Config{BearerToken: "secret-token"})
	if _, err := a.Authenticate("", false); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for an empty header, got %v", err)
	}
}

func TestAuthenticateLocalhostException(t *testing.T) {
	a := NewAuthenticator(Config{AllowLocalhostUnauth: true})
	p, err := a.Authenticate("", true)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Subject != "localhost" {
		t.Fatalf("expected the localhost principal, got %+v", p)
	}

	// The exception never applies to a non-local caller.
	if _, err := a.Authenticate("", false); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for a non-local caller, got %v", err)
	}
}

func TestAuthenticateHS256JWTRoundTrip(t *testing.T) {
	a := NewAuthenticator(Config{JWTEnabled: true, JWTSecret: "shared-secret"})

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "agent-runner-1",
		"role": "writer",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	p, err := a.Authenticate("Bearer "+signed, false)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Subject != "agent-runner-1" || p.Role != RoleWriter {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestAuthenticateRejectsExpiredJWT(t *testing.T) {
	a := NewAuthenticator(Config{JWTEnabled: true, JWTSecret: "shared-secret"})

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "agent-runner-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := a.Authenticate("Bearer "+signed, false); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for an expired token, got %v", err)
	}
}

func TestAuthenticateRejectsAlgNone(t *testing.T) {
	a := NewAuthenticator(Config{JWTEnabled: true, JWTSecret: "shared-secret"})

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "forger",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := a.Authenticate("Bearer "+signed, false); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for alg:none, got %v", err)
	}
}

func TestAuthenticateMissingRoleDefaultsToReader(t *testing.T) {
	a := NewAuthenticator(Config{JWTEnabled: true, JWTSecret: "shared-secret"})

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "agent-runner-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	p, err := a.Authenticate("Bearer "+signed, false)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Role != RoleReader {
		t.Fatalf("expected missing role claim to default to reader, got %q", p.Role)
	}
}

func TestAuthenticateRS256ViaJWKS(t *testing.T) {
	priv := mustRSAKey(t)

	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwkDocument(t, "key-1", &priv.PublicKey))
	}))
	defer jwks.Close()

	a := NewAuthenticator(Config{JWTEnabled: true, JWTJWKSURL: jwks.URL})

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":  "agent-runner-2",
		"role": "reader",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "key-1"
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	p, err := a.Authenticate("Bearer "+signed, false)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Subject != "agent-runner-2" || p.Role != RoleReader {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestAuthorizeRBACMatrix(t *testing.T) {
	a := NewAuthenticator(Config{RBACEnabled: true})

	reader := &Principal{Role: RoleReader}
	writer := &Principal{Role: RoleWriter}

	if !a.Authorize(reader, "search_messages", TierRead) {
		t.Fatalf("reader should be permitted a read-tier tool")
	}
	if a.Authorize(reader, "send_message", TierWrite) {
		t.Fatalf("reader must not be permitted a write-tier tool")
	}
	if !a.Authorize(writer, "send_message", TierWrite) {
		t.Fatalf("writer should be permitted a write-tier tool")
	}
	if !a.Authorize(reader, "health_check", TierWrite) {
		t.Fatalf("health_check must always be allowed regardless of tier or role")
	}
}

func TestAuthorizeRBACDisabledAllowsEverything(t *testing.T) {
	a := NewAuthenticator(Config{RBACEnabled: false})
	reader := &Principal{Role: RoleReader}
	if !a.Authorize(reader, "send_message", TierWrite) {
		t.Fatalf("RBAC disabled should allow any authenticated principal through")
	}
}
