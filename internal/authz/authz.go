// Package authz implements the two stacked authentication modes and the
// role-based tool permission matrix (spec.md §4.10): a static bearer
// token, and HS256/RS256 JWTs with exp/nbf/aud/iss validation. Token
// parsing and claims verification are grounded on
// github.com/golang-jwt/jwt/v5, which several repos in the retrieval
// pack already depend on for exactly this; RS256's JWKS fetch-and-cache
// loop is grounded on the teacher's cmd/channelbridge teamsJWTVerifier
// (refreshLocked, resolveKey, cacheUntil TTL), generalized from a single
// hard-coded Microsoft Teams issuer to an operator-configured JWKS URL.
package authz

import (
	"crypto/rsa"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the RBAC principal role carried in a JWT's "role" claim
// (spec.md §4.10).
type Role string

const (
	RoleReader Role = "reader"
	RoleWriter Role = "writer"
)

// Tier is a tool's required permission level.
type Tier string

const (
	TierRead  Tier = "read"
	TierWrite Tier = "write"
)

// Permits reports whether a principal holding role may call a tool
// tagged tier. Unknown or missing roles never authorize writes
// (spec.md §4.10).
func (r Role) Permits(tier Tier) bool {
	switch tier {
	case TierRead:
		return r == RoleReader || r == RoleWriter
	case TierWrite:
		return r == RoleWriter
	default:
		return false
	}
}

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	Subject string
	Role    Role
}

// Config configures the authenticator (spec.md §4.10, env vars
// HTTP_BEARER_TOKEN, HTTP_ALLOW_LOCALHOST_UNAUTHENTICATED,
// HTTP_JWT_ENABLED, HTTP_JWT_SECRET, HTTP_JWT_AUDIENCE,
// HTTP_JWT_ISSUER, HTTP_RBAC_ENABLED).
type Config struct {
	BearerToken          string
	AllowLocalhostUnauth bool
	JWTEnabled           bool
	JWTSecret            string // HS256, if set
	JWTJWKSURL           string // RS256 via JWKS, if set instead of JWTSecret
	JWTAudience          string
	JWTIssuer            string
	RBACEnabled          bool
}

// ErrUnauthorized is returned verbatim in the HTTP body on auth failure
// (spec.md §4.10: "a body containing the literal Unauthorized").
var ErrUnauthorized = errors.New("Unauthorized")

// Authenticator verifies inbound credentials and resolves a Principal.
type Authenticator struct {
	cfg Config
	jwk *jwksCache
}

func NewAuthenticator(cfg Config) *Authenticator {
	a := &Authenticator{cfg: cfg}
	if cfg.JWTEnabled && cfg.JWTJWKSURL != "" {
		a.jwk = newJWKSCache(http.DefaultClient, cfg.JWTJWKSURL)
	}
	return a
}

// Authenticate applies the bearer-token and JWT checks to an incoming
// Authorization header, in that stacking order (spec.md §4.10: "two
// authentication modes stack"). remoteIsLocalhost gates the localhost
// exception, which the caller establishes from the transport (stdio
// only, spec.md §4.10).
func (a *Authenticator) Authenticate(authHeader string, remoteIsLocalhost bool) (*Principal, error) {
	if a.cfg.AllowLocalhostUnauth && remoteIsLocalhost {
		return &Principal{Subject: "localhost", Role: RoleWriter}, nil
	}

	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(authHeader), "Bearer "))
	if token == "" {
		return nil, ErrUnauthorized
	}

	if a.cfg.BearerToken != "" && constantTimeEqual(token, a.cfg.BearerToken) {
		return &Principal{Subject: "bearer", Role: RoleWriter}, nil
	}

	if a.cfg.JWTEnabled {
		return a.verifyJWT(token)
	}

	return nil, ErrUnauthorized
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (a *Authenticator) verifyJWT(rawToken string) (*Principal, error) {
	parts := strings.Split(rawToken, ".")
	if len(parts) != 3 {
		return nil, ErrUnauthorized
	}

	claims := jwt.MapClaims{}
	keyfunc := a.keyfunc()
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "RS256"}))
	parsed, err := parser.ParseWithClaims(rawToken, claims, keyfunc)
	if err != nil || !parsed.Valid {
		return nil, ErrUnauthorized
	}

	if a.cfg.JWTAudience != "" {
		aud, err := claims.GetAudience()
		if err != nil || !slices.Contains(aud, a.cfg.JWTAudience) {
			return nil, ErrUnauthorized
		}
	}
	if a.cfg.JWTIssuer != "" {
		iss, err := claims.GetIssuer()
		if err != nil || iss != a.cfg.JWTIssuer {
			return nil, ErrUnauthorized
		}
	}

	subject, _ := claims.GetSubject()
	role := RoleReader
	if raw, ok := claims["role"]; ok {
		if s, ok := raw.(string); ok {
			role = Role(s)
		}
	}
	return &Principal{Subject: subject, Role: role}, nil
}

func (a *Authenticator) keyfunc() jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		switch t.Method.Alg() {
		case "HS256":
			if a.cfg.JWTSecret == "" {
				return nil, fmt.Errorf("authz: no HS256 secret configured")
			}
			return []byte(a.cfg.JWTSecret), nil
		case "RS256":
			if a.jwk == nil {
				return nil, fmt.Errorf("authz: no JWKS configured for RS256")
			}
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, fmt.Errorf("authz: jwt missing kid")
			}
			return a.jwk.key(kid, time.Now())
		default:
			return nil, fmt.Errorf("authz: unsupported alg %q", t.Method.Alg())
		}
	}
}

// Authorize applies the RBAC matrix: health_check is always allowed for
// any authenticated principal; otherwise the principal's role must
// permit the tool's tier (spec.md §4.10). When RBAC is disabled every
// authenticated principal may call every tool.
func (a *Authenticator) Authorize(p *Principal, toolName string, tier Tier) bool {
	if !a.cfg.RBACEnabled {
		return true
	}
	if toolName == "health_check" {
		return true
	}
	return p.Role.Permits(tier)
}

// jwksCache fetches and caches RSA public keys by kid, grounded on the
// teacher's teamsJWTVerifier.refreshLocked/resolveKey TTL idiom.
type jwksCache struct {
	client *http.Client
	url    string

	mu         sync.Mutex
	keysByKid  map[string]*rsa.PublicKey
	cacheUntil time.Time
}

func newJWKSCache(client *http.Client, url string) *jwksCache {
	return &jwksCache{client: client, url: url, keysByKid: map[string]*rsa.PublicKey{}}
}

func (c *jwksCache) key(kid string, now time.Time) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key := c.keysByKid[kid]; key != nil && now.Before(c.cacheUntil) {
		return key, nil
	}
	if err := c.refreshLocked(now); err != nil {
		return nil, err
	}
	if key := c.keysByKid[kid]; key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("authz: kid %q not found in jwks", kid)
}

func (c *jwksCache) refreshLocked(now time.Time) error {
	req, err := http.NewRequest(http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("authz: jwks status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return err
	}

	keys := map[string]*rsa.PublicKey{}
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaPublicKeyFromJWK(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("authz: no usable RSA keys in jwks")
	}
	c.keysByKid = keys
	c.cacheUntil = now.Add(30 * time.Minute)
	return nil
}

func rsaPublicKeyFromJWK(nB64, eB64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	eBig := new(big.Int).SetBytes(eBytes)
	if n.Sign() <= 0 || eBig.Sign() <= 0 || !eBig.IsInt64() {
		return nil, errors.New("authz: invalid rsa jwk components")
	}
	return &rsa.PublicKey{N: n, E: int(eBig.Int64())}, nil
}
