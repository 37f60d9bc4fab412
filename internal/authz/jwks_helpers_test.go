package authz

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"testing"
)

func mustRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

func jwkDocument(t *testing.T, kid string, pub *rsa.PublicKey) map[string]any {
	t.Helper()
	n := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(bigEndianUint(pub.E))
	return map[string]any{
		"keys": []map[string]any{
			{"kid": kid, "kty": "RSA", "n": n, "e": e},
		},
	}
}

func bigEndianUint(v int) []byte {
	// Exponents are tiny (typically 65537); three bytes comfortably covers it.
	b := []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return b[i:]
}
