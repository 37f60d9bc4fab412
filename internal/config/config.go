// Package config holds the server's typed configuration snapshot, loaded
// once at startup from the environment.
package config

import "time"

// Config is the root configuration struct, loaded by Load. Field groups
// mirror the environment variables recognized by the server.
type Config struct {
	Store   StoreConfig
	HTTP    HTTPConfig
	Search  SearchConfig
	Runtime RuntimeConfig
}

// StoreConfig groups persistence settings.
type StoreConfig struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
	StorageRoot string `envconfig:"STORAGE_ROOT"`
}

// HTTPConfig groups HTTP transport and AuthN/Z settings.
type HTTPConfig struct {
	Host                       string `envconfig:"HTTP_HOST"`
	Port                       int    `envconfig:"HTTP_PORT"`
	BearerToken                string `envconfig:"HTTP_BEARER_TOKEN"`
	AllowLocalhostUnauth       bool   `envconfig:"HTTP_ALLOW_LOCALHOST_UNAUTHENTICATED"`
	JWTEnabled                 bool   `envconfig:"HTTP_JWT_ENABLED"`
	JWTSecret                  string `envconfig:"HTTP_JWT_SECRET"`
	JWTJWKSURL                 string `envconfig:"HTTP_JWT_JWKS_URL"`
	JWTAudience                string `envconfig:"HTTP_JWT_AUDIENCE"`
	JWTIssuer                  string `envconfig:"HTTP_JWT_ISSUER"`
	RBACEnabled                bool   `envconfig:"HTTP_RBAC_ENABLED"`
	RateLimitEnabled           bool   `envconfig:"HTTP_RATE_LIMIT_ENABLED"`
}

// SearchConfig selects the query engine (spec.md §4.8, §6).
type SearchConfig struct {
	Engine string `envconfig:"AM_SEARCH_ENGINE"` // legacy | lexical | shadow
}

// RuntimeConfig groups miscellaneous operator toggles.
type RuntimeConfig struct {
	WorktreesEnabled bool   `envconfig:"WORKTREES_ENABLED"`
	LogFilter        string `envconfig:"RUST_LOG"` // accepted for parity with the reference deployment's logging knob
}

// InactivityThreshold is the default staleness window used by the
// reservation force-release gate (spec.md §4.4).
const InactivityThreshold = 30 * time.Minute

// DefaultConfig returns a Config with the server's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			DatabaseURL: "file:agentmail.db",
			StorageRoot: "./data",
		},
		HTTP: HTTPConfig{
			Host: "127.0.0.1",
			Port: 8790,
		},
		Search: SearchConfig{
			Engine: "legacy",
		},
	}
}
