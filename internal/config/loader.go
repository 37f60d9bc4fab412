package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Load builds a Config starting from DefaultConfig and overlaying any
// recognized environment variables (spec.md §6). Precedence, low to high:
// built-in defaults, then process environment.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Search.Engine) {
	case "", "legacy", "lexical", "shadow":
	default:
		return fmt.Errorf("invalid AM_SEARCH_ENGINE %q: must be legacy, lexical, or shadow", cfg.Search.Engine)
	}
	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP_PORT %d", cfg.HTTP.Port)
	}
	return nil
}
