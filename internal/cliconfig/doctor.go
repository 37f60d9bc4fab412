// Package cliconfig implements the doctor command's environment sanity
// checks, grounded on the teacher's internal/cliconfig.RunDoctor, trimmed
// to this server's own config surface (internal/config) and reworked from
// channel/skills/provider checks to store/transport/auth checks.
package cliconfig

import (
	"context"
	"database/sql"
	"fmt"
	"os/exec"
	"strings"

	"github.com/agentmail/agentmaild/internal/config"
	_ "modernc.org/sqlite"
)

type DoctorStatus string

const (
	DoctorPass DoctorStatus = "pass"
	DoctorWarn DoctorStatus = "warn"
	DoctorFail DoctorStatus = "fail"
)

type DoctorCheck struct {
	Name    string
	Status  DoctorStatus
	Message string
}

type DoctorReport struct {
	Checks []DoctorCheck
}

func (r DoctorReport) HasFailures() bool {
	for _, c := range r.Checks {
		if c.Status == DoctorFail {
			return true
		}
	}
	return false
}

func (r *DoctorReport) add(name string, status DoctorStatus, format string, args ...any) {
	r.Checks = append(r.Checks, DoctorCheck{Name: name, Status: status, Message: fmt.Sprintf(format, args...)})
}

// RunDoctor loads the process configuration and inspects it for the
// misconfigurations most likely to surprise an operator at startup: an
// unreachable database, no HTTP auth mode (every HTTP caller rejected), a
// JWT mode missing its signing material, RBAC disabled (any authenticated
// caller may write), and an unrecognized search engine. It never mutates configuration or process state.
func RunDoctor(ctx context.Context) DoctorReport {
	report := DoctorReport{Checks: make([]DoctorCheck, 0, 8)}

	cfg, err := config.Load()
	if err != nil {
		report.add("config_load", DoctorFail, "config load failed: %v", err)
		return report
	}
	report.add("config_load", DoctorPass, "config loaded successfully")

	checkStore(&report, ctx, cfg)
	checkSearchEngine(&report, cfg)
	checkHTTPAuth(&report, cfg)
	checkTOONBinary(&report)

	return report
}

func checkStore(report *DoctorReport, ctx context.Context, cfg *config.Config) {
	if cfg.Store.DatabaseURL == "" {
		report.add("store_dsn", DoctorFail, "DATABASE_URL is empty")
		return
	}
	db, err := sql.Open("sqlite", cfg.Store.DatabaseURL)
	if err != nil {
		report.add("store_dsn", DoctorFail, "cannot open %s: %v", cfg.Store.DatabaseURL, err)
		return
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		report.add("store_dsn", DoctorFail, "cannot reach %s: %v", cfg.Store.DatabaseURL, err)
		return
	}
	report.add("store_dsn", DoctorPass, "database reachable at %s", cfg.Store.DatabaseURL)
}

func checkSearchEngine(report *DoctorReport, cfg *config.Config) {
	switch strings.ToLower(cfg.Search.Engine) {
	case "", "legacy", "lexical", "shadow":
		report.add("search_engine", DoctorPass, "AM_SEARCH_ENGINE=%s", cfg.Search.Engine)
	default:
		report.add("search_engine", DoctorFail, "invalid AM_SEARCH_ENGINE %q", cfg.Search.Engine)
	}
}

func checkHTTPAuth(report *DoctorReport, cfg *config.Config) {
	h := cfg.HTTP
	if h.BearerToken == "" && !h.JWTEnabled {
		report.add("http_auth", DoctorWarn, "no HTTP_BEARER_TOKEN and JWT disabled: every HTTP caller will be rejected with 401")
	} else {
		report.add("http_auth", DoctorPass, "at least one HTTP authentication mode is configured")
	}

	if h.JWTEnabled {
		if h.JWTSecret == "" && h.JWTJWKSURL == "" {
			report.add("http_jwt", DoctorFail, "HTTP_JWT_ENABLED is set but neither HTTP_JWT_SECRET (HS256) nor HTTP_JWT_JWKS_URL (RS256) is configured")
		} else {
			report.add("http_jwt", DoctorPass, "JWT verification is configured")
		}
	}

	if h.AllowLocalhostUnauth {
		report.add("localhost_exception", DoctorWarn, "HTTP_ALLOW_LOCALHOST_UNAUTHENTICATED is set; note it only ever applies to the stdio transport, never HTTP")
	}

	if !h.RBACEnabled {
		report.add("rbac", DoctorWarn, "HTTP_RBAC_ENABLED is false: any authenticated caller may invoke write tools")
	} else {
		report.add("rbac", DoctorPass, "RBAC is enabled")
	}
}

// checkTOONBinary never fails the doctor run: the encoder is an optional
// external collaborator and its absence degrades to plain JSON responses.
func checkTOONBinary(report *DoctorReport) {
	if _, err := exec.LookPath("toon"); err != nil {
		report.add("toon_binary", DoctorWarn, "toon encoder not found in PATH; format=toon requests will fall back to JSON")
		return
	}
	report.add("toon_binary", DoctorPass, "toon encoder found in PATH")
}
