package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentmail/agentmaild/internal/authz"
	"github.com/agentmail/agentmaild/internal/buildslots"
	"github.com/agentmail/agentmaild/internal/config"
	"github.com/agentmail/agentmaild/internal/contacts"
	"github.com/agentmail/agentmaild/internal/mcp"
	"github.com/agentmail/agentmaild/internal/messaging"
	"github.com/agentmail/agentmaild/internal/products"
	"github.com/agentmail/agentmaild/internal/reservations"
	"github.com/agentmail/agentmaild/internal/search"
	"github.com/agentmail/agentmaild/internal/store"
	"github.com/spf13/cobra"
)

var (
	serveStdio bool
	serveHTTP  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server over stdio or HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "serve the newline-delimited JSON-RPC transport over stdin/stdout")
	serveCmd.Flags().BoolVar(&serveHTTP, "http", false, "serve the streamable HTTP transport")
}

// runServe wires the store and every business component into the MCP tool
// registry, then blocks on whichever transport was requested. Grounded on
// the teacher's internal/cli.runGatewayMain wiring-then-serve shape,
// trimmed to this server's components and simplified to two transports
// instead of a channel fan-out.
func runServe(cmd *cobra.Command, args []string) error {
	if !serveStdio && !serveHTTP {
		return fmt.Errorf("specify --stdio or --http")
	}
	if serveStdio && serveHTTP {
		return fmt.Errorf("--stdio and --http are mutually exclusive; run two processes to serve both")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	s, err := store.Open(cfg.Store.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	contactsMgr := contacts.NewManager(s)
	msgSvc := messaging.NewService(s, contactsMgr)
	searchEngine := search.Engine(cfg.Search.Engine)
	if searchEngine == "" {
		searchEngine = search.EngineLegacy
	}
	searchSvc := search.NewService(s, searchEngine, logger)
	productsSvc := products.NewManagerWithServices(s, msgSvc, searchSvc)

	svc := &mcp.Services{
		Store:        s,
		Messaging:    msgSvc,
		Reservations: reservations.NewManager(s),
		BuildSlots:   buildslots.NewManager(s),
		Contacts:     contactsMgr,
		Products:     productsSvc,
		Search:       searchSvc,
	}

	registry := mcp.NewRegistry()
	mcp.RegisterAll(registry, svc)

	info := mcp.ServerInfo{Name: "agentmaild", Version: version}
	server := mcp.NewServer(registry, info, logger)

	authCfg := authz.Config{
		BearerToken:          cfg.HTTP.BearerToken,
		AllowLocalhostUnauth: cfg.HTTP.AllowLocalhostUnauth,
		JWTEnabled:           cfg.HTTP.JWTEnabled,
		JWTSecret:            cfg.HTTP.JWTSecret,
		JWTJWKSURL:           cfg.HTTP.JWTJWKSURL,
		JWTAudience:          cfg.HTTP.JWTAudience,
		JWTIssuer:            cfg.HTTP.JWTIssuer,
		RBACEnabled:          cfg.HTTP.RBACEnabled,
	}
	authorizer := authz.NewAuthenticator(authCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	if serveStdio {
		return server.StdioServe(ctx, stdioPrincipal(cfg), authorizer)
	}

	httpServer := mcp.NewHTTPServer(server, authorizer, logger)
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	srv := &http.Server{Addr: addr, Handler: httpServer.Handler()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// stdioPrincipal derives the single fixed identity for a stdio session: a
// writer when a bearer token is configured or JWT is enabled (the operator
// trusts whatever spawned this process), otherwise a reader. Stdio has no per-frame
// Authorization header to re-authenticate against (spec.md §4.10).
func stdioPrincipal(cfg *config.Config) *authz.Principal {
	role := authz.RoleReader
	if cfg.HTTP.BearerToken != "" || cfg.HTTP.JWTEnabled {
		role = authz.RoleWriter
	}
	return &authz.Principal{Subject: "stdio", Role: role}
}
