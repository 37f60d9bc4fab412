// Streamable HTTP transport: POST /api/ (and the /mcp/ alias) per
// spec.md §6, grounded on the teacher's cmd/channelbridge net/http
// webhook server and the specmcp reference pack's HTTPServer.
package mcp

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/agentmail/agentmaild/internal/authz"
)

// HTTPServer wraps Server with the HTTP POST transport and its
// bearer/JWT/RBAC gate (spec.md §4.9, §4.10).
type HTTPServer struct {
	server     *Server
	authorizer *authz.Authenticator
	logger     *slog.Logger
}

func NewHTTPServer(server *Server, authorizer *authz.Authenticator, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{server: server, authorizer: authorizer, logger: logger}
}

// Handler mounts the POST endpoint and its /mcp/ alias, plus an
// unauthenticated /healthz check for deployment probes.
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/", h.handleRPC)
	mux.HandleFunc("/mcp/", h.handleRPC)
	mux.HandleFunc("/healthz", h.handleHealth)
	return mux
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *HTTPServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && ct != "application/json" && !hasJSONContentType(ct) {
		http.Error(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}

	// The localhost-unauthenticated exception applies only to the stdio
	// transport (spec.md §4.10); HTTP always authenticates.
	principal, err := h.authorizer.Authenticate(r.Header.Get("Authorization"), false)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(authz.ErrUnauthorized.Error()))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 10*1024*1024))
	if err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(&Response{JSONRPC: "2.0", Error: &RPCError{Code: ErrCodeParse, Message: "malformed JSON"}})
		return
	}

	resp := h.server.handleMessage(r.Context(), body, principal, h.authorizer)
	if resp == nil {
		// A notification frame (no id) produces no JSON-RPC reply.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	status := http.StatusOK
	if resp.Error != nil && resp.Error.Code == ErrCodeForbidden {
		status = http.StatusForbidden
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func hasJSONContentType(ct string) bool {
	for i := 0; i < len(ct); i++ {
		if ct[i] == ';' {
			ct = ct[:i]
			break
		}
	}
	return ct == "application/json"
}
