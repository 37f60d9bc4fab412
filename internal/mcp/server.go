package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/agentmail/agentmaild/internal/authz"
)

// Server implements the JSON-RPC dispatch shared by both transports
// (spec.md §4.9), grounded on the specmcp reference pack's Server/dispatch
// shape.
type Server struct {
	registry *Registry
	info     ServerInfo
	logger   *slog.Logger
}

func NewServer(registry *Registry, info ServerInfo, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{registry: registry, info: info, logger: logger}
}

// StdioServe reads newline-delimited JSON-RPC frames from stdin and
// writes one newline-terminated response per frame to stdout (spec.md
// §6: "Server exits cleanly within 5 seconds of stdin EOF. Stderr is
// reserved for human logs"). principal is fixed for the whole stdio
// session — there is one process per agent session, so its identity does
// not vary per frame.
func (s *Server) StdioServe(ctx context.Context, principal *authz.Principal, authorizer *authz.Authenticator) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	encoder := json.NewEncoder(os.Stdout)

	s.logger.Info("mcp stdio server started", "name", s.info.Name, "version", s.info.Version)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handleMessage(ctx, line, principal, authorizer)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.logger.Error("failed to write response", "error", err)
				return fmt.Errorf("writing response: %w", err)
			}
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reading stdin: %w", err)
	}
	s.logger.Info("mcp stdio server stopped (stdin closed)")
	return nil
}

// handleMessage parses one frame and dispatches it. A malformed frame (not
// valid JSON, missing jsonrpc/method, or a batch array) yields a
// protocol-level RPCError (spec.md §4.9).
func (s *Server) handleMessage(ctx context.Context, data []byte, principal *authz.Principal, authorizer *authz.Authenticator) *Response {
	trimmed := firstNonSpace(data)
	if trimmed == '[' {
		return &Response{JSONRPC: "2.0", Error: &RPCError{Code: ErrCodeInvalidRequest, Message: "batch requests are not supported"}}
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return &Response{JSONRPC: "2.0", Error: &RPCError{Code: ErrCodeParse, Message: "parse error", Data: err.Error()}}
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: ErrCodeInvalidRequest, Message: "missing jsonrpc or method"}}
	}

	if req.ID == nil {
		s.logger.Debug("received notification", "method", req.Method)
		return nil
	}

	result, rpcErr := s.dispatch(ctx, &req, principal, authorizer)
	resp := &Response{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return resp
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return b
		}
	}
	return 0
}

func (s *Server) dispatch(ctx context.Context, req *Request, principal *authz.Principal, authorizer *authz.Authenticator) (any, *RPCError) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req.Params)
	case "tools/list":
		return &ToolsListResult{Tools: s.registry.List()}, nil
	case "tools/call":
		return s.handleToolsCall(ctx, req.Params, principal, authorizer)
	case "resources/list":
		return &ResourcesListResult{Resources: s.registry.ListResources()}, nil
	case "resources/read":
		return s.handleResourcesRead(ctx, req.Params)
	default:
		return nil, &RPCError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
}

func (s *Server) handleInitialize(params json.RawMessage) (any, *RPCError) {
	var initParams InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &initParams); err != nil {
			return nil, &RPCError{Code: ErrCodeInvalidParams, Message: "invalid initialize params", Data: err.Error()}
		}
	}
	s.logger.Info("client connecting", "client", initParams.ClientInfo.Name, "protocol_version", initParams.ProtocolVersion)
	return &InitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities:    ServerCapability{Tools: &ToolsCapability{}, Resources: &ResourcesCapability{}},
		ServerInfo:      s.info,
	}, nil
}

// callEnvelopeArgs captures the one envelope field (format) that is
// interpreted by the dispatcher rather than by the tool itself (spec.md
// §6); everything else in Arguments is forwarded to the tool verbatim.
type callEnvelopeArgs struct {
	Format string `json:"format"`
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage, principal *authz.Principal, authorizer *authz.Authenticator) (any, *RPCError) {
	var callParams ToolsCallParams
	if err := json.Unmarshal(params, &callParams); err != nil {
		return nil, &RPCError{Code: ErrCodeInvalidParams, Message: "invalid tools/call params", Data: err.Error()}
	}

	tool := s.registry.Get(callParams.Name)
	if tool == nil {
		return nil, &RPCError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("tool not found: %s", callParams.Name)}
	}

	if authorizer != nil && principal != nil {
		tier := authz.TierRead
		if tool.Permission() == PermissionWrite {
			tier = authz.TierWrite
		}
		if !authorizer.Authorize(principal, tool.Name(), tier) {
			return nil, &RPCError{Code: ErrCodeForbidden, Message: "forbidden: role does not permit this tool"}
		}
	}

	var envArgs callEnvelopeArgs
	if len(callParams.Arguments) > 0 {
		_ = json.Unmarshal(callParams.Arguments, &envArgs)
	}

	s.logger.Info("calling tool", "tool", callParams.Name)
	result, err := tool.Execute(ctx, callParams.Arguments)
	if err != nil {
		s.logger.Error("tool execution failed", "tool", callParams.Name, "error", err)
		return ErrorResult(fmt.Sprintf("tool execution failed: %v", err)), nil
	}

	return applyEnvelope(ctx, result, envArgs.Format), nil
}

// applyEnvelope re-wraps a successful tool result's JSON payload in the
// format envelope (spec.md §6). Tool-level errors are left untouched: the
// format envelope only applies to successful results.
func applyEnvelope(ctx context.Context, result *ToolsCallResult, format string) *ToolsCallResult {
	if result.IsError || format == "" || len(result.Content) != 1 {
		return result
	}
	var data any
	if err := json.Unmarshal([]byte(result.Content[0].Text), &data); err != nil {
		return result
	}
	env := applyFormat(ctx, format, data)
	b, err := json.Marshal(env)
	if err != nil {
		return result
	}
	return &ToolsCallResult{Content: []ContentBlock{TextContent(string(b))}}
}

func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var readParams ResourcesReadParams
	if err := json.Unmarshal(params, &readParams); err != nil {
		return nil, &RPCError{Code: ErrCodeInvalidParams, Message: "invalid resources/read params", Data: err.Error()}
	}

	parsed, err := parseResourceURI(readParams.URI)
	if err != nil {
		return nil, &RPCError{Code: ErrCodeInvalidParams, Message: err.Error()}
	}

	resource := s.registry.GetResource(parsed.Kind)
	if resource == nil {
		return nil, &RPCError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("resource not found: %s", readParams.URI)}
	}

	result, err := resource.Read(ctx, parsed)
	if err != nil {
		return nil, &RPCError{Code: ErrCodeInternal, Message: fmt.Sprintf("resource read error: %v", err)}
	}
	return result, nil
}
