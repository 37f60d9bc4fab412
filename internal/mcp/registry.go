package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Tool is one callable MCP tool, tagged with the RBAC tier it requires
// (spec.md §4.10: "each tool is tagged read or write").
type Tool interface {
	Name() string
	Description() string
	Permission() Permission
	InputSchema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error)
}

// Resource serves one kind of resource://<kind>/... URI (spec.md §6).
type Resource interface {
	Definition() ResourceDefinition
	Read(ctx context.Context, uri resourceURI) (*ResourcesReadResult, error)
}

// Registry holds every registered tool and resource, keyed by name/kind
// respectively, preserving registration order for tools/list and
// resources/list (grounded on the specmcp reference pack's Registry).
type Registry struct {
	mu sync.RWMutex

	tools     map[string]Tool
	toolOrder []string

	resources     map[string]Resource
	resourceOrder []string
}

func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		resources: make(map[string]Resource),
	}
}

// Register adds a tool. Panics on a duplicate name: a colliding
// registration is a programming error caught at startup, not a runtime
// condition to recover from.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("mcp: tool %q already registered", name))
	}
	r.tools[name] = t
	r.toolOrder = append(r.toolOrder, name)
}

func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

func (r *Registry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		t := r.tools[name]
		defs = append(defs, ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
			Permission:  t.Permission(),
		})
	}
	return defs
}

// RegisterResource adds a resource keyed by its kind (the first path
// segment of its URI template, e.g. "inbox" for
// "resource://inbox/<agent_name>"). Panics on a duplicate kind.
func (r *Registry) RegisterResource(kind string, res Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[kind]; exists {
		panic(fmt.Sprintf("mcp: resource kind %q already registered", kind))
	}
	r.resources[kind] = res
	r.resourceOrder = append(r.resourceOrder, kind)
}

func (r *Registry) GetResource(kind string) Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resources[kind]
}

func (r *Registry) ListResources() []ResourceDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ResourceDefinition, 0, len(r.resourceOrder))
	for _, kind := range r.resourceOrder {
		defs = append(defs, r.resources[kind].Definition())
	}
	return defs
}
