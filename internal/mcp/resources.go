package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/agentmail/agentmaild/internal/messaging"
	"github.com/agentmail/agentmaild/internal/store"
)

// projectsResource serves resource://projects (spec.md §6).
type projectsResource struct{ store *store.Store }

func (r *projectsResource) Definition() ResourceDefinition {
	return ResourceDefinition{
		URI:         "resource://projects",
		Name:        "projects",
		Description: "All known projects",
		MimeType:    "application/json",
	}
}

func (r *projectsResource) Read(ctx context.Context, uri resourceURI) (*ResourcesReadResult, error) {
	var projects []store.Project
	err := r.store.WithRead(ctx, func(tx *store.Tx) error {
		var err error
		projects, err = tx.AllProjects()
		return err
	})
	if err != nil {
		return nil, err
	}
	return jsonResource(uri, map[string]any{"projects": projects})
}

// agentsResource serves resource://agents/<project_slug> (spec.md §6).
type agentsResource struct{ store *store.Store }

func (r *agentsResource) Definition() ResourceDefinition {
	return ResourceDefinition{
		URI:         "resource://agents/<project_slug>",
		Name:        "agents",
		Description: "Agents registered in a project",
		MimeType:    "application/json",
	}
}

func (r *agentsResource) Read(ctx context.Context, uri resourceURI) (*ResourcesReadResult, error) {
	if uri.Selector == "" {
		return nil, store.NewError(store.ErrInvalidArgument, "resource://agents/<project_slug> requires a project slug")
	}
	var agents []store.Agent
	err := r.store.WithRead(ctx, func(tx *store.Tx) error {
		project, err := tx.ProjectBySlug(uri.Selector)
		if err != nil {
			return err
		}
		agents, err = tx.AgentsInProject(project.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return jsonResource(uri, map[string]any{"agents": agents})
}

// inboxResource serves resource://inbox/<agent_name>?project=<slug>&limit=<n>
// (spec.md §6).
type inboxResource struct {
	store     *store.Store
	messaging *messaging.Service
}

func (r *inboxResource) Definition() ResourceDefinition {
	return ResourceDefinition{
		URI:         "resource://inbox/<agent_name>?project=<slug>&limit=<n>",
		Name:        "inbox",
		Description: "An agent's inbox within a project",
		MimeType:    "application/json",
	}
}

func (r *inboxResource) Read(ctx context.Context, uri resourceURI) (*ResourcesReadResult, error) {
	if uri.Selector == "" {
		return nil, store.NewError(store.ErrInvalidArgument, "resource://inbox/<agent_name> requires an agent name")
	}
	projectSlug := uri.Query.Get("project")
	if projectSlug == "" {
		return nil, store.NewError(store.ErrInvalidArgument, "inbox resource requires ?project=<slug>")
	}
	limit := 20
	if raw := uri.Query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, store.NewError(store.ErrInvalidArgument, "limit must be a positive integer")
		}
		limit = n
	}

	var projectID, agentID int64
	err := r.store.WithRead(ctx, func(tx *store.Tx) error {
		project, err := tx.ProjectBySlug(projectSlug)
		if err != nil {
			return err
		}
		projectID = project.ID
		agent, err := tx.AgentByName(project.ID, uri.Selector)
		if err != nil {
			return err
		}
		agentID = agent.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows, err := r.messaging.FetchInbox(ctx, projectID, agentID, store.InboxFilter{Limit: limit})
	if err != nil {
		return nil, err
	}
	return jsonResource(uri, map[string]any{"inbox": rows})
}

// toolingResource serves resource://tooling (spec.md §6): the same
// directory tools/list exposes, via the resource surface.
type toolingResource struct{ registry *Registry }

func (r *toolingResource) Definition() ResourceDefinition {
	return ResourceDefinition{
		URI:         "resource://tooling",
		Name:        "tooling",
		Description: "The tool directory",
		MimeType:    "application/json",
	}
}

func (r *toolingResource) Read(ctx context.Context, uri resourceURI) (*ResourcesReadResult, error) {
	return jsonResource(uri, map[string]any{"tools": r.registry.List()})
}

func jsonResource(uri resourceURI, v any) (*ResourcesReadResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling resource: %w", err)
	}
	return &ResourcesReadResult{Contents: []ResourceContent{{
		URI:      "resource://" + uri.Kind + "/" + uri.Selector,
		MimeType: "application/json",
		Text:     string(b),
	}}}, nil
}
