// Package products implements the N:M project-to-product aggregator
// (spec.md §3, §4.7), grounded on the teacher's group.Manager roster
// idiom — a durable many-to-many membership table resolved fresh on
// every query rather than denormalized into the member rows.
package products

import (
	"context"

	"github.com/agentmail/agentmaild/internal/messaging"
	"github.com/agentmail/agentmaild/internal/search"
	"github.com/agentmail/agentmaild/internal/store"
)

// Manager upserts products and resolves their linked projects.
type Manager struct {
	store     *store.Store
	messaging *messaging.Service
	search    *search.Service
}

func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// NewManagerWithServices wires the cross-project aggregation operations
// (FetchInboxProduct, SearchMessagesProduct) that delegate per-project
// work to the messaging and search services (spec.md §4.7).
func NewManagerWithServices(s *store.Store, m *messaging.Service, se *search.Service) *Manager {
	return &Manager{store: s, messaging: m, search: se}
}

// Ensure upserts a product by key.
func (m *Manager) Ensure(ctx context.Context, productKey, name string) (*store.Product, error) {
	var p *store.Product
	err := m.store.WithWrite(ctx, func(tx *store.Tx) error {
		var err error
		p, err = tx.EnsureProduct(productKey, name)
		return err
	})
	return p, err
}

// Link idempotently links a project to a product, auto-creating the
// project by its human key if it does not already exist (spec.md §4.7).
func (m *Manager) Link(ctx context.Context, productKey, projectHumanKey string) (*store.Product, *store.Project, error) {
	var product *store.Product
	var project *store.Project
	err := m.store.WithWrite(ctx, func(tx *store.Tx) error {
		p, err := tx.EnsureProduct(productKey, "")
		if err != nil {
			return err
		}
		product = p

		proj, err := tx.EnsureProject(projectHumanKey)
		if err != nil {
			return err
		}
		project = proj

		return tx.LinkProductProject(product.ID, project.ID)
	})
	return product, project, err
}

// ProjectsFor resolves a product's currently linked projects. Queries are
// never denormalized: moving a project between products takes effect
// immediately for the next call (spec.md §4.7).
func (m *Manager) ProjectsFor(ctx context.Context, productKey string) ([]store.Project, error) {
	var projects []store.Project
	err := m.store.WithRead(ctx, func(tx *store.Tx) error {
		p, err := tx.ProductByKey(productKey)
		if err != nil {
			return err
		}
		projects, err = tx.ProjectsForProduct(p.ID)
		return err
	})
	return projects, err
}

// ProductInboxResult pairs one linked project with an agent's inbox rows
// resolved under that project (spec.md §4.7).
type ProductInboxResult struct {
	Project store.Project
	Rows    []messaging.InboxResult
}

// FetchInboxProduct unions fetch_inbox across every project currently
// linked to productKey, resolving agentName within each project
// independently (an agent's identity is project-scoped, spec.md §3). A
// project where agentName has never been seen is skipped rather than
// failing the whole call.
func (m *Manager) FetchInboxProduct(ctx context.Context, productKey, agentName string, filter store.InboxFilter) ([]ProductInboxResult, error) {
	projects, err := m.ProjectsFor(ctx, productKey)
	if err != nil {
		return nil, err
	}

	var out []ProductInboxResult
	for _, project := range projects {
		var agentID int64
		err := m.store.WithRead(ctx, func(tx *store.Tx) error {
			agent, err := tx.AgentByName(project.ID, agentName)
			if err != nil {
				return err
			}
			agentID = agent.ID
			return nil
		})
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}

		rows, err := m.messaging.FetchInbox(ctx, project.ID, agentID, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, ProductInboxResult{Project: project, Rows: rows})
	}
	return out, nil
}

// ProductSearchResult pairs one linked project with its own search hits.
type ProductSearchResult struct {
	Project store.Project
	Hits    []search.Hit
}

// SearchMessagesProduct unions search across every project currently
// linked to productKey (spec.md §4.7, §8: "moving a project between
// products takes effect immediately for subsequent queries").
func (m *Manager) SearchMessagesProduct(ctx context.Context, productKey string, req search.Request) ([]ProductSearchResult, error) {
	projects, err := m.ProjectsFor(ctx, productKey)
	if err != nil {
		return nil, err
	}

	out := make([]ProductSearchResult, 0, len(projects))
	for _, project := range projects {
		scoped := req
		scoped.ProjectID = project.ID
		hits, err := m.search.Search(ctx, scoped)
		if err != nil {
			return nil, err
		}
		out = append(out, ProductSearchResult{Project: project, Hits: hits})
	}
	return out, nil
}

func isNotFound(err error) bool {
	se, ok := err.(*store.Error)
	return ok && se.Kind == store.ErrNotFound
}
