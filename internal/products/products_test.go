package products

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agentmail/agentmaild/internal/contacts"
	"github.com/agentmail/agentmaild/internal/messaging"
	"github.com/agentmail/agentmaild/internal/search"
	"github.com/agentmail/agentmaild/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewManager(s)
}

func newTestManagerWithServices(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	cm := contacts.NewManager(s)
	ms := messaging.NewService(s, cm)
	se := search.NewService(s, search.EngineLegacy, nil)
	return NewManagerWithServices(s, ms, se), s
}

func TestLinkAutoCreatesProject(t *testing.T) {
	m := newTestManager(t)
	_, project, err := m.Link(context.Background(), "widgets", "/home/dev/widgets-frontend")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if project.Slug != "widgets-frontend" {
		t.Fatalf("expected auto-created project slug widgets-frontend, got %q", project.Slug)
	}
}

func TestLinkIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	if _, _, err := m.Link(context.Background(), "widgets", "/home/dev/widgets-frontend"); err != nil {
		t.Fatalf("first link: %v", err)
	}
	if _, _, err := m.Link(context.Background(), "widgets", "/home/dev/widgets-frontend"); err != nil {
		t.Fatalf("second link: %v", err)
	}
	projects, err := m.ProjectsFor(context.Background(), "widgets")
	if err != nil {
		t.Fatalf("projects for: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected link to be idempotent, got %d projects", len(projects))
	}
}

func TestProjectsForReflectsRelinkImmediately(t *testing.T) {
	m := newTestManager(t)
	if _, _, err := m.Link(context.Background(), "product-a", "/home/dev/a1"); err != nil {
		t.Fatalf("link a1->a: %v", err)
	}
	if _, _, err := m.Link(context.Background(), "product-a", "/home/dev/a2"); err != nil {
		t.Fatalf("link a2->a: %v", err)
	}
	if _, _, err := m.Link(context.Background(), "product-b", "/home/dev/b1"); err != nil {
		t.Fatalf("link b1->b: %v", err)
	}

	// Multi-product: a2 also belongs to product-b.
	if _, _, err := m.Link(context.Background(), "product-b", "/home/dev/a2"); err != nil {
		t.Fatalf("link a2->b: %v", err)
	}

	aProjects, err := m.ProjectsFor(context.Background(), "product-a")
	if err != nil {
		t.Fatalf("projects for a: %v", err)
	}
	if len(aProjects) != 2 {
		t.Fatalf("expected product-a to retain both projects, got %d", len(aProjects))
	}

	bProjects, err := m.ProjectsFor(context.Background(), "product-b")
	if err != nil {
		t.Fatalf("projects for b: %v", err)
	}
	if len(bProjects) != 2 {
		t.Fatalf("expected product-b to include b1 and a2, got %d", len(bProjects))
	}
}

// TestSearchMessagesProductUnionsAcrossLinkedProjects models spec.md §8
// scenario 6: A1/A2 under product A, B1 under product B, then A2 also
// linked to B. search_messages_product(A, "marker") must return only the
// A-side pair; after linking A2 into B, search_messages_product(B,
// "marker") must include A2's message alongside B's own.
func TestSearchMessagesProductUnionsAcrossLinkedProjects(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManagerWithServices(t)

	if _, _, err := m.Link(ctx, "product-a", "/home/dev/a1"); err != nil {
		t.Fatalf("link a1: %v", err)
	}
	if _, _, err := m.Link(ctx, "product-a", "/home/dev/a2"); err != nil {
		t.Fatalf("link a2: %v", err)
	}
	if _, _, err := m.Link(ctx, "product-b", "/home/dev/b1"); err != nil {
		t.Fatalf("link b1: %v", err)
	}

	seed := func(humanKey, subject, body string) {
		err := s.WithWrite(ctx, func(tx *store.Tx) error {
			project, err := tx.EnsureProject(humanKey)
			if err != nil {
				return err
			}
			sender, err := tx.UpsertAgent(project.ID, "clever-otter", "claude-code", "opus", "", 0, 0)
			if err != nil {
				return err
			}
			id, err := tx.InsertMessage(&store.Message{
				ProjectID: project.ID, FromAgentID: sender.ID, Subject: subject, BodyMD: body,
				Importance: store.ImportanceNormal, ThreadID: subject,
			})
			if err != nil {
				return err
			}
			return tx.IndexMessage(id, subject, body, sender.Name, "")
		})
		if err != nil {
			t.Fatalf("seed %s: %v", humanKey, err)
		}
	}
	seed("/home/dev/a1", "marker-a1", "body")
	seed("/home/dev/a2", "marker-a2", "body")
	seed("/home/dev/b1", "marker-b1", "body")

	countHits := func(results []ProductSearchResult) int {
		n := 0
		for _, r := range results {
			n += len(r.Hits)
		}
		return n
	}

	aResults, err := m.SearchMessagesProduct(ctx, "product-a", search.Request{Query: "marker"})
	if err != nil {
		t.Fatalf("search product-a: %v", err)
	}
	if got := countHits(aResults); got != 2 {
		t.Fatalf("expected product-a to see only its own pair, got %d hits", got)
	}

	if _, _, err := m.Link(ctx, "product-b", "/home/dev/a2"); err != nil {
		t.Fatalf("link a2 into b: %v", err)
	}

	bResults, err := m.SearchMessagesProduct(ctx, "product-b", search.Request{Query: "marker"})
	if err != nil {
		t.Fatalf("search product-b: %v", err)
	}
	if got := countHits(bResults); got != 2 {
		t.Fatalf("expected product-b to see b1 and a2, got %d hits", got)
	}

	aResultsAfter, err := m.SearchMessagesProduct(ctx, "product-a", search.Request{Query: "marker"})
	if err != nil {
		t.Fatalf("search product-a after relink: %v", err)
	}
	if got := countHits(aResultsAfter); got != 2 {
		t.Fatalf("expected product-a to still see its own pair after a2 multi-links, got %d hits", got)
	}
}

func TestFetchInboxProductSkipsProjectsWhereAgentUnknown(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManagerWithServices(t)

	if _, _, err := m.Link(ctx, "product-a", "/home/dev/a1"); err != nil {
		t.Fatalf("link a1: %v", err)
	}
	if _, _, err := m.Link(ctx, "product-a", "/home/dev/a2"); err != nil {
		t.Fatalf("link a2: %v", err)
	}

	err := s.WithWrite(ctx, func(tx *store.Tx) error {
		project, err := tx.EnsureProject("/home/dev/a1")
		if err != nil {
			return err
		}
		_, err = tx.UpsertAgent(project.ID, "clever-otter", "claude-code", "opus", "", 0, 0)
		return err
	})
	if err != nil {
		t.Fatalf("seed agent in a1 only: %v", err)
	}

	results, err := m.FetchInboxProduct(ctx, "product-a", "clever-otter", store.InboxFilter{Limit: 10})
	if err != nil {
		t.Fatalf("fetch inbox product: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected only the project where the agent exists, got %d results", len(results))
	}
}
