package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agentmail/agentmaild/internal/store"
)

func seedMessages(t *testing.T) (*store.Store, int64) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	var projectID int64
	err = s.WithWrite(ctx, func(tx *store.Tx) error {
		p, err := tx.EnsureProject("/home/dev/widgets")
		if err != nil {
			return err
		}
		projectID = p.ID
		sender, err := tx.UpsertAgent(projectID, "clever-otter", "claude-code", "opus", "", 0, 0)
		if err != nil {
			return err
		}
		recipient, err := tx.UpsertAgent(projectID, "quiet-fox", "claude-code", "opus", "", 1, 1)
		if err != nil {
			return err
		}

		seed := []struct{ subject, body string }{
			{"build broke", "the ci pipeline is red on main after the migration landed"},
			{"release notes", "nothing notable this week, routine deploy"},
			{"migration rollback", "we rolled back the database migration after the outage"},
		}
		for _, m := range seed {
			id, err := tx.InsertMessage(&store.Message{
				ProjectID: projectID, FromAgentID: sender.ID, Subject: m.subject, BodyMD: m.body,
				Importance: store.ImportanceNormal, ThreadID: m.subject,
			})
			if err != nil {
				return err
			}
			if err := tx.InsertRecipient(id, recipient.ID, store.RecipientTo); err != nil {
				return err
			}
			if err := tx.IndexMessage(id, m.subject, m.body, sender.Name, recipient.Name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s, projectID
}

func TestLegacySearchMatchesSubstring(t *testing.T) {
	s, projectID := seedMessages(t)
	svc := NewService(s, EngineLegacy, nil)
	hits, err := svc.Search(context.Background(), Request{ProjectID: projectID, Query: "migration"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 legacy hits for 'migration', got %d", len(hits))
	}
}

func TestLexicalSearchRanksAndSupportsNegation(t *testing.T) {
	s, projectID := seedMessages(t)
	svc := NewService(s, EngineLexical, nil)
	hits, err := svc.Search(context.Background(), Request{ProjectID: projectID, Query: "migration NOT outage"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected negation to exclude the outage message, got %d hits", len(hits))
	}
}

func TestSearchWithNoMatchesReturnsEmptyNotError(t *testing.T) {
	s, projectID := seedMessages(t)
	for _, engine := range []Engine{EngineLegacy, EngineLexical, EngineShadow} {
		svc := NewService(s, engine, nil)
		hits, err := svc.Search(context.Background(), Request{ProjectID: projectID, Query: "nonexistentzzz"})
		if err != nil {
			t.Fatalf("engine %s: unexpected error: %v", engine, err)
		}
		if hits == nil || len(hits) != 0 {
			t.Fatalf("engine %s: expected empty non-nil slice, got %+v", engine, hits)
		}
	}
}

func TestSearchWithEmptyQueryIsFilterOnly(t *testing.T) {
	s, projectID := seedMessages(t)
	for _, engine := range []Engine{EngineLegacy, EngineLexical, EngineShadow} {
		svc := NewService(s, engine, nil)
		hits, err := svc.Search(context.Background(), Request{ProjectID: projectID, Query: ""})
		if err != nil {
			t.Fatalf("engine %s: unexpected error on empty query: %v", engine, err)
		}
		if len(hits) != 3 {
			t.Fatalf("engine %s: expected all 3 seeded messages with no query text, got %d", engine, len(hits))
		}
	}
}

func TestShadowModeReturnsLegacyResultAndLogsComparison(t *testing.T) {
	s, projectID := seedMessages(t)
	svc := NewService(s, EngineShadow, nil)
	hits, err := svc.Search(context.Background(), Request{ProjectID: projectID, Query: "migration"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected shadow mode to return the legacy result set, got %d", len(hits))
	}

	err = s.WithRead(context.Background(), func(tx *store.Tx) error {
		n, err := tx.FTSCount()
		if err != nil {
			return err
		}
		if n != 3 {
			t.Fatalf("expected fts index to track all 3 messages, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestLimitClamping(t *testing.T) {
	if got := (Request{Limit: 0}).clampLimit(); got != DefaultLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultLimit, got)
	}
	if got := (Request{Limit: 10000}).clampLimit(); got != MaxLimit {
		t.Fatalf("expected clamp to max limit %d, got %d", MaxLimit, got)
	}
	if got := (Request{Limit: 5}).clampLimit(); got != 5 {
		t.Fatalf("expected explicit limit to pass through, got %d", got)
	}
}
