package buildslots

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agentmail/agentmaild/internal/store"
)

func newTestManager(t *testing.T) (*Manager, int64, int64, int64) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	var projectID, aID, bID int64
	err = s.WithWrite(ctx, func(tx *store.Tx) error {
		p, err := tx.EnsureProject("/home/dev/widgets")
		if err != nil {
			return err
		}
		projectID = p.ID
		a, err := tx.UpsertAgent(projectID, "clever-otter", "claude-code", "opus", "", 0, 0)
		if err != nil {
			return err
		}
		b, err := tx.UpsertAgent(projectID, "quiet-fox", "claude-code", "opus", "", 1, 1)
		aID, bID = a.ID, b.ID
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return NewManager(s), projectID, aID, bID
}

func TestAcquireGrantsWhenFree(t *testing.T) {
	m, projectID, agentID, _ := newTestManager(t)
	result, err := m.Acquire(context.Background(), projectID, agentID, "cargo-build", 300)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !result.Acquired || result.Lease == nil {
		t.Fatalf("expected acquisition, got %+v", result)
	}
}

func TestAcquireDeniedWhileHeldReportsHolder(t *testing.T) {
	m, projectID, holderID, contenderID := newTestManager(t)
	if _, err := m.Acquire(context.Background(), projectID, holderID, "cargo-build", 300); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	result, err := m.Acquire(context.Background(), projectID, contenderID, "cargo-build", 300)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if result.Acquired {
		t.Fatal("expected second acquire to be denied")
	}
	if result.Holder == nil || result.Holder.AgentID != holderID {
		t.Fatalf("expected holder to be reported as %d, got %+v", holderID, result.Holder)
	}
}

func TestRenewOnlyByHolder(t *testing.T) {
	m, projectID, holderID, contenderID := newTestManager(t)
	if _, err := m.Acquire(context.Background(), projectID, holderID, "cargo-build", 300); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	renewed, err := m.Renew(context.Background(), projectID, contenderID, "cargo-build", 300)
	if err != nil {
		t.Fatalf("renew by non-holder: %v", err)
	}
	if renewed {
		t.Fatal("non-holder must not be able to renew")
	}

	renewed, err = m.Renew(context.Background(), projectID, holderID, "cargo-build", 300)
	if err != nil {
		t.Fatalf("renew by holder: %v", err)
	}
	if !renewed {
		t.Fatal("holder should be able to renew")
	}
}

func TestReleaseFreesSlotForOthers(t *testing.T) {
	m, projectID, holderID, contenderID := newTestManager(t)
	if _, err := m.Acquire(context.Background(), projectID, holderID, "cargo-build", 300); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	released, err := m.Release(context.Background(), projectID, holderID, "cargo-build")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !released {
		t.Fatal("expected release by holder to succeed")
	}

	result, err := m.Acquire(context.Background(), projectID, contenderID, "cargo-build", 300)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if !result.Acquired {
		t.Fatalf("expected slot to be free after release, got %+v", result)
	}
}
