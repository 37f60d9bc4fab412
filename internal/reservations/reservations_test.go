package reservations

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentmail/agentmaild/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store, int64, int64, int64) {
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
	return NewManager(s), s, projectID, aID, bID
}

func TestGrantNoConflictWhenFree(t *testing.T) {
	m, _, projectID, agentID, _ := newTestManager(t)
	result, err := m.Grant(context.Background(), projectID, agentID, []Candidate{
		{PathPattern: "src/auth/**", Exclusive: true, Reason: "refactor"},
	}, 900)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if len(result.Granted) != 1 || len(result.Conflicts) != 0 {
		t.Fatalf("expected one grant and no conflicts, got %+v", result)
	}
}

func TestGrantExclusiveConflictsWithExclusive(t *testing.T) {
	m, _, projectID, holderID, contenderID := newTestManager(t)
	if _, err := m.Grant(context.Background(), projectID, holderID, []Candidate{
		{PathPattern: "src/auth/**", Exclusive: true},
	}, 900); err != nil {
		t.Fatalf("first grant: %v", err)
	}

	result, err := m.Grant(context.Background(), projectID, contenderID, []Candidate{
		{PathPattern: "src/auth/login.go", Exclusive: true},
	}, 900)
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}
	if len(result.Granted) != 0 || len(result.Conflicts) != 1 {
		t.Fatalf("expected one conflict and no grants, got %+v", result)
	}
	if result.Conflicts[0].Holders[0].AgentID != holderID {
		t.Fatalf("expected conflict holder %d, got %+v", holderID, result.Conflicts[0])
	}
}

func TestGrantSharedDoesNotConflictWithShared(t *testing.T) {
	m, _, projectID, holderID, contenderID := newTestManager(t)
	if _, err := m.Grant(context.Background(), projectID, holderID, []Candidate{
		{PathPattern: "src/auth/**", Exclusive: false},
	}, 900); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	result, err := m.Grant(context.Background(), projectID, contenderID, []Candidate{
		{PathPattern: "src/auth/login.go", Exclusive: false},
	}, 900)
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}
	if len(result.Granted) != 1 || len(result.Conflicts) != 0 {
		t.Fatalf("expected shared+shared to grant without conflict, got %+v", result)
	}
}

func TestGrantSelfConflictsAreNotReported(t *testing.T) {
	m, _, projectID, agentID, _ := newTestManager(t)
	if _, err := m.Grant(context.Background(), projectID, agentID, []Candidate{
		{PathPattern: "src/auth/**", Exclusive: true},
	}, 900); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	result, err := m.Grant(context.Background(), projectID, agentID, []Candidate{
		{PathPattern: "src/auth/login.go", Exclusive: true},
	}, 900)
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}
	if len(result.Granted) != 1 || len(result.Conflicts) != 0 {
		t.Fatalf("same agent must not conflict with itself, got %+v", result)
	}
}

func TestRenewNeverExtendsSomeoneElsesLease(t *testing.T) {
	m, _, projectID, holderID, contenderID := newTestManager(t)
	if _, err := m.Grant(context.Background(), projectID, holderID, []Candidate{
		{PathPattern: "src/auth/**", Exclusive: true},
	}, 900); err != nil {
		t.Fatalf("grant: %v", err)
	}
	result, err := m.Renew(context.Background(), projectID, contenderID, []string{"src/auth/**"}, 1800)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if len(result.Renewed) != 0 || len(result.NotHeld) != 1 {
		t.Fatalf("expected renew to report not_held for someone else's lease, got %+v", result)
	}
}

func TestForceReleaseDeniedWhileHolderActive(t *testing.T) {
	m, _, projectID, holderID, evictorID := newTestManager(t)
	var reservationID int64
	result, err := m.Grant(context.Background(), projectID, holderID, []Candidate{
		{PathPattern: "src/auth/**", Exclusive: true},
	}, 900)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	reservationID = result.Granted[0].ID

	_, err = m.ForceRelease(context.Background(), reservationID, evictorID, "testing", time.Now())
	if err == nil {
		t.Fatal("expected ErrHolderActive while holder is fresh")
	}
	serr, ok := err.(*store.Error)
	if !ok || serr.Kind != store.ErrHolderActive {
		t.Fatalf("expected ErrHolderActive, got %v", err)
	}
}

func TestForceReleaseAllowedWhenStale(t *testing.T) {
	m, s, projectID, holderID, evictorID := newTestManager(t)
	result, err := m.Grant(context.Background(), projectID, holderID, []Candidate{
		{PathPattern: "src/auth/**", Exclusive: true},
	}, 900)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	reservationID := result.Granted[0].ID

	staleTS := time.Now().Add(-2 * time.Hour).UnixMicro()
	err = s.WithWrite(context.Background(), func(tx *store.Tx) error {
		return tx.SetLastActiveTS(holderID, staleTS)
	})
	if err != nil {
		t.Fatalf("simulate staleness: %v", err)
	}

	signals, err := m.ForceRelease(context.Background(), reservationID, evictorID, "holder unresponsive", time.Now())
	if err != nil {
		t.Fatalf("force release: %v", err)
	}
	if !signals.InactiveSinceActivity {
		t.Fatalf("expected signal 1 to be true, got %+v", signals)
	}

	err = s.WithRead(context.Background(), func(tx *store.Tx) error {
		r, err := tx.ReservationByID(reservationID)
		if err != nil {
			return err
		}
		if r.Active(tx.Now()) {
			t.Fatal("expected reservation to no longer be active after force release")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}
