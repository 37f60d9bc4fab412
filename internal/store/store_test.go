package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := Open(dbPath, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureProjectIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var first, second *Project
	err := s.WithWrite(ctx, func(tx *Tx) error {
		p, err := tx.EnsureProject("/home/dev/widgets")
		first = p
		return err
	})
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	err = s.WithWrite(ctx, func(tx *Tx) error {
		p, err := tx.EnsureProject("/home/dev/widgets")
		second = p
		return err
	})
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if first.ID != second.ID || first.Slug != second.Slug {
		t.Fatalf("ensure_project not idempotent: %+v vs %+v", first, second)
	}
}

func TestEnsureProjectSlugCollision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var a, b *Project
	err := s.WithWrite(ctx, func(tx *Tx) error {
		var err error
		a, err = tx.EnsureProject("/home/dev/widgets")
		return err
	})
	if err != nil {
		t.Fatalf("ensure a: %v", err)
	}
	err = s.WithWrite(ctx, func(tx *Tx) error {
		var err error
		b, err = tx.EnsureProject("/srv/builds/widgets")
		return err
	})
	if err != nil {
		t.Fatalf("ensure b: %v", err)
	}
	if a.Slug == b.Slug {
		t.Fatalf("expected distinct slugs for colliding basenames, got %q twice", a.Slug)
	}
}

func TestUpsertAgentOverwritesProgram(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var projectID int64
	err := s.WithWrite(ctx, func(tx *Tx) error {
		p, err := tx.EnsureProject("/home/dev/widgets")
		if err != nil {
			return err
		}
		projectID = p.ID
		_, err = tx.UpsertAgent(projectID, "clever-otter", "claude-code", "opus", "refactor auth", 3, 7)
		return err
	})
	if err != nil {
		t.Fatalf("register first: %v", err)
	}

	var agent *Agent
	err = s.WithWrite(ctx, func(tx *Tx) error {
		var err error
		agent, err = tx.UpsertAgent(projectID, "clever-otter", "cursor", "sonnet", "write tests", 3, 7)
		return err
	})
	if err != nil {
		t.Fatalf("register second: %v", err)
	}
	if agent.Program != "cursor" || agent.Model != "sonnet" {
		t.Fatalf("expected overwritten program/model, got %+v", agent)
	}

	err = s.WithRead(ctx, func(tx *Tx) error {
		agents, err := tx.AgentsInProject(projectID)
		if err != nil {
			return err
		}
		if len(agents) != 1 {
			t.Fatalf("expected a single agent row after re-registration, got %d", len(agents))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
}

func TestMessageInboxAndFTSCardinality(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var projectID, fromID, toID int64
	err := s.WithWrite(ctx, func(tx *Tx) error {
		p, err := tx.EnsureProject("/home/dev/widgets")
		if err != nil {
			return err
		}
		projectID = p.ID
		from, err := tx.UpsertAgent(projectID, "clever-otter", "claude-code", "opus", "", 0, 0)
		if err != nil {
			return err
		}
		to, err := tx.UpsertAgent(projectID, "quiet-fox", "claude-code", "opus", "", 1, 1)
		if err != nil {
			return err
		}
		fromID, toID = from.ID, to.ID
		return nil
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	var messageID int64
	err = s.WithWrite(ctx, func(tx *Tx) error {
		id, err := tx.InsertMessage(&Message{
			ProjectID: projectID, FromAgentID: fromID, Subject: "build broke",
			BodyMD: "the ci pipeline is red on main", Importance: ImportanceHigh, ThreadID: "t1", AckRequired: true,
		})
		if err != nil {
			return err
		}
		messageID = id
		if err := tx.InsertRecipient(messageID, toID, RecipientTo); err != nil {
			return err
		}
		return tx.IndexMessage(messageID, "build broke", "the ci pipeline is red on main", "clever-otter", "quiet-fox")
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	err = s.WithRead(ctx, func(tx *Tx) error {
		rows, err := tx.Inbox(projectID, toID, InboxFilter{})
		if err != nil {
			return err
		}
		if len(rows) != 1 || rows[0].ID != messageID {
			t.Fatalf("expected one inbox row for message %d, got %+v", messageID, rows)
		}
		if rows[0].Read || rows[0].Acked {
			t.Fatalf("expected unread/unacked message, got read=%v acked=%v", rows[0].Read, rows[0].Acked)
		}

		msgCount, err := tx.MessageCount()
		if err != nil {
			return err
		}
		ftsCount, err := tx.FTSCount()
		if err != nil {
			return err
		}
		if msgCount != ftsCount {
			t.Fatalf("fts cardinality drifted from message count: %d vs %d", ftsCount, msgCount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	err = s.WithWrite(ctx, func(tx *Tx) error {
		if err := tx.MarkRead(messageID, toID); err != nil {
			return err
		}
		return tx.MarkRead(messageID, toID) // idempotent
	})
	if err != nil {
		t.Fatalf("mark read twice: %v", err)
	}
}

func TestReservationActiveAndForceRelease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var projectID, holderID, evictorID int64
	err := s.WithWrite(ctx, func(tx *Tx) error {
		p, err := tx.EnsureProject("/home/dev/widgets")
		if err != nil {
			return err
		}
		projectID = p.ID
		holder, err := tx.UpsertAgent(projectID, "clever-otter", "claude-code", "opus", "", 0, 0)
		if err != nil {
			return err
		}
		evictor, err := tx.UpsertAgent(projectID, "quiet-fox", "claude-code", "opus", "", 1, 1)
		if err != nil {
			return err
		}
		holderID, evictorID = holder.ID, evictor.ID
		return nil
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	var reservationID int64
	err = s.WithWrite(ctx, func(tx *Tx) error {
		r, err := tx.InsertReservation(projectID, holderID, "src/auth/**", true, "refactor auth", 900)
		if err != nil {
			return err
		}
		reservationID = r.ID
		if !r.Active(tx.Now()) {
			t.Fatalf("freshly granted reservation should be active")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	err = s.WithRead(ctx, func(tx *Tx) error {
		active, err := tx.ActiveReservations(projectID)
		if err != nil {
			return err
		}
		if len(active) != 1 || active[0].ID != reservationID {
			t.Fatalf("expected reservation %d active, got %+v", reservationID, active)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify active: %v", err)
	}

	err = s.WithWrite(ctx, func(tx *Tx) error {
		return tx.ForceReleaseReservation(reservationID, evictorID, "holder unresponsive for 45 minutes")
	})
	if err != nil {
		t.Fatalf("force release: %v", err)
	}

	err = s.WithRead(ctx, func(tx *Tx) error {
		r, err := tx.ReservationByID(reservationID)
		if err != nil {
			return err
		}
		if !r.ForceReleasedBy.Valid || r.ForceReleasedBy.Int64 != evictorID {
			t.Fatalf("expected force_released_by=%d, got %+v", evictorID, r.ForceReleasedBy)
		}
		if r.Active(tx.Now()) {
			t.Fatalf("force-released reservation should no longer be active")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify released: %v", err)
	}
}

func TestBuildSlotLeaseSingleHolder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var projectID, agentID int64
	err := s.WithWrite(ctx, func(tx *Tx) error {
		p, err := tx.EnsureProject("/home/dev/widgets")
		if err != nil {
			return err
		}
		projectID = p.ID
		a, err := tx.UpsertAgent(projectID, "clever-otter", "claude-code", "opus", "", 0, 0)
		agentID = a.ID
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	err = s.WithWrite(ctx, func(tx *Tx) error {
		_, err := tx.AcquireBuildSlotLease(projectID, agentID, "ci-runner-1", 600)
		return err
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	err = s.WithRead(ctx, func(tx *Tx) error {
		_, err := tx.ActiveBuildSlotLease(projectID, "ci-runner-1")
		return err
	})
	if err != nil {
		t.Fatalf("expected active lease, got: %v", err)
	}
}

func TestContactRequestIsIdempotentRegardlessOfOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var projectID, aID, bID int64
	err := s.WithWrite(ctx, func(tx *Tx) error {
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

	err = s.WithWrite(ctx, func(tx *Tx) error {
		_, err := tx.RequestContact(projectID, aID, bID, "working the same module")
		return err
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	err = s.WithWrite(ctx, func(tx *Tx) error {
		c, err := tx.RequestContact(projectID, bID, aID, "duplicate request")
		if err != nil {
			return err
		}
		if c.RequestedReason != "working the same module" {
			t.Fatalf("second request should return the original row, got reason %q", c.RequestedReason)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("duplicate request: %v", err)
	}

	err = s.WithRead(ctx, func(tx *Tx) error {
		contacts, err := tx.ContactsOfAgent(projectID, aID)
		if err != nil {
			return err
		}
		if len(contacts) != 1 {
			t.Fatalf("expected exactly one contact row regardless of request order, got %d", len(contacts))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}
