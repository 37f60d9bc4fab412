// Package reservations implements the path-pattern reservation arbiter:
// conflict detection via the pattern package's intersection automaton,
// TTL renewal/release, and multi-signal staleness detection gating
// force-release (spec.md §4.4). The staleness gate is grounded on the
// teacher's cascade.CanTransition state-gate idiom: a fixed policy
// function deciding whether a transition (here, eviction) is permitted
// from the observed signals.
package reservations

import (
	"context"
	"time"

	"github.com/agentmail/agentmaild/internal/config"
	"github.com/agentmail/agentmaild/internal/pattern"
	"github.com/agentmail/agentmaild/internal/store"
)

// DefaultTTLSeconds is used when a caller does not specify one.
const DefaultTTLSeconds = 3600

// Manager grants, renews, releases, and force-releases reservations.
type Manager struct {
	store               *store.Store
	inactivityThreshold time.Duration
}

func NewManager(s *store.Store) *Manager {
	return &Manager{store: s, inactivityThreshold: config.InactivityThreshold}
}

// Candidate is one requested path pattern in a grant call.
type Candidate struct {
	PathPattern string
	Exclusive   bool
	Reason      string
}

// ConflictHolder describes one existing reservation blocking a candidate.
type ConflictHolder struct {
	AgentID     int64
	PathPattern string
	ExpiresTS   int64
	AcquiredTS  int64
	Reason      string
	Exclusive   bool
}

// Conflict reports every holder blocking a single requested pattern.
type Conflict struct {
	RequestedPattern string
	Holders          []ConflictHolder
}

// GrantResult is the outcome of a Grant call across all candidates.
type GrantResult struct {
	Granted   []store.Reservation
	Conflicts []Conflict
}

// Grant evaluates every candidate pattern against the project's currently
// active reservations and grants the ones with no conflict, all within a
// single transaction (spec.md §4.4 steps 1-5: partial granting, one
// commit).
func (m *Manager) Grant(ctx context.Context, projectID, agentID int64, candidates []Candidate, ttlSeconds int64) (GrantResult, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	var result GrantResult
	err := m.store.WithWrite(ctx, func(tx *store.Tx) error {
		active, err := tx.ActiveReservations(projectID)
		if err != nil {
			return err
		}

		for _, cand := range candidates {
			normalized := normalizedPattern(cand.PathPattern)
			candSegs := pattern.Normalize(cand.PathPattern)
			var conflict Conflict
			conflict.RequestedPattern = cand.PathPattern

			for _, existing := range active {
				if existing.AgentID == agentID {
					continue // self-conflicts are not reported
				}
				if !cand.Exclusive && !existing.Exclusive {
					continue // shared+shared never conflicts
				}
				if !pattern.SegmentsIntersect(candSegs, pattern.Normalize(existing.PathPattern)) {
					continue
				}
				conflict.Holders = append(conflict.Holders, ConflictHolder{
					AgentID: existing.AgentID, PathPattern: existing.PathPattern,
					ExpiresTS: existing.ExpiresTS, AcquiredTS: existing.AcquiredTS,
					Reason: existing.Reason, Exclusive: existing.Exclusive,
				})
			}

			if len(conflict.Holders) > 0 {
				result.Conflicts = append(result.Conflicts, conflict)
				continue
			}

			r, err := tx.InsertReservation(projectID, agentID, normalized, cand.Exclusive, cand.Reason, ttlSeconds)
			if err != nil {
				return err
			}
			result.Granted = append(result.Granted, *r)
			// A just-granted reservation must itself be checked against
			// subsequent candidates in the same call.
			active = append(active, *r)
		}

		if len(result.Granted) > 0 {
			return tx.TouchAgent(agentID, false)
		}
		return nil
	})
	return result, err
}

// RenewResult reports which requested patterns were extended.
type RenewResult struct {
	Renewed  []string
	NotHeld  []string
}

// Renew extends expires_ts for every pattern currently held by agentID;
// patterns unknown or held by someone else are reported in NotHeld and
// never touched (spec.md §4.4: "this operation never extends someone
// else's lease").
func (m *Manager) Renew(ctx context.Context, projectID, agentID int64, paths []string, ttlSeconds int64) (RenewResult, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	var result RenewResult
	err := m.store.WithWrite(ctx, func(tx *store.Tx) error {
		held, err := tx.ReservationsHeldByAgent(projectID, agentID, paths)
		if err != nil {
			return err
		}
		heldByPath := map[string]store.Reservation{}
		for _, r := range held {
			heldByPath[r.PathPattern] = r
		}
		for _, p := range paths {
			r, ok := heldByPath[p]
			if !ok {
				result.NotHeld = append(result.NotHeld, p)
				continue
			}
			if err := tx.RenewReservation(r.ID, ttlSeconds); err != nil {
				return err
			}
			result.Renewed = append(result.Renewed, p)
		}
		if len(result.Renewed) > 0 {
			return tx.TouchAgent(agentID, false)
		}
		return nil
	})
	return result, err
}

// Release sets released_ts for every matching row held by agentID. Unknown
// paths are silently ignored (spec.md §4.4).
func (m *Manager) Release(ctx context.Context, projectID, agentID int64, paths []string) ([]string, error) {
	var released []string
	err := m.store.WithWrite(ctx, func(tx *store.Tx) error {
		held, err := tx.ReservationsHeldByAgent(projectID, agentID, paths)
		if err != nil {
			return err
		}
		for _, r := range held {
			if err := tx.ReleaseReservation(r.ID); err != nil {
				return err
			}
			released = append(released, r.PathPattern)
		}
		if len(released) > 0 {
			return tx.TouchAgent(agentID, false)
		}
		return nil
	})
	return released, err
}

// StalenessSignals is the multi-signal heuristic evaluated before a
// force-release is permitted (spec.md §4.4).
type StalenessSignals struct {
	InactiveSinceActivity bool // signal 1
	NoRecentMessages      bool // signal 2
	NoRecentReadsOrAcks   bool // signal 4
}

// Permits applies the documented policy: signal 1 AND (signal 2 OR
// signal 4) must hold for a force-release to be allowed.
func (s StalenessSignals) Permits() bool {
	return s.InactiveSinceActivity && (s.NoRecentMessages || s.NoRecentReadsOrAcks)
}

// ForceRelease evicts a reservation held by a stale agent (spec.md §4.4).
// now is supplied by the caller so tests can simulate staleness without a
// real clock.
func (m *Manager) ForceRelease(ctx context.Context, reservationID, releaserID int64, note string, now time.Time) (StalenessSignals, error) {
	var signals StalenessSignals
	err := m.store.WithWrite(ctx, func(tx *store.Tx) error {
		r, err := tx.ReservationByID(reservationID)
		if err != nil {
			return err
		}
		if !r.Active(tx.Now()) {
			return store.NewError(store.ErrNotFound, "reservation is not active")
		}

		holder, err := tx.AgentByID(r.AgentID)
		if err != nil {
			return err
		}
		threshold := now.Add(-m.inactivityThreshold).UnixMicro()

		signals = StalenessSignals{
			InactiveSinceActivity: holder.LastActiveTS < threshold,
			NoRecentMessages:      holder.LastMessageTS < threshold,
		}
		lastReadOrAck, err := tx.AgentLastReadOrAckTS(r.AgentID)
		if err != nil {
			return err
		}
		signals.NoRecentReadsOrAcks = lastReadOrAck < threshold

		if !signals.Permits() {
			return store.NewError(store.ErrHolderActive, "holder is not stale")
		}

		return tx.ForceReleaseReservation(reservationID, releaserID, note)
	})
	return signals, err
}

func normalizedPattern(p string) string {
	segs := pattern.Normalize(p)
	if len(segs) == 0 {
		return ""
	}
	joined := segs[0]
	for _, s := range segs[1:] {
		joined += "/" + s
	}
	return joined
}
