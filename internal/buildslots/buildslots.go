// Package buildslots implements named, single-holder TTL leases
// (spec.md §3, §4.5), grounded on the teacher's approval.Manager
// acquire/wait/respond lifecycle but applied to a durable store row
// instead of an in-memory pending-channel map.
package buildslots

import (
	"context"

	"github.com/agentmail/agentmaild/internal/store"
)

// DefaultTTLSeconds is used when a caller does not specify one.
const DefaultTTLSeconds = 600

// Manager grants, renews, and releases build slot leases.
type Manager struct {
	store *store.Store
}

func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// Holder describes the agent currently holding a slot, returned when
// acquisition is denied.
type Holder struct {
	AgentID   int64
	ExpiresTS int64
}

// AcquireResult reports whether the lease was granted.
type AcquireResult struct {
	Acquired bool
	Lease    *store.BuildSlotLease
	Holder   *Holder
}

// Acquire grants a lease for (project, slot) iff no active lease exists
// (spec.md §4.5). Any acquire first sweeps expired leases so a stale
// holder is never mistaken for active.
func (m *Manager) Acquire(ctx context.Context, projectID, agentID int64, slot string, ttlSeconds int64) (AcquireResult, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	var result AcquireResult
	err := m.store.WithWrite(ctx, func(tx *store.Tx) error {
		if err := tx.SweepExpiredBuildSlotLeases(projectID); err != nil {
			return err
		}
		existing, err := tx.ActiveBuildSlotLease(projectID, slot)
		if err == nil {
			result = AcquireResult{Acquired: false, Holder: &Holder{AgentID: existing.AgentID, ExpiresTS: existing.ExpiresTS}}
			return nil
		}
		if !isNotFound(err) {
			return err
		}

		lease, err := tx.AcquireBuildSlotLease(projectID, agentID, slot, ttlSeconds)
		if err != nil {
			return err
		}
		if err := tx.TouchAgent(agentID, false); err != nil {
			return err
		}
		result = AcquireResult{Acquired: true, Lease: lease}
		return nil
	})
	return result, err
}

// Renew extends expires_ts iff agentID currently holds the slot.
func (m *Manager) Renew(ctx context.Context, projectID, agentID int64, slot string, ttlSeconds int64) (bool, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	var renewed bool
	err := m.store.WithWrite(ctx, func(tx *store.Tx) error {
		if err := tx.SweepExpiredBuildSlotLeases(projectID); err != nil {
			return err
		}
		existing, err := tx.ActiveBuildSlotLease(projectID, slot)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		if existing.AgentID != agentID {
			return nil
		}
		if err := tx.RenewBuildSlotLease(existing.ID, ttlSeconds); err != nil {
			return err
		}
		renewed = true
		return tx.TouchAgent(agentID, false)
	})
	return renewed, err
}

// Release releases the lease iff agentID currently holds the slot.
func (m *Manager) Release(ctx context.Context, projectID, agentID int64, slot string) (bool, error) {
	var released bool
	err := m.store.WithWrite(ctx, func(tx *store.Tx) error {
		if err := tx.SweepExpiredBuildSlotLeases(projectID); err != nil {
			return err
		}
		existing, err := tx.ActiveBuildSlotLease(projectID, slot)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		if existing.AgentID != agentID {
			return nil
		}
		if err := tx.ReleaseBuildSlotLease(existing.ID); err != nil {
			return err
		}
		released = true
		return tx.TouchAgent(agentID, false)
	})
	return released, err
}

func isNotFound(err error) bool {
	se, ok := err.(*store.Error)
	return ok && se.Kind == store.ErrNotFound
}
