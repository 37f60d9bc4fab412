package store

import "database/sql"

// BuildSlotLease is a named, single-holder lease with a TTL (spec.md §3,
// §4.5), grounded on the teacher's approval.Manager pending/cleanupStale
// idiom but applied to a named resource instead of a pending-approval
// queue entry.
type BuildSlotLease struct {
	ID         int64
	ProjectID  int64
	Slot       string
	AgentID    int64
	AcquiredTS int64
	ExpiresTS  int64
	ReleasedTS sql.NullInt64
}

// Active reports whether the lease is currently held.
func (l *BuildSlotLease) Active(now int64) bool {
	return !l.ReleasedTS.Valid && l.ExpiresTS > now
}

// SweepExpiredBuildSlotLeases marks every lease whose expires_ts has
// passed as released, stamping released_ts to the expiry time rather than
// now (spec.md §4.5: "TTL expiry is lazy... sweeps expires_ts < now to
// released_ts = expires_ts"). Every acquire/renew/release call sweeps
// first so an expired holder is never mistaken for active.
func (t *Tx) SweepExpiredBuildSlotLeases(projectID int64) error {
	_, err := t.tx.Exec(`
		UPDATE build_slot_leases SET released_ts = expires_ts
		WHERE project_id = ? AND released_ts IS NULL AND expires_ts < ?`, projectID, t.now)
	if err != nil {
		return NewError(ErrInternal, "sweep expired leases").withErr(err)
	}
	return nil
}

// ActiveBuildSlotLease returns the current holder of a named slot, if any.
func (t *Tx) ActiveBuildSlotLease(projectID int64, slot string) (*BuildSlotLease, error) {
	var l BuildSlotLease
	err := t.tx.QueryRow(`
		SELECT id, project_id, slot, agent_id, acquired_ts, expires_ts, released_ts
		FROM build_slot_leases
		WHERE project_id = ? AND slot = ? AND released_ts IS NULL AND expires_ts > ?
		ORDER BY id DESC LIMIT 1`, projectID, slot, t.now).
		Scan(&l.ID, &l.ProjectID, &l.Slot, &l.AgentID, &l.AcquiredTS, &l.ExpiresTS, &l.ReleasedTS)
	if err == sql.ErrNoRows {
		return nil, NewError(ErrNotFound, "no active lease")
	}
	if err != nil {
		return nil, NewError(ErrInternal, "query build slot lease").withErr(err)
	}
	return &l, nil
}

// AcquireBuildSlotLease grants a new lease. Callers must confirm via
// ActiveBuildSlotLease that the slot is free (or expired) within the same
// write transaction before calling this.
func (t *Tx) AcquireBuildSlotLease(projectID, agentID int64, slot string, ttlSeconds int64) (*BuildSlotLease, error) {
	expires := t.now + ttlSeconds*1_000_000
	res, err := t.tx.Exec(`
		INSERT INTO build_slot_leases (project_id, slot, agent_id, acquired_ts, expires_ts)
		VALUES (?, ?, ?, ?, ?)`, projectID, slot, agentID, t.now, expires)
	if err != nil {
		return nil, NewError(ErrInternal, "insert build slot lease").withErr(err)
	}
	id, _ := res.LastInsertId()
	return &BuildSlotLease{ID: id, ProjectID: projectID, Slot: slot, AgentID: agentID, AcquiredTS: t.now, ExpiresTS: expires}, nil
}

// RenewBuildSlotLease extends expires_ts for the current holder.
func (t *Tx) RenewBuildSlotLease(id, ttlSeconds int64) error {
	_, err := t.tx.Exec(`UPDATE build_slot_leases SET expires_ts = ? WHERE id = ?`, t.now+ttlSeconds*1_000_000, id)
	if err != nil {
		return NewError(ErrInternal, "renew build slot lease").withErr(err)
	}
	return nil
}

// ReleaseBuildSlotLease releases a lease held by its own holder.
func (t *Tx) ReleaseBuildSlotLease(id int64) error {
	_, err := t.tx.Exec(`UPDATE build_slot_leases SET released_ts = ? WHERE id = ? AND released_ts IS NULL`, t.now, id)
	if err != nil {
		return NewError(ErrInternal, "release build slot lease").withErr(err)
	}
	return nil
}

// BuildSlotLeaseByID fetches a lease regardless of state, for ownership
// checks before renew/release.
func (t *Tx) BuildSlotLeaseByID(id int64) (*BuildSlotLease, error) {
	var l BuildSlotLease
	err := t.tx.QueryRow(`
		SELECT id, project_id, slot, agent_id, acquired_ts, expires_ts, released_ts
		FROM build_slot_leases WHERE id = ?`, id).
		Scan(&l.ID, &l.ProjectID, &l.Slot, &l.AgentID, &l.AcquiredTS, &l.ExpiresTS, &l.ReleasedTS)
	if err == sql.ErrNoRows {
		return nil, NewError(ErrNotFound, "lease not found")
	}
	if err != nil {
		return nil, NewError(ErrInternal, "query build slot lease").withErr(err)
	}
	return &l, nil
}
