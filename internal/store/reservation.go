package store

import "database/sql"

// Reservation is a declared intent to edit paths matching a glob pattern
// for a bounded time (spec.md §3, §4.4).
type Reservation struct {
	ID               int64
	ProjectID        int64
	AgentID          int64
	PathPattern      string
	Exclusive        bool
	Reason           string
	AcquiredTS       int64
	ExpiresTS        int64
	ReleasedTS       sql.NullInt64
	ForceReleasedBy  sql.NullInt64
	ForceReleasedTS  sql.NullInt64
	ForceReleaseNote string
}

// Active reports whether the reservation is currently held: not released
// and not yet expired (spec.md §3).
func (r *Reservation) Active(now int64) bool {
	return !r.ReleasedTS.Valid && r.ExpiresTS > now
}

// InsertReservation grants a new reservation.
func (t *Tx) InsertReservation(projectID, agentID int64, pathPattern string, exclusive bool, reason string, ttlSeconds int64) (*Reservation, error) {
	expires := t.now + ttlSeconds*1_000_000
	res, err := t.tx.Exec(`
		INSERT INTO file_reservations (project_id, agent_id, path_pattern, exclusive, reason, acquired_ts, expires_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		projectID, agentID, pathPattern, boolToInt(exclusive), reason, t.now, expires)
	if err != nil {
		return nil, NewError(ErrInternal, "insert reservation").withErr(err)
	}
	id, _ := res.LastInsertId()
	return &Reservation{
		ID: id, ProjectID: projectID, AgentID: agentID, PathPattern: pathPattern,
		Exclusive: exclusive, Reason: reason, AcquiredTS: t.now, ExpiresTS: expires,
	}, nil
}

// ActiveReservations returns every active reservation in a project
// (spec.md §4.4 step 2).
func (t *Tx) ActiveReservations(projectID int64) ([]Reservation, error) {
	rows, err := t.tx.Query(`
		SELECT id, project_id, agent_id, path_pattern, exclusive, reason, acquired_ts, expires_ts, released_ts, force_released_by, force_released_ts, force_release_note
		FROM file_reservations
		WHERE project_id = ? AND released_ts IS NULL AND expires_ts > ?`, projectID, t.now)
	if err != nil {
		return nil, NewError(ErrInternal, "list active reservations").withErr(err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

// ReservationByID fetches a reservation by id regardless of state.
func (t *Tx) ReservationByID(id int64) (*Reservation, error) {
	var r Reservation
	var exclusive int
	err := t.tx.QueryRow(`
		SELECT id, project_id, agent_id, path_pattern, exclusive, reason, acquired_ts, expires_ts, released_ts, force_released_by, force_released_ts, force_release_note
		FROM file_reservations WHERE id = ?`, id).
		Scan(&r.ID, &r.ProjectID, &r.AgentID, &r.PathPattern, &exclusive, &r.Reason, &r.AcquiredTS, &r.ExpiresTS,
			&r.ReleasedTS, &r.ForceReleasedBy, &r.ForceReleasedTS, &r.ForceReleaseNote)
	if err == sql.ErrNoRows {
		return nil, NewError(ErrNotFound, "reservation not found")
	}
	if err != nil {
		return nil, NewError(ErrInternal, "query reservation").withErr(err)
	}
	r.Exclusive = exclusive != 0
	return &r, nil
}

// ReservationsHeldByAgent returns the currently active reservations held by
// an agent whose path_pattern is in paths (used by renew/release).
func (t *Tx) ReservationsHeldByAgent(projectID, agentID int64, paths []string) ([]Reservation, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	placeholders, args := inClauseStrings(paths)
	args = append([]any{projectID, agentID}, args...)
	args = append(args, t.now)

	rows, err := t.tx.Query(`
		SELECT id, project_id, agent_id, path_pattern, exclusive, reason, acquired_ts, expires_ts, released_ts, force_released_by, force_released_ts, force_release_note
		FROM file_reservations
		WHERE project_id = ? AND agent_id = ? AND path_pattern IN (`+placeholders+`) AND released_ts IS NULL AND expires_ts > ?`, args...)
	if err != nil {
		return nil, NewError(ErrInternal, "list held reservations").withErr(err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

// RenewReservation extends expires_ts for a reservation already confirmed
// to be held by the renewing agent.
func (t *Tx) RenewReservation(id, ttlSeconds int64) error {
	_, err := t.tx.Exec(`UPDATE file_reservations SET expires_ts = ? WHERE id = ?`, t.now+ttlSeconds*1_000_000, id)
	if err != nil {
		return NewError(ErrInternal, "renew reservation").withErr(err)
	}
	return nil
}

// ReleaseReservation marks a reservation released by its own holder.
func (t *Tx) ReleaseReservation(id int64) error {
	_, err := t.tx.Exec(`UPDATE file_reservations SET released_ts = ? WHERE id = ? AND released_ts IS NULL`, t.now, id)
	if err != nil {
		return NewError(ErrInternal, "release reservation").withErr(err)
	}
	return nil
}

// ForceReleaseReservation marks a reservation evicted by someone other than
// its holder (spec.md §4.4, invariant 5).
func (t *Tx) ForceReleaseReservation(id, releaserAgentID int64, note string) error {
	_, err := t.tx.Exec(`
		UPDATE file_reservations
		SET released_ts = ?, force_released_by = ?, force_released_ts = ?, force_release_note = ?
		WHERE id = ?`, t.now, releaserAgentID, t.now, note, id)
	if err != nil {
		return NewError(ErrInternal, "force release reservation").withErr(err)
	}
	return nil
}

func scanReservations(rows *sql.Rows) ([]Reservation, error) {
	var out []Reservation
	for rows.Next() {
		var r Reservation
		var exclusive int
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.AgentID, &r.PathPattern, &exclusive, &r.Reason, &r.AcquiredTS, &r.ExpiresTS,
			&r.ReleasedTS, &r.ForceReleasedBy, &r.ForceReleasedTS, &r.ForceReleaseNote); err != nil {
			return nil, NewError(ErrInternal, "scan reservation").withErr(err)
		}
		r.Exclusive = exclusive != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func inClauseStrings(vals []string) (string, []any) {
	args := make([]any, len(vals))
	b := make([]byte, 0, len(vals)*2)
	for i, v := range vals {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
		args[i] = v
	}
	return string(b), args
}
