package store

import "database/sql"

// ContactState is the lifecycle of a pairwise contact relationship
// (spec.md §3, §4.6).
type ContactState string

const (
	ContactRequested ContactState = "requested"
	ContactAccepted  ContactState = "accepted"
	ContactBlocked   ContactState = "blocked"
)

// Contact is a pairwise relationship stored once per unordered pair, keyed
// on (project_id, agent_a_id, agent_b_id) with agent_a_id < agent_b_id
// enforced at the call site so (a, b) and (b, a) never produce two rows
// (spec.md §3).
type Contact struct {
	ProjectID       int64
	AgentAID        int64
	AgentBID        int64
	State           ContactState
	RequestedBy     int64
	RequestedReason string
	DecidedTS       sql.NullInt64
}

// orderedPair returns (lo, hi) so every caller addresses the same row
// regardless of argument order.
func orderedPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// ContactBetween looks up the relationship row between two agents, in
// either argument order.
func (t *Tx) ContactBetween(projectID, agentA, agentB int64) (*Contact, error) {
	lo, hi := orderedPair(agentA, agentB)
	var c Contact
	var state string
	err := t.tx.QueryRow(`
		SELECT project_id, agent_a_id, agent_b_id, state, requested_by, requested_reason, decided_ts
		FROM contacts WHERE project_id = ? AND agent_a_id = ? AND agent_b_id = ?`, projectID, lo, hi).
		Scan(&c.ProjectID, &c.AgentAID, &c.AgentBID, &state, &c.RequestedBy, &c.RequestedReason, &c.DecidedTS)
	if err == sql.ErrNoRows {
		return nil, NewError(ErrNotFound, "contact not found")
	}
	if err != nil {
		return nil, NewError(ErrInternal, "query contact").withErr(err)
	}
	c.State = ContactState(state)
	return &c, nil
}

// RequestContact creates a pending contact request, or returns the
// existing row unchanged if one already exists. Contacts are monotone
// except for one carve-out (spec.md §3: "monotone except for explicit
// re-request after rejection"): a blocked pair resets to requested,
// re-arming the handshake instead of staying stuck.
func (t *Tx) RequestContact(projectID, requesterID, targetID int64, reason string) (*Contact, error) {
	existing, err := t.ContactBetween(projectID, requesterID, targetID)
	if err == nil {
		if existing.State != ContactBlocked {
			return existing, nil
		}
		lo, hi := orderedPair(requesterID, targetID)
		_, err = t.tx.Exec(`
			UPDATE contacts
			SET state = ?, requested_by = ?, requested_reason = ?, decided_ts = NULL
			WHERE project_id = ? AND agent_a_id = ? AND agent_b_id = ?`,
			string(ContactRequested), requesterID, reason, projectID, lo, hi)
		if err != nil {
			return nil, NewError(ErrInternal, "reset blocked contact").withErr(err)
		}
		return &Contact{ProjectID: projectID, AgentAID: lo, AgentBID: hi, State: ContactRequested, RequestedBy: requesterID, RequestedReason: reason}, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	lo, hi := orderedPair(requesterID, targetID)
	_, err = t.tx.Exec(`
		INSERT INTO contacts (project_id, agent_a_id, agent_b_id, state, requested_by, requested_reason)
		VALUES (?, ?, ?, ?, ?, ?)`, projectID, lo, hi, string(ContactRequested), requesterID, reason)
	if err != nil {
		return nil, NewError(ErrInternal, "insert contact").withErr(err)
	}
	return &Contact{ProjectID: projectID, AgentAID: lo, AgentBID: hi, State: ContactRequested, RequestedBy: requesterID, RequestedReason: reason}, nil
}

// SetContactState transitions an existing contact row (accept or block),
// stamping decided_ts.
func (t *Tx) SetContactState(projectID, agentA, agentB int64, state ContactState) error {
	lo, hi := orderedPair(agentA, agentB)
	_, err := t.tx.Exec(`
		UPDATE contacts SET state = ?, decided_ts = ?
		WHERE project_id = ? AND agent_a_id = ? AND agent_b_id = ?`, string(state), t.now, projectID, lo, hi)
	if err != nil {
		return NewError(ErrInternal, "set contact state").withErr(err)
	}
	return nil
}

// ContactsOfAgent lists every relationship row touching agentID.
func (t *Tx) ContactsOfAgent(projectID, agentID int64) ([]Contact, error) {
	rows, err := t.tx.Query(`
		SELECT project_id, agent_a_id, agent_b_id, state, requested_by, requested_reason, decided_ts
		FROM contacts WHERE project_id = ? AND (agent_a_id = ? OR agent_b_id = ?)
		ORDER BY agent_a_id ASC, agent_b_id ASC`, projectID, agentID, agentID)
	if err != nil {
		return nil, NewError(ErrInternal, "list contacts").withErr(err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		var state string
		if err := rows.Scan(&c.ProjectID, &c.AgentAID, &c.AgentBID, &state, &c.RequestedBy, &c.RequestedReason, &c.DecidedTS); err != nil {
			return nil, NewError(ErrInternal, "scan contact").withErr(err)
		}
		c.State = ContactState(state)
		out = append(out, c)
	}
	return out, rows.Err()
}
