package store

import "database/sql"

// ContactPolicy is the agent-level default governing inbound senders
// (spec.md §3, §4.6).
type ContactPolicy string

const (
	PolicyOpen         ContactPolicy = "open"
	PolicyContactsOnly ContactPolicy = "contacts_only"
	PolicyBlockAll     ContactPolicy = "block_all"
	PolicyAuto         ContactPolicy = "auto"
)

// Agent is a named participant bound to exactly one project (spec.md §3).
type Agent struct {
	ID              int64
	ProjectID       int64
	Name            string
	Program         string
	Model           string
	TaskDescription string
	ContactPolicy   ContactPolicy
	AdjectiveIndex  int
	NounIndex       int
	LastActiveTS    int64
	LastMessageTS   int64
	RegisteredTS    int64
}

// UpsertAgent inserts a new agent row or overwrites program/model/
// task_description on an existing (project_id, name) pair (spec.md §3,
// §4.2, §8 "register_agent ... leaves a single agent row with
// program=P2").
func (t *Tx) UpsertAgent(projectID int64, name, program, model, taskDescription string, adjIdx, nounIdx int) (*Agent, error) {
	existing, err := t.AgentByName(projectID, name)
	if err == nil {
		_, uerr := t.tx.Exec(`
			UPDATE agents SET program = ?, model = ?, task_description = ?, last_active_ts = ?
			WHERE id = ?`, program, model, taskDescription, t.now, existing.ID)
		if uerr != nil {
			return nil, NewError(ErrInternal, "update agent").withErr(uerr)
		}
		existing.Program, existing.Model, existing.TaskDescription, existing.LastActiveTS = program, model, taskDescription, t.now
		return existing, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	res, err := t.tx.Exec(`
		INSERT INTO agents (project_id, name, program, model, task_description, contact_policy, adjective_index, noun_index, last_active_ts, last_message_ts, registered_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		projectID, name, program, model, taskDescription, string(PolicyOpen), adjIdx, nounIdx, t.now, t.now)
	if err != nil {
		return nil, NewError(ErrInternal, "insert agent").withErr(err)
	}
	id, _ := res.LastInsertId()
	return &Agent{
		ID: id, ProjectID: projectID, Name: name, Program: program, Model: model,
		TaskDescription: taskDescription, ContactPolicy: PolicyOpen,
		AdjectiveIndex: adjIdx, NounIndex: nounIdx, LastActiveTS: t.now, RegisteredTS: t.now,
	}, nil
}

// AgentByName looks up an agent by its (project, name) key.
func (t *Tx) AgentByName(projectID int64, name string) (*Agent, error) {
	return t.scanAgent(`
		SELECT id, project_id, name, program, model, task_description, contact_policy, adjective_index, noun_index, last_active_ts, last_message_ts, registered_ts
		FROM agents WHERE project_id = ? AND name = ?`, projectID, name)
}

// AgentByID looks up an agent by id.
func (t *Tx) AgentByID(id int64) (*Agent, error) {
	return t.scanAgent(`
		SELECT id, project_id, name, program, model, task_description, contact_policy, adjective_index, noun_index, last_active_ts, last_message_ts, registered_ts
		FROM agents WHERE id = ?`, id)
}

func (t *Tx) scanAgent(query string, args ...any) (*Agent, error) {
	var a Agent
	var policy string
	err := t.tx.QueryRow(query, args...).Scan(
		&a.ID, &a.ProjectID, &a.Name, &a.Program, &a.Model, &a.TaskDescription,
		&policy, &a.AdjectiveIndex, &a.NounIndex, &a.LastActiveTS, &a.LastMessageTS, &a.RegisteredTS)
	if err == sql.ErrNoRows {
		return nil, NewError(ErrNotFound, "agent not found")
	}
	if err != nil {
		return nil, NewError(ErrInternal, "query agent").withErr(err)
	}
	a.ContactPolicy = ContactPolicy(policy)
	return &a, nil
}

// AgentsInProject lists every agent registered in a project.
func (t *Tx) AgentsInProject(projectID int64) ([]Agent, error) {
	rows, err := t.tx.Query(`
		SELECT id, project_id, name, program, model, task_description, contact_policy, adjective_index, noun_index, last_active_ts, last_message_ts, registered_ts
		FROM agents WHERE project_id = ? ORDER BY id ASC`, projectID)
	if err != nil {
		return nil, NewError(ErrInternal, "list agents").withErr(err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		var a Agent
		var policy string
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Program, &a.Model, &a.TaskDescription,
			&policy, &a.AdjectiveIndex, &a.NounIndex, &a.LastActiveTS, &a.LastMessageTS, &a.RegisteredTS); err != nil {
			return nil, NewError(ErrInternal, "scan agent").withErr(err)
		}
		a.ContactPolicy = ContactPolicy(policy)
		out = append(out, a)
	}
	return out, rows.Err()
}

// UsedNameIndexes returns the set of (adjective_index, noun_index) pairs
// already allocated within a project, so Identity can pick an unused pair.
func (t *Tx) UsedNameIndexes(projectID int64) (map[[2]int]bool, error) {
	rows, err := t.tx.Query(`SELECT adjective_index, noun_index FROM agents WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, NewError(ErrInternal, "list used names").withErr(err)
	}
	defer rows.Close()

	used := map[[2]int]bool{}
	for rows.Next() {
		var a, n int
		if err := rows.Scan(&a, &n); err != nil {
			return nil, NewError(ErrInternal, "scan used name").withErr(err)
		}
		used[[2]int{a, n}] = true
	}
	return used, rows.Err()
}

// TouchAgent refreshes last_active_ts, and optionally last_message_ts, for
// the agent attributed to the current tool call (spec.md §4.2).
func (t *Tx) TouchAgent(agentID int64, touchMessage bool) error {
	if touchMessage {
		_, err := t.tx.Exec(`UPDATE agents SET last_active_ts = ?, last_message_ts = ? WHERE id = ?`, t.now, t.now, agentID)
		return err
	}
	_, err := t.tx.Exec(`UPDATE agents SET last_active_ts = ? WHERE id = ?`, t.now, agentID)
	return err
}

// SetContactPolicy updates an agent's default contact policy.
func (t *Tx) SetContactPolicy(agentID int64, policy ContactPolicy) error {
	_, err := t.tx.Exec(`UPDATE agents SET contact_policy = ? WHERE id = ?`, string(policy), agentID)
	if err != nil {
		return NewError(ErrInternal, "set contact policy").withErr(err)
	}
	return nil
}

// SetLastActiveTS is a test/operational hook for simulating staleness
// (spec.md §8 scenario 4).
func (t *Tx) SetLastActiveTS(agentID, ts int64) error {
	_, err := t.tx.Exec(`UPDATE agents SET last_active_ts = ? WHERE id = ?`, ts, agentID)
	return err
}
