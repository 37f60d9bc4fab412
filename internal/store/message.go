package store

import "database/sql"

// Importance is the message urgency level (spec.md §3).
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceNormal Importance = "normal"
	ImportanceHigh   Importance = "high"
	ImportanceUrgent Importance = "urgent"
)

// RecipientKind distinguishes To/Cc/Bcc delivery (spec.md §3).
type RecipientKind string

const (
	RecipientTo  RecipientKind = "to"
	RecipientCC  RecipientKind = "cc"
	RecipientBCC RecipientKind = "bcc"
)

// Message is an immutable record once committed (spec.md §3).
type Message struct {
	ID              int64
	ProjectID       int64
	FromAgentID     int64
	Subject         string
	BodyMD          string
	Importance      Importance
	ThreadID        string
	ParentMessageID sql.NullInt64
	AckRequired     bool
	CreatedTS       int64
}

// Recipient is one row of a message's delivery list.
type Recipient struct {
	AgentID int64
	Kind    RecipientKind
}

// InsertMessage inserts the message row. Recipients, reads/acks, and the
// FTS row are inserted by the caller within the same transaction
// (spec.md §4.1: "creating a message plus its recipients plus its FTS rows
// are either all visible or none").
func (t *Tx) InsertMessage(m *Message) (int64, error) {
	var parent any
	if m.ParentMessageID.Valid {
		parent = m.ParentMessageID.Int64
	}
	res, err := t.tx.Exec(`
		INSERT INTO messages (project_id, from_agent_id, subject, body_md, importance, thread_id, parent_message_id, ack_required, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ProjectID, m.FromAgentID, m.Subject, m.BodyMD, string(m.Importance), m.ThreadID, parent, boolToInt(m.AckRequired), t.now)
	if err != nil {
		return 0, NewError(ErrInternal, "insert message").withErr(err)
	}
	return res.LastInsertId()
}

// InsertRecipient records one delivery row.
func (t *Tx) InsertRecipient(messageID, agentID int64, kind RecipientKind) error {
	_, err := t.tx.Exec(`INSERT INTO message_recipients (message_id, agent_id, kind) VALUES (?, ?, ?)`, messageID, agentID, string(kind))
	if err != nil {
		return NewError(ErrInternal, "insert recipient").withErr(err)
	}
	return nil
}

// MessageByID fetches a message by id.
func (t *Tx) MessageByID(id int64) (*Message, error) {
	var m Message
	var importance string
	err := t.tx.QueryRow(`
		SELECT id, project_id, from_agent_id, subject, body_md, importance, thread_id, parent_message_id, ack_required, created_ts
		FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.ProjectID, &m.FromAgentID, &m.Subject, &m.BodyMD, &importance, &m.ThreadID, &m.ParentMessageID, &m.AckRequired, &m.CreatedTS)
	if err == sql.ErrNoRows {
		return nil, NewError(ErrNotFound, "message not found")
	}
	if err != nil {
		return nil, NewError(ErrInternal, "query message").withErr(err)
	}
	m.Importance = Importance(importance)
	return &m, nil
}

// RecipientsOf returns every recipient row for a message.
func (t *Tx) RecipientsOf(messageID int64) ([]Recipient, error) {
	rows, err := t.tx.Query(`SELECT agent_id, kind FROM message_recipients WHERE message_id = ?`, messageID)
	if err != nil {
		return nil, NewError(ErrInternal, "list recipients").withErr(err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var r Recipient
		var kind string
		if err := rows.Scan(&r.AgentID, &kind); err != nil {
			return nil, NewError(ErrInternal, "scan recipient").withErr(err)
		}
		r.Kind = RecipientKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// IsDirectRecipient reports whether agentID is a to/cc/bcc recipient of
// messageID.
func (t *Tx) IsDirectRecipient(messageID, agentID int64) (bool, error) {
	var n int
	err := t.tx.QueryRow(`SELECT COUNT(1) FROM message_recipients WHERE message_id = ? AND agent_id = ?`, messageID, agentID).Scan(&n)
	if err != nil {
		return false, NewError(ErrInternal, "check recipient").withErr(err)
	}
	return n > 0, nil
}

// InboxFilter narrows fetch_inbox results (spec.md §4.3).
type InboxFilter struct {
	SinceTS      int64
	Importance   string // empty = any
	UnreadOnly   bool
	Limit        int
}

// InboxRow is one message as seen from a specific recipient's inbox.
type InboxRow struct {
	Message
	Read bool
	Acked bool
}

// Inbox returns messages addressed to agentID (to/cc, or bcc where
// agentID is the bcc'd party), newest first, tie-broken by id desc
// (spec.md §3 Delivery, §4.3).
func (t *Tx) Inbox(projectID, agentID int64, f InboxFilter) ([]InboxRow, error) {
	query := `
		SELECT m.id, m.project_id, m.from_agent_id, m.subject, m.body_md, m.importance, m.thread_id, m.parent_message_id, m.ack_required, m.created_ts,
			EXISTS(SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.agent_id = ?) AS read,
			EXISTS(SELECT 1 FROM message_acks a WHERE a.message_id = m.id AND a.agent_id = ?) AS acked
		FROM messages m
		JOIN message_recipients mr ON mr.message_id = m.id
		WHERE m.project_id = ? AND mr.agent_id = ?`
	args := []any{agentID, agentID, projectID, agentID}

	if f.SinceTS > 0 {
		query += " AND m.created_ts >= ?"
		args = append(args, f.SinceTS)
	}
	if f.Importance != "" {
		query += " AND m.importance = ?"
		args = append(args, f.Importance)
	}
	if f.UnreadOnly {
		query += " AND NOT EXISTS(SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.agent_id = ?)"
		args = append(args, agentID)
	}
	query += " ORDER BY m.created_ts DESC, m.id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, NewError(ErrInternal, "query inbox").withErr(err)
	}
	defer rows.Close()

	var out []InboxRow
	for rows.Next() {
		var r InboxRow
		var importance string
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.FromAgentID, &r.Subject, &r.BodyMD, &importance, &r.ThreadID,
			&r.ParentMessageID, &r.AckRequired, &r.CreatedTS, &r.Read, &r.Acked); err != nil {
			return nil, NewError(ErrInternal, "scan inbox row").withErr(err)
		}
		r.Importance = Importance(importance)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkRead is idempotent: inserting the same (message, agent) pair twice is
// a no-op (spec.md §4.3, §8).
func (t *Tx) MarkRead(messageID, agentID int64) error {
	_, err := t.tx.Exec(`INSERT OR IGNORE INTO message_reads (message_id, agent_id, read_ts) VALUES (?, ?, ?)`, messageID, agentID, t.now)
	if err != nil {
		return NewError(ErrInternal, "mark read").withErr(err)
	}
	return nil
}

// Acknowledge is idempotent, same contract as MarkRead.
func (t *Tx) Acknowledge(messageID, agentID int64) error {
	_, err := t.tx.Exec(`INSERT OR IGNORE INTO message_acks (message_id, agent_id, acked_ts) VALUES (?, ?, ?)`, messageID, agentID, t.now)
	if err != nil {
		return NewError(ErrInternal, "acknowledge").withErr(err)
	}
	return nil
}

// ThreadMessages returns every message sharing a thread_id, oldest first,
// for summarize_thread.
func (t *Tx) ThreadMessages(projectID int64, threadID string) ([]Message, error) {
	rows, err := t.tx.Query(`
		SELECT id, project_id, from_agent_id, subject, body_md, importance, thread_id, parent_message_id, ack_required, created_ts
		FROM messages WHERE project_id = ? AND thread_id = ? ORDER BY created_ts ASC, id ASC`, projectID, threadID)
	if err != nil {
		return nil, NewError(ErrInternal, "list thread").withErr(err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var importance string
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.FromAgentID, &m.Subject, &m.BodyMD, &importance, &m.ThreadID,
			&m.ParentMessageID, &m.AckRequired, &m.CreatedTS); err != nil {
			return nil, NewError(ErrInternal, "scan thread message").withErr(err)
		}
		m.Importance = Importance(importance)
		out = append(out, m)
	}
	return out, rows.Err()
}

// MessageCount returns the total number of messages, used by the invariant
// check that FTS cardinality tracks the message table (spec.md §3 inv. 6).
func (t *Tx) MessageCount() (int64, error) {
	var n int64
	err := t.tx.QueryRow(`SELECT COUNT(1) FROM messages`).Scan(&n)
	if err != nil {
		return 0, NewError(ErrInternal, "count messages").withErr(err)
	}
	return n, nil
}

// AgentLastReadOrAckTS returns the most recent timestamp at which agentID
// read or acknowledged any message, or 0 if it has never done either.
// Used by the reservation force-release staleness heuristic's signal 4
// (spec.md §4.4).
func (t *Tx) AgentLastReadOrAckTS(agentID int64) (int64, error) {
	var readTS, ackTS int64
	err := t.tx.QueryRow(`SELECT COALESCE(MAX(read_ts), 0) FROM message_reads WHERE agent_id = ?`, agentID).Scan(&readTS)
	if err != nil {
		return 0, NewError(ErrInternal, "query last read").withErr(err)
	}
	err = t.tx.QueryRow(`SELECT COALESCE(MAX(acked_ts), 0) FROM message_acks WHERE agent_id = ?`, agentID).Scan(&ackTS)
	if err != nil {
		return 0, NewError(ErrInternal, "query last ack").withErr(err)
	}
	if ackTS > readTS {
		return ackTS, nil
	}
	return readTS, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
