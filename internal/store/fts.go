package store

// IndexMessage writes the FTS shadow row for a just-committed message,
// kept in the same write transaction as the parent insert so the index
// never drifts from the message table (spec.md §4.1, §9).
func (t *Tx) IndexMessage(messageID int64, subject, bodyMD, fromAgentName, recipientNames string) error {
	_, err := t.tx.Exec(`
		INSERT INTO messages_fts (rowid, subject, body_md, from_agent_name, recipient_agent_names)
		VALUES (?, ?, ?, ?, ?)`, messageID, subject, bodyMD, fromAgentName, recipientNames)
	if err != nil {
		return NewError(ErrInternal, "index message").withErr(err)
	}
	return nil
}

// FTSRow is one lexical search hit.
type FTSRow struct {
	MessageID int64
	Score     float64
}

// LexicalSearch runs an FTS5 MATCH query scoped to a set of message ids
// already filtered by project/sender/thread/importance/date (the lexical
// engine only ranks; it never performs the structured filtering, which is
// done with plain SQL predicates upstream in internal/search). An empty
// query is filter-only (mirrors LegacySearch's `if query != ""` guard):
// FTS5 raises a syntax error on an empty MATCH expression, so this
// short-circuits to the candidate set itself, already ordered newest
// first by SearchCandidateIDs, each scored 0 since no text ranking applies.
func (t *Tx) LexicalSearch(query string, candidateIDs []int64, limit int) ([]FTSRow, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}
	if query == "" {
		if limit > 0 && limit < len(candidateIDs) {
			candidateIDs = candidateIDs[:limit]
		}
		out := make([]FTSRow, len(candidateIDs))
		for i, id := range candidateIDs {
			out[i] = FTSRow{MessageID: id, Score: 0}
		}
		return out, nil
	}
	placeholders, args := inClause(candidateIDs)
	args = append([]any{query}, args...)
	args = append(args, limit)

	sqlq := `
		SELECT rowid, bm25(messages_fts) AS score
		FROM messages_fts
		WHERE messages_fts MATCH ? AND rowid IN (` + placeholders + `)
		ORDER BY score ASC
		LIMIT ?`
	rows, err := t.tx.Query(sqlq, args...)
	if err != nil {
		return nil, NewError(ErrInternal, "lexical search").withErr(err)
	}
	defer rows.Close()

	var out []FTSRow
	for rows.Next() {
		var r FTSRow
		if err := rows.Scan(&r.MessageID, &r.Score); err != nil {
			return nil, NewError(ErrInternal, "scan lexical hit").withErr(err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FTSCount returns the number of indexed rows, for the invariant check
// against MessageCount (spec.md §3 inv. 6).
func (t *Tx) FTSCount() (int64, error) {
	var n int64
	err := t.tx.QueryRow(`SELECT COUNT(1) FROM messages_fts`).Scan(&n)
	if err != nil {
		return 0, NewError(ErrInternal, "count fts rows").withErr(err)
	}
	return n, nil
}

// LogShadowComparison appends a shadow-mode comparison record (spec.md §9).
func (t *Tx) LogShadowComparison(projectID int64, query string, schemaVersion int, record string) error {
	_, err := t.tx.Exec(`
		INSERT INTO shadow_search_log (project_id, query, schema_version, record, created_ts)
		VALUES (?, ?, ?, ?, ?)`, projectID, query, schemaVersion, record, t.now)
	if err != nil {
		return NewError(ErrInternal, "log shadow comparison").withErr(err)
	}
	return nil
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	b := make([]byte, 0, len(ids)*2)
	for i, id := range ids {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
		args[i] = id
	}
	return string(b), args
}
