package store

import "database/sql"

// SearchFilter narrows both the legacy and lexical search engines to the
// same structured predicate set before either ranks by text relevance
// (spec.md §4.8: "filters are AND-combined").
type SearchFilter struct {
	ProjectID   int64
	Sender      sql.NullInt64
	ThreadID    string
	Importances []string // empty = any
	DateStart   int64    // 0 = unbounded
	DateEnd     int64    // 0 = unbounded
	Limit       int
}

func (f SearchFilter) whereClause() (string, []any) {
	clause := "WHERE project_id = ?"
	args := []any{f.ProjectID}
	if f.Sender.Valid {
		clause += " AND from_agent_id = ?"
		args = append(args, f.Sender.Int64)
	}
	if f.ThreadID != "" {
		clause += " AND thread_id = ?"
		args = append(args, f.ThreadID)
	}
	if len(f.Importances) > 0 {
		placeholders, importanceArgs := inClauseStrings(f.Importances)
		clause += " AND importance IN (" + placeholders + ")"
		args = append(args, importanceArgs...)
	}
	if f.DateStart > 0 {
		clause += " AND created_ts >= ?"
		args = append(args, f.DateStart)
	}
	if f.DateEnd > 0 {
		clause += " AND created_ts <= ?"
		args = append(args, f.DateEnd)
	}
	return clause, args
}

// SearchCandidateIDs returns every message id matching the structured
// filter, newest first, with no text-relevance ranking applied. The
// lexical engine narrows an FTS MATCH to this set (internal/search); the
// legacy engine filters and ranks in one pass via LegacySearch instead.
func (t *Tx) SearchCandidateIDs(f SearchFilter) ([]int64, error) {
	clause, args := f.whereClause()
	rows, err := t.tx.Query(`SELECT id FROM messages `+clause+` ORDER BY created_ts DESC, id DESC`, args...)
	if err != nil {
		return nil, NewError(ErrInternal, "query search candidates").withErr(err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, NewError(ErrInternal, "scan search candidate").withErr(err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// LegacyHit is one legacy-engine search result. Score is always 1 since
// the legacy engine has no relevance model beyond substring matching
// (spec.md §4.8: "a legacy engine (simple LIKE-and-filter)").
type LegacyHit struct {
	MessageID int64
	Score     float64
}

// LegacySearch runs a plain substring search over subject and body,
// AND-combined with the structured filter, ordered by recency.
func (t *Tx) LegacySearch(f SearchFilter, query string) ([]LegacyHit, error) {
	clause, args := f.whereClause()
	if query != "" {
		clause += " AND (subject LIKE ? ESCAPE '\\' OR body_md LIKE ? ESCAPE '\\')"
		pattern := "%" + likeEscape(query) + "%"
		args = append(args, pattern, pattern)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := t.tx.Query(`
		SELECT id FROM messages `+clause+`
		ORDER BY created_ts DESC, id DESC
		LIMIT ?`, append(args, limit)...)
	if err != nil {
		return nil, NewError(ErrInternal, "legacy search").withErr(err)
	}
	defer rows.Close()

	var out []LegacyHit
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, NewError(ErrInternal, "scan legacy hit").withErr(err)
		}
		out = append(out, LegacyHit{MessageID: id, Score: 1})
	}
	return out, rows.Err()
}

func likeEscape(s string) string {
	r := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' || c == '_' || c == '\\' {
			r = append(r, '\\')
		}
		r = append(r, c)
	}
	return string(r)
}
