package store

import (
	"database/sql"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Project is a named workspace (spec.md §3).
type Project struct {
	ID        int64
	Slug      string
	HumanKey  string
	CreatedTS int64
}

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL-safe slug from an arbitrary human key (typically a
// filesystem path).
func Slugify(humanKey string) string {
	base := path.Base(strings.ToLower(strings.TrimRight(humanKey, "/")))
	if base == "" || base == "." || base == "/" {
		base = "project"
	}
	slug := strings.Trim(slugNonAlnum.ReplaceAllString(base, "-"), "-")
	if slug == "" {
		slug = "project"
	}
	return slug
}

// EnsureProject returns the existing project for humanKey, or creates one.
// Idempotent: calling twice with the same humanKey returns the same row
// (spec.md §8 "ensure_project(human_key=K) called twice returns identical
// {id, slug}").
func (t *Tx) EnsureProject(humanKey string) (*Project, error) {
	p, err := t.ProjectByHumanKey(humanKey)
	if err == nil {
		return p, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	slug := t.uniqueSlug(Slugify(humanKey))
	res, err := t.tx.Exec(`INSERT INTO projects (slug, human_key, created_ts) VALUES (?, ?, ?)`,
		slug, humanKey, t.now)
	if err != nil {
		return nil, NewError(ErrInternal, "insert project").withErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, NewError(ErrInternal, "read project id").withErr(err)
	}
	return &Project{ID: id, Slug: slug, HumanKey: humanKey, CreatedTS: t.now}, nil
}

// uniqueSlug appends a numeric suffix if base collides with an existing
// project created under a different human_key.
func (t *Tx) uniqueSlug(base string) string {
	slug := base
	for i := 2; ; i++ {
		var exists int
		_ = t.tx.QueryRow(`SELECT COUNT(1) FROM projects WHERE slug = ?`, slug).Scan(&exists)
		if exists == 0 {
			return slug
		}
		slug = base + "-" + strconv.Itoa(i)
	}
}

// ProjectByHumanKey looks up a project by its exact human_key.
func (t *Tx) ProjectByHumanKey(humanKey string) (*Project, error) {
	return t.scanProject(`SELECT id, slug, human_key, created_ts FROM projects WHERE human_key = ?`, humanKey)
}

// ProjectBySlug looks up a project by slug.
func (t *Tx) ProjectBySlug(slug string) (*Project, error) {
	return t.scanProject(`SELECT id, slug, human_key, created_ts FROM projects WHERE slug = ?`, slug)
}

// ProjectByID looks up a project by id.
func (t *Tx) ProjectByID(id int64) (*Project, error) {
	return t.scanProject(`SELECT id, slug, human_key, created_ts FROM projects WHERE id = ?`, id)
}

func (t *Tx) scanProject(query string, arg any) (*Project, error) {
	var p Project
	err := t.tx.QueryRow(query, arg).Scan(&p.ID, &p.Slug, &p.HumanKey, &p.CreatedTS)
	if err == sql.ErrNoRows {
		return nil, NewError(ErrNotFound, "project not found")
	}
	if err != nil {
		return nil, NewError(ErrInternal, "query project").withErr(err)
	}
	return &p, nil
}

// AllProjects returns every project, oldest first.
func (t *Tx) AllProjects() ([]Project, error) {
	rows, err := t.tx.Query(`SELECT id, slug, human_key, created_ts FROM projects ORDER BY id ASC`)
	if err != nil {
		return nil, NewError(ErrInternal, "list projects").withErr(err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Slug, &p.HumanKey, &p.CreatedTS); err != nil {
			return nil, NewError(ErrInternal, "scan project").withErr(err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func isNotFound(err error) bool {
	se, ok := err.(*Error)
	return ok && se.Kind == ErrNotFound
}

func (e *Error) withErr(err error) *Error {
	e.Err = err
	return e
}
