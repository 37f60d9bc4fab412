package store

import "database/sql"

// Product aggregates one or more projects for cross-project queries
// (spec.md §3, §4.7).
type Product struct {
	ID         int64
	ProductKey string
	Name       string
	CreatedTS  int64
}

// EnsureProduct upserts by product_key: if name is supplied it overwrites
// the stored name, matching the teacher's group.Manager roster upsert
// idiom applied to a durable row instead of an in-memory map entry.
func (t *Tx) EnsureProduct(productKey, name string) (*Product, error) {
	var p Product
	err := t.tx.QueryRow(`SELECT id, product_key, name, created_ts FROM products WHERE product_key = ?`, productKey).
		Scan(&p.ID, &p.ProductKey, &p.Name, &p.CreatedTS)
	switch {
	case err == sql.ErrNoRows:
		if name == "" {
			name = productKey
		}
		res, ierr := t.tx.Exec(`INSERT INTO products (product_key, name, created_ts) VALUES (?, ?, ?)`, productKey, name, t.now)
		if ierr != nil {
			return nil, NewError(ErrInternal, "insert product").withErr(ierr)
		}
		id, _ := res.LastInsertId()
		return &Product{ID: id, ProductKey: productKey, Name: name, CreatedTS: t.now}, nil
	case err != nil:
		return nil, NewError(ErrInternal, "query product").withErr(err)
	}
	if name != "" && name != p.Name {
		if _, err := t.tx.Exec(`UPDATE products SET name = ? WHERE id = ?`, name, p.ID); err != nil {
			return nil, NewError(ErrInternal, "update product name").withErr(err)
		}
		p.Name = name
	}
	return &p, nil
}

// LinkProductProject idempotently links a product to a project.
func (t *Tx) LinkProductProject(productID, projectID int64) error {
	_, err := t.tx.Exec(`INSERT OR IGNORE INTO product_projects (product_id, project_id) VALUES (?, ?)`, productID, projectID)
	if err != nil {
		return NewError(ErrInternal, "link product project").withErr(err)
	}
	return nil
}

// ProjectsForProduct returns every project currently linked to a product.
func (t *Tx) ProjectsForProduct(productID int64) ([]Project, error) {
	rows, err := t.tx.Query(`
		SELECT p.id, p.slug, p.human_key, p.created_ts
		FROM projects p
		JOIN product_projects pp ON pp.project_id = p.id
		WHERE pp.product_id = ?
		ORDER BY p.id ASC`, productID)
	if err != nil {
		return nil, NewError(ErrInternal, "list product projects").withErr(err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Slug, &p.HumanKey, &p.CreatedTS); err != nil {
			return nil, NewError(ErrInternal, "scan product project").withErr(err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ProductByKey looks up a product by its key.
func (t *Tx) ProductByKey(productKey string) (*Product, error) {
	var p Product
	err := t.tx.QueryRow(`SELECT id, product_key, name, created_ts FROM products WHERE product_key = ?`, productKey).
		Scan(&p.ID, &p.ProductKey, &p.Name, &p.CreatedTS)
	if err == sql.ErrNoRows {
		return nil, NewError(ErrNotFound, "product not found")
	}
	if err != nil {
		return nil, NewError(ErrInternal, "query product").withErr(err)
	}
	return &p, nil
}
