package store

import (
	"context"
	"database/sql"
)

// CategoryKey identifies a category within a site.
type CategoryKey struct {
	Cluster    string
	Subcluster string
}

// EnsureAuthor returns the author with slug on site, creating it when missing.
func (s *Store) EnsureAuthor(ctx context.Context, siteID int64, name, slug string) (Author, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO authors (site_id, name, slug) VALUES (?, ?, ?) ON CONFLICT (site_id, slug) DO NOTHING`,
		siteID, name, slug)
	if err != nil {
		return Author{}, wrapErr(err, "ensure author")
	}
	var a Author
	err = s.db.QueryRowContext(ctx, `SELECT id, site_id, name, slug FROM authors WHERE site_id = ? AND slug = ?`, siteID, slug).
		Scan(&a.ID, &a.SiteID, &a.Name, &a.Slug)
	return a, wrapErr(err, "load author")
}

// FindAuthor looks an author up by slug or case-insensitive name.
func (s *Store) FindAuthor(ctx context.Context, siteID int64, nameOrSlug string) (Author, error) {
	var a Author
	err := s.db.QueryRowContext(ctx, `
		SELECT id, site_id, name, slug FROM authors
		WHERE site_id = ? AND (slug = ? OR lower(name) = lower(?))
		ORDER BY id LIMIT 1`, siteID, nameOrSlug, nameOrSlug).
		Scan(&a.ID, &a.SiteID, &a.Name, &a.Slug)
	if err == sql.ErrNoRows {
		return Author{}, notFound("author", nameOrSlug)
	}
	return a, wrapErr(err, "find author")
}

func ensureCategoryTx(ctx context.Context, tx *sql.Tx, siteID int64, key CategoryKey) (Category, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO categories (site_id, cluster_slug, subcluster_slug, name) VALUES (?, ?, ?, ?)
		ON CONFLICT (site_id, cluster_slug, subcluster_slug) DO NOTHING`,
		siteID, key.Cluster, key.Subcluster, CategoryName(key.Cluster, key.Subcluster))
	if err != nil {
		return Category{}, wrapErr(err, "ensure category")
	}
	var c Category
	err = tx.QueryRowContext(ctx, `
		SELECT id, site_id, cluster_slug, subcluster_slug, name FROM categories
		WHERE site_id = ? AND cluster_slug = ? AND subcluster_slug = ?`, siteID, key.Cluster, key.Subcluster).
		Scan(&c.ID, &c.SiteID, &c.ClusterSlug, &c.SubclusterSlug, &c.Name)
	return c, wrapErr(err, "load category")
}

// EnsureCategory returns the (cluster, subcluster) category on site, creating it when missing.
func (s *Store) EnsureCategory(ctx context.Context, siteID int64, key CategoryKey) (Category, error) {
	var c Category
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, err = ensureCategoryTx(ctx, tx, siteID, key)
		return err
	})
	return c, err
}

// SetPostCategories replaces the categories of a post, creating missing categories.
func (s *Store) SetPostCategories(ctx context.Context, siteID, postID int64, keys []CategoryKey) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM post_categories WHERE post_id = ?`, postID); err != nil {
			return wrapErr(err, "clear post categories")
		}
		for _, k := range keys {
			c, err := ensureCategoryTx(ctx, tx, siteID, k)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO post_categories (post_id, category_id) VALUES (?, ?)`, postID, c.ID); err != nil {
				return wrapErr(err, "link post category")
			}
		}
		return nil
	})
}

// PostCategories returns the categories linked to a post.
func (s *Store) PostCategories(ctx context.Context, postID int64) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.site_id, c.cluster_slug, c.subcluster_slug, c.name
		FROM categories c JOIN post_categories pc ON pc.category_id = c.id
		WHERE pc.post_id = ? ORDER BY c.cluster_slug, c.subcluster_slug`, postID)
	if err != nil {
		return nil, wrapErr(err, "list post categories")
	}
	defer func() { _ = rows.Close() }()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.SiteID, &c.ClusterSlug, &c.SubclusterSlug, &c.Name); err != nil {
			return nil, wrapErr(err, "scan category")
		}
		out = append(out, c)
	}
	return out, wrapErr(rows.Err(), "list post categories")
}
