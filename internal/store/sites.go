package store

import (
	"context"
	"database/sql"
)

const siteColumns = `id, slug, name, repo_owner, repo_name, default_branch, repo_path, posts_dir, media_dir, base_url, domain, created_at`

func scanSite(row interface{ Scan(...any) error }) (Site, error) {
	var s Site
	var created sql.NullInt64
	err := row.Scan(&s.ID, &s.Slug, &s.Name, &s.RepoOwner, &s.RepoName, &s.DefaultBranch,
		&s.RepoPath, &s.PostsDir, &s.MediaDir, &s.BaseURL, &s.Domain, &created)
	s.CreatedAt = fromUnix(created)
	return s, err
}

// UpsertSite inserts a site or updates the existing row with the same slug.
func (s *Store) UpsertSite(ctx context.Context, site Site) (Site, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sites (slug, name, repo_owner, repo_name, default_branch, repo_path, posts_dir, media_dir, base_url, domain, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			repo_owner = excluded.repo_owner,
			repo_name = excluded.repo_name,
			default_branch = excluded.default_branch,
			repo_path = excluded.repo_path,
			posts_dir = excluded.posts_dir,
			media_dir = excluded.media_dir,
			base_url = excluded.base_url,
			domain = excluded.domain`,
		site.Slug, site.Name, site.RepoOwner, site.RepoName, site.DefaultBranch, site.RepoPath,
		site.PostsDir, site.MediaDir, site.BaseURL, site.Domain, s.now().Unix())
	if err != nil {
		return Site{}, wrapErr(err, "upsert site")
	}
	return s.SiteBySlug(ctx, site.Slug)
}

// SiteBySlug returns the site with the given slug.
func (s *Store) SiteBySlug(ctx context.Context, slug string) (Site, error) {
	site, err := scanSite(s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE slug = ?`, slug))
	if err == sql.ErrNoRows {
		return Site{}, notFound("site", slug)
	}
	return site, wrapErr(err, "load site")
}

// SiteByID returns the site with the given id.
func (s *Store) SiteByID(ctx context.Context, id int64) (Site, error) {
	site, err := scanSite(s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Site{}, notFound("site", id)
	}
	return site, wrapErr(err, "load site")
}

// ListSites returns all sites ordered by slug.
func (s *Store) ListSites(ctx context.Context) ([]Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY slug`)
	if err != nil {
		return nil, wrapErr(err, "list sites")
	}
	defer func() { _ = rows.Close() }()

	var out []Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, wrapErr(err, "scan site")
		}
		out = append(out, site)
	}
	return out, wrapErr(rows.Err(), "list sites")
}
