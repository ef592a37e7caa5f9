package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

const postColumns = `id, site_id, author_id, title, slug, content, description, canonical_url, status,
	published_at, slug_locked, created_at, updated_at, exported_hash, exported_at, last_export_path,
	last_commit_sha, last_published_hash, repo_filename, repo_path, export_status`

func scanPost(row interface{ Scan(...any) error }) (Post, error) {
	var p Post
	var author, published, created, updated, exported sql.NullInt64
	var status string
	err := row.Scan(&p.ID, &p.SiteID, &author, &p.Title, &p.Slug, &p.Content, &p.Description, &p.CanonicalURL, &status,
		&published, &p.SlugLocked, &created, &updated, &p.ExportedHash, &exported, &p.LastExportPath,
		&p.LastCommitSHA, &p.LastPublishedHash, &p.RepoFilename, &p.RepoPath, &p.ExportStatus)
	p.AuthorID = author.Int64
	p.Status = Status(status)
	p.PublishedAt = fromUnix(published)
	p.CreatedAt = fromUnix(created)
	p.UpdatedAt = fromUnix(updated)
	p.ExportedAt = fromUnix(exported)
	return p, err
}

func (s *Store) queryPosts(ctx context.Context, where string, args ...any) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts `+where, args...)
	if err != nil {
		return nil, wrapErr(err, "query posts")
	}
	defer func() { _ = rows.Close() }()

	var out []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, wrapErr(err, "scan post")
		}
		out = append(out, p)
	}
	return out, wrapErr(rows.Err(), "query posts")
}

func (s *Store) queryPost(ctx context.Context, key any, where string, args ...any) (Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts `+where, args...))
	if err == sql.ErrNoRows {
		return Post{}, notFound("post", key)
	}
	return p, wrapErr(err, "load post")
}

// CreatePost inserts p and sets its ID and timestamps.
func (s *Store) CreatePost(ctx context.Context, p *Post) error {
	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = StatusDraft
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (site_id, author_id, title, slug, content, description, canonical_url, status,
			published_at, slug_locked, created_at, updated_at, exported_hash, exported_at, last_export_path,
			last_commit_sha, last_published_hash, repo_filename, repo_path, export_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SiteID, idOrNil(p.AuthorID), p.Title, p.Slug, p.Content, p.Description, p.CanonicalURL, string(p.Status),
		unixOrNil(p.PublishedAt), p.SlugLocked, p.CreatedAt.Unix(), p.UpdatedAt.Unix(), p.ExportedHash,
		unixOrNil(p.ExportedAt), p.LastExportPath, p.LastCommitSHA, p.LastPublishedHash, p.RepoFilename,
		p.RepoPath, p.ExportStatus)
	if err != nil {
		return wrapErr(err, "create post")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapErr(err, "create post")
	}
	p.ID = id
	return nil
}

// SavePost writes the editorial fields of p. Export bookkeeping columns are
// left untouched; they are owned by the Update*Metadata methods.
func (s *Store) SavePost(ctx context.Context, p *Post) error {
	p.UpdatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET author_id = ?, title = ?, slug = ?, content = ?, description = ?, canonical_url = ?,
			status = ?, published_at = ?, slug_locked = ?, updated_at = ?
		WHERE id = ?`,
		idOrNil(p.AuthorID), p.Title, p.Slug, p.Content, p.Description, p.CanonicalURL,
		string(p.Status), unixOrNil(p.PublishedAt), p.SlugLocked, p.UpdatedAt.Unix(), p.ID)
	if err != nil {
		return wrapErr(err, "save post")
	}
	return expectOne(res, "post", p.ID)
}

// GetPost returns the post with id.
func (s *Store) GetPost(ctx context.Context, id int64) (Post, error) {
	return s.queryPost(ctx, id, `WHERE id = ?`, id)
}

// PostBySlug returns the post with slug on site.
func (s *Store) PostBySlug(ctx context.Context, siteID int64, slug string) (Post, error) {
	return s.queryPost(ctx, slug, `WHERE site_id = ? AND slug = ?`, siteID, slug)
}

// PostsBySlug returns every post with slug across all sites.
func (s *Store) PostsBySlug(ctx context.Context, slug string) ([]Post, error) {
	return s.queryPosts(ctx, `WHERE slug = ? ORDER BY site_id`, slug)
}

// PostByRepoPath matches a repository-relative path against repo_path, then last_export_path.
func (s *Store) PostByRepoPath(ctx context.Context, siteID int64, relPath string) (Post, error) {
	return s.queryPost(ctx, relPath, `
		WHERE site_id = ? AND (repo_path = ? OR last_export_path = ?)
		ORDER BY CASE WHEN repo_path = ? THEN 0 ELSE 1 END, id LIMIT 1`,
		siteID, relPath, relPath, relPath)
}

// PostByExportedHash returns the oldest post on site with the given exported hash.
func (s *Store) PostByExportedHash(ctx context.Context, siteID int64, hash string) (Post, error) {
	if hash == "" {
		return Post{}, notFound("post with hash", hash)
	}
	return s.queryPost(ctx, hash, `WHERE site_id = ? AND exported_hash = ? ORDER BY id LIMIT 1`, siteID, hash)
}

// PostByTitle returns the oldest post on site whose title matches case-insensitively.
func (s *Store) PostByTitle(ctx context.Context, siteID int64, title string) (Post, error) {
	if strings.TrimSpace(title) == "" {
		return Post{}, notFound("post titled", title)
	}
	return s.queryPost(ctx, title, `WHERE site_id = ? AND lower(title) = lower(?) ORDER BY id LIMIT 1`, siteID, title)
}

// PostFilter narrows ListPosts. Zero fields do not filter.
type PostFilter struct {
	SiteID int64
	Status Status
	IDs    []int64
}

// ListPosts returns posts matching f ordered by id.
func (s *Store) ListPosts(ctx context.Context, f PostFilter) ([]Post, error) {
	var conds []string
	var args []any
	if f.SiteID != 0 {
		conds = append(conds, "site_id = ?")
		args = append(args, f.SiteID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if len(f.IDs) > 0 {
		conds = append(conds, "id IN (?"+strings.Repeat(", ?", len(f.IDs)-1)+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	return s.queryPosts(ctx, where+" ORDER BY id", args...)
}

// RepoPaths returns the non-empty repo_path values recorded for site.
func (s *Store) RepoPaths(ctx context.Context, siteID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT repo_path FROM posts WHERE site_id = ? AND repo_path <> '' ORDER BY repo_path`, siteID)
	if err != nil {
		return nil, wrapErr(err, "list repo paths")
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, wrapErr(err, "scan repo path")
		}
		out = append(out, p)
	}
	return out, wrapErr(rows.Err(), "list repo paths")
}

// DeletePost removes the post row; its category links cascade.
func (s *Store) DeletePost(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return wrapErr(err, "delete post")
	}
	return expectOne(res, "post", id)
}

// ExportMetadata is written after a successful exporter push.
type ExportMetadata struct {
	ExportedHash   string
	ExportedAt     time.Time
	LastExportPath string
	RepoFilename   string
	LastCommitSHA  string
	ExportStatus   string
}

// UpdateExportMetadata records a completed export in a single UPDATE.
func (s *Store) UpdateExportMetadata(ctx context.Context, id int64, m ExportMetadata) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET exported_hash = ?, exported_at = ?, last_export_path = ?, repo_filename = ?,
			repo_path = ?, last_commit_sha = ?, export_status = ?
		WHERE id = ?`,
		m.ExportedHash, unixOrNil(m.ExportedAt), m.LastExportPath, m.RepoFilename,
		m.LastExportPath, m.LastCommitSHA, m.ExportStatus, id)
	if err != nil {
		return wrapErr(err, "update export metadata")
	}
	return expectOne(res, "post", id)
}

// SetExportStatus records the outcome of an export attempt without touching hashes.
func (s *Store) SetExportStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE posts SET export_status = ? WHERE id = ?`, status, id)
	return wrapErr(err, "set export status")
}

// PublishMetadata is written after a successful forge upsert.
type PublishMetadata struct {
	LastPublishedHash string
	LastCommitSHA     string
	RepoFilename      string
	ExportedAt        time.Time
	// CanonicalURL is only written when the post has none.
	CanonicalURL string
}

// UpdatePublishMetadata records a completed publish in a single UPDATE.
func (s *Store) UpdatePublishMetadata(ctx context.Context, id int64, m PublishMetadata) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET last_published_hash = ?, last_commit_sha = ?, repo_filename = ?, exported_at = ?,
			export_status = 'success',
			canonical_url = CASE WHEN canonical_url = '' THEN ? ELSE canonical_url END
		WHERE id = ?`,
		m.LastPublishedHash, m.LastCommitSHA, m.RepoFilename, unixOrNil(m.ExportedAt), m.CanonicalURL, id)
	if err != nil {
		return wrapErr(err, "update publish metadata")
	}
	return expectOne(res, "post", id)
}

// SetLastPublishedHash overwrites last_published_hash only.
func (s *Store) SetLastPublishedHash(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET last_published_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return wrapErr(err, "set last published hash")
	}
	return expectOne(res, "post", id)
}

// SyncedContent is written when a repository file updates an existing post.
type SyncedContent struct {
	Content       string
	ExportedHash  string
	RepoPath      string
	LastCommitSHA string
	ExportedAt    time.Time
}

// UpdateSyncedContent applies a repository-side change in a single UPDATE.
func (s *Store) UpdateSyncedContent(ctx context.Context, id int64, c SyncedContent) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET content = ?, exported_hash = ?, exported_at = ?, repo_path = ?, repo_filename = ?,
			last_export_path = ?, last_commit_sha = ?, updated_at = ?
		WHERE id = ?`,
		c.Content, c.ExportedHash, unixOrNil(c.ExportedAt), c.RepoPath, c.RepoPath, c.RepoPath,
		c.LastCommitSHA, s.now().UTC().Unix(), id)
	if err != nil {
		return wrapErr(err, "update synced content")
	}
	return expectOne(res, "post", id)
}

// UpdateRepoAssociation relinks a post to its repository file without touching content.
func (s *Store) UpdateRepoAssociation(ctx context.Context, id int64, relPath, commitSHA string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET repo_path = ?, last_export_path = ?, last_commit_sha = CASE WHEN ? = '' THEN last_commit_sha ELSE ? END
		WHERE id = ?`, relPath, relPath, commitSHA, commitSHA, id)
	if err != nil {
		return wrapErr(err, "update repo association")
	}
	return expectOne(res, "post", id)
}

func expectOne(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(err, "rows affected")
	}
	if n == 0 {
		return notFound(what, id)
	}
	return nil
}
