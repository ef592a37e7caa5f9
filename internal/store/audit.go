package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// RecordExportJob appends an ExportJob row.
func (s *Store) RecordExportJob(ctx context.Context, job ExportJob) (ExportJob, error) {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now().UTC()
	}
	if job.Status == "" {
		job.Status = JobPending
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO export_jobs (post_id, site_id, action, export_status, commit_sha, path, branch, repo_url, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.PostID, job.SiteID, string(job.Action), string(job.Status), job.CommitSHA, job.Path,
		job.Branch, job.RepoURL, job.Message, job.CreatedAt.Unix())
	if err != nil {
		return ExportJob{}, wrapErr(err, "record export job")
	}
	job.ID, err = res.LastInsertId()
	return job, wrapErr(err, "record export job")
}

// ExportJobs returns the jobs of a post, oldest first.
func (s *Store) ExportJobs(ctx context.Context, postID int64) ([]ExportJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, site_id, action, export_status, commit_sha, path, branch, repo_url, message, created_at
		FROM export_jobs WHERE post_id = ? ORDER BY id`, postID)
	if err != nil {
		return nil, wrapErr(err, "list export jobs")
	}
	defer func() { _ = rows.Close() }()

	var out []ExportJob
	for rows.Next() {
		var j ExportJob
		var action, status string
		var created sql.NullInt64
		if err := rows.Scan(&j.ID, &j.PostID, &j.SiteID, &action, &status, &j.CommitSHA, &j.Path,
			&j.Branch, &j.RepoURL, &j.Message, &created); err != nil {
			return nil, wrapErr(err, "scan export job")
		}
		j.Action, j.Status, j.CreatedAt = JobAction(action), JobStatus(status), fromUnix(created)
		out = append(out, j)
	}
	return out, wrapErr(rows.Err(), "list export jobs")
}

// HasSuccessfulJob reports whether the post has at least one successful job for action.
func (s *Store) HasSuccessfulJob(ctx context.Context, postID int64, action JobAction) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM export_jobs WHERE post_id = ? AND action = ? AND export_status = 'success' AND message <> ?`,
		postID, string(action), MessageNoChanges).Scan(&n)
	return n > 0, wrapErr(err, "count export jobs")
}

// RecordAudit appends an ExportAudit row with summary marshaled to JSON.
func (s *Store) RecordAudit(ctx context.Context, runID, action string, siteID int64, summary any) (ExportAudit, error) {
	raw, err := json.Marshal(summary)
	if err != nil {
		return ExportAudit{}, wrapErr(err, "marshal audit summary")
	}
	a := ExportAudit{RunID: runID, Action: action, SiteID: siteID, Summary: raw, CreatedAt: s.now().UTC()}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO export_audits (run_id, action, site_id, summary, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, action, idOrNil(siteID), string(raw), a.CreatedAt.Unix())
	if err != nil {
		return ExportAudit{}, wrapErr(err, "record audit")
	}
	a.ID, err = res.LastInsertId()
	return a, wrapErr(err, "record audit")
}

// Audits returns the audit rows of a run, oldest first.
func (s *Store) Audits(ctx context.Context, runID string) ([]ExportAudit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, action, site_id, summary, created_at FROM export_audits WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, wrapErr(err, "list audits")
	}
	defer func() { _ = rows.Close() }()

	var out []ExportAudit
	for rows.Next() {
		var a ExportAudit
		var site, created sql.NullInt64
		var summary string
		if err := rows.Scan(&a.ID, &a.RunID, &a.Action, &site, &summary, &created); err != nil {
			return nil, wrapErr(err, "scan audit")
		}
		a.SiteID, a.Summary, a.CreatedAt = site.Int64, json.RawMessage(summary), fromUnix(created)
		out = append(out, a)
	}
	return out, wrapErr(rows.Err(), "list audits")
}
