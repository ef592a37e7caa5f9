// Package reposync reconciles a site's repository with the database.
//
// A run scans every Markdown file under the site's posts directory, plans one
// action per file (create, update or unchanged) by matching it against
// existing posts on repo_path, then exported_hash, then slug, and writes a
// JSON report. With Apply set and no slug or taxonomy warnings the plan is
// written to the database. A run can also delete posts, archiving their files in the
// working copy first.
package reposync
