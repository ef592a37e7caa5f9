package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeySite       = "site"
	KeyPostID     = "post_id"
	KeySlug       = "slug"
	KeyPath       = "path"
	KeyCommit     = "commit"
	KeyBranch     = "branch"
	KeyRunID      = "run_id"
	KeyAction     = "action"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Site(slug string) slog.Attr      { return slog.String(KeySite, slug) }
func PostID(id int64) slog.Attr       { return slog.Int64(KeyPostID, id) }
func Slug(s string) slog.Attr         { return slog.String(KeySlug, s) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Commit(sha string) slog.Attr     { return slog.String(KeyCommit, sha) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Action(a string) slog.Attr       { return slog.String(KeyAction, a) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
