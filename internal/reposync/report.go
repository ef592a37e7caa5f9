package reposync

import (
	"encoding/json"
	"os"
	"path/filepath"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

// ReportMeta carries the counts used to sanity check a run.
type ReportMeta struct {
	UniqueRepoFiles int `json:"unique_repo_files"`
	DBRepoPaths     int `json:"db_repo_paths"`
}

// SiteReport is the per-site section of a sync report.
type SiteReport struct {
	Site        string     `json:"site"`
	Source      string     `json:"source"`
	Applied     bool       `json:"applied"`
	GateTripped bool       `json:"gate_tripped"`
	Created     []Item     `json:"created"`
	Updated     []Item     `json:"updated"`
	Unchanged   []Item     `json:"unchanged"`
	Invalid     []Item     `json:"invalid,omitempty"`
	Warnings    []Item     `json:"warnings,omitempty"`
	Error       string     `json:"error,omitempty"`
	Meta        ReportMeta `json:"_meta"`
}

func newSiteReport(plan Plan, source string) SiteReport {
	r := SiteReport{
		Site:      plan.Site.Slug,
		Source:    source,
		Created:   []Item{},
		Updated:   []Item{},
		Unchanged: []Item{},
		Meta:      ReportMeta{UniqueRepoFiles: len(plan.Items), DBRepoPaths: plan.DBRepoPaths},
	}
	for _, it := range plan.Items {
		switch it.Action {
		case ActionCreate:
			r.Created = append(r.Created, it)
		case ActionUpdate:
			r.Updated = append(r.Updated, it)
		case ActionUnchanged:
			r.Unchanged = append(r.Unchanged, it)
		case ActionInvalid:
			r.Invalid = append(r.Invalid, it)
		}
		if len(it.Warnings) > 0 {
			r.Warnings = append(r.Warnings, it)
		}
	}
	return r
}

// Report is the file written at the end of a run.
type Report struct {
	RunID   string                `json:"run_id"`
	Apply   bool                  `json:"apply"`
	LogPath string                `json:"log_path,omitempty"`
	Sites   map[string]SiteReport `json:"sites"`
	Deleted *DeleteSummary        `json:"deleted,omitempty"`
}

// ReportFileName is the name of the report of run id.
func ReportFileName(runID string) string {
	return "sync-report-" + runID + ".json"
}

func writeJSON(p string, v any) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return foundationerrors.FileSystemError("cannot create report directory").WithCause(err).WithContext("path", p).Build()
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return foundationerrors.InternalError("cannot encode report").WithCause(err).Build()
	}
	if err := os.WriteFile(p, append(data, '\n'), 0o600); err != nil {
		return foundationerrors.FileSystemError("cannot write report").WithCause(err).WithContext("path", p).Build()
	}
	return nil
}
