package store

import (
	"encoding/json"
	"strings"
	"time"
)

// Site is one blog with its repository coordinates.
type Site struct {
	ID            int64
	Slug          string
	Name          string
	RepoOwner     string
	RepoName      string
	DefaultBranch string
	RepoPath      string
	PostsDir      string
	MediaDir      string
	BaseURL       string
	Domain        string
	CreatedAt     time.Time
}

// HasRemote reports whether the forge coordinates are configured.
func (s Site) HasRemote() bool {
	return s.RepoOwner != "" && s.RepoName != ""
}

// Author writes posts on one site.
type Author struct {
	ID     int64
	SiteID int64
	Name   string
	Slug   string
}

// Category is a (cluster, subcluster) pair owned by a site. SubclusterSlug is
// empty when the category is cluster-only.
type Category struct {
	ID             int64
	SiteID         int64
	ClusterSlug    string
	SubclusterSlug string
	Name           string
}

// CategoryName derives the display name from the slugs: "django-orm / basics" -> "Django Orm / Basics".
func CategoryName(cluster, subcluster string) string {
	title := func(s string) string {
		words := strings.Split(s, "-")
		for i, w := range words {
			if w != "" {
				words[i] = strings.ToUpper(w[:1]) + w[1:]
			}
		}
		return strings.Join(words, " ")
	}
	if subcluster == "" {
		return title(cluster)
	}
	return title(cluster) + " / " + title(subcluster)
}

// Status is the editorial workflow state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusReview    Status = "review"
	StatusPublished Status = "published"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusReview, StatusPublished:
		return true
	}
	return false
}

// Post is an editorial record plus its export bookkeeping.
type Post struct {
	ID           int64
	SiteID       int64
	AuthorID     int64
	Title        string
	Slug         string
	Content      string
	Description  string
	CanonicalURL string
	Status       Status
	PublishedAt  time.Time
	SlugLocked   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time

	ExportedHash      string
	ExportedAt        time.Time
	LastExportPath    string
	LastCommitSHA     string
	LastPublishedHash string
	RepoFilename      string
	RepoPath          string
	ExportStatus      string
}

// IsPublished reports whether the post is in the published state.
func (p Post) IsPublished() bool { return p.Status == StatusPublished }

// JobAction names what an ExportJob recorded.
type JobAction string

const (
	ActionPublish         JobAction = "publish"
	ActionExport          JobAction = "export"
	ActionRefresh         JobAction = "refresh"
	ActionDeleteDBOnly    JobAction = "delete_db_only"
	ActionDeleteRepoAndDB JobAction = "delete_repo_and_db"
)

// JobStatus is the outcome recorded on an ExportJob.
type JobStatus string

const (
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
	JobPending JobStatus = "pending"
)

// MessageNoChanges marks a publish that found nothing to push.
const MessageNoChanges = "no_changes"

// ExportJob is one append-only export attempt.
type ExportJob struct {
	ID        int64
	PostID    int64
	SiteID    int64
	Action    JobAction
	Status    JobStatus
	CommitSHA string
	Path      string
	Branch    string
	RepoURL   string
	Message   string
	CreatedAt time.Time
}

// ExportAudit is one append-only record of a sync or delete run.
type ExportAudit struct {
	ID        int64
	RunID     string
	Action    string
	SiteID    int64
	Summary   json.RawMessage
	CreatedAt time.Time
}
