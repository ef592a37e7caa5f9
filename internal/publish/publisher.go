// Package publish pushes posts to the remote host through its contents API,
// checks published files for drift, and deletes posts.
//
// Publishing is idempotent: the SHA-256 of the canonical render is compared
// with last_published_hash and an unchanged post is not sent again.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"git.home.luguber.info/inful/blogsync/internal/config"
	"git.home.luguber.info/inful/blogsync/internal/forge"
	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/logfields"
	"git.home.luguber.info/inful/blogsync/internal/metrics"
	"git.home.luguber.info/inful/blogsync/internal/render"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

var (
	ErrSiteNotConfigured = errors.New("site has no remote repository configured")
	ErrNotPublished      = errors.New("post is not published")
)

// Remote is the part of the host API the publisher uses.
type Remote interface {
	UpsertFile(ctx context.Context, repo forge.Repo, p, content, message string) (forge.UpsertResult, error)
	GetFile(ctx context.Context, repo forge.Repo, p string) (forge.File, error)
	DeleteFile(ctx context.Context, repo forge.Repo, p, message string) (forge.DeleteResult, error)
}

// Publisher implements publish, refresh and delete.
type Publisher struct {
	store    *store.Store
	remote   Remote
	cfg      *config.Config
	renderer render.Renderable
	recorder metrics.Recorder
	now      func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithRenderer replaces the default renderer.
func WithRenderer(r render.Renderable) Option { return func(p *Publisher) { p.renderer = r } }

// WithRecorder reports publish durations.
func WithRecorder(r metrics.Recorder) Option { return func(p *Publisher) { p.recorder = r } }

// WithClock sets the clock used for exported_at.
func WithClock(now func() time.Time) Option { return func(p *Publisher) { p.now = now } }

// New returns a Publisher.
func New(st *store.Store, remote Remote, cfg *config.Config, opts ...Option) *Publisher {
	p := &Publisher{
		store:    st,
		remote:   remote,
		cfg:      cfg,
		renderer: render.New(),
		recorder: metrics.NoopRecorder{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Result describes one Publish call. CommitSHA is empty when nothing was sent.
type Result struct {
	PostID    int64
	Path      string
	Hash      string
	CommitSHA string
	HTMLURL   string
	NoChanges bool
}

// Publish renders the post and upserts it on the remote unless its published
// hash is unchanged. Every call appends an ExportJob.
func (p *Publisher) Publish(ctx context.Context, postID int64) (Result, error) {
	start := time.Now()
	res := Result{PostID: postID}
	post, site, err := p.load(ctx, postID)
	if err != nil {
		return res, err
	}
	log := slog.With(logfields.Site(site.Slug), logfields.PostID(post.ID))

	res, err = p.publish(ctx, site, post)
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailed
		log.Error("Publish failed", logfields.Error(err))
		if serr := p.store.SetExportStatus(ctx, post.ID, string(store.JobFailed)); serr != nil {
			log.Warn("Failed to record export status", logfields.Error(serr))
		}
		p.recordJob(ctx, site, post, store.ActionPublish, store.JobFailed, res.Path, "", err.Error())
	case res.NoChanges:
		outcome = metrics.OutcomeNoChanges
		log.Info("Publish skipped, no changes", logfields.Path(res.Path))
	default:
		log.Info("Published post", logfields.Path(res.Path), logfields.Commit(res.CommitSHA))
	}
	p.recorder.ObservePublishDuration(site.Slug, time.Since(start), outcome)
	return res, err
}

func (p *Publisher) publish(ctx context.Context, site store.Site, post store.Post) (Result, error) {
	res := Result{PostID: post.ID}
	if err := requireRemote(site); err != nil {
		return res, err
	}
	if !post.IsPublished() || post.PublishedAt.IsZero() {
		return res, foundationerrors.WrapError(ErrNotPublished, foundationerrors.CategoryValidation, "only published posts with a publication date can be published").
			WithContext("status", string(post.Status)).
			Build()
	}

	rendered, post, err := p.renderForPublish(ctx, site, post)
	if err != nil {
		return res, err
	}
	res.Path, res.Hash = rendered.Path, rendered.Fingerprints.Published

	if post.LastPublishedHash == res.Hash {
		res.NoChanges = true
		p.recordJob(ctx, site, post, store.ActionPublish, store.JobSuccess, res.Path, "", store.MessageNoChanges)
		return res, nil
	}

	up, err := p.remote.UpsertFile(ctx, repoOf(site), res.Path, rendered.Document, fmt.Sprintf("Publish %s", rendered.Slug))
	if err != nil {
		return res, err
	}
	res.CommitSHA, res.HTMLURL = up.CommitSHA, up.HTMLURL

	if err := p.store.UpdatePublishMetadata(ctx, post.ID, store.PublishMetadata{
		LastPublishedHash: res.Hash,
		LastCommitSHA:     up.CommitSHA,
		RepoFilename:      res.Path,
		ExportedAt:        p.now().UTC(),
		CanonicalURL:      post.CanonicalURL,
	}); err != nil {
		return res, err
	}
	p.recordJob(ctx, site, post, store.ActionPublish, store.JobSuccess, res.Path, up.CommitSHA, "")
	return res, nil
}

// renderForPublish renders post with its canonical URL filled in from the
// site's base URL when missing, so the stored URL and the published header
// agree on the next run.
func (p *Publisher) renderForPublish(ctx context.Context, site store.Site, post store.Post) (render.Result, store.Post, error) {
	rendered, err := p.renderer.Render(ctx, site, post)
	if err != nil {
		return render.Result{}, post, err
	}
	if post.CanonicalURL != "" || site.BaseURL == "" {
		return rendered, post, nil
	}
	post.CanonicalURL = strings.TrimRight(site.BaseURL, "/") + rendered.Permalink
	rendered, err = p.renderer.Render(ctx, site, post)
	return rendered, post, err
}

func (p *Publisher) load(ctx context.Context, postID int64) (store.Post, store.Site, error) {
	post, err := p.store.GetPost(ctx, postID)
	if err != nil {
		return store.Post{}, store.Site{}, err
	}
	site, err := p.store.SiteByID(ctx, post.SiteID)
	if err != nil {
		return store.Post{}, store.Site{}, err
	}
	return post, site, nil
}

func (p *Publisher) recordJob(ctx context.Context, site store.Site, post store.Post, action store.JobAction, status store.JobStatus, path, sha, msg string) {
	_, err := p.store.RecordExportJob(ctx, store.ExportJob{
		PostID:    post.ID,
		SiteID:    site.ID,
		Action:    action,
		Status:    status,
		CommitSHA: sha,
		Path:      path,
		Branch:    site.DefaultBranch,
		RepoURL:   repoURL(site),
		Message:   msg,
	})
	if err != nil {
		slog.Warn("Failed to record export job", logfields.PostID(post.ID), logfields.Action(string(action)), logfields.Error(err))
	}
}

func requireRemote(site store.Site) error {
	if site.RepoOwner == "" || site.RepoName == "" || site.DefaultBranch == "" {
		return foundationerrors.WrapError(ErrSiteNotConfigured, foundationerrors.CategoryConfig, "site needs repo_owner, repo_name and default_branch").
			WithContext("site", site.Slug).
			Build()
	}
	return nil
}

func repoOf(site store.Site) forge.Repo {
	return forge.Repo{Owner: site.RepoOwner, Name: site.RepoName, Branch: site.DefaultBranch}
}

func repoURL(site store.Site) string {
	if !site.HasRemote() {
		return ""
	}
	return site.RepoOwner + "/" + site.RepoName
}
