package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/blogsync/internal/config"
	"git.home.luguber.info/inful/blogsync/internal/forge"
	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/git"
	"git.home.luguber.info/inful/blogsync/internal/logfields"
	"git.home.luguber.info/inful/blogsync/internal/metrics"
	"git.home.luguber.info/inful/blogsync/internal/render"
	"git.home.luguber.info/inful/blogsync/internal/routing"
	"git.home.luguber.info/inful/blogsync/internal/store"
	"git.home.luguber.info/inful/blogsync/internal/workspace"
)

var (
	ErrNotPublished = errors.New("post is not published")
	ErrCollision    = errors.New("destination file belongs to another post")
)

// maxSuffix bounds the increment collision policy.
const maxSuffix = 1000

// PullRequestOpener opens a pull request for a diagnostic branch.
type PullRequestOpener interface {
	OpenPullRequest(ctx context.Context, repo forge.Repo, head, base, title, body string) (forge.PullRequest, error)
}

// Result describes what one Export call did.
type Result struct {
	PostID           int64
	Path             string
	PreviousPath     string
	Branch           string
	RepoURL          string
	Hash             string
	CommitSHA        string
	Moved            bool
	Collision        bool
	Written          bool
	Committed        bool
	Pushed           bool
	DiagnosticBranch string
	PullRequestURL   string
}

// Changed reports whether the export touched the working copy or the remote.
func (r Result) Changed() bool { return r.Written || r.Committed || r.Pushed || r.Moved }

// Exporter writes posts into working copies and pushes them.
type Exporter struct {
	store    *store.Store
	cfg      *config.Config
	renderer render.Renderable
	locker   *workspace.Locker
	recorder metrics.Recorder
	prs      PullRequestOpener
	pushURL  func(remote string) (string, error)
	now      func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithRenderer replaces the default renderer.
func WithRenderer(r render.Renderable) Option { return func(e *Exporter) { e.renderer = r } }

// WithLocker shares a working copy locker with other writers.
func WithLocker(l *workspace.Locker) Option { return func(e *Exporter) { e.locker = l } }

// WithRecorder reports export durations and push retries.
func WithRecorder(r metrics.Recorder) Option { return func(e *Exporter) { e.recorder = r } }

// WithPullRequests enables conflict pull requests (export.open_conflict_pr).
func WithPullRequests(p PullRequestOpener) Option { return func(e *Exporter) { e.prs = p } }

// WithPushURL replaces token injection into the origin URL.
func WithPushURL(fn func(remote string) (string, error)) Option {
	return func(e *Exporter) { e.pushURL = fn }
}

// WithClock sets the clock used for exported_at and diagnostic branch names.
func WithClock(now func() time.Time) Option { return func(e *Exporter) { e.now = now } }

// New returns an Exporter.
func New(st *store.Store, cfg *config.Config, opts ...Option) *Exporter {
	e := &Exporter{
		store:    st,
		cfg:      cfg,
		renderer: render.New(),
		locker:   workspace.NewLocker(time.Hour),
		recorder: metrics.NoopRecorder{},
		now:      time.Now,
	}
	e.pushURL = func(remote string) (string, error) {
		return git.BuildPushURL(remote, cfg.Export.PushUser, cfg.Forge.Token)
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Export renders post postID into its site's working copy, commits and
// pushes. Every attempt appends an ExportJob.
func (e *Exporter) Export(ctx context.Context, postID int64) (Result, error) {
	start := time.Now()
	res := Result{PostID: postID}
	post, err := e.store.GetPost(ctx, postID)
	if err != nil {
		return res, err
	}
	site, err := e.store.SiteByID(ctx, post.SiteID)
	if err != nil {
		return res, err
	}

	res, err = e.export(ctx, site, post)
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailed
		e.recordFailure(ctx, site, post, res, err)
	case !res.Changed():
		outcome = metrics.OutcomeNoChanges
	}
	e.recorder.ObserveExportDuration(site.Slug, time.Since(start), outcome)
	return res, err
}

func (e *Exporter) export(ctx context.Context, site store.Site, post store.Post) (Result, error) {
	res := Result{PostID: post.ID, PreviousPath: post.LastExportPath, Branch: branchOf(site)}
	log := slog.With(logfields.Site(site.Slug), logfields.PostID(post.ID))

	if !post.IsPublished() {
		return res, foundationerrors.WrapError(ErrNotPublished, foundationerrors.CategoryValidation, "only published posts are exported").
			WithContext("status", string(post.Status)).
			Build()
	}
	repoDir, err := workspace.RepoDir(site.RepoPath, e.cfg.RepoBase, site.Slug)
	if err != nil {
		log.Error("Export aborted: working copy missing", logfields.Error(err))
		return res, err
	}
	drv, err := git.NewDriver(repoDir, git.ParseIdentity(e.cfg.Export.CommitAuthor))
	if err != nil {
		log.Error("Export aborted: working copy missing", logfields.Error(err))
		return res, err
	}
	info, err := git.Inspect(repoDir)
	if err != nil {
		return res, err
	}
	if info.Branch != "" && info.Branch != res.Branch {
		log.Warn("Working copy is not on the export branch", slog.String("checked_out", info.Branch), slog.String("branch", res.Branch))
	}
	remote, err := info.Origin()
	if err != nil {
		return res, err
	}
	res.RepoURL = git.Redact(remote)
	pushURL, err := e.pushURL(remote)
	if err != nil {
		return res, err
	}

	release, err := e.locker.Acquire(ctx, repoDir)
	if err != nil {
		return res, err
	}
	defer release()

	rendered, err := e.renderer.Render(ctx, site, post)
	if err != nil {
		log.Error("Export aborted: post failed validation", logfields.Error(err))
		return res, err
	}
	for _, le := range rendered.LinkErrors {
		log.Warn("Unresolved shortcode", logfields.Error(le))
	}
	res.Hash = rendered.Fingerprints.Exported

	target, collided, err := e.resolveCollision(ctx, repoDir, site, post, rendered.Path, rendered.Document)
	if err != nil {
		res.Path = rendered.Path
		return res, err
	}
	res.Path, res.Collision = target, collided

	staged := []string{target}
	if old := post.LastExportPath; old != "" && old != target && exists(filepath.Join(repoDir, old)) {
		oldTracked, terr := drv.IsTracked(ctx, old)
		if terr != nil {
			return res, terr
		}
		if err := moveFile(filepath.Join(repoDir, old), filepath.Join(repoDir, target)); err != nil {
			return res, err
		}
		res.Moved = true
		if oldTracked {
			staged = append(staged, old)
		}
		pruneEmptyDirs(filepath.Dir(filepath.Join(repoDir, old)), pruneStop(repoDir, site.PostsDir, old))
		log.Info("Moved post file", slog.String("from", old), logfields.Path(target))
	}

	abs := filepath.Join(repoDir, target)
	tracked, err := drv.IsTracked(ctx, target)
	if err != nil {
		return res, err
	}
	current, readErr := os.ReadFile(abs)
	if res.Hash != post.ExportedHash || readErr != nil || !tracked || res.Moved || string(current) != rendered.Document {
		if err := writeAtomic(abs, rendered.Document); err != nil {
			return res, err
		}
		res.Written = true
	}

	if err := drv.Add(ctx, staged...); err != nil {
		return res, err
	}
	dirty, err := drv.HasStagedChanges(ctx)
	if err != nil {
		return res, err
	}
	if dirty {
		if err := drv.Commit(ctx, commitMessage(post, rendered.Slug, res)); err != nil {
			return res, err
		}
		res.Committed = true
	}

	clean, err := drv.IsClean(ctx)
	if err != nil {
		return res, err
	}
	ahead, err := drv.Ahead(ctx, res.Branch)
	if err != nil {
		log.Debug("Cannot compare with remote branch, pushing", logfields.Error(err))
		ahead = 1
	}
	if res.Committed || ahead > 0 || !clean {
		if err := e.push(ctx, drv, site, pushURL, &res); err != nil {
			return res, err
		}
		res.Pushed = true
	}

	sha, err := drv.Head(ctx)
	if err != nil {
		return res, err
	}
	res.CommitSHA = sha

	exportedAt := e.now().UTC()
	if !res.Changed() && !post.ExportedAt.IsZero() {
		exportedAt = post.ExportedAt
	}
	if err := e.store.UpdateExportMetadata(ctx, post.ID, store.ExportMetadata{
		ExportedHash:   res.Hash,
		ExportedAt:     exportedAt,
		LastExportPath: target,
		RepoFilename:   target,
		LastCommitSHA:  sha,
		ExportStatus:   string(store.JobSuccess),
	}); err != nil {
		return res, err
	}

	job := store.ExportJob{
		PostID:    post.ID,
		SiteID:    site.ID,
		Action:    store.ActionExport,
		Status:    store.JobSuccess,
		CommitSHA: sha,
		Path:      target,
		Branch:    res.Branch,
		RepoURL:   res.RepoURL,
	}
	if !res.Changed() {
		job.Message = store.MessageNoChanges
	}
	if _, err := e.store.RecordExportJob(ctx, job); err != nil {
		log.Warn("Failed to record export job", logfields.Error(err))
	}
	log.Info("Exported post", logfields.Path(target), logfields.Commit(sha),
		slog.Bool("written", res.Written), slog.Bool("pushed", res.Pushed), slog.Bool("moved", res.Moved))
	return res, nil
}

// resolveCollision returns the path the post should be written to. A
// destination held by another post, or an unowned file with different
// content, is a collision handled by the configured policy.
func (e *Exporter) resolveCollision(ctx context.Context, repoDir string, site store.Site, post store.Post, rel, document string) (string, bool, error) {
	if rel == post.LastExportPath || rel == post.RepoPath {
		return rel, false, nil
	}
	taken := func(candidate string) (bool, error) {
		owner, err := e.store.PostByRepoPath(ctx, site.ID, candidate)
		switch {
		case err == nil:
			return owner.ID != post.ID, nil
		case !errors.Is(err, store.ErrNotFound):
			return false, err
		}
		raw, err := os.ReadFile(filepath.Join(repoDir, candidate))
		if err != nil {
			return false, nil
		}
		return string(raw) != document, nil
	}

	busy, err := taken(rel)
	if err != nil || !busy {
		return rel, false, err
	}
	if e.cfg.Export.CollisionPolicy == config.CollisionFail {
		return "", false, foundationerrors.WrapError(ErrCollision, foundationerrors.CategoryConflict, "destination file already exists").
			WithContext("path", rel).
			Build()
	}
	for n := 1; n <= maxSuffix; n++ {
		candidate := routing.WithSuffix(rel, n)
		busy, err := taken(candidate)
		if err != nil {
			return "", false, err
		}
		if !busy {
			slog.Warn("Destination taken, exporting under a suffixed filename",
				logfields.Site(site.Slug), logfields.PostID(post.ID), slog.String("wanted", rel), logfields.Path(candidate))
			return candidate, true, nil
		}
	}
	return "", false, foundationerrors.WrapError(ErrCollision, foundationerrors.CategoryConflict, "no free filename suffix").
		WithContext("path", rel).
		Build()
}

// push pushes HEAD; a non-fast-forward rejection is rebased and retried once
// before the state is parked on a diagnostic branch.
func (e *Exporter) push(ctx context.Context, drv *git.Driver, site store.Site, pushURL string, res *Result) error {
	err := drv.Push(ctx, pushURL, res.Branch)
	if err == nil || !errors.Is(err, git.ErrNonFastForward) {
		return err
	}
	e.recorder.IncPushRetry(site.Slug)
	slog.Warn("Push rejected as non-fast-forward, rebasing", logfields.Site(site.Slug), logfields.Branch(res.Branch))

	if ferr := drv.FetchFrom(ctx, pushURL, res.Branch); ferr != nil {
		return ferr
	}
	rerr := drv.Rebase(ctx, res.Branch, false)
	if rerr != nil {
		rerr = drv.Rebase(ctx, res.Branch, true)
	}
	if rerr == nil {
		if err = drv.Push(ctx, pushURL, res.Branch); err == nil {
			return nil
		}
	} else {
		err = rerr
	}
	return e.park(ctx, drv, site, pushURL, res, err)
}

// park moves the unpushable state to a diagnostic branch, pushes it, and
// resets the default branch to the remote.
func (e *Exporter) park(ctx context.Context, drv *git.Driver, site store.Site, pushURL string, res *Result, cause error) error {
	diag := fmt.Sprintf("export-conflict-%s-%s", site.Slug, e.now().UTC().Format("20060102T150405Z"))
	log := slog.With(logfields.Site(site.Slug), logfields.Branch(diag))

	if err := drv.CreateBranch(ctx, diag); err != nil {
		return errors.Join(cause, err)
	}
	res.DiagnosticBranch = diag
	if err := drv.PushRef(ctx, pushURL, "HEAD", diag); err != nil {
		log.Error("Failed to push diagnostic branch", logfields.Error(err))
	}
	if err := drv.Checkout(ctx, res.Branch); err != nil {
		log.Error("Failed to return to default branch", logfields.Error(err))
	} else if err := drv.ResetHard(ctx, "origin/"+res.Branch); err != nil {
		log.Error("Failed to reset default branch", logfields.Error(err))
	}

	if e.cfg.Export.OpenConflictPR && e.prs != nil && site.HasRemote() {
		pr, err := e.prs.OpenPullRequest(ctx, forge.Repo{Owner: site.RepoOwner, Name: site.RepoName, Branch: res.Branch},
			diag, res.Branch, "Export conflict on "+site.Slug,
			fmt.Sprintf("Automatic export of %s could not be rebased onto %s. Resolve and merge manually.", res.Path, res.Branch))
		if err != nil {
			log.Error("Failed to open conflict pull request", logfields.Error(err))
		} else {
			res.PullRequestURL = pr.HTMLURL
		}
	}

	log.Error("Export parked on diagnostic branch", logfields.Error(cause))
	return foundationerrors.WrapError(errors.Join(git.ErrNonFastForward, cause), foundationerrors.CategoryGit,
		"push rejected after rebase; changes parked on "+diag).
		WithContext("branch", diag).
		Build()
}

func (e *Exporter) recordFailure(ctx context.Context, site store.Site, post store.Post, res Result, cause error) {
	if err := e.store.SetExportStatus(ctx, post.ID, string(store.JobFailed)); err != nil {
		slog.Warn("Failed to record export status", logfields.PostID(post.ID), logfields.Error(err))
	}
	job := store.ExportJob{
		PostID:  post.ID,
		SiteID:  site.ID,
		Action:  store.ActionExport,
		Status:  store.JobFailed,
		Path:    res.Path,
		Branch:  res.Branch,
		RepoURL: res.RepoURL,
		Message: cause.Error(),
	}
	if _, err := e.store.RecordExportJob(ctx, job); err != nil {
		slog.Warn("Failed to record export job", logfields.PostID(post.ID), logfields.Error(err))
	}
}

func branchOf(site store.Site) string {
	if site.DefaultBranch != "" {
		return site.DefaultBranch
	}
	return config.DefaultBranch
}

// pruneStop is the directory pruning stops at: the posts directory when rel
// lives under it, else the repository root.
func pruneStop(repoDir, postsDir, rel string) string {
	postsDir = strings.Trim(postsDir, "/")
	if postsDir != "" && strings.HasPrefix(rel, postsDir+"/") {
		return filepath.Join(repoDir, filepath.FromSlash(postsDir))
	}
	return repoDir
}

func commitMessage(post store.Post, postSlug string, res Result) string {
	if res.Moved {
		return fmt.Sprintf("Move %s to %s", postSlug, path.Dir(res.Path))
	}
	if post.ExportedHash == "" {
		return "Add post " + postSlug
	}
	return "Update post " + postSlug
}
