package reposync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/blogsync/internal/config"
	"git.home.luguber.info/inful/blogsync/internal/editorial"
	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/git"
	"git.home.luguber.info/inful/blogsync/internal/logfields"
	"git.home.luguber.info/inful/blogsync/internal/metrics"
	"git.home.luguber.info/inful/blogsync/internal/publish"
	"git.home.luguber.info/inful/blogsync/internal/store"
	"git.home.luguber.info/inful/blogsync/internal/workspace"
)

// ErrAuditGate is returned when Apply was requested but slug or taxonomy warnings
// stopped at least one site from being applied.
var ErrAuditGate = errors.New("audit warnings block apply")

// NewRunID returns a run identifier: the UTC start time followed by a short
// random suffix, e.g. 20240301T093000Z-1f0c2a9e.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// Request selects what a run does.
type Request struct {
	// Sites lists site slugs; empty means every site.
	Sites []string
	Apply bool

	DeletePKs  []int64
	Confirm    bool
	DeleteMode publish.DeleteMode

	// RunID overrides the generated run identifier.
	RunID string
}

// Result is the outcome of a run.
type Result struct {
	RunID      string
	ReportPath string
	LogPath    string
	Report     Report
}

// Synchronizer runs repository to database reconciliation.
type Synchronizer struct {
	store    *store.Store
	cfg      *config.Config
	remote   RemoteFiles
	editor   *editorial.Service
	locker   *workspace.Locker
	identity git.Identity
	recorder metrics.Recorder
	now      func() time.Time
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithRemote scans sites with remote coordinates through the host API.
func WithRemote(r RemoteFiles) Option { return func(s *Synchronizer) { s.remote = r } }

// WithEditor replaces the service used to create posts.
func WithEditor(e *editorial.Service) Option { return func(s *Synchronizer) { s.editor = e } }

// WithLocker shares a working copy locker with the exporter.
func WithLocker(l *workspace.Locker) Option { return func(s *Synchronizer) { s.locker = l } }

// WithIdentity sets the author of archive commits.
func WithIdentity(id git.Identity) Option { return func(s *Synchronizer) { s.identity = id } }

// WithRecorder reports sync actions and durations.
func WithRecorder(r metrics.Recorder) Option { return func(s *Synchronizer) { s.recorder = r } }

// WithClock sets the clock used for exported_at and dates.
func WithClock(now func() time.Time) Option { return func(s *Synchronizer) { s.now = now } }

// New returns a Synchronizer.
func New(st *store.Store, cfg *config.Config, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:    st,
		cfg:      cfg,
		locker:   workspace.NewLocker(10 * time.Minute),
		identity: git.ParseIdentity(cfg.Export.CommitAuthor),
		recorder: metrics.NoopRecorder{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.editor == nil {
		s.editor = editorial.NewService(st, cfg, editorial.WithClock(s.now))
	}
	return s
}

// Run scans and plans every requested site, applies the plans when asked,
// performs a requested deletion and writes the report. The report and an
// ExportAudit row per site are written even when the audit gate trips; the
// returned error then wraps ErrAuditGate.
func (s *Synchronizer) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	runID := req.RunID
	if runID == "" {
		runID = NewRunID(s.now())
	}
	res := Result{RunID: runID, ReportPath: filepath.Join(s.cfg.Sync.ReportDir, ReportFileName(runID))}

	log, closeLog, logPath, err := s.runLogger(runID)
	if err != nil {
		return res, err
	}
	defer closeLog()
	res.LogPath = logPath
	log = log.With(logfields.RunID(runID))
	log.Info("Sync started", slog.Bool("apply", req.Apply), slog.Any("sites", req.Sites))

	sites, err := s.selectSites(ctx, req.Sites)
	if err != nil {
		return res, err
	}

	report := Report{RunID: runID, Apply: req.Apply, LogPath: logPath, Sites: map[string]SiteReport{}}
	var gated []string
	for _, site := range sites {
		sr, err := s.syncSite(ctx, log, runID, site, req.Apply)
		if err != nil {
			log.Error("Site sync failed", logfields.Site(site.Slug), logfields.Error(err))
			sr.Site, sr.Error = site.Slug, err.Error()
		}
		if sr.GateTripped {
			gated = append(gated, site.Slug)
		}
		report.Sites[site.Slug] = sr
		if _, aerr := s.store.RecordAudit(ctx, runID, "sync", site.ID, sr); aerr != nil {
			log.Warn("Failed to record sync audit", logfields.Site(site.Slug), logfields.Error(aerr))
		}
	}

	var runErr error
	if len(req.DeletePKs) > 0 {
		report.Deleted, runErr = s.deletePosts(ctx, log, runID, req)
	}

	res.Report = report
	if err := writeJSON(res.ReportPath, report); err != nil {
		return res, err
	}
	s.recorder.ObserveSyncDuration(time.Since(start), req.Apply)
	log.Info("Sync finished", logfields.Path(res.ReportPath),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))

	if runErr != nil {
		return res, runErr
	}
	for _, sr := range report.Sites {
		if sr.Error != "" {
			return res, foundationerrors.NewError(foundationerrors.CategoryInternal, "one or more sites failed to sync").
				WithContext("report", res.ReportPath).
				Build()
		}
	}
	if len(gated) > 0 {
		return res, foundationerrors.WrapError(ErrAuditGate, foundationerrors.CategoryValidation,
			"fix the slug warnings in the report before applying").
			WithContext("sites", gated).
			WithContext("report", res.ReportPath).
			Build()
	}
	return res, nil
}

func (s *Synchronizer) syncSite(ctx context.Context, log *slog.Logger, runID string, site store.Site, apply bool) (SiteReport, error) {
	src, err := s.source(site)
	if err != nil {
		return SiteReport{}, err
	}
	files, err := src.Files(ctx, site)
	if err != nil {
		return SiteReport{Source: src.Kind()}, err
	}
	plan, err := BuildPlan(ctx, s.store, site, files)
	if err != nil {
		return SiteReport{Source: src.Kind()}, err
	}

	warnings := plan.Warnings()
	for _, it := range plan.Items {
		for _, w := range it.Warnings {
			log.Warn("Audit warning", logfields.Site(site.Slug), logfields.Path(it.Path), slog.String("code", string(w.Code)), slog.String("message", w.Message))
		}
		if it.Action == ActionInvalid {
			log.Error("Invalid front matter", logfields.Site(site.Slug), logfields.Path(it.Path), slog.String("error", it.Error))
		}
	}

	gate := apply && warnings > 0
	if apply && !gate {
		if err := s.applyPlan(ctx, log, &plan); err != nil {
			return newSiteReport(plan, src.Kind()), err
		}
	}
	sr := newSiteReport(plan, src.Kind())
	sr.Applied, sr.GateTripped = apply && !gate, gate

	for _, a := range []Action{ActionCreate, ActionUpdate, ActionUnchanged, ActionInvalid} {
		s.recorder.IncSyncAction(site.Slug, string(a), plan.Count(a))
	}
	log.Info("Site planned",
		logfields.Site(site.Slug),
		slog.String("source", src.Kind()),
		slog.Int("created", len(sr.Created)),
		slog.Int("updated", len(sr.Updated)),
		slog.Int("unchanged", len(sr.Unchanged)),
		slog.Int("invalid", len(sr.Invalid)),
		slog.Int("warnings", warnings),
		slog.Bool("applied", sr.Applied))
	if gate {
		log.Warn("Apply skipped: audit warnings", logfields.Site(site.Slug), slog.Int("warnings", warnings))
	}
	return sr, nil
}

func (s *Synchronizer) source(site store.Site) (Source, error) {
	if site.HasRemote() && s.remote != nil {
		return RemoteSource{Client: s.remote}, nil
	}
	dir, err := workspace.RepoDir(site.RepoPath, s.cfg.RepoBase, site.Slug)
	if err != nil {
		return nil, err
	}
	return LocalSource{RepoDir: dir}, nil
}

func (s *Synchronizer) selectSites(ctx context.Context, slugs []string) ([]store.Site, error) {
	if len(slugs) == 0 {
		return s.store.ListSites(ctx)
	}
	out := make([]store.Site, 0, len(slugs))
	for _, slug := range slugs {
		site, err := s.store.SiteBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		out = append(out, site)
	}
	return out, nil
}

// runLogger tees the default logger into the run's logfile: the configured
// log_path, or sync-<run_id>.log in the report directory.
func (s *Synchronizer) runLogger(runID string) (*slog.Logger, func(), string, error) {
	logPath := s.cfg.Sync.LogPath
	if logPath == "" {
		logPath = filepath.Join(s.cfg.Sync.ReportDir, fmt.Sprintf("sync-%s.log", runID))
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o750); err != nil {
		return nil, nil, "", foundationerrors.FileSystemError("cannot create log directory").WithCause(err).WithContext("path", logPath).Build()
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- operator-configured path
	if err != nil {
		return nil, nil, "", foundationerrors.FileSystemError("cannot open sync log").WithCause(err).WithContext("path", logPath).Build()
	}
	file := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(newTeeHandler(slog.Default().Handler(), file))
	return logger, func() { _ = f.Close() }, logPath, nil
}
