package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/blogsync/internal/config"
	"git.home.luguber.info/inful/blogsync/internal/editorial"
	"git.home.luguber.info/inful/blogsync/internal/export"
	"git.home.luguber.info/inful/blogsync/internal/forge"
	"git.home.luguber.info/inful/blogsync/internal/links"
	"git.home.luguber.info/inful/blogsync/internal/logfields"
	"git.home.luguber.info/inful/blogsync/internal/metrics"
	"git.home.luguber.info/inful/blogsync/internal/publish"
	"git.home.luguber.info/inful/blogsync/internal/render"
	"git.home.luguber.info/inful/blogsync/internal/store"
	"git.home.luguber.info/inful/blogsync/internal/workspace"
	"github.com/alecthomas/kong"
)

const (
	linkCacheSize = 512
	linkCacheTTL  = 5 * time.Minute
	lockStale     = time.Hour
)

// Global context passed to subcommands if we need to share global state later.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config      string           `short:"c" help:"Configuration file path" default:"blogsync.yaml"`
	Verbose     bool             `short:"v" help:"Enable verbose logging"`
	Version     kong.VersionFlag `name:"version" help:"Show version and exit"`
	MetricsFile string           `name:"metrics-file" help:"Write Prometheus metrics in text format to this file when the command ends" type:"path"`

	Init            InitCmd            `cmd:"" help:"Initialize a new configuration file"`
	Migrate         MigrateCmd         `cmd:"" help:"Apply pending database migrations"`
	Sites           SitesCmd           `cmd:"" help:"Manage sites"`
	Post            PostCmd            `cmd:"" help:"Editorial operations on posts"`
	Export          ExportCmd          `cmd:"" help:"Export posts into their site working copies and push"`
	Publish         PublishCmd         `cmd:"" help:"Publish posts through the remote host API"`
	Refresh         RefreshCmd         `cmd:"" help:"Compare published posts with the remote repository"`
	Delete          DeleteCmd          `cmd:"" help:"Delete a post from the database and optionally the repository"`
	Backfill        BackfillCmd        `cmd:"" name:"backfill-last-published-hash" help:"Reconstruct last_published_hash for previously published posts"`
	ExportValidator ExportValidatorCmd `cmd:"" name:"export-validator" help:"Check exported filenames and front-matter slugs"`
	LinkLint        LinkLintCmd        `cmd:"" name:"link-lint" help:"Report unresolved shortcodes and raw Markdown links"`
	Sync            SyncCmd            `cmd:"" help:"Reconcile repository posts into the database"`
	TailLog         TailLogCmd         `cmd:"" name:"tail-log" help:"Follow a sync logfile"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// commandContext is cancelled on SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// session bundles what most commands need: configuration, an open store and
// a metrics recorder that is dumped on Close when --metrics-file is set.
type session struct {
	cfg         *config.Config
	store       *store.Store
	recorder    *metrics.PrometheusRecorder
	locker      *workspace.Locker
	lookup      *links.StoreLookup
	metricsFile string
}

func openSession(ctx context.Context, root *CLI) (*session, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	slog.Debug("Store opened", slog.String("database", cfg.Database))
	return &session{
		cfg:         cfg,
		store:       st,
		recorder:    metrics.NewPrometheusRecorder(nil),
		locker:      workspace.NewLocker(lockStale),
		lookup:      links.NewStoreLookup(st, linkCacheSize, linkCacheTTL),
		metricsFile: root.MetricsFile,
	}, nil
}

// Close dumps metrics and closes the store.
func (s *session) Close() {
	if s.metricsFile != "" {
		if err := s.recorder.WriteTextfile(s.metricsFile); err != nil {
			slog.Warn("Failed to write metrics file", slog.String("path", s.metricsFile), logfields.Error(err))
		}
	}
	if err := s.store.Close(); err != nil {
		slog.Warn("Failed to close store", logfields.Error(err))
	}
}

func (s *session) forgeClient() *forge.Client {
	return forge.NewClient(s.cfg.Forge, forge.WithRecorder(s.recorder))
}

func (s *session) resolver() *links.Resolver {
	return links.NewResolver(s.lookup, s.cfg.Links.CrossSitePolicy)
}

// editor saves posts and keeps the session's link cache current.
func (s *session) editor(opts ...editorial.Option) *editorial.Service {
	return editorial.NewService(s.store, s.cfg, append([]editorial.Option{editorial.WithLinkCache(s.lookup)}, opts...)...)
}

// renderer expands shortcodes only when the link resolver is enabled.
func (s *session) renderer() render.Renderable {
	if !s.cfg.Links.Enabled {
		return render.New()
	}
	return render.New(render.WithLinkResolver(s.resolver()))
}

func (s *session) exporter() *export.Exporter {
	return export.New(s.store, s.cfg,
		export.WithRenderer(s.renderer()),
		export.WithLocker(s.locker),
		export.WithRecorder(s.recorder),
		export.WithPullRequests(s.forgeClient()),
	)
}

func (s *session) publisher() *publish.Publisher {
	return publish.New(s.store, s.forgeClient(), s.cfg,
		publish.WithRenderer(s.renderer()),
		publish.WithRecorder(s.recorder),
	)
}

// siteID resolves an optional site slug; empty means every site.
func (s *session) siteID(ctx context.Context, slug string) (int64, error) {
	if slug == "" {
		return 0, nil
	}
	site, err := s.store.SiteBySlug(ctx, slug)
	if err != nil {
		return 0, err
	}
	return site.ID, nil
}
