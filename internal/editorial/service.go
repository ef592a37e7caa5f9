package editorial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/blogsync/internal/config"
	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/frontmatter"
	"git.home.luguber.info/inful/blogsync/internal/logfields"
	"git.home.luguber.info/inful/blogsync/internal/routing"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

// ErrSlugLocked is returned when a save would change the slug of a post that
// has been published.
var ErrSlugLocked = errors.New("slug is locked")

// Outcome says whether a save scheduled an export.
type Outcome string

const (
	OutcomeScheduled Outcome = "scheduled"
	OutcomeSkipped   Outcome = "skipped"
)

// Reasons attached to skipped decisions.
const (
	ReasonSuppressed     = "suppressed"
	ReasonExportDisabled = "export_disabled"
	ReasonNotPublished   = "not_published"
	ReasonNoScheduler    = "no_scheduler"
	ReasonStopping       = "stopping"
)

// SaveDecision is the export decision made by Save.
type SaveDecision struct {
	Outcome Outcome
	Reason  string
}

// LinkCache holds link targets keyed by post slug.
type LinkCache interface {
	Forget(slug string)
}

// Service saves posts.
type Service struct {
	store     *store.Store
	cfg       *config.Config
	scheduler *Scheduler
	links     LinkCache
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithScheduler enables background exports after saves.
func WithScheduler(s *Scheduler) Option { return func(svc *Service) { svc.scheduler = s } }

// WithLinkCache drops a post's cached link target whenever it is saved.
func WithLinkCache(c LinkCache) Option { return func(svc *Service) { svc.links = c } }

// WithClock sets the clock used to fill published_at.
func WithClock(now func() time.Time) Option { return func(svc *Service) { svc.now = now } }

// NewService returns a Service.
func NewService(st *store.Store, cfg *config.Config, opts ...Option) *Service {
	s := &Service{store: st, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Save creates p when its ID is zero and updates it otherwise.
//
// Publishing fills published_at when missing and locks the slug; a locked
// slug cannot change. The front matter must be well formed. When it carries a
// valid taxonomy the post's categories are replaced to match.
func (s *Service) Save(ctx context.Context, p *store.Post) (SaveDecision, error) {
	if p.Status == "" {
		p.Status = store.StatusDraft
	}
	if !p.Status.Valid() {
		return SaveDecision{}, foundationerrors.ValidationError(fmt.Sprintf("unknown status %q", p.Status)).Build()
	}
	doc, _, err := frontmatter.Extract(p.Content)
	if err != nil {
		return SaveDecision{}, err
	}
	if p.Slug == "" {
		title := p.Title
		if t, ok := doc.NonEmptyString(frontmatter.KeyTitle); ok && title == "" {
			title = t
		}
		if p.Slug, err = routing.ResolveSlug("", title); err != nil {
			return SaveDecision{}, err
		}
	}

	if p.ID != 0 {
		current, err := s.store.GetPost(ctx, p.ID)
		if err != nil {
			return SaveDecision{}, err
		}
		if current.SlugLocked && current.Slug != p.Slug {
			return SaveDecision{}, foundationerrors.WrapError(ErrSlugLocked, foundationerrors.CategoryValidation,
				"the slug of a published post cannot change; rename it with a redirect instead").
				WithContext("post_id", p.ID).
				WithContext("slug", current.Slug).
				UserAction().
				Build()
		}
		p.SlugLocked = p.SlugLocked || current.SlugLocked
	}
	if p.IsPublished() {
		if p.PublishedAt.IsZero() {
			p.PublishedAt = s.now().UTC()
		}
		p.SlugLocked = true
	}

	if p.ID == 0 {
		err = s.store.CreatePost(ctx, p)
	} else {
		err = s.store.SavePost(ctx, p)
	}
	if err != nil {
		return SaveDecision{}, err
	}
	if err := s.applyCategories(ctx, *p, doc); err != nil {
		return SaveDecision{}, err
	}
	s.forget(p.Slug)
	return s.decide(ctx, *p), nil
}

// SetStatus moves a post to status through Save.
func (s *Service) SetStatus(ctx context.Context, postID int64, status store.Status) (store.Post, SaveDecision, error) {
	p, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return p, SaveDecision{}, err
	}
	p.Status = status
	d, err := s.Save(ctx, &p)
	return p, d, err
}

// SyncCategories replaces the categories of p with the taxonomy in its front
// matter. Posts without a valid taxonomy keep their categories.
func (s *Service) SyncCategories(ctx context.Context, p store.Post) error {
	doc, _, err := frontmatter.Extract(p.Content)
	if err != nil {
		return err
	}
	if err := s.applyCategories(ctx, p, doc); err != nil {
		return err
	}
	s.forget(p.Slug)
	return nil
}

func (s *Service) forget(slug string) {
	if s.links != nil {
		s.links.Forget(slug)
	}
}

func (s *Service) applyCategories(ctx context.Context, p store.Post, doc *frontmatter.Document) error {
	tax, err := frontmatter.ValidateTaxonomy(doc)
	if err != nil {
		slog.Debug("Categories left unchanged", logfields.PostID(p.ID), logfields.Error(err))
		return nil
	}
	return s.store.SetPostCategories(ctx, p.SiteID, p.ID, []store.CategoryKey{{Cluster: tax.Cluster, Subcluster: tax.Subcluster}})
}

func (s *Service) decide(ctx context.Context, p store.Post) SaveDecision {
	skip := func(reason string) SaveDecision { return SaveDecision{Outcome: OutcomeSkipped, Reason: reason} }
	switch {
	case ExportSuppressed(ctx):
		return skip(ReasonSuppressed)
	case !s.cfg.Export.Enabled:
		return skip(ReasonExportDisabled)
	case !p.IsPublished():
		return skip(ReasonNotPublished)
	case s.scheduler == nil:
		return skip(ReasonNoScheduler)
	}
	if !s.scheduler.Schedule(p.ID) {
		return skip(ReasonStopping)
	}
	slog.Info("Export scheduled", logfields.PostID(p.ID), logfields.Slug(p.Slug))
	return SaveDecision{Outcome: OutcomeScheduled}
}
