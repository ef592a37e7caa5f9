package editorial

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/blogsync/internal/config"
	"git.home.luguber.info/inful/blogsync/internal/export"
	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/links"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

type recordingRunner struct {
	mu         sync.Mutex
	ids        []int64
	suppressed []bool
}

func (r *recordingRunner) Export(ctx context.Context, postID int64) (export.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, postID)
	r.suppressed = append(r.suppressed, ExportSuppressed(ctx))
	return export.Result{PostID: postID}, nil
}

func (r *recordingRunner) calls() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

func setup(t *testing.T) (*store.Store, store.Site, *config.Config) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:", store.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	site, err := st.UpsertSite(ctx, store.Site{Slug: "a", Name: "A", PostsDir: "_posts"})
	require.NoError(t, err)
	return st, site, config.Default()
}

func TestGuard(t *testing.T) {
	ctx := context.Background()
	require.False(t, ExportSuppressed(ctx))
	require.True(t, ExportSuppressed(WithoutExport(ctx)))
}

func TestSave_PublishLocksSlugAndSchedules(t *testing.T) {
	st, site, cfg := setup(t)
	runner := &recordingRunner{}
	sched := NewScheduler(runner, time.Minute)
	svc := NewService(st, cfg, WithScheduler(sched), WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	p := &store.Post{SiteID: site.ID, Title: "Django Tutorial", Content: "---\ncategories: [django]\nsubcluster: orm\n---\nBody\n"}
	d, err := svc.Save(ctx, p)
	require.NoError(t, err)
	require.Equal(t, "django-tutorial", p.Slug)
	require.Equal(t, SaveDecision{Outcome: OutcomeSkipped, Reason: ReasonNotPublished}, d)
	require.False(t, p.SlugLocked)

	cats, err := st.PostCategories(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	require.Equal(t, "django", cats[0].ClusterSlug)
	require.Equal(t, "orm", cats[0].SubclusterSlug)

	_, d, err = svc.SetStatus(ctx, p.ID, store.StatusPublished)
	require.NoError(t, err)
	require.Equal(t, OutcomeScheduled, d.Outcome)
	require.NoError(t, sched.StopAndWait(ctx))
	require.Equal(t, []int64{p.ID}, runner.calls())
	require.Equal(t, []bool{true}, runner.suppressed)

	got, err := st.GetPost(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, got.SlugLocked)
	require.True(t, fixedNow.Equal(got.PublishedAt))

	got.Slug = "renamed"
	_, err = svc.Save(ctx, &got)
	require.ErrorIs(t, err, ErrSlugLocked)
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryValidation))
}

func TestSave_Decisions(t *testing.T) {
	st, site, cfg := setup(t)
	runner := &recordingRunner{}
	sched := NewScheduler(runner, 0)
	svc := NewService(st, cfg, WithScheduler(sched))
	ctx := context.Background()

	p := &store.Post{SiteID: site.ID, Title: "One", Status: store.StatusPublished, Content: "Body\n"}
	d, err := svc.Save(WithoutExport(ctx), p)
	require.NoError(t, err)
	require.Equal(t, ReasonSuppressed, d.Reason)

	cfg.Export.Enabled = false
	d, err = svc.Save(ctx, p)
	require.NoError(t, err)
	require.Equal(t, ReasonExportDisabled, d.Reason)
	cfg.Export.Enabled = true

	require.NoError(t, sched.StopAndWait(ctx))
	d, err = svc.Save(ctx, p)
	require.NoError(t, err)
	require.Equal(t, ReasonStopping, d.Reason)
	require.Empty(t, runner.calls())

	d, err = NewService(st, cfg).Save(ctx, p)
	require.NoError(t, err)
	require.Equal(t, ReasonNoScheduler, d.Reason)
}

func TestSave_Rejects(t *testing.T) {
	st, site, cfg := setup(t)
	svc := NewService(st, cfg)
	ctx := context.Background()

	_, err := svc.Save(ctx, &store.Post{SiteID: site.ID, Title: "x", Status: "archived"})
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryValidation))

	_, err = svc.Save(ctx, &store.Post{SiteID: site.ID, Title: "x", Content: "\ufeff---\ntitle: x\n---\n"})
	require.Error(t, err)

	_, err = svc.Save(ctx, &store.Post{SiteID: site.ID, Title: "Same"})
	require.NoError(t, err)
	_, err = svc.Save(ctx, &store.Post{SiteID: site.ID, Title: "Same"})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestSave_ForgetsCachedLinkTarget(t *testing.T) {
	st, site, cfg := setup(t)
	ctx := context.Background()
	lookup := links.NewStoreLookup(st, 16, time.Hour)
	svc := NewService(st, cfg, WithLinkCache(lookup))

	p := &store.Post{SiteID: site.ID, Title: "Guide", Slug: "guide", Content: "---\ncategories: [django]\n---\nBody\n"}
	_, err := svc.Save(ctx, p)
	require.NoError(t, err)
	targets, err := lookup.PostsBySlug(ctx, "guide")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Contains(t, targets[0].Post.Content, "django")

	p.Content = "---\ncategories: [python]\n---\nBody\n"
	_, err = svc.Save(ctx, p)
	require.NoError(t, err)
	targets, err = lookup.PostsBySlug(ctx, "guide")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Contains(t, targets[0].Post.Content, "python")

	cats, err := st.PostCategories(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	require.Equal(t, "python", cats[0].ClusterSlug)
}
