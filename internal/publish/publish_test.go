package publish

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/blogsync/internal/config"
	"git.home.luguber.info/inful/blogsync/internal/forge"
	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/render"
	"git.home.luguber.info/inful/blogsync/internal/retry"
	"git.home.luguber.info/inful/blogsync/internal/store"
	"git.home.luguber.info/inful/blogsync/internal/testforge"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	host  *testforge.Host
	store *store.Store
	site  store.Site
	cfg   *config.Config
	pub   *Publisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	host := testforge.New(t, "acme", "blog-a")
	st, err := store.Open(ctx, ":memory:", store.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	site, err := st.UpsertSite(ctx, store.Site{
		Slug: "a", Name: "A", RepoOwner: "acme", RepoName: "blog-a", DefaultBranch: "main",
		PostsDir: "_posts", MediaDir: "assets", BaseURL: "https://a.example/", Domain: "a.example",
	})
	require.NoError(t, err)

	cfg := config.Default()
	client := forge.NewClient(config.ForgeConfig{APIURL: host.URL(), Token: "tok", RequestsPerSecond: 1000, Burst: 100},
		forge.WithPolicy(retry.Policy{Mode: config.RetryBackoffFixed, Initial: time.Millisecond, Max: time.Millisecond}))
	pub := New(st, client, cfg,
		WithRenderer(render.New(render.WithClock(func() time.Time { return fixedNow }))),
		WithClock(func() time.Time { return fixedNow }))
	return &fixture{t: t, ctx: ctx, host: host, store: st, site: site, cfg: cfg, pub: pub}
}

func (f *fixture) post(slug, content string) store.Post {
	f.t.Helper()
	p := store.Post{
		SiteID: f.site.ID, Title: slug, Slug: slug, Content: content,
		Status: store.StatusPublished, PublishedAt: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), SlugLocked: true,
	}
	require.NoError(f.t, f.store.CreatePost(f.ctx, &p))
	return p
}

func (f *fixture) jobs(postID int64) []store.ExportJob {
	f.t.Helper()
	jobs, err := f.store.ExportJobs(f.ctx, postID)
	require.NoError(f.t, err)
	return jobs
}

const djangoPost = "---\ncategories: [django]\n---\nHello Django\n"

func TestPublish_SecondRunIsNoOp(t *testing.T) {
	f := newFixture(t)
	p := f.post("django-tutorial", djangoPost)

	first, err := f.pub.Publish(f.ctx, p.ID)
	require.NoError(t, err)
	require.False(t, first.NoChanges)
	require.NotEmpty(t, first.CommitSHA)
	require.Equal(t, "_posts/django/2024-01-15-django-tutorial.md", first.Path)
	require.Len(t, first.Hash, 64)

	remote, ok := f.host.File(first.Path)
	require.True(t, ok)
	assert.Contains(t, remote, "canonical_url:")
	assert.Contains(t, remote, "https://a.example/django/django-tutorial/")

	got, err := f.store.GetPost(f.ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, first.Hash, got.LastPublishedHash)
	require.Equal(t, first.CommitSHA, got.LastCommitSHA)
	require.Equal(t, first.Path, got.RepoFilename)
	require.Equal(t, "https://a.example/django/django-tutorial/", got.CanonicalURL)

	second, err := f.pub.Publish(f.ctx, p.ID)
	require.NoError(t, err)
	require.True(t, second.NoChanges)
	require.Empty(t, second.CommitSHA)
	require.Equal(t, first.Hash, second.Hash)
	require.Equal(t, 1, f.host.Commits())

	again, err := f.store.GetPost(f.ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, first.Hash, again.LastPublishedHash)

	jobs := f.jobs(p.ID)
	require.Len(t, jobs, 2)
	require.Equal(t, store.ActionPublish, jobs[1].Action)
	require.Equal(t, store.JobSuccess, jobs[1].Status)
	require.Equal(t, store.MessageNoChanges, jobs[1].Message)
	require.Equal(t, "acme/blog-a", jobs[0].RepoURL)
}

func TestPublish_ContentChangeRepublishes(t *testing.T) {
	f := newFixture(t)
	p := f.post("django-tutorial", djangoPost)
	_, err := f.pub.Publish(f.ctx, p.ID)
	require.NoError(t, err)

	p, err = f.store.GetPost(f.ctx, p.ID)
	require.NoError(t, err)
	p.Content = strings.Replace(p.Content, "Hello", "Hi", 1)
	require.NoError(t, f.store.SavePost(f.ctx, &p))

	res, err := f.pub.Publish(f.ctx, p.ID)
	require.NoError(t, err)
	require.False(t, res.NoChanges)
	require.Equal(t, 2, f.host.Commits())
	remote, _ := f.host.File(res.Path)
	require.Contains(t, remote, "Hi Django")
}

func TestPublish_Preconditions(t *testing.T) {
	f := newFixture(t)

	draft := store.Post{SiteID: f.site.ID, Title: "Draft", Slug: "draft", Content: djangoPost, Status: store.StatusDraft}
	require.NoError(t, f.store.CreatePost(f.ctx, &draft))
	_, err := f.pub.Publish(f.ctx, draft.ID)
	require.ErrorIs(t, err, ErrNotPublished)
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryValidation))

	bare, err := f.store.UpsertSite(f.ctx, store.Site{Slug: "b", Name: "B", PostsDir: "_posts"})
	require.NoError(t, err)
	p := store.Post{SiteID: bare.ID, Title: "x", Slug: "x", Content: djangoPost, Status: store.StatusPublished, PublishedAt: fixedNow, SlugLocked: true}
	require.NoError(t, f.store.CreatePost(f.ctx, &p))
	_, err = f.pub.Publish(f.ctx, p.ID)
	require.ErrorIs(t, err, ErrSiteNotConfigured)

	jobs := f.jobs(p.ID)
	require.Len(t, jobs, 1)
	require.Equal(t, store.JobFailed, jobs[0].Status)
	require.Zero(t, f.host.Commits())
}

func TestPublish_AuthFailureRecordsJob(t *testing.T) {
	f := newFixture(t)
	p := f.post("django-tutorial", djangoPost)
	f.host.SetFailMode(testforge.FailModeAuth)

	_, err := f.pub.Publish(f.ctx, p.ID)
	require.ErrorIs(t, err, forge.ErrPermissionDenied)

	got, err := f.store.GetPost(f.ctx, p.ID)
	require.NoError(t, err)
	require.Empty(t, got.LastPublishedHash)
	require.Equal(t, string(store.JobFailed), got.ExportStatus)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	same := f.post("same", djangoPost)
	changed := f.post("changed", djangoPost)
	absent := f.post("absent", djangoPost)
	for _, p := range []store.Post{same, changed} {
		_, err := f.pub.Publish(f.ctx, p.ID)
		require.NoError(t, err)
	}
	f.host.SetFile("_posts/django/2024-01-15-changed.md", "---\nlayout: post\n---\nedited on the host\n")
	commits := f.host.Commits()

	results, err := f.pub.Refresh(f.ctx, []int64{same.ID, changed.ID, absent.ID})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, DriftOK, results[0].Status)
	require.Equal(t, results[0].LocalHash, results[0].RemoteHash)
	require.Equal(t, DriftContent, results[1].Status)
	require.Equal(t, DriftAbsent, results[2].Status)
	require.Equal(t, commits, f.host.Commits())

	f.host.SetFailMode(testforge.FailModeAuth)
	results, err = f.pub.Refresh(f.ctx, []int64{same.ID})
	require.NoError(t, err)
	require.Equal(t, DriftError, results[0].Status)
	require.Equal(t, "permission", results[0].ErrorKind)

	jobs := f.jobs(same.ID)
	require.Equal(t, store.ActionRefresh, jobs[len(jobs)-1].Action)
	require.Equal(t, store.JobFailed, jobs[len(jobs)-1].Status)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	p := f.post("django-tutorial", djangoPost)
	res, err := f.pub.Publish(f.ctx, p.ID)
	require.NoError(t, err)

	_, err = f.pub.Delete(f.ctx, p.ID, DeleteRepoAndDB, false)
	require.ErrorIs(t, err, ErrRepoDeleteDisabled)
	_, ok := f.host.File(res.Path)
	require.True(t, ok)

	del, err := f.pub.Delete(f.ctx, p.ID, DeleteRepoAndDB, true)
	require.NoError(t, err)
	require.Equal(t, forge.Deleted, del.RemoteStatus)
	require.Equal(t, res.Path, del.Path)
	_, ok = f.host.File(res.Path)
	require.False(t, ok)
	_, err = f.store.GetPost(f.ctx, p.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	jobs := f.jobs(p.ID)
	require.Equal(t, store.ActionDeleteRepoAndDB, jobs[len(jobs)-1].Action)
	require.Equal(t, store.JobSuccess, jobs[len(jobs)-1].Status)
}

func TestDelete_AlreadyAbsentAndDBOnly(t *testing.T) {
	f := newFixture(t)
	f.cfg.Delete.AllowRepoDelete = true
	never := f.post("never-published", djangoPost)
	del, err := f.pub.Delete(f.ctx, never.ID, DeleteRepoAndDB, false)
	require.NoError(t, err)
	require.Equal(t, forge.AlreadyAbsent, del.RemoteStatus)

	local := f.post("local-only", djangoPost)
	_, err = f.pub.Delete(f.ctx, local.ID, DeleteDBOnly, false)
	require.NoError(t, err)
	require.Zero(t, f.host.Commits())

	_, err = ParseDeleteMode("everything")
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryValidation))
}

func TestDelete_RemoteFailureKeepsRow(t *testing.T) {
	f := newFixture(t)
	p := f.post("django-tutorial", djangoPost)
	f.host.SetFailMode(testforge.FailModeAuth)

	_, err := f.pub.Delete(f.ctx, p.ID, DeleteRepoAndDB, true)
	require.Error(t, err)
	_, err = f.store.GetPost(f.ctx, p.ID)
	require.NoError(t, err)
}

func TestBackfillLastPublishedHash(t *testing.T) {
	f := newFixture(t)
	withCommit := f.post("with-commit", djangoPost)
	require.NoError(t, f.store.UpdateRepoAssociation(f.ctx, withCommit.ID, "_posts/django/2024-01-15-with-commit.md", "abc123"))
	withJob := f.post("with-job", djangoPost)
	_, err := f.store.RecordExportJob(f.ctx, store.ExportJob{PostID: withJob.ID, SiteID: f.site.ID, Action: store.ActionExport, Status: store.JobSuccess})
	require.NoError(t, err)
	f.post("no-evidence", djangoPost)

	dry, err := f.pub.BackfillLastPublishedHash(f.ctx, f.site.ID, true, false)
	require.NoError(t, err)
	require.Equal(t, 3, dry.Scanned)
	require.ElementsMatch(t, []int64{withCommit.ID, withJob.ID}, dry.Updated)
	require.Equal(t, 1, dry.NoEvidence)
	got, err := f.store.GetPost(f.ctx, withCommit.ID)
	require.NoError(t, err)
	require.Empty(t, got.LastPublishedHash)

	rep, err := f.pub.BackfillLastPublishedHash(f.ctx, f.site.ID, false, false)
	require.NoError(t, err)
	require.Len(t, rep.Updated, 2)

	// The reconstructed hash makes the next publish a no-op.
	res, err := f.pub.Publish(f.ctx, withCommit.ID)
	require.NoError(t, err)
	require.True(t, res.NoChanges)

	rep, err = f.pub.BackfillLastPublishedHash(f.ctx, f.site.ID, false, false)
	require.NoError(t, err)
	require.Empty(t, rep.Updated)
	require.Equal(t, 2, rep.AlreadySet)
}

func TestValidateExports(t *testing.T) {
	f := newFixture(t)
	good := f.post("good", djangoPost)
	_, err := f.pub.Publish(f.ctx, good.ID)
	require.NoError(t, err)

	bad := f.post("bad", djangoPost)
	_, err = f.pub.Publish(f.ctx, bad.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdatePublishMetadata(f.ctx, bad.ID, store.PublishMetadata{RepoFilename: "_posts/django/bad.md"}))

	violations, err := ValidateExports(f.ctx, f.store, "a")
	require.NoError(t, err)
	require.Len(t, violations, 1)
	require.Equal(t, bad.ID, violations[0].PostID)
	require.Equal(t, ViolationFilename, violations[0].Kind)

	_, err = ValidateExports(f.ctx, f.store, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}
