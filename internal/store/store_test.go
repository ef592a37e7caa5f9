package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

var testNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedSite(t *testing.T, s *Store, slug string) Site {
	t.Helper()
	site, err := s.UpsertSite(context.Background(), Site{Slug: slug, Name: slug, DefaultBranch: "main", PostsDir: "_posts", MediaDir: "assets", Domain: slug + ".example"})
	require.NoError(t, err)
	return site
}

func TestOpen_MigratesOnce(t *testing.T) {
	s := newTestStore(t)
	v, dirty, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint(1), v)
	require.False(t, dirty)
	require.NoError(t, s.Migrate())
}

func TestSites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := seedSite(t, s, "a")
	require.NotZero(t, a.ID)
	require.Equal(t, testNow, a.CreatedAt)
	require.False(t, a.HasRemote())

	a.RepoOwner, a.RepoName = "acme", "blog-a"
	updated, err := s.UpsertSite(ctx, a)
	require.NoError(t, err)
	require.Equal(t, a.ID, updated.ID)
	require.True(t, updated.HasRemote())

	_, err = s.SiteBySlug(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.True(t, errors.HasCategory(err, errors.CategoryNotFound))

	seedSite(t, s, "b")
	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 2)
}

func TestPosts_CRUDAndConstraints(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	site := seedSite(t, s, "a")

	p := &Post{SiteID: site.ID, Title: "Hello", Slug: "hello", Content: "body"}
	require.NoError(t, s.CreatePost(ctx, p))
	require.NotZero(t, p.ID)
	require.Equal(t, StatusDraft, p.Status)

	dup := &Post{SiteID: site.ID, Slug: "hello"}
	err := s.CreatePost(ctx, dup)
	require.ErrorIs(t, err, ErrConflict)

	// Published without published_at and slug lock violates the schema check.
	p.Status = StatusPublished
	require.Error(t, s.SavePost(ctx, p))

	p.PublishedAt = testNow
	p.SlugLocked = true
	require.NoError(t, s.SavePost(ctx, p))

	got, err := s.GetPost(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPublished, got.Status)
	require.Equal(t, testNow, got.PublishedAt)
	require.True(t, got.SlugLocked)

	bySlug, err := s.PostBySlug(ctx, site.ID, "hello")
	require.NoError(t, err)
	require.Equal(t, p.ID, bySlug.ID)

	byTitle, err := s.PostByTitle(ctx, site.ID, "HELLO")
	require.NoError(t, err)
	require.Equal(t, p.ID, byTitle.ID)

	list, err := s.ListPosts(ctx, PostFilter{SiteID: site.ID, Status: StatusPublished, IDs: []int64{p.ID, 999}})
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeletePost(ctx, p.ID))
	_, err = s.GetPost(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.DeletePost(ctx, p.ID), ErrNotFound)
}

func TestPosts_MetadataUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	site := seedSite(t, s, "a")
	p := &Post{SiteID: site.ID, Slug: "x", Content: "c"}
	require.NoError(t, s.CreatePost(ctx, p))

	require.NoError(t, s.UpdateExportMetadata(ctx, p.ID, ExportMetadata{
		ExportedHash: "abcdef0123", ExportedAt: testNow, LastExportPath: "_posts/t/2024-01-15-x.md",
		RepoFilename: "_posts/t/2024-01-15-x.md", LastCommitSHA: "c0ffee", ExportStatus: "success",
	}))
	got, err := s.GetPost(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "abcdef0123", got.ExportedHash)
	require.Equal(t, "_posts/t/2024-01-15-x.md", got.RepoPath)
	require.Empty(t, got.LastPublishedHash)

	byHash, err := s.PostByExportedHash(ctx, site.ID, "abcdef0123")
	require.NoError(t, err)
	require.Equal(t, p.ID, byHash.ID)

	byPath, err := s.PostByRepoPath(ctx, site.ID, "_posts/t/2024-01-15-x.md")
	require.NoError(t, err)
	require.Equal(t, p.ID, byPath.ID)

	require.NoError(t, s.UpdatePublishMetadata(ctx, p.ID, PublishMetadata{
		LastPublishedHash: "sha", LastCommitSHA: "beef", CanonicalURL: "https://a.example/t/x/",
	}))
	require.NoError(t, s.UpdatePublishMetadata(ctx, p.ID, PublishMetadata{
		LastPublishedHash: "sha2", CanonicalURL: "https://other/",
	}))
	got, err = s.GetPost(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "sha2", got.LastPublishedHash)
	require.Equal(t, "https://a.example/t/x/", got.CanonicalURL)

	require.NoError(t, s.UpdateSyncedContent(ctx, p.ID, SyncedContent{Content: "new", ExportedHash: "1111111111", RepoPath: "_posts/t/y.md"}))
	require.NoError(t, s.UpdateRepoAssociation(ctx, p.ID, "_posts/t/z.md", ""))
	got, err = s.GetPost(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "new", got.Content)
	require.Equal(t, "_posts/t/z.md", got.RepoPath)
	require.Equal(t, "_posts/t/z.md", got.LastExportPath)

	paths, err := s.RepoPaths(ctx, site.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"_posts/t/z.md"}, paths)
}

func TestCategoriesAndAuthors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	site := seedSite(t, s, "a")

	c1, err := s.EnsureCategory(ctx, site.ID, CategoryKey{Cluster: "django"})
	require.NoError(t, err)
	c2, err := s.EnsureCategory(ctx, site.ID, CategoryKey{Cluster: "django"})
	require.NoError(t, err)
	require.Equal(t, c1.ID, c2.ID)
	require.Equal(t, "Django", c1.Name)

	c3, err := s.EnsureCategory(ctx, site.ID, CategoryKey{Cluster: "django", Subcluster: "basics"})
	require.NoError(t, err)
	require.NotEqual(t, c1.ID, c3.ID)
	require.Equal(t, "Django / Basics", c3.Name)

	p := &Post{SiteID: site.ID, Slug: "x"}
	require.NoError(t, s.CreatePost(ctx, p))
	require.NoError(t, s.SetPostCategories(ctx, site.ID, p.ID, []CategoryKey{{Cluster: "django", Subcluster: "basics"}, {Cluster: "python"}}))
	cats, err := s.PostCategories(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	require.Equal(t, "django", cats[0].ClusterSlug)
	require.Equal(t, "python", cats[1].ClusterSlug)

	a, err := s.EnsureAuthor(ctx, site.ID, "Ada Lovelace", "ada")
	require.NoError(t, err)
	found, err := s.FindAuthor(ctx, site.ID, "ada lovelace")
	require.NoError(t, err)
	require.Equal(t, a.ID, found.ID)
	_, err = s.FindAuthor(ctx, site.ID, "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExportJobsAndAudits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	site := seedSite(t, s, "a")

	_, err := s.RecordExportJob(ctx, ExportJob{PostID: 7, SiteID: site.ID, Action: ActionPublish, Status: JobSuccess, Message: MessageNoChanges})
	require.NoError(t, err)
	ok, err := s.HasSuccessfulJob(ctx, 7, ActionPublish)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.RecordExportJob(ctx, ExportJob{PostID: 7, SiteID: site.ID, Action: ActionPublish, Status: JobSuccess, CommitSHA: "abc"})
	require.NoError(t, err)
	ok, err = s.HasSuccessfulJob(ctx, 7, ActionPublish)
	require.NoError(t, err)
	require.True(t, ok)

	jobs, err := s.ExportJobs(ctx, 7)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, testNow, jobs[0].CreatedAt)

	_, err = s.RecordAudit(ctx, "run-1", "sync", site.ID, map[string]int{"created": 2})
	require.NoError(t, err)
	_, err = s.RecordAudit(ctx, "run-1", "delete", 0, map[string]string{"mode": "db-only"})
	require.NoError(t, err)
	audits, err := s.Audits(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, audits, 2)
	require.Zero(t, audits[1].SiteID)

	var summary map[string]int
	require.NoError(t, json.Unmarshal(audits[0].Summary, &summary))
	require.Equal(t, 2, summary["created"])
}
