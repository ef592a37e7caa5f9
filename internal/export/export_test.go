package export

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/blogsync/internal/config"
	"git.home.luguber.info/inful/blogsync/internal/forge"
	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/git"
	"git.home.luguber.info/inful/blogsync/internal/render"
	"git.home.luguber.info/inful/blogsync/internal/store"
	"git.home.luguber.info/inful/blogsync/internal/workspace"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=other", "GIT_AUTHOR_EMAIL=other@example.com",
		"GIT_COMMITTER_NAME=other", "GIT_COMMITTER_EMAIL=other@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	return string(out)
}

type env struct {
	t     *testing.T
	ctx   context.Context
	bare  string
	work  string
	store *store.Store
	site  store.Site
	cfg   *config.Config
	prs   *fakePRs
}

type fakePRs struct{ heads []string }

func (f *fakePRs) OpenPullRequest(_ context.Context, _ forge.Repo, head, _, _, _ string) (forge.PullRequest, error) {
	f.heads = append(f.heads, head)
	return forge.PullRequest{Number: len(f.heads), HTMLURL: "https://host.example/pull/1"}, nil
}

func newEnv(t *testing.T) *env {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not on PATH")
	}
	root := t.TempDir()
	bare := filepath.Join(root, "remote.git")
	gitCmd(t, root, "init", "--bare", bare)
	gitCmd(t, bare, "symbolic-ref", "HEAD", "refs/heads/main")
	seed := filepath.Join(root, "seed")
	gitCmd(t, root, "init", seed)
	gitCmd(t, seed, "symbolic-ref", "HEAD", "refs/heads/main")
	require.NoError(t, os.WriteFile(filepath.Join(seed, "_config.yml"), []byte("title: blog\n"), 0o600))
	gitCmd(t, seed, "add", ".")
	gitCmd(t, seed, "commit", "-m", "seed")
	gitCmd(t, seed, "push", bare, "HEAD:main")

	work := filepath.Join(root, "work")
	gitCmd(t, root, "clone", bare, work)

	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:", store.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	site, err := st.UpsertSite(ctx, store.Site{
		Slug: "a", Name: "A", RepoOwner: "acme", RepoName: "blog-a", DefaultBranch: "main",
		RepoPath: work, PostsDir: "_posts", MediaDir: "assets", Domain: "a.example",
	})
	require.NoError(t, err)

	cfg := config.Default()
	return &env{t: t, ctx: ctx, bare: bare, work: work, store: st, site: site, cfg: cfg, prs: &fakePRs{}}
}

func (e *env) exporter(opts ...Option) *Exporter {
	base := []Option{
		WithPushURL(func(remote string) (string, error) { return remote, nil }),
		WithRenderer(render.New(render.WithClock(func() time.Time { return fixedNow }))),
		WithClock(func() time.Time { return fixedNow }),
		WithPullRequests(e.prs),
		WithLocker(workspace.NewLocker(0)),
	}
	return New(e.store, e.cfg, append(base, opts...)...)
}

func (e *env) post(slug, content string, published time.Time) store.Post {
	e.t.Helper()
	p := store.Post{
		SiteID: e.site.ID, Title: slug, Slug: slug, Content: content,
		Status: store.StatusPublished, PublishedAt: published, SlugLocked: true,
	}
	require.NoError(e.t, e.store.CreatePost(e.ctx, &p))
	return p
}

func (e *env) remoteFile(rel string) (string, bool) {
	cmd := exec.Command("git", "-C", e.bare, "show", "main:"+rel)
	out, err := cmd.Output()
	if err != nil {
		return "", false
	}
	return string(out), true
}

func TestExport_ClusterOnly(t *testing.T) {
	e := newEnv(t)
	p := e.post("django-tutorial", "---\ncategories: [django]\n---\nHello Django\n", time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	ex := e.exporter()

	res, err := ex.Export(e.ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "_posts/django/2024-01-15-django-tutorial.md", res.Path)
	require.True(t, res.Written)
	require.True(t, res.Committed)
	require.True(t, res.Pushed)
	require.Len(t, res.Hash, 10)

	content, ok := e.remoteFile(res.Path)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(content, "---\nlayout: post\ndate: '2024-01-15 12:00:00'\ncategories:\n- django\n---\n"), content)
	require.True(t, strings.HasSuffix(content, "\nHello Django\n"))

	got, err := e.store.GetPost(e.ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, res.Hash, got.ExportedHash)
	require.Equal(t, res.Path, got.LastExportPath)
	require.Equal(t, res.Path, got.RepoFilename)
	require.Equal(t, res.CommitSHA, got.LastCommitSHA)
	require.Equal(t, "success", got.ExportStatus)
	require.Equal(t, fixedNow, got.ExportedAt)
	require.Equal(t, strings.TrimSpace(gitCmd(t, e.bare, "rev-parse", "main")), got.LastCommitSHA)

	again, err := ex.Export(e.ctx, p.ID)
	require.NoError(t, err)
	require.False(t, again.Changed())
	require.Equal(t, res.Hash, again.Hash)

	jobs, err := e.store.ExportJobs(e.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, store.JobSuccess, jobs[0].Status)
	require.Empty(t, jobs[0].Message)
	require.Equal(t, store.MessageNoChanges, jobs[1].Message)
}

func TestExport_TaxonomyChangeMovesFile(t *testing.T) {
	e := newEnv(t)
	published := time.Date(2024, 1, 17, 8, 0, 0, 0, time.UTC)
	p := e.post("django-basics", "---\ncategories: [django]\nsubcluster: basics\n---\nBasics\n", published)
	ex := e.exporter()

	first, err := ex.Export(e.ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "_posts/django/basics/2024-01-17-django-basics.md", first.Path)

	p, err = e.store.GetPost(e.ctx, p.ID)
	require.NoError(t, err)
	p.Content = "---\ncategories: [django]\nsubcluster: advanced\n---\nBasics\n"
	require.NoError(t, e.store.SavePost(e.ctx, &p))

	moved, err := ex.Export(e.ctx, p.ID)
	require.NoError(t, err)
	require.True(t, moved.Moved)
	require.Equal(t, first.Path, moved.PreviousPath)
	require.Equal(t, "_posts/django/advanced/2024-01-17-django-basics.md", moved.Path)

	_, err = os.Stat(filepath.Join(e.work, "_posts/django/basics"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(e.work, "_posts/django/advanced/2024-01-17-django-basics.md"))
	require.NoError(t, err)

	tree := gitCmd(t, e.bare, "ls-tree", "-r", "--name-only", "main")
	require.Contains(t, tree, moved.Path)
	require.NotContains(t, tree, first.Path)

	got, err := e.store.GetPost(e.ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, moved.Path, got.LastExportPath)
}

func TestExport_CollisionIncrement(t *testing.T) {
	e := newEnv(t)
	taken := "_posts/django/2024-01-18-tutorial.md"
	require.NoError(t, os.MkdirAll(filepath.Join(e.work, "_posts/django"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(e.work, taken), []byte("someone else's post\n"), 0o600))
	gitCmd(t, e.work, "add", ".")
	gitCmd(t, e.work, "commit", "-m", "manual post")
	gitCmd(t, e.work, "push", "origin", "HEAD:main")

	p := e.post("tutorial", "---\ncategories: [django]\n---\nMine\n", time.Date(2024, 1, 18, 10, 0, 0, 0, time.UTC))
	res, err := e.exporter().Export(e.ctx, p.ID)
	require.NoError(t, err)
	require.True(t, res.Collision)
	require.Equal(t, "_posts/django/2024-01-18-tutorial-1.md", res.Path)

	raw, err := os.ReadFile(filepath.Join(e.work, taken))
	require.NoError(t, err)
	require.Equal(t, "someone else's post\n", string(raw))

	got, err := e.store.GetPost(e.ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, res.Path, got.LastExportPath)

	// The suffixed file is now the post's own and is reused.
	again, err := e.exporter().Export(e.ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, res.Path, again.Path)
	require.False(t, again.Changed())
}

func TestExport_CollisionFail(t *testing.T) {
	e := newEnv(t)
	e.cfg.Export.CollisionPolicy = config.CollisionFail
	other := e.post("older", "---\ncategories: [django]\n---\nOlder\n", time.Date(2024, 1, 18, 10, 0, 0, 0, time.UTC))
	require.NoError(t, e.store.UpdateRepoAssociation(e.ctx, other.ID, "_posts/django/2024-01-18-tutorial.md", ""))

	p := e.post("tutorial", "---\ncategories: [django]\n---\nMine\n", time.Date(2024, 1, 18, 10, 0, 0, 0, time.UTC))
	_, err := e.exporter().Export(e.ctx, p.ID)
	require.ErrorIs(t, err, ErrCollision)
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryConflict))

	got, err := e.store.GetPost(e.ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "failed", got.ExportStatus)
	require.Empty(t, got.ExportedHash)
}

func TestExport_NonFastForwardRebases(t *testing.T) {
	e := newEnv(t)
	p := e.post("rebased", "---\ncategories: [go]\n---\nBody\n", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	other := filepath.Join(t.TempDir(), "other")
	gitCmd(t, filepath.Dir(other), "clone", e.bare, other)
	require.NoError(t, os.WriteFile(filepath.Join(other, "about.md"), []byte("about\n"), 0o600))
	gitCmd(t, other, "add", ".")
	gitCmd(t, other, "commit", "-m", "about")
	gitCmd(t, other, "push", "origin", "HEAD:main")

	res, err := e.exporter().Export(e.ctx, p.ID)
	require.NoError(t, err)
	require.True(t, res.Pushed)
	require.Empty(t, res.DiagnosticBranch)

	tree := gitCmd(t, e.bare, "ls-tree", "-r", "--name-only", "main")
	require.Contains(t, tree, "about.md")
	require.Contains(t, tree, res.Path)
}

func TestExport_ConflictParksOnDiagnosticBranch(t *testing.T) {
	e := newEnv(t)
	e.cfg.Export.OpenConflictPR = true
	p := e.post("conflict", "---\ncategories: [go]\n---\nVersion one\n", time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC))
	ex := e.exporter()
	first, err := ex.Export(e.ctx, p.ID)
	require.NoError(t, err)

	other := filepath.Join(t.TempDir(), "other")
	gitCmd(t, filepath.Dir(other), "clone", e.bare, other)
	require.NoError(t, os.WriteFile(filepath.Join(other, first.Path), []byte("edited on the remote\n"), 0o600))
	gitCmd(t, other, "commit", "-am", "remote edit")
	gitCmd(t, other, "push", "origin", "HEAD:main")
	remoteHead := strings.TrimSpace(gitCmd(t, e.bare, "rev-parse", "main"))

	p, err = e.store.GetPost(e.ctx, p.ID)
	require.NoError(t, err)
	p.Content = "---\ncategories: [go]\n---\nVersion two\n"
	require.NoError(t, e.store.SavePost(e.ctx, &p))

	res, err := ex.Export(e.ctx, p.ID)
	require.Error(t, err)
	require.ErrorIs(t, err, git.ErrNonFastForward)
	require.Equal(t, "export-conflict-a-20240301T093000Z", res.DiagnosticBranch)
	require.NotEmpty(t, strings.TrimSpace(gitCmd(t, e.bare, "rev-parse", res.DiagnosticBranch)))
	require.Equal(t, remoteHead, strings.TrimSpace(gitCmd(t, e.bare, "rev-parse", "main")))
	require.Equal(t, []string{res.DiagnosticBranch}, e.prs.heads)
	require.Equal(t, "https://host.example/pull/1", res.PullRequestURL)

	require.Equal(t, "main", strings.TrimSpace(gitCmd(t, e.work, "rev-parse", "--abbrev-ref", "HEAD")))
	require.Equal(t, remoteHead, strings.TrimSpace(gitCmd(t, e.work, "rev-parse", "HEAD")))

	got, err := e.store.GetPost(e.ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "failed", got.ExportStatus)
	require.Equal(t, first.Hash, got.ExportedHash)

	jobs, err := e.store.ExportJobs(e.ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, store.JobFailed, jobs[len(jobs)-1].Status)
}

func TestExport_Preconditions(t *testing.T) {
	e := newEnv(t)
	draft := store.Post{SiteID: e.site.ID, Slug: "draft", Content: "---\ncategories: [go]\n---\nx\n"}
	require.NoError(t, e.store.CreatePost(e.ctx, &draft))
	_, err := e.exporter().Export(e.ctx, draft.ID)
	require.ErrorIs(t, err, ErrNotPublished)

	site := e.site
	site.RepoPath = filepath.Join(t.TempDir(), "missing")
	_, err = e.store.UpsertSite(e.ctx, site)
	require.NoError(t, err)
	p := e.post("orphan", "---\ncategories: [go]\n---\nx\n", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	_, err = e.exporter().Export(e.ctx, p.ID)
	require.ErrorIs(t, err, workspace.ErrRepoMissing)

	jobs, err := e.store.ExportJobs(e.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, store.JobFailed, jobs[0].Status)
}

func TestExport_RequiresOrigin(t *testing.T) {
	e := newEnv(t)
	gitCmd(t, e.work, "remote", "remove", "origin")
	p := e.post("no-origin", "---\ncategories: [go]\n---\nx\n", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	_, err := e.exporter().Export(e.ctx, p.ID)
	require.ErrorIs(t, err, git.ErrNoRemote)
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryConfig))
	_, statErr := os.Stat(filepath.Join(e.work, "_posts"))
	require.True(t, os.IsNotExist(statErr))
}

func TestExport_InvalidFrontMatterWritesNothing(t *testing.T) {
	e := newEnv(t)
	p := e.post("legacy", "---\ncategories: [django/tutorials]\n---\nx\n", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	_, err := e.exporter().Export(e.ctx, p.ID)
	require.Error(t, err)
	require.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryValidation))
	_, statErr := os.Stat(filepath.Join(e.work, "_posts"))
	require.True(t, os.IsNotExist(statErr))
}
