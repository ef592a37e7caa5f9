package reposync

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/blogsync/internal/export"
	"git.home.luguber.info/inful/blogsync/internal/render"
	"git.home.luguber.info/inful/blogsync/internal/store"
	"git.home.luguber.info/inful/blogsync/internal/workspace"
)

// seedClone pushes files to a fresh bare repository and clones it into the
// fixture's working copy.
func (f *fixture) seedClone(files map[string]string) {
	f.t.Helper()
	root := f.t.TempDir()
	bare := filepath.Join(root, "remote.git")
	gitCmd(f.t, root, "init", "--bare", bare)
	gitCmd(f.t, bare, "symbolic-ref", "HEAD", "refs/heads/main")
	seed := filepath.Join(root, "seed")
	gitCmd(f.t, root, "init", seed)
	gitCmd(f.t, seed, "symbolic-ref", "HEAD", "refs/heads/main")
	for rel, content := range files {
		p := filepath.Join(seed, filepath.FromSlash(rel))
		require.NoError(f.t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(f.t, os.WriteFile(p, []byte(content), 0o600))
	}
	gitCmd(f.t, seed, "add", ".")
	gitCmd(f.t, seed, "commit", "-m", "seed")
	gitCmd(f.t, seed, "push", bare, "HEAD:main")
	gitCmd(f.t, root, "clone", bare, f.repo)
}

func TestRun_SyncThenExportIsNoOp(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not on PATH")
	}
	f := newFixture(t)
	renderer := render.New(render.WithClock(func() time.Time { return fixedNow }))

	rendered, err := renderer.Render(f.ctx, f.site, store.Post{
		SiteID: f.site.ID, Slug: "django-tutorial", Status: store.StatusPublished,
		PublishedAt: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), SlugLocked: true,
		Content: "---\ncategories: [django]\nsubcluster: orm\n---\nHello Django\n",
	})
	require.NoError(t, err)
	require.Equal(t, "_posts/django/orm/2024-01-15-django-tutorial.md", rendered.Path)
	f.seedClone(map[string]string{"_config.yml": "title: blog\n", rendered.Path: rendered.Document})

	res, err := f.sync(Request{Apply: true})
	require.NoError(t, err)
	require.Len(t, res.Report.Sites["a"].Created, 1)
	post, err := f.store.PostBySlug(f.ctx, f.site.ID, "django-tutorial")
	require.NoError(t, err)
	head := gitOut(t, f.repo, "rev-parse", "HEAD")

	ex := export.New(f.store, f.cfg,
		export.WithRenderer(renderer),
		export.WithPushURL(func(remote string) (string, error) { return remote, nil }),
		export.WithClock(func() time.Time { return fixedNow }),
		export.WithLocker(workspace.NewLocker(0)),
	)
	out, err := ex.Export(f.ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, rendered.Path, out.Path)
	require.False(t, out.Written)
	require.False(t, out.Committed)
	require.False(t, out.Pushed)
	require.False(t, out.Moved)
	require.Equal(t, head, out.CommitSHA)

	raw, err := os.ReadFile(filepath.Join(f.repo, filepath.FromSlash(rendered.Path)))
	require.NoError(t, err)
	require.Equal(t, rendered.Document, string(raw))

	res, err = f.sync(Request{Apply: true})
	require.NoError(t, err)
	require.Len(t, res.Report.Sites["a"].Unchanged, 1)
}

func gitOut(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := exec.Command("git", append([]string{"-C", dir}, args...)...).Output()
	require.NoError(t, err)
	return string(out[:len(out)-1])
}
