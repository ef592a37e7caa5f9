package reposync

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/blogsync/internal/forge"
	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/git"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

// File is one Markdown file read from a repository.
type File struct {
	Path      string
	Content   string
	CommitSHA string
}

// Source enumerates the post files of a site.
type Source interface {
	Files(ctx context.Context, site store.Site) ([]File, error)
	Kind() string
}

// RemoteFiles is the part of the host API used to scan a repository.
type RemoteFiles interface {
	ListFiles(ctx context.Context, repo forge.Repo, dir string) ([]forge.Entry, error)
	GetFile(ctx context.Context, repo forge.Repo, p string) (forge.File, error)
	BranchHead(ctx context.Context, repo forge.Repo) (string, error)
}

// RemoteSource reads files through the host API.
type RemoteSource struct {
	Client RemoteFiles
}

// Kind implements Source.
func (RemoteSource) Kind() string { return "remote" }

// Files implements Source. Every file carries the branch head SHA at scan time.
func (s RemoteSource) Files(ctx context.Context, site store.Site) ([]File, error) {
	repo := forge.Repo{Owner: site.RepoOwner, Name: site.RepoName, Branch: site.DefaultBranch}
	head, err := s.Client.BranchHead(ctx, repo)
	if err != nil {
		return nil, err
	}
	entries, err := s.Client.ListFiles(ctx, repo, site.PostsDir)
	if err != nil {
		if forge.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []File
	for _, e := range entries {
		if e.Type != "file" || !isMarkdown(e.Path) {
			continue
		}
		f, err := s.Client.GetFile(ctx, repo, e.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, File{Path: e.Path, Content: f.Content, CommitSHA: head})
	}
	return out, nil
}

// LocalSource walks a working copy on disk.
type LocalSource struct {
	RepoDir string
}

// Kind implements Source.
func (LocalSource) Kind() string { return "local" }

// Files implements Source. Every file carries the working copy's HEAD.
func (s LocalSource) Files(_ context.Context, site store.Site) ([]File, error) {
	var head string
	if git.IsWorkingCopy(s.RepoDir) {
		info, err := git.Inspect(s.RepoDir)
		if err != nil {
			return nil, err
		}
		head = info.Head
	}

	root := filepath.Join(s.RepoDir, filepath.FromSlash(site.PostsDir))
	var out []File
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root && os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMarkdown(p) {
			return nil
		}
		raw, err := os.ReadFile(p) // #nosec G304 -- path comes from walking the working copy
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.RepoDir, p)
		if err != nil {
			return err
		}
		out = append(out, File{Path: filepath.ToSlash(rel), Content: string(raw), CommitSHA: head})
		return nil
	})
	if err != nil {
		return nil, foundationerrors.FileSystemError("failed to scan working copy").
			WithCause(err).
			WithContext("path", root).
			Build()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func isMarkdown(p string) bool {
	return strings.EqualFold(path.Ext(filepath.ToSlash(p)), ".md")
}
