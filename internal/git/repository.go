package git

import (
	"os"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

// RepoInfo is a read-only snapshot of a working copy.
type RepoInfo struct {
	Path      string
	RemoteURL string
	Branch    string
	Head      string
}

// Origin returns the origin URL, or ErrNoRemote when none is configured.
func (i RepoInfo) Origin() (string, error) {
	if i.RemoteURL == "" {
		return "", foundationerrors.WrapError(ErrNoRemote, foundationerrors.CategoryConfig, "remote origin not configured").
			WithContext("path", i.Path).
			Build()
	}
	return i.RemoteURL, nil
}

// IsWorkingCopy reports whether dir is a directory containing a .git entry.
func IsWorkingCopy(dir string) bool {
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// Inspect opens dir with go-git and reports its origin URL, current branch
// and HEAD. A repository without commits has an empty Head and Branch.
func Inspect(dir string) (RepoInfo, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return RepoInfo{}, foundationerrors.WrapError(ErrNotRepository, foundationerrors.CategoryConfig, "cannot open working copy").
			WithContext("path", dir).
			WithContext("cause", err.Error()).
			Build()
	}
	info := RepoInfo{Path: dir}
	if remote, rerr := repo.Remote("origin"); rerr == nil {
		if urls := remote.Config().URLs; len(urls) > 0 {
			info.RemoteURL = urls[0]
		}
	}
	if ref, herr := repo.Head(); herr == nil {
		info.Head = ref.Hash().String()
		if ref.Name().IsBranch() {
			info.Branch = ref.Name().Short()
		}
	}
	return info, nil
}
