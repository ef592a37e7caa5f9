package workspace

import (
	"errors"
	"os"
	"path/filepath"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

// ErrRepoMissing is returned when a site's working copy directory does not exist.
var ErrRepoMissing = errors.New("working copy missing")

// RepoDir returns the site's working copy: repoPath when set, otherwise
// <repoBase>/<siteSlug>. The directory must exist.
func RepoDir(repoPath, repoBase, siteSlug string) (string, error) {
	dir := repoPath
	if dir == "" {
		if repoBase == "" {
			return "", foundationerrors.WrapError(ErrRepoMissing, foundationerrors.CategoryConfig, "site has no repo_path and BLOG_REPO_BASE is unset").
				WithContext("site", siteSlug).
				Build()
		}
		dir = filepath.Join(repoBase, siteSlug)
	}
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return "", foundationerrors.WrapError(ErrRepoMissing, foundationerrors.CategoryConfig, "working copy directory does not exist").
			WithContext("site", siteSlug).
			WithContext("path", dir).
			Build()
	}
	return dir, nil
}
