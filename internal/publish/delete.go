package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/blogsync/internal/forge"
	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/foundation/normalization"
	"git.home.luguber.info/inful/blogsync/internal/logfields"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

// ErrRepoDeleteDisabled is returned for repo deletions when the config gate is
// closed and force was not given.
var ErrRepoDeleteDisabled = errors.New("repository deletion is disabled")

// DeleteMode selects what Delete removes.
type DeleteMode string

const (
	DeleteDBOnly    DeleteMode = "db-only"
	DeleteRepoAndDB DeleteMode = "repo-and-db"
)

var deleteModes = normalization.NewEnum("delete mode", DeleteDBOnly, DeleteRepoAndDB)

// ParseDeleteMode accepts the CLI spellings of a mode.
func ParseDeleteMode(s string) (DeleteMode, error) {
	mode, err := deleteModes.Parse(s)
	if err != nil {
		return "", foundationerrors.WrapError(err, foundationerrors.CategoryValidation, "unknown delete mode").
			WithContext("allowed", deleteModes.Keys()).
			Build()
	}
	return mode, nil
}

// DeleteResult describes one Delete call.
type DeleteResult struct {
	PostID       int64
	Mode         DeleteMode
	Path         string
	RemoteStatus forge.DeleteStatus
	CommitSHA    string
}

// Delete removes a post row, and in repo-and-db mode its published file
// first. A file that is already gone counts as deleted. The row is kept
// when the remote delete fails.
func (p *Publisher) Delete(ctx context.Context, postID int64, mode DeleteMode, force bool) (DeleteResult, error) {
	res := DeleteResult{PostID: postID, Mode: mode}
	post, site, err := p.load(ctx, postID)
	if err != nil {
		return res, err
	}
	log := slog.With(logfields.Site(site.Slug), logfields.PostID(post.ID), logfields.Action(string(mode)))

	action := store.ActionDeleteDBOnly
	if mode == DeleteRepoAndDB {
		action = store.ActionDeleteRepoAndDB
		if !p.cfg.Delete.AllowRepoDelete && !force {
			return res, foundationerrors.WrapError(ErrRepoDeleteDisabled, foundationerrors.CategoryConfig,
				"set delete.allow_repo_delete or pass --force to delete published files").
				UserAction().
				Build()
		}
		if err := requireRemote(site); err != nil {
			return res, err
		}
		res.Path = post.RepoFilename
		if res.Path == "" {
			rendered, _, rerr := p.renderForPublish(ctx, site, post)
			if rerr != nil {
				return res, rerr
			}
			res.Path = rendered.Path
		}
		dr, err := p.remote.DeleteFile(ctx, repoOf(site), res.Path, fmt.Sprintf("Delete %s", post.Slug))
		if err != nil {
			log.Error("Remote delete failed", logfields.Path(res.Path), logfields.Error(err))
			p.recordJob(ctx, site, post, action, store.JobFailed, res.Path, "", err.Error())
			return res, err
		}
		res.RemoteStatus, res.CommitSHA = dr.Status, dr.CommitSHA
	}

	if err := p.store.DeletePost(ctx, post.ID); err != nil {
		p.recordJob(ctx, site, post, action, store.JobFailed, res.Path, res.CommitSHA, err.Error())
		return res, err
	}
	p.recordJob(ctx, site, post, action, store.JobSuccess, res.Path, res.CommitSHA, string(res.RemoteStatus))
	log.Info("Deleted post", logfields.Path(res.Path), logfields.Commit(res.CommitSHA))
	return res, nil
}
