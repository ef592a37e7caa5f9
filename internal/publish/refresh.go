package publish

import (
	"context"
	"errors"
	"log/slog"

	"git.home.luguber.info/inful/blogsync/internal/forge"
	"git.home.luguber.info/inful/blogsync/internal/hashing"
	"git.home.luguber.info/inful/blogsync/internal/logfields"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

// DriftStatus is the outcome of comparing a post with its published file.
type DriftStatus string

const (
	DriftOK      DriftStatus = "ok"
	DriftAbsent  DriftStatus = "drift_absent"
	DriftContent DriftStatus = "drift_content"
	// DriftError carries a forge error kind in RefreshResult.ErrorKind.
	DriftError DriftStatus = "error"
)

// RefreshResult is the drift report for one post.
type RefreshResult struct {
	PostID     int64       `json:"post_id"`
	Slug       string      `json:"slug"`
	Path       string      `json:"path"`
	Status     DriftStatus `json:"status"`
	LocalHash  string      `json:"local_hash,omitempty"`
	RemoteHash string      `json:"remote_hash,omitempty"`
	ErrorKind  string      `json:"error_kind,omitempty"`
	Message    string      `json:"message,omitempty"`
}

// Refresh compares each post with the file at its published path. Both sides
// are fingerprinted through the same canonicalization. Nothing is written to
// the remote.
func (p *Publisher) Refresh(ctx context.Context, postIDs []int64) ([]RefreshResult, error) {
	out := make([]RefreshResult, 0, len(postIDs))
	for _, id := range postIDs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		post, site, err := p.load(ctx, id)
		if err != nil {
			return out, err
		}
		r := p.refresh(ctx, site, post)
		status := store.JobSuccess
		if r.Status == DriftError {
			status = store.JobFailed
		}
		p.recordJob(ctx, site, post, store.ActionRefresh, status, r.Path, "", string(r.Status))
		slog.Info("Refreshed post",
			logfields.Site(site.Slug), logfields.PostID(post.ID), logfields.Path(r.Path),
			slog.String("status", string(r.Status)))
		out = append(out, r)
	}
	return out, nil
}

func (p *Publisher) refresh(ctx context.Context, site store.Site, post store.Post) RefreshResult {
	r := RefreshResult{PostID: post.ID, Slug: post.Slug}
	fail := func(err error) RefreshResult {
		r.Status, r.ErrorKind, r.Message = DriftError, forge.Kind(err), err.Error()
		return r
	}
	if err := requireRemote(site); err != nil {
		return fail(err)
	}
	rendered, _, err := p.renderForPublish(ctx, site, post)
	if err != nil {
		r.Status, r.ErrorKind, r.Message = DriftError, "invalid", err.Error()
		return r
	}
	r.Path, r.LocalHash = publishedPath(post, rendered.Path), rendered.Fingerprints.Published

	file, err := p.remote.GetFile(ctx, repoOf(site), r.Path)
	if err != nil {
		if errors.Is(err, forge.ErrNotFound) {
			r.Status = DriftAbsent
			return r
		}
		return fail(err)
	}
	remote, err := hashing.ComputeDocument(file.Content)
	if err != nil {
		r.Status, r.Message = DriftContent, err.Error()
		return r
	}
	r.RemoteHash = remote.Published
	if r.RemoteHash == r.LocalHash {
		r.Status = DriftOK
	} else {
		r.Status = DriftContent
	}
	return r
}

// publishedPath prefers the path recorded by the last publish.
func publishedPath(post store.Post, rendered string) string {
	if post.RepoFilename != "" {
		return post.RepoFilename
	}
	return rendered
}
