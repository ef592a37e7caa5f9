package reposync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/git"
	"git.home.luguber.info/inful/blogsync/internal/logfields"
	"git.home.luguber.info/inful/blogsync/internal/publish"
	"git.home.luguber.info/inful/blogsync/internal/store"
	"git.home.luguber.info/inful/blogsync/internal/workspace"
)

// ErrConfirmRequired is returned when posts would be deleted without confirmation.
var ErrConfirmRequired = errors.New("deletion requires confirmation")

// ArchiveDir is the repository directory that receives files of deleted posts.
const ArchiveDir = "archive"

// DeleteSummary records what a deletion removed.
type DeleteSummary struct {
	Mode       publish.DeleteMode `json:"mode"`
	PostIDs    []int64            `json:"post_ids"`
	Archived   []string           `json:"archived,omitempty"`
	CommitSHAs map[string]string  `json:"commit_shas,omitempty"`
	BackupPath string             `json:"backup_path"`
}

type backupRow struct {
	ID             int64     `json:"id"`
	SiteID         int64     `json:"site_id"`
	AuthorID       int64     `json:"author_id,omitempty"`
	Title          string    `json:"title"`
	Slug           string    `json:"slug"`
	Status         string    `json:"status"`
	PublishedAt    time.Time `json:"published_at"`
	Content        string    `json:"content"`
	Description    string    `json:"description,omitempty"`
	CanonicalURL   string    `json:"canonical_url,omitempty"`
	RepoPath       string    `json:"repo_path,omitempty"`
	RepoFilename   string    `json:"repo_filename,omitempty"`
	LastExportPath string    `json:"last_export_path,omitempty"`
	ExportedHash   string    `json:"exported_hash,omitempty"`
	LastCommitSHA  string    `json:"last_commit_sha,omitempty"`
}

// deletePosts backs up the rows, archives their files in repo-and-db mode
// and deletes the rows.
func (s *Synchronizer) deletePosts(ctx context.Context, log *slog.Logger, runID string, req Request) (*DeleteSummary, error) {
	if !req.Confirm {
		return nil, foundationerrors.WrapError(ErrConfirmRequired, foundationerrors.CategoryValidation, "pass --confirm to delete posts").
			UserAction().
			Build()
	}
	posts, err := s.store.ListPosts(ctx, store.PostFilter{IDs: req.DeletePKs})
	if err != nil {
		return nil, err
	}
	if len(posts) != len(req.DeletePKs) {
		return nil, foundationerrors.NewError(foundationerrors.CategoryNotFound, "some posts to delete do not exist").
			WithContext("requested", len(req.DeletePKs)).
			WithContext("found", len(posts)).
			Build()
	}

	sum := &DeleteSummary{
		Mode:       req.DeleteMode,
		BackupPath: filepath.Join(s.cfg.Sync.ReportDir, "sync-delete-backup-"+runID+".json"),
	}
	rows := make([]backupRow, 0, len(posts))
	for _, p := range posts {
		rows = append(rows, backupRow{
			ID: p.ID, SiteID: p.SiteID, AuthorID: p.AuthorID, Title: p.Title, Slug: p.Slug,
			Status: string(p.Status), PublishedAt: p.PublishedAt, Content: p.Content,
			Description: p.Description, CanonicalURL: p.CanonicalURL, RepoPath: p.RepoPath,
			RepoFilename: p.RepoFilename, LastExportPath: p.LastExportPath,
			ExportedHash: p.ExportedHash, LastCommitSHA: p.LastCommitSHA,
		})
	}
	if err := writeJSON(sum.BackupPath, rows); err != nil {
		return nil, err
	}
	log.Info("Backed up posts before deletion", logfields.Path(sum.BackupPath), slog.Int("posts", len(rows)))

	bySite := map[int64][]store.Post{}
	var siteOrder []int64
	for _, p := range posts {
		if _, ok := bySite[p.SiteID]; !ok {
			siteOrder = append(siteOrder, p.SiteID)
		}
		bySite[p.SiteID] = append(bySite[p.SiteID], p)
	}

	action := store.ActionDeleteDBOnly
	if req.DeleteMode == publish.DeleteRepoAndDB {
		action = store.ActionDeleteRepoAndDB
	}
	for _, siteID := range siteOrder {
		site, err := s.store.SiteByID(ctx, siteID)
		if err != nil {
			return sum, err
		}
		if req.DeleteMode == publish.DeleteRepoAndDB {
			archived, sha, err := s.archive(ctx, runID, site, bySite[siteID])
			if err != nil {
				return sum, err
			}
			sum.Archived = append(sum.Archived, archived...)
			if sha != "" {
				if sum.CommitSHAs == nil {
					sum.CommitSHAs = map[string]string{}
				}
				sum.CommitSHAs[site.Slug] = sha
			}
		}
		for _, p := range bySite[siteID] {
			if err := s.store.DeletePost(ctx, p.ID); err != nil {
				return sum, err
			}
			sum.PostIDs = append(sum.PostIDs, p.ID)
			if _, err := s.store.RecordExportJob(ctx, store.ExportJob{
				PostID: p.ID, SiteID: site.ID, Action: action, Status: store.JobSuccess,
				CommitSHA: sum.CommitSHAs[site.Slug], Path: postFile(p), Branch: site.DefaultBranch,
				Message: "run " + runID,
			}); err != nil {
				log.Warn("Failed to record export job", logfields.PostID(p.ID), logfields.Error(err))
			}
			log.Info("Deleted post", logfields.Site(site.Slug), logfields.PostID(p.ID), logfields.Slug(p.Slug))
		}
		if _, err := s.store.RecordAudit(ctx, runID, "delete", site.ID, sum); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// archive moves the files of posts to archive/<run_id>/ in the working copy
// and commits the move. It returns the archived destination paths and the
// commit SHA, empty when nothing was moved.
func (s *Synchronizer) archive(ctx context.Context, runID string, site store.Site, posts []store.Post) ([]string, string, error) {
	dir, err := workspace.RepoDir(site.RepoPath, s.cfg.RepoBase, site.Slug)
	if err != nil {
		return nil, "", err
	}
	driver, err := git.NewDriver(dir, s.identity)
	if err != nil {
		return nil, "", err
	}
	release, err := s.locker.Acquire(ctx, dir)
	if err != nil {
		return nil, "", err
	}
	defer release()

	var archived []string
	for _, p := range posts {
		rel := postFile(p)
		if rel == "" {
			continue
		}
		src := filepath.Join(dir, filepath.FromSlash(rel))
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dstRel := path.Join(ArchiveDir, runID, rel)
		dst := filepath.Join(dir, filepath.FromSlash(dstRel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return archived, "", foundationerrors.FileSystemError("cannot create archive directory").WithCause(err).WithContext("path", dst).Build()
		}
		if err := os.Rename(src, dst); err != nil {
			return archived, "", foundationerrors.FileSystemError("cannot archive post file").WithCause(err).WithContext("path", src).Build()
		}
		toStage := []string{dstRel}
		if tracked, err := driver.IsTracked(ctx, rel); err != nil {
			return archived, "", err
		} else if tracked {
			toStage = append(toStage, rel)
		}
		if err := driver.Add(ctx, toStage...); err != nil {
			return archived, "", err
		}
		archived = append(archived, dstRel)
	}
	if len(archived) == 0 {
		return nil, "", nil
	}
	staged, err := driver.HasStagedChanges(ctx)
	if err != nil || !staged {
		return archived, "", err
	}
	if err := driver.Commit(ctx, fmt.Sprintf("Archive %d deleted post(s) (sync run %s)", len(archived), runID)); err != nil {
		return archived, "", err
	}
	sha, err := driver.Head(ctx)
	return archived, sha, err
}

// postFile is the repository path recorded for p.
func postFile(p store.Post) string {
	switch {
	case p.RepoPath != "":
		return p.RepoPath
	case p.LastExportPath != "":
		return p.LastExportPath
	default:
		return p.RepoFilename
	}
}
