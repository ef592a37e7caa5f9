package reposync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"git.home.luguber.info/inful/blogsync/internal/editorial"
	"git.home.luguber.info/inful/blogsync/internal/frontmatter"
	"git.home.luguber.info/inful/blogsync/internal/logfields"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

// Imported author used when a file names no known author.
const (
	ImportedAuthorName = "Imported"
	ImportedAuthorSlug = "imported"
)

var frontMatterDateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02",
}

// applyPlan writes the plan's create, update and unchanged items. Saves are
// made under editorial.WithoutExport so none of them schedules an export.
func (s *Synchronizer) applyPlan(ctx context.Context, log *slog.Logger, plan *Plan) error {
	ctx = editorial.WithoutExport(ctx)
	for i := range plan.Items {
		it := &plan.Items[i]
		var err error
		switch it.Action {
		case ActionCreate:
			err = s.create(ctx, plan.Site, it)
		case ActionUpdate:
			err = s.update(ctx, it)
		case ActionUnchanged:
			err = s.relink(ctx, it)
		default:
			continue
		}
		if err != nil {
			return err
		}
		log.Debug("Applied sync item", logfields.Path(it.Path), logfields.PostID(it.PostID), logfields.Action(string(it.Action)))
	}
	return nil
}

func (s *Synchronizer) create(ctx context.Context, site store.Site, it *Item) error {
	title, ok := it.frontMatter.NonEmptyString(frontmatter.KeyTitle)
	if !ok {
		title = it.Slug
	}
	description, _ := it.frontMatter.NonEmptyString(frontmatter.KeyDescription)
	author, err := s.resolveAuthor(ctx, site.ID, it.frontMatter)
	if err != nil {
		return err
	}
	post := store.Post{
		SiteID:      site.ID,
		AuthorID:    author.ID,
		Title:       title,
		Slug:        it.Slug,
		Content:     it.content,
		Description: description,
		Status:      store.StatusPublished,
		PublishedAt: s.publishedAt(it.frontMatter),
	}
	if _, err := s.editor.Save(ctx, &post); err != nil {
		return err
	}
	it.PostID = post.ID
	return s.store.UpdateSyncedContent(ctx, post.ID, store.SyncedContent{
		Content:       it.content,
		ExportedHash:  it.Hash,
		RepoPath:      it.Path,
		LastCommitSHA: it.CommitSHA,
		ExportedAt:    s.now().UTC(),
	})
}

func (s *Synchronizer) update(ctx context.Context, it *Item) error {
	if err := s.store.UpdateSyncedContent(ctx, it.PostID, store.SyncedContent{
		Content:       it.content,
		ExportedHash:  it.Hash,
		RepoPath:      it.Path,
		LastCommitSHA: it.CommitSHA,
		ExportedAt:    s.now().UTC(),
	}); err != nil {
		return err
	}
	post, err := s.store.GetPost(ctx, it.PostID)
	if err != nil {
		return err
	}
	return s.editor.SyncCategories(ctx, post)
}

// relink restores the repository association of an unchanged post whose
// repo_path is missing or stale.
func (s *Synchronizer) relink(ctx context.Context, it *Item) error {
	if it.post.RepoPath == it.Path {
		return nil
	}
	return s.store.UpdateRepoAssociation(ctx, it.PostID, it.Path, it.CommitSHA)
}

func (s *Synchronizer) resolveAuthor(ctx context.Context, siteID int64, doc *frontmatter.Document) (store.Author, error) {
	if name, ok := doc.NonEmptyString(frontmatter.KeyAuthor); ok {
		a, err := s.store.FindAuthor(ctx, siteID, strings.TrimSpace(name))
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.Author{}, err
		}
	}
	return s.store.EnsureAuthor(ctx, siteID, ImportedAuthorName, ImportedAuthorSlug)
}

func (s *Synchronizer) publishedAt(doc *frontmatter.Document) time.Time {
	if raw, ok := doc.NonEmptyString(frontmatter.KeyDate); ok {
		for _, layout := range frontMatterDateLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
				return t.UTC()
			}
		}
	}
	return s.now().UTC()
}
