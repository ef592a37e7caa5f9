package reposync

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strings"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/frontmatter"
	"git.home.luguber.info/inful/blogsync/internal/hashing"
	"git.home.luguber.info/inful/blogsync/internal/slug"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

// Action is what a plan item does to the database.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionUnchanged Action = "unchanged"
	ActionInvalid   Action = "invalid"
)

// MatchKind names the tier that matched a file to a post.
type MatchKind string

const (
	MatchRepoPath MatchKind = "repo_path"
	MatchHash     MatchKind = "hash"
	MatchSlug     MatchKind = "slug"
	MatchTitle    MatchKind = "title"
)

// SlugSource says where a file's slug came from.
type SlugSource string

const (
	SlugFromFrontMatter SlugSource = "front_matter"
	SlugFromFilename    SlugSource = "filename"
)

// WarnTaxonomyInvalid flags a file whose categories/subcluster fail
// validation, e.g. the legacy "cluster/subcluster" form.
const WarnTaxonomyInvalid slug.WarningCode = "taxonomy_invalid"

var filenameSlugPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-(.+)$`)

// Item is the plan for one file.
type Item struct {
	Path       string         `json:"path"`
	Slug       string         `json:"slug"`
	SlugSource SlugSource     `json:"slug_source,omitempty"`
	Hash       string         `json:"hash,omitempty"`
	CommitSHA  string         `json:"commit_sha,omitempty"`
	Action     Action         `json:"action"`
	PostID     int64          `json:"post_id,omitempty"`
	MatchedBy  MatchKind      `json:"matched_by,omitempty"`
	Warnings   []slug.Warning `json:"warnings,omitempty"`
	Error      string         `json:"error,omitempty"`

	content     string
	frontMatter *frontmatter.Document
	body        string
	post        store.Post
}

// Plan is the planned reconciliation of one site.
type Plan struct {
	Site  store.Site
	Items []Item
	// DBRepoPaths counts the posts of the site that reference a repository file.
	DBRepoPaths int
}

// Warnings counts slug and taxonomy audit findings across the plan.
func (p Plan) Warnings() int {
	n := 0
	for _, it := range p.Items {
		n += len(it.Warnings)
	}
	return n
}

// Count returns the number of items with action a.
func (p Plan) Count(a Action) int {
	n := 0
	for _, it := range p.Items {
		if it.Action == a {
			n++
		}
	}
	return n
}

// BuildPlan parses files and matches each against the site's posts.
func BuildPlan(ctx context.Context, st *store.Store, site store.Site, files []File) (Plan, error) {
	plan := Plan{Site: site}
	paths, err := st.RepoPaths(ctx, site.ID)
	if err != nil {
		return plan, err
	}
	plan.DBRepoPaths = len(paths)

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f.Path] {
			continue
		}
		seen[f.Path] = true
		it, err := planFile(ctx, st, site, f)
		if err != nil {
			return plan, err
		}
		plan.Items = append(plan.Items, it)
	}
	return plan, nil
}

func planFile(ctx context.Context, st *store.Store, site store.Site, f File) (Item, error) {
	it := Item{Path: f.Path, CommitSHA: f.CommitSHA, content: f.Content}
	doc, body, err := frontmatter.Extract(f.Content)
	if err != nil {
		it.Action, it.Error = ActionInvalid, err.Error()
		return it, nil
	}
	fp, err := hashing.Compute(doc, body)
	if err != nil {
		it.Action, it.Error = ActionInvalid, err.Error()
		return it, nil
	}
	it.frontMatter, it.body, it.Hash = doc, body, fp.Exported
	it.Slug, it.SlugSource = deriveSlug(doc, f.Path)
	it.Warnings = slug.Audit(it.Slug)
	if _, err := frontmatter.ValidateTaxonomy(doc); err != nil {
		it.Warnings = append(it.Warnings, slug.Warning{Code: WarnTaxonomyInvalid, Message: taxonomyMessage(err)})
	}

	post, kind, err := match(ctx, st, site.ID, it)
	switch {
	case errors.Is(err, store.ErrNotFound):
		it.Action = ActionCreate
		return it, nil
	case err != nil:
		return it, err
	}
	it.post, it.PostID, it.MatchedBy = post, post.ID, kind
	if post.ExportedHash == it.Hash {
		it.Action = ActionUnchanged
	} else {
		it.Action = ActionUpdate
	}
	return it, nil
}

func taxonomyMessage(err error) string {
	if ce, ok := foundationerrors.AsClassified(err); ok {
		return ce.Message()
	}
	return err.Error()
}

// deriveSlug prefers the front matter slug and falls back to the part of
// the filename after its date.
func deriveSlug(doc *frontmatter.Document, p string) (string, SlugSource) {
	if s, ok := doc.NonEmptyString(frontmatter.KeySlug); ok {
		return strings.TrimSpace(s), SlugFromFrontMatter
	}
	base := strings.TrimSuffix(path.Base(p), path.Ext(p))
	if m := filenameSlugPattern.FindStringSubmatch(base); m != nil {
		return slug.Slugify(m[1]), SlugFromFilename
	}
	return slug.Slugify(base), SlugFromFilename
}

// match tries repo_path, then exported_hash, then slug, then title.
func match(ctx context.Context, st *store.Store, siteID int64, it Item) (store.Post, MatchKind, error) {
	title, _ := it.frontMatter.NonEmptyString(frontmatter.KeyTitle)
	tiers := []struct {
		kind   MatchKind
		lookup func() (store.Post, error)
	}{
		{MatchRepoPath, func() (store.Post, error) { return st.PostByRepoPath(ctx, siteID, it.Path) }},
		{MatchHash, func() (store.Post, error) { return st.PostByExportedHash(ctx, siteID, it.Hash) }},
		{MatchSlug, func() (store.Post, error) { return st.PostBySlug(ctx, siteID, it.Slug) }},
		{MatchTitle, func() (store.Post, error) { return st.PostByTitle(ctx, siteID, title) }},
	}
	for _, tier := range tiers {
		post, err := tier.lookup()
		if err == nil {
			return post, tier.kind, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.Post{}, "", err
		}
	}
	return store.Post{}, "", store.ErrNotFound
}
