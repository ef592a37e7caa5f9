package publish

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/blogsync/internal/frontmatter"
	"git.home.luguber.info/inful/blogsync/internal/routing"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

// ViolationKind classifies an export validator finding.
type ViolationKind string

const (
	ViolationFilename     ViolationKind = "filename"
	ViolationSlugMismatch ViolationKind = "slug_mismatch"
)

// Violation is one post whose recorded filename is not canonical.
type Violation struct {
	PostID  int64         `json:"post_id"`
	Site    string        `json:"site"`
	Slug    string        `json:"slug"`
	Path    string        `json:"path"`
	Kind    ViolationKind `json:"kind"`
	Message string        `json:"message"`
}

// ValidateExports checks the repo_filename of every published post, on one
// site or all sites when siteSlug is empty. The filename must have the shape
// `<posts_dir>/[<dirs>/]<Y>-<M>-<D>-<slug>.md` and any front matter slug must
// agree with the post slug.
func ValidateExports(ctx context.Context, st *store.Store, siteSlug string) ([]Violation, error) {
	var sites []store.Site
	if siteSlug != "" {
		site, err := st.SiteBySlug(ctx, siteSlug)
		if err != nil {
			return nil, err
		}
		sites = []store.Site{site}
	} else {
		var err error
		if sites, err = st.ListSites(ctx); err != nil {
			return nil, err
		}
	}

	var out []Violation
	for _, site := range sites {
		posts, err := st.ListPosts(ctx, store.PostFilter{SiteID: site.ID, Status: store.StatusPublished})
		if err != nil {
			return nil, err
		}
		for _, post := range posts {
			if post.RepoFilename == "" {
				continue
			}
			v := Violation{PostID: post.ID, Site: site.Slug, Slug: post.Slug, Path: post.RepoFilename}
			if !routing.MatchesCanonical(site.PostsDir, post.Slug, post.RepoFilename) {
				v.Kind = ViolationFilename
				v.Message = fmt.Sprintf("%s is not a canonical post filename for slug %q", post.RepoFilename, post.Slug)
				out = append(out, v)
				continue
			}
			if fmSlug := frontMatterSlug(post.Content); fmSlug != "" && fmSlug != post.Slug {
				v.Kind = ViolationSlugMismatch
				v.Message = fmt.Sprintf("front matter slug %q differs from post slug %q", fmSlug, post.Slug)
				out = append(out, v)
			}
		}
	}
	return out, nil
}

func frontMatterSlug(content string) string {
	doc, _, err := frontmatter.Extract(content)
	if err != nil {
		return ""
	}
	s, _ := doc.NonEmptyString(frontmatter.KeySlug)
	return s
}
