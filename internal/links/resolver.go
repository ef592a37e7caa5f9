package links

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/blogsync/internal/config"
	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/frontmatter"
	"git.home.luguber.info/inful/blogsync/internal/routing"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

var (
	ErrUnresolvedLink   = errors.New("unresolved link")
	ErrAmbiguousLink    = errors.New("ambiguous link")
	ErrCrossSiteBlocked = errors.New("cross-site link blocked")
	ErrMissingDomain    = errors.New("target site has no domain")
)

// Target is a candidate post for a post shortcode.
type Target struct {
	Post store.Post
	Site store.Site
}

// Lookup finds posts by slug across all sites.
type Lookup interface {
	PostsBySlug(ctx context.Context, slug string) ([]Target, error)
}

// Resolver expands shortcodes against a Lookup.
type Resolver struct {
	lookup Lookup
	policy config.CrossSitePolicy
}

// NewResolver returns a Resolver applying policy to cross-site post links.
func NewResolver(lookup Lookup, policy config.CrossSitePolicy) *Resolver {
	if policy == "" {
		policy = config.CrossSiteAbsolute
	}
	return &Resolver{lookup: lookup, policy: policy}
}

// Resolve substitutes every shortcode it can resolve and leaves the rest in
// place, returning one error per failed shortcode.
func (r *Resolver) Resolve(ctx context.Context, site store.Site, body string) (string, []error) {
	codes := Scan(body)
	if len(codes) == 0 {
		return body, nil
	}
	var b strings.Builder
	var errs []error
	last := 0
	for _, sc := range codes {
		b.WriteString(body[last:sc.start])
		last = sc.end
		link, err := r.expand(ctx, site, sc)
		if err != nil {
			errs = append(errs, err)
			b.WriteString(sc.Raw)
			continue
		}
		b.WriteString(link)
	}
	b.WriteString(body[last:])
	return b.String(), errs
}

func (r *Resolver) expand(ctx context.Context, site store.Site, sc Shortcode) (string, error) {
	switch sc.Kind {
	case KindExt:
		text := sc.Text
		if text == "" {
			text = sc.Target
		}
		return "[" + text + "](" + sc.Target + ")", nil
	case KindPath:
		text := sc.Text
		if text == "" {
			text = sc.Target
		}
		return "[" + text + "](" + liquidRelativeURL(sc.withAnchor(sc.Target)) + ")", nil
	default:
		return r.expandPost(ctx, site, sc)
	}
}

func (r *Resolver) expandPost(ctx context.Context, site store.Site, sc Shortcode) (string, error) {
	candidates, err := r.lookup.PostsBySlug(ctx, sc.Target)
	if err != nil {
		return "", linkError(ErrUnresolvedLink, sc, "lookup failed: "+err.Error())
	}

	var target *Target
	var elsewhere []Target
	for i := range candidates {
		if candidates[i].Site.ID == site.ID {
			target = &candidates[i]
			break
		}
		elsewhere = append(elsewhere, candidates[i])
	}
	if target == nil {
		switch len(elsewhere) {
		case 0:
			return "", linkError(ErrUnresolvedLink, sc, fmt.Sprintf("no post with slug %q", sc.Target))
		case 1:
			target = &elsewhere[0]
		default:
			sites := make([]string, len(elsewhere))
			for i, t := range elsewhere {
				sites[i] = t.Site.Slug
			}
			return "", linkError(ErrAmbiguousLink, sc, fmt.Sprintf("slug %q exists on sites %s", sc.Target, strings.Join(sites, ", ")))
		}
	}

	permalink, err := permalinkOf(target.Post)
	if err != nil {
		return "", linkError(ErrUnresolvedLink, sc, fmt.Sprintf("target %q has no valid taxonomy: %v", sc.Target, err))
	}
	text := sc.Text
	if text == "" {
		text = target.Post.Title
	}
	if text == "" {
		text = target.Post.Slug
	}

	if target.Site.ID == site.ID {
		return "[" + text + "](" + liquidRelativeURL(sc.withAnchor(permalink)) + ")", nil
	}
	if r.policy == config.CrossSiteBlock {
		return "", linkError(ErrCrossSiteBlocked, sc, fmt.Sprintf("post %q belongs to site %q", sc.Target, target.Site.Slug))
	}
	if target.Site.Domain == "" {
		return "", linkError(ErrMissingDomain, sc, fmt.Sprintf("site %q has no domain configured", target.Site.Slug))
	}
	return "[" + text + "](https://" + target.Site.Domain + sc.withAnchor(permalink) + ")", nil
}

// permalinkOf derives the permalink from the taxonomy in the post's own header.
func permalinkOf(p store.Post) (string, error) {
	content, err := frontmatter.MergeLeadingBlocks(p.Content)
	if err != nil {
		return "", err
	}
	doc, _, err := frontmatter.Extract(content)
	if err != nil {
		return "", err
	}
	tax, err := frontmatter.ValidateTaxonomy(doc)
	if err != nil {
		return "", err
	}
	return routing.Permalink(tax, p.Slug), nil
}

func linkError(cause error, sc Shortcode, msg string) error {
	return foundationerrors.WrapError(cause, foundationerrors.CategoryLinks, msg).
		WithContext("shortcode", sc.Raw).
		Build()
}
