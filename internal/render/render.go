// Package render composes the exported Markdown document of a post.
package render

import (
	"context"
	"fmt"
	"time"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/frontmatter"
	"git.home.luguber.info/inful/blogsync/internal/hashing"
	"git.home.luguber.info/inful/blogsync/internal/routing"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

// HeaderDateLayout is the format of the `date` header key.
const HeaderDateLayout = "2006-01-02 15:04:05"

// serverKeys always come from the renderer, whatever the author wrote.
var serverKeys = map[string]bool{
	frontmatter.KeyLayout:     true,
	frontmatter.KeyDate:       true,
	frontmatter.KeyCategories: true,
	frontmatter.KeySubcluster: true,
}

// Result is a rendered post and everything derived from it.
type Result struct {
	Document     string
	Header       *frontmatter.Document
	Body         string
	Taxonomy     frontmatter.Taxonomy
	Slug         string
	Date         time.Time
	Path         string
	Permalink    string
	Fingerprints hashing.Fingerprints
	LinkErrors   []error
}

// Renderable produces the exported document of a post. Exporter and publisher
// take one so callers can substitute their own rendering.
type Renderable interface {
	Render(ctx context.Context, site store.Site, post store.Post) (Result, error)
}

// LinkResolver expands shortcodes in a body. Failed shortcodes stay in place
// and are reported alongside the resolved text.
type LinkResolver interface {
	Resolve(ctx context.Context, site store.Site, body string) (string, []error)
}

// Renderer is the default Renderable.
type Renderer struct {
	links LinkResolver
	now   func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLinkResolver enables shortcode expansion.
func WithLinkResolver(r LinkResolver) Option {
	return func(rr *Renderer) { rr.links = r }
}

// WithClock sets the fallback clock used when a post has no dates.
func WithClock(now func() time.Time) Option {
	return func(rr *Renderer) { rr.now = now }
}

// New returns a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render validates the post's header and composes its export.
func (r *Renderer) Render(ctx context.Context, site store.Site, post store.Post) (Result, error) {
	content, err := frontmatter.MergeLeadingBlocks(post.Content)
	if err != nil {
		return Result{}, err
	}
	authored, body, err := frontmatter.Extract(content)
	if err != nil {
		return Result{}, err
	}
	tax, err := frontmatter.ValidateTaxonomy(authored)
	if err != nil {
		return Result{}, err
	}

	postSlug := post.Slug
	if postSlug == "" {
		postSlug, _ = authored.NonEmptyString(frontmatter.KeySlug)
	}
	title := post.Title
	if t, ok := authored.NonEmptyString(frontmatter.KeyTitle); ok {
		title = t
	}
	postSlug, err = routing.ResolveSlug(postSlug, title)
	if err != nil {
		return Result{}, err
	}
	if fmSlug, ok := authored.NonEmptyString(frontmatter.KeySlug); ok && post.IsPublished() && fmSlug != postSlug {
		return Result{}, foundationerrors.WrapError(routing.ErrSlugMismatch, foundationerrors.CategoryValidation,
			fmt.Sprintf("front matter slug %q differs from post slug %q: rename the post with a redirect, or align the front matter slug", fmSlug, postSlug)).
			WithContext("post_id", post.ID).
			Build()
	}

	date := routing.PostDate(routing.Dates{
		PublishedAt: post.PublishedAt,
		UpdatedAt:   post.UpdatedAt,
		CreatedAt:   post.CreatedAt,
	}, r.now)

	header := buildHeader(authored, tax, date, post)

	var linkErrs []error
	if r.links != nil {
		body, linkErrs = r.links.Resolve(ctx, site, body)
	}
	body = hashing.CanonicalBody(body)

	serialized, err := frontmatter.Serialize(header)
	if err != nil {
		return Result{}, foundationerrors.WrapError(err, foundationerrors.CategoryInternal, "serialize front matter").Build()
	}
	document := frontmatter.Join(serialized, "\n"+body)

	fp, err := hashing.ComputeDocument(document)
	if err != nil {
		return Result{}, err
	}

	relPath := routing.Path(site.PostsDir, tax, date, postSlug)
	if post.IsPublished() {
		if err := routing.CheckSlugMatch(post.Slug, relPath); err != nil {
			return Result{}, err
		}
	}

	return Result{
		Document:     document,
		Header:       header,
		Body:         body,
		Taxonomy:     tax,
		Slug:         postSlug,
		Date:         date,
		Path:         relPath,
		Permalink:    routing.Permalink(tax, postSlug),
		Fingerprints: fp,
		LinkErrors:   linkErrs,
	}, nil
}

// buildHeader puts the server-owned keys first, then the author's keys in
// their original order, then description and canonical_url from the post
// when the author left them out.
func buildHeader(authored *frontmatter.Document, tax frontmatter.Taxonomy, date time.Time, post store.Post) *frontmatter.Document {
	h := frontmatter.NewDocument()
	h.SetString(frontmatter.KeyLayout, "post")
	h.Set(frontmatter.KeyDate, frontmatter.QuotedStringNode(date.UTC().Format(HeaderDateLayout)))
	h.SetStrings(frontmatter.KeyCategories, []string{tax.Cluster})
	if tax.HasSubcluster() {
		h.SetString(frontmatter.KeySubcluster, tax.Subcluster)
	}
	for _, f := range authored.Fields() {
		if serverKeys[f.Key] {
			continue
		}
		h.Set(f.Key, f.Value)
	}
	if post.Description != "" && !authored.Has(frontmatter.KeyDescription) {
		h.SetString(frontmatter.KeyDescription, post.Description)
	}
	if post.CanonicalURL != "" && !authored.Has(frontmatter.KeyCanonicalURL) {
		h.SetString(frontmatter.KeyCanonicalURL, post.CanonicalURL)
	}
	return h
}
