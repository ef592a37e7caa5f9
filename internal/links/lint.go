package links

import (
	"context"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/blogsync/internal/frontmatter"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

// FindingKind classifies a lint finding.
type FindingKind string

const (
	FindingShortcode        FindingKind = "shortcode"
	FindingRawMarkdownLink  FindingKind = "raw_md_link"
	FindingEmptyDestination FindingKind = "empty_destination"
	FindingFrontMatter      FindingKind = "front_matter"
)

// Finding is one lint warning for a post.
type Finding struct {
	PostID  int64       `json:"post_id"`
	Slug    string      `json:"slug"`
	Kind    FindingKind `json:"kind"`
	Message string      `json:"message"`
}

// Linter reports shortcodes that fail to resolve and raw Markdown links that
// will break once the site is built.
type Linter struct {
	resolver *Resolver
	md       goldmark.Markdown
}

// NewLinter returns a Linter using resolver for shortcode checks.
func NewLinter(resolver *Resolver) *Linter {
	return &Linter{resolver: resolver, md: goldmark.New()}
}

// LintPost returns the findings for one post of site.
func (l *Linter) LintPost(ctx context.Context, site store.Site, post store.Post) []Finding {
	finding := func(kind FindingKind, msg string) Finding {
		return Finding{PostID: post.ID, Slug: post.Slug, Kind: kind, Message: msg}
	}

	content, err := frontmatter.MergeLeadingBlocks(post.Content)
	if err != nil {
		return []Finding{finding(FindingFrontMatter, err.Error())}
	}
	_, body, err := frontmatter.Extract(content)
	if err != nil {
		return []Finding{finding(FindingFrontMatter, err.Error())}
	}

	var out []Finding
	_, errs := l.resolver.Resolve(ctx, site, body)
	for _, e := range errs {
		out = append(out, finding(FindingShortcode, e.Error()))
	}
	for _, dest := range l.linkDestinations([]byte(body)) {
		switch {
		case strings.TrimSpace(dest) == "":
			out = append(out, finding(FindingEmptyDestination, "link with empty destination"))
		case isRawMarkdownLink(dest):
			out = append(out, finding(FindingRawMarkdownLink, "link points at a Markdown source file: "+dest+" (use [[post:...]] or [[path:...]])"))
		}
	}
	return out
}

func (l *Linter) linkDestinations(body []byte) []string {
	root := l.md.Parser().Parse(text.NewReader(body))
	var out []string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if link, ok := n.(*gmast.Link); ok {
			out = append(out, string(link.Destination))
		}
		return gmast.WalkContinue, nil
	})
	return out
}

func isRawMarkdownLink(dest string) bool {
	u, err := url.Parse(dest)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".md")
}
