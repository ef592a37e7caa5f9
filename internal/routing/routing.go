// Package routing maps a post and its taxonomy to repository paths and public permalinks.
package routing

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/frontmatter"
	"git.home.luguber.info/inful/blogsync/internal/slug"
)

// FilenameDateLayout is the date prefix of every post filename.
const FilenameDateLayout = "2006-01-02"

var (
	// ErrSlugMismatch is the cause when a published post's slug differs from its filename.
	ErrSlugMismatch = errors.New("slug mismatch")
	// ErrEmptySlug is the cause when neither a slug nor a usable title is available.
	ErrEmptySlug = errors.New("empty slug")

	filenamePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-(.+)$`)
)

// Dates carries the timestamps the filename date is derived from. Zero values are absent.
type Dates struct {
	PublishedAt time.Time
	UpdatedAt   time.Time
	CreatedAt   time.Time
}

// PostDate returns the first present of published, updated and created time,
// falling back to now. The result is in UTC.
func PostDate(d Dates, now func() time.Time) time.Time {
	for _, t := range []time.Time{d.PublishedAt, d.UpdatedAt, d.CreatedAt} {
		if !t.IsZero() {
			return t.UTC()
		}
	}
	return now().UTC()
}

// ResolveSlug returns postSlug, or the slugified title when postSlug is empty.
func ResolveSlug(postSlug, title string) (string, error) {
	if s := strings.TrimSpace(postSlug); s != "" {
		return s, nil
	}
	if s := slug.Slugify(title); s != "" {
		return s, nil
	}
	return "", foundationerrors.WrapError(ErrEmptySlug, foundationerrors.CategoryValidation, "post has neither a slug nor a title to derive one from").Build()
}

// Filename returns `<YYYY-MM-DD>-<slug>.md`.
func Filename(date time.Time, postSlug string) string {
	return date.UTC().Format(FilenameDateLayout) + "-" + postSlug + ".md"
}

// Dir returns `<postsDir>/<cluster>[/<subcluster>]`.
func Dir(postsDir string, tax frontmatter.Taxonomy) string {
	parts := []string{postsDir, tax.Cluster}
	if tax.Subcluster != "" {
		parts = append(parts, tax.Subcluster)
	}
	return path.Join(parts...)
}

// Path returns the repository-relative file path of a post.
func Path(postsDir string, tax frontmatter.Taxonomy, date time.Time, postSlug string) string {
	return path.Join(Dir(postsDir, tax), Filename(date, postSlug))
}

// Permalink returns `/<cluster>/[<subcluster>/]<slug>/`.
func Permalink(tax frontmatter.Taxonomy, postSlug string) string {
	var b strings.Builder
	b.WriteString("/" + tax.Cluster + "/")
	if tax.Subcluster != "" {
		b.WriteString(tax.Subcluster + "/")
	}
	b.WriteString(postSlug + "/")
	return b.String()
}

// SplitFilename parses `<YYYY-MM-DD>-<rest>.md` from the base name of p.
func SplitFilename(p string) (date string, rest string, ok bool) {
	stem := strings.TrimSuffix(path.Base(p), ".md")
	m := filenamePattern.FindStringSubmatch(stem)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// SlugFromFilename returns the slugified remainder of a dated filename.
func SlugFromFilename(p string) (string, bool) {
	_, rest, ok := SplitFilename(p)
	if !ok {
		return "", false
	}
	s := slug.Slugify(rest)
	return s, s != ""
}

// CheckSlugMatch rejects a published post whose slug differs from the one in its filename.
func CheckSlugMatch(postSlug, relPath string) error {
	_, rest, ok := SplitFilename(relPath)
	if ok && rest == postSlug {
		return nil
	}
	return foundationerrors.WrapError(ErrSlugMismatch, foundationerrors.CategoryValidation,
		fmt.Sprintf("post slug %q does not match filename %q: rename the post with a redirect, or align the front matter slug with the filename", postSlug, path.Base(relPath))).
		WithContext("slug", postSlug).
		WithContext("path", relPath).
		Build()
}

// WithSuffix inserts `-n` before the extension: a/b.md, 2 -> a/b-2.md.
func WithSuffix(relPath string, n int) string {
	ext := path.Ext(relPath)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(relPath, ext), n, ext)
}

// MatchesCanonical reports whether relPath has the canonical shape for postSlug
// under postsDir: `<postsDir>/[<dirs>/]<Y>-<M>-<D>-<slug>.md`.
func MatchesCanonical(postsDir, postSlug, relPath string) bool {
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(strings.Trim(postsDir, "/")) + `/(.+/)?\d{4}-\d{1,2}-\d{1,2}-` + regexp.QuoteMeta(postSlug) + `\.md$`)
	return re.MatchString(relPath)
}
