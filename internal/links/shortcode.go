// Package links expands authored [[...]] shortcodes into Jekyll links and
// checks bodies for link problems.
package links

import (
	"regexp"
	"strings"

	"git.home.luguber.info/inful/blogsync/internal/slug"
)

// Kind is the shortcode type prefix.
type Kind string

const (
	KindPost Kind = "post"
	KindPath Kind = "path"
	KindExt  Kind = "ext"
)

var shortcodePattern = regexp.MustCompile(`\[\[(post|path|ext):([^\]|]+)(?:\|([^\]]*))?\]\]`)

// Shortcode is one match found in a body.
type Shortcode struct {
	Raw    string
	Kind   Kind
	Target string
	Anchor string
	Text   string

	start, end int
}

// Scan returns the shortcodes in body in order of appearance. Anchors of post
// and path targets are split off and slugified; ext targets are kept whole.
func Scan(body string) []Shortcode {
	matches := shortcodePattern.FindAllStringSubmatchIndex(body, -1)
	out := make([]Shortcode, 0, len(matches))
	for _, m := range matches {
		sc := Shortcode{
			Raw:    body[m[0]:m[1]],
			Kind:   Kind(body[m[2]:m[3]]),
			Target: strings.TrimSpace(body[m[4]:m[5]]),
			start:  m[0],
			end:    m[1],
		}
		if m[6] >= 0 {
			sc.Text = strings.TrimSpace(body[m[6]:m[7]])
		}
		if sc.Kind != KindExt {
			if i := strings.IndexByte(sc.Target, '#'); i >= 0 {
				sc.Anchor = slug.Slugify(sc.Target[i+1:])
				sc.Target = strings.TrimSpace(sc.Target[:i])
			}
		}
		out = append(out, sc)
	}
	return out
}

func (sc Shortcode) withAnchor(url string) string {
	if sc.Anchor == "" {
		return url
	}
	return url + "#" + sc.Anchor
}

// liquidRelativeURL wraps a site-relative URL for the downstream Jekyll build.
func liquidRelativeURL(url string) string {
	return "{{ '" + url + "' | relative_url }}"
}
