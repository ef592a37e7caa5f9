// Package slug builds and checks the URL-safe identifiers used for posts,
// categories and anchors.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength is the longest slug the audit accepts.
const MaxLength = 75

var (
	validPattern       = regexp.MustCompile(`^[a-z0-9-]+$`)
	partialDatePattern = regexp.MustCompile(`^\d{2}-\d{2}-`)
)

// Slugify lowercases s, folds accented letters to ASCII and collapses every run
// of other characters into a single hyphen. Leading and trailing hyphens are trimmed.
func Slugify(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(strings.TrimSpace(folded))

	var b strings.Builder
	prev := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// IsValid reports whether s is a non-empty slug made of [a-z0-9-].
func IsValid(s string) bool {
	return validPattern.MatchString(s)
}

// WarningCode identifies one slug audit finding.
type WarningCode string

const (
	WarnLeadingPartialDate WarningCode = "leading_partial_date"
	WarnTooLong            WarningCode = "too_long"
	WarnInvalidChars       WarningCode = "invalid_chars"
	WarnEmpty              WarningCode = "empty"
)

// Warning is a single audit finding for a candidate slug.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

// Audit returns the problems found in a candidate slug; nil means it is clean.
//
// A slug such as "01-15-my-post" usually means a filename date was only
// partially stripped, so it is flagged even though the characters are valid.
func Audit(s string) []Warning {
	if s == "" {
		return []Warning{{Code: WarnEmpty, Message: "slug is empty"}}
	}
	var out []Warning
	if partialDatePattern.MatchString(s) {
		out = append(out, Warning{Code: WarnLeadingPartialDate, Message: "slug starts with a partial date: " + s})
	}
	if len(s) > MaxLength {
		out = append(out, Warning{Code: WarnTooLong, Message: "slug is longer than 75 characters: " + s})
	}
	if !IsValid(s) {
		out = append(out, Warning{Code: WarnInvalidChars, Message: "slug contains characters outside [a-z0-9-]: " + s})
	}
	return out
}
