package frontmatter

import (
	"errors"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

const (
	delimiter = "---"
	bom       = "\ufeff"

	// crlfWindow is how many leading bytes are scanned for CRLF line endings.
	crlfWindow = 1000
)

var (
	// ErrInvalidFrontMatter is the cause of every classified front-matter rejection.
	ErrInvalidFrontMatter = errors.New("invalid front matter")

	// ErrMissingClosingDelimiter indicates the document started with a YAML
	// front-matter delimiter but did not contain a closing delimiter.
	ErrMissingClosingDelimiter = errors.New("yaml front matter start delimiter found but closing delimiter is missing")
)

var (
	fiveSpaceKey     = regexp.MustCompile(`(?m)^ {5}([A-Za-z0-9_][A-Za-z0-9_-]*:)`)
	trailingQuestion = regexp.MustCompile(`(?m)"\?\?[ \t]*$`)
)

// Split separates a `---` delimited header from the Markdown body.
//
// If the document does not start with a delimiter line, had is false and body
// is the full input.
func Split(content string) (header string, body string, had bool, err error) {
	open := delimiter + "\n"
	if !strings.HasPrefix(content, open) {
		return "", content, false, nil
	}
	rest := content[len(open):]

	if strings.HasPrefix(rest, open) {
		return "", rest[len(open):], true, nil
	}
	if rest == delimiter {
		return "", "", true, nil
	}

	if idx := strings.Index(rest, "\n"+delimiter+"\n"); idx >= 0 {
		return rest[:idx+1], rest[idx+len(delimiter)+2:], true, nil
	}
	if strings.HasSuffix(rest, "\n"+delimiter) {
		return rest[:len(rest)-len(delimiter)], "", true, nil
	}
	return "", "", false, ErrMissingClosingDelimiter
}

// Join reassembles a document from a serialized header and body.
func Join(header string, body string) string {
	var b strings.Builder
	b.Grow(len(header) + len(body) + 8)
	b.WriteString(delimiter + "\n")
	b.WriteString(header)
	if header != "" && !strings.HasSuffix(header, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(delimiter + "\n")
	b.WriteString(body)
	return b.String()
}

// RepairIndentation applies two textual repairs seen in hand-edited headers:
// five-space key indentation becomes four, and a stray `??` after a closing
// double quote is dropped.
func RepairIndentation(header string) string {
	header = fiveSpaceKey.ReplaceAllString(header, "    $1")
	return trailingQuestion.ReplaceAllString(header, `"`)
}

// CheckEncoding rejects content with a UTF-8 BOM or CRLF line endings near the top.
func CheckEncoding(content string) error {
	if strings.HasPrefix(content, bom) {
		return invalid("content starts with a UTF-8 BOM; save the file as UTF-8 without BOM")
	}
	window := content
	if len(window) > crlfWindow {
		window = window[:crlfWindow]
	}
	if strings.Contains(window, "\r\n") {
		return invalid("content uses CRLF line endings; convert to LF")
	}
	return nil
}

// Extract validates the encoding of content, parses its leading header and
// returns it with the remaining body. Content without a header yields an empty
// Document and the full content as body.
func Extract(content string) (*Document, string, error) {
	if err := CheckEncoding(content); err != nil {
		return nil, "", err
	}
	header, body, had, err := Split(content)
	if err != nil {
		return nil, "", foundationerrors.WrapError(ErrInvalidFrontMatter, foundationerrors.CategoryValidation, err.Error()).Build()
	}
	if !had {
		return NewDocument(), content, nil
	}
	doc, err := Parse(RepairIndentation(header))
	if err != nil {
		return nil, "", err
	}
	return doc, body, nil
}

// Parse parses a YAML header (without delimiters) into an ordered Document.
// Comments are dropped; a header that is not a mapping is rejected.
func Parse(header string) (*Document, error) {
	doc := NewDocument()
	if strings.TrimSpace(header) == "" {
		return doc, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(header), &root); err != nil {
		return nil, foundationerrors.WrapError(ErrInvalidFrontMatter, foundationerrors.CategoryValidation, "front matter is not valid YAML").
			WithContext("yaml_error", err.Error()).
			Build()
	}
	if len(root.Content) == 0 {
		return doc, nil
	}
	mapping := root.Content[0]
	if mapping.Kind == yaml.ScalarNode && mapping.ShortTag() == "!!null" {
		return doc, nil
	}
	if mapping.Kind != yaml.MappingNode {
		return nil, invalid("front matter must be a YAML mapping")
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		k, v := mapping.Content[i], mapping.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return nil, invalid("front matter keys must be scalars")
		}
		stripComments(v)
		doc.Set(k.Value, v)
	}
	return doc, nil
}

func stripComments(n *yaml.Node) {
	n.HeadComment, n.LineComment, n.FootComment = "", "", ""
	for _, c := range n.Content {
		stripComments(c)
	}
}

func invalid(msg string) error {
	return foundationerrors.WrapError(ErrInvalidFrontMatter, foundationerrors.CategoryValidation, msg).Build()
}
