package frontmatter

import "strings"

// PlaceholderTitle is the title the editor assigns to a fresh draft.
const PlaceholderTitle = "nuovo post"

// MergeLeadingBlocks collapses two or more adjacent header blocks at the top of
// content into one. Later blocks override earlier keys; placeholder and empty
// titles never override anything and are dropped. Content with fewer than two
// leading blocks is returned unchanged.
func MergeLeadingBlocks(content string) (string, error) {
	var blocks []*Document
	rest := content
	for {
		header, body, had, err := Split(rest)
		if err != nil || !had {
			break
		}
		doc, err := Parse(RepairIndentation(header))
		if err != nil {
			break
		}
		blocks = append(blocks, doc)
		rest = body
		next := strings.TrimLeft(rest, "\n")
		if !strings.HasPrefix(next, delimiter+"\n") {
			break
		}
		rest = next
	}
	if len(blocks) < 2 {
		return content, nil
	}

	merged := NewDocument()
	for _, b := range blocks {
		for _, f := range b.fields {
			if f.Key == KeyTitle && isPlaceholderTitle(f.Value.Value) {
				continue
			}
			merged.Set(f.Key, f.Value)
		}
	}
	if t, ok := merged.String(KeyTitle); ok && isPlaceholderTitle(t) {
		merged.Delete(KeyTitle)
	}

	header, err := Serialize(merged)
	if err != nil {
		return "", err
	}
	return Join(header, "\n"+strings.TrimLeft(rest, "\n")), nil
}

func isPlaceholderTitle(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, PlaceholderTitle)
}
