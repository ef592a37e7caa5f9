package frontmatter

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/blogsync/internal/slug"
)

// Header keys owned by the exporter.
const (
	KeyLayout       = "layout"
	KeyDate         = "date"
	KeyCategories   = "categories"
	KeySubcluster   = "subcluster"
	KeyTitle        = "title"
	KeySlug         = "slug"
	KeyDescription  = "description"
	KeyCanonicalURL = "canonical_url"
	KeyAuthor       = "author"
)

// Taxonomy is the validated (cluster, subcluster) pair of a post.
type Taxonomy struct {
	Cluster    string
	Subcluster string

	// Notes records tolerated deviations, e.g. a subcluster given as a list.
	Notes []string
}

// HasSubcluster reports whether a subcluster was supplied.
func (t Taxonomy) HasSubcluster() bool { return t.Subcluster != "" }

// ValidateTaxonomy checks that categories holds exactly one cluster slug and
// that subcluster, when present, is a single slug.
func ValidateTaxonomy(d *Document) (Taxonomy, error) {
	var tax Taxonomy

	cats, ok := d.Get(KeyCategories)
	if !ok || isNull(cats) {
		return tax, invalid("categories is required and must list exactly one cluster")
	}
	if cats.Kind != yaml.SequenceNode {
		return tax, invalid("categories must be a list with exactly one cluster, e.g. categories: [django]")
	}
	if len(cats.Content) != 1 {
		return tax, invalid(fmt.Sprintf("categories must contain exactly one cluster, got %d", len(cats.Content)))
	}
	cluster, err := taxonomySlug(KeyCategories, cats.Content[0])
	if err != nil {
		return tax, err
	}
	tax.Cluster = cluster

	sub, ok := d.Get(KeySubcluster)
	if !ok || isNull(sub) {
		return tax, nil
	}
	switch sub.Kind {
	case yaml.ScalarNode:
		if strings.TrimSpace(sub.Value) == "" {
			return tax, nil
		}
	case yaml.SequenceNode:
		if len(sub.Content) != 1 {
			return tax, invalid(fmt.Sprintf("subcluster list must contain exactly one value, got %d", len(sub.Content)))
		}
		tax.Notes = append(tax.Notes, "subcluster given as a single-element list")
		sub = sub.Content[0]
	default:
		return tax, invalid("subcluster must be a string")
	}
	subSlug, err := taxonomySlug(KeySubcluster, sub)
	if err != nil {
		return tax, err
	}
	tax.Subcluster = subSlug
	return tax, nil
}

func taxonomySlug(key string, n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!str" {
		return "", invalid(fmt.Sprintf("%s entry must be a string", key))
	}
	v := strings.TrimSpace(n.Value)
	if strings.Contains(v, "/") {
		return "", invalid(fmt.Sprintf("%s entry %q uses the legacy cluster/subcluster form: use categories: [cluster] and subcluster: <slug>", key, v))
	}
	if !slug.IsValid(v) {
		return "", invalid(fmt.Sprintf("%s entry %q is not a valid slug (lowercase letters, digits and hyphens)", key, v))
	}
	return v, nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}
