package frontmatter

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func exportHeader() *Document {
	d := NewDocument()
	d.SetString(KeyLayout, "post")
	d.Set(KeyDate, QuotedStringNode("2024-01-15 12:00:00"))
	d.SetStrings(KeyCategories, []string{"django"})
	return d
}

func TestSerialize_ExportLayout(t *testing.T) {
	out, err := Serialize(exportHeader())
	require.NoError(t, err)
	require.Equal(t, "layout: post\ndate: '2024-01-15 12:00:00'\ncategories:\n- django\n", out)

	d := exportHeader()
	d.SetString(KeySubcluster, "tutorials")
	out, err = Serialize(d)
	require.NoError(t, err)
	require.Equal(t, "layout: post\ndate: '2024-01-15 12:00:00'\ncategories:\n- django\nsubcluster: tutorials\n", out)
}

func TestSerialize_QuotingAndNesting(t *testing.T) {
	d := NewDocument()
	d.SetString("title", "Django: a tour")
	d.SetStrings("tags", []string{"123", "go"})
	d.SetStrings("empty", nil)
	d.Set("meta", &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: []*yaml.Node{
		StringNode("b"), {Kind: yaml.ScalarNode, Tag: "!!int", Value: "2"},
		StringNode("a"), {Kind: yaml.ScalarNode, Tag: "!!int", Value: "1"},
	}})

	out, err := Serialize(d)
	require.NoError(t, err)
	require.Equal(t, "title: 'Django: a tour'\ntags:\n- \"123\"\n- go\nempty: []\nmeta:\n  b: 2\n  a: 1\n", out)

	canon, err := Canonical(d)
	require.NoError(t, err)
	require.Equal(t, "empty: []\nmeta:\n  a: 1\n  b: 2\ntags:\n- \"123\"\n- go\ntitle: 'Django: a tour'\n", canon)
}

func TestCanonical_IgnoresPresentation(t *testing.T) {
	a, _, err := Extract("---\ncategories: [django]\ntitle: \"Hello\"\nlayout: post\n---\n")
	require.NoError(t, err)
	b, _, err := Extract("---\nlayout: post\ntitle: Hello\ncategories:\n  - django\n---\n")
	require.NoError(t, err)

	ca, err := Canonical(a)
	require.NoError(t, err)
	cb, err := Canonical(b)
	require.NoError(t, err)
	require.Equal(t, ca, cb)
	require.Equal(t, "categories:\n- django\nlayout: post\ntitle: Hello\n", ca)

	d := exportHeader()
	cd, err := Canonical(d)
	require.NoError(t, err)
	require.Contains(t, cd, "date: \"2024-01-15 12:00:00\"\n")
}

func TestSerialize_RoundTrip(t *testing.T) {
	d := exportHeader()
	d.SetString("title", "It's: fine")
	d.SetString("note", "line one\nline two")
	first, err := Serialize(d)
	require.NoError(t, err)

	parsed, err := Parse(first)
	require.NoError(t, err)
	second, err := Serialize(parsed)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDocument_Operations(t *testing.T) {
	d := NewDocument()
	d.SetString("a", "1")
	d.SetString("b", "2")
	d.SetString("a", "3")
	require.Equal(t, []string{"a", "b"}, d.Keys())
	v, ok := d.String("a")
	require.True(t, ok)
	require.Equal(t, "3", v)

	c := d.Clone()
	c.Delete("a")
	require.True(t, d.Has("a"))
	require.False(t, c.Has("a"))

	d.SetString("blank", "  ")
	_, ok = d.NonEmptyString("blank")
	require.False(t, ok)

	m, err := d.Map()
	require.NoError(t, err)
	require.Equal(t, "3", m["a"])
}
