package frontmatter

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Field is one top-level header key with its YAML value.
type Field struct {
	Key   string
	Value *yaml.Node
}

// Document is an insertion-ordered front-matter mapping.
type Document struct {
	fields []Field
}

// NewDocument returns an empty Document.
func NewDocument() *Document {
	return &Document{}
}

// Len returns the number of keys.
func (d *Document) Len() int { return len(d.fields) }

// Keys returns the keys in insertion order.
func (d *Document) Keys() []string {
	out := make([]string, len(d.fields))
	for i, f := range d.fields {
		out[i] = f.Key
	}
	return out
}

// Fields returns a copy of the ordered fields.
func (d *Document) Fields() []Field {
	return append([]Field(nil), d.fields...)
}

func (d *Document) index(key string) int {
	for i, f := range d.fields {
		if f.Key == key {
			return i
		}
	}
	return -1
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool { return d.index(key) >= 0 }

// Get returns the value node for key.
func (d *Document) Get(key string) (*yaml.Node, bool) {
	if i := d.index(key); i >= 0 {
		return d.fields[i].Value, true
	}
	return nil, false
}

// Set replaces the value of an existing key in place or appends a new key.
func (d *Document) Set(key string, value *yaml.Node) {
	if i := d.index(key); i >= 0 {
		d.fields[i].Value = value
		return
	}
	d.fields = append(d.fields, Field{Key: key, Value: value})
}

// SetString sets key to a plain string scalar.
func (d *Document) SetString(key, value string) {
	d.Set(key, StringNode(value))
}

// SetStrings sets key to a block sequence of strings.
func (d *Document) SetStrings(key string, values []string) {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, v := range values {
		seq.Content = append(seq.Content, StringNode(v))
	}
	d.Set(key, seq)
}

// Delete removes key if present.
func (d *Document) Delete(key string) {
	if i := d.index(key); i >= 0 {
		d.fields = append(d.fields[:i], d.fields[i+1:]...)
	}
}

// String returns the value of key when it is a non-null scalar.
func (d *Document) String(key string) (string, bool) {
	n, ok := d.Get(key)
	if !ok || n.Kind != yaml.ScalarNode || n.ShortTag() == "!!null" {
		return "", false
	}
	return n.Value, true
}

// NonEmptyString returns the trimmed scalar value of key, or false when it is
// absent, null or blank.
func (d *Document) NonEmptyString(key string) (string, bool) {
	v, ok := d.String(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	out := &Document{fields: make([]Field, len(d.fields))}
	for i, f := range d.fields {
		out.fields[i] = Field{Key: f.Key, Value: cloneNode(f.Value, false)}
	}
	return out
}

// Map decodes the document into plain Go values, for JSON reports and lookups.
func (d *Document) Map() (map[string]any, error) {
	out := make(map[string]any, len(d.fields))
	for _, f := range d.fields {
		var v any
		if err := f.Value.Decode(&v); err != nil {
			return nil, err
		}
		out[f.Key] = v
	}
	return out, nil
}

// StringNode builds a string scalar node.
func StringNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

// QuotedStringNode builds a string scalar that is always single quoted.
func QuotedStringNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value, Style: yaml.SingleQuotedStyle}
}

func cloneNode(n *yaml.Node, canonical bool) *yaml.Node {
	if n == nil {
		return nil
	}
	c := *n
	c.HeadComment, c.LineComment, c.FootComment = "", "", ""
	if canonical {
		c.Style = 0
		c.Anchor = ""
		if c.Tag == "" {
			c.Tag = n.ShortTag()
		}
	}
	if n.Alias != nil {
		c.Alias = cloneNode(n.Alias, canonical)
		if canonical {
			c = *c.Alias
		}
	}
	if len(n.Content) > 0 {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = cloneNode(child, canonical)
		}
	}
	return &c
}
