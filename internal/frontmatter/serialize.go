package frontmatter

import (
	"bytes"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Serialize renders the document as block-style YAML (without delimiters) in
// insertion order. Sequences of scalars are written flush with their key:
//
//	categories:
//	- django
//
// Every other value is written by yaml.v3 with a two-space indent.
func Serialize(d *Document) (string, error) {
	return emit(d.fields)
}

// Canonical renders the document with keys sorted at every level and all
// presentation styles reset, so equal data always yields equal text.
func Canonical(d *Document) (string, error) {
	fields := make([]Field, len(d.fields))
	for i, f := range d.fields {
		fields[i] = Field{Key: f.Key, Value: sortMappings(cloneNode(f.Value, true))}
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return emit(fields)
}

func emit(fields []Field) (string, error) {
	var b strings.Builder
	for _, f := range fields {
		if f.Value == nil {
			continue
		}
		if s, ok, err := emitScalarSequence(f.Key, f.Value); err != nil {
			return "", err
		} else if ok {
			b.WriteString(s)
			continue
		}
		s, err := encode(pair(f.Key, f.Value))
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// emitScalarSequence writes a non-empty sequence of single-line scalars in the
// flush `- item` layout. ok is false when the value does not qualify.
func emitScalarSequence(key string, value *yaml.Node) (string, bool, error) {
	if value.Kind != yaml.SequenceNode || len(value.Content) == 0 {
		return "", false, nil
	}
	keyLine, err := encode(pair(key, &yaml.Node{Kind: yaml.MappingNode}))
	if err != nil {
		return "", false, err
	}
	// "key: {}\n" -> "key:\n"
	keyLine = strings.TrimSuffix(keyLine, " {}\n") + "\n"

	var b strings.Builder
	b.WriteString(keyLine)
	for _, item := range value.Content {
		if item.Kind != yaml.ScalarNode {
			return "", false, nil
		}
		line, err := encode(pair("k", item))
		if err != nil {
			return "", false, err
		}
		line = strings.TrimSuffix(strings.TrimPrefix(line, "k: "), "\n")
		if strings.Contains(line, "\n") {
			return "", false, nil
		}
		b.WriteString("- " + line + "\n")
	}
	return b.String(), true, nil
}

func pair(key string, value *yaml.Node) *yaml.Node {
	return &yaml.Node{
		Kind:    yaml.MappingNode,
		Tag:     "!!map",
		Content: []*yaml.Node{StringNode(key), value},
	}
}

func encode(n *yaml.Node) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		_ = enc.Close()
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sortMappings(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Content {
		sortMappings(c)
	}
	if n.Kind != yaml.MappingNode {
		return n
	}
	type kv struct{ k, v *yaml.Node }
	pairs := make([]kv, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		pairs = append(pairs, kv{n.Content[i], n.Content[i+1]})
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].k.Value < pairs[j].k.Value })
	n.Content = n.Content[:0]
	for _, p := range pairs {
		n.Content = append(n.Content, p.k, p.v)
	}
	return n
}
