// Package normalization turns free-form configuration and flag values into
// typed enums.
package normalization

import (
	"fmt"
	"sort"
	"strings"
)

// Enum maps normalized spellings onto values of T. Lookups ignore case and
// surrounding whitespace.
type Enum[T comparable] struct {
	name   string
	values map[string]T
	keys   []string
}

// NewEnum returns an Enum called name (used in error messages). Every key of
// values is accepted, as is the string form of each value.
func NewEnum[T ~string](name string, values ...T) *Enum[T] {
	e := &Enum[T]{name: name, values: make(map[string]T, len(values))}
	for _, v := range values {
		e.Alias(string(v), v)
	}
	return e
}

// Alias accepts key as another spelling of v.
func (e *Enum[T]) Alias(key string, v T) *Enum[T] {
	k := normalize(key)
	if _, ok := e.values[k]; !ok {
		e.keys = append(e.keys, k)
		sort.Strings(e.keys)
	}
	e.values[k] = v
	return e
}

// Lookup returns the value for raw.
func (e *Enum[T]) Lookup(raw string) (T, bool) {
	v, ok := e.values[normalize(raw)]
	return v, ok
}

// Parse returns the value for raw or an error listing the accepted spellings.
func (e *Enum[T]) Parse(raw string) (T, error) {
	if v, ok := e.Lookup(raw); ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q, valid options: %s", e.name, raw, strings.Join(e.keys, ", "))
}

// Keys returns the accepted spellings in sorted order.
func (e *Enum[T]) Keys() []string {
	out := make([]string, len(e.keys))
	copy(out, e.keys)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
