// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package transcode

import (
	"sort"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// Item is one key=value pair of the query wire format. Keys are
// dotted paths; sequence and map positions carry 1-based indices.
type Item struct {
	Key   string
	Value string
}

// QueryItems flattens a tree into its query realization: object
// entries extend the dotted path, arrays insert 1-based indices, and
// scalars become string values. Items are sorted by key so the
// rendering is deterministic.
func QueryItems(tree *Object) []Item {
	var items []Item
	flattenQuery("", tree, &items)
	sort.Slice(items, func(i, j int) bool {
		if items[i].Key != items[j].Key {
			return items[i].Key < items[j].Key
		}
		return items[i].Value < items[j].Value
	})
	return items
}

func flattenQuery(prefix string, n Node, items *[]Item) {
	switch n := n.(type) {
	case *Scalar:
		*items = append(*items, Item{Key: prefix, Value: scalarText(n.Value)})
	case *Object:
		// The query format has no attribute position; attributes fold
		// in as ordinary entries.
		for _, a := range n.Attrs {
			*items = append(*items, Item{Key: joinPath(prefix, a.Name), Value: a.Value})
		}
		for _, e := range n.Entries() {
			flattenQuery(joinPath(prefix, e.Name), e.Node, items)
		}
	case *Array:
		for i, item := range n.Items {
			flattenQuery(joinPath(prefix, strconv.Itoa(i+1)), item, items)
		}
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// EncodeQuery renders items as an &-joined key=value string with
// percent-encoding applied from an allow-list of unreserved
// characters.
func EncodeQuery(items []Item) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escapeQuery(item.Key))
		b.WriteByte('=')
		b.WriteString(escapeQuery(item.Value))
	}
	return b.String()
}

// Escape percent-encodes s with the unreserved-character allow-list.
// The request builder uses it for path template substitutions.
func Escape(s string) string {
	return escapeQuery(s)
}

const upperhex = "0123456789ABCDEF"

func unreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	}
	return false
}

func escapeQuery(s string) string {
	hex := 0
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			hex++
		}
	}
	if hex == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2*hex)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0xf])
	}
	return b.String()
}

// ParseQuery splits an encoded query string back into items.
func ParseQuery(s string) ([]Item, error) {
	if s == "" {
		return nil, nil
	}
	var items []Item
	for _, pair := range strings.Split(s, "&") {
		key, value, _ := strings.Cut(pair, "=")
		k, err := unescapeQuery(key)
		if err != nil {
			return nil, errors.Trace(err)
		}
		v, err := unescapeQuery(value)
		if err != nil {
			return nil, errors.Trace(err)
		}
		items = append(items, Item{Key: k, Value: v})
	}
	return items, nil
}

func unescapeQuery(s string) (string, error) {
	if !strings.ContainsRune(s, '%') {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", errors.Errorf("truncated percent escape in %q", s)
		}
		n, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
		if err != nil {
			return "", errors.Errorf("invalid percent escape in %q", s)
		}
		b.WriteByte(byte(n))
		i += 2
	}
	return b.String(), nil
}

// Unflatten is the query realization in reverse: items are grouped by
// shared path prefixes back into a tree. Numeric path segments become
// array positions and must form a contiguous 1-based run.
func Unflatten(items []Item) (*Object, error) {
	root := newQueryBuilder()
	for _, item := range items {
		if item.Key == "" {
			return nil, errors.Errorf("query item with empty key")
		}
		if err := root.insert(strings.Split(item.Key, "."), item.Value, item.Key); err != nil {
			return nil, errors.Trace(err)
		}
	}
	n, err := root.build("")
	if err != nil {
		return nil, errors.Trace(err)
	}
	obj, ok := n.(*Object)
	if !ok {
		return nil, errors.Errorf("query mapping does not describe a structure")
	}
	return obj, nil
}

// queryBuilder accumulates items before materializing tree nodes, so
// out-of-order indices can be validated once all items are seen.
type queryBuilder struct {
	leaf     *string
	children map[string]*queryBuilder
	order    []string
	indexed  map[int]*queryBuilder
}

func newQueryBuilder() *queryBuilder {
	return &queryBuilder{}
}

func (b *queryBuilder) insert(segments []string, value, fullKey string) error {
	if len(segments) == 0 {
		if b.leaf != nil || b.children != nil || b.indexed != nil {
			return errors.Errorf("conflicting values at query key %q", fullKey)
		}
		v := value
		b.leaf = &v
		return nil
	}
	if b.leaf != nil {
		return errors.Errorf("conflicting values at query key %q", fullKey)
	}
	seg := segments[0]
	if idx, ok := numericSegment(seg); ok {
		if b.children != nil {
			return errors.Errorf("key %q mixes names and indices", fullKey)
		}
		if b.indexed == nil {
			b.indexed = make(map[int]*queryBuilder)
		}
		child := b.indexed[idx]
		if child == nil {
			child = newQueryBuilder()
			b.indexed[idx] = child
		}
		return child.insert(segments[1:], value, fullKey)
	}
	if b.indexed != nil {
		return errors.Errorf("key %q mixes names and indices", fullKey)
	}
	if b.children == nil {
		b.children = make(map[string]*queryBuilder)
	}
	child := b.children[seg]
	if child == nil {
		child = newQueryBuilder()
		b.children[seg] = child
		b.order = append(b.order, seg)
	}
	return child.insert(segments[1:], value, fullKey)
}

func (b *queryBuilder) build(path string) (Node, error) {
	switch {
	case b.leaf != nil:
		return &Scalar{Value: *b.leaf}, nil
	case b.indexed != nil:
		arr := &Array{}
		for i := 1; i <= len(b.indexed); i++ {
			child, ok := b.indexed[i]
			if !ok {
				return nil, errors.Errorf("query sequence at %q is missing index %d", path, i)
			}
			n, err := child.build(joinPath(path, strconv.Itoa(i)))
			if err != nil {
				return nil, errors.Trace(err)
			}
			arr.Items = append(arr.Items, n)
		}
		return arr, nil
	default:
		obj := NewObject()
		for _, name := range b.order {
			n, err := b.children[name].build(joinPath(path, name))
			if err != nil {
				return nil, errors.Trace(err)
			}
			obj.Add(name, n)
		}
		return obj, nil
	}
}

func numericSegment(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
