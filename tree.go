package formz

import "strings"

// Tree is a tagged variant keyed by form shape: each node is either a Leaf
// carrying an L or a Group of named children kept in insertion order.
// Configuration, materialized changes, and logic are all trees.
type Tree[L any] struct {
	leaf     L
	isLeaf   bool
	names    []string
	children map[string]*Tree[L]
}

// Entry is a named child of a group.
type Entry[L any] struct {
	Name string
	Node *Tree[L]
}

// At names a node for Group.
func At[L any](name string, node *Tree[L]) Entry[L] {
	return Entry[L]{Name: name, Node: node}
}

// Leaf creates a leaf node.
func Leaf[L any](v L) *Tree[L] {
	return &Tree[L]{leaf: v, isLeaf: true}
}

// Group creates a group node. Later entries replace earlier ones with the
// same name without changing their position. Nil nodes are skipped.
func Group[L any](entries ...Entry[L]) *Tree[L] {
	t := &Tree[L]{children: make(map[string]*Tree[L], len(entries))}
	for _, e := range entries {
		t.Set(e.Name, e.Node)
	}
	return t
}

// IsLeaf reports whether t is a leaf.
func (t *Tree[L]) IsLeaf() bool {
	return t != nil && t.isLeaf
}

// Value returns the leaf value.
func (t *Tree[L]) Value() (L, bool) {
	if t == nil || !t.isLeaf {
		var zero L
		return zero, false
	}
	return t.leaf, true
}

// Names lists a group's children in order.
func (t *Tree[L]) Names() []string {
	if t == nil || t.isLeaf {
		return nil
	}
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Len is the number of direct children.
func (t *Tree[L]) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// Child returns a direct child, or nil.
func (t *Tree[L]) Child(name string) *Tree[L] {
	if t == nil || t.isLeaf {
		return nil
	}
	return t.children[name]
}

// Set adds or replaces a direct child. It is a no-op on a leaf.
func (t *Tree[L]) Set(name string, node *Tree[L]) {
	if t == nil || t.isLeaf || node == nil {
		return
	}
	if t.children == nil {
		t.children = make(map[string]*Tree[L])
	}
	if _, ok := t.children[name]; !ok {
		t.names = append(t.names, name)
	}
	t.children[name] = node
}

// Get walks a dotted path. An empty path returns t.
func (t *Tree[L]) Get(path string) *Tree[L] {
	if path == "" {
		return t
	}
	cur := t
	for _, name := range strings.Split(path, ".") {
		cur = cur.Child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Lookup returns the leaf value at path.
func (t *Tree[L]) Lookup(path string) (L, bool) {
	return t.Get(path).Value()
}

// Walk visits every leaf depth-first in insertion order with its dotted
// path. Returning false stops the walk.
func (t *Tree[L]) Walk(fn func(path string, leaf L) bool) {
	t.walk("", fn)
}

func (t *Tree[L]) walk(prefix string, fn func(string, L) bool) bool {
	if t == nil {
		return true
	}
	if t.isLeaf {
		return fn(prefix, t.leaf)
	}
	for _, name := range t.names {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if !t.children[name].walk(path, fn) {
			return false
		}
	}
	return true
}

// Paths lists the dotted paths of every leaf in walk order.
func (t *Tree[L]) Paths() []string {
	var out []string
	t.Walk(func(path string, _ L) bool {
		out = append(out, path)
		return true
	})
	return out
}

// ToMap renders t as nested map[string]any, for encoding and comparison.
// A leaf renders as its value.
func (t *Tree[L]) ToMap() any {
	if t == nil {
		return nil
	}
	if t.isLeaf {
		return t.leaf
	}
	out := make(map[string]any, len(t.names))
	for _, name := range t.names {
		out[name] = t.children[name].ToMap()
	}
	return out
}

// MapTree rebuilds t with every leaf transformed by fn. Groups keep their
// order.
func MapTree[L, M any](t *Tree[L], fn func(path string, leaf L) M) *Tree[M] {
	return mapTree(t, "", fn)
}

func mapTree[L, M any](t *Tree[L], prefix string, fn func(string, L) M) *Tree[M] {
	if t == nil {
		return nil
	}
	if t.isLeaf {
		return Leaf(fn(prefix, t.leaf))
	}
	out := &Tree[M]{children: make(map[string]*Tree[M], len(t.names))}
	for _, name := range t.names {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		out.Set(name, mapTree(t.children[name], path, fn))
	}
	return out
}

// MergeTrees combines two trees. Groups merge by name, keeping base order
// and appending names only over has. Where both sides hold a leaf, leaf
// decides the result; where the shapes differ, over wins. Neither input is
// modified.
func MergeTrees[L any](base, over *Tree[L], leaf func(base, over L) L) *Tree[L] {
	switch {
	case base == nil:
		return cloneTree(over)
	case over == nil:
		return cloneTree(base)
	case base.isLeaf && over.isLeaf:
		if leaf == nil {
			return Leaf(over.leaf)
		}
		return Leaf(leaf(base.leaf, over.leaf))
	case base.isLeaf || over.isLeaf:
		return cloneTree(over)
	}

	out := &Tree[L]{children: make(map[string]*Tree[L], len(base.names)+len(over.names))}
	for _, name := range base.names {
		out.Set(name, MergeTrees(base.children[name], over.children[name], leaf))
	}
	for _, name := range over.names {
		if _, ok := base.children[name]; !ok {
			out.Set(name, cloneTree(over.children[name]))
		}
	}
	return out
}

func cloneTree[L any](t *Tree[L]) *Tree[L] {
	return MapTree(t, func(_ string, l L) L { return l })
}
