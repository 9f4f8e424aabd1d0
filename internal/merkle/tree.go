package merkle

import (
	"fmt"
	"path/filepath"

	"freesync/internal/codec"
)

// Tree is a directory. Its hash covers the hashes of its children in path
// order; any edit to a descendant leaves it stale until Recompute runs.
type Tree struct {
	hash     codec.Hash
	children []Node
	path     string
}

// NewTree takes ownership of children, sorts them and computes the hash.
func NewTree(path string, children []Node) *Tree {
	t := &Tree{path: path, children: children}
	t.hash = hashChildren(t.children)
	return t
}

func (t *Tree) Hash() codec.Hash { return t.hash }
func (t *Tree) Path() string     { return t.path }
func (t *Tree) Name() string     { return filepath.Base(t.path) }

// Children returns the children sorted by path. The slice is shared.
func (t *Tree) Children() []Node { return t.children }

// Clone returns a deep copy of t.
func (t *Tree) Clone() *Tree {
	return t.cloneNode().(*Tree)
}

// Find returns the node at path, or nil.
func (t *Tree) Find(path string) Node {
	if path == t.path {
		return t
	}
	for _, child := range t.children {
		if child.Path() == path {
			return child
		}
		if sub, ok := child.(*Tree); ok && within(sub.path, path) {
			return sub.Find(path)
		}
	}
	return nil
}

// Recompute rehashes every tree below t in post-order, then t itself.
func (t *Tree) Recompute() {
	for _, child := range t.children {
		if sub, ok := child.(*Tree); ok {
			sub.Recompute()
		}
	}
	t.hash = hashChildren(t.children)
}

func (t *Tree) String() string {
	return fmt.Sprintf("Tree(%s %s, %d children)", t.path, t.hash.String()[:12], len(t.children))
}

func (t *Tree) cloneNode() Node {
	c := &Tree{
		hash:     t.hash,
		path:     t.path,
		children: make([]Node, len(t.children)),
	}
	for i, child := range t.children {
		c.children[i] = child.cloneNode()
	}
	return c
}

// findTree descends by path prefix to the tree whose path is dir.
func (t *Tree) findTree(dir string) *Tree {
	if t.path == dir {
		return t
	}
	for _, child := range t.children {
		if sub, ok := child.(*Tree); ok && within(sub.path, dir) {
			return sub.findTree(dir)
		}
	}
	return nil
}

func (t *Tree) indexOf(path string) int {
	for i, child := range t.children {
		if child.Path() == path {
			return i
		}
	}
	return -1
}
