// Package merkle implements the snapshot object model: leaves and trees
// identified by content hashes, and the diff/patch algorithms over them.
package merkle

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"freesync/internal/codec"
)

// Node is either a *Leaf or a *Tree. The set of implementations is closed;
// every consumer switches over both.
type Node interface {
	Hash() codec.Hash
	// Path is the filesystem path the node was built from or restored to.
	Path() string
	Name() string

	cloneNode() Node
}

var (
	_ Node = (*Leaf)(nil)
	_ Node = (*Tree)(nil)
)

// Clone returns a deep copy of n.
func Clone(n Node) Node {
	return n.cloneNode()
}

// Walk visits n and every descendant in pre-order. Returning an error from
// fn stops the walk.
func Walk(n Node, fn func(Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	switch n := n.(type) {
	case *Leaf:
		return nil
	case *Tree:
		for _, child := range n.children {
			if err := Walk(child, fn); err != nil {
				return err
			}
		}
		return nil
	default:
		panic(fmt.Sprintf("merkle: unexpected node type %T", n))
	}
}

// CountLeaves returns the number of leaves under n.
func CountLeaves(n Node) int {
	count := 0
	_ = Walk(n, func(n Node) error {
		if _, ok := n.(*Leaf); ok {
			count++
		}
		return nil
	})
	return count
}

// hashChildren sorts children by path and hashes their concatenated hashes.
func hashChildren(children []Node) codec.Hash {
	sortByPath(children)
	buf := make([]byte, 0, len(children)*codec.HashSize)
	for _, child := range children {
		h := child.Hash()
		buf = append(buf, h[:]...)
	}
	return codec.Sum(buf)
}

func sortByPath(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Path() < nodes[j].Path()
	})
}

// within reports whether target is base or lies below it.
func within(base, target string) bool {
	if base == target {
		return true
	}
	prefix := base
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(target, prefix)
}
