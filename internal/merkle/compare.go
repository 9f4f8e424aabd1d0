package merkle

import (
	"fmt"
	"sort"
)

// FindDifferences returns the per-path changes that turn a into b, or nil
// when both have the same hash. Entries are ordered by path.
//
// A file and a directory at the same path produce a Deleted entry followed
// by a Created one.
func FindDifferences(a, b Node) ([]Diff, error) {
	if a.Hash() == b.Hash() {
		return nil, nil
	}

	switch a := a.(type) {
	case *Tree:
		bt, ok := b.(*Tree)
		if !ok {
			return replace(a, b), nil
		}
		return diffTrees(a, bt)

	case *Leaf:
		bl, ok := b.(*Leaf)
		if !ok {
			return replace(a, b), nil
		}
		changes, err := DiffFile(a, bl)
		if err != nil {
			return nil, err
		}
		return []Diff{{Kind: Changed, Path: bl.path, Changes: changes}}, nil

	default:
		panic(fmt.Sprintf("merkle: unexpected node type %T", a))
	}
}

func replace(a, b Node) []Diff {
	return []Diff{
		{Kind: Deleted, Path: a.Path()},
		{Kind: Created, Path: b.Path(), Node: Clone(b)},
	}
}

func diffTrees(a, b *Tree) ([]Diff, error) {
	left := make(map[string]Node, len(a.children))
	for _, child := range a.children {
		left[child.Path()] = child
	}
	right := make(map[string]Node, len(b.children))
	paths := make([]string, 0, len(a.children)+len(b.children))
	for _, child := range b.children {
		right[child.Path()] = child
		if _, ok := left[child.Path()]; !ok {
			paths = append(paths, child.Path())
		}
	}
	for path := range left {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var diffs []Diff
	for _, path := range paths {
		l, inLeft := left[path]
		r, inRight := right[path]

		switch {
		case inLeft && !inRight:
			diffs = append(diffs, Diff{Kind: Deleted, Path: path})
		case !inLeft && inRight:
			diffs = append(diffs, Diff{Kind: Created, Path: path, Node: Clone(r)})
		default:
			sub, err := FindDifferences(l, r)
			if err != nil {
				return nil, err
			}
			diffs = append(diffs, sub...)
		}
	}
	return diffs, nil
}
