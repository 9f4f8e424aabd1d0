package merkle

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"sort"

	"freesync/internal/codec"
	ferrors "freesync/internal/errors"
)

// Apply replays an edit script against the leaf's content. The leaf is only
// updated once End is reached and the result hashes to End's FinalHash.
func (l *Leaf) Apply(changes []Change) error {
	cur, err := l.Content()
	if err != nil {
		return err
	}
	out := make([]byte, 0, len(cur))

	for _, c := range changes {
		switch c.Op {
		case OpCopy, OpDelete:
			if c.End < c.Start {
				return ferrors.Format("apply", l.path, "%s has inverted range", c)
			}
			n := c.Len()
			if n > uint64(len(cur)) {
				return ferrors.Format("apply", l.path, "%s overruns %d remaining bytes", c, len(cur))
			}
			if c.Op == OpCopy {
				out = append(out, cur[:n]...)
			}
			cur = cur[n:]

		case OpInsert:
			data, err := codec.Decompress(c.Data)
			if err != nil {
				return ferrors.WithPath(err, l.path)
			}
			out = append(out, data...)

		case OpEnd:
			got := codec.Sum(out)
			if got != c.FinalHash {
				return ferrors.Integrity(l.path, c.FinalHash.String(), got.String())
			}
			blob, err := codec.EncodeBlob(out)
			if err != nil {
				return ferrors.WithPath(err, l.path)
			}
			l.hash = got
			l.blob = blob
			return nil

		default:
			return ferrors.Format("apply", l.path, "unknown edit %s", c.Op)
		}
	}
	return ferrors.Format("apply", l.path, "edit script has no end marker")
}

// ApplyDiff applies diffs in order and stops at the first failure. Hashes are
// recomputed bottom-up before returning, whether or not an error occurred.
func (t *Tree) ApplyDiff(diffs []Diff) error {
	if len(diffs) == 0 {
		return nil
	}
	defer t.Recompute()

	for _, d := range diffs {
		if err := t.applyOne(d); err != nil {
			return fmt.Errorf("applying %s: %w", d, err)
		}
	}
	return nil
}

// ApplyDiffContinue applies every diff it can. Failures are joined into the
// returned error, each naming its path.
func (t *Tree) ApplyDiffContinue(diffs []Diff) error {
	if len(diffs) == 0 {
		return nil
	}
	defer t.Recompute()

	var errs []error
	for _, d := range diffs {
		if err := t.applyOne(d); err != nil {
			errs = append(errs, fmt.Errorf("applying %s: %w", d, err))
		}
	}
	return stderrors.Join(errs...)
}

func (t *Tree) applyOne(d Diff) error {
	switch d.Kind {
	case Created:
		if d.Node == nil {
			return ferrors.Path("insert", d.Path, "created diff carries no node")
		}
		return t.insert(Clone(d.Node))
	case Deleted:
		return t.remove(d.Path)
	case Changed:
		return t.patch(d.Path, d.Changes)
	default:
		return fmt.Errorf("unknown diff kind %s", d.Kind)
	}
}

func (t *Tree) insert(node Node) error {
	path := node.Path()
	parent := t.findTree(filepath.Dir(path))
	if parent == nil {
		return ferrors.Path("insert", path, "parent directory not in target tree")
	}
	if parent.indexOf(path) >= 0 {
		return ferrors.Path("insert", path, "node already exists")
	}

	at := sort.Search(len(parent.children), func(i int) bool {
		return parent.children[i].Path() >= path
	})
	parent.children = append(parent.children, nil)
	copy(parent.children[at+1:], parent.children[at:])
	parent.children[at] = node
	return nil
}

func (t *Tree) remove(path string) error {
	parent := t.findTree(filepath.Dir(path))
	if parent == nil {
		return ferrors.Path("remove", path, "parent directory not in target tree")
	}
	i := parent.indexOf(path)
	if i < 0 {
		return ferrors.Path("remove", path, "no such node")
	}
	parent.children = append(parent.children[:i], parent.children[i+1:]...)
	return nil
}

func (t *Tree) patch(path string, changes []Change) error {
	parent := t.findTree(filepath.Dir(path))
	if parent == nil {
		return ferrors.Path("patch", path, "parent directory not in target tree")
	}
	i := parent.indexOf(path)
	if i < 0 {
		return ferrors.Path("patch", path, "no such file")
	}
	leaf, ok := parent.children[i].(*Leaf)
	if !ok {
		return ferrors.Path("patch", path, "not a file")
	}
	return leaf.Apply(changes)
}
