package merkle

import (
	"fmt"

	"freesync/internal/codec"
)

// Op selects the variant of a Change.
type Op uint8

const (
	OpCopy Op = iota + 1
	OpDelete
	OpInsert
	OpEnd
)

func (o Op) String() string {
	switch o {
	case OpCopy:
		return "Copy"
	case OpDelete:
		return "Delete"
	case OpInsert:
		return "Insert"
	case OpEnd:
		return "End"
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Change is one step of an edit script. Start and End are inclusive offsets
// into the source for Copy and Delete; Data is a compressed payload for
// Insert; FinalHash is the expected hash of the result for End.
type Change struct {
	Op        Op
	Start     uint64
	End       uint64
	Data      []byte
	FinalHash codec.Hash
}

func Copy(start, end uint64) Change   { return Change{Op: OpCopy, Start: start, End: end} }
func Delete(start, end uint64) Change { return Change{Op: OpDelete, Start: start, End: end} }
func Insert(data []byte) Change       { return Change{Op: OpInsert, Data: data} }
func End(final codec.Hash) Change     { return Change{Op: OpEnd, FinalHash: final} }

// Len is the number of source bytes a Copy or Delete consumes.
func (c Change) Len() uint64 {
	if c.Op != OpCopy && c.Op != OpDelete || c.End < c.Start {
		return 0
	}
	return c.End - c.Start + 1
}

func (c Change) String() string {
	switch c.Op {
	case OpCopy, OpDelete:
		return fmt.Sprintf("%s(%d,%d)", c.Op, c.Start, c.End)
	case OpInsert:
		return fmt.Sprintf("Insert(%d bytes)", len(c.Data))
	case OpEnd:
		return fmt.Sprintf("End(%s)", c.FinalHash)
	}
	return c.Op.String()
}

// DiffKind selects the variant of a Diff.
type DiffKind uint8

const (
	Created DiffKind = iota + 1
	Deleted
	Changed
)

func (k DiffKind) String() string {
	switch k {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	case Changed:
		return "changed"
	}
	return fmt.Sprintf("DiffKind(%d)", uint8(k))
}

// Diff is a structural change at one path. Node is set for Created,
// Changes for Changed.
type Diff struct {
	Kind    DiffKind
	Path    string
	Node    Node
	Changes []Change
}

func (d Diff) String() string {
	switch d.Kind {
	case Changed:
		return fmt.Sprintf("changed %s (%d edits)", d.Path, len(d.Changes))
	default:
		return fmt.Sprintf("%s %s", d.Kind, d.Path)
	}
}
