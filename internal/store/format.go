package store

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"freesync/internal/codec"
	ferrors "freesync/internal/errors"
	"freesync/internal/merkle"
)

// Mode tags of tree entries. Symbolic links have no tag.
const (
	ModeRegular    = "100000"
	ModeExecutable = "100755"
	ModeDirectory  = "040000"

	modeSize = 6
)

// Entry is one record of a tree object:
//
//	<6-byte mode> 0x20 <name> 0x00 <32-byte hash>
type Entry struct {
	Mode string
	Name string
	Hash codec.Hash
}

func (e Entry) IsDir() bool { return e.Mode == ModeDirectory }

func modeOf(n merkle.Node) string {
	switch n := n.(type) {
	case *merkle.Leaf:
		if n.Executable() {
			return ModeExecutable
		}
		return ModeRegular
	case *merkle.Tree:
		return ModeDirectory
	default:
		panic(fmt.Sprintf("store: unexpected node type %T", n))
	}
}

// EncodeTree serializes the entry list of t's direct children.
func EncodeTree(t *merkle.Tree) ([]byte, error) {
	var buf bytes.Buffer
	for _, child := range t.Children() {
		name := child.Name()
		if err := validName(name); err != nil {
			return nil, ferrors.Format("encode", child.Path(), "cannot encode entry: %v", err)
		}
		h := child.Hash()

		buf.WriteString(modeOf(child))
		buf.WriteByte(' ')
		buf.WriteString(name)
		buf.WriteByte(0)
		buf.Write(h[:])
	}
	return buf.Bytes(), nil
}

// DecodeEntries parses a tree object body.
func DecodeEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	for off := 0; off < len(data); {
		rest := data[off:]
		if len(rest) < modeSize+1 {
			return nil, ferrors.Format("decode", "", "truncated entry at offset %d", off)
		}

		mode := string(rest[:modeSize])
		switch mode {
		case ModeRegular, ModeExecutable, ModeDirectory:
		default:
			return nil, ferrors.Format("decode", "", "unknown mode %q at offset %d", mode, off)
		}
		if rest[modeSize] != ' ' {
			return nil, ferrors.Format("decode", "", "missing separator after mode at offset %d", off)
		}

		rest = rest[modeSize+1:]
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, ferrors.Format("decode", "", "entry name is not NUL terminated at offset %d", off)
		}
		name := string(rest[:nul])
		if err := validName(name); err != nil {
			return nil, ferrors.Format("decode", "", "bad entry name at offset %d: %v", off, err)
		}

		rest = rest[nul+1:]
		if len(rest) < codec.HashSize {
			return nil, ferrors.Format("decode", "", "truncated hash for %q", name)
		}
		var h codec.Hash
		copy(h[:], rest[:codec.HashSize])

		entries = append(entries, Entry{Mode: mode, Name: name, Hash: h})
		off += modeSize + 1 + nul + 1 + codec.HashSize
	}
	return entries, nil
}

func validName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("invalid name %q", name)
	case !utf8.ValidString(name):
		return fmt.Errorf("name %q is not valid UTF-8", name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("name %q contains a separator", name)
	}
	return nil
}
