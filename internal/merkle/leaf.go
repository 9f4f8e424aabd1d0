package merkle

import (
	"fmt"
	"os"
	"path/filepath"

	"freesync/internal/codec"
	ferrors "freesync/internal/errors"
)

// Leaf is a regular file: the hash of its raw content and the compressed
// blob object holding that content.
type Leaf struct {
	hash       codec.Hash
	blob       []byte
	path       string
	executable bool
}

// NewLeaf reads the file at path.
func NewLeaf(path string) (*Leaf, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, ferrors.IO("stat", path, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.IO("read", path, err)
	}
	return NewLeafFromContent(path, raw, info.Mode()&0o111 != 0)
}

// NewLeafFromContent builds a leaf for raw content without touching the
// filesystem.
func NewLeafFromContent(path string, raw []byte, executable bool) (*Leaf, error) {
	blob, err := codec.EncodeBlob(raw)
	if err != nil {
		return nil, ferrors.WithPath(err, path)
	}
	return &Leaf{
		hash:       codec.Sum(raw),
		blob:       blob,
		path:       path,
		executable: executable,
	}, nil
}

// NewLeafFromBlob restores a leaf from a stored blob object. The hash is
// recomputed from the decoded content.
func NewLeafFromBlob(path string, blob []byte, executable bool) (*Leaf, error) {
	raw, err := codec.DecodeBlob(blob)
	if err != nil {
		return nil, ferrors.WithPath(err, path)
	}
	return &Leaf{
		hash:       codec.Sum(raw),
		blob:       append([]byte(nil), blob...),
		path:       path,
		executable: executable,
	}, nil
}

func (l *Leaf) Hash() codec.Hash { return l.hash }
func (l *Leaf) Path() string     { return l.path }
func (l *Leaf) Name() string     { return filepath.Base(l.path) }

// Blob returns the compressed object body. Callers must not modify it.
func (l *Leaf) Blob() []byte { return l.blob }

func (l *Leaf) Executable() bool { return l.executable }

// Content decompresses and returns the raw file content.
func (l *Leaf) Content() ([]byte, error) {
	raw, err := codec.DecodeBlob(l.blob)
	if err != nil {
		return nil, ferrors.WithPath(err, l.path)
	}
	return raw, nil
}

func (l *Leaf) String() string {
	return fmt.Sprintf("Leaf(%s %s)", l.path, l.hash.String()[:12])
}

func (l *Leaf) cloneNode() Node {
	c := *l
	c.blob = append([]byte(nil), l.blob...)
	return &c
}
