package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"freesync/internal/codec"
	ferrors "freesync/internal/errors"
	"freesync/internal/merkle"
)

var (
	ErrBranchMoved    = errors.New("branch moved")
	ErrBranchExists   = errors.New("branch already exists")
	ErrBranchNotFound = errors.New("branch not found")
	ErrInvalidBranch  = errors.New("invalid branch name")
)

// SaveTree writes every object of t and points the current branch at its
// root. The current branch is the one named in HEAD, or main when HEAD is
// missing.
func (s *Store) SaveTree(t *merkle.Tree) error {
	if filepath.Clean(t.Path()) != s.root {
		return ferrors.Path("save", t.Path(), "tree is not rooted at "+s.root)
	}
	if err := s.Init(); err != nil {
		return err
	}
	if err := s.WriteTree(t); err != nil {
		return fmt.Errorf("writing objects: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	branch, err := s.currentBranch()
	if err != nil {
		return err
	}
	if err := s.writeBranch(branch, t.Hash()); err != nil {
		return err
	}
	if err := writeAtomic(s.metaPath(HeadFile), []byte(branch)); err != nil {
		return err
	}

	if s.journal != nil {
		if err := s.journal.RecordSnapshot(branch, t.Hash(), merkle.CountLeaves(t)); err != nil {
			return fmt.Errorf("recording snapshot: %w", err)
		}
	}
	return nil
}

// Head returns the current branch and the root hash it points at.
func (s *Store) Head() (string, codec.Hash, error) {
	branch, err := s.readHead()
	if err != nil {
		return "", codec.Hash{}, err
	}
	h, err := s.readBranch(branch)
	if err != nil {
		return "", codec.Hash{}, err
	}
	return branch, h, nil
}

// HeadPath returns the object file of the current root.
func (s *Store) HeadPath() (string, error) {
	_, h, err := s.Head()
	if err != nil {
		return "", err
	}
	return s.ObjectPath(h), nil
}

// UpdateBranch moves branch name from old to new. It fails with
// ErrBranchMoved when the branch no longer points at old. A missing branch
// is treated as pointing at the zero hash.
func (s *Store) UpdateBranch(name string, old, new codec.Hash) error {
	if err := ValidateBranchName(name); err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readBranch(name)
	switch {
	case errors.Is(err, ErrBranchNotFound):
		current = codec.Hash{}
	case err != nil:
		return err
	}
	if current != old {
		return fmt.Errorf("%w: %s is at %s, expected %s", ErrBranchMoved, name, current, old)
	}
	return s.writeBranch(name, new)
}

// CreateBranch creates name at the hash HEAD points at.
func (s *Store) CreateBranch(name string) error {
	if err := ValidateBranchName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.metaPath(BranchDir, name)); err == nil {
		return fmt.Errorf("%w: %s", ErrBranchExists, name)
	}
	head, err := s.readHead()
	if err != nil {
		return err
	}
	h, err := s.readBranch(head)
	if err != nil {
		return err
	}
	return s.writeBranch(name, h)
}

// SwitchBranch points HEAD at an existing branch.
func (s *Store) SwitchBranch(name string) error {
	if err := ValidateBranchName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readBranch(name); err != nil {
		return err
	}
	return writeAtomic(s.metaPath(HeadFile), []byte(name))
}

// Branches lists branch names in lexical order.
func (s *Store) Branches() ([]string, error) {
	dir := s.metaPath(BranchDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, ferrors.IO("read directory", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".tmp-") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ValidateBranchName rejects names that cannot be used as a file name
// inside the branch directory.
func ValidateBranchName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidBranch, name)
	case strings.ContainsAny(name, "/\\\x00 \t\r\n"):
		return fmt.Errorf("%w: %q", ErrInvalidBranch, name)
	case strings.HasPrefix(name, ".tmp-"):
		return fmt.Errorf("%w: %q", ErrInvalidBranch, name)
	}
	return nil
}

func (s *Store) currentBranch() (string, error) {
	branch, err := s.readHead()
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultBranch, nil
	}
	return branch, err
}

func (s *Store) readHead() (string, error) {
	path := s.metaPath(HeadFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ferrors.IO("read", path, err)
	}
	branch := strings.TrimRight(string(data), "\r\n")
	if err := ValidateBranchName(branch); err != nil {
		return "", ferrors.Format("read", path, "HEAD names %v", err)
	}
	return branch, nil
}

func (s *Store) readBranch(name string) (codec.Hash, error) {
	path := s.metaPath(BranchDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrBranchNotFound, name)
		}
		return codec.Hash{}, ferrors.IO("read branch", path, err)
	}
	h, err := codec.HashFromBytes(data)
	if err != nil {
		return codec.Hash{}, ferrors.Format("read", path, "branch file holds %d bytes, want %d", len(data), codec.HashSize)
	}
	return h, nil
}

func (s *Store) writeBranch(name string, h codec.Hash) error {
	return writeAtomic(s.metaPath(BranchDir, name), h.Bytes())
}

// BlobText decodes a blob object named either by its hex hash or by the
// path of the object file, and renders it as
//
//	Data:<text>
//	Hash:<hex>
//
// Invalid UTF-8 is replaced with U+FFFD.
func (s *Store) BlobText(hashOrPath string) (string, error) {
	path := hashOrPath
	if h, err := codec.ParseHash(hashOrPath); err == nil {
		path = s.ObjectPath(h)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return "", ferrors.IO("read object", path, err)
	}
	leaf, err := merkle.NewLeafFromBlob(path, body, false)
	if err != nil {
		return "", err
	}
	raw, err := leaf.Content()
	if err != nil {
		return "", err
	}
	text := strings.ToValidUTF8(string(raw), "\uFFFD")
	return fmt.Sprintf("Data:%s\nHash:%s\n", text, leaf.Hash()), nil
}
