package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freesync/internal/codec"
	ferrors "freesync/internal/errors"
	"freesync/internal/merkle"
)

func writeFile(t *testing.T, path, content string, perm os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
}

// workdir creates a small project with nested, executable, empty and
// binary files and an empty directory.
func workdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "README.md"), "# project\n", 0644)
	writeFile(t, filepath.Join(dir, "empty.txt"), "", 0644)
	writeFile(t, filepath.Join(dir, "bin", "run.sh"), "#!/bin/sh\necho hi\n", 0755)
	writeFile(t, filepath.Join(dir, "src", "pkg", "main.go"), "package main\n", 0644)
	writeFile(t, filepath.Join(dir, "src", "data.bin"), "\x00\x01\xff\xfe", 0644)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "empty"), 0755))
	return dir
}

func newStore(t *testing.T, dir string, opts ...Option) *Store {
	t.Helper()
	s, err := New(dir, opts...)
	require.NoError(t, err)
	return s
}

func saveSnapshot(t *testing.T, s *Store) *merkle.Tree {
	t.Helper()
	tree, err := merkle.Build(s.Root())
	require.NoError(t, err)
	require.NoError(t, s.SaveTree(tree))
	return tree
}

func countObjects(t *testing.T, s *Store) int {
	t.Helper()
	n := 0
	require.NoError(t, filepath.WalkDir(filepath.Join(s.Root(), MetaDir, ObjectsDir), func(_ string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		if d.Type().IsRegular() {
			n++
		}
		return nil
	}))
	return n
}

func TestSaveAndReadTree(t *testing.T) {
	s := newStore(t, workdir(t))
	tree := saveSnapshot(t, s)

	got, err := s.ReadTree()
	require.NoError(t, err)
	assert.Equal(t, tree.Hash(), got.Hash())

	diffs, err := merkle.FindDifferences(tree, got)
	require.NoError(t, err)
	assert.Empty(t, diffs)

	run, ok := got.Find(filepath.Join(s.Root(), "bin", "run.sh")).(*merkle.Leaf)
	require.True(t, ok)
	assert.True(t, run.Executable())
	content, err := run.Content()
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho hi\n", string(content))

	empty, ok := got.Find(filepath.Join(s.Root(), "src", "empty")).(*merkle.Tree)
	require.True(t, ok)
	assert.Empty(t, empty.Children())
	assert.Equal(t, codec.EmptyHash, empty.Hash())

	emptyFile, ok := got.Find(filepath.Join(s.Root(), "empty.txt")).(*merkle.Leaf)
	require.True(t, ok)
	assert.Equal(t, codec.EmptyHash, emptyFile.Hash())
}

func TestSaveTreeLayout(t *testing.T) {
	s := newStore(t, workdir(t))
	tree := saveSnapshot(t, s)

	head, err := os.ReadFile(filepath.Join(s.Root(), MetaDir, HeadFile))
	require.NoError(t, err)
	assert.Equal(t, DefaultBranch, string(head))

	ref, err := os.ReadFile(filepath.Join(s.Root(), MetaDir, BranchDir, DefaultBranch))
	require.NoError(t, err)
	assert.Equal(t, tree.Hash().Bytes(), ref)

	hex := tree.Hash().String()
	path, err := s.HeadPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), MetaDir, ObjectsDir, hex[:2], hex[2:]), path)
	assert.FileExists(t, path)

	// 5 blobs and 4 non-empty trees: root, bin, src, src/pkg.
	assert.Equal(t, 9, countObjects(t, s))
}

func TestSaveTreeIsIdempotent(t *testing.T) {
	s := newStore(t, workdir(t))
	first := saveSnapshot(t, s)
	n := countObjects(t, s)

	second := saveSnapshot(t, s)
	assert.Equal(t, first.Hash(), second.Hash())
	assert.Equal(t, n, countObjects(t, s))
}

func TestSaveTreeAfterChange(t *testing.T) {
	s := newStore(t, workdir(t))
	before := saveSnapshot(t, s)

	writeFile(t, filepath.Join(s.Root(), "src", "pkg", "main.go"), "package main\n\nfunc main() {}\n", 0644)
	after := saveSnapshot(t, s)
	require.NotEqual(t, before.Hash(), after.Hash())

	_, head, err := s.Head()
	require.NoError(t, err)
	assert.Equal(t, after.Hash(), head)

	old, err := s.ReadTreeAt(before.Hash())
	require.NoError(t, err)
	assert.Equal(t, before.Hash(), old.Hash())
}

func TestSaveTreeRejectsForeignRoot(t *testing.T) {
	s := newStore(t, t.TempDir())
	other, err := merkle.Build(workdir(t))
	require.NoError(t, err)

	err = s.SaveTree(other)
	require.Error(t, err)
	assert.Equal(t, ferrors.KindPath, ferrors.KindOf(err))
}

func TestReadTreeDetectsCorruption(t *testing.T) {
	dir := workdir(t)
	s := newStore(t, dir)
	tree := saveSnapshot(t, s)

	readme := tree.Find(filepath.Join(dir, "README.md")).(*merkle.Leaf)
	forged, err := merkle.NewLeafFromContent("forged", []byte("# tampered\n"), false)
	require.NoError(t, err)
	path := s.ObjectPath(readme.Hash())
	require.NoError(t, os.Chmod(path, 0644))
	require.NoError(t, os.WriteFile(path, forged.Blob(), 0644))

	_, err = newStore(t, dir).ReadTree()
	require.Error(t, err)
	assert.Equal(t, ferrors.KindIntegrity, ferrors.KindOf(err))
}

func TestReadTreeMalformedObject(t *testing.T) {
	dir := workdir(t)
	s := newStore(t, dir)
	tree := saveSnapshot(t, s)

	path := s.ObjectPath(tree.Hash())
	require.NoError(t, os.WriteFile(path, []byte("100644 bogus\x00"), 0644))

	_, err := newStore(t, dir).ReadTree()
	require.Error(t, err)
	assert.Equal(t, ferrors.KindFormat, ferrors.KindOf(err))
	assert.Contains(t, err.Error(), path)
}

func TestReadTreeWithoutHead(t *testing.T) {
	s := newStore(t, t.TempDir())
	_, err := s.ReadTree()
	require.Error(t, err)
	assert.Equal(t, ferrors.KindIO, ferrors.KindOf(err))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestReadBlob(t *testing.T) {
	dir := workdir(t)
	s := newStore(t, dir, WithCacheSize(0))
	saveSnapshot(t, s)

	h := codec.Sum([]byte("package main\n"))
	leaf, err := s.ReadBlob(h)
	require.NoError(t, err)
	assert.Equal(t, h, leaf.Hash())
	assert.Equal(t, s.ObjectPath(h), leaf.Path())

	_, err = s.ReadBlob(codec.Sum([]byte("missing")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Equal(t, ferrors.KindIO, ferrors.KindOf(err))
}

func TestSaveTreeBackslashNames(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("backslash is a path separator on windows")
	}
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, `a\b`), "ab", 0644)
	writeFile(t, filepath.Join(dir, "notes", `notes\draft.txt`), "draft", 0644)
	s := newStore(t, dir)
	tree := saveSnapshot(t, s)

	got, err := newStore(t, dir).ReadTree()
	require.NoError(t, err)
	assert.Equal(t, tree.Hash(), got.Hash())

	leaf, ok := got.Find(filepath.Join(dir, `a\b`)).(*merkle.Leaf)
	require.True(t, ok)
	content, err := leaf.Content()
	require.NoError(t, err)
	assert.Equal(t, "ab", string(content))
	assert.NotNil(t, got.Find(filepath.Join(dir, "notes", `notes\draft.txt`)))
}

func TestEmptySnapshot(t *testing.T) {
	s := newStore(t, t.TempDir())
	tree := saveSnapshot(t, s)
	assert.Equal(t, codec.EmptyHash, tree.Hash())

	got, err := s.ReadTree()
	require.NoError(t, err)
	assert.Equal(t, codec.EmptyHash, got.Hash())
	assert.Empty(t, got.Children())
}

func TestBlobText(t *testing.T) {
	dir := workdir(t)
	s := newStore(t, dir)
	saveSnapshot(t, s)

	h := codec.Sum([]byte("# project\n"))
	want := "Data:# project\n\nHash:" + h.String() + "\n"

	byHash, err := s.BlobText(h.String())
	require.NoError(t, err)
	assert.Equal(t, want, byHash)

	byPath, err := s.BlobText(s.ObjectPath(h))
	require.NoError(t, err)
	assert.Equal(t, want, byPath)

	binary, err := s.BlobText(codec.Sum([]byte("\x00\x01\xff\xfe")).String())
	require.NoError(t, err)
	assert.Contains(t, binary, "\x00\x01\uFFFD")

	_, err = s.BlobText(filepath.Join(dir, "nope"))
	assert.Equal(t, ferrors.KindIO, ferrors.KindOf(err))

	_, err = s.BlobText(filepath.Join(dir, "README.md"))
	assert.Equal(t, ferrors.KindCodec, ferrors.KindOf(err))
}

type fakeJournal struct {
	branches []string
	roots    []codec.Hash
	files    []int
}

func (j *fakeJournal) RecordSnapshot(branch string, root codec.Hash, files int) error {
	j.branches = append(j.branches, branch)
	j.roots = append(j.roots, root)
	j.files = append(j.files, files)
	return nil
}

func TestSaveTreeRecordsJournal(t *testing.T) {
	j := &fakeJournal{}
	s := newStore(t, workdir(t), WithJournal(j))
	tree := saveSnapshot(t, s)

	assert.Equal(t, []string{DefaultBranch}, j.branches)
	assert.Equal(t, []codec.Hash{tree.Hash()}, j.roots)
	assert.Equal(t, []int{5}, j.files)
}
