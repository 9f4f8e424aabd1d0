package diff

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freesync/internal/merkle"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestUnified(t *testing.T) {
	text, err := Unified("a/f.txt", "b/f.txt", []byte("a\nb\nc\n"), []byte("a\nB\nc\nd"), 1)
	require.NoError(t, err)
	assert.Contains(t, text, "--- a/f.txt\n+++ b/f.txt\n")
	assert.Contains(t, text, "-b\n+B\n")
	assert.Contains(t, text, "+d\n")
	assert.Equal(t, LineStats{Additions: 2, Deletions: 1}, CountLines(text))

	same, err := Unified("a", "b", []byte("x\n"), []byte("x\n"), 3)
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{}, splitLines(""))
	assert.Equal(t, []string{"a\n", "b\n"}, splitLines("a\nb\n"))
	assert.Equal(t, []string{"a\n", "b\n"}, splitLines("a\nb"))
}

func snapshot(t *testing.T, dir string, files map[string]string) *merkle.Tree {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	tree, err := merkle.Build(dir)
	require.NoError(t, err)
	return tree
}

func TestFormat(t *testing.T) {
	dir := t.TempDir()
	before := snapshot(t, dir, map[string]string{
		"keep.txt":   "keep\n",
		"edit.txt":   "one\ntwo\nthree\n",
		"gone/a.txt": "a\n",
		"gone/b.txt": "b\n",
	})
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "gone")))
	after := snapshot(t, dir, map[string]string{
		"edit.txt":  "one\n2\nthree\n",
		"new/c.txt": "c\n",
	})

	diffs, err := merkle.FindDifferences(before, after)
	require.NoError(t, err)

	stats := Summarize(before, diffs)
	assert.Equal(t, Stats{Created: 1, Deleted: 1, Changed: 1, Files: 4}, stats)
	assert.Equal(t, "1 created, 1 deleted, 1 modified (4 files)", stats.String())

	lines, err := ChangedLines(before, diffs)
	require.NoError(t, err)
	assert.Equal(t, LineStats{Additions: 1, Deletions: 1}, lines)
	assert.Equal(t, "+1 -1 lines", lines.String())

	_, err = ChangedLines(nil, diffs)
	assert.Error(t, err)

	var plain bytes.Buffer
	require.NoError(t, Format(&plain, diffs, Options{Root: dir}))
	assert.Equal(t, "M edit.txt\nD gone\nA new\n", plain.String())

	var text bytes.Buffer
	require.NoError(t, Format(&text, diffs, Options{Root: dir, Text: true, Base: before}))
	out := text.String()
	assert.Contains(t, out, "--- a/edit.txt\n+++ b/edit.txt\n")
	assert.Contains(t, out, "-two\n+2\n")

	assert.Error(t, Format(&bytes.Buffer{}, diffs, Options{Text: true}))
}

func TestSummarizeEmpty(t *testing.T) {
	assert.True(t, Summarize(nil, nil).Empty())
}

func TestDisplayPath(t *testing.T) {
	root := filepath.Join("/", "repo")
	assert.Equal(t, "a/b.txt", displayPath(root, filepath.Join(root, "a", "b.txt")))
	assert.Equal(t, "/elsewhere", displayPath(root, "/elsewhere"))
	assert.Equal(t, "/repo/x", displayPath("", "/repo/x"))
}
