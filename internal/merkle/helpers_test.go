package merkle

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func leafOf(t *testing.T, path, content string) *Leaf {
	t.Helper()
	leaf, err := NewLeafFromContent(path, []byte(content), false)
	require.NoError(t, err)
	return leaf
}

func randomBytes(r *rand.Rand, alphabet string, max int) []byte {
	n := r.Intn(max + 1)
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return b
}

// mutate edits part of an existing snapshot directory: rewrites, removes
// and adds files and directories.
func mutate(t *testing.T, r *rand.Rand, dir string) {
	t.Helper()
	var files []string
	require.NoError(t, filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	}))

	for _, f := range files {
		switch r.Intn(4) {
		case 0:
			require.NoError(t, os.WriteFile(f, randomBytes(r, "abcdefgh\n", 200), 0644))
		case 1:
			require.NoError(t, os.Remove(f))
		}
	}
	writeFile(t, filepath.Join(dir, "added", "new.txt"), string(randomBytes(r, "xyz", 50)))
	writeFile(t, filepath.Join(dir, "top-level.txt"), "fresh")
}

func populate(t *testing.T, r *rand.Rand, dir string, depth int) {
	t.Helper()
	for i := 0; i < 2+r.Intn(4); i++ {
		name := string(rune('a'+i)) + ".txt"
		writeFile(t, filepath.Join(dir, name), string(randomBytes(r, "abcdefgh\n", 300)))
	}
	if depth == 0 {
		return
	}
	for i := 0; i < 1+r.Intn(2); i++ {
		populate(t, r, filepath.Join(dir, "dir"+string(rune('0'+i))), depth-1)
	}
}
