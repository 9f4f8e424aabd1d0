package merkle

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	ferrors "freesync/internal/errors"
)

// MetaDir is the name of the store's metadata directory; it is never part
// of a snapshot.
const MetaDir = ".freesync"

type buildConfig struct {
	exclude map[string]struct{}
}

type BuildOption func(*buildConfig)

// WithExclude adds entry names that are skipped wherever they appear.
func WithExclude(names ...string) BuildOption {
	return func(c *buildConfig) {
		for _, name := range names {
			c.exclude[name] = struct{}{}
		}
	}
}

// Build snapshots the directory at dir. Symbolic links and other
// non-regular entries are skipped.
func Build(dir string, opts ...BuildOption) (*Tree, error) {
	cfg := &buildConfig{exclude: map[string]struct{}{MetaDir: {}}}
	for _, opt := range opts {
		opt(cfg)
	}

	dir = filepath.Clean(dir)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, ferrors.IO("stat", dir, err)
	}
	if !info.IsDir() {
		return nil, ferrors.IO("build", dir, fmt.Errorf("not a directory"))
	}
	return buildTree(dir, cfg)
}

func buildTree(dir string, cfg *buildConfig) (*Tree, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ferrors.IO("read directory", dir, err)
	}

	children := make([]Node, 0, len(entries))
	for _, entry := range entries {
		if _, skip := cfg.exclude[entry.Name()]; skip {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		switch mode := entry.Type(); {
		case mode&fs.ModeSymlink != 0:
			continue
		case mode.IsDir():
			sub, err := buildTree(path, cfg)
			if err != nil {
				return nil, err
			}
			children = append(children, sub)
		case mode.IsRegular():
			leaf, err := NewLeaf(path)
			if err != nil {
				return nil, err
			}
			children = append(children, leaf)
		}
	}

	return NewTree(dir, children), nil
}
