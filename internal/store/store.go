// Package store persists snapshots as content-addressed objects under the
// .freesync metadata directory and tracks named branches pointing at them.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"freesync/internal/codec"
	ferrors "freesync/internal/errors"
	"freesync/internal/merkle"
)

const (
	MetaDir       = merkle.MetaDir
	ObjectsDir    = "objects"
	BranchDir     = "branch"
	HeadFile      = "HEAD"
	JournalDir    = "journal"
	DefaultBranch = "main"

	DefaultCacheSize = 1024
)

var ErrObjectNotFound = errors.New("object not found")

// Journal receives a record for every snapshot saved on a branch.
type Journal interface {
	RecordSnapshot(branch string, root codec.Hash, files int) error
}

type Option func(*Store)

// WithCacheSize bounds the number of raw objects kept in memory. Zero
// disables the cache.
func WithCacheSize(n int) Option {
	return func(s *Store) { s.cacheSize = n }
}

func WithJournal(j Journal) Option {
	return func(s *Store) { s.journal = j }
}

// Store is rooted at the directory that is being snapshotted.
type Store struct {
	root      string
	cacheSize int
	cache     *lru.Cache[codec.Hash, []byte]
	journal   Journal

	// mu serializes branch and HEAD updates.
	mu sync.Mutex
}

func New(root string, opts ...Option) (*Store, error) {
	s := &Store{
		root:      filepath.Clean(root),
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cacheSize > 0 {
		cache, err := lru.New[codec.Hash, []byte](s.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating object cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

func (s *Store) Root() string { return s.root }

// JournalPath is where the snapshot journal of a store rooted at root lives.
func JournalPath(root string) string {
	return filepath.Join(root, MetaDir, JournalDir)
}

func (s *Store) metaPath(elem ...string) string {
	return filepath.Join(append([]string{s.root, MetaDir}, elem...)...)
}

// ObjectPath returns the file an object is stored in:
// objects/<first 2 hex>/<remaining 62 hex>.
func (s *Store) ObjectPath(h codec.Hash) string {
	hex := h.String()
	return s.metaPath(ObjectsDir, hex[:2], hex[2:])
}

// Init creates the metadata skeleton. It is idempotent.
func (s *Store) Init() error {
	for _, dir := range []string{s.metaPath(ObjectsDir), s.metaPath(BranchDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ferrors.IO("create directory", dir, err)
		}
	}
	return nil
}

// WriteBlob stores the leaf's blob object unless it already exists.
func (s *Store) WriteBlob(l *merkle.Leaf) error {
	return s.writeObject(l.Hash(), l.Blob())
}

// WriteTree stores every object reachable from t, children first. A tree
// whose object already exists is skipped along with its descendants.
func (s *Store) WriteTree(t *merkle.Tree) error {
	// The empty tree shares its hash with the empty blob and is never
	// stored; readers resolve it without touching disk.
	if len(t.Children()) == 0 {
		return nil
	}
	if s.exists(t.Hash()) {
		return nil
	}

	for _, child := range t.Children() {
		switch c := child.(type) {
		case *merkle.Leaf:
			if err := s.WriteBlob(c); err != nil {
				return err
			}
		case *merkle.Tree:
			if err := s.WriteTree(c); err != nil {
				return err
			}
		default:
			panic(fmt.Sprintf("store: unexpected node type %T", child))
		}
	}

	body, err := EncodeTree(t)
	if err != nil {
		return err
	}
	return s.writeObject(t.Hash(), body)
}

func (s *Store) exists(h codec.Hash) bool {
	_, err := os.Stat(s.ObjectPath(h))
	return err == nil
}

func (s *Store) writeObject(h codec.Hash, body []byte) error {
	path := s.ObjectPath(h)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ferrors.IO("create directory", filepath.Dir(path), err)
	}
	if err := writeAtomic(path, body); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Add(h, body)
	}
	return nil
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place, so readers never observe a partial file.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return ferrors.IO("create temp file", dir, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return ferrors.IO("write", tmp, err)
	}
	if err = f.Chmod(0o644); err != nil {
		return ferrors.IO("chmod", tmp, err)
	}
	if err = f.Sync(); err != nil {
		return ferrors.IO("sync", tmp, err)
	}
	if err = f.Close(); err != nil {
		return ferrors.IO("close", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return ferrors.IO("rename", path, err)
	}
	return nil
}

func (s *Store) readObject(h codec.Hash) ([]byte, error) {
	if s.cache != nil {
		if body, ok := s.cache.Get(h); ok {
			return body, nil
		}
	}

	path := s.ObjectPath(h)
	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrObjectNotFound, h)
		}
		return nil, ferrors.IO("read object", path, err)
	}
	if s.cache != nil {
		s.cache.Add(h, body)
	}
	return body, nil
}

// ReadTree loads the snapshot HEAD points at.
func (s *Store) ReadTree() (*merkle.Tree, error) {
	_, root, err := s.Head()
	if err != nil {
		return nil, err
	}
	return s.ReadTreeAt(root)
}

// ReadTreeAt loads the snapshot with the given root hash. Node paths are
// rebuilt under the store root.
func (s *Store) ReadTreeAt(root codec.Hash) (*merkle.Tree, error) {
	return s.readTree(root, s.root)
}

func (s *Store) readTree(h codec.Hash, path string) (*merkle.Tree, error) {
	if h == codec.EmptyHash {
		return merkle.NewTree(path, nil), nil
	}

	body, err := s.readObject(h)
	if err != nil {
		return nil, err
	}
	entries, err := DecodeEntries(body)
	if err != nil {
		return nil, ferrors.WithPath(err, s.ObjectPath(h))
	}

	children := make([]merkle.Node, 0, len(entries))
	for _, e := range entries {
		childPath := filepath.Join(path, e.Name)
		var (
			child merkle.Node
			err   error
		)
		if e.IsDir() {
			child, err = s.readTree(e.Hash, childPath)
		} else {
			child, err = s.readLeaf(e.Hash, childPath, e.Mode == ModeExecutable)
		}
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	t := merkle.NewTree(path, children)
	if t.Hash() != h {
		return nil, ferrors.Integrity(s.ObjectPath(h), h.String(), t.Hash().String())
	}
	return t, nil
}

func (s *Store) readLeaf(h codec.Hash, path string, executable bool) (*merkle.Leaf, error) {
	body, err := s.readObject(h)
	if err != nil {
		return nil, err
	}
	leaf, err := merkle.NewLeafFromBlob(path, body, executable)
	if err != nil {
		return nil, ferrors.WithPath(err, s.ObjectPath(h))
	}
	if leaf.Hash() != h {
		return nil, ferrors.Integrity(s.ObjectPath(h), h.String(), leaf.Hash().String())
	}
	return leaf, nil
}

// ReadBlob loads a single blob object. The leaf's path is the object file.
func (s *Store) ReadBlob(h codec.Hash) (*merkle.Leaf, error) {
	return s.readLeaf(h, s.ObjectPath(h), false)
}
