package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"freesync/internal/codec"
)

const snapshotPrefix = "snapshot"

// Snapshot is one saved root on a branch.
type Snapshot struct {
	ID        string    `json:"id"`
	Branch    string    `json:"branch"`
	Root      string    `json:"root"`
	Files     int       `json:"files"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Snapshot) GetID() string { return s.ID }

// Journal records every snapshot saved by a store.
type Journal struct {
	db        *badger.DB
	snapshots *BadgerStore
	now       func() time.Time
}

// OpenJournal opens the journal database in dir. An empty dir keeps the
// journal in memory.
func OpenJournal(dir string) (*Journal, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return NewJournal(db), nil
}

func NewJournal(db *badger.DB) *Journal {
	return &Journal{
		db:        db,
		snapshots: NewBadgerStore(db, snapshotPrefix),
		now:       time.Now,
	}
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) Record(branch string, root codec.Hash, files int) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        uuid.NewString(),
		Branch:    branch,
		Root:      root.String(),
		Files:     files,
		CreatedAt: j.now().UTC(),
	}
	if err := j.snapshots.Create(snap); err != nil {
		return nil, fmt.Errorf("recording snapshot: %w", err)
	}
	return snap, nil
}

// RecordSnapshot lets the journal be attached to a store.
func (j *Journal) RecordSnapshot(branch string, root codec.Hash, files int) error {
	_, err := j.Record(branch, root, files)
	return err
}

func (j *Journal) Get(id string) (*Snapshot, error) {
	var snap Snapshot
	if err := j.snapshots.Get(id, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// List returns the snapshots of branch, newest first. An empty branch
// lists every branch.
func (j *Journal) List(branch string) ([]*Snapshot, error) {
	var snaps []*Snapshot
	err := j.snapshots.Each(func(id string, val []byte) error {
		var snap Snapshot
		if err := json.Unmarshal(val, &snap); err != nil {
			return fmt.Errorf("decoding snapshot %s: %w", id, err)
		}
		if branch == "" || snap.Branch == branch {
			snaps = append(snaps, &snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(snaps, func(a, b int) bool {
		if !snaps[a].CreatedAt.Equal(snaps[b].CreatedAt) {
			return snaps[a].CreatedAt.After(snaps[b].CreatedAt)
		}
		return snaps[a].ID > snaps[b].ID
	})
	return snaps, nil
}

// Prune deletes all but the newest keep snapshots of branch.
func (j *Journal) Prune(branch string, keep int) (int, error) {
	snaps, err := j.List(branch)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	removed := 0
	for _, snap := range snaps[min(keep, len(snaps)):] {
		if err := j.snapshots.Delete(snap.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
