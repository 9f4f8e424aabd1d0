package merkle

import (
	"bytes"
	"fmt"

	"freesync/internal/codec"
)

// lookahead bounds how far the differ searches for a resynchronisation
// point before choosing between a delete and an insert.
const lookahead = 32

// DiffFile computes an edit script that turns a's content into b's.
//
// The scan is greedy and local: copy the longest common prefix, otherwise
// delete one byte of a or insert the shortest run of b that ends before a's
// current byte reappears. The script always terminates with End(b.Hash()).
func DiffFile(a, b *Leaf) ([]Change, error) {
	src, err := a.Content()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", a.path, err)
	}
	dst, err := b.Content()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", b.path, err)
	}
	return diffBytes(src, dst, b.hash)
}

func diffBytes(src, dst []byte, final codec.Hash) ([]Change, error) {
	var (
		changes []Change
		i, j    int
	)
	for {
		restA, restB := src[i:], dst[j:]

		switch {
		case len(restA) == 0 && len(restB) == 0:
			return append(changes, End(final)), nil

		case len(restA) == 0:
			data, err := codec.Compress(restB)
			if err != nil {
				return nil, err
			}
			changes = append(changes, Insert(data))
			j = len(dst)
			continue

		case len(restB) == 0:
			changes = append(changes, Delete(uint64(i), uint64(len(src)-1)))
			i = len(src)
			continue
		}

		if n := commonPrefix(restA, restB); n > 0 {
			changes = append(changes, Copy(uint64(i), uint64(i+n-1)))
			i += n
			j += n
			continue
		}

		if shouldDelete(restA, restB) {
			changes = append(changes, Delete(uint64(i), uint64(i)))
			i++
			continue
		}

		n := insertRun(restA[0], restB)
		data, err := codec.Compress(restB[:n])
		if err != nil {
			return nil, err
		}
		changes = append(changes, Insert(data))
		j += n
	}
}

func commonPrefix(a, b []byte) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// shouldDelete compares how soon b's next byte reappears in a against how
// soon a's next byte reappears in b. Ties and double misses delete.
func shouldDelete(a, b []byte) bool {
	d := bytes.IndexByte(a[:min(len(a), lookahead)], b[0])
	k := bytes.IndexByte(b[:min(len(b), lookahead)], a[0])
	switch {
	case d >= 0 && k >= 0:
		return d <= k
	case k >= 0:
		return false
	default:
		return true
	}
}

// insertRun returns the length of the shortest prefix of b followed by
// next, or len(b) when next never occurs.
func insertRun(next byte, b []byte) int {
	n := 1
	for n < len(b) && b[n] != next {
		n++
	}
	return n
}
