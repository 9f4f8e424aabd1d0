package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashSize is the length in bytes of every object identifier.
const HashSize = sha256.Size

// Hash identifies an object in the store: the SHA-256 of a leaf's raw
// content, or of the concatenated child hashes of a tree.
type Hash [HashSize]byte

// EmptyHash is the hash of zero-length input, i.e. the hash of an empty tree.
var EmptyHash = Sum(nil)

func Sum(b []byte) Hash {
	return sha256.Sum256(b)
}

// String returns the 64-character lower-case hex form.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the raw digest.
func (h Hash) Bytes() []byte {
	return append([]byte(nil), h[:]...)
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash converts a 64-character hex string to a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 2*HashSize {
		return h, fmt.Errorf("invalid hash length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	copy(h[:], b)
	return h, nil
}

// HashFromBytes copies a raw 32-byte identifier.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}
