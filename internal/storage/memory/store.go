// Package memory provides the in-memory keyed blob store for stablemem.
package memory

import (
	"github.com/yndnr/stablemem/internal/core/domain"
)

// Store is a dense, append-only mapping from key to blob.
type Store struct {
	blobs [][]byte

	// Total blob bytes, kept for stats.
	size uint64
}

// Option configures the Store.
type Option func(*Store)

// WithCapacity preallocates room for n entries.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.blobs = make([][]byte, 0, n)
		}
	}
}

// New creates a new empty store.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert stores a private copy of blob under key Len() and returns that key.
func (s *Store) Insert(blob []byte) uint64 {
	key := uint64(len(s.blobs))
	s.blobs = append(s.blobs, clone(blob))
	s.size += uint64(len(blob))
	return key
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.blobs)
}

// Size returns the total number of blob bytes held.
func (s *Store) Size() uint64 {
	return s.size
}

// NextKey returns the key the next Insert will assign.
func (s *Store) NextKey() uint64 {
	return uint64(len(s.blobs))
}

// Get returns a copy of the blob stored under key.
func (s *Store) Get(key uint64) ([]byte, bool) {
	if key >= uint64(len(s.blobs)) {
		return nil, false
	}
	return clone(s.blobs[key]), true
}

// Entries returns a deep copy of all entries in ascending key order.
func (s *Store) Entries() []domain.Entry {
	out := make([]domain.Entry, len(s.blobs))
	for i, b := range s.blobs {
		out[i] = domain.Entry{Key: uint64(i), Value: clone(b)}
	}
	return out
}

// Scan calls fn for every entry in ascending key order until fn returns false.
// The entry value aliases store memory and must not be modified or retained.
func (s *Store) Scan(fn func(domain.Entry) bool) {
	for i, b := range s.blobs {
		if !fn(domain.Entry{Key: uint64(i), Value: b}) {
			return
		}
	}
}

// Replace swaps the whole content of the store for entries.
//
// Entries must carry exactly the keys 0..len-1 in order; otherwise the
// store is left untouched and ErrKeyDensity is returned.
func (s *Store) Replace(entries []domain.Entry) error {
	if err := domain.CheckDense(entries); err != nil {
		return err
	}

	blobs := make([][]byte, len(entries))
	var size uint64
	for i, e := range entries {
		blobs[i] = clone(e.Value)
		size += uint64(len(e.Value))
	}

	s.blobs = blobs
	s.size = size
	return nil
}

// Reset empties the store.
func (s *Store) Reset() {
	s.blobs = nil
	s.size = 0
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
