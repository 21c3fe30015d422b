// Package domain defines the core domain models for stablemem.
package domain

import "bytes"

// Entry is one key/blob pair of the keyed blob store.
type Entry struct {
	Key   uint64
	Value []byte
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	v := make([]byte, len(e.Value))
	copy(v, e.Value)
	return Entry{Key: e.Key, Value: v}
}

// Equal reports whether two entries have the same key and value bytes.
func (e Entry) Equal(o Entry) bool {
	return e.Key == o.Key && bytes.Equal(e.Value, o.Value)
}

// CheckDense verifies that entries carry exactly the keys 0..len-1 in order.
func CheckDense(entries []Entry) error {
	for i, e := range entries {
		if e.Key != uint64(i) {
			return ErrKeyDensity.WithDetailsf("position %d holds key %d", i, e.Key)
		}
	}
	return nil
}
