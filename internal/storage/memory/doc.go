// Package memory provides the in-memory keyed blob store for stablemem.
//
// The store maps dense integer keys to opaque byte blobs. Keys are
// assigned on insertion as the current entry count, so a store holding
// n entries always has exactly the keys 0..n-1 and insertion order equals
// key order. There is no delete: removing an entry would break key
// density, and the snapshot format relies on it.
//
// Thread Safety:
//
// The store is not safe for concurrent use. The storage engine
// serialises every call that touches it.
package memory
