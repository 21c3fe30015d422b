// Package storage provides the storage engine for stablemem.
//
// The engine owns both memory tiers of the process:
//
//   - Working memory: the keyed blob store, lost whenever the process
//     is replaced
//   - Stable memory: a paged region that survives replacement
//
// Snapshots move the store into stable memory and back. Raw streaming
// copies stable memory out and in without decoding it, and the memory
// header reports usage of both tiers.
//
// All operations are serialised. A mutating operation either fully
// succeeds or leaves both tiers untouched.
package storage
