// Package wal provides the redo journal that makes file region commits
// atomic.
//
// A commit first writes every changed page to the journal, followed by a
// commit record, and syncs it. Only then are the pages written in place.
// Once the region file is synced the journal is truncated. After a crash a
// journal ending in a valid commit record is replayed; anything else is a
// torn write and is discarded.
//
// Format:
//
//	[magic:8 "SMWAL\x00\x00\x01"]
//	[Record]*
//
// Record wire format:
//
//	[Length:4][CRC32:4][Type:1][Payload:Length-5]
//
// Where:
//   - Length = CRC32 + Type + Payload (big-endian uint32)
//   - CRC32 covers Type+Payload (IEEE)
//   - a page record payload is [page:8][data:PageSize]
//   - a commit record payload is [pageCount:8][records:4]
package wal
