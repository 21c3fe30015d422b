// Package snapshot provides the snapshot envelope codec and its storage in
// stable memory.
//
// A snapshot is one self-validating envelope written at offset 0 of the
// stable region:
//
//	[magic:8 "STBLSNAP"]
//	[version:2][flags:2][payload_len:8]        big endian
//	[payload:payload_len]                      protobuf wire format
//	[checksum:32 BLAKE2b-256 of all bytes above]
//
// The payload is an Envelope message:
//
//	message Envelope {
//	  uint64 created_at_ms = 1;
//	  uint64 entry_count   = 2;
//	  repeated Entry entries = 3;
//	}
//	message Entry {
//	  uint64 key   = 1;
//	  bytes  value = 2;
//	}
//
// Unknown payload fields are skipped so later versions can add fields
// without breaking older readers. Decoding checks magic, version, flags,
// length, checksum, payload structure, entry count and key density, in
// that order, before any entry is returned.
//
// Archive keeps optional on-disk copies of saved envelopes with a
// retention policy:
//
//	snapshot-<timestamp>-<sequence>.snap
package snapshot
