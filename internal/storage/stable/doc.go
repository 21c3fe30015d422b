// Package stable provides the durable paged memory region.
//
// A Region is an untyped, zero-initialised byte space addressed in whole
// pages of domain.PageSize bytes. It only ever grows. Three backends are
// available:
//
//   - MemRegion: a byte slice, used by tests and ephemeral deployments
//   - FileRegion: a single file whose size is a multiple of PageSize, with
//     a redo journal that makes commits atomic
//   - BadgerRegion: one Badger key per page plus a page-count meta key
//
// Overlay stages the writes and growth of a single engine call on top of
// any Region. Commit applies them to the base region; Discard drops them,
// leaving the base untouched.
package stable
