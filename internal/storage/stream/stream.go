// Package stream copies raw stable memory in page-sized chunks.
//
// Backup and Restore bypass the snapshot codec. They are meant for
// out-of-band copies of the whole region, driven chunk by chunk by an
// external client. Restore is idempotent, so a client may retry a chunk.
package stream

import (
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/stablemem/internal/core/domain"
)

// DefaultMaxPayload is the default per-call payload limit (2 MiB).
const DefaultMaxPayload = 2 << 20

// Region is the part of a stable region the streamer needs.
type Region interface {
	Pages() uint64
	Grow(pages uint64) (uint64, error)
	ReadAt(p []byte, off uint64) error
	WriteAt(p []byte, off uint64) error
}

// Streamer performs bounds-checked raw reads and writes of a region.
type Streamer struct {
	maxPayload uint64
}

// New creates a streamer. A maxPayload below one page selects
// DefaultMaxPayload.
func New(maxPayload uint64) *Streamer {
	if maxPayload < domain.PageSize {
		maxPayload = DefaultMaxPayload
	}
	return &Streamer{maxPayload: maxPayload}
}

// MaxPayload returns the per-call byte limit.
func (s *Streamer) MaxPayload() uint64 { return s.maxPayload }

// MaxPages returns the most pages a single Backup call may return.
func (s *Streamer) MaxPages() uint64 { return s.maxPayload / domain.PageSize }

// Backup returns pages*PageSize bytes of region starting at byte offset.
// The whole range must lie within the current allocation.
func (s *Streamer) Backup(region Region, offset, pages uint64) ([]byte, error) {
	if pages > s.MaxPages() {
		return nil, domain.ErrPayloadTooLarge.WithDetailsf(
			"%d pages requested, at most %d per call", pages, s.MaxPages())
	}

	n := pages * domain.PageSize
	end, ok := domain.RangeEnd(offset, n)
	if !ok {
		return nil, domain.ErrOutOfBounds.WithDetailsf("offset %d + %d bytes overflows", offset, n)
	}
	if size := region.Pages() * domain.PageSize; end > size {
		return nil, domain.ErrOutOfBounds.WithDetailsf(
			"range [%d, %d) exceeds %d bytes of stable memory", offset, end, size)
	}

	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if err := region.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("stream: backup read: %w", err)
	}
	return buf, nil
}

// Restore writes data at byte offset, first growing region to
// ceil((offset+len(data))/PageSize) pages when it is smaller. An empty
// payload writes nothing but its offset must not lie past the end of the
// region.
func (s *Streamer) Restore(region Region, offset uint64, data []byte) error {
	if uint64(len(data)) > s.maxPayload {
		return domain.ErrPayloadTooLarge.WithDetailsf(
			"%d bytes, at most %d per call", len(data), s.maxPayload)
	}

	end, ok := domain.RangeEnd(offset, uint64(len(data)))
	if !ok {
		return domain.ErrOutOfBounds.WithDetailsf("offset %d + %d bytes overflows", offset, len(data))
	}
	if len(data) == 0 {
		if size := region.Pages() * domain.PageSize; offset > size {
			return domain.ErrOutOfBounds.WithDetailsf(
				"offset %d exceeds %d bytes of stable memory", offset, size)
		}
		return nil
	}

	need := domain.PagesFor(end)
	if cur := region.Pages(); need > cur {
		if _, err := region.Grow(need - cur); err != nil {
			return fmt.Errorf("stream: restore grow: %w", err)
		}
	}
	if err := region.WriteAt(data, offset); err != nil {
		return fmt.Errorf("stream: restore write: %w", err)
	}
	return nil
}

// ChunkHash returns the murmur3 hash of a chunk as 16 hex digits. Backup
// tools record it per chunk and compare it after transfer.
func ChunkHash(data []byte) string {
	return fmt.Sprintf("%016x", murmur3.Sum64(data))
}
