package stable

import (
	"errors"

	"github.com/yndnr/stablemem/internal/core/domain"
)

// DefaultMaxPages is the default growth limit of a region (4 GiB).
const DefaultMaxPages = 65536

// ErrClosed is returned by operations on a closed region.
var ErrClosed = errors.New("stable: region closed")

// Region is a durable, page-granular byte space.
//
// Reads and writes outside [0, Pages()*PageSize) fail with
// domain.ErrOutOfBounds. Grow adds whole zero-filled pages and fails with
// domain.ErrResourceExhausted beyond MaxPages.
type Region interface {
	// Pages returns the current allocation in pages.
	Pages() uint64

	// MaxPages returns the growth limit in pages.
	MaxPages() uint64

	// Grow extends the region by the given number of pages and returns
	// the previous page count.
	Grow(pages uint64) (prev uint64, err error)

	// ReadAt fills p from byte offset off.
	ReadAt(p []byte, off uint64) error

	// WriteAt copies p to byte offset off.
	WriteAt(p []byte, off uint64) error

	// Sync flushes written pages to durable media.
	Sync() error

	// Close releases the backend.
	Close() error
}

// PageWriter is implemented by backends that can apply a set of whole
// pages together with a new page count in one atomic step.
type PageWriter interface {
	WritePages(pages map[uint64][]byte, pageCount uint64) error
}

// checkRange validates that [off, off+n) lies within pages.
func checkRange(off, n, pages uint64) error {
	end, ok := domain.RangeEnd(off, n)
	if !ok {
		return domain.ErrOutOfBounds.WithDetailsf("offset %d + length %d overflows", off, n)
	}
	if end > pages*domain.PageSize {
		return domain.ErrOutOfBounds.WithDetailsf("range [%d, %d) exceeds %d pages", off, end, pages)
	}
	return nil
}

// checkGrow returns the page count after growing cur by delta pages.
func checkGrow(cur, delta, max uint64) (uint64, error) {
	next, ok := domain.RangeEnd(cur, delta)
	if !ok || next > max {
		return 0, domain.ErrResourceExhausted.WithDetailsf("cannot grow %d pages by %d (max %d)", cur, delta, max)
	}
	return next, nil
}

// forEachPage splits the byte range [off, off+len(p)) into per-page
// pieces. fn receives the page index, the offset inside that page and the
// slice of p covering it.
func forEachPage(p []byte, off uint64, fn func(page uint64, pageOff int, chunk []byte) error) error {
	for len(p) > 0 {
		page := off / domain.PageSize
		pageOff := int(off % domain.PageSize)
		n := domain.PageSize - pageOff
		if n > len(p) {
			n = len(p)
		}
		if err := fn(page, pageOff, p[:n]); err != nil {
			return err
		}
		p = p[n:]
		off += uint64(n)
	}
	return nil
}

func normalizeMax(max uint64) uint64 {
	if max == 0 {
		return DefaultMaxPages
	}
	return max
}
