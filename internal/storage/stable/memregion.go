package stable

import (
	"sync"

	"github.com/yndnr/stablemem/internal/core/domain"
)

// MemRegion is a Region backed by a byte slice. Its content is lost when
// the process exits.
type MemRegion struct {
	mu       sync.RWMutex
	data     []byte
	maxPages uint64
	closed   bool
}

// NewMemRegion creates an empty in-memory region. maxPages of 0 selects
// DefaultMaxPages.
func NewMemRegion(maxPages uint64) *MemRegion {
	return &MemRegion{maxPages: normalizeMax(maxPages)}
}

// Pages implements Region.
func (r *MemRegion) Pages() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.data)) / domain.PageSize
}

// MaxPages implements Region.
func (r *MemRegion) MaxPages() uint64 { return r.maxPages }

// Grow implements Region.
func (r *MemRegion) Grow(pages uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}

	prev := uint64(len(r.data)) / domain.PageSize
	next, err := checkGrow(prev, pages, r.maxPages)
	if err != nil {
		return 0, err
	}
	if pages == 0 {
		return prev, nil
	}

	grown := make([]byte, next*domain.PageSize)
	copy(grown, r.data)
	r.data = grown
	return prev, nil
}

// ReadAt implements Region.
func (r *MemRegion) ReadAt(p []byte, off uint64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	if err := checkRange(off, uint64(len(p)), uint64(len(r.data))/domain.PageSize); err != nil {
		return err
	}
	copy(p, r.data[off:])
	return nil
}

// WriteAt implements Region.
func (r *MemRegion) WriteAt(p []byte, off uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if err := checkRange(off, uint64(len(p)), uint64(len(r.data))/domain.PageSize); err != nil {
		return err
	}
	copy(r.data[off:], p)
	return nil
}

// Sync implements Region. It is a no-op.
func (r *MemRegion) Sync() error { return nil }

// Close implements Region.
func (r *MemRegion) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.data = nil
	return nil
}
