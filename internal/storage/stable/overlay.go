package stable

import (
	"sort"

	"github.com/yndnr/stablemem/internal/core/domain"
)

// Overlay is a copy-on-write view of a base Region. Writes and growth are
// staged in memory until Commit; reads see staged pages first. An Overlay
// is used by one goroutine for the duration of a single engine call.
type Overlay struct {
	base  Region
	pages uint64
	dirty map[uint64][]byte
}

// NewOverlay starts a staging view over base.
func NewOverlay(base Region) *Overlay {
	return &Overlay{
		base:  base,
		pages: base.Pages(),
		dirty: make(map[uint64][]byte),
	}
}

// Pages implements Region.
func (o *Overlay) Pages() uint64 { return o.pages }

// MaxPages implements Region.
func (o *Overlay) MaxPages() uint64 { return o.base.MaxPages() }

// Grow implements Region. Growth is staged; new pages read as zero.
func (o *Overlay) Grow(pages uint64) (uint64, error) {
	prev := o.pages
	next, err := checkGrow(prev, pages, o.base.MaxPages())
	if err != nil {
		return 0, err
	}
	o.pages = next
	return prev, nil
}

// ReadAt implements Region.
func (o *Overlay) ReadAt(p []byte, off uint64) error {
	if err := checkRange(off, uint64(len(p)), o.pages); err != nil {
		return err
	}
	basePages := o.base.Pages()
	return forEachPage(p, off, func(page uint64, pageOff int, chunk []byte) error {
		if buf, ok := o.dirty[page]; ok {
			copy(chunk, buf[pageOff:])
			return nil
		}
		if page >= basePages {
			clear(chunk)
			return nil
		}
		return o.base.ReadAt(chunk, page*domain.PageSize+uint64(pageOff))
	})
}

// WriteAt implements Region.
func (o *Overlay) WriteAt(p []byte, off uint64) error {
	if err := checkRange(off, uint64(len(p)), o.pages); err != nil {
		return err
	}
	basePages := o.base.Pages()
	return forEachPage(p, off, func(page uint64, pageOff int, chunk []byte) error {
		buf, ok := o.dirty[page]
		if !ok {
			buf = make([]byte, domain.PageSize)
			if page < basePages && len(chunk) < domain.PageSize {
				if err := o.base.ReadAt(buf, page*domain.PageSize); err != nil {
					return err
				}
			}
			o.dirty[page] = buf
		}
		copy(buf[pageOff:], chunk)
		return nil
	})
}

// Dirty reports whether the overlay holds staged changes.
func (o *Overlay) Dirty() bool {
	return len(o.dirty) > 0 || o.pages != o.base.Pages()
}

// Commit applies staged growth and pages to the base region. Backends
// implementing PageWriter receive everything in one call; otherwise the
// region is grown first and pages are written in ascending order.
func (o *Overlay) Commit() error {
	defer o.reset()

	if !o.Dirty() {
		return nil
	}

	if pw, ok := o.base.(PageWriter); ok {
		return pw.WritePages(o.dirty, o.pages)
	}

	if cur := o.base.Pages(); o.pages > cur {
		if _, err := o.base.Grow(o.pages - cur); err != nil {
			return err
		}
	}

	idx := make([]uint64, 0, len(o.dirty))
	for page := range o.dirty {
		idx = append(idx, page)
	}
	sort.Slice(idx, func(i, j int) bool { return idx[i] < idx[j] })

	for _, page := range idx {
		if err := o.base.WriteAt(o.dirty[page], page*domain.PageSize); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops all staged changes.
func (o *Overlay) Discard() { o.reset() }

func (o *Overlay) reset() {
	o.pages = o.base.Pages()
	o.dirty = make(map[uint64][]byte)
}

// Sync implements Region. Staged data is not durable until Commit.
func (o *Overlay) Sync() error { return nil }

// Close implements Region. It discards staged changes and leaves the base
// region open.
func (o *Overlay) Close() error {
	o.reset()
	return nil
}
