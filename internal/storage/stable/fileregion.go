package stable

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/storage/wal"
)

// FileRegion is a Region backed by a single file. The file size is kept a
// multiple of PageSize; growth extends it sparsely.
//
// WritePages goes through a redo journal next to the file, so a committed
// overlay is applied completely or not at all, even across a crash.
type FileRegion struct {
	mu       sync.RWMutex
	f        *os.File
	journal  *wal.Journal
	path     string
	pages    uint64
	maxPages uint64
}

// OpenFileRegion opens or creates the region file at path. A file whose
// size is not page aligned (for example after an interrupted grow) is
// padded with zeros up to the next page boundary. A committed journal left
// by an interrupted WritePages is replayed.
func OpenFileRegion(path string, maxPages uint64) (*FileRegion, error) {
	if path == "" {
		return nil, fmt.Errorf("stable: file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("stable: create dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("stable: open region file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stable: stat region file: %w", err)
	}

	size := uint64(info.Size())
	pages := domain.PagesFor(size)
	if pages*domain.PageSize != size {
		if err := f.Truncate(int64(pages * domain.PageSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("stable: align region file: %w", err)
		}
	}

	r := &FileRegion{
		f:        f,
		path:     path,
		pages:    pages,
		maxPages: normalizeMax(maxPages),
	}
	if err := r.openJournal(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// JournalPath returns the redo journal path of a region file.
func JournalPath(path string) string {
	return path + wal.DefaultFileExtension
}

func (r *FileRegion) openJournal() error {
	jpath := JournalPath(r.path)
	pending, err := wal.Replay(jpath)
	if err != nil {
		return fmt.Errorf("stable: replay journal: %w", err)
	}
	j, err := wal.Open(jpath)
	if err != nil {
		return fmt.Errorf("stable: %w", err)
	}
	r.journal = j

	if pending != nil {
		if err := r.apply(pending); err != nil {
			j.Close()
			return fmt.Errorf("stable: apply journal: %w", err)
		}
	}
	if err := j.Reset(); err != nil {
		j.Close()
		return fmt.Errorf("stable: %w", err)
	}
	return nil
}

// WritePages implements PageWriter. The batch is journaled and synced
// before any page is written in place.
func (r *FileRegion) WritePages(pages map[uint64][]byte, pageCount uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return ErrClosed
	}

	if pageCount < r.pages {
		return domain.ErrInvalidArgument.WithDetailsf("page count cannot shrink from %d to %d", r.pages, pageCount)
	}
	if _, err := checkGrow(r.pages, pageCount-r.pages, r.maxPages); err != nil {
		return err
	}

	b := &wal.Batch{Pages: pages, PageCount: pageCount}
	if err := b.Validate(); err != nil {
		return err
	}
	if err := r.journal.Write(b); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	if err := r.apply(b); err != nil {
		return err
	}
	if err := r.journal.Reset(); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// apply writes b in place and syncs the file. Replaying the same batch
// twice is harmless.
func (r *FileRegion) apply(b *wal.Batch) error {
	if b.PageCount > r.pages {
		if err := r.f.Truncate(int64(b.PageCount * domain.PageSize)); err != nil {
			return domain.ErrStorageError.WithCause(fmt.Errorf("grow region file: %w", err))
		}
		r.pages = b.PageCount
	}
	for page, data := range b.Pages {
		if _, err := r.f.WriteAt(data, int64(page*domain.PageSize)); err != nil {
			return domain.ErrStorageError.WithCause(fmt.Errorf("write region file: %w", err))
		}
	}
	if err := r.f.Sync(); err != nil {
		return domain.ErrStorageError.WithCause(fmt.Errorf("sync region file: %w", err))
	}
	return nil
}

// Path returns the region file path.
func (r *FileRegion) Path() string { return r.path }

// Pages implements Region.
func (r *FileRegion) Pages() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pages
}

// MaxPages implements Region.
func (r *FileRegion) MaxPages() uint64 { return r.maxPages }

// Grow implements Region.
func (r *FileRegion) Grow(pages uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, ErrClosed
	}

	prev := r.pages
	next, err := checkGrow(prev, pages, r.maxPages)
	if err != nil {
		return 0, err
	}
	if pages == 0 {
		return prev, nil
	}

	if err := r.f.Truncate(int64(next * domain.PageSize)); err != nil {
		return 0, domain.ErrStorageError.WithCause(fmt.Errorf("grow region file: %w", err))
	}
	r.pages = next
	return prev, nil
}

// ReadAt implements Region.
func (r *FileRegion) ReadAt(p []byte, off uint64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.f == nil {
		return ErrClosed
	}
	if err := checkRange(off, uint64(len(p)), r.pages); err != nil {
		return err
	}
	if _, err := r.f.ReadAt(p, int64(off)); err != nil {
		return domain.ErrStorageError.WithCause(fmt.Errorf("read region file: %w", err))
	}
	return nil
}

// WriteAt implements Region.
func (r *FileRegion) WriteAt(p []byte, off uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return ErrClosed
	}
	if err := checkRange(off, uint64(len(p)), r.pages); err != nil {
		return err
	}
	if _, err := r.f.WriteAt(p, int64(off)); err != nil {
		return domain.ErrStorageError.WithCause(fmt.Errorf("write region file: %w", err))
	}
	return nil
}

// Sync implements Region.
func (r *FileRegion) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return ErrClosed
	}
	if err := r.f.Sync(); err != nil {
		return domain.ErrStorageError.WithCause(fmt.Errorf("sync region file: %w", err))
	}
	return nil
}

// Close implements Region.
func (r *FileRegion) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := errors.Join(r.journal.Close(), r.f.Close())
	r.f = nil
	return err
}
