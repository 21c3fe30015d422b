package wal

import (
	"bufio"
	"fmt"
	"os"
	"sort"
)

// Journal is a single-file redo journal. It is not safe for concurrent
// use; the owning region serialises commits.
type Journal struct {
	f    *os.File
	path string
}

// Open opens or creates the journal at path without reading it. Call
// Replay first to recover a pending batch.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("wal: open journal: %w", err)
	}
	return &Journal{f: f, path: path}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Write durably records b, replacing any previous content. When Write
// returns nil the batch survives a crash.
func (j *Journal) Write(b *Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if err := j.truncate(); err != nil {
		return err
	}

	idx := make([]uint64, 0, len(b.Pages))
	for page := range b.Pages {
		idx = append(idx, page)
	}
	sort.Slice(idx, func(i, k int) bool { return idx[i] < idx[k] })

	w := bufio.NewWriterSize(j.f, 1<<20)
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("wal: write header: %w", err)
	}
	frame := make([]byte, 0, headerSize+1+pagePayloadSize)
	for _, page := range idx {
		frame = pageFrame(frame[:0], page, b.Pages[page])
		if _, err := w.Write(frame); err != nil {
			return fmt.Errorf("wal: write page %d: %w", page, err)
		}
	}
	if _, err := w.Write(commitFrame(frame[:0], b.PageCount, uint32(len(idx)))); err != nil {
		return fmt.Errorf("wal: write commit: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	if err := j.f.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	return nil
}

// Reset empties the journal once its batch has been applied and synced.
func (j *Journal) Reset() error {
	if err := j.truncate(); err != nil {
		return err
	}
	if err := j.f.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	return nil
}

func (j *Journal) truncate() error {
	if err := j.f.Truncate(0); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	if _, err := j.f.Seek(0, 0); err != nil {
		return fmt.Errorf("wal: seek: %w", err)
	}
	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	return j.f.Close()
}
