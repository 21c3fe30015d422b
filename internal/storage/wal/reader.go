package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Replay reads the journal at path. It returns the committed batch, or nil
// when the journal is missing, empty or torn. A file that is not a journal
// is an error.
func Replay(path string) (*Batch, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wal: open journal: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	var hdr [len(magic)]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: read header: %w", err)
	}
	if hdr != magic {
		return nil, ErrBadMagic
	}

	b := &Batch{Pages: make(map[uint64][]byte)}
	var records uint32
	for {
		typ, payload, err := readFrame(r)
		if err != nil {
			if isTorn(err) {
				return nil, nil
			}
			return nil, err
		}

		switch typ {
		case RecordPage:
			page := binary.BigEndian.Uint64(payload[:8])
			b.Pages[page] = payload[8:]
			records++
		case RecordCommit:
			b.PageCount = binary.BigEndian.Uint64(payload[:8])
			if want := binary.BigEndian.Uint32(payload[8:]); want != records {
				return nil, fmt.Errorf("%w: commit expects %d pages, found %d", ErrCorruptedEntry, want, records)
			}
			if err := b.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptedEntry, err)
			}
			return b, nil
		}
	}
}

// isTorn reports whether err marks an incomplete tail, which is what an
// interrupted Write leaves behind.
func isTorn(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrCorruptedEntry) ||
		errors.Is(err, ErrInvalidEntryType)
}
