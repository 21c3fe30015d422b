package wal

import (
	"errors"

	"github.com/yndnr/stablemem/internal/core/domain"
)

// File format constants.
const (
	// DefaultFileExtension is the journal file extension.
	DefaultFileExtension = ".wal"

	// headerSize is the size of a record header: length (4) + crc (4).
	headerSize = 8

	pagePayloadSize   = 8 + domain.PageSize
	commitPayloadSize = 8 + 4
)

// magic starts every non-empty journal file.
var magic = [8]byte{'S', 'M', 'W', 'A', 'L', 0, 0, 1}

// Errors for journal operations.
var (
	ErrCorruptedEntry   = errors.New("wal: corrupted entry")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrInvalidEntryType = errors.New("wal: invalid entry type")
	ErrBadMagic         = errors.New("wal: not a journal file")
)

// RecordType identifies a journal record.
type RecordType uint8

const (
	RecordUnspecified RecordType = iota
	RecordPage
	RecordCommit
)

// Batch is one atomic region update: whole pages by index and the page
// count of the region afterwards.
type Batch struct {
	Pages     map[uint64][]byte
	PageCount uint64
}

// Validate checks that every page is whole and lies below PageCount.
func (b *Batch) Validate() error {
	for page, data := range b.Pages {
		if len(data) != domain.PageSize {
			return domain.ErrInvalidArgument.WithDetailsf("page %d has %d bytes", page, len(data))
		}
		if page >= b.PageCount {
			return domain.ErrOutOfBounds.WithDetailsf("page %d beyond page count %d", page, b.PageCount)
		}
	}
	return nil
}
