package snapshot

import (
	"bytes"
	"encoding/binary"
	"time"

	"golang.org/x/crypto/blake2b"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yndnr/stablemem/internal/core/domain"
)

// Magic bytes identify a snapshot envelope.
var magicBytes = []byte("STBLSNAP")

const (
	// Version is the envelope format version written by Encode.
	Version = 1

	headerSize   = 8 + 2 + 2 + 8
	checksumSize = blake2b.Size256

	// Overhead is the number of envelope bytes around the payload.
	Overhead = headerSize + checksumSize
)

// Payload field numbers.
const (
	fieldCreatedAt  protowire.Number = 1
	fieldEntryCount protowire.Number = 2
	fieldEntries    protowire.Number = 3

	fieldEntryKey   protowire.Number = 1
	fieldEntryValue protowire.Number = 2
)

// Header describes a decoded envelope.
type Header struct {
	Version    uint16
	Flags      uint16
	PayloadLen uint64
	CreatedAt  int64 // Unix milliseconds
	EntryCount uint64
	Checksum   [checksumSize]byte
}

// Size returns the total envelope length in bytes.
func (h *Header) Size() uint64 {
	return Overhead + h.PayloadLen
}

// Encode serialises entries into a snapshot envelope. Entries must hold
// the dense keys 0..n-1 in order.
func Encode(entries []domain.Entry, createdAt time.Time) ([]byte, *Header, error) {
	if err := domain.CheckDense(entries); err != nil {
		return nil, nil, err
	}

	payload := encodePayload(entries, createdAt.UnixMilli())

	buf := make([]byte, 0, Overhead+len(payload))
	buf = append(buf, magicBytes...)
	buf = binary.BigEndian.AppendUint16(buf, Version)
	buf = binary.BigEndian.AppendUint16(buf, 0)
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(payload)))
	buf = append(buf, payload...)

	sum := blake2b.Sum256(buf)
	buf = append(buf, sum[:]...)

	return buf, &Header{
		Version:    Version,
		PayloadLen: uint64(len(payload)),
		CreatedAt:  createdAt.UnixMilli(),
		EntryCount: uint64(len(entries)),
		Checksum:   sum,
	}, nil
}

func encodePayload(entries []domain.Entry, createdAtMs int64) []byte {
	size := protowire.SizeTag(fieldCreatedAt) + protowire.SizeVarint(uint64(createdAtMs)) +
		protowire.SizeTag(fieldEntryCount) + protowire.SizeVarint(uint64(len(entries)))
	for _, e := range entries {
		n := entrySize(e)
		size += protowire.SizeTag(fieldEntries) + protowire.SizeBytes(n)
	}

	b := make([]byte, 0, size)
	b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(createdAtMs))
	b = protowire.AppendTag(b, fieldEntryCount, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(len(entries)))

	for _, e := range entries {
		b = protowire.AppendTag(b, fieldEntries, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(entrySize(e)))
		b = protowire.AppendTag(b, fieldEntryKey, protowire.VarintType)
		b = protowire.AppendVarint(b, e.Key)
		b = protowire.AppendTag(b, fieldEntryValue, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Value)
	}
	return b
}

func entrySize(e domain.Entry) int {
	return protowire.SizeTag(fieldEntryKey) + protowire.SizeVarint(e.Key) +
		protowire.SizeTag(fieldEntryValue) + protowire.SizeBytes(len(e.Value))
}

// parseHeader validates the fixed-size envelope header in buf and returns
// the declared payload length.
func parseHeader(buf []byte) (*Header, error) {
	if len(buf) < headerSize {
		if isZero(buf) {
			return nil, domain.ErrNoSnapshot
		}
		return nil, domain.ErrInvalidEnvelope.WithDetailsf("truncated header (%d bytes)", len(buf))
	}
	if !bytes.Equal(buf[:len(magicBytes)], magicBytes) {
		if isZero(buf[:headerSize]) {
			return nil, domain.ErrNoSnapshot
		}
		return nil, domain.ErrInvalidEnvelope.WithDetails("bad magic")
	}

	h := &Header{
		Version:    binary.BigEndian.Uint16(buf[8:10]),
		Flags:      binary.BigEndian.Uint16(buf[10:12]),
		PayloadLen: binary.BigEndian.Uint64(buf[12:20]),
	}
	if h.Version != Version {
		return nil, domain.ErrUnsupportedVersion.WithDetailsf("version %d", h.Version)
	}
	if h.Flags != 0 {
		return nil, domain.ErrInvalidEnvelope.WithDetailsf("unknown flags 0x%04x", h.Flags)
	}
	return h, nil
}

// Decode validates an envelope at the start of buf and returns its entries.
// Bytes after the envelope are ignored. Returned values never alias buf.
func Decode(buf []byte) ([]domain.Entry, *Header, error) {
	h, err := parseHeader(buf)
	if err != nil {
		return nil, nil, err
	}

	avail := uint64(len(buf)) - headerSize
	if avail < checksumSize || h.PayloadLen > avail-checksumSize {
		return nil, nil, domain.ErrInvalidEnvelope.WithDetailsf(
			"payload length %d exceeds %d available bytes", h.PayloadLen, avail)
	}

	body := buf[:headerSize+h.PayloadLen]
	copy(h.Checksum[:], buf[len(body):len(body)+checksumSize])
	if blake2b.Sum256(body) != h.Checksum {
		return nil, nil, domain.ErrChecksumMismatch
	}

	entries, err := decodePayload(body[headerSize:], h)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(entries)) != h.EntryCount {
		return nil, nil, domain.ErrInvalidEnvelope.WithDetailsf(
			"entry count %d does not match %d decoded entries", h.EntryCount, len(entries))
	}
	if err := domain.CheckDense(entries); err != nil {
		return nil, nil, err
	}
	return entries, h, nil
}

func decodePayload(b []byte, h *Header) ([]domain.Entry, error) {
	var entries []domain.Entry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed(n)
		}
		b = b[n:]

		switch {
		case num == fieldCreatedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed(n)
			}
			h.CreatedAt = int64(v)
			b = b[n:]
		case num == fieldEntryCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed(n)
			}
			h.EntryCount = v
			b = b[n:]
		case num == fieldEntries && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed(n)
			}
			e, err := decodeEntry(v)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
			b = b[n:]
		case num == fieldCreatedAt || num == fieldEntryCount || num == fieldEntries:
			return nil, domain.ErrInvalidEnvelope.WithDetailsf("field %d has wire type %d", num, typ)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, malformed(n)
			}
			b = b[n:]
		}
	}
	return entries, nil
}

func decodeEntry(b []byte) (domain.Entry, error) {
	var e domain.Entry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, malformed(n)
		}
		b = b[n:]

		switch {
		case num == fieldEntryKey && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, malformed(n)
			}
			e.Key = v
			b = b[n:]
		case num == fieldEntryValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, malformed(n)
			}
			e.Value = append([]byte{}, v...)
			b = b[n:]
		case num == fieldEntryKey || num == fieldEntryValue:
			return e, domain.ErrInvalidEnvelope.WithDetailsf("entry field %d has wire type %d", num, typ)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return e, malformed(n)
			}
			b = b[n:]
		}
	}
	if e.Value == nil {
		e.Value = []byte{}
	}
	return e, nil
}

func malformed(n int) error {
	return domain.ErrInvalidEnvelope.WithCause(protowire.ParseError(n))
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
