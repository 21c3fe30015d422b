package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// appendFrame appends one framed record to dst.
func appendFrame(dst []byte, typ RecordType, payload ...[]byte) []byte {
	n := 0
	for _, p := range payload {
		n += len(p)
	}

	crc := crc32.NewIEEE()
	crc.Write([]byte{byte(typ)})
	for _, p := range payload {
		crc.Write(p)
	}

	// Length = CRC(4) + Type(1) + Payload.
	dst = binary.BigEndian.AppendUint32(dst, uint32(4+1+n))
	dst = binary.BigEndian.AppendUint32(dst, crc.Sum32())
	dst = append(dst, byte(typ))
	for _, p := range payload {
		dst = append(dst, p...)
	}
	return dst
}

func pageFrame(dst []byte, page uint64, data []byte) []byte {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], page)
	return appendFrame(dst, RecordPage, idx[:], data)
}

func commitFrame(dst []byte, pageCount uint64, records uint32) []byte {
	var p [commitPayloadSize]byte
	binary.BigEndian.PutUint64(p[:8], pageCount)
	binary.BigEndian.PutUint32(p[8:], records)
	return appendFrame(dst, RecordCommit, p[:])
}

// readFrame reads one record. A short read returns io.ErrUnexpectedEOF;
// a clean end of input returns io.EOF.
func readFrame(r io.Reader) (RecordType, []byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(hdr[:4])
	wantCRC := binary.BigEndian.Uint32(hdr[4:])
	if length < 5 || length > 4+1+pagePayloadSize {
		return 0, nil, fmt.Errorf("%w: length %d", ErrCorruptedEntry, length)
	}

	body := make([]byte, length-4)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	if crc32.ChecksumIEEE(body) != wantCRC {
		return 0, nil, ErrChecksumMismatch
	}

	typ, payload := RecordType(body[0]), body[1:]
	switch {
	case typ == RecordPage && len(payload) == pagePayloadSize:
	case typ == RecordCommit && len(payload) == commitPayloadSize:
	case typ == RecordPage || typ == RecordCommit:
		return 0, nil, fmt.Errorf("%w: type %d with %d payload bytes", ErrCorruptedEntry, typ, len(payload))
	default:
		return 0, nil, ErrInvalidEntryType
	}
	return typ, payload, nil
}
