package snapshot

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/yndnr/stablemem/internal/core/domain"
)

// Region is the part of a stable region the manager needs.
type Region interface {
	Pages() uint64
	Grow(pages uint64) (uint64, error)
	ReadAt(p []byte, off uint64) error
	WriteAt(p []byte, off uint64) error
}

// Info contains metadata about a snapshot held in stable memory.
type Info struct {
	Version    uint16 `json:"version" yaml:"version"`
	CreatedAt  int64  `json:"created_at" yaml:"created_at"`
	EntryCount uint64 `json:"entry_count" yaml:"entry_count"`
	Size       uint64 `json:"size" yaml:"size"`
	Pages      uint64 `json:"pages" yaml:"pages"`
	Checksum   string `json:"checksum" yaml:"checksum"`
}

func newInfo(h *Header) *Info {
	return &Info{
		Version:    h.Version,
		CreatedAt:  h.CreatedAt,
		EntryCount: h.EntryCount,
		Size:       h.Size(),
		Pages:      domain.PagesFor(h.Size()),
		Checksum:   hex.EncodeToString(h.Checksum[:]),
	}
}

// Manager writes and reads snapshot envelopes at offset 0 of a region.
type Manager struct {
	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for created_at.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a snapshot manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Save encodes entries and writes the envelope as the content of region
// starting at offset 0, growing the region if needed. The remainder of the
// last envelope page is zeroed.
func (m *Manager) Save(region Region, entries []domain.Entry) (*Info, []byte, error) {
	data, h, err := Encode(entries, m.now())
	if err != nil {
		return nil, nil, err
	}

	need := domain.PagesFor(uint64(len(data)))
	if cur := region.Pages(); cur < need {
		if _, err := region.Grow(need - cur); err != nil {
			return nil, nil, fmt.Errorf("snapshot: grow region: %w", err)
		}
	}

	buf := make([]byte, need*domain.PageSize)
	copy(buf, data)
	if err := region.WriteAt(buf, 0); err != nil {
		return nil, nil, fmt.Errorf("snapshot: write envelope: %w", err)
	}

	return newInfo(h), data, nil
}

// Load reads and validates the envelope at offset 0 of region. It returns
// domain.ErrNoSnapshot when the region is empty or was never written.
func (m *Manager) Load(region Region) ([]domain.Entry, *Info, error) {
	h, err := m.Inspect(region)
	if err != nil {
		return nil, nil, err
	}

	size := region.Pages() * domain.PageSize
	if h.PayloadLen > size || h.Size() > size {
		return nil, nil, domain.ErrInvalidEnvelope.WithDetailsf(
			"envelope of %d bytes exceeds %d bytes of stable memory", h.Size(), size)
	}

	buf := make([]byte, h.Size())
	if err := region.ReadAt(buf, 0); err != nil {
		return nil, nil, fmt.Errorf("snapshot: read envelope: %w", err)
	}

	entries, h, err := Decode(buf)
	if err != nil {
		return nil, nil, err
	}
	return entries, newInfo(h), nil
}

// Inspect validates the fixed envelope header at offset 0 of region
// without reading the payload.
func (m *Manager) Inspect(region Region) (*Header, error) {
	if region.Pages() == 0 {
		return nil, domain.ErrNoSnapshot
	}

	hdr := make([]byte, headerSize)
	if err := region.ReadAt(hdr, 0); err != nil {
		return nil, fmt.Errorf("snapshot: read header: %w", err)
	}
	return parseHeader(hdr)
}

// IsNoSnapshot reports whether err means stable memory holds no snapshot.
func IsNoSnapshot(err error) bool {
	return errors.Is(err, domain.ErrNoSnapshot)
}
