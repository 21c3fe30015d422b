package stream

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/storage/stable"
)

func filledRegion(t *testing.T, pages uint64) *stable.MemRegion {
	t.Helper()
	r := stable.NewMemRegion(64)
	if _, err := r.Grow(pages); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, pages*domain.PageSize)
	for i := range buf {
		buf[i] = byte(i * 7)
	}
	if err := r.WriteAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestNew_Defaults(t *testing.T) {
	if got := New(0).MaxPayload(); got != DefaultMaxPayload {
		t.Errorf("New(0).MaxPayload() = %d, want %d", got, DefaultMaxPayload)
	}
	if got := New(100).MaxPayload(); got != DefaultMaxPayload {
		t.Errorf("sub-page limit should fall back to default, got %d", got)
	}
	if got := New(DefaultMaxPayload).MaxPages(); got != 32 {
		t.Errorf("MaxPages() = %d, want 32", got)
	}
}

func TestStreamer_RoundTrip(t *testing.T) {
	s := New(DefaultMaxPayload)
	src := filledRegion(t, 5)
	dst := stable.NewMemRegion(64)

	for off := uint64(0); off < 5*domain.PageSize; off += 2 * domain.PageSize {
		pages := uint64(2)
		if remaining := src.Pages() - off/domain.PageSize; remaining < pages {
			pages = remaining
		}
		chunk, err := s.Backup(src, off, pages)
		if err != nil {
			t.Fatalf("Backup(%d, %d): %v", off, pages, err)
		}
		if err := s.Restore(dst, off, chunk); err != nil {
			t.Fatalf("Restore(%d): %v", off, err)
		}
	}

	if dst.Pages() != src.Pages() {
		t.Fatalf("dst pages = %d, want %d", dst.Pages(), src.Pages())
	}
	a := make([]byte, 5*domain.PageSize)
	b := make([]byte, 5*domain.PageSize)
	if err := src.ReadAt(a, 0); err != nil {
		t.Fatal(err)
	}
	if err := dst.ReadAt(b, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("restored region differs from source")
	}
}

func TestStreamer_BackupBounds(t *testing.T) {
	s := New(DefaultMaxPayload)
	r := filledRegion(t, 2)

	tests := []struct {
		name   string
		offset uint64
		pages  uint64
		want   *domain.DomainError
	}{
		{"exact fit", 0, 2, nil},
		{"unaligned fit", 10, 1, nil},
		{"zero pages at end", 2 * domain.PageSize, 0, nil},
		{"one byte past", 1, 2, domain.ErrOutOfBounds},
		{"offset past end", 3 * domain.PageSize, 0, domain.ErrOutOfBounds},
		{"offset overflow", math.MaxUint64, 1, domain.ErrOutOfBounds},
		{"above per-call limit", 0, 33, domain.ErrPayloadTooLarge},
		{"huge page count", 0, math.MaxUint64, domain.ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Backup(r, tt.offset, tt.pages)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Backup: %v", err)
				}
				if uint64(len(got)) != tt.pages*domain.PageSize {
					t.Errorf("len = %d, want %d", len(got), tt.pages*domain.PageSize)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Backup error = %v, want %v", err, tt.want)
			}
			if !domain.IsValidationError(err) {
				t.Errorf("error %v is not a validation error", err)
			}
		})
	}
}

func TestStreamer_BackupDoesNotMutate(t *testing.T) {
	s := New(DefaultMaxPayload)
	r := filledRegion(t, 1)

	chunk, err := s.Backup(r, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	chunk[0] ^= 0xFF

	again, err := s.Backup(r, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if again[0] == chunk[0] {
		t.Error("backup chunk aliases region memory")
	}
	if r.Pages() != 1 {
		t.Errorf("Backup changed Pages() to %d", r.Pages())
	}
}

func TestStreamer_Restore(t *testing.T) {
	s := New(DefaultMaxPayload)

	t.Run("grows to cover range", func(t *testing.T) {
		r := stable.NewMemRegion(8)
		if err := s.Restore(r, domain.PageSize+5, []byte("abc")); err != nil {
			t.Fatal(err)
		}
		if r.Pages() != 2 {
			t.Errorf("Pages() = %d, want 2", r.Pages())
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		r := stable.NewMemRegion(8)
		data := bytes.Repeat([]byte{3}, 1000)
		for i := 0; i < 3; i++ {
			if err := s.Restore(r, 500, data); err != nil {
				t.Fatal(err)
			}
		}
		if r.Pages() != 1 {
			t.Errorf("Pages() = %d, want 1", r.Pages())
		}
		got := make([]byte, 1000)
		if err := r.ReadAt(got, 500); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, data) {
			t.Error("data differs after repeated restore")
		}
	})

	t.Run("empty payload is a no-op", func(t *testing.T) {
		r := stable.NewMemRegion(8)
		if _, err := r.Grow(1); err != nil {
			t.Fatal(err)
		}
		for _, off := range []uint64{0, 10, domain.PageSize} {
			if err := s.Restore(r, off, nil); err != nil {
				t.Fatalf("Restore(%d, nil): %v", off, err)
			}
		}
		if r.Pages() != 1 {
			t.Errorf("Pages() = %d, want 1", r.Pages())
		}
	})

	t.Run("empty payload past end", func(t *testing.T) {
		r := stable.NewMemRegion(8)
		for _, off := range []uint64{1, 10 * domain.PageSize, 1 << 40} {
			if err := s.Restore(r, off, nil); !errors.Is(err, domain.ErrOutOfBounds) {
				t.Errorf("Restore(%d, nil) = %v, want ErrOutOfBounds", off, err)
			}
		}
		if r.Pages() != 0 {
			t.Errorf("Pages() = %d, want 0", r.Pages())
		}
	})

	t.Run("payload too large", func(t *testing.T) {
		r := stable.NewMemRegion(64)
		err := s.Restore(r, 0, make([]byte, DefaultMaxPayload+1))
		if !errors.Is(err, domain.ErrPayloadTooLarge) {
			t.Errorf("Restore = %v, want ErrPayloadTooLarge", err)
		}
		if r.Pages() != 0 {
			t.Error("rejected restore grew the region")
		}
	})

	t.Run("offset overflow", func(t *testing.T) {
		r := stable.NewMemRegion(8)
		if err := s.Restore(r, math.MaxUint64, []byte{1, 2}); !errors.Is(err, domain.ErrOutOfBounds) {
			t.Errorf("Restore = %v, want ErrOutOfBounds", err)
		}
	})

	t.Run("growth beyond max", func(t *testing.T) {
		r := stable.NewMemRegion(2)
		err := s.Restore(r, 2*domain.PageSize, []byte{1})
		if !errors.Is(err, domain.ErrResourceExhausted) {
			t.Errorf("Restore = %v, want ErrResourceExhausted", err)
		}
	})
}

func TestChunkHash(t *testing.T) {
	a := ChunkHash([]byte("chunk"))
	if len(a) != 16 {
		t.Errorf("len(ChunkHash) = %d, want 16", len(a))
	}
	if a != ChunkHash([]byte("chunk")) {
		t.Error("ChunkHash is not deterministic")
	}
	if a == ChunkHash([]byte("chunk!")) {
		t.Error("different chunks hash equal")
	}
}
