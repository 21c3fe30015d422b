package domain

import (
	"math"
	"testing"
)

func TestNewMemoryHeader(t *testing.T) {
	tests := []struct {
		name        string
		heapPages   uint64
		stablePages uint64
	}{
		{"empty", 0, 0},
		{"heap only", 3, 0},
		{"stable only", 0, 5},
		{"both", 17, 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewMemoryHeader(tt.heapPages, tt.stablePages)
			if h.HeapSize != tt.heapPages*PageSize {
				t.Errorf("HeapSize = %d, want %d", h.HeapSize, tt.heapPages*PageSize)
			}
			if h.StableSize != tt.stablePages*PageSize {
				t.Errorf("StableSize = %d, want %d", h.StableSize, tt.stablePages*PageSize)
			}
			if h.All != h.HeapSize+h.StableSize {
				t.Errorf("All = %d, want %d", h.All, h.HeapSize+h.StableSize)
			}
			if !h.Consistent() {
				t.Error("Consistent() = false for a computed header")
			}
		})
	}
}

func TestMemoryHeader_Consistent(t *testing.T) {
	h := NewMemoryHeader(2, 2)
	h.All++
	if h.Consistent() {
		t.Error("Consistent() = true for tampered header")
	}
}

func TestPagesFor(t *testing.T) {
	tests := []struct {
		n    uint64
		want uint64
	}{
		{0, 0},
		{1, 1},
		{PageSize - 1, 1},
		{PageSize, 1},
		{PageSize + 1, 2},
		{10 * PageSize, 10},
		{math.MaxUint64, math.MaxUint64/PageSize + 1},
	}

	for _, tt := range tests {
		if got := PagesFor(tt.n); got != tt.want {
			t.Errorf("PagesFor(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestRangeEnd(t *testing.T) {
	if end, ok := RangeEnd(10, 20); !ok || end != 30 {
		t.Errorf("RangeEnd(10, 20) = %d, %v", end, ok)
	}
	if _, ok := RangeEnd(math.MaxUint64, 1); ok {
		t.Error("RangeEnd should report overflow")
	}
	if end, ok := RangeEnd(math.MaxUint64, 0); !ok || end != math.MaxUint64 {
		t.Errorf("RangeEnd(max, 0) = %d, %v", end, ok)
	}
}

func TestCheckDense(t *testing.T) {
	dense := []Entry{{Key: 0, Value: []byte{1}}, {Key: 1}, {Key: 2, Value: []byte{}}}
	if err := CheckDense(dense); err != nil {
		t.Errorf("CheckDense(dense) = %v", err)
	}
	if err := CheckDense(nil); err != nil {
		t.Errorf("CheckDense(nil) = %v", err)
	}

	gap := []Entry{{Key: 0}, {Key: 2}}
	if err := CheckDense(gap); !IsEncodingError(err) {
		t.Errorf("CheckDense(gap) = %v, want encoding error", err)
	}
}

func TestEntry_CloneAndEqual(t *testing.T) {
	e := Entry{Key: 7, Value: []byte{1, 2, 3}}
	c := e.Clone()
	if !e.Equal(c) {
		t.Fatal("clone should equal original")
	}
	c.Value[0] = 9
	if e.Value[0] != 1 {
		t.Error("Clone should not share the value buffer")
	}
	if e.Equal(c) {
		t.Error("Equal should detect changed bytes")
	}
}
