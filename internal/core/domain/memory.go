package domain

import "math"

// PageSize is the addressing unit of both memory tiers (64 KiB).
const PageSize = 64 * 1024

// MemoryHeader reports page and byte usage of working (heap) and
// durable (stable) memory. It is derived on every call and never stored.
type MemoryHeader struct {
	HeapPages   uint64 `json:"heap_pages" yaml:"heap_pages"`
	HeapSize    uint64 `json:"heap_size" yaml:"heap_size"`
	StablePages uint64 `json:"stable_pages" yaml:"stable_pages"`
	StableSize  uint64 `json:"stable_size" yaml:"stable_size"`
	All         uint64 `json:"all" yaml:"all"`
}

// NewMemoryHeader computes a header from the page counts of both tiers.
func NewMemoryHeader(heapPages, stablePages uint64) MemoryHeader {
	heapSize := heapPages * PageSize
	stableSize := stablePages * PageSize
	return MemoryHeader{
		HeapPages:   heapPages,
		HeapSize:    heapSize,
		StablePages: stablePages,
		StableSize:  stableSize,
		All:         heapSize + stableSize,
	}
}

// Consistent reports whether the sizes agree with the page counts.
func (h MemoryHeader) Consistent() bool {
	return h.HeapSize == h.HeapPages*PageSize &&
		h.StableSize == h.StablePages*PageSize &&
		h.All == h.HeapSize+h.StableSize
}

// PagesFor returns the number of whole pages needed to hold n bytes.
func PagesFor(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	return (n-1)/PageSize + 1
}

// RangeEnd returns off+n, reporting false when the sum overflows uint64.
func RangeEnd(off, n uint64) (uint64, bool) {
	if n > math.MaxUint64-off {
		return 0, false
	}
	return off + n, true
}
