// Package header reports page usage of working and stable memory.
package header

import (
	"runtime/metrics"

	"github.com/yndnr/stablemem/internal/core/domain"
)

// totalMemoryMetric is all memory mapped by the Go runtime.
const totalMemoryMetric = "/memory/classes/total:bytes"

// WorkingMemory reports the size of working memory in bytes.
type WorkingMemory interface {
	Bytes() uint64
}

// StableMemory reports the size of stable memory in pages.
type StableMemory interface {
	Pages() uint64
}

// WorkingMemoryFunc adapts a function to WorkingMemory.
type WorkingMemoryFunc func() uint64

// Bytes implements WorkingMemory.
func (f WorkingMemoryFunc) Bytes() uint64 { return f() }

// RuntimeMemory reads total mapped memory from the Go runtime.
type RuntimeMemory struct{}

// Bytes implements WorkingMemory.
func (RuntimeMemory) Bytes() uint64 {
	sample := []metrics.Sample{{Name: totalMemoryMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}

// Reporter builds memory headers. It has no error path.
type Reporter struct {
	working WorkingMemory
}

// NewReporter creates a reporter. A nil source selects RuntimeMemory.
func NewReporter(working WorkingMemory) *Reporter {
	if working == nil {
		working = RuntimeMemory{}
	}
	return &Reporter{working: working}
}

// Header returns the current usage of both tiers. Working memory is
// rounded up to whole pages.
func (r *Reporter) Header(stable StableMemory) domain.MemoryHeader {
	heapPages := domain.PagesFor(r.working.Bytes())
	return domain.NewMemoryHeader(heapPages, stable.Pages())
}
