package benchmark

import (
	"crypto/rand"
	"io"
	"log/slog"
	"runtime"
	"testing"

	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/storage"
	"github.com/yndnr/stablemem/internal/storage/memory"
	"github.com/yndnr/stablemem/internal/storage/stable"
)

// EntryCounts defines the store sizes for benchmarking.
var EntryCounts = []int{1000, 10000, 50000}

// BlobSizes defines the blob sizes for benchmarking.
var BlobSizes = []int{64, 1024, 16 * 1024}

func randomBlob(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}

// prefillStore fills a store with count blobs of size bytes.
func prefillStore(count, size int) *memory.Store {
	store := memory.New(memory.WithCapacity(count))
	blob := randomBlob(size)
	for i := 0; i < count; i++ {
		store.Insert(blob)
	}
	return store
}

func entries(count, size int) []domain.Entry {
	return prefillStore(count, size).Entries()
}

func newEngine(b *testing.B, backend string) *storage.Engine {
	b.Helper()
	cfg := storage.DefaultConfig(b.TempDir())
	cfg.Region.Backend = backend
	cfg.SnapshotOnShutdown = false
	cfg.SyncOnCommit = false
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if backend == stable.BackendBadger {
		cfg.Region.Badger.GCInterval = "1h"
	}

	e, err := storage.New(cfg)
	if err != nil {
		b.Fatalf("storage.New(%s): %v", backend, err)
	}
	b.Cleanup(func() { e.Close() })
	return e
}

// reportMemory reports heap usage after a GC.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.HeapAlloc)/(1024*1024), prefix+"_heap_MB")
}
