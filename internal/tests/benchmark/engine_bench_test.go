package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/storage/stable"
)

var backends = []string{stable.BackendMemory, stable.BackendFile, stable.BackendBadger}

// BenchmarkPushBlob benchmarks engine inserts by blob size.
func BenchmarkPushBlob(b *testing.B) {
	for _, size := range BlobSizes {
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			e := newEngine(b, stable.BackendMemory)
			blob := randomBlob(size)
			ctx := context.Background()

			b.ReportAllocs()
			b.SetBytes(int64(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := e.PushBlob(ctx, blob); err != nil {
					b.Fatalf("PushBlob: %v", err)
				}
			}
		})
	}
}

// BenchmarkEngineSaveSnapshot benchmarks a committed save per backend.
func BenchmarkEngineSaveSnapshot(b *testing.B) {
	for _, backend := range backends {
		b.Run(backend, func(b *testing.B) {
			e := newEngine(b, backend)
			ctx := context.Background()
			blob := randomBlob(1024)
			for i := 0; i < 2000; i++ {
				if _, err := e.PushBlob(ctx, blob); err != nil {
					b.Fatal(err)
				}
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := e.SaveSnapshot(ctx); err != nil {
					b.Fatalf("SaveSnapshot: %v", err)
				}
			}
		})
	}
}

// BenchmarkStreamRoundTrip benchmarks backing up and restoring one full
// chunk per backend.
func BenchmarkStreamRoundTrip(b *testing.B) {
	for _, backend := range backends {
		b.Run(backend, func(b *testing.B) {
			e := newEngine(b, backend)
			ctx := context.Background()
			pages := e.MaxPayload() / domain.PageSize
			if err := e.StreamRestore(ctx, 0, make([]byte, pages*domain.PageSize)); err != nil {
				b.Fatal(err)
			}

			b.ReportAllocs()
			b.SetBytes(int64(pages * domain.PageSize))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				data, err := e.StreamBackup(ctx, 0, pages)
				if err != nil {
					b.Fatalf("StreamBackup: %v", err)
				}
				if err := e.StreamRestore(ctx, 0, data); err != nil {
					b.Fatalf("StreamRestore: %v", err)
				}
			}
		})
	}
}
