package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/storage/header"
	"github.com/yndnr/stablemem/internal/storage/snapshot"
	"github.com/yndnr/stablemem/internal/storage/stable"
	"github.com/yndnr/stablemem/internal/telemetry/metric"
)

func testConfig(dir string) Config {
	cfg := DefaultConfig(dir)
	cfg.SnapshotOnShutdown = false
	cfg.WorkingMemory = header.WorkingMemoryFunc(func() uint64 { return 3 * domain.PageSize })
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func newMemEngine(t *testing.T, maxPages uint64) *Engine {
	t.Helper()
	cfg := testConfig(t.TempDir())
	cfg.Region.Backend = stable.BackendMemory
	cfg.Region.MaxPages = maxPages

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func storeEntries(e *Engine) []domain.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Entries()
}

func regionBytes(t *testing.T, e *Engine) []byte {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := make([]byte, e.region.Pages()*domain.PageSize)
	if err := e.region.ReadAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/tmp/test-data")

	if cfg.Region.Backend != stable.BackendFile {
		t.Errorf("Backend = %s, want file", cfg.Region.Backend)
	}
	if cfg.Region.Dir != filepath.Join("/tmp/test-data", DefaultRegionDir) {
		t.Errorf("Region.Dir = %s", cfg.Region.Dir)
	}
	if !cfg.RestoreOnStart || !cfg.SnapshotOnShutdown {
		t.Error("restore_on_start and snapshot_on_shutdown should default to true")
	}
	if cfg.SnapshotInterval != 0 {
		t.Errorf("SnapshotInterval = %v, want 0", cfg.SnapshotInterval)
	}
}

func TestEngine_New(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig(t.TempDir())
		cfg.Region.Backend = "tape"
		if _, err := New(cfg); err == nil {
			t.Error("expected error for unknown backend")
		}
	})

	t.Run("file backend", func(t *testing.T) {
		e, err := New(testConfig(t.TempDir()))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer e.Close()
	})
}

func TestEngine_PushBlobDenseKeys(t *testing.T) {
	e := newMemEngine(t, 0)
	ctx := context.Background()

	for want := uint64(0); want < 5; want++ {
		key, err := e.PushBlob(ctx, []byte{byte(want)})
		if err != nil {
			t.Fatal(err)
		}
		if key != want {
			t.Errorf("PushBlob returned key %d, want %d", key, want)
		}
	}

	stats, err := e.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 5 || stats.Bytes != 5 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestEngine_Scenario(t *testing.T) {
	e := newMemEngine(t, 0)
	ctx := context.Background()

	if _, err := e.PushBlob(ctx, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.PushBlob(ctx, []byte{4, 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SaveSnapshot(ctx); err != nil {
		t.Fatal(err)
	}

	// Process replacement discards working memory.
	e.mu.Lock()
	e.store.Reset()
	e.mu.Unlock()

	info, err := e.LoadSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.EntryCount != 2 {
		t.Errorf("EntryCount = %d, want 2", info.EntryCount)
	}

	got := storeEntries(e)
	want := []domain.Entry{{Key: 0, Value: []byte{1, 2, 3}}, {Key: 1, Value: []byte{4, 5}}}
	if len(got) != len(want) {
		t.Fatalf("store has %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	h := e.MemoryHeader(ctx)
	if h.StableSize == 0 {
		t.Error("stable_size should be > 0 after save")
	}
	if !h.Consistent() {
		t.Errorf("inconsistent header %+v", h)
	}
}

func TestEngine_RoundTripAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	for _, backend := range []string{stable.BackendFile, stable.BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(filepath.Join(dir, backend))
			cfg.Region.Backend = backend
			cfg.Region.Badger.GCInterval = "1h"
			cfg.SnapshotOnShutdown = true

			e, err := New(cfg)
			if err != nil {
				t.Fatal(err)
			}
			blobs := [][]byte{[]byte("alpha"), {}, bytes.Repeat([]byte{0xCD}, 70000)}
			for _, b := range blobs {
				if _, err := e.PushBlob(ctx, b); err != nil {
					t.Fatal(err)
				}
			}
			if err := e.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			e, err = New(cfg)
			if err != nil {
				t.Fatal(err)
			}
			defer e.Close()
			if err := e.Recover(ctx); err != nil {
				t.Fatalf("Recover: %v", err)
			}

			got := storeEntries(e)
			if len(got) != len(blobs) {
				t.Fatalf("recovered %d entries, want %d", len(got), len(blobs))
			}
			for i, b := range blobs {
				if got[i].Key != uint64(i) || !bytes.Equal(got[i].Value, b) {
					t.Errorf("entry %d differs", i)
				}
			}
		})
	}
}

func TestEngine_LoadIdempotent(t *testing.T) {
	e := newMemEngine(t, 0)
	ctx := context.Background()

	for _, b := range []string{"a", "bb", "ccc"} {
		if _, err := e.PushBlob(ctx, []byte(b)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := e.SaveSnapshot(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := e.LoadSnapshot(ctx); err != nil {
		t.Fatal(err)
	}
	first := storeEntries(e)
	if _, err := e.LoadSnapshot(ctx); err != nil {
		t.Fatal(err)
	}
	second := storeEntries(e)

	if len(first) != len(second) {
		t.Fatalf("load not idempotent: %d vs %d entries", len(first), len(second))
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Errorf("entry %d differs between loads", i)
		}
	}

	// Pushing after a load continues the dense key sequence.
	key, err := e.PushBlob(ctx, []byte("d"))
	if err != nil {
		t.Fatal(err)
	}
	if key != 3 {
		t.Errorf("key after load = %d, want 3", key)
	}
}

func TestEngine_LoadWithoutSnapshot(t *testing.T) {
	e := newMemEngine(t, 0)
	ctx := context.Background()

	if _, err := e.PushBlob(ctx, []byte("kept")); err != nil {
		t.Fatal(err)
	}
	_, err := e.LoadSnapshot(ctx)
	if !errors.Is(err, domain.ErrNoSnapshot) {
		t.Fatalf("LoadSnapshot = %v, want ErrNoSnapshot", err)
	}
	if len(storeEntries(e)) != 1 {
		t.Error("failed load modified the store")
	}

	if err := e.Recover(ctx); err != nil {
		t.Errorf("Recover on empty region = %v, want nil", err)
	}
}

func TestEngine_FailedLoadLeavesStateUnchanged(t *testing.T) {
	e := newMemEngine(t, 0)
	ctx := context.Background()

	if _, err := e.PushBlob(ctx, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SaveSnapshot(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := e.PushBlob(ctx, []byte("y")); err != nil {
		t.Fatal(err)
	}

	// Corrupt one payload byte through the raw path.
	page, err := e.StreamBackup(ctx, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	page[25] ^= 0xFF
	if err := e.StreamRestore(ctx, 0, page); err != nil {
		t.Fatal(err)
	}
	before := regionBytes(t, e)

	if _, err := e.LoadSnapshot(ctx); !errors.Is(err, domain.ErrChecksumMismatch) {
		t.Fatalf("LoadSnapshot = %v, want ErrChecksumMismatch", err)
	}
	if err := e.Recover(ctx); err == nil {
		t.Error("Recover should fail on a corrupted snapshot")
	}

	if got := storeEntries(e); len(got) != 2 {
		t.Errorf("store has %d entries, want 2", len(got))
	}
	if !bytes.Equal(before, regionBytes(t, e)) {
		t.Error("failed load changed stable memory")
	}
}

func TestEngine_FailedSaveLeavesStateUnchanged(t *testing.T) {
	e := newMemEngine(t, 2)
	ctx := context.Background()

	if _, err := e.PushBlob(ctx, []byte("small")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SaveSnapshot(ctx); err != nil {
		t.Fatal(err)
	}
	before := regionBytes(t, e)

	if _, err := e.PushBlob(ctx, make([]byte, 3*domain.PageSize)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SaveSnapshot(ctx); !errors.Is(err, domain.ErrResourceExhausted) {
		t.Fatalf("SaveSnapshot = %v, want ErrResourceExhausted", err)
	}

	if !bytes.Equal(before, regionBytes(t, e)) {
		t.Error("failed save changed stable memory")
	}

	// The earlier snapshot is still intact.
	info, err := e.LoadSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.EntryCount != 1 {
		t.Errorf("EntryCount = %d, want 1", info.EntryCount)
	}
}

func TestEngine_StreamRoundTrip(t *testing.T) {
	src := newMemEngine(t, 0)
	dst := newMemEngine(t, 0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := src.PushBlob(ctx, bytes.Repeat([]byte{byte(i)}, 20000)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := src.SaveSnapshot(ctx); err != nil {
		t.Fatal(err)
	}

	pages := src.MemoryHeader(ctx).StablePages
	for off := uint64(0); off < pages; off++ {
		chunk, err := src.StreamBackup(ctx, off*domain.PageSize, 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := dst.StreamRestore(ctx, off*domain.PageSize, chunk); err != nil {
			t.Fatal(err)
		}
	}

	if !bytes.Equal(regionBytes(t, src), regionBytes(t, dst)) {
		t.Fatal("stable memory differs after streaming")
	}

	if _, err := dst.LoadSnapshot(ctx); err != nil {
		t.Fatal(err)
	}
	if got := storeEntries(dst); len(got) != 10 {
		t.Errorf("restored store has %d entries, want 10", len(got))
	}
}

func TestEngine_StreamBounds(t *testing.T) {
	e := newMemEngine(t, 0)
	ctx := context.Background()

	if _, err := e.StreamBackup(ctx, 0, 1); !errors.Is(err, domain.ErrOutOfBounds) {
		t.Errorf("backup of empty region = %v, want ErrOutOfBounds", err)
	}
	if err := e.StreamRestore(ctx, 0, make([]byte, e.MaxPayload()+1)); !errors.Is(err, domain.ErrPayloadTooLarge) {
		t.Errorf("oversized restore = %v, want ErrPayloadTooLarge", err)
	}
	if err := e.StreamRestore(ctx, 1<<40, nil); !errors.Is(err, domain.ErrOutOfBounds) {
		t.Errorf("empty restore past the end = %v, want ErrOutOfBounds", err)
	}
	if h := e.MemoryHeader(ctx); h.StablePages != 0 {
		t.Errorf("rejected restore grew stable memory to %d pages", h.StablePages)
	}
}

func TestEngine_MemoryHeader(t *testing.T) {
	e := newMemEngine(t, 0)
	ctx := context.Background()

	if err := e.StreamRestore(ctx, 0, []byte("x")); err != nil {
		t.Fatal(err)
	}

	h := e.MemoryHeader(ctx)
	want := domain.NewMemoryHeader(3, 1)
	if h != want {
		t.Errorf("MemoryHeader = %+v, want %+v", h, want)
	}

	trusted, err := e.TrustedMemoryHeader(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if trusted != want {
		t.Errorf("TrustedMemoryHeader = %+v, want %+v", trusted, want)
	}
}

func TestEngine_Closed(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Region.Backend = stable.BackendMemory
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}

	ctx := context.Background()
	if _, err := e.PushBlob(ctx, []byte("x")); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("PushBlob after Close = %v, want ErrServiceUnavailable", err)
	}
	if _, err := e.StreamBackup(ctx, 0, 0); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("StreamBackup after Close = %v, want ErrServiceUnavailable", err)
	}
	if h := e.MemoryHeader(ctx); h.StablePages != 0 || !h.Consistent() {
		t.Errorf("MemoryHeader after Close = %+v", h)
	}
}

func TestEngine_CanceledContext(t *testing.T) {
	e := newMemEngine(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.PushBlob(ctx, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("PushBlob = %v, want context.Canceled", err)
	}
	if len(storeEntries(e)) != 0 {
		t.Error("canceled push modified the store")
	}
}

func TestEngine_Concurrent(t *testing.T) {
	e := newMemEngine(t, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := e.PushBlob(ctx, []byte("blob")); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 5; j++ {
			if _, err := e.SaveSnapshot(ctx); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Wait()

	got := storeEntries(e)
	if len(got) != 400 {
		t.Fatalf("store has %d entries, want 400", len(got))
	}
	if err := domain.CheckDense(got); err != nil {
		t.Error(err)
	}
}

func TestEngine_Archive(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Region.Backend = stable.BackendMemory
	cfg.Archive = snapshot.DefaultArchiveConfig(filepath.Join(dir, DefaultArchiveDir))

	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	ctx := context.Background()

	if _, err := e.PushBlob(ctx, []byte("archived")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SaveSnapshot(ctx); err != nil {
		t.Fatal(err)
	}

	// Overwrite stable memory with junk, then recover from the archive.
	if err := e.StreamRestore(ctx, 0, bytes.Repeat([]byte{0x42}, 64)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.LoadSnapshot(ctx); !errors.Is(err, domain.ErrInvalidEnvelope) {
		t.Fatalf("LoadSnapshot = %v, want ErrInvalidEnvelope", err)
	}

	info, err := e.RestoreArchive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.EntryCount != 1 {
		t.Errorf("EntryCount = %d, want 1", info.EntryCount)
	}
	if _, err := e.LoadSnapshot(ctx); err != nil {
		t.Errorf("stable memory not rewritten: %v", err)
	}

	archives, err := e.Archives(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(archives) != 1 {
		t.Errorf("Archives() = %d files, want 1", len(archives))
	}
}

func TestEngine_ArchiveKeepsSnapshotKeep(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Region.Backend = stable.BackendMemory
	cfg.Archive = snapshot.ArchiveConfig{Dir: filepath.Join(dir, DefaultArchiveDir), RetentionCount: 2}

	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := e.PushBlob(ctx, []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
		if _, err := e.SaveSnapshot(ctx); err != nil {
			t.Fatal(err)
		}
	}

	archives, err := e.Archives(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(archives) != 2 {
		t.Fatalf("Archives() = %d files, want 2", len(archives))
	}
	info, err := e.RestoreArchive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.EntryCount != 4 {
		t.Errorf("restored EntryCount = %d, want the newest save's 4", info.EntryCount)
	}
}

func TestEngine_ArchiveDisabled(t *testing.T) {
	e := newMemEngine(t, 0)
	if _, err := e.RestoreArchive(context.Background()); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("RestoreArchive = %v, want ErrInvalidArgument", err)
	}
	if _, err := e.Archives(context.Background()); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Archives = %v, want ErrInvalidArgument", err)
	}
}

func TestEngine_SnapshotInterval(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Region.Backend = stable.BackendMemory
	cfg.SnapshotInterval = 10 * time.Millisecond

	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	ctx := context.Background()
	if _, err := e.PushBlob(ctx, []byte("tick")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stats, err := e.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if stats.LastSave != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("no automatic snapshot within 2s")
}

func TestEngine_Metrics(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Region.Backend = stable.BackendMemory
	cfg.Metrics = metric.NewRegistry()

	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	ctx := context.Background()
	if _, err := e.PushBlob(ctx, []byte("m")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.LoadSnapshot(ctx); err == nil {
		t.Fatal("expected ErrNoSnapshot")
	}
}
