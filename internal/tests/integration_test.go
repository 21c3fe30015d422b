// Package tests holds end-to-end tests that span several packages.
package tests

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/storage"
	"github.com/yndnr/stablemem/internal/storage/stable"
)

func openEngine(t *testing.T, dir, backend string) *storage.Engine {
	t.Helper()
	cfg := storage.DefaultConfig(dir)
	cfg.Region.Backend = backend
	cfg.Region.Badger.GCInterval = "1h"
	cfg.SnapshotOnShutdown = true
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	e, err := storage.New(cfg)
	if err != nil {
		t.Fatalf("storage.New(%s): %v", backend, err)
	}
	if err := e.Recover(context.Background()); err != nil {
		e.Close()
		t.Fatalf("Recover(%s): %v", backend, err)
	}
	return e
}

func push(t *testing.T, e *storage.Engine, blobs ...[]byte) {
	t.Helper()
	for _, b := range blobs {
		if _, err := e.PushBlob(context.Background(), b); err != nil {
			t.Fatalf("PushBlob: %v", err)
		}
	}
}

// TestRestart_RestoresStore replaces the process image: the engine is
// closed (saving on shutdown) and reopened on the same data directory.
func TestRestart_RestoresStore(t *testing.T) {
	for _, backend := range []string{stable.BackendFile, stable.BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()

			e := openEngine(t, dir, backend)
			push(t, e, []byte{1, 2, 3}, []byte{4, 5})
			if err := e.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			e = openEngine(t, dir, backend)
			defer e.Close()

			stats, err := e.Stats(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if stats.Entries != 2 || stats.Bytes != 5 || stats.LastLoad == nil {
				t.Errorf("stats after restart = %+v", stats)
			}
			mh := e.MemoryHeader(ctx)
			if mh.StableSize == 0 || mh.StableSize != mh.StablePages*domain.PageSize {
				t.Errorf("header after restart = %+v", mh)
			}

			// Keys continue densely after the restored ones.
			key, err := e.PushBlob(ctx, []byte{6})
			if err != nil || key != 2 {
				t.Errorf("PushBlob after restart = %d, %v; want 2", key, err)
			}
		})
	}
}

// TestStream_CrossBackend copies a file region into a badger region chunk
// by chunk and loads the snapshot there.
func TestStream_CrossBackend(t *testing.T) {
	ctx := context.Background()

	src := openEngine(t, t.TempDir(), stable.BackendFile)
	defer src.Close()
	push(t, src, bytes.Repeat([]byte{7}, 3*domain.PageSize), []byte("tail"))
	saved, err := src.SaveSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}

	dst := openEngine(t, t.TempDir(), stable.BackendBadger)
	defer dst.Close()

	mh, err := src.TrustedMemoryHeader(ctx)
	if err != nil {
		t.Fatal(err)
	}
	const chunk = 2
	for page := uint64(0); page < mh.StablePages; page += chunk {
		n := min(chunk, mh.StablePages-page)
		data, err := src.StreamBackup(ctx, page*domain.PageSize, n)
		if err != nil {
			t.Fatalf("StreamBackup(page %d): %v", page, err)
		}
		if err := dst.StreamRestore(ctx, page*domain.PageSize, data); err != nil {
			t.Fatalf("StreamRestore(page %d): %v", page, err)
		}
	}

	loaded, err := dst.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if loaded.Checksum != saved.Checksum || loaded.EntryCount != 2 {
		t.Errorf("loaded = %+v, saved = %+v", loaded, saved)
	}
	if got := dst.MemoryHeader(ctx).StablePages; got != mh.StablePages {
		t.Errorf("destination stable pages = %d, want %d", got, mh.StablePages)
	}
}
