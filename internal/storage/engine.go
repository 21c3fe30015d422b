package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/storage/header"
	"github.com/yndnr/stablemem/internal/storage/memory"
	"github.com/yndnr/stablemem/internal/storage/snapshot"
	"github.com/yndnr/stablemem/internal/storage/stable"
	"github.com/yndnr/stablemem/internal/storage/stream"
	"github.com/yndnr/stablemem/internal/telemetry/metric"
)

// Default configuration values.
const (
	DefaultRegionDir  = "stable"
	DefaultArchiveDir = "snapshots"
)

// Operation names used for logging and metrics.
const (
	OpPushBlob            = "push_blob"
	OpSaveSnapshot        = "save_snapshot"
	OpLoadSnapshot        = "load_snapshot"
	OpMemoryHeader        = "memory_header"
	OpTrustedMemoryHeader = "trusted_memory_header"
	OpStreamBackup        = "stream_backup"
	OpStreamRestore       = "stream_restore"
	OpRestoreArchive      = "restore_archive"
)

// Config configures the storage engine.
type Config struct {
	// Region selects the stable memory backend.
	Region stable.Config

	// MaxPayload is the per-call limit of streamed chunks.
	MaxPayload uint64

	// RestoreOnStart loads the snapshot in stable memory during Recover.
	RestoreOnStart bool

	// SnapshotOnShutdown saves a snapshot during Close.
	SnapshotOnShutdown bool

	// SnapshotInterval is the interval between automatic snapshots.
	// Zero disables them.
	SnapshotInterval time.Duration

	// SyncOnCommit flushes the region after every committed change.
	SyncOnCommit bool

	// Archive keeps file copies of saved snapshots. An empty Dir disables it.
	Archive snapshot.ArchiveConfig

	// WorkingMemory overrides the working memory source of the header.
	WorkingMemory header.WorkingMemory

	// Metrics is the optional metrics registry.
	Metrics *metric.Registry

	// Logger is the structured logger.
	Logger *slog.Logger
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		Region:             stable.DefaultConfig(filepath.Join(dataDir, DefaultRegionDir)),
		MaxPayload:         stream.DefaultMaxPayload,
		RestoreOnStart:     true,
		SnapshotOnShutdown: true,
		SyncOnCommit:       true,
		Logger:             slog.Default(),
	}
}

// Stats summarises engine state for status endpoints.
type Stats struct {
	Entries     int            `json:"entries" yaml:"entries"`
	Bytes       uint64         `json:"bytes" yaml:"bytes"`
	Backend     string         `json:"backend" yaml:"backend"`
	StablePages uint64         `json:"stable_pages" yaml:"stable_pages"`
	MaxPages    uint64         `json:"max_pages" yaml:"max_pages"`
	MaxPayload  uint64         `json:"max_payload" yaml:"max_payload"`
	LastSave    *snapshot.Info `json:"last_save,omitempty" yaml:"last_save,omitempty"`
	LastLoad    *snapshot.Info `json:"last_load,omitempty" yaml:"last_load,omitempty"`
}

// Engine owns the keyed blob store and stable memory.
//
// Every operation is serialised through one mutex. Mutating operations
// run in a transaction: region writes go to an overlay and store changes
// are staged, both applied only when the operation succeeds. A failed
// call leaves working and stable memory as they were.
type Engine struct {
	cfg Config

	mu     sync.Mutex
	closed bool

	// Components
	store     *memory.Store
	region    stable.Region
	snapshots *snapshot.Manager
	archive   *snapshot.Archive
	streamer  *stream.Streamer
	reporter  *header.Reporter

	lastSave *snapshot.Info
	lastLoad *snapshot.Info

	metrics *metric.Registry
	logger  *slog.Logger

	// Shutdown
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// txn stages the effects of one mutating call.
type txn struct {
	overlay  *stable.Overlay
	appended [][]byte
	replace  []domain.Entry
	replaced bool

	// after runs once the transaction has been committed.
	after []func()
}

// New creates a new storage engine.
//
// This opens stable memory but does NOT load a snapshot.
// Call Recover() after New() to restore the store.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	region, err := stable.Open(cfg.Region, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("storage: open stable region: %w", err)
	}
	return NewWithRegion(cfg, region)
}

// NewWithRegion creates an engine over an already opened region. The
// engine takes ownership of region.
func NewWithRegion(cfg Config, region stable.Region) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var archive *snapshot.Archive
	if cfg.Archive.Dir != "" {
		a, err := snapshot.NewArchive(cfg.Archive)
		if err != nil {
			region.Close()
			return nil, fmt.Errorf("storage: create snapshot archive: %w", err)
		}
		archive = a
		cfg.Logger.Info("snapshot archive enabled", "dir", cfg.Archive.Dir, "encrypted", a.Encrypted())
	}

	e := &Engine{
		cfg:       cfg,
		store:     memory.New(),
		region:    region,
		snapshots: snapshot.NewManager(),
		archive:   archive,
		streamer:  stream.New(cfg.MaxPayload),
		reporter:  header.NewReporter(cfg.WorkingMemory),
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	if br, ok := region.(*stable.BadgerRegion); ok && cfg.Metrics != nil {
		br.RegisterMetrics(cfg.Metrics.Registerer())
	}
	if err := cfg.Metrics.RegisterHeader(func() domain.MemoryHeader {
		return e.MemoryHeader(context.Background())
	}); err != nil {
		e.logger.Warn("register memory header metrics failed", "error", err)
	}

	if cfg.SnapshotInterval > 0 {
		go e.backgroundLoop()
	} else {
		close(e.doneCh)
	}

	e.logger.Info("storage engine started",
		"backend", cfg.Region.Backend,
		"stable_pages", region.Pages(),
		"max_pages", region.MaxPages(),
		"snapshot_interval", cfg.SnapshotInterval)

	return e, nil
}

// update runs fn as a transaction under the engine lock.
func (e *Engine) update(ctx context.Context, op string, fn func(tx *txn) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	err := e.runTxn(ctx, fn)
	e.metrics.ObserveOperation(op, start, err)
	if err != nil {
		e.logger.Debug("operation failed", "op", op, "error", err)
	}
	return err
}

func (e *Engine) runTxn(ctx context.Context, fn func(tx *txn) error) error {
	if e.closed {
		return domain.ErrServiceUnavailable.WithDetails("storage engine closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &txn{overlay: stable.NewOverlay(e.region)}
	if err := fn(tx); err != nil {
		tx.overlay.Discard()
		return err
	}
	return e.commit(tx)
}

// commit applies a staged transaction: stable memory first, then the
// store. Store changes were validated while staging and cannot fail.
func (e *Engine) commit(tx *txn) error {
	if tx.overlay.Dirty() {
		if err := tx.overlay.Commit(); err != nil {
			return fmt.Errorf("storage: commit stable memory: %w", err)
		}
		if e.cfg.SyncOnCommit {
			if err := e.region.Sync(); err != nil {
				return fmt.Errorf("storage: sync stable memory: %w", err)
			}
		}
	}

	if tx.replaced {
		if err := e.store.Replace(tx.replace); err != nil {
			return fmt.Errorf("storage: replace store: %w", err)
		}
	}
	for _, blob := range tx.appended {
		e.store.Insert(blob)
	}

	if tx.replaced || len(tx.appended) > 0 {
		e.metrics.SetStore(e.store.Len(), e.store.Size())
	}
	for _, fn := range tx.after {
		fn()
	}
	return nil
}

// query runs fn under the engine lock without a transaction.
func (e *Engine) query(ctx context.Context, op string, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	var err error
	switch {
	case e.closed:
		err = domain.ErrServiceUnavailable.WithDetails("storage engine closed")
	case ctx.Err() != nil:
		err = ctx.Err()
	default:
		err = fn()
	}
	e.metrics.ObserveOperation(op, start, err)
	return err
}

// PushBlob appends blob to the store and returns its key.
func (e *Engine) PushBlob(ctx context.Context, blob []byte) (uint64, error) {
	var key uint64
	err := e.update(ctx, OpPushBlob, func(tx *txn) error {
		key = e.store.NextKey() + uint64(len(tx.appended))
		tx.appended = append(tx.appended, blob)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return key, nil
}

// SaveSnapshot writes the whole store into stable memory as one envelope.
func (e *Engine) SaveSnapshot(ctx context.Context) (*snapshot.Info, error) {
	var (
		info     *snapshot.Info
		envelope []byte
	)
	start := time.Now()
	err := e.update(ctx, OpSaveSnapshot, func(tx *txn) error {
		entries := make([]domain.Entry, 0, e.store.Len())
		e.store.Scan(func(en domain.Entry) bool {
			entries = append(entries, en)
			return true
		})

		var err error
		info, envelope, err = e.snapshots.Save(tx.overlay, entries)
		if err != nil {
			return err
		}
		tx.after = append(tx.after, func() { e.lastSave = info })
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.SetSnapshotBytes(info.Size)
	e.metrics.ObserveSnapshotWriteTime(time.Since(start).Seconds())
	e.logger.Info("snapshot saved",
		"entry_count", info.EntryCount,
		"size_bytes", info.Size,
		"pages", info.Pages,
		"checksum", info.Checksum,
		"elapsed", time.Since(start))

	e.archiveEnvelope(envelope)
	return info, nil
}

// archiveEnvelope keeps a file copy of a saved envelope. Failures are
// logged; the snapshot in stable memory is already committed.
func (e *Engine) archiveEnvelope(envelope []byte) {
	if e.archive == nil {
		return
	}
	ai, err := e.archive.Write(envelope)
	if err != nil {
		e.logger.Warn("snapshot archive failed", "error", err)
		return
	}
	if err := e.archive.Prune(); err != nil {
		e.logger.Warn("snapshot archive cleanup failed", "error", err)
	}
	e.logger.Debug("snapshot archived", "id", ai.ID, "path", ai.Path)
}

// LoadSnapshot replaces the store with the snapshot held in stable memory.
// On any error the store is left unchanged.
func (e *Engine) LoadSnapshot(ctx context.Context) (*snapshot.Info, error) {
	var info *snapshot.Info
	err := e.update(ctx, OpLoadSnapshot, func(tx *txn) error {
		entries, i, err := e.snapshots.Load(tx.overlay)
		if err != nil {
			return err
		}
		info = i
		tx.replace = entries
		tx.replaced = true
		tx.after = append(tx.after, func() { e.lastLoad = info })
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.SetSnapshotBytes(info.Size)
	e.logger.Info("snapshot loaded",
		"entry_count", info.EntryCount,
		"size_bytes", info.Size,
		"created_at", info.CreatedAt)
	return info, nil
}

// RestoreArchive writes the newest decodable archived snapshot back into
// stable memory and loads it into the store.
func (e *Engine) RestoreArchive(ctx context.Context) (*snapshot.Info, error) {
	if e.archive == nil {
		return nil, domain.ErrInvalidArgument.WithDetails("snapshot archive is disabled")
	}

	entries, _, err := e.archive.Latest()
	if err != nil {
		return nil, fmt.Errorf("storage: read archive: %w", err)
	}

	var info *snapshot.Info
	err = e.update(ctx, OpRestoreArchive, func(tx *txn) error {
		i, _, err := e.snapshots.Save(tx.overlay, entries)
		if err != nil {
			return err
		}
		info = i
		tx.replace = entries
		tx.replaced = true
		tx.after = append(tx.after, func() { e.lastLoad = info })
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("snapshot restored from archive", "entry_count", info.EntryCount)
	return info, nil
}

// Archives lists archived snapshot files, oldest first.
func (e *Engine) Archives(ctx context.Context) ([]*snapshot.ArchiveInfo, error) {
	if e.archive == nil {
		return nil, domain.ErrInvalidArgument.WithDetails("snapshot archive is disabled")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.archive.List()
}

// MemoryHeader reports usage of both memory tiers.
func (e *Engine) MemoryHeader(ctx context.Context) domain.MemoryHeader {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	var h domain.MemoryHeader
	if e.closed {
		h = e.reporter.Header(zeroPages{})
	} else {
		h = e.reporter.Header(e.region)
	}
	e.metrics.ObserveOperation(OpMemoryHeader, start, nil)
	return h
}

// TrustedMemoryHeader reports memory usage computed inside the
// serialised update path, so the result is ordered with all mutations.
func (e *Engine) TrustedMemoryHeader(ctx context.Context) (domain.MemoryHeader, error) {
	var h domain.MemoryHeader
	err := e.update(ctx, OpTrustedMemoryHeader, func(tx *txn) error {
		h = e.reporter.Header(tx.overlay)
		return nil
	})
	return h, err
}

// StreamBackup returns pages*PageSize raw bytes of stable memory starting
// at offset.
func (e *Engine) StreamBackup(ctx context.Context, offset, pages uint64) ([]byte, error) {
	var data []byte
	err := e.query(ctx, OpStreamBackup, func() error {
		var err error
		data, err = e.streamer.Backup(e.region, offset, pages)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.metrics.AddStreamBytes("backup", len(data))
	return data, nil
}

// StreamRestore writes raw bytes into stable memory at offset, growing it
// as needed.
func (e *Engine) StreamRestore(ctx context.Context, offset uint64, data []byte) error {
	err := e.update(ctx, OpStreamRestore, func(tx *txn) error {
		return e.streamer.Restore(tx.overlay, offset, data)
	})
	if err != nil {
		return err
	}
	e.metrics.AddStreamBytes("restore", len(data))
	return nil
}

// Recover restores the store from stable memory when RestoreOnStart is set.
// An empty region is a fresh start, not an error.
func (e *Engine) Recover(ctx context.Context) error {
	if !e.cfg.RestoreOnStart {
		e.logger.Info("restore on start disabled, starting with empty store")
		return nil
	}

	startTime := time.Now()
	e.logger.Info("storage recovery started")

	info, err := e.LoadSnapshot(ctx)
	if err != nil {
		if snapshot.IsNoSnapshot(err) {
			e.logger.Info("no snapshot found, starting with empty store")
			return nil
		}
		return fmt.Errorf("load snapshot: %w", err)
	}

	e.logger.Info("recovery completed",
		"entry_count", info.EntryCount,
		"elapsed", time.Since(startTime))
	return nil
}

// Stats returns a summary of engine state.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := e.query(ctx, "stats", func() error {
		s = Stats{
			Entries:     e.store.Len(),
			Bytes:       e.store.Size(),
			Backend:     e.cfg.Region.Backend,
			StablePages: e.region.Pages(),
			MaxPages:    e.region.MaxPages(),
			MaxPayload:  e.streamer.MaxPayload(),
			LastSave:    e.lastSave,
			LastLoad:    e.lastLoad,
		}
		return nil
	})
	return s, err
}

// MaxPayload returns the per-call streaming limit.
func (e *Engine) MaxPayload() uint64 {
	return e.streamer.MaxPayload()
}

// backgroundLoop runs periodic snapshot creation.
func (e *Engine) backgroundLoop() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := e.SaveSnapshot(ctx); err != nil {
				e.logger.Error("auto snapshot failed", "error", err)
			}
			cancel()

		case <-e.stopCh:
			return
		}
	}
}

// Close gracefully shuts down the storage engine, saving a final snapshot
// when SnapshotOnShutdown is set.
func (e *Engine) Close() error {
	var err error
	e.stopOnce.Do(func() {
		e.logger.Info("shutting down storage engine")

		close(e.stopCh)
		<-e.doneCh

		if e.cfg.SnapshotOnShutdown {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, serr := e.SaveSnapshot(ctx); serr != nil {
				e.logger.Error("shutdown snapshot failed", "error", serr)
				err = serr
			}
			cancel()
		}

		e.mu.Lock()
		e.closed = true
		cerr := e.region.Close()
		if e.archive != nil {
			e.archive.Close()
		}
		e.mu.Unlock()

		if cerr != nil {
			e.logger.Error("close stable region failed", "error", cerr)
			if err == nil {
				err = cerr
			}
			return
		}
		e.logger.Info("storage engine shutdown complete")
	})
	return err
}

// zeroPages is an empty stable tier, used when the engine is closed.
type zeroPages struct{}

func (zeroPages) Pages() uint64 { return 0 }
