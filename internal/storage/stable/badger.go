package stable

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/stablemem/internal/core/domain"
)

var (
	pagePrefix   = []byte("p/")
	stagePrefix  = []byte("s/")
	pageCountKey = []byte("m/pages")
	publishKey   = []byte("m/publish")
)

// BadgerConfig contains Badger-specific tuning parameters.
type BadgerConfig struct {
	// InMemory keeps all data in memory (tests only).
	InMemory bool

	// GCInterval is the interval between automatic value log GC runs.
	// Default: 10m
	GCInterval string

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 1GB
	ValueLogFileSize int64

	// NumMemtables is the number of memtables.
	// Default: 2
	NumMemtables int

	// SyncWrites enables fsync after each transaction commit.
	// Default: true
	SyncWrites bool

	// MemTableSize bounds a memtable and, with it, the largest single
	// transaction. Zero keeps the Badger default.
	MemTableSize int64
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:       "10m",
		GCThreshold:      0.5,
		CacheSize:        64 << 20, // 64MB
		ValueLogFileSize: 1 << 30,  // 1GB
		NumMemtables:     2,
		SyncWrites:       true,
	}
}

// BadgerStats contains Badger storage statistics.
type BadgerStats struct {
	LSMSize          uint64
	ValueLogSize     uint64
	LastGCTime       int64 // Unix milliseconds
	GCBytesReclaimed uint64
}

// BadgerRegion is a Region that stores each page under its own Badger key.
// Pages never written read as zero. Each ReadAt/WriteAt/Grow call runs in
// one Badger transaction.
type BadgerRegion struct {
	db       *badger.DB
	cfg      BadgerConfig
	logger   *slog.Logger
	maxPages uint64

	mu     sync.RWMutex
	pages  uint64
	broken error

	// stageHook, when set, runs after each step of a staged commit.
	stageHook func(step string) error

	lastGCTime       atomic.Int64
	gcBytesReclaimed atomic.Uint64

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge

	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// OpenBadgerRegion opens the Badger database in dir and loads the page
// count from its meta key.
func OpenBadgerRegion(dir string, maxPages uint64, cfg BadgerConfig, logger *slog.Logger) (*BadgerRegion, error) {
	if dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("stable: badger dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.NumMemtables > 0 {
		opts.NumMemtables = cfg.NumMemtables
	}
	if cfg.MemTableSize > 0 {
		opts.MemTableSize = cfg.MemTableSize
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("stable: open badger: %w", err)
	}

	r := &BadgerRegion{
		db:       db,
		cfg:      cfg,
		logger:   logger,
		maxPages: normalizeMax(maxPages),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	pages, _, err := r.readCount(pageCountKey)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("stable: load page count: %w", err)
	}
	r.pages = pages
	if err := r.recoverStaged(); err != nil {
		db.Close()
		return nil, fmt.Errorf("stable: recover staged commit: %w", err)
	}

	if cfg.InMemory {
		close(r.doneCh)
	} else {
		go r.gcLoop()
	}

	logger.Info("badger region opened",
		"dir", dir,
		"pages", r.pages,
		"in_memory", cfg.InMemory)

	return r, nil
}

func pageKey(page uint64) []byte {
	key := make([]byte, len(pagePrefix)+8)
	copy(key, pagePrefix)
	binary.BigEndian.PutUint64(key[len(pagePrefix):], page)
	return key
}

func stageKey(page uint64) []byte {
	key := make([]byte, len(stagePrefix)+8)
	copy(key, stagePrefix)
	binary.BigEndian.PutUint64(key[len(stagePrefix):], page)
	return key
}

func encodeCount(n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return buf[:]
}

// Pages implements Region.
func (r *BadgerRegion) Pages() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pages
}

// MaxPages implements Region.
func (r *BadgerRegion) MaxPages() uint64 { return r.maxPages }

// Grow implements Region.
func (r *BadgerRegion) Grow(pages uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken != nil {
		return 0, r.brokenErr()
	}

	prev := r.pages
	next, err := checkGrow(prev, pages, r.maxPages)
	if err != nil {
		return 0, err
	}
	if pages == 0 {
		return prev, nil
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pageCountKey, encodeCount(next))
	})
	if err != nil {
		return 0, domain.ErrStorageError.WithCause(fmt.Errorf("badger grow: %w", err))
	}
	r.pages = next
	return prev, nil
}

// ReadAt implements Region.
func (r *BadgerRegion) ReadAt(p []byte, off uint64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.broken != nil {
		return r.brokenErr()
	}
	if err := checkRange(off, uint64(len(p)), r.pages); err != nil {
		return err
	}

	err := r.db.View(func(txn *badger.Txn) error {
		return forEachPage(p, off, func(page uint64, pageOff int, chunk []byte) error {
			item, err := txn.Get(pageKey(page))
			if errors.Is(err, badger.ErrKeyNotFound) {
				clear(chunk)
				return nil
			}
			if err != nil {
				return err
			}
			return item.Value(func(v []byte) error {
				n := 0
				if pageOff < len(v) {
					n = copy(chunk, v[pageOff:])
				}
				clear(chunk[n:])
				return nil
			})
		})
	})
	if err != nil {
		return domain.ErrStorageError.WithCause(fmt.Errorf("badger read: %w", err))
	}
	return nil
}

// WriteAt implements Region.
func (r *BadgerRegion) WriteAt(p []byte, off uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken != nil {
		return r.brokenErr()
	}
	if err := checkRange(off, uint64(len(p)), r.pages); err != nil {
		return err
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		return forEachPage(p, off, func(page uint64, pageOff int, chunk []byte) error {
			buf := make([]byte, domain.PageSize)
			if len(chunk) < domain.PageSize {
				item, err := txn.Get(pageKey(page))
				switch {
				case errors.Is(err, badger.ErrKeyNotFound):
				case err != nil:
					return err
				default:
					v, err := item.ValueCopy(nil)
					if err != nil {
						return err
					}
					copy(buf, v)
				}
			}
			copy(buf[pageOff:], chunk)
			return txn.Set(pageKey(page), buf)
		})
	})
	if err != nil {
		return domain.ErrStorageError.WithCause(fmt.Errorf("badger write: %w", err))
	}
	return nil
}

// WritePages implements PageWriter. Pages and the new page count are
// written in one transaction. A set larger than one Badger transaction
// allows is committed through staging keys instead (see writeStaged).
func (r *BadgerRegion) WritePages(pages map[uint64][]byte, pageCount uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken != nil {
		return r.brokenErr()
	}

	if pageCount < r.pages {
		return domain.ErrInvalidArgument.WithDetailsf("page count cannot shrink from %d to %d", r.pages, pageCount)
	}
	if _, err := checkGrow(r.pages, pageCount-r.pages, r.maxPages); err != nil {
		return err
	}

	idx := make([]uint64, 0, len(pages))
	for page := range pages {
		if page >= pageCount {
			return domain.ErrOutOfBounds.WithDetailsf("page %d beyond %d pages", page, pageCount)
		}
		idx = append(idx, page)
	}
	sort.Slice(idx, func(i, j int) bool { return idx[i] < idx[j] })

	err := r.db.Update(func(txn *badger.Txn) error {
		for _, page := range idx {
			if err := txn.Set(pageKey(page), pages[page]); err != nil {
				return err
			}
		}
		return txn.Set(pageCountKey, encodeCount(pageCount))
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		err = r.writeStaged(idx, pages, pageCount)
	}
	if err != nil {
		return domain.ErrStorageError.WithCause(fmt.Errorf("badger write pages: %w", err))
	}

	r.pages = pageCount
	return nil
}

// writeStaged commits a page set that does not fit one transaction. The
// pages are first written under staging keys. Committing the publish
// marker is the commit point: a failure before it drops the staged pages
// and leaves the region unchanged. A failure after it leaves the region
// refusing further calls until it is reopened, which finishes the publish.
func (r *BadgerRegion) writeStaged(idx []uint64, pages map[uint64][]byte, pageCount uint64) error {
	err := r.clearStaged()
	if err == nil {
		err = r.batch(func(put func(key, value []byte) error) error {
			for _, page := range idx {
				if err := put(stageKey(page), pages[page]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err == nil {
		err = r.runStageHook("staged")
	}
	if err == nil {
		err = r.db.Update(func(txn *badger.Txn) error {
			return txn.Set(publishKey, encodeCount(pageCount))
		})
	}
	if err != nil {
		if cerr := r.clearStaged(); cerr != nil {
			r.logger.Warn("failed to drop staged pages", "error", cerr)
		}
		return fmt.Errorf("stage pages: %w", err)
	}

	err = r.runStageHook("marked")
	if err == nil {
		_, err = r.publish()
	}
	if err != nil {
		r.broken = err
		return fmt.Errorf("publish staged pages: %w", err)
	}
	return nil
}

func (r *BadgerRegion) runStageHook(step string) error {
	if r.stageHook == nil {
		return nil
	}
	return r.stageHook(step)
}

// publish copies staged pages to their page keys, then records the page
// count and removes the marker in one transaction. Running it again after
// an interruption gives the same result. It reports false when no marker
// exists.
func (r *BadgerRegion) publish() (bool, error) {
	pageCount, ok, err := r.readCount(publishKey)
	if err != nil || !ok {
		return false, err
	}

	err = r.db.View(func(rtxn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = stagePrefix
		it := rtxn.NewIterator(opts)
		defer it.Close()

		return r.batch(func(put func(key, value []byte) error) error {
			for it.Rewind(); it.Valid(); it.Next() {
				item := it.Item()
				v, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				key := append(bytes.Clone(pagePrefix), item.Key()[len(stagePrefix):]...)
				if err := put(key, v); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return true, err
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(pageCountKey, encodeCount(pageCount)); err != nil {
			return err
		}
		return txn.Delete(publishKey)
	})
	if err != nil {
		return true, err
	}
	r.pages = pageCount

	if err := r.clearStaged(); err != nil {
		r.logger.Warn("failed to drop published staging keys", "error", err)
	}
	return true, nil
}

// recoverStaged finishes a staged commit whose marker was written and
// drops staged pages of one that was not.
func (r *BadgerRegion) recoverStaged() error {
	published, err := r.publish()
	if err != nil {
		return err
	}
	if published {
		r.logger.Info("finished staged badger commit", "pages", r.pages)
		return nil
	}
	return r.clearStaged()
}

// clearStaged deletes all staging keys.
func (r *BadgerRegion) clearStaged() error {
	var keys [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = stagePrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil || len(keys) == 0 {
		return err
	}
	return r.batch(func(put func(key, value []byte) error) error {
		for _, key := range keys {
			if err := put(key, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// batch runs fill against a chain of write transactions, committing the
// current one and starting another whenever it is full. A nil value
// deletes the key.
func (r *BadgerRegion) batch(fill func(put func(key, value []byte) error) error) error {
	txn := r.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	apply := func(key, value []byte) error {
		if value == nil {
			return txn.Delete(key)
		}
		return txn.Set(key, value)
	}
	put := func(key, value []byte) error {
		err := apply(key, value)
		if !errors.Is(err, badger.ErrTxnTooBig) {
			return err
		}
		if err := txn.Commit(); err != nil {
			return err
		}
		txn = r.db.NewTransaction(true)
		return apply(key, value)
	}

	if err := fill(put); err != nil {
		return err
	}
	return txn.Commit()
}

func (r *BadgerRegion) readCount(key []byte) (uint64, bool, error) {
	var (
		n     uint64
		found bool
	)
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			if len(v) != 8 {
				return fmt.Errorf("corrupt count %q (%d bytes)", key, len(v))
			}
			n = binary.BigEndian.Uint64(v)
			found = true
			return nil
		})
	})
	return n, found, err
}

func (r *BadgerRegion) brokenErr() error {
	return domain.ErrStorageError.WithCause(
		fmt.Errorf("badger region has an unfinished commit, reopen to complete it: %w", r.broken))
}

// Sync implements Region.
func (r *BadgerRegion) Sync() error {
	if err := r.db.Sync(); err != nil {
		return domain.ErrStorageError.WithCause(fmt.Errorf("badger sync: %w", err))
	}
	return nil
}

// GC runs value log garbage collection until nothing more can be
// rewritten. Returns bytes reclaimed (approximate).
func (r *BadgerRegion) GC() (uint64, error) {
	if r.cfg.InMemory {
		return 0, nil
	}
	startTime := time.Now()

	var total uint64
	for {
		err := r.db.RunValueLogGC(r.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return total, fmt.Errorf("stable: badger gc: %w", err)
		}
		// Badger does not report the exact amount.
		total += 1 << 20
	}

	r.lastGCTime.Store(time.Now().UnixMilli())
	r.gcBytesReclaimed.Add(total)

	r.logger.Info("badger gc completed",
		"bytes_reclaimed", total,
		"elapsed", time.Since(startTime))

	return total, nil
}

// Stats returns storage statistics.
func (r *BadgerRegion) Stats() BadgerStats {
	lsm, vlog := r.db.Size()
	return BadgerStats{
		LSMSize:          uint64(lsm),
		ValueLogSize:     uint64(vlog),
		LastGCTime:       r.lastGCTime.Load(),
		GCBytesReclaimed: r.gcBytesReclaimed.Load(),
	}
}

// RegisterMetrics registers Badger size gauges and starts a background
// updater. It should be called once during initialization.
func (r *BadgerRegion) RegisterMetrics(reg prometheus.Registerer) *BadgerRegion {
	r.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stablemem",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	r.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stablemem",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	r.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stablemem",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last Badger GC run",
	})

	reg.MustRegister(r.metricsLSMSize, r.metricsValueLogSize, r.metricsLastGCTime)

	go r.metricsUpdateLoop()
	return r
}

func (r *BadgerRegion) metricsUpdateLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := r.Stats()
			r.metricsLSMSize.Set(float64(stats.LSMSize))
			r.metricsValueLogSize.Set(float64(stats.ValueLogSize))
			if stats.LastGCTime > 0 {
				r.metricsLastGCTime.Set(float64(stats.LastGCTime) / 1000.0)
			}
		case <-r.stopCh:
			return
		}
	}
}

func (r *BadgerRegion) gcLoop() {
	defer close(r.doneCh)

	interval, err := time.ParseDuration(r.cfg.GCInterval)
	if err != nil || interval <= 0 {
		r.logger.Error("invalid gc_interval, using default 10m", "value", r.cfg.GCInterval)
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.GC(); err != nil {
				r.logger.Error("auto gc failed", "error", err)
			}
		case <-r.stopCh:
			return
		}
	}
}

// Close implements Region.
func (r *BadgerRegion) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stopCh)
		<-r.doneCh

		if cerr := r.db.Close(); cerr != nil {
			err = fmt.Errorf("stable: close badger: %w", cerr)
		}
		r.logger.Info("badger region closed")
	})
	return err
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
