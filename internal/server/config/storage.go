package config

import (
	"log/slog"
	"path/filepath"

	"github.com/yndnr/stablemem/internal/storage"
	"github.com/yndnr/stablemem/internal/storage/snapshot"
	"github.com/yndnr/stablemem/internal/storage/stable"
)

// EngineConfig maps the storage section onto a storage engine config.
func (s *StorageSection) EngineConfig(logger *slog.Logger) storage.Config {
	cfg := storage.DefaultConfig(s.DataDir)
	cfg.Logger = logger

	cfg.Region.Backend = s.Backend
	cfg.Region.MaxPages = s.MaxPages
	cfg.Region.Badger = stable.BadgerConfig{
		GCInterval:       s.Badger.GCInterval,
		GCThreshold:      s.Badger.GCThreshold,
		CacheSize:        cfg.Region.Badger.CacheSize,
		ValueLogFileSize: cfg.Region.Badger.ValueLogFileSize,
		NumMemtables:     cfg.Region.Badger.NumMemtables,
		SyncWrites:       s.Badger.SyncWrites,
	}
	if s.Badger.CacheSizeMB > 0 {
		cfg.Region.Badger.CacheSize = s.Badger.CacheSizeMB << 20
	}
	if s.Badger.ValueLogFileSizeMB > 0 {
		cfg.Region.Badger.ValueLogFileSize = s.Badger.ValueLogFileSizeMB << 20
	}
	if s.Badger.NumMemtables > 0 {
		cfg.Region.Badger.NumMemtables = s.Badger.NumMemtables
	}

	cfg.MaxPayload = s.MaxPayload
	cfg.RestoreOnStart = s.RestoreOnStart
	cfg.SnapshotOnShutdown = s.SnapshotOnShutdown
	cfg.SnapshotInterval = s.SnapshotInterval
	cfg.SyncOnCommit = s.SyncOnCommit

	if s.SnapshotKeep > 0 && s.DataDir != "" {
		cfg.Archive = snapshot.ArchiveConfig{
			Dir:            filepath.Join(s.DataDir, storage.DefaultArchiveDir),
			RetentionCount: s.SnapshotKeep,
			RetentionDays:  s.SnapshotRetentionDays,
		}
		if s.ArchivePassphrase != "" {
			cfg.Archive.Passphrase = []byte(s.ArchivePassphrase)
		}
	}
	return cfg
}
