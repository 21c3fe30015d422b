package stable

import (
	"fmt"
	"log/slog"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
)

// regionFileName is the file used by the file backend inside Config.Dir.
const regionFileName = "stable.region"

// Config selects and configures a region backend.
type Config struct {
	// Backend is one of "memory", "file", "badger".
	Backend string

	// Dir is the data directory of the file and badger backends.
	Dir string

	// MaxPages is the growth limit. 0 selects DefaultMaxPages.
	MaxPages uint64

	Badger BadgerConfig
}

// DefaultConfig returns a file-backed configuration rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Backend:  BackendFile,
		Dir:      dir,
		MaxPages: DefaultMaxPages,
		Badger:   DefaultBadgerConfig(),
	}
}

// Open creates the region selected by cfg.Backend.
func Open(cfg Config, logger *slog.Logger) (Region, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemRegion(cfg.MaxPages), nil
	case BackendFile:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("stable: dir is required for file backend")
		}
		return OpenFileRegion(filepath.Join(cfg.Dir, regionFileName), cfg.MaxPages)
	case BackendBadger:
		dir := cfg.Dir
		if dir != "" {
			dir = filepath.Join(dir, "badger")
		}
		return OpenBadgerRegion(dir, cfg.MaxPages, cfg.Badger, logger)
	default:
		return nil, fmt.Errorf("stable: unknown backend %q", cfg.Backend)
	}
}
