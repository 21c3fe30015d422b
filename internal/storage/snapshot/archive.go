package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/stablemem/internal/core/domain"
)

const (
	filePrefix    = "snapshot-"
	fileExtension = ".snap"

	DefaultRetentionCount = 5
	DefaultRetentionDays  = 7
)

// ErrNoArchives is returned when the archive directory holds no snapshot.
var ErrNoArchives = errors.New("snapshot: no archived snapshots")

// ArchiveConfig configures the on-disk snapshot archive.
type ArchiveConfig struct {
	Dir string

	RetentionCount int
	RetentionDays  int

	// Passphrase encrypts archive files. Empty writes them in plain.
	Passphrase []byte
}

// DefaultArchiveConfig returns an archive configuration rooted at dir.
func DefaultArchiveConfig(dir string) ArchiveConfig {
	return ArchiveConfig{
		Dir:            dir,
		RetentionCount: DefaultRetentionCount,
		RetentionDays:  DefaultRetentionDays,
	}
}

// Archive stores copies of saved envelopes as files so an older snapshot
// can be written back into stable memory after an operator error.
type Archive struct {
	cfg    ArchiveConfig
	sealer *sealer
}

// NewArchive creates the archive directory if needed.
func NewArchive(cfg ArchiveConfig) (*Archive, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: archive dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create archive dir: %w", err)
	}
	if cfg.RetentionCount == 0 {
		cfg.RetentionCount = DefaultRetentionCount
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	s, err := newSealer(cfg.Passphrase)
	if err != nil {
		return nil, err
	}
	cfg.Passphrase = nil
	return &Archive{cfg: cfg, sealer: s}, nil
}

// Encrypted reports whether new archives are encrypted.
func (a *Archive) Encrypted() bool {
	return a.sealer != nil
}

// Close wipes the cached key material.
func (a *Archive) Close() {
	a.sealer.close()
}

// ArchiveInfo describes one archived envelope file.
type ArchiveInfo struct {
	ID   string `json:"id" yaml:"id"`
	Path string `json:"path" yaml:"path"`
	Size int64  `json:"size" yaml:"size"`
}

// Write stores an encoded envelope. The file appears atomically under its
// final name.
func (a *Archive) Write(envelope []byte) (*ArchiveInfo, error) {
	id := a.generateID(time.Now())

	data := envelope
	if a.sealer != nil {
		var err error
		if data, err = a.sealer.seal(envelope); err != nil {
			return nil, err
		}
	}

	tempPath := filepath.Join(a.cfg.Dir, id+".tmp")
	file, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	if _, err := file.Write(data); err != nil {
		file.Close()
		return nil, fmt.Errorf("snapshot: write archive: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: close: %w", err)
	}

	finalPath := filepath.Join(a.cfg.Dir, id+fileExtension)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("snapshot: rename: %w", err)
	}

	return &ArchiveInfo{ID: id, Path: finalPath, Size: int64(len(data))}, nil
}

// Latest returns the entries of the newest archived envelope that decodes.
// Corrupted files are skipped in favour of older ones. When no file
// decodes and some could not be decrypted, the decryption error is
// returned instead of ErrNoArchives.
func (a *Archive) Latest() ([]domain.Entry, *Info, error) {
	infos, err := a.List()
	if err != nil {
		return nil, nil, err
	}

	var cryptErr error
	for i := len(infos) - 1; i >= 0; i-- {
		data, err := os.ReadFile(infos[i].Path)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot: read archive: %w", err)
		}
		if data, err = a.unseal(data); err != nil {
			if domain.IsEncodingError(err) {
				continue
			}
			cryptErr = fmt.Errorf("%s: %w", infos[i].ID, err)
			continue
		}
		entries, h, err := Decode(data)
		if err == nil {
			return entries, newInfo(h), nil
		}
		if domain.IsEncodingError(err) {
			continue
		}
		return nil, nil, err
	}
	if cryptErr != nil {
		return nil, nil, cryptErr
	}
	return nil, nil, ErrNoArchives
}

func (a *Archive) unseal(data []byte) ([]byte, error) {
	if !IsSealed(data) {
		return data, nil
	}
	if a.sealer == nil {
		return nil, ErrPassphraseNeeded
	}
	return a.sealer.open(data)
}

// List lists archived envelope files, oldest first.
func (a *Archive) List() ([]*ArchiveInfo, error) {
	entries, err := os.ReadDir(a.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExtension) {
			paths = append(paths, filepath.Join(a.cfg.Dir, name))
		}
	}
	sort.Strings(paths)

	var infos []*ArchiveInfo
	for _, p := range paths {
		stat, err := os.Stat(p)
		if err != nil {
			continue
		}
		infos = append(infos, &ArchiveInfo{
			ID:   strings.TrimSuffix(filepath.Base(p), fileExtension),
			Path: p,
			Size: stat.Size(),
		})
	}
	return infos, nil
}

// Prune deletes archives beyond the newest RetentionCount and, among
// those, the ones older than RetentionDays. The newest archive is never
// deleted. A negative limit disables it.
func (a *Archive) Prune() error {
	infos, err := a.List()
	if err != nil {
		return err
	}
	if len(infos) <= 1 {
		return nil
	}

	newest := len(infos) - 1
	start := 0
	if a.cfg.RetentionCount > 0 && len(infos) > a.cfg.RetentionCount {
		start = len(infos) - a.cfg.RetentionCount
	}

	var cutoff time.Time
	if a.cfg.RetentionDays > 0 {
		cutoff = time.Now().Add(-time.Duration(a.cfg.RetentionDays) * 24 * time.Hour)
	}

	var errs []error
	for i, info := range infos {
		if i == newest {
			break
		}
		if i >= start && !a.expired(info, cutoff) {
			continue
		}
		if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("snapshot: prune: %w", errors.Join(errs...))
	}
	return nil
}

func (a *Archive) expired(info *ArchiveInfo, cutoff time.Time) bool {
	if cutoff.IsZero() {
		return false
	}
	st, err := os.Stat(info.Path)
	if err != nil {
		return false
	}
	return st.ModTime().Before(cutoff)
}

// generateID names a file after t. Sequence numbers continue from the
// highest one of the same second so names keep sorting by write order
// after a prune.
func (a *Archive) generateID(t time.Time) string {
	ts := t.Format("20060102150405")
	prefix := filePrefix + ts + "-"
	seq := 0

	entries, _ := os.ReadDir(a.cfg.Dir)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), fileExtension))
		if err == nil && n > seq {
			seq = n
		}
	}

	return fmt.Sprintf("%s%04d", prefix, seq+1)
}
