package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/storage/snapshot"
	"github.com/yndnr/stablemem/internal/storage/stable"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyLog(&cfg.Log); err != nil {
		return err
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if err := verifyAddr("server.http.addr", cfg.HTTP.Addr); err != nil {
		return err
	}
	if err := verifyTLS("server.http", cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile); err != nil {
		return err
	}
	if cfg.HTTP.RateLimit < 0 {
		return errors.New("server.http.rate_limit must not be negative")
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst < 1 {
		return errors.New("server.http.rate_burst must be at least 1 when rate limiting is enabled")
	}
	for _, entry := range cfg.HTTP.AdminAllowList {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("server.http.admin_allow_list: invalid CIDR %q", entry)
			}
		} else if net.ParseIP(entry) == nil {
			return fmt.Errorf("server.http.admin_allow_list: invalid IP %q", entry)
		}
	}

	if cfg.Redis.Enabled {
		if err := verifyAddr("server.redis.addr", cfg.Redis.Addr); err != nil {
			return err
		}
		if cfg.Redis.Addr == cfg.HTTP.Addr {
			return fmt.Errorf("server.redis.addr conflicts with server.http.addr (%s)", cfg.HTTP.Addr)
		}
		if err := verifyTLS("server.redis", cfg.Redis.TLSCertFile, cfg.Redis.TLSKeyFile); err != nil {
			return err
		}
	}
	if cfg.Local.Enabled {
		if cfg.Local.SocketPath == "" {
			return errors.New("server.local.socket_path is required when the local socket is enabled")
		}
		if len(cfg.Local.SocketPath) > maxSocketPath {
			return fmt.Errorf("server.local.socket_path is longer than %d bytes", maxSocketPath)
		}
	}
	return nil
}

// maxSocketPath is the portable limit of a Unix socket path.
const maxSocketPath = 103

func verifyTLS(section, certFile, keyFile string) error {
	if (certFile == "") != (keyFile == "") {
		return fmt.Errorf("%s.tls_cert_file and tls_key_file must be set together", section)
	}
	for _, f := range []string{certFile, keyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("%s: tls file: %w", section, err)
		}
	}
	return nil
}

func verifyAddr(name, addr string) error {
	if addr == "" {
		return fmt.Errorf("%s is required", name)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case stable.BackendMemory:
	case stable.BackendFile, stable.BackendBadger:
		if cfg.DataDir == "" {
			return errors.New("storage.data_dir is required")
		}
		// Check if data directory exists or can be created
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return errors.New("cannot create data directory: " + err.Error())
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, file, badger (got %q)", cfg.Backend)
	}

	if cfg.MaxPages < 1 {
		return errors.New("storage.max_pages must be at least 1")
	}
	if cfg.MaxPayload < domain.PageSize {
		return fmt.Errorf("storage.max_payload must be at least one page (%d bytes)", domain.PageSize)
	}
	if cfg.SnapshotInterval < 0 {
		return errors.New("storage.snapshot_interval must not be negative")
	}
	if cfg.SnapshotKeep < 0 {
		return errors.New("storage.snapshot_keep must not be negative")
	}
	if cfg.SnapshotKeep > 0 && cfg.DataDir == "" {
		return errors.New("storage.data_dir is required when storage.snapshot_keep is set")
	}
	if err := snapshot.ValidatePassphrase([]byte(cfg.ArchivePassphrase)); err != nil {
		return fmt.Errorf("storage.archive_passphrase: %w", err)
	}

	if cfg.Backend == stable.BackendBadger {
		if _, err := time.ParseDuration(cfg.Badger.GCInterval); err != nil {
			return fmt.Errorf("storage.badger.gc_interval: %w", err)
		}
		if cfg.Badger.GCThreshold <= 0 || cfg.Badger.GCThreshold >= 1 {
			return errors.New("storage.badger.gc_threshold must be between 0 and 1")
		}
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error (got %q)", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "console":
	default:
		return fmt.Errorf("log.format must be json or text (got %q)", cfg.Format)
	}
	return nil
}
