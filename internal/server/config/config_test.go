package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/stablemem/internal/storage"
	"github.com/yndnr/stablemem/internal/storage/stable"
)

// validConfig returns the defaults rooted at a temp dir.
func validConfig(t *testing.T) *ServerConfig {
	t.Helper()
	cfg := Default()
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	// Check server defaults
	if cfg.Server.HTTP.Addr != DefaultHTTPAddr {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.Server.HTTP.Addr, DefaultHTTPAddr)
	}
	if cfg.Server.HTTP.RateLimit != DefaultRateLimit {
		t.Errorf("HTTP.RateLimit = %v, want %v", cfg.Server.HTTP.RateLimit, DefaultRateLimit)
	}
	if cfg.Server.Redis.Enabled {
		t.Error("Redis should be disabled by default")
	}
	if cfg.Server.Redis.Addr != DefaultRedisAddr {
		t.Errorf("Redis.Addr = %q, want %q", cfg.Server.Redis.Addr, DefaultRedisAddr)
	}

	// Check storage defaults
	if cfg.Storage.DataDir != DefaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.Storage.DataDir, DefaultDataDir)
	}
	if cfg.Storage.Backend != stable.BackendFile {
		t.Errorf("Backend = %q, want %q", cfg.Storage.Backend, stable.BackendFile)
	}
	if cfg.Storage.MaxPages != stable.DefaultMaxPages {
		t.Errorf("MaxPages = %d, want %d", cfg.Storage.MaxPages, stable.DefaultMaxPages)
	}
	if !cfg.Storage.RestoreOnStart || !cfg.Storage.SnapshotOnShutdown || !cfg.Storage.SyncOnCommit {
		t.Error("restore_on_start, snapshot_on_shutdown and sync_on_commit should default to true")
	}
	if cfg.Storage.SnapshotInterval != 0 {
		t.Errorf("SnapshotInterval = %v, want 0", cfg.Storage.SnapshotInterval)
	}
	if cfg.Storage.SnapshotKeep != DefaultSnapshotKeep {
		t.Errorf("SnapshotKeep = %d, want %d", cfg.Storage.SnapshotKeep, DefaultSnapshotKeep)
	}

	// Check log defaults
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
	if cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, DefaultLogFormat)
	}
}

func TestSanitize(t *testing.T) {
	cfg := &ServerConfig{
		Security: SecuritySection{
			APIKey:   "super-secret-key-1234567890",
			AdminKey: "abc",
		},
		Storage: StorageSection{ArchivePassphrase: "archive passphrase"},
	}

	sanitized := Sanitize(cfg)
	if sanitized.Storage.ArchivePassphrase != "****" {
		t.Errorf("archive passphrase not masked: %q", sanitized.Storage.ArchivePassphrase)
	}

	// Original should be unchanged
	if cfg.Security.APIKey != "super-secret-key-1234567890" {
		t.Error("Original config should not be modified")
	}
	if sanitized.Security.APIKey == cfg.Security.APIKey {
		t.Error("Sanitized config should mask the API key")
	}
	if len(sanitized.Security.APIKey) != len(cfg.Security.APIKey) {
		t.Errorf("Masked key length = %d, want %d", len(sanitized.Security.APIKey), len(cfg.Security.APIKey))
	}
	if sanitized.Security.AdminKey != "****" {
		t.Errorf("Short key should be fully masked, got %q", sanitized.Security.AdminKey)
	}
}

func TestSanitize_EmptyKey(t *testing.T) {
	sanitized := Sanitize(&ServerConfig{})
	if sanitized.Security.APIKey != "" || sanitized.Security.AdminKey != "" {
		t.Error("Empty keys should remain empty")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a", "****"},
		{"abcd", "****"},
		{"abcde", "ab*de"},
		{"abcdef", "ab**ef"},
		{"1234567890", "12******90"},
	}

	for _, tt := range tests {
		if result := maskSecret(tt.input); result != tt.expected {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestVerify_ValidConfig(t *testing.T) {
	if err := Verify(validConfig(t)); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}

func TestVerify_MemoryBackendWithoutDataDir(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage.Backend = stable.BackendMemory
	cfg.Storage.DataDir = ""
	cfg.Storage.SnapshotKeep = 0

	if err := Verify(cfg); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}

func TestVerify_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"empty http addr", func(c *ServerConfig) { c.Server.HTTP.Addr = "" }, "server.http.addr"},
		{"http addr without port", func(c *ServerConfig) { c.Server.HTTP.Addr = "localhost" }, "server.http.addr"},
		{"tls cert without key", func(c *ServerConfig) { c.Server.HTTP.TLSCertFile = "/tmp/cert.pem" }, "tls_key_file"},
		{"negative rate", func(c *ServerConfig) { c.Server.HTTP.RateLimit = -1 }, "rate_limit"},
		{"zero burst", func(c *ServerConfig) { c.Server.HTTP.RateBurst = 0 }, "rate_burst"},
		{"bad allowlist", func(c *ServerConfig) { c.Server.HTTP.AdminAllowList = []string{"10.0.0.0/33"} }, "admin_allow_list"},
		{"redis tls key only", func(c *ServerConfig) {
			c.Server.Redis.Enabled = true
			c.Server.Redis.TLSKeyFile = "/tmp/key.pem"
		}, "server.redis.tls_cert_file"},
		{"missing tls files", func(c *ServerConfig) {
			c.Server.HTTP.TLSCertFile = "/nonexistent/cert.pem"
			c.Server.HTTP.TLSKeyFile = "/nonexistent/key.pem"
		}, "tls file"},
		{"redis on http port", func(c *ServerConfig) {
			c.Server.Redis.Enabled = true
			c.Server.Redis.Addr = c.Server.HTTP.Addr
		}, "conflicts"},
		{"local socket without path", func(c *ServerConfig) {
			c.Server.Local.Enabled = true
			c.Server.Local.SocketPath = ""
		}, "server.local.socket_path"},
		{"local socket path too long", func(c *ServerConfig) {
			c.Server.Local.Enabled = true
			c.Server.Local.SocketPath = "/" + strings.Repeat("s", 120)
		}, "longer than"},
		{"unknown backend", func(c *ServerConfig) { c.Storage.Backend = "tape" }, "storage.backend"},
		{"empty data dir", func(c *ServerConfig) { c.Storage.DataDir = "" }, "storage.data_dir"},
		{"zero max pages", func(c *ServerConfig) { c.Storage.MaxPages = 0 }, "max_pages"},
		{"weak archive passphrase", func(c *ServerConfig) { c.Storage.ArchivePassphrase = "weak" }, "archive_passphrase"},
		{"payload below a page", func(c *ServerConfig) { c.Storage.MaxPayload = 1024 }, "max_payload"},
		{"negative interval", func(c *ServerConfig) { c.Storage.SnapshotInterval = -time.Second }, "snapshot_interval"},
		{"negative keep", func(c *ServerConfig) { c.Storage.SnapshotKeep = -1 }, "snapshot_keep"},
		{"bad gc interval", func(c *ServerConfig) {
			c.Storage.Backend = stable.BackendBadger
			c.Storage.Badger.GCInterval = "often"
		}, "gc_interval"},
		{"bad gc threshold", func(c *ServerConfig) {
			c.Storage.Backend = stable.BackendBadger
			c.Storage.Badger.GCThreshold = 1.5
		}, "gc_threshold"},
		{"bad log level", func(c *ServerConfig) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *ServerConfig) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := Verify(cfg)
			if err == nil {
				t.Fatal("Verify() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Verify() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_CreateDataDir(t *testing.T) {
	newDir := filepath.Join(t.TempDir(), "subdir", "data")

	cfg := Default()
	cfg.Storage.DataDir = newDir

	if err := Verify(cfg); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
	if _, err := os.Stat(newDir); os.IsNotExist(err) {
		t.Error("Data directory should have been created")
	}
}

func TestStorageSection_EngineConfig(t *testing.T) {
	dir := t.TempDir()
	s := Default().Storage
	s.DataDir = dir
	s.Backend = stable.BackendBadger
	s.MaxPages = 32
	s.MaxPayload = 4 << 20
	s.SnapshotInterval = time.Minute
	s.SyncOnCommit = false
	s.Badger.CacheSizeMB = 8
	s.ArchivePassphrase = "archive passphrase"

	cfg := s.EngineConfig(nil)

	if cfg.Region.Backend != stable.BackendBadger {
		t.Errorf("Region.Backend = %q", cfg.Region.Backend)
	}
	if cfg.Region.Dir != filepath.Join(dir, storage.DefaultRegionDir) {
		t.Errorf("Region.Dir = %q", cfg.Region.Dir)
	}
	if cfg.Region.MaxPages != 32 {
		t.Errorf("Region.MaxPages = %d, want 32", cfg.Region.MaxPages)
	}
	if cfg.Region.Badger.CacheSize != 8<<20 {
		t.Errorf("Badger.CacheSize = %d, want %d", cfg.Region.Badger.CacheSize, 8<<20)
	}
	if cfg.Region.Badger.NumMemtables != stable.DefaultBadgerConfig().NumMemtables {
		t.Errorf("Badger.NumMemtables = %d, want default", cfg.Region.Badger.NumMemtables)
	}
	if cfg.MaxPayload != 4<<20 {
		t.Errorf("MaxPayload = %d", cfg.MaxPayload)
	}
	if cfg.SnapshotInterval != time.Minute {
		t.Errorf("SnapshotInterval = %v", cfg.SnapshotInterval)
	}
	if cfg.SyncOnCommit {
		t.Error("SyncOnCommit should follow the section")
	}
	if cfg.Archive.Dir != filepath.Join(dir, storage.DefaultArchiveDir) {
		t.Errorf("Archive.Dir = %q", cfg.Archive.Dir)
	}
	if cfg.Archive.RetentionCount != DefaultSnapshotKeep {
		t.Errorf("Archive.RetentionCount = %d", cfg.Archive.RetentionCount)
	}
	if string(cfg.Archive.Passphrase) != "archive passphrase" {
		t.Errorf("Archive.Passphrase = %q", cfg.Archive.Passphrase)
	}
}

func TestStorageSection_EngineConfig_NoArchive(t *testing.T) {
	s := Default().Storage
	s.SnapshotKeep = 0

	if cfg := s.EngineConfig(nil); cfg.Archive.Dir != "" {
		t.Errorf("Archive.Dir = %q, want disabled", cfg.Archive.Dir)
	}
}
