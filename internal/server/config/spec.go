package config

import "time"

// ServerConfig is the root configuration for stablemem-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP  HTTPConfig  `koanf:"http"`
	Redis RedisConfig `koanf:"redis"`
	Local LocalConfig `koanf:"local"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// RateLimit is the per-client request rate (requests/second). Zero
	// disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	// EnableAudit logs every request.
	EnableAudit bool `koanf:"enable_audit"`

	// AdminAllowList restricts /admin routes to these IPs/CIDRs.
	AdminAllowList []string `koanf:"admin_allow_list"`

	// CORSAllowedOrigins enables CORS for the listed origins.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// MetricsAuthRequired protects /metrics with the API key.
	MetricsAuthRequired bool `koanf:"metrics_auth_required"`

	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// RedisConfig configures the Redis protocol server.
type RedisConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`
}

// LocalConfig configures the local admin socket. Requests on the socket
// are not checked for API keys.
type LocalConfig struct {
	Enabled    bool   `koanf:"enabled"`
	SocketPath string `koanf:"socket_path"`
}

// StorageSection configures the engine and stable memory.
type StorageSection struct {
	DataDir string `koanf:"data_dir"`

	// Backend is one of memory, file or badger.
	Backend  string `koanf:"backend"`
	MaxPages uint64 `koanf:"max_pages"`

	// MaxPayload is the largest chunk a single stream call moves.
	MaxPayload uint64 `koanf:"max_payload"`

	RestoreOnStart     bool          `koanf:"restore_on_start"`
	SnapshotOnShutdown bool          `koanf:"snapshot_on_shutdown"`
	SnapshotInterval   time.Duration `koanf:"snapshot_interval"`
	SyncOnCommit       bool          `koanf:"sync_on_commit"`

	// SnapshotKeep is the number of archived snapshot files to retain.
	// Zero disables the archive.
	SnapshotKeep          int `koanf:"snapshot_keep"`
	SnapshotRetentionDays int `koanf:"snapshot_retention_days"`

	// ArchivePassphrase encrypts archived snapshot files. Empty keeps them
	// in plain. Prefer STABLEMEM_STORAGE__ARCHIVE_PASSPHRASE over the file.
	ArchivePassphrase string `koanf:"archive_passphrase"`

	Badger BadgerSection `koanf:"badger"`
}

// BadgerSection tunes the badger backend.
type BadgerSection struct {
	GCInterval         string  `koanf:"gc_interval"`
	GCThreshold        float64 `koanf:"gc_threshold"`
	CacheSizeMB        int64   `koanf:"cache_size_mb"`
	ValueLogFileSizeMB int64   `koanf:"value_log_file_size_mb"`
	NumMemtables       int     `koanf:"num_memtables"`
	SyncWrites         bool    `koanf:"sync_writes"`
}

// SecuritySection configures access control.
type SecuritySection struct {
	// APIKey protects the /v1 routes when set.
	APIKey string `koanf:"api_key"`

	// AdminKey protects the /admin routes. Falls back to APIKey when empty.
	AdminKey string `koanf:"admin_key"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
