package config

import (
	"time"

	"github.com/yndnr/stablemem/internal/storage/stable"
	"github.com/yndnr/stablemem/internal/storage/stream"
)

// Default configuration values.
const (
	DefaultHTTPAddr  = "127.0.0.1:5080"
	DefaultRedisAddr = "127.0.0.1:6379"
	DefaultLocalPath = "/var/run/stablemem-server/admin.sock"

	DefaultRateLimit    = 1000
	DefaultRateBurst    = 2000
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 60 * time.Second

	DefaultDataDir      = "/var/lib/stablemem-server/data"
	DefaultBackend      = stable.BackendFile
	DefaultMaxPages     = stable.DefaultMaxPages
	DefaultMaxPayload   = stream.DefaultMaxPayload
	DefaultSnapshotKeep = 3

	DefaultBadgerGCInterval  = "10m"
	DefaultBadgerGCThreshold = 0.5

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:                DefaultHTTPAddr,
				RateLimit:           DefaultRateLimit,
				RateBurst:           DefaultRateBurst,
				EnableAudit:         true,
				MetricsAuthRequired: false,
				ReadTimeout:         DefaultReadTimeout,
				WriteTimeout:        DefaultWriteTimeout,
			},
			Redis: RedisConfig{
				Enabled: false,
				Addr:    DefaultRedisAddr,
			},
			Local: LocalConfig{
				Enabled:    false,
				SocketPath: DefaultLocalPath,
			},
		},
		Storage: StorageSection{
			DataDir:            DefaultDataDir,
			Backend:            DefaultBackend,
			MaxPages:           DefaultMaxPages,
			MaxPayload:         DefaultMaxPayload,
			RestoreOnStart:     true,
			SnapshotOnShutdown: true,
			SyncOnCommit:       true,
			SnapshotKeep:       DefaultSnapshotKeep,
			Badger: BadgerSection{
				GCInterval:  DefaultBadgerGCInterval,
				GCThreshold: DefaultBadgerGCThreshold,
				SyncWrites:  true,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
