package config

import (
	"flag"

	"github.com/yndnr/stablemem/internal/infra/confloader"
)

// flagKeys maps server flags to config keys.
var flagKeys = map[string]string{
	"data-dir":   "storage.data_dir",
	"backend":    "storage.backend",
	"max-pages":  "storage.max_pages",
	"http-addr":  "server.http.addr",
	"redis-addr": "server.redis.addr",
	"log-level":  "log.level",
}

// RegisterFlags adds the config override flags to fs. Flag defaults are
// only shown in usage; an unset flag never overrides the file or env.
func RegisterFlags(fs *flag.FlagSet) {
	fs.String("data-dir", DefaultDataDir, "Storage data directory (storage.data_dir)")
	fs.String("backend", string(DefaultBackend), "Stable memory backend: memory, file or badger (storage.backend)")
	fs.Uint64("max-pages", DefaultMaxPages, "Stable memory page limit (storage.max_pages)")
	fs.String("http-addr", DefaultHTTPAddr, "HTTP listen address (server.http.addr)")
	fs.String("redis-addr", DefaultRedisAddr, "Redis protocol listen address (server.redis.addr)")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warn or error (log.level)")
}

// FlagOverrides returns the config values of the flags set on fs.
func FlagOverrides(fs *flag.FlagSet) map[string]any {
	return confloader.FlagOverrides(fs, flagKeys)
}
