// Package main provides the entry point for stablemem-server.
//
// The server hosts one keyed blob store backed by paged stable memory and
// exposes it over:
//
//   - HTTP/HTTPS for blobs, snapshots, memory headers and page streaming
//   - an optional Redis-compatible protocol listener
//   - /metrics in Prometheus format
//   - an optional local admin socket (server.local), guarded by file
//     permissions instead of API keys
//
// Usage:
//
//	stablemem-server [flags]
//	stablemem-server -config /etc/stablemem/server.yaml
//	stablemem-server -data-dir /srv/stablemem -backend badger -http-addr :5080
//
// Flags set on the command line override STABLEMEM_ environment
// variables, which override the config file.
//
// SIGHUP and edits to the config file reload the log level. SIGINT and
// SIGTERM shut the server down, saving a snapshot first when
// storage.snapshot_on_shutdown is set.
package main
