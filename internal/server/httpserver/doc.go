// Package httpserver provides the HTTP/HTTPS server for stablemem.
//
// This package implements the primary external API using stdlib net/http:
//
//   - Blob endpoints: /v1/blobs
//   - Snapshot endpoints: /v1/snapshots/save, /v1/snapshots/load
//   - Memory endpoints: /v1/memory/header, /v1/stable/backup, /v1/stable/restore
//   - Admin endpoints: /admin/v1/*
//   - Health endpoints: /health, /ready, /metrics
//
// Features:
//
//   - Optional TLS
//   - Middleware chain: RequestID, Recover, CORS, RateLimit, Auth, Audit, MaxBody
//   - Graceful shutdown with configurable timeout
//   - Prometheus metrics integration
package httpserver
