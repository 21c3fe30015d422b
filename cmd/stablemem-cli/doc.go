// Package main provides the entry point for stablemem-cli.
//
// The CLI talks to a stablemem-server over HTTP(S) for:
//
//   - pushing blobs and saving or loading the stable memory snapshot
//   - reading the memory header
//   - chunked backup, restore and offline verification of stable memory
//   - server status and saved connection profiles
//
// Usage:
//
//	stablemem-cli [global flags] command [flags]
//	stablemem-cli connect https://db1:5080 --name prod --api-key smk_...
//	stablemem-cli backup create --dir ./backup-2026-10-18
//	stablemem-cli -o json memory header --trusted
//
// The shell command runs the same commands interactively.
package main
