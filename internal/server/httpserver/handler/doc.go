// Package handler provides HTTP request handlers for stablemem.
//
// This package contains handlers for all HTTP endpoints:
//
//   - blob.go: blob pushes and snapshot save/load
//   - memory.go: memory header and raw stable memory streaming
//   - admin.go: administrative operations
//   - health.go: health and readiness checks
//
// All handlers follow a consistent pattern:
//
//   - Parse and validate request
//   - Call the storage engine
//   - Format and return response
//   - Handle errors with appropriate HTTP status codes
package handler
