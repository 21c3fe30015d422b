package handler

import (
	"time"

	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/infra/buildinfo"
	"github.com/yndnr/stablemem/internal/storage"
	"github.com/yndnr/stablemem/internal/storage/snapshot"
)

// Streaming headers.
const (
	HeaderChunkHash    = "X-Chunk-Hash"
	HeaderStableOffset = "X-Stable-Offset"
	HeaderStablePages  = "X-Stable-Pages"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus
// format and the raw stable memory stream).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"` // Additional error details
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// PushBlobResponse is the response body for POST /v1/blobs.
type PushBlobResponse struct {
	Key  uint64 `json:"key"`
	Size int    `json:"size"`
}

// SnapshotResponse wraps snapshot metadata.
type SnapshotResponse struct {
	Snapshot *snapshot.Info `json:"snapshot"`
}

// MemoryHeaderResponse is the response body for the memory header routes.
type MemoryHeaderResponse struct {
	domain.MemoryHeader
	Trusted bool `json:"trusted"`
}

// RestoreResponse is the response body for PUT /v1/stable/restore.
type RestoreResponse struct {
	Offset      uint64 `json:"offset"`
	Bytes       int    `json:"bytes"`
	ChunkHash   string `json:"chunk_hash"`
	StablePages uint64 `json:"stable_pages"`
}

// StatusResponse is the response body for GET /admin/v1/status/summary.
type StatusResponse struct {
	Status string              `json:"status"`
	Build  buildinfo.Info      `json:"build"`
	Time   string              `json:"time"`
	Engine storage.Stats       `json:"engine"`
	Memory domain.MemoryHeader `json:"memory"`
}

// ListArchivesResponse is the response body for GET /admin/v1/snapshots/archives.
type ListArchivesResponse struct {
	Archives []*snapshot.ArchiveInfo `json:"archives"`
}
