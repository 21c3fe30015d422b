package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/storage"
	"github.com/yndnr/stablemem/internal/storage/snapshot"
	"github.com/yndnr/stablemem/internal/telemetry/logger"
)

// Engine is the storage surface served over HTTP.
type Engine interface {
	PushBlob(ctx context.Context, blob []byte) (uint64, error)
	SaveSnapshot(ctx context.Context) (*snapshot.Info, error)
	LoadSnapshot(ctx context.Context) (*snapshot.Info, error)
	RestoreArchive(ctx context.Context) (*snapshot.Info, error)
	Archives(ctx context.Context) ([]*snapshot.ArchiveInfo, error)
	MemoryHeader(ctx context.Context) domain.MemoryHeader
	TrustedMemoryHeader(ctx context.Context) (domain.MemoryHeader, error)
	StreamBackup(ctx context.Context, offset, pages uint64) ([]byte, error)
	StreamRestore(ctx context.Context, offset uint64, data []byte) error
	Stats(ctx context.Context) (storage.Stats, error)
	MaxPayload() uint64
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	engine Engine
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a new Handler serving engine.
func New(engine Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		engine: engine,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all HTTP routes.
func (h *Handler) registerRoutes() {
	// Health endpoints (no auth required)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	// Blob store
	h.mux.HandleFunc("POST /v1/blobs", h.handlePushBlob)

	// Snapshots in stable memory
	h.mux.HandleFunc("POST /v1/snapshots/save", h.handleSaveSnapshot)
	h.mux.HandleFunc("POST /v1/snapshots/load", h.handleLoadSnapshot)

	// Memory header
	h.mux.HandleFunc("GET /v1/memory/header", h.handleMemoryHeader)
	h.mux.HandleFunc("POST /v1/memory/header/trusted", h.handleTrustedMemoryHeader)

	// Raw stable memory streaming
	h.mux.HandleFunc("GET /v1/stable/backup", h.handleStreamBackup)
	h.mux.HandleFunc("PUT /v1/stable/restore", h.handleStreamRestore)

	// Admin endpoints
	h.mux.HandleFunc("GET /admin/v1/status/summary", h.handleAdminStatus)
	h.mux.HandleFunc("GET /admin/v1/snapshots/archives", h.handleListArchives)
	h.mux.HandleFunc("POST /admin/v1/snapshots/restore", h.handleRestoreArchive)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// getRequestID returns the request ID set by the RequestID middleware,
// falling back to the caller's header.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts engine errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		de := domain.ErrPayloadTooLarge
		h.writeError(w, r, http.StatusRequestEntityTooLarge, de.Code, de.Message,
			map[string]int64{"limit": maxBytes.Limit})
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		de := domain.ErrServiceUnavailable
		h.writeError(w, r, http.StatusServiceUnavailable, de.Code, err.Error(), nil)
		return
	}

	if domain.IsDomainError(err, "") {
		code := domain.GetErrorCode(err)
		status := errorCodeToHTTPStatus(code)
		if status >= 500 {
			h.logger.ErrorContext(r.Context(), "request failed", "error", err)
		}
		h.writeError(w, r, status, code, err.Error(), nil)
		return
	}

	// Generic internal error
	h.logger.ErrorContext(r.Context(), "internal error", "error", err)
	de := domain.ErrInternalServer
	h.writeError(w, r, http.StatusInternalServerError, de.Code, de.Message, nil)
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4130"):
		return http.StatusRequestEntityTooLarge
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4010"):
		return http.StatusUnauthorized
	case strings.HasSuffix(code, "-4030"):
		return http.StatusForbidden
	case strings.HasPrefix(code, domain.KindEncoding):
		return http.StatusUnprocessableEntity
	case strings.HasPrefix(code, domain.KindValidation), strings.HasSuffix(code, "-4000"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, domain.KindResource):
		return http.StatusInsufficientStorage
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// readBody reads the whole request body, allowing at most the engine's
// per-call limit.
func (h *Handler) readBody(r *http.Request) ([]byte, error) {
	limit := int64(h.engine.MaxPayload())
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, domain.ErrPayloadTooLarge.WithDetailsf("body exceeds %d bytes", limit)
	}
	return data, nil
}

// queryUint parses a non-negative integer query parameter. A missing
// parameter yields def.
func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, domain.ErrInvalidArgument.WithDetailsf("%s must be a non-negative integer", name)
	}
	return v, nil
}
