package handler

import (
	"net/http"
	"strconv"

	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/storage/stream"
)

// handleMemoryHeader handles GET /v1/memory/header.
func (h *Handler) handleMemoryHeader(w http.ResponseWriter, r *http.Request) {
	mh := h.engine.MemoryHeader(r.Context())
	h.writeJSON(w, r, http.StatusOK, &MemoryHeaderResponse{MemoryHeader: mh})
}

// handleTrustedMemoryHeader handles POST /v1/memory/header/trusted. It is a
// committed call, so the sizes it reports are final.
func (h *Handler) handleTrustedMemoryHeader(w http.ResponseWriter, r *http.Request) {
	mh, err := h.engine.TrustedMemoryHeader(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, &MemoryHeaderResponse{MemoryHeader: mh, Trusted: true})
}

// handleStreamBackup handles GET /v1/stable/backup?offset=N&pages=M.
// The response body is the raw page range.
func (h *Handler) handleStreamBackup(w http.ResponseWriter, r *http.Request) {
	offset, err := queryUint(r, "offset", 0)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	pages, err := queryUint(r, "pages", 0)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	data, err := h.engine.StreamBackup(r.Context(), offset, pages)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set(HeaderChunkHash, stream.ChunkHash(data))
	w.Header().Set(HeaderStableOffset, strconv.FormatUint(offset, 10))
	w.Header().Set(HeaderStablePages, strconv.FormatUint(pages, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("backup write aborted", "error", err)
	}
}

// handleStreamRestore handles PUT /v1/stable/restore?offset=N. The body is
// written verbatim at offset. When X-Chunk-Hash is set it must match the body.
func (h *Handler) handleStreamRestore(w http.ResponseWriter, r *http.Request) {
	offset, err := queryUint(r, "offset", 0)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	data, err := h.readBody(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	sum := stream.ChunkHash(data)
	if want := r.Header.Get(HeaderChunkHash); want != "" && want != sum {
		h.handleServiceError(w, r, domain.ErrBadRequest.WithDetailsf(
			"chunk hash mismatch: header %s, body %s", want, sum))
		return
	}

	if err := h.engine.StreamRestore(r.Context(), offset, data); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	mh := h.engine.MemoryHeader(r.Context())
	h.writeJSON(w, r, http.StatusOK, &RestoreResponse{
		Offset:      offset,
		Bytes:       len(data),
		ChunkHash:   sum,
		StablePages: mh.StablePages,
	})
}
