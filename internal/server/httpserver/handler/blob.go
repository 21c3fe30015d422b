package handler

import (
	"net/http"
)

// handlePushBlob handles POST /v1/blobs. The body is the raw blob.
func (h *Handler) handlePushBlob(w http.ResponseWriter, r *http.Request) {
	blob, err := h.readBody(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	key, err := h.engine.PushBlob(r.Context(), blob)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, &PushBlobResponse{Key: key, Size: len(blob)})
}

// handleSaveSnapshot handles POST /v1/snapshots/save.
func (h *Handler) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	info, err := h.engine.SaveSnapshot(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, &SnapshotResponse{Snapshot: info})
}

// handleLoadSnapshot handles POST /v1/snapshots/load.
func (h *Handler) handleLoadSnapshot(w http.ResponseWriter, r *http.Request) {
	info, err := h.engine.LoadSnapshot(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, &SnapshotResponse{Snapshot: info})
}
