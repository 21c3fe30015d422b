package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/stablemem/internal/infra/buildinfo"
)

// handleAdminStatus handles GET /admin/v1/status/summary.
func (h *Handler) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, &StatusResponse{
		Status: "running",
		Build:  buildinfo.Get(),
		Time:   time.Now().UTC().Format(time.RFC3339),
		Engine: stats,
		Memory: h.engine.MemoryHeader(r.Context()),
	})
}

// handleListArchives handles GET /admin/v1/snapshots/archives.
func (h *Handler) handleListArchives(w http.ResponseWriter, r *http.Request) {
	archives, err := h.engine.Archives(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, &ListArchivesResponse{Archives: archives})
}

// handleRestoreArchive handles POST /admin/v1/snapshots/restore. The newest
// archived envelope is written back into stable memory and loaded.
func (h *Handler) handleRestoreArchive(w http.ResponseWriter, r *http.Request) {
	info, err := h.engine.RestoreArchive(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, &SnapshotResponse{Snapshot: info})
}
