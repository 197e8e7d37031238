package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-automation/internal/device"
)

const maxHistoryLimit = 200

// handleGetDeviceHistory returns recent transitions for a device, newest first.
//
// Query parameters:
//   - limit: maximum entries (default 50, max 200)
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "transition history is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if !s.devices.Has(id) {
		writeNotFound(w, "device not found")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeBadRequest(w, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("querying transition history", "device_id", id, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}
	if entries == nil {
		entries = []device.TransitionEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "entries": entries, "count": len(entries)})
}
