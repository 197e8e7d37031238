package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-automation/internal/audit"
	"github.com/nerrad567/gray-logic-automation/internal/automation"
)

// thresholdsBody is the JSON form of automation thresholds. Off is optional;
// when omitted the off trip point mirrors the on trip point.
type thresholdsBody struct {
	On  *float64 `json:"auto_on"`
	Off *float64 `json:"auto_off,omitempty"`
}

func (b thresholdsBody) thresholds() automation.Thresholds {
	th := automation.Mirrored(*b.On)
	if b.Off != nil {
		th.Off = *b.Off
		th.OffUsed = true
	}
	return th
}

// linkRequest is the body of PUT /devices/{id}/link.
type linkRequest struct {
	SensorID string   `json:"sensor_id"`
	AutoOn   *float64 `json:"auto_on,omitempty"`
	AutoOff  *float64 `json:"auto_off,omitempty"`
}

// automationRequest is the body of PUT /devices/{id}/automation.
type automationRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleListLinks returns every linked device.
func (s *Server) handleListLinks(w http.ResponseWriter, _ *http.Request) {
	links := s.manager.Links()
	if links == nil {
		links = []automation.LinkState{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": links, "count": len(links)})
}

// handleLinkDevice links a device to a sensor. Thresholds in the body
// replace the device's current ones; without them the current ones are used.
func (s *Server) handleLinkDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req linkRequest
	if err := decodeJSON(r, &req); err != nil || req.SensorID == "" {
		writeBadRequest(w, "sensor_id is required")
		return
	}
	if req.AutoOn == nil && req.AutoOff != nil {
		writeBadRequest(w, "auto_off requires auto_on")
		return
	}

	var (
		res automation.LinkResult
		err error
	)
	if req.AutoOn != nil {
		th := thresholdsBody{On: req.AutoOn, Off: req.AutoOff}.thresholds()
		res, err = s.manager.LinkWithThresholds(r.Context(), id, req.SensorID, th)
	} else {
		res, err = s.manager.Link(r.Context(), id, req.SensorID)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if res.Changed {
		status = http.StatusCreated
		details := map[string]any{"sensor_id": res.SensorID}
		if res.PreviousSensorID != "" {
			details["previous_sensor_id"] = res.PreviousSensorID
		}
		s.auditLog(audit.ActionLink, audit.EntityDevice, id, details)
	}
	writeJSON(w, status, res)
}

// handleUnlinkDevice removes a device's link.
func (s *Server) handleUnlinkDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.Unlink(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	s.auditLog(audit.ActionUnlink, audit.EntityDevice, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleSetThresholds changes a device's trip points.
func (s *Server) handleSetThresholds(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body thresholdsBody
	if err := decodeJSON(r, &body); err != nil || body.On == nil {
		writeBadRequest(w, "auto_on is required")
		return
	}

	th := body.thresholds()
	if err := s.manager.SetThresholds(r.Context(), id, th); err != nil {
		writeDomainError(w, err)
		return
	}
	s.auditLog(audit.ActionThresholds, audit.EntityDevice, id, map[string]any{
		"auto_on":  th.On,
		"auto_off": th.OffAt(),
	})
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "thresholds": th})
}

// handleSetAutomation pauses or resumes automation for a linked device.
func (s *Server) handleSetAutomation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req automationRequest
	if err := decodeJSON(r, &req); err != nil || req.Enabled == nil {
		writeBadRequest(w, `body must be {"enabled": true|false}`)
		return
	}

	if err := s.manager.SetEnabled(r.Context(), id, *req.Enabled); err != nil {
		writeDomainError(w, err)
		return
	}
	action := audit.ActionPause
	if *req.Enabled {
		action = audit.ActionResume
	}
	s.auditLog(action, audit.EntityDevice, id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "enabled": *req.Enabled})
}
