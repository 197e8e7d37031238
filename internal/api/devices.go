package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-automation/internal/audit"
	"github.com/nerrad567/gray-logic-automation/internal/device"
)

// createDeviceRequest is the body of POST /devices.
type createDeviceRequest struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Type device.Type `json:"type"`
}

// powerRequest is the body of PUT /devices/{id}/power.
type powerRequest struct {
	On *bool `json:"on"`
}

// handleListDevices returns all devices, optionally filtered.
//
// Query parameters:
//   - type: filter by device type (light, thermostat, appliance)
//   - linked: "true" or "false" to filter by link state
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	typeFilter := device.Type(r.URL.Query().Get("type"))
	linkedFilter := r.URL.Query().Get("linked")

	devices := make([]device.Device, 0, s.devices.Len())
	for _, d := range s.devices.Values() {
		if typeFilter != "" && d.Type != typeFilter {
			continue
		}
		if linkedFilter != "" && d.Linked() != (linkedFilter == "true") {
			continue
		}
		devices = append(devices, d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice adds a device to the inventory. The ID is generated
// when omitted.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev := &device.Device{
		ID:   strings.TrimSpace(req.ID),
		Name: strings.TrimSpace(req.Name),
		Type: req.Type,
	}
	if dev.ID == "" {
		dev.ID = device.GenerateID()
	}
	if err := device.ValidateDevice(dev); err != nil {
		writeDomainError(w, err)
		return
	}
	if s.devices.Has(dev.ID) {
		writeDomainError(w, fmt.Errorf("%w: %s", device.ErrDeviceExists, dev.ID))
		return
	}

	if s.deviceRepo != nil {
		if err := s.deviceRepo.Create(r.Context(), dev); err != nil {
			if errors.Is(err, device.ErrDeviceExists) {
				writeDomainError(w, err)
				return
			}
			s.logger.Error("persisting device", "device_id", dev.ID, "error", err)
			writeInternalError(w, "failed to create device")
			return
		}
	}
	if err := s.devices.Put(dev); err != nil {
		writeDomainError(w, err)
		return
	}

	created, err := s.devices.Get(dev.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.logger.Info("device created", "device_id", dev.ID, "type", dev.Type)
	s.auditLog(audit.ActionCreate, audit.EntityDevice, dev.ID, map[string]any{"name": dev.Name, "type": dev.Type})
	writeJSON(w, http.StatusCreated, created)
}

// handleDeleteDevice unlinks and removes a device.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.manager.RemoveDevice(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	s.deleteFromRepo(r.Context(), id)
	s.auditLog(audit.ActionDelete, audit.EntityDevice, id, nil)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteFromRepo(ctx context.Context, id string) {
	if s.deviceRepo == nil {
		return
	}
	if err := s.deviceRepo.Delete(ctx, id); err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		s.logger.Warn("deleting device from inventory", "device_id", id, "error", err)
	}
}

// handleSetPower switches a device on or off by hand.
func (s *Server) handleSetPower(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req powerRequest
	if err := decodeJSON(r, &req); err != nil || req.On == nil {
		writeBadRequest(w, `body must be {"on": true|false}`)
		return
	}

	tr, changed, err := s.engine.SetPower(r.Context(), id, *req.On)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if changed {
		s.auditLog(audit.ActionPower, audit.EntityDevice, id, map[string]any{"on": *req.On})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":  id,
		"on":         *req.On,
		"changed":    changed,
		"transition": tr,
	})
}
