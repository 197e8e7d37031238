package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-automation/internal/audit"
	"github.com/nerrad567/gray-logic-automation/internal/device"
	"github.com/nerrad567/gray-logic-automation/internal/sensor"
)

// createSensorRequest is the body of POST /sensors.
type createSensorRequest struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Type    sensor.Type `json:"type"`
	Reading float64     `json:"reading"`
}

// handleListSensors returns all sensors, optionally filtered by type.
func (s *Server) handleListSensors(w http.ResponseWriter, r *http.Request) {
	typeFilter := sensor.Type(r.URL.Query().Get("type"))

	sensors := make([]sensor.Sensor, 0, s.sensors.Len())
	for _, sen := range s.sensors.Values() {
		if typeFilter != "" && sen.Type != typeFilter {
			continue
		}
		sensors = append(sensors, sen)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensors": sensors, "count": len(sensors)})
}

// handleGetSensor returns a single sensor by ID.
func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	sen, err := s.sensors.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sen)
}

// handleCreateSensor adds a sensor to the inventory.
func (s *Server) handleCreateSensor(w http.ResponseWriter, r *http.Request) {
	var req createSensorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sen := &sensor.Sensor{
		ID:      strings.TrimSpace(req.ID),
		Name:    strings.TrimSpace(req.Name),
		Type:    req.Type,
		Reading: req.Reading,
	}
	if sen.ID == "" {
		sen.ID = device.GenerateID()
	}
	if err := sensor.ValidateSensor(sen); err != nil {
		writeDomainError(w, err)
		return
	}
	if s.sensors.Has(sen.ID) {
		writeDomainError(w, fmt.Errorf("%w: %s", sensor.ErrSensorExists, sen.ID))
		return
	}

	if s.sensorRepo != nil {
		if err := s.sensorRepo.Create(r.Context(), sen); err != nil {
			if errors.Is(err, sensor.ErrSensorExists) {
				writeDomainError(w, err)
				return
			}
			s.logger.Error("persisting sensor", "sensor_id", sen.ID, "error", err)
			writeInternalError(w, "failed to create sensor")
			return
		}
	}
	if err := s.sensors.Put(sen); err != nil {
		writeDomainError(w, err)
		return
	}

	created, err := s.sensors.Get(sen.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.logger.Info("sensor created", "sensor_id", sen.ID, "type", sen.Type)
	s.auditLog(audit.ActionCreate, audit.EntitySensor, sen.ID, map[string]any{"name": sen.Name, "type": sen.Type})
	writeJSON(w, http.StatusCreated, created)
}

// handleDeleteSensor unlinks every device driven by the sensor and removes it.
func (s *Server) handleDeleteSensor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.manager.RemoveSensor(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	if s.sensorRepo != nil {
		if err := s.sensorRepo.Delete(r.Context(), id); err != nil && !errors.Is(err, sensor.ErrSensorNotFound) {
			s.logger.Warn("deleting sensor from inventory", "sensor_id", id, "error", err)
		}
	}

	s.auditLog(audit.ActionDelete, audit.EntitySensor, id, nil)

	w.WriteHeader(http.StatusNoContent)
}

// handlePostReading records a reading and evaluates linked devices.
//
// The body is either {"value": 123.4} or a bare number.
func (s *Server) handlePostReading(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read body")
		return
	}
	value, err := sensor.DecodeReading(body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !s.sensors.Has(id) {
		writeDomainError(w, sensor.ErrSensorNotFound)
		return
	}

	transitions := s.engine.Evaluate(r.Context(), id, value)

	if s.sensorRepo != nil {
		if err := s.sensorRepo.UpdateReading(r.Context(), id, value); err != nil {
			s.logger.Warn("persisting sensor reading", "sensor_id", id, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sensor_id":   id,
		"reading":     value,
		"transitions": transitions,
	})
}
