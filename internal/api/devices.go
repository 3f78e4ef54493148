package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tirtalab/aquasense-core/internal/broker"
	"github.com/tirtalab/aquasense-core/internal/device"
)

// defaultPageSize is used when the client does not specify a limit.
const defaultPageSize = 50

// maxPageSize caps the page size a client may request.
const maxPageSize = 500

// provisionRequest is the body of POST /api/v1/devices.
type provisionRequest struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

// provisionResponse includes the one-time clear key. It is shown exactly
// once; only the hash is stored.
type provisionResponse struct {
	Device *device.Device `json:"device"`
	Key    string         `json:"key"`
	Salt   string         `json:"salt"`
}

// updateDeviceRequest is the body of PATCH /api/v1/devices/{deviceID}.
type updateDeviceRequest struct {
	Name   *string `json:"name,omitempty"`
	Status *string `json:"status,omitempty"`
}

// handleListDevices returns a paginated device list.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	opts := device.ListOptions{
		Limit:  queryInt(r, "limit", defaultPageSize),
		Offset: queryInt(r, "offset", 0),
		Status: device.Status(r.URL.Query().Get("status")),
	}
	if opts.Limit > maxPageSize {
		opts.Limit = maxPageSize
	}
	if opts.Status != "" && !opts.Status.Valid() {
		writeBadRequest(w, "invalid status filter")
		return
	}

	devices, total, err := s.devices.List(r.Context(), opts)
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []device.Device{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"total":   total,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// handleProvisionDevice registers a new device and returns its one-time key.
func (s *Server) handleProvisionDevice(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, clearKey, err := device.Provision(req.DeviceID, req.Name)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.devices.Create(r.Context(), dev); err != nil {
		if errors.Is(err, device.ErrDeviceExists) {
			writeConflict(w, "device already registered")
			return
		}
		s.logger.Error("failed to create device", "device_id", req.DeviceID, "error", err)
		writeInternalError(w, "failed to create device")
		return
	}

	s.logger.Info("device provisioned", "device_id", dev.DeviceID)
	writeJSON(w, http.StatusCreated, provisionResponse{
		Device: dev,
		Key:    clearKey,
		Salt:   dev.KeySalt,
	})
}

// handleGetDevice returns a single device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	dev, err := s.devices.GetByDeviceID(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to get device", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleUpdateDevice applies a partial update to name and status.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.devices.GetByDeviceID(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to get device", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	if req.Name != nil {
		dev.Name = *req.Name
	}
	if req.Status != nil {
		dev.Status = device.Status(*req.Status)
	}

	if err := s.devices.Update(r.Context(), dev); err != nil {
		if errors.Is(err, device.ErrInvalidDevice) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("failed to update device", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to update device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device registration.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	if err := s.devices.Delete(r.Context(), deviceID); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to delete device", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to delete device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceTelemetry returns the device room's last live payload along
// with the current session membership.
func (s *Server) handleDeviceTelemetry(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	payload, err := s.registry.LastPayload(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, broker.ErrStoreUnavailable) {
			writeUnavailable(w, "session store unavailable")
			return
		}
		s.logger.Error("failed to read last payload", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to read telemetry")
		return
	}

	members, err := s.registry.Members(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, broker.ErrStoreUnavailable) {
			writeUnavailable(w, "session store unavailable")
			return
		}
		s.logger.Error("failed to read room members", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to read telemetry")
		return
	}

	resp := map[string]any{
		"device_id": deviceID,
		"sessions":  len(members),
		"live":      len(members) > 0,
	}
	if payload != nil {
		resp["payload"] = payload
	}
	writeJSON(w, http.StatusOK, resp)
}

// queryInt parses an integer query parameter, falling back to a default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
