package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/slatehome/tvbridge/internal/device"
	"github.com/slatehome/tvbridge/internal/tv"
)

// deviceView is the API representation of a device. Pairing and cloud
// tokens never leave the process.
type deviceView struct {
	Identifier        string   `json:"identifier"`
	Name              string   `json:"name"`
	Address           string   `json:"address"`
	MACAddress        string   `json:"mac_address,omitempty"`
	Paired            bool     `json:"paired"`
	CloudLinked       bool     `json:"cloud_linked"`
	ReportsPowerState bool     `json:"reports_power_state"`
	SupportsArtMode   bool     `json:"supports_art_mode"`
	SupportsCloudWake bool     `json:"supports_cloud_wake"`
	PowerState        string   `json:"power_state"`
	SourceList        []string `json:"source_list,omitempty"`
}

// stateView is the live state subset returned by the state endpoint.
type stateView struct {
	DeviceID      string   `json:"device_id"`
	PowerState    string   `json:"power_state"`
	SourceList    []string `json:"source_list"`
	DroppedEvents uint64   `json:"dropped_events"`
}

// commandResponse reports the outcome of a dispatched command.
type commandResponse struct {
	DeviceID string `json:"device_id"`
	Result   string `json:"result"`
}

// toView combines a device config with its session's live state.
func (s *Server) toView(cfg *device.Config) deviceView {
	view := deviceView{
		Identifier:        cfg.Identifier,
		Name:              cfg.Name,
		Address:           cfg.Address,
		MACAddress:        cfg.MACAddress,
		Paired:            cfg.AuthToken != "",
		CloudLinked:       cfg.CloudAccessToken != "",
		ReportsPowerState: cfg.ReportsPowerState,
		SupportsArtMode:   cfg.SupportsArtMode,
		SupportsCloudWake: cfg.SupportsCloudWake,
		PowerState:        string(tv.PowerOff),
	}
	if session, ok := s.sessions.Get(cfg.Identifier); ok {
		view.PowerState = string(session.State())
		view.SourceList = session.SourceList()
	}
	return view
}

// handleListDevices returns all managed devices with their live state.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	configs, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		writeInternalError(w, "listing devices failed")
		return
	}

	views := make([]deviceView, 0, len(configs))
	for i := range configs {
		views = append(views, s.toView(&configs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns a single device with its live state.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cfg, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("fetching device failed", "device_id", id, "error", err)
		writeInternalError(w, "fetching device failed")
		return
	}

	writeJSON(w, http.StatusOK, s.toView(cfg))
}

// handleGetDeviceState re-probes the device and returns the reconciled
// power state. This is the synchronous read path; MQTT carries the
// push-based one.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, ok := s.sessions.Get(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	state := session.RefreshPowerState(r.Context())
	writeJSON(w, http.StatusOK, stateView{
		DeviceID:      id,
		PowerState:    string(state),
		SourceList:    session.SourceList(),
		DroppedEvents: session.DroppedEvents(),
	})
}

// handleGetDeviceHistory returns recent power-state history.
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.history == nil {
		writeNotFound(w, "history not enabled")
		return
	}
	if _, ok := s.sessions.Get(id); !ok {
		writeNotFound(w, "device not found")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("fetching history failed", "device_id", id, "error", err)
		writeInternalError(w, "fetching history failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"history":   entries,
		"count":     len(entries),
	})
}

// powerRequest is the body for the power command endpoint.
type powerRequest struct {
	// Action is "on", "off", or "toggle".
	Action string `json:"action"`
}

// handlePowerCommand dispatches a power request to the session.
func (s *Server) handlePowerCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, ok := s.sessions.Get(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	var req powerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	var res tv.Result
	switch req.Action {
	case "on":
		res = session.RequestOn(r.Context())
	case "off":
		res = session.RequestOff(r.Context())
	case "toggle":
		res = session.Toggle(r.Context())
	default:
		writeBadRequest(w, "action must be on, off, or toggle")
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{DeviceID: id, Result: res.String()})
}

// keyRequest is the body for the key command endpoint.
type keyRequest struct {
	Key    string `json:"key"`
	HoldMs int    `json:"hold_ms,omitempty"`
}

// handleKeyCommand sends a remote key event to the device.
func (s *Server) handleKeyCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, ok := s.sessions.Get(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeBadRequest(w, "key is required")
		return
	}
	if !tv.ValidKey(req.Key) {
		writeBadRequest(w, "malformed key code")
		return
	}
	if req.HoldMs < 0 {
		writeBadRequest(w, "hold_ms must not be negative")
		return
	}

	res := session.SendKey(r.Context(), req.Key, req.HoldMs)
	writeJSON(w, http.StatusOK, commandResponse{DeviceID: id, Result: res.String()})
}

// appRequest is the body for the app launch endpoint.
type appRequest struct {
	// App is an app name or a physical source (e.g., "Netflix", "HDMI2").
	App string `json:"app"`
}

// handleAppCommand launches an app or switches to a physical input.
func (s *Server) handleAppCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, ok := s.sessions.Get(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	var req appRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.App == "" {
		writeBadRequest(w, "app is required")
		return
	}

	res := session.LaunchApp(r.Context(), req.App)
	writeJSON(w, http.StatusOK, commandResponse{DeviceID: id, Result: res.String()})
}
