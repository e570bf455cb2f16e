package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/garage-bridge/internal/door"
	"github.com/nerrad567/garage-bridge/internal/myq"
)

// edgeSuffix is appended to device names in /details so hubs can tell
// bridge-created devices apart from their own.
const edgeSuffix = "-EDGE"

// detailsDevice is one entry of the /details listing.
type detailsDevice struct {
	Name         string         `json:"name"`
	BaseURL      string         `json:"baseUrl"`
	Vendor       string         `json:"vendor"`
	Manufacturer string         `json:"manufacturer"`
	Model        string         `json:"model"`
	SerialNumber string         `json:"serialNumber"`
	Status       door.DoorState `json:"status"`
	LastUpdate   string         `json:"lastUpdate,omitempty"`
}

// detailsResponse is the body of GET /details.
type detailsResponse struct {
	Devices []detailsDevice `json:"devices"`
}

// handleDetails lists garage doors in the shape hubs use during discovery.
func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeListing(w, r) {
		return
	}

	resp := detailsResponse{Devices: []detailsDevice{}}
	for dev := range s.bridge.Devices(door.FilterGarageDoors) {
		var lastUpdate string
		if !dev.State.LastUpdate.IsZero() {
			lastUpdate = dev.State.LastUpdate.UTC().Format(time.RFC3339)
		}
		resp.Devices = append(resp.Devices, detailsDevice{
			Name:         dev.Name + edgeSuffix,
			BaseURL:      s.baseURL,
			Vendor:       dev.Vendor,
			Manufacturer: dev.Platform,
			Model:        dev.Model,
			SerialNumber: dev.ID,
			Status:       dev.State.DoorState,
			LastUpdate:   lastUpdate,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePing records the hub address for a door. Unknown doors are
// accepted so a hub may register before the first refresh sees the door.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	doorID := chi.URLParam(r, "doorId")
	q := r.URL.Query()

	port, err := strconv.Atoi(strings.TrimSpace(q.Get("port")))
	if err != nil {
		writeBadRequest(w, "port must be a number")
		return
	}
	peer := door.PeerAddress{
		Host:       strings.TrimSpace(q.Get("ip")),
		Port:       port,
		DeviceUUID: q.Get("ext_uuid"),
	}
	if err := s.bridge.RegisterPeer(doorID, peer); err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRefresh returns the cached status of one door.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	status, err := s.bridge.Status(chi.URLParam(r, "doorId"))
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleControl sends the doorStatus query parameter as a command.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, chi.URLParam(r, "doorId"), r.URL.Query().Get("doorStatus"))
}

// runCommand is shared by the hub and JSON command routes.
func (s *Server) runCommand(w http.ResponseWriter, r *http.Request, id, raw string) {
	creds, ok := s.requireCredentials(w, r)
	if !ok {
		return
	}

	cmd, err := myq.ParseCommand(raw)
	if err != nil {
		writeBridgeError(w, err)
		return
	}

	if s.cfg.RequireCredentials {
		err = s.bridge.ExecuteAs(r.Context(), creds, id, cmd)
	} else {
		err = s.bridge.Execute(r.Context(), id, cmd)
	}
	if err != nil {
		s.logger.Warn("door command failed", "device_id", id, "command", string(cmd), "error", err)
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "command": string(cmd)})
}
