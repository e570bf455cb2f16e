package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/garage-bridge/internal/door"
)

// maxQueryParamLen limits path and query identifiers.
const maxQueryParamLen = 100

// doorStatusResponse is the body of GET /api/v1/doors/{id}/status.
type doorStatusResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	DoorStatus door.DoorState `json:"doorStatus"`
	Online     bool           `json:"online"`
	LastUpdate string         `json:"lastUpdate,omitempty"`
}

// commandRequest is the body of POST /api/v1/doors/{id}/commands.
type commandRequest struct {
	Command string `json:"command"`
}

// doorID reads and bounds the {id} path parameter.
func doorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid door ID")
		return "", false
	}
	return id, true
}

// handleListDoors lists cached garage doors, or every device with
// ?family=all.
func (s *Server) handleListDoors(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeListing(w, r) {
		return
	}

	filter := door.FilterGarageDoors
	switch family := r.URL.Query().Get("family"); family {
	case "", door.FamilyGarageDoor:
	case "all":
		filter = door.FilterAll
	default:
		writeBadRequest(w, "family must be \"all\" or \""+door.FamilyGarageDoor+"\"")
		return
	}

	devices := []door.Device{}
	for dev := range s.bridge.Devices(filter) {
		devices = append(devices, dev)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doors": devices,
		"count": len(devices),
	})
}

// handleGetDoor returns one cached device including its peer.
func (s *Server) handleGetDoor(w http.ResponseWriter, r *http.Request) {
	id, ok := doorID(w, r)
	if !ok {
		return
	}
	dev, err := s.bridge.Device(id)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleGetDoorStatus returns the door state with a formatted last update.
func (s *Server) handleGetDoorStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := doorID(w, r)
	if !ok {
		return
	}
	dev, err := s.bridge.Device(id)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doorStatusResponse{
		ID:         dev.ID,
		Name:       dev.Name,
		DoorStatus: dev.State.DoorState,
		Online:     dev.State.Online,
		LastUpdate: s.bridge.FormatLastUpdate(dev.State.LastUpdate),
	})
}

// handleRegisterPeer is the JSON form of the hub ping.
func (s *Server) handleRegisterPeer(w http.ResponseWriter, r *http.Request) {
	id, ok := doorID(w, r)
	if !ok {
		return
	}

	var peer door.PeerAddress
	if err := json.NewDecoder(r.Body).Decode(&peer); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.bridge.RegisterPeer(id, peer); err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, peer)
}

// handleCommand sends {"command": "..."} to a door.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id, ok := doorID(w, r)
	if !ok {
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	s.runCommand(w, r, id, req.Command)
}

// handleDoorHistory returns recorded transitions for a door, newest first.
func (s *Server) handleDoorHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := doorID(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeUnavailable(w, "history is not enabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := s.history.List(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("listing door history failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"history": entries,
		"count":   len(entries),
	})
}
