package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lightbridge/internal/bridges/lighting"
)

const maxHistoryLimit = 200

type lightResponse struct {
	Device lighting.Device `json:"device"`
	Name   string          `json:"name"`
	State  *string         `json:"state"`
}

// handleListLights returns every known device with its cached state.
// State is null until the bridge has published one.
func (s *Server) handleListLights(w http.ResponseWriter, _ *http.Request) {
	states := s.lights.States()

	lights := make([]lightResponse, 0, len(lighting.Devices()))
	for _, d := range lighting.Devices() {
		l := lightResponse{Device: d, Name: d.DisplayName()}
		if a, ok := states[d]; ok {
			v := string(a)
			l.State = &v
		}
		lights = append(lights, l)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lights": lights,
		"count":  len(lights),
	})
}

// handleLightHistory returns recorded state changes for one device.
func (s *Server) handleLightHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "state history is not enabled")
		return
	}

	device, err := lighting.ParseDevice(chi.URLParam(r, "device"))
	if err != nil {
		writeNotFound(w, "unknown device")
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.History(r.Context(), device, limit)
	if err != nil {
		s.logger.Error("failed to read state history", "device", device, "error", err)
		writeInternalError(w, "failed to read state history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device":  device,
		"history": entries,
		"count":   len(entries),
	})
}

// parseHistoryLimit validates the limit query parameter. Zero means the
// repository default.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxHistoryLimit)
	}
	return limit, nil
}
