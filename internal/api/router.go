package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/lights", func(r chi.Router) {
			r.Get("/", s.handleListLights)
			r.Get("/{device}/history", s.handleLightHistory)
		})

		r.Route("/pending", func(r chi.Router) {
			r.Get("/", s.handleListPending)
			r.Post("/", s.handleEnqueue)
			r.Post("/flush", s.handleFlush)
		})
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return r
}

type healthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Bus         string            `json:"bus"`
	CommandLink string            `json:"command_link"`
	StatusLink  string            `json:"status_link,omitempty"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// handleHealth reports bus, link and dependency health. It answers 503 when
// the MQTT bus is down since commands cannot arrive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Version:     s.version,
		Bus:         "connected",
		CommandLink: s.queue.Stats().State.String(),
	}
	if s.statusLink != nil {
		resp.StatusLink = s.statusLink.State().String()
	}

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for name, c := range s.checks {
			if err := c.HealthCheck(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if !s.lights.BusConnected() {
		resp.Bus = "disconnected"
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
