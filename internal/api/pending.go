package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/lightbridge/internal/bridges/lighting"
)

type enqueueRequest struct {
	Device string `json:"device"`
	Action string `json:"action"`
}

type flushResponse struct {
	Sent      int    `json:"sent"`
	Remaining int    `json:"remaining"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

type linkStatsResponse struct {
	State         string     `json:"state"`
	FramesSent    uint64     `json:"frames_sent"`
	WriteErrors   uint64     `json:"write_errors"`
	ConnectErrors uint64     `json:"connect_errors"`
	Connects      uint64     `json:"connects"`
	Pending       int        `json:"pending"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
}

func toLinkStats(st lighting.LinkStats) linkStatsResponse {
	resp := linkStatsResponse{
		State:         st.State.String(),
		FramesSent:    st.FramesSent,
		WriteErrors:   st.WriteErrors,
		ConnectErrors: st.ConnectErrors,
		Connects:      st.Connects,
		Pending:       st.Pending,
	}
	if !st.LastActivity.IsZero() {
		t := st.LastActivity
		resp.LastActivity = &t
	}
	return resp
}

// handleListPending returns the queued frames and the command link stats.
func (s *Server) handleListPending(w http.ResponseWriter, _ *http.Request) {
	frames := s.queue.Pending()
	if frames == nil {
		frames = []lighting.Frame{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"frames": frames,
		"count":  len(frames),
		"link":   toLinkStats(s.queue.Stats()),
	})
}

// handleEnqueue encodes a device/action pair and appends it to the queue.
// Nothing is sent until the queue is flushed.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	device, err := lighting.ParseDevice(req.Device)
	if err != nil {
		writeNotFound(w, "unknown device")
		return
	}
	action, err := lighting.ParseAction(req.Action)
	if err != nil {
		writeBadRequest(w, "action must be on or off")
		return
	}
	frame, err := lighting.Encode(device, action)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.queue.Enqueue(frame)
	s.logger.Info("frame queued", "device", device, "action", action, "frame", frame)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"frame":   frame,
		"pending": len(s.queue.Pending()),
	})
}

// handleFlush sends queued frames in order. On failure the unsent frames
// stay queued and the response reports how far it got. The flush gives up
// before the write deadline so that report is not lost.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.flushTimeout)
	defer cancel()

	sent, err := s.queue.Flush(ctx)
	remaining := len(s.queue.Pending())

	if err != nil {
		s.logger.Warn("pending flush failed", "sent", sent, "remaining", remaining, "error", err)
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, lighting.ErrLinkClosed):
			status = http.StatusServiceUnavailable
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, flushResponse{
			Sent:      sent,
			Remaining: remaining,
			Code:      ErrCodeLinkFailed,
			Error:     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, flushResponse{Sent: sent, Remaining: remaining})
}
