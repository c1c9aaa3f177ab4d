package lighting

import (
	"context"
	"time"
)

// defaultHeartbeatInterval is how often the keep-alive frame is written.
const defaultHeartbeatInterval = 30 * time.Second

// FrameSender is the part of CommandLink the heartbeat needs.
type FrameSender interface {
	// IsConnected reports whether a socket currently exists.
	IsConnected() bool

	// Send writes a frame, connecting first if necessary.
	Send(ctx context.Context, frame Frame) error
}

// Heartbeat periodically writes KeepAliveFrame on the command link so the
// controller does not drop an idle connection.
type Heartbeat struct {
	observer

	link     FrameSender
	interval time.Duration
}

// NewHeartbeat creates a heartbeat for link. A zero interval means 30s.
func NewHeartbeat(link FrameSender, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	return &Heartbeat{
		link:     link,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled. A tick with no live socket is skipped,
// so the heartbeat never triggers a connection on its own. Send errors are
// logged and the loop carries on.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context) {
	if !h.link.IsConnected() {
		return
	}
	if err := h.link.Send(ctx, KeepAliveFrame); err != nil {
		h.logError("heartbeat send failed", "error", err)
		return
	}
	h.logDebug("heartbeat sent")
}
