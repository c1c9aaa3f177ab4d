package lighting

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Default command link settings.
const (
	// defaultConnectTimeout bounds a single dial attempt.
	defaultConnectTimeout = 5 * time.Second

	// defaultRetryDelay is the fixed wait between dial attempts.
	defaultRetryDelay = 5 * time.Second

	// defaultMaxRetries is the number of dial attempts per Connect.
	defaultMaxRetries = 5

	// defaultWriteTimeout bounds a single frame write.
	defaultWriteTimeout = 5 * time.Second

	// sendAttempts is the initial write plus exactly one reconnect-and-retry.
	sendAttempts = 2
)

// LinkState is the connection state of a controller link.
type LinkState int32

// Link states. Only dial attempts and transport errors move between them.
const (
	StateDisconnected LinkState = iota
	StateConnecting
	StateConnected
)

// String implements fmt.Stringer.
func (s LinkState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// LinkConfig holds command link settings.
type LinkConfig struct {
	// Address is the controller "host:port".
	Address string

	// ConnectTimeout bounds each dial attempt. Default: 5s.
	ConnectTimeout time.Duration

	// RetryDelay is the wait between dial attempts. Default: 5s.
	RetryDelay time.Duration

	// MaxRetries is the number of dial attempts per Connect. Default: 5.
	MaxRetries int

	// WriteTimeout bounds each frame write. Default: 5s.
	WriteTimeout time.Duration

	// Dialer overrides the network dialer (tests). Default: net.Dialer.
	Dialer Dialer
}

func (c *LinkConfig) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
}

// LinkStats holds command link statistics.
type LinkStats struct {
	State         LinkState
	FramesSent    uint64
	WriteErrors   uint64
	ConnectErrors uint64
	Connects      uint64
	Pending       int
	LastActivity  time.Time
}

// CommandLink owns the TCP socket used to send frames to the controller.
//
// Thread Safety:
//   - A single mutex guards the socket, so at most one frame is in flight.
//   - The pending queue has its own lock and never touches the socket.
//   - Flush calls are serialised end to end so the queue drains in order.
type CommandLink struct {
	observer

	cfg   LinkConfig
	sleep sleepFunc

	// mu guards conn and every read/write on it.
	mu   sync.Mutex
	conn net.Conn

	state  atomic.Int32
	closed atomic.Bool

	queueMu sync.Mutex
	queue   []Frame

	// flushMu is held for a whole Flush so a second caller cannot pop a
	// later frame while the head is still being sent.
	flushMu sync.Mutex

	framesSent    atomic.Uint64
	writeErrors   atomic.Uint64
	connectErrors atomic.Uint64
	connects      atomic.Uint64
	lastActivity  atomic.Int64
}

// NewCommandLink creates a link in the Disconnected state.
// No connection is made until Connect or Send is called.
func NewCommandLink(cfg LinkConfig) *CommandLink {
	cfg.applyDefaults()
	return &CommandLink{
		cfg:   cfg,
		sleep: sleepContext,
	}
}

// Address returns the controller address.
func (l *CommandLink) Address() string {
	return l.cfg.Address
}

// Connect dials the controller, retrying up to MaxRetries times with
// RetryDelay between attempts. On exhaustion the link stays Disconnected
// and ErrConnectionFailed is returned.
func (l *CommandLink) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return nil
	}
	return l.connectLocked(ctx)
}

// connectLocked performs the bounded dial loop. Caller must hold l.mu.
func (l *CommandLink) connectLocked(ctx context.Context) error {
	maxAttempts := l.cfg.MaxRetries
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if l.closed.Load() {
			l.setState(StateDisconnected)
			return ErrLinkClosed
		}

		l.setState(StateConnecting)
		conn, err := l.dial(ctx)
		if err == nil {
			l.conn = conn
			l.setState(StateConnected)
			l.connects.Add(1)
			l.touch()
			l.m().ConnectAttempt(linkCommand, true)
			l.logInfo("controller connected", "link", linkCommand, "address", l.cfg.Address)
			return nil
		}

		lastErr = err
		l.connectErrors.Add(1)
		l.m().ConnectAttempt(linkCommand, false)
		l.logWarn("controller connection failed",
			"link", linkCommand,
			"attempt", attempt,
			"max", maxAttempts,
			"error", err)

		if attempt < maxAttempts {
			if sleepErr := l.sleep(ctx, l.cfg.RetryDelay); sleepErr != nil {
				l.setState(StateDisconnected)
				return fmt.Errorf("%w: %w", ErrConnectionFailed, sleepErr)
			}
		}
	}

	l.setState(StateDisconnected)
	l.logError("controller connection failed, max retries reached",
		"link", linkCommand,
		"address", l.cfg.Address,
		"max", maxAttempts)
	return fmt.Errorf("%w: %d attempts: %w", ErrConnectionFailed, maxAttempts, lastErr)
}

// dial makes a single connection attempt bounded by ConnectTimeout.
func (l *CommandLink) dial(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, l.cfg.ConnectTimeout)
	defer cancel()

	conn, err := l.cfg.Dialer.DialContext(dialCtx, "tcp", l.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", l.cfg.Address, err)
	}
	return conn, nil
}

// Send writes a frame to the controller.
//
// The link lock is held for the whole call. Without a live socket Send
// connects first. A write error discards the socket and triggers exactly
// one more connect-and-write cycle; if that fails too, ErrSendFailed is
// returned.
func (l *CommandLink) Send(ctx context.Context, frame Frame) error {
	payload, err := frame.Bytes()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if l.closed.Load() {
			return ErrLinkClosed
		}

		if l.conn == nil {
			if err := l.connectLocked(ctx); err != nil {
				l.m().FrameSent(resultFailed)
				return fmt.Errorf("%w: %w", ErrSendFailed, err)
			}
		}

		err := l.writeLocked(payload)
		if err == nil {
			l.framesSent.Add(1)
			l.touch()
			l.m().FrameSent(resultOK)
			l.logDebug("frame sent", "frame", frame)
			return nil
		}

		lastErr = err
		l.writeErrors.Add(1)
		l.logWarn("frame send failed, reconnecting",
			"frame", frame,
			"attempt", attempt,
			"error", err)
		l.dropLocked()
	}

	l.m().FrameSent(resultFailed)
	return fmt.Errorf("%w: %w", ErrSendFailed, lastErr)
}

// writeLocked writes payload with a deadline. Caller must hold l.mu.
func (l *CommandLink) writeLocked(payload []byte) error {
	if err := l.conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := l.conn.Write(payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// dropLocked closes and forgets the socket. Caller must hold l.mu.
func (l *CommandLink) dropLocked() {
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.setState(StateDisconnected)
}

// Enqueue appends a frame to the pending queue. It never sends.
func (l *CommandLink) Enqueue(frame Frame) {
	l.queueMu.Lock()
	l.queue = append(l.queue, frame)
	n := len(l.queue)
	l.queueMu.Unlock()

	l.logDebug("frame queued", "frame", frame, "pending", n)
}

// Flush sends queued frames in FIFO order through Send. It stops at the
// first failure, leaving that frame and everything after it queued. It
// also stops before the next frame once ctx is done.
//
// Returns the number of frames sent.
func (l *CommandLink) Flush(ctx context.Context) (int, error) {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	sent := 0
	for {
		l.queueMu.Lock()
		if len(l.queue) == 0 {
			l.queueMu.Unlock()
			return sent, nil
		}
		if err := ctx.Err(); err != nil {
			l.queueMu.Unlock()
			return sent, err
		}
		frame := l.queue[0]
		l.queue = l.queue[1:]
		l.queueMu.Unlock()

		if err := l.Send(ctx, frame); err != nil {
			l.queueMu.Lock()
			l.queue = append([]Frame{frame}, l.queue...)
			remaining := len(l.queue)
			l.queueMu.Unlock()

			l.logWarn("flush stopped", "sent", sent, "remaining", remaining, "error", err)
			return sent, err
		}
		sent++
	}
}

// Pending returns a copy of the queued frames.
func (l *CommandLink) Pending() []Frame {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	out := make([]Frame, len(l.queue))
	copy(out, l.queue)
	return out
}

// IsConnected reports whether a socket currently exists.
func (l *CommandLink) IsConnected() bool {
	return l.State() == StateConnected
}

// State returns the current link state.
func (l *CommandLink) State() LinkState {
	return LinkState(l.state.Load())
}

// Stats returns current link statistics.
func (l *CommandLink) Stats() LinkStats {
	l.queueMu.Lock()
	pending := len(l.queue)
	l.queueMu.Unlock()

	var last time.Time
	if ts := l.lastActivity.Load(); ts > 0 {
		last = time.Unix(ts, 0)
	}

	return LinkStats{
		State:         l.State(),
		FramesSent:    l.framesSent.Load(),
		WriteErrors:   l.writeErrors.Load(),
		ConnectErrors: l.connectErrors.Load(),
		Connects:      l.connects.Load(),
		Pending:       pending,
		LastActivity:  last,
	}
}

// Close closes the socket. Further Send calls return ErrLinkClosed.
// Safe to call multiple times.
func (l *CommandLink) Close() error {
	l.closed.Store(true)

	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.conn != nil {
		err = l.conn.Close()
		l.conn = nil
	}
	l.setState(StateDisconnected)
	return err
}

func (l *CommandLink) setState(s LinkState) {
	prev := LinkState(l.state.Swap(int32(s)))
	if prev == s {
		return
	}
	switch {
	case s == StateConnected:
		l.m().LinkConnected(linkCommand, true)
	case prev == StateConnected:
		l.m().LinkConnected(linkCommand, false)
	}
}

func (l *CommandLink) touch() {
	l.lastActivity.Store(time.Now().Unix())
}
