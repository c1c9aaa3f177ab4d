package lighting

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Default status listener settings.
const (
	defaultReadTimeout  = 5 * time.Second
	defaultRetryBackoff = 10 * time.Second
	defaultBufferSize   = 1024

	// defaultLogEvery throttles connect-failure logging to the 1st, 4th,
	// 7th... consecutive failure.
	defaultLogEvery = 3
)

// ListenerConfig holds status listener settings.
type ListenerConfig struct {
	// Address is the controller "host:port".
	Address string

	// ConnectTimeout bounds each dial. Default: 5s.
	ConnectTimeout time.Duration

	// ReadTimeout is the read deadline per Read call. Default: 5s.
	ReadTimeout time.Duration

	// RetryBackoff is the wait after a failed dial. Default: 10s.
	RetryBackoff time.Duration

	// BufferSize is the maximum bytes per read. Default: 1024.
	BufferSize int

	// LogEvery logs a failed dial at error level once per this many
	// consecutive failures. Default: 3.
	LogEvery int

	// Dialer overrides the network dialer (tests). Default: net.Dialer.
	Dialer Dialer
}

func (c *ListenerConfig) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.LogEvery <= 0 {
		c.LogEvery = defaultLogEvery
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
}

// StatusListener reads status frames from a dedicated controller socket
// and reports the ones it recognises.
//
// The socket is read-only and independent of CommandLink.
type StatusListener struct {
	observer

	cfg   ListenerConfig
	sleep sleepFunc

	onStatus   func(Command)
	onStatusMu sync.RWMutex

	state    atomic.Int32
	failures int
}

// NewStatusListener creates a listener. Call Run to start it.
func NewStatusListener(cfg ListenerConfig) *StatusListener {
	cfg.applyDefaults()
	return &StatusListener{
		cfg:   cfg,
		sleep: sleepContext,
	}
}

// SetOnStatus sets the callback for recognised status frames.
// The callback runs on the listener goroutine.
func (s *StatusListener) SetOnStatus(fn func(Command)) {
	s.onStatusMu.Lock()
	s.onStatus = fn
	s.onStatusMu.Unlock()
}

// State returns the current status link state.
func (s *StatusListener) State() LinkState {
	return LinkState(s.state.Load())
}

// Run connects and reads until ctx is cancelled. Dial failures and read
// errors lead back to a new dial; nothing else stops the loop.
func (s *StatusListener) Run(ctx context.Context) {
	for ctx.Err() == nil {
		s.setState(StateConnecting)
		conn, err := s.dial(ctx)
		if err != nil {
			s.setState(StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			s.failures++
			s.m().ConnectAttempt(linkStatus, false)
			if s.failures%s.cfg.LogEvery == 1 || s.cfg.LogEvery == 1 {
				s.logError("status link connection failed",
					"address", s.cfg.Address,
					"consecutive_failures", s.failures,
					"error", err)
			} else {
				s.logDebug("status link connection failed",
					"consecutive_failures", s.failures,
					"error", err)
			}
			if s.sleep(ctx, s.cfg.RetryBackoff) != nil {
				return
			}
			continue
		}

		s.failures = 0
		s.m().ConnectAttempt(linkStatus, true)
		s.setState(StateConnected)
		s.logInfo("status link connected", "address", s.cfg.Address)

		s.readLoop(ctx, conn)
		conn.Close()
		s.setState(StateDisconnected)
	}
}

func (s *StatusListener) dial(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	return s.cfg.Dialer.DialContext(dialCtx, "tcp", s.cfg.Address)
}

// readLoop returns when the connection must be re-established or ctx ends.
func (s *StatusListener) readLoop(ctx context.Context, conn net.Conn) {
	// Unblock a pending Read on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, s.cfg.BufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			s.logError("status link read failed", "error", err)
			return
		}

		n, err := conn.Read(buf)
		if n > 0 {
			s.handleData(buf[:n])
		}

		switch {
		case err == nil && n > 0:
			continue
		case err == nil, errors.Is(err, io.EOF):
			s.logWarn("status link closed by peer", "address", s.cfg.Address)
			return
		case isTimeout(err):
			continue
		default:
			if ctx.Err() == nil {
				s.logError("status link read failed", "error", err)
			}
			return
		}
	}
}

func (s *StatusListener) handleData(data []byte) {
	cmd, ok := DecodeBytes(data)
	s.m().StatusFrame(ok)
	if !ok {
		return
	}

	s.logInfo("status received", "device", cmd.Device, "action", cmd.Action)

	s.onStatusMu.RLock()
	fn := s.onStatus
	s.onStatusMu.RUnlock()
	if fn != nil {
		fn(cmd)
	}
}

func (s *StatusListener) setState(st LinkState) {
	prev := LinkState(s.state.Swap(int32(st)))
	if prev == st {
		return
	}
	switch {
	case st == StateConnected:
		s.m().LinkConnected(linkStatus, true)
	case prev == StateConnected:
		s.m().LinkConnected(linkStatus, false)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
