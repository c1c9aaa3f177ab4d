package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/lightbridge/internal/bridges/lighting"
	"github.com/nerrad567/lightbridge/internal/infrastructure/config"
	"github.com/nerrad567/lightbridge/internal/infrastructure/logging"
	"github.com/nerrad567/lightbridge/internal/lightstate"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

const (
	// defaultWriteTimeout bounds a flush when no write timeout is set.
	defaultWriteTimeout = 30 * time.Second

	// flushMargin is left between the flush deadline and the write
	// deadline so the partial result still reaches the client.
	flushMargin = 2 * time.Second
)

// LightStates exposes the bridge's state cache. *lighting.Bridge implements it.
type LightStates interface {
	States() map[lighting.Device]lighting.Action
	BusConnected() bool
}

// CommandQueue is the command link's pending queue. *lighting.CommandLink
// implements it.
type CommandQueue interface {
	Enqueue(frame lighting.Frame)
	Flush(ctx context.Context) (int, error)
	Pending() []lighting.Frame
	Stats() lighting.LinkStats
}

// StatusLink reports the status listener's connection state.
type StatusLink interface {
	State() lighting.LinkState
}

// HistoryReader reads recorded state changes.
type HistoryReader interface {
	History(ctx context.Context, device lighting.Device, limit int) ([]lightstate.Entry, error)
}

// HealthChecker is implemented by the database and InfluxDB clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Lights  LightStates
	Queue   CommandQueue
	Version string

	// Optional.
	StatusLink StatusLink
	History    HistoryReader
	Checks     map[string]HealthChecker
	Metrics    http.Handler
}

// Server is the HTTP API server.
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	lights     LightStates
	queue      CommandQueue
	statusLink StatusLink
	history    HistoryReader
	checks     map[string]HealthChecker
	metrics    http.Handler
	version    string

	flushTimeout time.Duration

	server   *http.Server
	listener net.Listener
}

// New creates a new API server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Lights == nil {
		return nil, fmt.Errorf("light state source is required")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("command queue is required")
	}

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		lights:     deps.Lights,
		queue:      deps.Queue,
		statusLink: deps.StatusLink,
		history:    deps.History,
		checks:     deps.Checks,
		metrics:    deps.Metrics,
		version:    deps.Version,

		flushTimeout: flushTimeout(deps.Config.Timeouts.Write),
	}, nil
}

// flushTimeout returns how long a flush may run inside one request.
func flushTimeout(writeSecs int) time.Duration {
	write := time.Duration(writeSecs) * time.Second
	if write <= 0 {
		write = defaultWriteTimeout
	}
	if write <= 2*flushMargin {
		return write / 2
	}
	return write - flushMargin
}

// Handler returns the router. Tests drive it through httptest.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine. Binding
// errors such as a port in use are returned directly.
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	timeout := func(secs int) time.Duration { return time.Duration(secs) * time.Second }
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       timeout(s.cfg.Timeouts.Read),
		ReadHeaderTimeout: timeout(s.cfg.Timeouts.Read),
		WriteTimeout:      timeout(s.cfg.Timeouts.Write),
		IdleTimeout:       timeout(s.cfg.Timeouts.Idle),
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
