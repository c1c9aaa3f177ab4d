package lighting

import (
	"context"
	"sync"
	"time"
)

// Logger interface for optional logging.
// Satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Metrics receives operational counters from the bridge components.
// It is optional; a nil Metrics is replaced with a no-op implementation.
type Metrics interface {
	// ConnectAttempt records one dial attempt on a link ("command" or "status").
	ConnectAttempt(link string, ok bool)

	// LinkConnected reports the current connection state of a link.
	LinkConnected(link string, connected bool)

	// FrameSent records the outcome of a Send call ("ok" or "failed").
	FrameSent(result string)

	// StatusFrame records a read from the status link.
	StatusFrame(recognised bool)

	// CommandHandled records the outcome of an inbound bus command.
	CommandHandled(result string)

	// BusReconnect records one manual bus reconnection attempt.
	BusReconnect(ok bool)
}

// Link names used in logs and metrics.
const (
	linkCommand = "command"
	linkStatus  = "status"
)

// Command outcomes reported through Metrics.CommandHandled.
const (
	resultOK            = "ok"
	resultFailed        = "failed"
	resultUnknownDevice = "unknown_device"
	resultUnknownAction = "unknown_action"
)

type nopMetrics struct{}

func (nopMetrics) ConnectAttempt(string, bool) {}
func (nopMetrics) LinkConnected(string, bool)  {}
func (nopMetrics) FrameSent(string)            {}
func (nopMetrics) StatusFrame(bool)            {}
func (nopMetrics) CommandHandled(string)       {}
func (nopMetrics) BusReconnect(bool)           {}

// observer bundles the optional logger and metrics sink shared by every
// component in this package.
type observer struct {
	mu      sync.RWMutex
	logger  Logger
	metrics Metrics
}

// SetLogger sets the logger.
func (o *observer) SetLogger(logger Logger) {
	o.mu.Lock()
	o.logger = logger
	o.mu.Unlock()
}

// SetMetrics sets the metrics sink.
func (o *observer) SetMetrics(m Metrics) {
	o.mu.Lock()
	o.metrics = m
	o.mu.Unlock()
}

func (o *observer) getLogger() Logger {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.logger
}

func (o *observer) m() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.metrics == nil {
		return nopMetrics{}
	}
	return o.metrics
}

func (o *observer) logDebug(msg string, keysAndValues ...any) {
	if l := o.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (o *observer) logInfo(msg string, keysAndValues ...any) {
	if l := o.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (o *observer) logWarn(msg string, keysAndValues ...any) {
	if l := o.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (o *observer) logError(msg string, keysAndValues ...any) {
	if l := o.getLogger(); l != nil {
		l.Error(msg, keysAndValues...)
	}
}

// sleepFunc blocks for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext is the production sleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
