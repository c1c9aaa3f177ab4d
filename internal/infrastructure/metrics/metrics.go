// Package metrics exposes the bridge's Prometheus metrics.
//
// Metrics implements the lighting package's Metrics interface, so the
// command link, status listener and bridge report into it directly.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lightbridge"

// Metrics bundles the bridge collectors.
type Metrics struct {
	ConnectAttempts *prometheus.CounterVec
	LinkUp          *prometheus.GaugeVec
	FramesSent      *prometheus.CounterVec
	StatusFrames    *prometheus.CounterVec
	Commands        *prometheus.CounterVec
	BusReconnects   *prometheus.CounterVec

	reg prometheus.Registerer
}

// New constructs the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to keep them isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "link_connect_attempts_total",
				Help:      "Controller dial attempts by link and result",
			},
			[]string{"link", "result"},
		),
		LinkUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "link_up",
				Help:      "1 when the controller link is connected",
			},
			[]string{"link"},
		),
		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_sent_total",
				Help:      "Frames written to the command link by result",
			},
			[]string{"result"},
		),
		StatusFrames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_frames_total",
				Help:      "Reads from the status link by whether they decoded to a known command",
			},
			[]string{"recognised"},
		),
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Inbound MQTT commands by result",
			},
			[]string{"result"},
		),
		BusReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_reconnect_attempts_total",
				Help:      "Manual MQTT reconnect attempts by result",
			},
			[]string{"result"},
		),
		reg: reg,
	}

	reg.MustRegister(
		m.ConnectAttempts,
		m.LinkUp,
		m.FramesSent,
		m.StatusFrames,
		m.Commands,
		m.BusReconnects,
	)
	return m
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// WatchPending exposes the command link's pending queue depth.
func (m *Metrics) WatchPending(depth func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_frames",
			Help:      "Frames waiting in the command link's pending queue",
		},
		func() float64 { return float64(depth()) },
	))
}

// ConnectAttempt implements lighting.Metrics.
func (m *Metrics) ConnectAttempt(link string, ok bool) {
	m.ConnectAttempts.WithLabelValues(link, result(ok)).Inc()
}

// LinkConnected implements lighting.Metrics.
func (m *Metrics) LinkConnected(link string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	m.LinkUp.WithLabelValues(link).Set(v)
}

// FrameSent implements lighting.Metrics.
func (m *Metrics) FrameSent(res string) {
	m.FramesSent.WithLabelValues(res).Inc()
}

// StatusFrame implements lighting.Metrics.
func (m *Metrics) StatusFrame(recognised bool) {
	label := "false"
	if recognised {
		label = "true"
	}
	m.StatusFrames.WithLabelValues(label).Inc()
}

// CommandHandled implements lighting.Metrics.
func (m *Metrics) CommandHandled(res string) {
	m.Commands.WithLabelValues(res).Inc()
}

// BusReconnect implements lighting.Metrics.
func (m *Metrics) BusReconnect(ok bool) {
	m.BusReconnects.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
