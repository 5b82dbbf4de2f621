// Package metrics holds the game service's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SessionsCreated  *prometheus.CounterVec
	SessionsFinished *prometheus.CounterVec
	Moves            *prometheus.CounterVec
	OpenSessions     prometheus.Gauge
	Connections      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duel",
			Name:      "sessions_created_total",
			Help:      "Sessions created, by game kind.",
		}, []string{"kind"}),
		SessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duel",
			Name:      "sessions_finished_total",
			Help:      "Sessions that reached a terminal status.",
		}, []string{"kind", "status"}),
		Moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duel",
			Name:      "moves_total",
			Help:      "Move intents by outcome.",
		}, []string{"kind", "result"}),
		OpenSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duel",
			Name:      "open_sessions",
			Help:      "Sessions held in memory.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duel",
			Name:      "websocket_connections",
			Help:      "Open websocket connections.",
		}),
	}
	m.registry.MustRegister(
		m.SessionsCreated, m.SessionsFinished, m.Moves, m.OpenSessions, m.Connections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SessionCreated(kind string) {
	if m == nil {
		return
	}
	m.SessionsCreated.WithLabelValues(kind).Inc()
	m.OpenSessions.Inc()
}

func (m *Metrics) SessionFinished(kind, status string) {
	if m == nil {
		return
	}
	m.SessionsFinished.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) SessionEvicted() {
	if m == nil {
		return
	}
	m.OpenSessions.Dec()
}

func (m *Metrics) Move(kind string, accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	m.Moves.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}
