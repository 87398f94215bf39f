package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons recorded by Metrics.
const (
	dropMalformed    = "malformed"
	dropUnknownEvent = "unknown_event"
	dropInactive     = "inactive"
	dropUnhandled    = "unhandled"
	dropDuplicateID  = "duplicate_id"
	dropNotFound     = "not_found"
	dropViewport     = "viewport_local"
	dropPanic        = "panic"
)

// Metrics holds the relay's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	participants      *prometheus.GaugeVec
	objects           *prometheus.GaugeVec
	events            *prometheus.CounterVec
	dropped           *prometheus.CounterVec
	rejected          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	broadcastsSkipped prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		participants: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "canvas_participants",
			Help: "Connected participants per room",
		}, []string{"room"}),
		objects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "canvas_objects",
			Help: "Objects on the canvas per room",
		}, []string{"room"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canvas_events_total",
			Help: "Inbound events handled by the relay",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canvas_events_dropped_total",
			Help: "Inbound events dropped without touching state",
		}, []string{"reason"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canvas_handshakes_rejected_total",
			Help: "Websocket handshakes refused before upgrade",
		}, []string{"reason"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		broadcastsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canvas_messages_skipped_total",
			Help: "Outbound messages dropped because a client's queue was full",
		}),
	}
	reg.MustRegister(m.participants, m.objects, m.events, m.dropped, m.rejected, m.requestDuration, m.broadcastsSkipped)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) setRoom(room string, participants, objects int) {
	if m == nil {
		return
	}
	m.participants.WithLabelValues(room).Set(float64(participants))
	m.objects.WithLabelValues(room).Set(float64(objects))
}

func (m *Metrics) deleteRoom(room string) {
	if m == nil {
		return
	}
	m.participants.DeleteLabelValues(room)
	m.objects.DeleteLabelValues(room)
}

func (m *Metrics) eventHandled(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}

func (m *Metrics) eventDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) handshakeRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) messageSkipped() {
	if m == nil {
		return
	}
	m.broadcastsSkipped.Inc()
}

func (m *Metrics) observeRequest(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, method, status).Observe(seconds)
}
