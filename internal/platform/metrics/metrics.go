package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stock"

// Metrics holds the collectors of one service on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ReservationsTotal    *prometheus.CounterVec
	ReservationConflicts prometheus.Counter
	ReleasesTotal        *prometheus.CounterVec

	OrderPlacementsTotal *prometheus.CounterVec
	CompensationsTotal   *prometheus.CounterVec

	EventsPublished *prometheus.CounterVec
}

func New(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: labels,
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: labels,
			Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "path"}),
		ReservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "reservations_total",
			Help:        "Reservation attempts by result",
			ConstLabels: labels,
		}, []string{"result"}),
		ReservationConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "reservation_conflicts_total",
			Help:        "Batch version conflicts seen while reserving",
			ConstLabels: labels,
		}),
		ReleasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "releases_total",
			Help:        "Reservation releases by result",
			ConstLabels: labels,
		}, []string{"result"}),
		OrderPlacementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "order_placements_total",
			Help:        "Order placements by result",
			ConstLabels: labels,
		}, []string{"result"}),
		CompensationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "compensations_total",
			Help:        "Reservation compensations by result",
			ConstLabels: labels,
		}, []string{"result"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "events_published_total",
			Help:        "Domain events published by type and status",
			ConstLabels: labels,
		}, []string{"event_type", "status"}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationsTotal,
		m.ReservationConflicts,
		m.ReleasesTotal,
		m.OrderPlacementsTotal,
		m.CompensationsTotal,
		m.EventsPublished,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordReservation(result string) {
	m.ReservationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordReservationConflict() {
	m.ReservationConflicts.Inc()
}

func (m *Metrics) RecordRelease(result string) {
	m.ReleasesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordPlacement(result string) {
	m.OrderPlacementsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCompensation(result string) {
	m.CompensationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordEvent(eventType string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.EventsPublished.WithLabelValues(eventType, status).Inc()
}
