package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the auth orchestrator.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	eventsPublished     *prometheus.CounterVec
	streamEventsDropped *prometheus.CounterVec
	engineCalls         *prometheus.CounterVec
	authErrors          *prometheus.CounterVec
	initiated           prometheus.Gauge
	authenticated       prometheus.Gauge
}

// New creates and registers Prometheus metrics for the orchestrator.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tve_http_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tve_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tve_events_published_total",
		Help: "Events published on the bus, by topic",
	}, []string{"topic"})
	streamEventsDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tve_stream_events_dropped_total",
		Help: "Events dropped because a stream subscriber buffer was full, by topic",
	}, []string{"topic"})
	engineCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tve_engine_calls_total",
		Help: "Calls issued to the entitlement engine, by method",
	}, []string{"method"})
	authErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tve_auth_errors_total",
		Help: "AUTH_ERROR events published, by kind",
	}, []string{"kind"})
	initiated := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tve_initiated",
		Help: "1 once the entitlement engine initialization sequence has completed",
	})
	authenticated := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tve_authenticated_sessions",
		Help: "Requestor sessions currently authenticated with a provider",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		eventsPublished,
		streamEventsDropped,
		engineCalls,
		authErrors,
		initiated,
		authenticated,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		errorsTotal:         errorsTotal,
		eventsPublished:     eventsPublished,
		streamEventsDropped: streamEventsDropped,
		engineCalls:         engineCalls,
		authErrors:          authErrors,
		initiated:           initiated,
		authenticated:       authenticated,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncEventsPublished counts one published event on topic.
func (m *Metrics) IncEventsPublished(topic string) {
	m.eventsPublished.WithLabelValues(topic).Inc()
}

// IncStreamDrops counts one event a stream subscriber could not accept.
func (m *Metrics) IncStreamDrops(topic string) {
	m.streamEventsDropped.WithLabelValues(topic).Inc()
}

// IncEngineCalls counts one call to the entitlement engine.
func (m *Metrics) IncEngineCalls(method string) {
	m.engineCalls.WithLabelValues(method).Inc()
}

// IncAuthErrors counts one AUTH_ERROR event of the given kind.
func (m *Metrics) IncAuthErrors(kind string) {
	m.authErrors.WithLabelValues(kind).Inc()
}

// SetInitiated records whether the init sequence has completed.
func (m *Metrics) SetInitiated(v bool) {
	if v {
		m.initiated.Set(1)
		return
	}
	m.initiated.Set(0)
}

// SetAuthenticatedSessions sets the authenticated sessions gauge.
func (m *Metrics) SetAuthenticatedSessions(n int) {
	m.authenticated.Set(float64(n))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
