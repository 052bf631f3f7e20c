// Package metrics exposes Prometheus metrics for the GRN intake service.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockpile/internal/domain/grn"
)

// Metrics holds the service collectors, registered on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	DraftsCreated   prometheus.Counter
	CartonsSealed   prometheus.Counter
	GRNsSubmitted   prometheus.Counter
	PairsReceived   prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

// New creates a new Metrics instance with registered metrics.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		DraftsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grn_drafts_created_total",
			Help:      "Total number of GRN drafts opened",
		}),
		CartonsSealed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grn_cartons_sealed_total",
			Help:      "Total number of cartons sealed",
		}),
		GRNsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grn_submitted_total",
			Help:      "Total number of GRNs submitted",
		}),
		PairsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grn_pairs_received_total",
			Help:      "Pairs held in submitted GRNs",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"method", "route", "status"}),
	}
}

// Register attaches counters to the draft lifecycle hooks.
func (m *Metrics) Register(hooks *grn.HookRegistry) {
	hooks.On(grn.AfterCreate, func(context.Context, *grn.Draft) error {
		m.DraftsCreated.Inc()
		return nil
	})
	hooks.On(grn.AfterSeal, func(context.Context, *grn.Draft) error {
		m.CartonsSealed.Inc()
		return nil
	})
	hooks.On(grn.AfterSubmit, func(_ context.Context, d *grn.Draft) error {
		m.GRNsSubmitted.Inc()
		m.PairsReceived.Add(float64(d.PairCount()))
		return nil
	})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
