// Package metrics exposes pipeline stage counters and latencies.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aisquery/internal/domain"
)

const namespace = "aisquery"

type Metrics struct {
	registry *prometheus.Registry
	stages   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	queries  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_total",
			Help:      "Pipeline stages finished, by stage and status.",
		}, []string{"stage", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency.",
			Buckets:   []float64{.001, .005, .025, .1, .25, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries answered, by transport and outcome.",
		}, []string{"transport", "outcome"}),
	}
	m.registry.MustRegister(
		m.stages,
		m.latency,
		m.queries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// OnStage records one finished stage.
func (m *Metrics) OnStage(_ context.Context, ev domain.StageEvent) {
	m.stages.WithLabelValues(string(ev.Stage), ev.Status).Inc()
	m.latency.WithLabelValues(string(ev.Stage)).Observe(ev.Duration.Seconds())
}

// ObserveQuery counts one answered query. Abandoned queries count as
// "abandoned".
func (m *Metrics) ObserveQuery(transport string, env domain.ResponseEnvelope, err error) {
	outcome := "success"
	switch {
	case err != nil:
		outcome = "abandoned"
	case !env.Success && env.Error != nil:
		outcome = string(env.Error.Kind)
	}
	m.queries.WithLabelValues(transport, outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
