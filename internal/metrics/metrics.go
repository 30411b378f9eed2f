// Package metrics exposes Prometheus counters and gauges for the
// orchestrator over HTTP, adapted from a Prometheus-backed filesystem
// aggregator in the pack that registers its own collectors against a
// custom registry rather than the global one.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors holds every metric the orchestrator updates during a run.
type Collectors struct {
	registry *prometheus.Registry

	RunsTotal       prometheus.Counter
	RunErrorsTotal  prometheus.Counter
	SealedTotal     prometheus.Counter
	OpenTailSize    prometheus.Gauge
	GraphsProcessed prometheus.Gauge
	LastRunDuration prometheus.Histogram
}

// New builds a fresh set of collectors registered against their own
// registry, so multiple orchestrator instances in one process (tests, for
// instance) never collide on the global default registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()

	c := &Collectors{
		registry: reg,
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quadsync_runs_total",
			Help: "Total number of orchestrator runs completed.",
		}),
		RunErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quadsync_run_errors_total",
			Help: "Total number of orchestrator runs that returned an error.",
		}),
		SealedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quadsync_sealed_files_total",
			Help: "Total number of input files sealed into immutable archives.",
		}),
		OpenTailSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quadsync_open_tail_size",
			Help: "Number of files in the open-tail archive as of the last run, summed across graphs.",
		}),
		GraphsProcessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quadsync_graphs_processed",
			Help: "Number of graphs processed during the last run.",
		}),
		LastRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quadsync_run_duration_seconds",
			Help:    "Wall-clock duration of each orchestrator run.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(c.RunsTotal, c.RunErrorsTotal, c.SealedTotal, c.OpenTailSize, c.GraphsProcessed, c.LastRunDuration)
	return c
}

// Serve starts an HTTP server exposing /metrics on addr until ctx is done.
func (c *Collectors) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
