// Package metrics exports import run accounting as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/labimport/internal/core"
)

const namespace = "labimport"

// Label values for files that never reached an outcome.
const (
	outcomeParseFailed = "parse_failed"
	outcomeStoreFailed = "store_failed"
)

var _ core.RunObserver = (*Collector)(nil)

// Collector implements core.RunObserver on its own registry.
type Collector struct {
	registry      *prometheus.Registry
	runs          *prometheus.CounterVec
	files         *prometheus.CounterVec
	remoteDeletes *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them together with the Go runtime
// and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Import runs by source and result.",
		}, []string{"source", "result"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files retired by the pipeline by source and outcome.",
		}, []string{"source", "outcome"}),
		remoteDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_deletes_total",
			Help:      "Remote file deletions by source and result.",
		}, []string{"source", "result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of import runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800, 3600},
		}, []string{"source"}),
	}
	c.registry.MustRegister(
		c.runs, c.files, c.remoteDeletes, c.runDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// FileProcessed counts one retired file.
func (c *Collector) FileProcessed(source string, item *core.ImportItem) {
	outcome := item.Outcome.String()
	switch {
	case item.ParseErr != nil:
		outcome = outcomeParseFailed
	case item.StoreErr != nil:
		outcome = outcomeStoreFailed
	}
	c.files.WithLabelValues(source, outcome).Inc()

	switch {
	case item.Deleted:
		c.remoteDeletes.WithLabelValues(source, "deleted").Inc()
	case item.DeleteErr != nil:
		c.remoteDeletes.WithLabelValues(source, "failed").Inc()
	}
}

// RunFinished counts one run and records its duration. Runs that never
// started, e.g. because another run held the source, have no duration.
func (c *Collector) RunFinished(source string, report core.RunReport) {
	c.runs.WithLabelValues(source, string(report.Result())).Inc()
	if report.Duration > 0 {
		c.runDuration.WithLabelValues(source).Observe(report.Duration.Seconds())
	}
}

// Registry exposes the registry, e.g. for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
