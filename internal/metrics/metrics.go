// Package metrics records Prometheus counters for a pipeline run and pushes
// them to a Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder holds the collectors of a single run. A nil *Recorder discards everything.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	recordsExtracted *prometheus.CounterVec
	recordsUpserted  *prometheus.CounterVec
	authorlessWorks  prometheus.Counter
	stageFailures    *prometheus.CounterVec
	averageBooks     prometheus.Gauge
	runDuration      prometheus.Gauge
}

// New creates a Recorder backed by its own registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpipeline_runs_total",
				Help: "Total number of pipeline runs, labeled by result.",
			},
			[]string{"result"},
		),
		recordsExtracted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpipeline_records_extracted_total",
				Help: "Records extracted from the subject listing, labeled by kind.",
			},
			[]string{"kind"},
		),
		recordsUpserted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpipeline_records_upserted_total",
				Help: "Records written to the store, labeled by kind.",
			},
			[]string{"kind"},
		),
		authorlessWorks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bookpipeline_authorless_works_total",
				Help: "Works dropped during extraction because they list no authors.",
			},
		),
		stageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpipeline_stage_failures_total",
				Help: "Recovered stage failures, labeled by stage.",
			},
			[]string{"stage"},
		),
		averageBooks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookpipeline_average_books_per_author",
				Help: "Average number of books per author after the last run.",
			},
		),
		runDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookpipeline_run_duration_seconds",
				Help: "Wall-clock duration of the last run.",
			},
		),
	}
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveRun counts a finished run
func (r *Recorder) ObserveRun(result string, duration time.Duration) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(result).Inc()
	r.runDuration.Set(duration.Seconds())
}

// AddExtracted adds n extracted records of kind
func (r *Recorder) AddExtracted(kind string, n int) {
	if r == nil {
		return
	}
	r.recordsExtracted.WithLabelValues(kind).Add(float64(n))
}

// AddUpserted adds n upserted records of kind
func (r *Recorder) AddUpserted(kind string, n int) {
	if r == nil {
		return
	}
	r.recordsUpserted.WithLabelValues(kind).Add(float64(n))
}

// AddAuthorlessWorks adds n dropped works
func (r *Recorder) AddAuthorlessWorks(n int) {
	if r == nil {
		return
	}
	r.authorlessWorks.Add(float64(n))
}

// ObserveStageFailure counts a recovered failure of stage
func (r *Recorder) ObserveStageFailure(stage string) {
	if r == nil {
		return
	}
	r.stageFailures.WithLabelValues(stage).Inc()
}

// SetAverage records the computed average
func (r *Recorder) SetAverage(avg float64) {
	if r == nil {
		return
	}
	r.averageBooks.Set(avg)
}

// Push sends all collected metrics to the Pushgateway at url under job
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if r == nil || url == "" {
		return nil
	}
	if job == "" {
		job = "bookpipeline"
	}
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
