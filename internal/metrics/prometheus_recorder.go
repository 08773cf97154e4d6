package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder backed by a prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	stepDuration   *prometheus.HistogramVec
	branchOutcomes *prometheus.CounterVec
	runDuration    prometheus.Histogram
	publishResults *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	artifactCount  prometheus.Gauge
}

// NewPrometheusRecorder creates a recorder with its own registry so tests
// can run several instances without duplicate registration panics.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	r := &PrometheusRecorder{
		registry: registry,
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relforge",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual branch steps.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"step"}),
		branchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relforge",
			Name:      "branch_outcomes_total",
			Help:      "Finished platform branches by result.",
		}, []string{"platform", "result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relforge",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of full release runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		publishResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relforge",
			Name:      "publish_total",
			Help:      "Release asset attach attempts by forge and result.",
		}, []string{"forge", "result"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relforge",
			Name:      "queue_depth",
			Help:      "Runs waiting per concurrency group.",
		}, []string{"group"}),
		artifactCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relforge",
			Name:      "artifacts_stored",
			Help:      "Artifacts currently held by the store.",
		}),
	}

	registry.MustRegister(
		r.stepDuration,
		r.branchOutcomes,
		r.runDuration,
		r.publishResults,
		r.queueDepth,
		r.artifactCount,
	)
	return r
}

// Registry exposes the backing registry for the HTTP handler.
func (r *PrometheusRecorder) Registry() *prometheus.Registry { return r.registry }

func (r *PrometheusRecorder) RecordStepDuration(step string, d time.Duration) {
	r.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (r *PrometheusRecorder) RecordBranchOutcome(platform, result string) {
	r.branchOutcomes.WithLabelValues(platform, result).Inc()
}

func (r *PrometheusRecorder) RecordRunDuration(d time.Duration) {
	r.runDuration.Observe(d.Seconds())
}

func (r *PrometheusRecorder) RecordPublish(forge, result string) {
	r.publishResults.WithLabelValues(forge, result).Inc()
}

func (r *PrometheusRecorder) SetQueueDepth(group string, depth int) {
	r.queueDepth.WithLabelValues(group).Set(float64(depth))
}

func (r *PrometheusRecorder) SetArtifactCount(count int) {
	r.artifactCount.Set(float64(count))
}
