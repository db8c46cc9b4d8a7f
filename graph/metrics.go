package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects engine metrics, all namespaced "contentflow_".
//
// Metrics exposed:
//
//  1. stage_latency_ms (histogram): stage wall time in milliseconds.
//     Labels: stage, status (success/error/interrupted).
//  2. stage_errors_total (counter): stage failures. Labels: stage.
//  3. interrupts_total (counter): suspensions. Labels: stage.
//  4. resumes_total (counter): resumes. Labels: stage.
//  5. threads_inflight (gauge): Run/Resume calls currently executing.
//  6. collaborator_retries_total (counter): retried collaborator calls.
//     Labels: operation.
//
// Thread IDs are never used as labels.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine, _ := graph.New(reduce, st, graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	stageLatency    *prometheus.HistogramVec
	stageErrors     *prometheus.CounterVec
	interrupts      *prometheus.CounterVec
	resumes         *prometheus.CounterVec
	threadsInflight prometheus.Gauge
	retries         *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers the engine metrics on registry.
// A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		stageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "contentflow",
			Name:      "stage_latency_ms",
			Help:      "Stage execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		}, []string{"stage", "status"}),
		stageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentflow",
			Name:      "stage_errors_total",
			Help:      "Stage executions that returned an error",
		}, []string{"stage"}),
		interrupts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentflow",
			Name:      "interrupts_total",
			Help:      "Threads suspended awaiting an external decision",
		}, []string{"stage"}),
		resumes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentflow",
			Name:      "resumes_total",
			Help:      "Suspended threads resumed with a decision",
		}, []string{"stage"}),
		threadsInflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "contentflow",
			Name:      "threads_inflight",
			Help:      "Run and Resume calls currently executing",
		}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentflow",
			Name:      "collaborator_retries_total",
			Help:      "Retried calls to external collaborators",
		}, []string{"operation"}),
	}
}

func (pm *PrometheusMetrics) on() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordStage observes one stage invocation.
func (pm *PrometheusMetrics) RecordStage(stage, status string, latency time.Duration) {
	if !pm.on() {
		return
	}
	pm.stageLatency.WithLabelValues(stage, status).Observe(float64(latency.Milliseconds()))
	if status == "error" {
		pm.stageErrors.WithLabelValues(stage).Inc()
	}
}

// IncrementInterrupts counts a suspension of stage.
func (pm *PrometheusMetrics) IncrementInterrupts(stage string) {
	if !pm.on() {
		return
	}
	pm.interrupts.WithLabelValues(stage).Inc()
}

// IncrementResumes counts a resume into stage.
func (pm *PrometheusMetrics) IncrementResumes(stage string) {
	if !pm.on() {
		return
	}
	pm.resumes.WithLabelValues(stage).Inc()
}

// IncrementRetries counts a retried collaborator call.
func (pm *PrometheusMetrics) IncrementRetries(operation string) {
	if !pm.on() {
		return
	}
	pm.retries.WithLabelValues(operation).Inc()
}

// threadStarted counts a thread in flight and returns the matching
// decrement. A thread counted before Disable is still uncounted after it.
func (pm *PrometheusMetrics) threadStarted() func() {
	if !pm.on() {
		return func() {}
	}
	pm.threadsInflight.Inc()
	return pm.threadsInflight.Dec
}

// Disable temporarily disables metric recording.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
