// Package metrics exposes orchestration counters for the Prometheus textfile
// collector. Collectors live on a private registry so tests and repeated
// controller instances never collide with the global default registry.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "oea"

// Metrics holds the orchestrator's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	batchesDispatched *prometheus.CounterVec
	batchFailures     *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	mergedBytes       *prometheus.CounterVec
	partitionBatches  *prometheus.GaugeVec
	partitionMemory   *prometheus.GaugeVec
	attempt           prometheus.Gauge
	phaseDuration     *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		batchesDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_dispatched_total",
			Help:      "Batch worker invocations submitted, including retries",
		}, []string{"stage"}),
		batchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_failures_total",
			Help:      "Batches found without output after their workers finished",
		}, []string{"stage"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Stage state transitions by resulting state",
		}, []string{"stage", "state"}),
		mergedBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merged_bytes_total",
			Help:      "Bytes written into aggregated stage artifacts",
		}, []string{"stage"}),
		partitionBatches: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partition_batches",
			Help:      "Number of batches in the latest partition",
		}, []string{"stage"}),
		partitionMemory: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partition_peak_memory_bytes",
			Help:      "Largest estimated batch memory in the latest partition",
		}, []string{"stage"}),
		attempt: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attempt",
			Help:      "Current value of the shared attempt counter",
		}),
		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time of each phase invocation",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"phase"}),
	}
}

// Registry returns the private registry for exporters and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) BatchesDispatched(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.batchesDispatched.WithLabelValues(stage).Add(float64(n))
}

func (m *Metrics) BatchFailures(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.batchFailures.WithLabelValues(stage).Add(float64(n))
}

func (m *Metrics) Transition(stage, state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(stage, state).Inc()
}

func (m *Metrics) Merged(stage string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.mergedBytes.WithLabelValues(stage).Add(float64(bytes))
}

func (m *Metrics) Partition(stage string, batches int, peakMemory int64) {
	if m == nil {
		return
	}
	m.partitionBatches.WithLabelValues(stage).Set(float64(batches))
	m.partitionMemory.WithLabelValues(stage).Set(float64(peakMemory))
}

func (m *Metrics) Attempt(value int) {
	if m == nil {
		return
	}
	m.attempt.Set(float64(value))
}

func (m *Metrics) ObservePhase(phase string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// WriteTextfile atomically writes every collector to path in the text
// exposition format. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
