package occupancy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the engine's Prometheus instrumentation on its own
// registry so the agent can serve it without the default collectors of
// other libraries leaking in.
type Metrics struct {
	registry *prometheus.Registry

	readingsProcessed *prometheus.CounterVec
	readingsDropped   prometheus.Counter
	evaluations       *prometheus.CounterVec
	probability       *prometheus.GaugeVec
	occupied          *prometheus.GaugeVec
	decayingSensors   *prometheus.GaugeVec
	learnRuns         *prometheus.CounterVec
	learnDuration     prometheus.Histogram
}

// NewMetrics creates the metric set on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		readingsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presence",
			Subsystem: "occupancy",
			Name:      "readings_processed_total",
			Help:      "Sensor readings processed, by sensor type",
		}, []string{"sensor_type"}),
		readingsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "presence",
			Subsystem: "occupancy",
			Name:      "readings_dropped_total",
			Help:      "Sensor readings dropped as unparseable or unconfigured",
		}),
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presence",
			Subsystem: "occupancy",
			Name:      "evaluations_total",
			Help:      "Evaluation cycles completed, by area",
		}, []string{"area"}),
		probability: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "presence",
			Subsystem: "occupancy",
			Name:      "probability",
			Help:      "Current occupancy probability, by area",
		}, []string{"area"}),
		occupied: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "presence",
			Subsystem: "occupancy",
			Name:      "occupied",
			Help:      "Current occupancy decision (1 occupied, 0 empty), by area",
		}, []string{"area"}),
		decayingSensors: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "presence",
			Subsystem: "occupancy",
			Name:      "decaying_sensors",
			Help:      "Sensors currently in their decay window, by area",
		}, []string{"area"}),
		learnRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presence",
			Subsystem: "occupancy",
			Name:      "learn_runs_total",
			Help:      "Prior learning runs, by area and result",
		}, []string{"area", "result"}),
		learnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "presence",
			Subsystem: "occupancy",
			Name:      "learn_duration_seconds",
			Help:      "Duration of prior learning runs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

// Registry returns the registry backing the metric set
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordReading counts one processed reading
func (m *Metrics) RecordReading(sensorType SensorType) {
	m.readingsProcessed.WithLabelValues(string(sensorType)).Inc()
}

// RecordDropped counts one dropped message
func (m *Metrics) RecordDropped() {
	m.readingsDropped.Inc()
}

// RecordSnapshot updates the per-area gauges from a fresh evaluation
func (m *Metrics) RecordSnapshot(s AreaSnapshot) {
	m.evaluations.WithLabelValues(s.AreaID).Inc()
	m.probability.WithLabelValues(s.AreaID).Set(s.Probability)
	if s.Occupied {
		m.occupied.WithLabelValues(s.AreaID).Set(1)
	} else {
		m.occupied.WithLabelValues(s.AreaID).Set(0)
	}
	m.decayingSensors.WithLabelValues(s.AreaID).Set(float64(s.Decaying))
}

// RecordLearnRun counts one learning run and its duration
func (m *Metrics) RecordLearnRun(areaID, result string, elapsed time.Duration) {
	m.learnRuns.WithLabelValues(areaID, result).Inc()
	m.learnDuration.Observe(elapsed.Seconds())
}
