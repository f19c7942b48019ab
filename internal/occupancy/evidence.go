package occupancy

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sixdouglas/suncalc"
	"gonum.org/v1/gonum/stat"
)

// Active state vocabulary per sensor type. A closed door is treated as
// presence evidence: people close doors behind themselves, and an open
// door more often means an empty, airing room.
var activeStates = map[SensorType]map[string]bool{
	SensorMotion:    {"on": true, "detected": true, "true": true},
	SensorMedia:     {"playing": true, "paused": true},
	SensorAppliance: {"on": true, "standby": true},
	SensorDoor:      {"off": true, "closed": true},
	SensorWindow:    {"on": true, "open": true},
	SensorLight:     {"on": true, "true": true},
}

var unavailableStates = map[string]bool{
	"unavailable": true,
	"unknown":     true,
	"":            true,
}

// Fraction of the rolling baseline an environmental value must deviate
// by before it counts as evidence.
const environmentalBaselinePercent = 0.05

// Samples retained per environmental sensor for the rolling baseline.
const environmentalWindowSize = 60

// Classifier resolves raw sensor payload values into boolean evidence
// states. Binary sensor types map through per-type state vocabularies;
// environmental sensors are compared against a rolling numeric baseline,
// with illuminance baselines widened while the sun is up so daylight is
// not mistaken for presence.
type Classifier struct {
	latitude  float64
	longitude float64

	mu      sync.Mutex
	samples map[string][]float64
}

// NewClassifier creates a classifier. Latitude and longitude feed the
// daylight model for illuminance baselines.
func NewClassifier(latitude, longitude float64) *Classifier {
	return &Classifier{
		latitude:  latitude,
		longitude: longitude,
		samples:   make(map[string][]float64),
	}
}

// ResolveState maps a binary sensor's reported state to evidence.
// The second return reports availability: unavailable readings must not
// contribute and must not clear a decay in progress.
func ResolveState(sensorType SensorType, state string) (active bool, available bool) {
	normalized := strings.ToLower(strings.TrimSpace(state))
	if unavailableStates[normalized] {
		return false, false
	}
	vocab, ok := activeStates[sensorType]
	if !ok {
		// Unknown type, fall back to generic on/off semantics
		return normalized == "on" || normalized == "true", true
	}
	return vocab[normalized], true
}

// ResolveNumeric classifies an environmental measurement against the
// sensor's rolling baseline. It returns active when the value deviates
// from the baseline by more than the baseline tolerance, and records
// the sample for future baselines.
func (c *Classifier) ResolveNumeric(sensorID string, value float64, at time.Time, illuminance bool) (active bool, available bool) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	window := c.samples[sensorID]

	// Need a few samples before deviations mean anything
	if len(window) >= 5 {
		mean, std := stat.MeanStdDev(window, nil)
		tolerance := math.Abs(mean) * environmentalBaselinePercent
		if illuminance {
			tolerance += c.daylightLux(at) * environmentalBaselinePercent
		}
		if std > tolerance {
			tolerance = std
		}
		active = math.Abs(value-mean) > tolerance
	}

	window = append(window, value)
	if len(window) > environmentalWindowSize {
		window = window[len(window)-environmentalWindowSize:]
	}
	c.samples[sensorID] = window

	return active, true
}

// daylightLux estimates the outdoor illuminance at the configured
// location. Sun altitude comes from the solar position; the clear-sky
// maximum of ~120k lux is scaled by sin(altitude).
func (c *Classifier) daylightLux(at time.Time) float64 {
	position := suncalc.GetPosition(at, c.latitude, c.longitude)
	if position.Altitude <= 0 {
		return 0
	}
	return 120000.0 * math.Sin(position.Altitude)
}
