package occupancy

import (
	"time"
)

// SensorType classifies a sensor by the kind of evidence it provides.
type SensorType string

const (
	SensorMotion        SensorType = "motion"
	SensorMedia         SensorType = "media"
	SensorAppliance     SensorType = "appliance"
	SensorDoor          SensorType = "door"
	SensorWindow        SensorType = "window"
	SensorLight         SensorType = "light"
	SensorEnvironmental SensorType = "environmental"
)

// KnownSensorTypes lists every sensor type the engine understands.
var KnownSensorTypes = []SensorType{
	SensorMotion,
	SensorMedia,
	SensorAppliance,
	SensorDoor,
	SensorWindow,
	SensorLight,
	SensorEnvironmental,
}

// Probability bounds applied to every learned or configured model value.
// Keeping likelihoods strictly inside (0,1) guarantees finite likelihood
// ratios in both branches.
const (
	MinProbability = 0.05
	MaxProbability = 0.95
)

// MaxLogOdds bounds the accumulated log-odds before conversion back to a
// probability, so a run of strong evidence cannot push the sigmoid into
// a region where float64 rounds it to exactly 0 or 1.
const MaxLogOdds = 35.0

// Reading is a single observation from one sensor, already resolved to a
// boolean evidence state by the evidence layer.
type Reading struct {
	SensorID   string     `json:"sensor_id"`
	SensorType SensorType `json:"sensor_type"`
	AreaID     string     `json:"area_id"`
	Active     bool       `json:"active"`
	Available  bool       `json:"available"`
	Timestamp  time.Time  `json:"timestamp"`
}

// SensorState is the engine's view of one sensor between readings. The
// decay fields track the most recent active-to-inactive transition so the
// aggregator can keep crediting recently active sensors.
type SensorState struct {
	SensorID      string
	SensorType    SensorType
	Active        bool
	Available     bool
	LastChanged   time.Time
	LastUpdated   time.Time
	InactiveSince time.Time // zero when active or never activated
}

// PriorModel holds the per-sensor-type Bayesian parameters: the
// probability of the sensor being active given the area is occupied
// (PTrue), given it is not (PFalse), and the standalone prior for the
// type.
type PriorModel struct {
	PTrue  float64 `json:"prob_given_true"`
	PFalse float64 `json:"prob_given_false"`
	Prior  float64 `json:"prior"`
}

// LikelihoodRatio returns P(evidence|occupied) / P(evidence|unoccupied)
// for the observed evidence state.
func (m PriorModel) LikelihoodRatio(active bool) float64 {
	pT := clampProbability(m.PTrue)
	pF := clampProbability(m.PFalse)
	if active {
		return pT / pF
	}
	return (1 - pT) / (1 - pF)
}

// Clamped returns a copy with all three parameters forced into the
// supported probability range.
func (m PriorModel) Clamped() PriorModel {
	return PriorModel{
		PTrue:  clampProbability(m.PTrue),
		PFalse: clampProbability(m.PFalse),
		Prior:  clampProbability(m.Prior),
	}
}

func clampProbability(p float64) float64 {
	if p < MinProbability {
		return MinProbability
	}
	if p > MaxProbability {
		return MaxProbability
	}
	return p
}

// DefaultPriorModels are the starting parameters per sensor type, used
// until the learner has enough history to replace them.
var DefaultPriorModels = map[SensorType]PriorModel{
	SensorMotion:        {PTrue: 0.25, PFalse: 0.05, Prior: 0.35},
	SensorMedia:         {PTrue: 0.25, PFalse: 0.02, Prior: 0.30},
	SensorAppliance:     {PTrue: 0.20, PFalse: 0.02, Prior: 0.2356},
	SensorDoor:          {PTrue: 0.20, PFalse: 0.02, Prior: 0.1356},
	SensorWindow:        {PTrue: 0.20, PFalse: 0.02, Prior: 0.1569},
	SensorLight:         {PTrue: 0.20, PFalse: 0.02, Prior: 0.3846},
	SensorEnvironmental: {PTrue: 0.09, PFalse: 0.01, Prior: 0.0769},
}

// FallbackPriorModel is used for sensor types with no default and no
// learned parameters.
var FallbackPriorModel = PriorModel{PTrue: 0.30, PFalse: 0.02, Prior: 0.30}

// DefaultPriorModel returns the default parameters for a sensor type,
// falling back to the generic model for unknown types.
func DefaultPriorModel(t SensorType) PriorModel {
	if m, ok := DefaultPriorModels[t]; ok {
		return m
	}
	return FallbackPriorModel
}

// AreaSnapshot is the published result of one evaluation cycle for an
// area.
type AreaSnapshot struct {
	AreaID         string             `json:"area_id"`
	Probability    float64            `json:"probability"`
	Occupied       bool               `json:"occupied"`
	Threshold      int                `json:"threshold"`
	EvaluatedAt    time.Time          `json:"evaluated_at"`
	Sensors        int                `json:"sensors"`
	Decaying       int                `json:"decaying"`
	ActiveTriggers []string           `json:"active_triggers,omitempty"`
	PerSensor      map[string]float64 `json:"per_sensor_probabilities,omitempty"`
}
