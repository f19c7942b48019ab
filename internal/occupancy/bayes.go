package occupancy

import (
	"math"
	"sort"
	"time"
)

// ModelProvider resolves the Bayesian parameters for a sensor type in
// an area. The prior store implements this; tests can plug in fixed
// models.
type ModelProvider interface {
	Model(areaID string, sensorType SensorType) PriorModel
}

// Contribution is one sensor's term in the log-odds fold.
type Contribution struct {
	SensorID string
	Weight   float64
	Ratio    float64
}

// Evaluation is the outcome of folding an area's current evidence.
type Evaluation struct {
	Probability float64
	Occupied    bool
	Active      int
	Decaying    int

	// Sensors whose decayed weight still exceeds the contribution
	// floor, sorted for stable output.
	ActiveTriggers []string

	// Marginal posterior per contributing sensor: the probability the
	// area prior alone would reach with only that sensor's evidence.
	PerSensor map[string]float64
}

// Contributions below this weight are treated as fully decayed.
const contributionFloor = 1e-6

func logOdds(p float64) float64 {
	return math.Log(p / (1 - p))
}

func sigmoid(l float64) float64 {
	return 1 / (1 + math.Exp(-l))
}

func clampLogOdds(l float64) float64 {
	if l > MaxLogOdds {
		return MaxLogOdds
	}
	if l < -MaxLogOdds {
		return -MaxLogOdds
	}
	return l
}

// Aggregate folds weighted likelihood ratios around a prior in
// log-odds space. Addition commutes, so the result is independent of
// contribution order.
func Aggregate(prior float64, contributions []Contribution) float64 {
	l := logOdds(clampProbability(prior))
	for _, c := range contributions {
		if c.Weight <= 0 || c.Ratio <= 0 {
			continue
		}
		l += c.Weight * math.Log(c.Ratio)
	}
	return sigmoid(clampLogOdds(l))
}

// AreaPrior derives the standalone prior for an area as the mean of the
// per-type priors across the distinct sensor types present.
func AreaPrior(types []SensorType, models ModelProvider, areaID string) float64 {
	if len(types) == 0 {
		return FallbackPriorModel.Prior
	}
	sum := 0.0
	for _, t := range types {
		sum += clampProbability(models.Model(areaID, t).Prior)
	}
	return sum / float64(len(types))
}

// Evaluate computes the occupancy probability and decision for an area
// from its current sensor states.
//
// Active sensors contribute their full weight with the active-branch
// likelihood ratio. Recently inactive sensors keep contributing the
// active-branch ratio at a decayed weight, carrying the memory of their
// activation through the decay window. Fully decayed and unavailable
// sensors contribute nothing.
func Evaluate(area *AreaConfig, states []*SensorState, models ModelProvider, now time.Time) Evaluation {
	contributions := make([]Contribution, 0, len(states))
	typeSet := make(map[SensorType]bool)
	active := 0
	decaying := 0

	for _, s := range states {
		if s == nil || !s.Available {
			continue
		}

		// Stray readings routed here with a payload area id must not
		// skew the area prior's type set.
		_, sensor, ok := findSensor(area, s.SensorID)
		if !ok {
			continue
		}
		typeSet[s.SensorType] = true
		model := models.Model(area.ID, s.SensorType)

		if s.Active {
			active++
			contributions = append(contributions, Contribution{
				SensorID: s.SensorID,
				Weight:   sensor.EffectiveWeight(),
				Ratio:    model.LikelihoodRatio(true),
			})
			continue
		}

		factor := DecayFactor(area.Decay, s.InactiveSince, now)
		if factor <= 0 {
			continue
		}
		decaying++
		contributions = append(contributions, Contribution{
			SensorID: s.SensorID,
			Weight:   sensor.EffectiveWeight() * factor,
			Ratio:    model.LikelihoodRatio(true),
		})
	}

	types := make([]SensorType, 0, len(typeSet))
	for t := range typeSet {
		types = append(types, t)
	}

	prior := AreaPrior(types, models, area.ID)
	probability := Aggregate(prior, contributions)

	triggers := make([]string, 0, len(contributions))
	perSensor := make(map[string]float64, len(contributions))
	for _, c := range contributions {
		if c.Weight <= contributionFloor {
			continue
		}
		triggers = append(triggers, c.SensorID)
		perSensor[c.SensorID] = Aggregate(prior, []Contribution{c})
	}
	sort.Strings(triggers)

	return Evaluation{
		Probability:    probability,
		Occupied:       probability >= float64(area.Threshold)/100.0,
		Active:         active,
		Decaying:       decaying,
		ActiveTriggers: triggers,
		PerSensor:      perSensor,
	}
}

func findSensor(area *AreaConfig, sensorID string) (*AreaConfig, *SensorConfig, bool) {
	for j := range area.Sensors {
		if area.Sensors[j].ID == sensorID {
			return area, &area.Sensors[j], true
		}
	}
	return nil, nil, false
}
