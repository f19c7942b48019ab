package occupancy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default per-type evidence weights, applied when a sensor entry does
// not set one explicitly.
var DefaultTypeWeights = map[SensorType]float64{
	SensorMotion:        0.85,
	SensorMedia:         0.70,
	SensorAppliance:     0.30,
	SensorDoor:          0.30,
	SensorWindow:        0.20,
	SensorLight:         0.20,
	SensorEnvironmental: 0.10,
}

const (
	DefaultThreshold      = 50
	DefaultDecayMinDelay  = 10.0  // seconds
	DefaultDecayWindow    = 600.0 // seconds
	DefaultHistoryPeriod  = 7 * 24 * time.Hour
	DefaultWeightFallback = 0.30
)

// ConfigurationError reports an invalid area configuration entry.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Reason)
}

// DecayConfig controls how an inactive sensor's contribution fades.
// MinDelay and Window are expressed in seconds. Decay defaults to on;
// the flag is inverted so the YAML zero value keeps the default.
type DecayConfig struct {
	Disabled bool    `yaml:"disabled"`
	MinDelay float64 `yaml:"min_delay"`
	Window   float64 `yaml:"window"`
}

// Enabled reports whether decay applies in this area.
func (d DecayConfig) Enabled() bool {
	return !d.Disabled
}

// SensorConfig binds one sensor to an area. Above and Below form an
// optional activation predicate for numeric sensors; when neither is
// set, numeric sensors fall back to the rolling baseline. Weight is a
// pointer so an explicit 0 stays distinguishable from unset.
type SensorConfig struct {
	ID     string     `yaml:"id"`
	Type   SensorType `yaml:"type"`
	Weight *float64   `yaml:"weight,omitempty"`
	Above  *float64   `yaml:"above,omitempty"`
	Below  *float64   `yaml:"below,omitempty"`
}

// EffectiveWeight resolves the sensor's evidence weight, falling back
// to the per-type default when none is configured.
func (s *SensorConfig) EffectiveWeight() float64 {
	if s.Weight != nil {
		return *s.Weight
	}
	return TypeWeight(s.Type)
}

// Predicate evaluates the configured numeric activation rule. The
// second return is false when no rule is configured.
func (s *SensorConfig) Predicate(value float64) (active bool, ok bool) {
	if s.Above == nil && s.Below == nil {
		return false, false
	}
	active = true
	if s.Above != nil && value <= *s.Above {
		active = false
	}
	if s.Below != nil && value >= *s.Below {
		active = false
	}
	return active, true
}

// HistoricalAnalysisConfig controls the prior learner for an area.
// Like decay, the flag is inverted so the YAML zero value keeps the
// learner on.
type HistoricalAnalysisConfig struct {
	Disabled bool `yaml:"disabled"`
}

// Enabled reports whether the learner runs for this area.
func (h HistoricalAnalysisConfig) Enabled() bool {
	return !h.Disabled
}

// AreaConfig describes one monitored area.
type AreaConfig struct {
	ID                 string                   `yaml:"id"`
	Threshold          int                      `yaml:"threshold"`
	Decay              DecayConfig              `yaml:"decay"`
	HistoricalAnalysis HistoricalAnalysisConfig `yaml:"historical_analysis"`
	ProxySensorTypes   []SensorType             `yaml:"proxy_sensor_types"`
	Sensors            []SensorConfig           `yaml:"sensors"`
}

// AreasConfig is the top-level area configuration document.
type AreasConfig struct {
	Areas []AreaConfig `yaml:"areas"`
}

// LoadAreasConfig reads and validates the area configuration file.
func LoadAreasConfig(path string) (*AreasConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read areas config: %w", err)
	}

	var cfg AreasConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse areas config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the configuration for structural problems.
func (c *AreasConfig) Validate() error {
	if len(c.Areas) == 0 {
		return &ConfigurationError{Field: "areas", Reason: "at least one area is required"}
	}

	seenAreas := make(map[string]bool)
	for i, area := range c.Areas {
		if area.ID == "" {
			return &ConfigurationError{
				Field:  fmt.Sprintf("areas[%d].id", i),
				Reason: "area id is required",
			}
		}
		if seenAreas[area.ID] {
			return &ConfigurationError{
				Field:  fmt.Sprintf("areas[%d].id", i),
				Reason: fmt.Sprintf("duplicate area id %q", area.ID),
			}
		}
		seenAreas[area.ID] = true

		if area.Threshold != 0 && (area.Threshold < 1 || area.Threshold > 99) {
			return &ConfigurationError{
				Field:  fmt.Sprintf("areas[%d].threshold", i),
				Reason: fmt.Sprintf("threshold must be between 1 and 99, got %d", area.Threshold),
			}
		}
		if area.Decay.MinDelay < 0 {
			return &ConfigurationError{
				Field:  fmt.Sprintf("areas[%d].decay.min_delay", i),
				Reason: "min_delay must not be negative",
			}
		}
		if area.Decay.Window < 0 {
			return &ConfigurationError{
				Field:  fmt.Sprintf("areas[%d].decay.window", i),
				Reason: "window must not be negative",
			}
		}

		if len(area.Sensors) == 0 {
			return &ConfigurationError{
				Field:  fmt.Sprintf("areas[%d].sensors", i),
				Reason: "at least one sensor is required",
			}
		}

		seenSensors := make(map[string]bool)
		for j, sensor := range area.Sensors {
			if sensor.ID == "" {
				return &ConfigurationError{
					Field:  fmt.Sprintf("areas[%d].sensors[%d].id", i, j),
					Reason: "sensor id is required",
				}
			}
			if seenSensors[sensor.ID] {
				return &ConfigurationError{
					Field:  fmt.Sprintf("areas[%d].sensors[%d].id", i, j),
					Reason: fmt.Sprintf("duplicate sensor id %q", sensor.ID),
				}
			}
			seenSensors[sensor.ID] = true

			if sensor.Type == "" {
				return &ConfigurationError{
					Field:  fmt.Sprintf("areas[%d].sensors[%d].type", i, j),
					Reason: "sensor type is required",
				}
			}
			if sensor.Weight != nil && (*sensor.Weight < 0 || *sensor.Weight > 1) {
				return &ConfigurationError{
					Field:  fmt.Sprintf("areas[%d].sensors[%d].weight", i, j),
					Reason: fmt.Sprintf("weight must be between 0 and 1, got %v", *sensor.Weight),
				}
			}
			if sensor.Above != nil && sensor.Below != nil && *sensor.Above >= *sensor.Below {
				return &ConfigurationError{
					Field:  fmt.Sprintf("areas[%d].sensors[%d]", i, j),
					Reason: fmt.Sprintf("above (%v) must be less than below (%v)", *sensor.Above, *sensor.Below),
				}
			}
		}

		// The learner needs at least one ground-truth sensor. Defaults
		// have not been applied yet, so resolve the proxy types here.
		if area.HistoricalAnalysis.Enabled() {
			proxies := area.ProxySensorTypes
			if len(proxies) == 0 {
				proxies = []SensorType{SensorMotion}
			}
			hasProxy := false
			for _, sensor := range area.Sensors {
				for _, p := range proxies {
					if sensor.Type == p {
						hasProxy = true
					}
				}
			}
			if !hasProxy {
				return &ConfigurationError{
					Field:  fmt.Sprintf("areas[%d].sensors", i),
					Reason: fmt.Sprintf("historical analysis needs at least one sensor of the proxy types %v", proxies),
				}
			}
		}
	}

	return nil
}

// applyDefaults fills in zero values after validation has passed.
func (c *AreasConfig) applyDefaults() {
	for i := range c.Areas {
		area := &c.Areas[i]
		if area.Threshold == 0 {
			area.Threshold = DefaultThreshold
		}
		if area.Decay.Window == 0 {
			area.Decay.Window = DefaultDecayWindow
		}
		if area.Decay.MinDelay == 0 {
			area.Decay.MinDelay = DefaultDecayMinDelay
		}
		if len(area.ProxySensorTypes) == 0 {
			area.ProxySensorTypes = []SensorType{SensorMotion}
		}
	}
}

// TypeWeight returns the default weight for a sensor type.
func TypeWeight(t SensorType) float64 {
	if w, ok := DefaultTypeWeights[t]; ok {
		return w
	}
	return DefaultWeightFallback
}

// Area returns the configuration for the given area id.
func (c *AreasConfig) Area(areaID string) (*AreaConfig, bool) {
	for i := range c.Areas {
		if c.Areas[i].ID == areaID {
			return &c.Areas[i], true
		}
	}
	return nil, false
}

// SensorArea resolves which area a sensor belongs to.
func (c *AreasConfig) SensorArea(sensorID string) (*AreaConfig, *SensorConfig, bool) {
	for i := range c.Areas {
		for j := range c.Areas[i].Sensors {
			if c.Areas[i].Sensors[j].ID == sensorID {
				return &c.Areas[i], &c.Areas[i].Sensors[j], true
			}
		}
	}
	return nil, nil, false
}
