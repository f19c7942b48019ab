package occupancy

import (
	"math"
	"testing"
	"time"
)

func TestResolveState(t *testing.T) {
	tests := []struct {
		name          string
		sensorType    SensorType
		state         string
		wantActive    bool
		wantAvailable bool
	}{
		{"motion on", SensorMotion, "on", true, true},
		{"motion detected", SensorMotion, "detected", true, true},
		{"motion off", SensorMotion, "off", false, true},
		{"media playing", SensorMedia, "playing", true, true},
		{"media paused is still evidence", SensorMedia, "paused", true, true},
		{"media idle", SensorMedia, "idle", false, true},
		{"appliance standby counts", SensorAppliance, "standby", true, true},
		{"closed door is evidence", SensorDoor, "closed", true, true},
		{"closed door reported as off", SensorDoor, "off", true, true},
		{"open door is not", SensorDoor, "open", false, true},
		{"open window is evidence", SensorWindow, "open", true, true},
		{"light on", SensorLight, "on", true, true},
		{"case and whitespace normalized", SensorMotion, "  ON ", true, true},
		{"unavailable", SensorMotion, "unavailable", false, false},
		{"unknown state value", SensorMotion, "unknown", false, false},
		{"empty state", SensorMotion, "", false, false},
		{"unrecognized type falls back to on/off", SensorType("radar"), "on", true, true},
		{"unrecognized type inactive", SensorType("radar"), "clear", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active, available := ResolveState(tt.sensorType, tt.state)
			if active != tt.wantActive || available != tt.wantAvailable {
				t.Errorf("ResolveState(%s, %q) = (%v, %v), want (%v, %v)",
					tt.sensorType, tt.state, active, available, tt.wantActive, tt.wantAvailable)
			}
		})
	}
}

func TestResolveNumericNeedsBaseline(t *testing.T) {
	c := NewClassifier(60.17, 24.94)
	at := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

	// The first samples establish the baseline and never trigger
	for i := 0; i < 5; i++ {
		active, available := c.ResolveNumeric("env_co2", 450, at, false)
		if !available {
			t.Fatal("numeric reading should be available")
		}
		if active {
			t.Fatal("baseline-building samples must not trigger")
		}
	}
}

func TestResolveNumericDetectsDeviation(t *testing.T) {
	c := NewClassifier(60.17, 24.94)
	at := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		c.ResolveNumeric("env_co2", 450, at, false)
	}

	active, _ := c.ResolveNumeric("env_co2", 455, at, false)
	if active {
		t.Error("deviation within tolerance should not trigger")
	}

	active, _ = c.ResolveNumeric("env_co2", 900, at, false)
	if !active {
		t.Error("doubling the baseline should trigger")
	}
}

func TestResolveNumericRejectsNonFinite(t *testing.T) {
	c := NewClassifier(60.17, 24.94)
	at := time.Now().UTC()

	if _, available := c.ResolveNumeric("env_1", math.NaN(), at, false); available {
		t.Error("NaN reading should be unavailable")
	}
}

func TestResolveNumericIlluminanceDaylightTolerance(t *testing.T) {
	// Midnight well north: no daylight, same behavior as plain numeric
	c := NewClassifier(60.17, 24.94)
	night := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		c.ResolveNumeric("lux_hallway", 5, night, true)
	}
	active, _ := c.ResolveNumeric("lux_hallway", 200, night, true)
	if !active {
		t.Error("a lamp turning on at night should trigger")
	}

	// Midday in summer: the daylight term widens the tolerance so the
	// same absolute change does not trigger
	c2 := NewClassifier(60.17, 24.94)
	noon := time.Date(2026, 6, 21, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		c2.ResolveNumeric("lux_hallway", 5000, noon, true)
	}
	active, _ = c2.ResolveNumeric("lux_hallway", 5195, noon, true)
	if active {
		t.Error("a small shift under full daylight should not trigger")
	}
}
