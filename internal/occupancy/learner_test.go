package occupancy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iv(base time.Time, startSec, endSec int) Interval {
	return Interval{
		Start: base.Add(time.Duration(startSec) * time.Second),
		End:   base.Add(time.Duration(endSec) * time.Second),
	}
}

func TestBuildSensorIntervals(t *testing.T) {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := base.Add(time.Hour)

	row := func(sec int, active, available bool) StateRow {
		return StateRow{
			SensorID:   "motion_1",
			SensorType: SensorMotion,
			Active:     active,
			Available:  available,
			ObservedAt: base.Add(time.Duration(sec) * time.Second),
		}
	}

	tests := []struct {
		name string
		rows []StateRow
		want []Interval
	}{
		{
			name: "simple rise and fall",
			rows: []StateRow{row(10, true, true), row(70, false, true)},
			want: []Interval{iv(base, 10, 70)},
		},
		{
			name: "open interval closes at window end",
			rows: []StateRow{row(10, true, true)},
			want: []Interval{iv(base, 10, 3600)},
		},
		{
			name: "repeated active rows extend one interval",
			rows: []StateRow{row(10, true, true), row(20, true, true), row(50, false, true)},
			want: []Interval{iv(base, 10, 50)},
		},
		{
			name: "availability loss ends the interval",
			rows: []StateRow{row(10, true, true), row(40, false, false), row(100, true, true), row(130, false, true)},
			want: []Interval{iv(base, 10, 40), iv(base, 100, 130)},
		},
		{
			name: "never active",
			rows: []StateRow{row(10, false, true), row(50, false, true)},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSensorIntervals(tt.rows, windowEnd)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeIntervals(t *testing.T) {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	got := mergeIntervals([]Interval{
		iv(base, 100, 200),
		iv(base, 0, 50),
		iv(base, 150, 300),
		iv(base, 300, 350),
	})

	want := []Interval{iv(base, 0, 50), iv(base, 100, 350)}
	assert.Equal(t, want, got)
}

func TestOverlapSeconds(t *testing.T) {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	a := []Interval{iv(base, 0, 100), iv(base, 200, 300)}
	b := []Interval{iv(base, 50, 250)}

	// [50,100) and [200,250)
	assert.InDelta(t, 100.0, overlapSeconds(a, b), 1e-9)
	assert.InDelta(t, 100.0, overlapSeconds(b, a), 1e-9)
	assert.Zero(t, overlapSeconds(a, nil))
}

// learnFixture builds a day of history: a motion sensor active for one
// minute at the top of every hour, and a media sensor active during
// half of those minutes plus one stretch of an empty room.
func learnFixture(t *testing.T) (*AreaConfig, []StateRow, time.Time, time.Time) {
	t.Helper()

	windowStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(24 * time.Hour)

	area := &AreaConfig{
		ID:               "living_room",
		Threshold:        50,
		ProxySensorTypes: []SensorType{SensorMotion},
		Sensors: []SensorConfig{
			{ID: "motion_1", Type: SensorMotion},
			{ID: "media_1", Type: SensorMedia},
		},
	}

	var rows []StateRow
	add := func(sensorID string, sensorType SensorType, at time.Time, active bool) {
		rows = append(rows, StateRow{
			SensorID:   sensorID,
			SensorType: sensorType,
			AreaID:     area.ID,
			Active:     active,
			Available:  true,
			ObservedAt: at,
		})
	}

	for hour := 0; hour < 24; hour++ {
		start := windowStart.Add(time.Duration(hour) * time.Hour)
		add("motion_1", SensorMotion, start, true)
		add("motion_1", SensorMotion, start.Add(time.Minute), false)
		if hour%2 == 0 {
			add("media_1", SensorMedia, start, true)
			add("media_1", SensorMedia, start.Add(time.Minute), false)
		}
	}
	// Media playing with nobody around
	add("media_1", SensorMedia, windowStart.Add(30*time.Minute), true)
	add("media_1", SensorMedia, windowStart.Add(42*time.Minute), false)

	return area, rows, windowStart, windowEnd
}

func TestEstimateModels(t *testing.T) {
	area, rows, windowStart, windowEnd := learnFixture(t)

	estimate, err := EstimateModels(area, rows, windowStart, windowEnd)
	require.NoError(t, err)

	assert.Equal(t, 24, estimate.ProxyTransitions)
	assert.InDelta(t, 24*60.0, estimate.OccupiedSeconds, 1e-6)

	motion, ok := estimate.Models[SensorMotion]
	require.True(t, ok)
	// Motion defines occupancy, so given occupancy it is always active
	assert.Equal(t, MaxProbability, motion.PTrue)
	assert.Equal(t, MinProbability, motion.PFalse)
	// Prior is the occupancy duty cycle: 24 minutes out of 24 hours,
	// clamped up to the floor
	assert.Equal(t, MinProbability, motion.Prior)

	media, ok := estimate.Models[SensorMedia]
	require.True(t, ok)
	// Media overlapped half the occupied time: 12 of 24 minutes
	assert.InDelta(t, 0.5, media.PTrue, 1e-6)
	// And ran 12 minutes in an empty room out of ~23.6 empty hours
	assert.Less(t, media.PFalse, 0.06)
	assert.GreaterOrEqual(t, media.PFalse, MinProbability)
}

func TestEstimateModelsInsufficientTransitions(t *testing.T) {
	windowStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(24 * time.Hour)

	area := &AreaConfig{
		ID:               "living_room",
		ProxySensorTypes: []SensorType{SensorMotion},
		Sensors:          []SensorConfig{{ID: "motion_1", Type: SensorMotion}},
	}

	// Only three activations, well under the floor
	var rows []StateRow
	for i := 0; i < 3; i++ {
		start := windowStart.Add(time.Duration(i) * time.Hour)
		rows = append(rows,
			StateRow{SensorID: "motion_1", SensorType: SensorMotion, Active: true, Available: true, ObservedAt: start},
			StateRow{SensorID: "motion_1", SensorType: SensorMotion, Active: false, Available: true, ObservedAt: start.Add(10 * time.Minute)},
		)
	}

	_, err := EstimateModels(area, rows, windowStart, windowEnd)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestEstimateModelsInsufficientActiveTime(t *testing.T) {
	windowStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(24 * time.Hour)

	area := &AreaConfig{
		ID:               "living_room",
		ProxySensorTypes: []SensorType{SensorMotion},
		Sensors:          []SensorConfig{{ID: "motion_1", Type: SensorMotion}},
	}

	// Plenty of transitions but only a few seconds each
	var rows []StateRow
	for i := 0; i < 20; i++ {
		start := windowStart.Add(time.Duration(i) * time.Hour)
		rows = append(rows,
			StateRow{SensorID: "motion_1", SensorType: SensorMotion, Active: true, Available: true, ObservedAt: start},
			StateRow{SensorID: "motion_1", SensorType: SensorMotion, Active: false, Available: true, ObservedAt: start.Add(5 * time.Second)},
		)
	}

	_, err := EstimateModels(area, rows, windowStart, windowEnd)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestEstimateModelsShortWindow(t *testing.T) {
	windowStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	area := &AreaConfig{ID: "living_room", ProxySensorTypes: []SensorType{SensorMotion}}

	_, err := EstimateModels(area, nil, windowStart, windowStart.Add(10*time.Minute))
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestEstimateModelsNoRows(t *testing.T) {
	windowStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	area := &AreaConfig{ID: "living_room", ProxySensorTypes: []SensorType{SensorMotion}}

	_, err := EstimateModels(area, nil, windowStart, windowStart.Add(24*time.Hour))
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestEstimatedModelsStayInsideBounds(t *testing.T) {
	area, rows, windowStart, windowEnd := learnFixture(t)

	estimate, err := EstimateModels(area, rows, windowStart, windowEnd)
	require.NoError(t, err)

	for sensorType, model := range estimate.Models {
		for name, p := range map[string]float64{"PTrue": model.PTrue, "PFalse": model.PFalse, "Prior": model.Prior} {
			if p < MinProbability || p > MaxProbability {
				t.Errorf("%s of %s = %v, outside [%v, %v]", name, sensorType, p, MinProbability, MaxProbability)
			}
			if math.IsNaN(p) {
				t.Errorf("%s of %s is NaN", name, sensorType)
			}
		}
	}
}
