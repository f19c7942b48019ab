package occupancy

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

// fixedModels serves the same model for every area and type.
type fixedModels struct {
	model PriorModel
}

func (f fixedModels) Model(string, SensorType) PriorModel {
	return f.model
}

// defaultModels serves the built-in per-type defaults.
type defaultModels struct{}

func (defaultModels) Model(_ string, t SensorType) PriorModel {
	return DefaultPriorModel(t)
}

func TestAggregateEmptyReturnsPrior(t *testing.T) {
	got := Aggregate(0.35, nil)
	if math.Abs(got-0.35) > 1e-9 {
		t.Errorf("Aggregate() with no contributions = %v, want prior 0.35", got)
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	contributions := []Contribution{
		{SensorID: "motion_1", Weight: 0.85, Ratio: 5.0},
		{SensorID: "media_1", Weight: 0.70, Ratio: 12.5},
		{SensorID: "door_1", Weight: 0.30, Ratio: 10.0},
		{SensorID: "light_1", Weight: 0.20, Ratio: 0.82},
		{SensorID: "env_1", Weight: 0.067, Ratio: 9.0},
	}

	want := Aggregate(0.3, contributions)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := make([]Contribution, len(contributions))
		copy(shuffled, contributions)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		got := Aggregate(0.3, shuffled)
		if math.Abs(got-want) > 1e-12 {
			t.Fatalf("Aggregate() order dependent: %v vs %v", got, want)
		}
	}
}

func TestAggregateStaysInsideOpenInterval(t *testing.T) {
	// Stack enough strong evidence to hit the log-odds clamp
	many := make([]Contribution, 100)
	for i := range many {
		many[i] = Contribution{Weight: 1.0, Ratio: 19.0}
	}

	got := Aggregate(0.5, many)
	if got <= 0 || got >= 1 {
		t.Fatalf("Aggregate() = %v, want strictly inside (0, 1)", got)
	}

	for i := range many {
		many[i].Ratio = 1.0 / 19.0
	}
	got = Aggregate(0.5, many)
	if got <= 0 || got >= 1 {
		t.Fatalf("Aggregate() = %v, want strictly inside (0, 1)", got)
	}
}

func TestAggregateMoreEvidenceRaisesProbability(t *testing.T) {
	one := []Contribution{{Weight: 0.85, Ratio: 5.0}}
	two := append([]Contribution{{Weight: 0.70, Ratio: 12.5}}, one...)

	pOne := Aggregate(0.3, one)
	pTwo := Aggregate(0.3, two)

	if pOne <= 0.3 {
		t.Errorf("supporting evidence should raise probability above prior, got %v", pOne)
	}
	if pTwo <= pOne {
		t.Errorf("second supporting sensor should raise probability further: %v vs %v", pTwo, pOne)
	}
}

func TestAggregateSkipsDegenerateContributions(t *testing.T) {
	contributions := []Contribution{
		{Weight: 0, Ratio: 5.0},
		{Weight: 0.5, Ratio: 0},
		{Weight: -1, Ratio: 5.0},
	}
	got := Aggregate(0.4, contributions)
	if math.Abs(got-0.4) > 1e-9 {
		t.Errorf("Aggregate() = %v, want prior 0.4 when all contributions degenerate", got)
	}
}

func TestLikelihoodRatioBranches(t *testing.T) {
	model := PriorModel{PTrue: 0.25, PFalse: 0.05, Prior: 0.35}

	active := model.LikelihoodRatio(true)
	if math.Abs(active-5.0) > 1e-9 {
		t.Errorf("active likelihood ratio = %v, want 5.0", active)
	}

	inactive := model.LikelihoodRatio(false)
	want := 0.75 / 0.95
	if math.Abs(inactive-want) > 1e-9 {
		t.Errorf("inactive likelihood ratio = %v, want %v", inactive, want)
	}
}

func TestLikelihoodRatioClampsDegenerateModels(t *testing.T) {
	model := PriorModel{PTrue: 1.0, PFalse: 0.0, Prior: 0.5}

	active := model.LikelihoodRatio(true)
	if math.IsInf(active, 0) || math.IsNaN(active) {
		t.Fatalf("active likelihood ratio = %v, want finite", active)
	}
	inactive := model.LikelihoodRatio(false)
	if math.IsInf(inactive, 0) || math.IsNaN(inactive) || inactive <= 0 {
		t.Fatalf("inactive likelihood ratio = %v, want finite positive", inactive)
	}
}

func testArea() AreaConfig {
	return AreaConfig{
		ID:        "living_room",
		Threshold: 50,
		Decay:     DecayConfig{MinDelay: 10, Window: 600},
		Sensors: []SensorConfig{
			{ID: "motion_1", Type: SensorMotion},
			{ID: "media_1", Type: SensorMedia},
		},
	}
}

func TestEvaluateActiveMotionRaisesProbability(t *testing.T) {
	area := testArea()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	states := []*SensorState{
		{SensorID: "motion_1", SensorType: SensorMotion, Active: true, Available: true},
	}

	result := Evaluate(&area, states, defaultModels{}, now)
	if result.Probability <= DefaultPriorModels[SensorMotion].Prior {
		t.Errorf("probability %v should exceed the motion prior with active motion", result.Probability)
	}
	if result.Active != 1 {
		t.Errorf("active count = %d, want 1", result.Active)
	}
}

func TestEvaluateDecayingSensorKeepsContributing(t *testing.T) {
	area := testArea()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	active := []*SensorState{
		{SensorID: "motion_1", SensorType: SensorMotion, Active: true, Available: true},
	}
	decaying := []*SensorState{
		{SensorID: "motion_1", SensorType: SensorMotion, Active: false, Available: true,
			InactiveSince: now.Add(-100 * time.Second)},
	}
	decayed := []*SensorState{
		{SensorID: "motion_1", SensorType: SensorMotion, Active: false, Available: true,
			InactiveSince: now.Add(-time.Hour)},
	}

	pActive := Evaluate(&area, active, defaultModels{}, now).Probability
	rDecaying := Evaluate(&area, decaying, defaultModels{}, now)
	pDecayed := Evaluate(&area, decayed, defaultModels{}, now).Probability

	if rDecaying.Probability >= pActive {
		t.Errorf("decaying %v should be below active %v", rDecaying.Probability, pActive)
	}
	if rDecaying.Probability <= pDecayed {
		t.Errorf("decaying %v should be above fully decayed %v", rDecaying.Probability, pDecayed)
	}
	if rDecaying.Decaying != 1 {
		t.Errorf("decaying count = %d, want 1", rDecaying.Decaying)
	}
}

func TestEvaluateGracePeriodHoldsProbability(t *testing.T) {
	area := testArea()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	active := []*SensorState{
		{SensorID: "motion_1", SensorType: SensorMotion, Active: true, Available: true},
	}
	inGrace := []*SensorState{
		{SensorID: "motion_1", SensorType: SensorMotion, Active: false, Available: true,
			InactiveSince: now.Add(-5 * time.Second)},
	}

	pActive := Evaluate(&area, active, defaultModels{}, now).Probability
	pGrace := Evaluate(&area, inGrace, defaultModels{}, now).Probability

	if math.Abs(pActive-pGrace) > 1e-9 {
		t.Errorf("grace period should hold probability: %v vs %v", pGrace, pActive)
	}
}

func TestEvaluateUnavailableSensorsContributeNothing(t *testing.T) {
	area := testArea()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	states := []*SensorState{
		{SensorID: "motion_1", SensorType: SensorMotion, Active: true, Available: false},
		{SensorID: "media_1", SensorType: SensorMedia, Active: true, Available: false},
	}

	result := Evaluate(&area, states, defaultModels{}, now)
	if result.Active != 0 {
		t.Errorf("active count = %d, want 0 when everything is unavailable", result.Active)
	}
	if math.Abs(result.Probability-FallbackPriorModel.Prior) > 1e-9 {
		t.Errorf("probability = %v, want baseline prior %v", result.Probability, FallbackPriorModel.Prior)
	}
}

func TestEvaluateThresholdInclusive(t *testing.T) {
	area := testArea()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// A model whose single contribution lands exactly on 0.5
	models := fixedModels{model: PriorModel{PTrue: 0.5, PFalse: 0.5, Prior: 0.5}}
	states := []*SensorState{
		{SensorID: "motion_1", SensorType: SensorMotion, Active: true, Available: true},
	}

	result := Evaluate(&area, states, models, now)
	if math.Abs(result.Probability-0.5) > 1e-9 {
		t.Fatalf("probability = %v, want exactly 0.5", result.Probability)
	}
	if !result.Occupied {
		t.Error("probability equal to threshold should count as occupied")
	}

	area.Threshold = 51
	result = Evaluate(&area, states, models, now)
	if result.Occupied {
		t.Error("probability below threshold should not count as occupied")
	}
}

func TestAreaPrior(t *testing.T) {
	models := defaultModels{}

	got := AreaPrior(nil, models, "a")
	if got != FallbackPriorModel.Prior {
		t.Errorf("AreaPrior() with no types = %v, want fallback %v", got, FallbackPriorModel.Prior)
	}

	got = AreaPrior([]SensorType{SensorMotion, SensorMedia}, models, "a")
	want := (0.35 + 0.30) / 2
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("AreaPrior() = %v, want %v", got, want)
	}
}

func TestEvaluateActiveTriggersAndMarginals(t *testing.T) {
	area := testArea()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	states := []*SensorState{
		{SensorID: "motion_1", SensorType: SensorMotion, Active: true, Available: true},
		{SensorID: "media_1", SensorType: SensorMedia, Active: false, Available: true,
			InactiveSince: now.Add(-time.Hour)},
	}

	result := Evaluate(&area, states, defaultModels{}, now)
	if len(result.ActiveTriggers) != 1 || result.ActiveTriggers[0] != "motion_1" {
		t.Fatalf("ActiveTriggers = %v, want [motion_1]", result.ActiveTriggers)
	}

	model := DefaultPriorModel(SensorMotion)
	prior := AreaPrior([]SensorType{SensorMotion, SensorMedia}, defaultModels{}, area.ID)
	want := Aggregate(prior, []Contribution{
		{SensorID: "motion_1", Weight: 0.85, Ratio: model.LikelihoodRatio(true)},
	})
	got, ok := result.PerSensor["motion_1"]
	if !ok {
		t.Fatal("PerSensor missing motion_1")
	}
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("PerSensor[motion_1] = %v, want marginal %v", got, want)
	}
	if _, ok := result.PerSensor["media_1"]; ok {
		t.Error("fully decayed media_1 should not appear in PerSensor")
	}
}

func TestEvaluateTriggersSorted(t *testing.T) {
	area := testArea()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	states := []*SensorState{
		{SensorID: "media_1", SensorType: SensorMedia, Active: true, Available: true},
		{SensorID: "motion_1", SensorType: SensorMotion, Active: true, Available: true},
	}

	result := Evaluate(&area, states, defaultModels{}, now)
	want := []string{"media_1", "motion_1"}
	if len(result.ActiveTriggers) != 2 ||
		result.ActiveTriggers[0] != want[0] || result.ActiveTriggers[1] != want[1] {
		t.Errorf("ActiveTriggers = %v, want %v", result.ActiveTriggers, want)
	}
}

func TestEvaluateIgnoresUnconfiguredSensors(t *testing.T) {
	area := testArea()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// A stray reading routed in via a payload area id: the sensor is
	// not in the area's configuration and must leave the prior alone.
	states := []*SensorState{
		{SensorID: "lamp_x", SensorType: SensorLight, Active: true, Available: true},
	}

	result := Evaluate(&area, states, defaultModels{}, now)
	if result.Active != 0 {
		t.Errorf("active count = %d, want 0 for an unconfigured sensor", result.Active)
	}
	if len(result.ActiveTriggers) != 0 {
		t.Errorf("ActiveTriggers = %v, want none", result.ActiveTriggers)
	}
	if math.Abs(result.Probability-FallbackPriorModel.Prior) > 1e-9 {
		t.Errorf("probability = %v, want baseline %v untouched by the stray type",
			result.Probability, FallbackPriorModel.Prior)
	}
}
