package occupancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrInsufficientHistory means the timeline does not yet contain enough
// proxy activity to estimate parameters. The current models stay in
// place.
var ErrInsufficientHistory = errors.New("insufficient history for learning")

// Floors below which learned estimates are considered noise.
const (
	minProxyTransitions   = 10
	minProxyActiveSeconds = 300.0
	minLearnWindowSeconds = 3600.0
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Seconds returns the interval length in seconds
func (iv Interval) Seconds() float64 {
	d := iv.End.Sub(iv.Start).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// buildSensorIntervals walks one sensor's observations in time order
// and produces the intervals during which it was active. An interval
// still open at the window end closes there.
func buildSensorIntervals(rows []StateRow, windowEnd time.Time) []Interval {
	var intervals []Interval
	var start time.Time
	open := false

	for _, row := range rows {
		if !row.Available {
			// Treat loss of availability as end of activity
			if open {
				intervals = append(intervals, Interval{Start: start, End: row.ObservedAt})
				open = false
			}
			continue
		}
		if row.Active && !open {
			start = row.ObservedAt
			open = true
		} else if !row.Active && open {
			intervals = append(intervals, Interval{Start: start, End: row.ObservedAt})
			open = false
		}
	}
	if open {
		intervals = append(intervals, Interval{Start: start, End: windowEnd})
	}

	return intervals
}

// mergeIntervals returns the union of a set of intervals as a sorted,
// non-overlapping list.
func mergeIntervals(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}

	return merged
}

// totalSeconds sums the lengths of a merged interval list
func totalSeconds(intervals []Interval) float64 {
	sum := 0.0
	for _, iv := range intervals {
		sum += iv.Seconds()
	}
	return sum
}

// overlapSeconds returns the total time covered by both merged lists
func overlapSeconds(a, b []Interval) float64 {
	sum := 0.0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := a[i].Start
		if b[j].Start.After(start) {
			start = b[j].Start
		}
		end := a[i].End
		if b[j].End.Before(end) {
			end = b[j].End
		}
		if end.After(start) {
			sum += end.Sub(start).Seconds()
		}
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return sum
}

// LearnResult reports one learning run for an area. Outcome and Error
// are filled in by the agent before the result is published, so MQTT
// callers see failed runs too.
type LearnResult struct {
	RunID            string                    `json:"run_id"`
	AreaID           string                    `json:"area_id"`
	Outcome          string                    `json:"outcome,omitempty"`
	Error            string                    `json:"error,omitempty"`
	WindowStart      time.Time                 `json:"window_start"`
	WindowEnd        time.Time                 `json:"window_end"`
	ProxyTransitions int                       `json:"proxy_transitions"`
	OccupiedSeconds  float64                   `json:"occupied_seconds"`
	Models           map[SensorType]PriorModel `json:"models,omitempty"`
	Elapsed          time.Duration             `json:"elapsed_ms"`
}

// Learner estimates per-type Bayesian parameters from the recorded
// timeline, using the area's proxy sensor types (motion by default) as
// the occupancy ground truth. Results are committed to the prior store
// in one atomic swap and persisted to Redis.
type Learner struct {
	history       *History
	store         *PriorStore
	storage       *Storage
	historyPeriod time.Duration
	logger        *slog.Logger
}

// NewLearner creates a learner over the given history window
func NewLearner(history *History, store *PriorStore, storage *Storage, historyPeriod time.Duration, logger *slog.Logger) *Learner {
	if historyPeriod <= 0 {
		historyPeriod = DefaultHistoryPeriod
	}
	return &Learner{
		history:       history,
		store:         store,
		storage:       storage,
		historyPeriod: historyPeriod,
		logger:        logger,
	}
}

// Run performs one learning pass for an area over the given window,
// falling back to the configured history period when period is zero. It
// respects ctx cancellation between phases and leaves the committed
// models unchanged on any failure. A failed run still returns a result
// carrying the run id and window, so the failure can be reported.
func (l *Learner) Run(ctx context.Context, area *AreaConfig, period time.Duration) (*LearnResult, error) {
	if period <= 0 {
		period = l.historyPeriod
	}

	runID := uuid.New().String()
	started := time.Now()
	windowEnd := started.UTC()
	windowStart := windowEnd.Add(-period)

	fail := func(err error) (*LearnResult, error) {
		return &LearnResult{
			RunID:       runID,
			AreaID:      area.ID,
			WindowStart: windowStart,
			WindowEnd:   windowEnd,
			Elapsed:     time.Since(started),
		}, err
	}

	l.logger.Info("Starting prior learning run",
		"run_id", runID, "area", area.ID,
		"window_start", windowStart, "window_end", windowEnd)

	rows, err := l.history.StateRows(ctx, area.ID, windowStart, windowEnd)
	if err != nil {
		return fail(fmt.Errorf("learning run %s: %w", runID, err))
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("learning run %s cancelled: %w", runID, err))
	}

	estimate, err := EstimateModels(area, rows, windowStart, windowEnd)
	if err != nil {
		return fail(fmt.Errorf("learning run %s for area %s: %w", runID, area.ID, err))
	}

	// Proxy types define occupancy, so learning their likelihoods from
	// the proxy itself is circular. Only their prior is refreshed.
	for _, t := range area.ProxySensorTypes {
		if m, ok := estimate.Models[t]; ok {
			current := l.store.Model(area.ID, t)
			m.PTrue = current.PTrue
			m.PFalse = current.PFalse
			estimate.Models[t] = m
		}
	}

	l.store.CommitArea(area.ID, estimate.Models)

	if l.storage != nil {
		if err := l.storage.StorePriors(ctx, area.ID, estimate.Models); err != nil {
			// Models are already committed in memory
			l.logger.Warn("Failed to persist learned priors",
				"run_id", runID, "area", area.ID, "error", err)
		}
	}

	result := &LearnResult{
		RunID:            runID,
		AreaID:           area.ID,
		WindowStart:      windowStart,
		WindowEnd:        windowEnd,
		ProxyTransitions: estimate.ProxyTransitions,
		OccupiedSeconds:  estimate.OccupiedSeconds,
		Models:           estimate.Models,
		Elapsed:          time.Since(started),
	}

	l.logger.Info("Completed prior learning run",
		"run_id", runID, "area", area.ID,
		"proxy_transitions", result.ProxyTransitions,
		"occupied_seconds", result.OccupiedSeconds,
		"types", len(result.Models),
		"elapsed", result.Elapsed)

	return result, nil
}

// Estimate holds the intermediate output of one estimation pass.
type Estimate struct {
	Models           map[SensorType]PriorModel
	ProxyTransitions int
	OccupiedSeconds  float64
}

// EstimateModels derives per-type parameters from recorded rows. The
// proxy types' merged active intervals stand in for ground-truth
// occupancy; every other type's conditional probabilities come from
// interval overlap against them.
func EstimateModels(area *AreaConfig, rows []StateRow, windowStart, windowEnd time.Time) (*Estimate, error) {
	windowSeconds := windowEnd.Sub(windowStart).Seconds()
	if windowSeconds < minLearnWindowSeconds {
		return nil, ErrInsufficientHistory
	}

	proxyTypes := make(map[SensorType]bool)
	for _, t := range area.ProxySensorTypes {
		proxyTypes[t] = true
	}

	// Group rows per sensor and make sure each group is in time order
	bySensor := make(map[string][]StateRow)
	typeOf := make(map[string]SensorType)
	for _, row := range rows {
		bySensor[row.SensorID] = append(bySensor[row.SensorID], row)
		typeOf[row.SensorID] = row.SensorType
	}
	for _, sensorRows := range bySensor {
		sort.Slice(sensorRows, func(i, j int) bool {
			return sensorRows[i].ObservedAt.Before(sensorRows[j].ObservedAt)
		})
	}

	byType := make(map[SensorType][]Interval)
	proxyTransitions := 0
	var proxyIntervals []Interval

	for sensorID, sensorRows := range bySensor {
		intervals := buildSensorIntervals(sensorRows, windowEnd)
		t := typeOf[sensorID]
		byType[t] = append(byType[t], intervals...)
		if proxyTypes[t] {
			proxyTransitions += len(intervals)
			proxyIntervals = append(proxyIntervals, intervals...)
		}
	}

	occupied := mergeIntervals(proxyIntervals)
	occupiedSeconds := totalSeconds(occupied)

	if proxyTransitions < minProxyTransitions || occupiedSeconds < minProxyActiveSeconds {
		return nil, ErrInsufficientHistory
	}

	unoccupiedSeconds := windowSeconds - occupiedSeconds
	dutyCycle := occupiedSeconds / windowSeconds

	models := make(map[SensorType]PriorModel)
	for t, intervals := range byType {
		merged := mergeIntervals(intervals)
		activeSeconds := totalSeconds(merged)
		activeWhileOccupied := overlapSeconds(merged, occupied)
		activeWhileEmpty := activeSeconds - activeWhileOccupied

		model := PriorModel{
			PTrue:  activeWhileOccupied / occupiedSeconds,
			PFalse: safeRatio(activeWhileEmpty, unoccupiedSeconds),
			Prior:  dutyCycle,
		}
		models[t] = model.Clamped()
	}

	return &Estimate{
		Models:           models,
		ProxyTransitions: proxyTransitions,
		OccupiedSeconds:  occupiedSeconds,
	}, nil
}

func safeRatio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}
