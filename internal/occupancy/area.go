package occupancy

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ErrInvalidThreshold reports a threshold outside the supported range.
type ErrInvalidThreshold struct {
	Value int
}

func (e *ErrInvalidThreshold) Error() string {
	return fmt.Sprintf("threshold must be between 1 and 99, got %d", e.Value)
}

// Area owns all state for one monitored area. Every operation runs on
// the area's own goroutine through a task channel, so readings, decay
// ticks and threshold changes for one area are strictly ordered while
// areas stay independent of each other.
type Area struct {
	cfg     AreaConfig
	models  ModelProvider
	storage *Storage
	publish func(AreaSnapshot)
	logger  *slog.Logger

	tasks chan func()
	stop  chan struct{}
	done  chan struct{}

	// Publication and persistence run on their own goroutine so the
	// worker never blocks on the broker or Redis.
	effects chan func()
	ioDone  chan struct{}

	// Owned by the worker goroutine
	states    map[string]*SensorState
	threshold int
	last      AreaSnapshot
}

// NewArea creates the worker for one area. The publish callback is
// invoked with every fresh snapshot from the I/O goroutine, so a slow
// broker never stalls evidence processing.
func NewArea(cfg AreaConfig, models ModelProvider, storage *Storage, publish func(AreaSnapshot), logger *slog.Logger) *Area {
	return &Area{
		cfg:       cfg,
		models:    models,
		storage:   storage,
		publish:   publish,
		logger:    logger.With("area", cfg.ID),
		tasks:     make(chan func(), 64),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		effects:   make(chan func(), 64),
		ioDone:    make(chan struct{}),
		states:    make(map[string]*SensorState),
		threshold: cfg.Threshold,
	}
}

// Start launches the worker and I/O goroutines
func (a *Area) Start() {
	go a.run()
	go a.runEffects()
}

// Stop shuts the worker down, waits for in-flight tasks to finish and
// flushes pending publications.
func (a *Area) Stop() {
	close(a.stop)
	<-a.done
	close(a.effects)
	<-a.ioDone
}

func (a *Area) run() {
	defer close(a.done)
	for {
		select {
		case task := <-a.tasks:
			task()
		case <-a.stop:
			// Drain whatever was already queued
			for {
				select {
				case task := <-a.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

func (a *Area) runEffects() {
	defer close(a.ioDone)
	for effect := range a.effects {
		effect()
	}
}

func (a *Area) submit(task func()) {
	select {
	case a.tasks <- task:
	case <-a.stop:
	}
}

// deferIO queues a side effect for the I/O goroutine. Only the worker
// goroutine enqueues, so sends cannot race the close in Stop. A full
// queue drops the effect rather than stalling the evidence path.
func (a *Area) deferIO(effect func()) {
	select {
	case a.effects <- effect:
	default:
		a.logger.Warn("Publication queue full, dropping")
	}
}

// ApplyReading feeds one sensor observation into the area and
// re-evaluates.
func (a *Area) ApplyReading(r Reading) {
	a.submit(func() {
		a.applyReading(r)
		a.evaluate(r.Timestamp)
	})
}

// Tick re-evaluates the area at the given time so decaying sensors
// keep fading between readings.
func (a *Area) Tick(now time.Time) {
	a.submit(func() {
		a.evaluate(now)
	})
}

// SetThreshold changes the decision threshold at runtime and
// re-evaluates immediately. The change is persisted so it survives
// restarts.
func (a *Area) SetThreshold(value int) error {
	if value < 1 || value > 99 {
		return &ErrInvalidThreshold{Value: value}
	}
	a.submit(func() {
		a.threshold = value
		if a.storage != nil {
			a.deferIO(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := a.storage.StoreThreshold(ctx, a.cfg.ID, value); err != nil {
					a.logger.Warn("Failed to persist threshold", "error", err)
				}
			})
		}
		a.evaluate(time.Now().UTC())
	})
	return nil
}

// Snapshot returns the most recent evaluation result. It runs on the
// worker goroutine so it never observes a half-applied reading.
func (a *Area) Snapshot() AreaSnapshot {
	reply := make(chan AreaSnapshot, 1)
	a.submit(func() {
		reply <- a.last
	})
	select {
	case snapshot := <-reply:
		return snapshot
	case <-a.done:
		return a.last
	}
}

// RestoreThreshold loads a persisted threshold override, if any.
// Called once during startup before readings flow.
func (a *Area) RestoreThreshold(ctx context.Context) {
	if a.storage == nil {
		return
	}
	value, ok, err := a.storage.GetThreshold(ctx, a.cfg.ID)
	if err != nil {
		a.logger.Warn("Failed to restore threshold", "error", err)
		return
	}
	if !ok {
		return
	}
	a.submit(func() {
		a.threshold = value
	})
}

func (a *Area) applyReading(r Reading) {
	state, ok := a.states[r.SensorID]
	if !ok {
		state = &SensorState{
			SensorID:   r.SensorID,
			SensorType: r.SensorType,
		}
		a.states[r.SensorID] = state
	}

	if !r.Available {
		// Unavailable readings must not clear a decay in progress
		state.Available = false
		state.LastUpdated = r.Timestamp
		return
	}

	wasActive := state.Active && state.Available
	state.Available = true
	state.LastUpdated = r.Timestamp

	if r.Active != state.Active || !wasActive && r.Active {
		state.LastChanged = r.Timestamp
	}

	if r.Active {
		// Activation cancels any decay in progress
		state.InactiveSince = time.Time{}
	} else if wasActive {
		state.InactiveSince = r.Timestamp
	}
	state.Active = r.Active
}

func (a *Area) evaluate(now time.Time) {
	cfg := a.cfg
	cfg.Threshold = a.threshold

	states := make([]*SensorState, 0, len(a.states))
	for _, s := range a.states {
		states = append(states, s)
	}

	result := Evaluate(&cfg, states, a.models, now)

	snapshot := AreaSnapshot{
		AreaID:         a.cfg.ID,
		Probability:    result.Probability,
		Occupied:       result.Occupied,
		Threshold:      a.threshold,
		EvaluatedAt:    now,
		Sensors:        result.Active,
		Decaying:       result.Decaying,
		ActiveTriggers: result.ActiveTriggers,
		PerSensor:      result.PerSensor,
	}
	a.last = snapshot

	a.deferIO(func() {
		if a.publish != nil {
			a.publish(snapshot)
		}
		if a.storage != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.storage.StoreSnapshot(ctx, snapshot); err != nil {
				a.logger.Warn("Failed to store snapshot", "error", err)
			}
		}
	})
}
