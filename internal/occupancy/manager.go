package occupancy

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Manager owns the per-area workers. It routes incoming readings to
// the right area, drives the shared decay ticker, and fans threshold
// operations out to the workers.
type Manager struct {
	cfg      *AreasConfig
	areas    map[string]*Area
	tick     time.Duration
	logger   *slog.Logger
	stopTick chan struct{}
	tickDone chan struct{}
}

// NewManager builds a worker per configured area
func NewManager(cfg *AreasConfig, models ModelProvider, storage *Storage, publish func(AreaSnapshot), tick time.Duration, logger *slog.Logger) *Manager {
	areas := make(map[string]*Area, len(cfg.Areas))
	for _, areaCfg := range cfg.Areas {
		areas[areaCfg.ID] = NewArea(areaCfg, models, storage, publish, logger)
	}
	return &Manager{
		cfg:      cfg,
		areas:    areas,
		tick:     tick,
		logger:   logger,
		stopTick: make(chan struct{}),
		tickDone: make(chan struct{}),
	}
}

// Start launches every area worker and the decay ticker
func (m *Manager) Start(ctx context.Context) {
	for _, area := range m.areas {
		area.RestoreThreshold(ctx)
		area.Start()
	}
	go m.runTicker()
	m.logger.Info("Area manager started", "areas", len(m.areas), "tick", m.tick)
}

// Stop shuts down the ticker and all area workers
func (m *Manager) Stop() {
	close(m.stopTick)
	<-m.tickDone
	for _, area := range m.areas {
		area.Stop()
	}
	m.logger.Info("Area manager stopped")
}

func (m *Manager) runTicker() {
	defer close(m.tickDone)

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			for _, area := range m.areas {
				area.Tick(now.UTC())
			}
		case <-m.stopTick:
			return
		}
	}
}

// Dispatch routes a reading to its area. Readings for sensors that are
// not configured anywhere are dropped with a debug log.
func (m *Manager) Dispatch(r Reading) {
	areaID := r.AreaID
	if areaID == "" {
		areaCfg, sensorCfg, ok := m.cfg.SensorArea(r.SensorID)
		if !ok {
			m.logger.Debug("Dropping reading for unconfigured sensor", "sensor", r.SensorID)
			return
		}
		areaID = areaCfg.ID
		if r.SensorType == "" {
			r.SensorType = sensorCfg.Type
		}
	}

	area, ok := m.areas[areaID]
	if !ok {
		m.logger.Debug("Dropping reading for unconfigured area",
			"sensor", r.SensorID, "area", areaID)
		return
	}
	r.AreaID = areaID
	area.ApplyReading(r)
}

// SetThreshold updates the runtime threshold for an area
func (m *Manager) SetThreshold(areaID string, value int) error {
	area, ok := m.areas[areaID]
	if !ok {
		return fmt.Errorf("unknown area %q", areaID)
	}
	return area.SetThreshold(value)
}

// Snapshot returns the latest evaluation for an area
func (m *Manager) Snapshot(areaID string) (AreaSnapshot, error) {
	area, ok := m.areas[areaID]
	if !ok {
		return AreaSnapshot{}, fmt.Errorf("unknown area %q", areaID)
	}
	return area.Snapshot(), nil
}

// AreaIDs lists the configured areas
func (m *Manager) AreaIDs() []string {
	ids := make([]string, 0, len(m.areas))
	for id := range m.areas {
		ids = append(ids, id)
	}
	return ids
}
