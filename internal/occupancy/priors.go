package occupancy

import (
	"sync/atomic"
)

type priorKey struct {
	AreaID     string
	SensorType SensorType
}

// PriorStore holds the learned Bayesian parameters for every area and
// sensor type. Reads are lock-free; the learner commits a whole area's
// models in one atomic swap, so an evaluation never observes a
// half-updated set.
type PriorStore struct {
	models atomic.Pointer[map[priorKey]PriorModel]
}

// NewPriorStore creates an empty store. Lookups fall back to the
// per-type defaults until the learner commits.
func NewPriorStore() *PriorStore {
	s := &PriorStore{}
	empty := make(map[priorKey]PriorModel)
	s.models.Store(&empty)
	return s
}

// Model returns the parameters for a sensor type in an area, falling
// back to the type default when nothing has been learned yet.
func (s *PriorStore) Model(areaID string, sensorType SensorType) PriorModel {
	current := *s.models.Load()
	if m, ok := current[priorKey{AreaID: areaID, SensorType: sensorType}]; ok {
		return m
	}
	return DefaultPriorModel(sensorType)
}

// CommitArea replaces the models for one area. The new map is built
// copy-on-write and swapped in atomically, leaving other areas
// untouched.
func (s *PriorStore) CommitArea(areaID string, models map[SensorType]PriorModel) {
	for {
		old := s.models.Load()
		next := make(map[priorKey]PriorModel, len(*old)+len(models))
		for k, v := range *old {
			next[k] = v
		}
		for t, m := range models {
			next[priorKey{AreaID: areaID, SensorType: t}] = m.Clamped()
		}
		if s.models.CompareAndSwap(old, &next) {
			return
		}
	}
}

// AreaModels returns the learned models for an area, keyed by sensor
// type. Types still on defaults are not included.
func (s *PriorStore) AreaModels(areaID string) map[SensorType]PriorModel {
	current := *s.models.Load()
	out := make(map[SensorType]PriorModel)
	for k, v := range current {
		if k.AreaID == areaID {
			out[k.SensorType] = v
		}
	}
	return out
}
