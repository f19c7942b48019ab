package occupancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mkoskela/presence-platform/pkg/redis"
)

// Snapshots expire if the agent stops publishing, so consumers can
// tell a stale state from a fresh one.
const snapshotTTL = 24 * time.Hour

// Storage persists runtime occupancy state in Redis: the latest
// snapshot per area, runtime threshold overrides, and the learned
// prior models that survive restarts.
type Storage struct {
	redis  redis.Client
	logger *slog.Logger
}

// NewStorage creates a new storage layer
func NewStorage(redisClient redis.Client, logger *slog.Logger) *Storage {
	return &Storage{
		redis:  redisClient,
		logger: logger,
	}
}

// StoreSnapshot stores the latest evaluation result for an area
func (s *Storage) StoreSnapshot(ctx context.Context, snapshot AreaSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot for area %s: %w", snapshot.AreaID, err)
	}

	key := redis.AreaStateKey(snapshot.AreaID)
	if err := s.redis.Set(ctx, key, string(data), snapshotTTL); err != nil {
		return fmt.Errorf("failed to store snapshot for area %s: %w", snapshot.AreaID, err)
	}

	return nil
}

// GetSnapshot returns the latest stored snapshot for an area, or nil
// when none exists.
func (s *Storage) GetSnapshot(ctx context.Context, areaID string) (*AreaSnapshot, error) {
	data, err := s.redis.Get(ctx, redis.AreaStateKey(areaID))
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot for area %s: %w", areaID, err)
	}

	var snapshot AreaSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot for area %s: %w", areaID, err)
	}

	return &snapshot, nil
}

// StoreThreshold persists a runtime threshold override for an area
func (s *Storage) StoreThreshold(ctx context.Context, areaID string, threshold int) error {
	key := redis.AreaThresholdKey(areaID)
	if err := s.redis.Set(ctx, key, strconv.Itoa(threshold), 0); err != nil {
		return fmt.Errorf("failed to store threshold for area %s: %w", areaID, err)
	}
	return nil
}

// GetThreshold returns the stored threshold override for an area. The
// boolean is false when no override exists.
func (s *Storage) GetThreshold(ctx context.Context, areaID string) (int, bool, error) {
	data, err := s.redis.Get(ctx, redis.AreaThresholdKey(areaID))
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get threshold for area %s: %w", areaID, err)
	}

	threshold, err := strconv.Atoi(data)
	if err != nil {
		return 0, false, fmt.Errorf("invalid stored threshold for area %s: %w", areaID, err)
	}

	return threshold, true, nil
}

// StorePriors persists learned prior models for an area
func (s *Storage) StorePriors(ctx context.Context, areaID string, models map[SensorType]PriorModel) error {
	for sensorType, model := range models {
		data, err := json.Marshal(model)
		if err != nil {
			return fmt.Errorf("failed to marshal priors for %s/%s: %w", areaID, sensorType, err)
		}

		key := redis.AreaPriorsKey(areaID, string(sensorType))
		if err := s.redis.Set(ctx, key, string(data), 0); err != nil {
			return fmt.Errorf("failed to store priors for %s/%s: %w", areaID, sensorType, err)
		}
	}

	return nil
}

// LoadPriors returns the learned prior models stored for an area.
// Types with no stored model are absent from the result.
func (s *Storage) LoadPriors(ctx context.Context, areaID string) (map[SensorType]PriorModel, error) {
	models := make(map[SensorType]PriorModel)

	for _, sensorType := range KnownSensorTypes {
		data, err := s.redis.Get(ctx, redis.AreaPriorsKey(areaID, string(sensorType)))
		if err != nil {
			if errors.Is(err, redis.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load priors for %s/%s: %w", areaID, sensorType, err)
		}

		var model PriorModel
		if err := json.Unmarshal([]byte(data), &model); err != nil {
			s.logger.Warn("Discarding unreadable stored priors",
				"area", areaID, "sensor_type", sensorType, "error", err)
			continue
		}

		models[sensorType] = model.Clamped()
	}

	return models, nil
}
