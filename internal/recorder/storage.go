package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mkoskela/presence-platform/internal/occupancy"
	"github.com/mkoskela/presence-platform/pkg/redis"
)

// Recent readings in Redis are only a working buffer; the durable copy
// lives in Postgres.
const readingBufferWindow = 24 * time.Hour

// Storage persists normalized readings: a rolling buffer of recent
// readings plus sensor metadata in Redis, and the durable timeline in
// Postgres for the learner.
type Storage struct {
	redis   redis.Client
	history *occupancy.History
	logger  *slog.Logger
}

// NewStorage creates a recorder storage layer
func NewStorage(redisClient redis.Client, history *occupancy.History, logger *slog.Logger) *Storage {
	return &Storage{
		redis:   redisClient,
		history: history,
		logger:  logger,
	}
}

// StoreReading stores one normalized reading in the Redis buffer and
// updates the sensor's metadata hash.
func (s *Storage) StoreReading(ctx context.Context, r *RawReading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading for %s: %w", r.SensorID, err)
	}

	key := redis.SensorReadingKey(string(r.SensorType), r.SensorID)
	score := float64(r.Timestamp.UnixMilli())

	if err := s.redis.ZAdd(ctx, key, score, string(data)); err != nil {
		return fmt.Errorf("failed to store reading for %s: %w", r.SensorID, err)
	}

	// Trim entries that fell out of the buffer window
	cutoff := r.Timestamp.Add(-readingBufferWindow).UnixMilli()
	if err := s.redis.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10)); err != nil {
		s.logger.Warn("Failed to trim reading buffer", "sensor", r.SensorID, "error", err)
	}
	if err := s.redis.Expire(ctx, key, readingBufferWindow*2); err != nil {
		s.logger.Warn("Failed to set buffer TTL", "sensor", r.SensorID, "error", err)
	}

	return s.storeMeta(ctx, r)
}

func (s *Storage) storeMeta(ctx context.Context, r *RawReading) error {
	key := redis.SensorMetaKey(string(r.SensorType), r.SensorID)

	fields := map[string]string{
		"sensor_type": string(r.SensorType),
		"area_id":     r.AreaID,
		"state":       r.State,
		"active":      strconv.FormatBool(r.Active),
		"available":   strconv.FormatBool(r.Available),
		"last_seen":   r.Timestamp.Format(time.RFC3339Nano),
	}
	if r.Value != nil {
		fields["value"] = strconv.FormatFloat(*r.Value, 'f', -1, 64)
	}

	for field, value := range fields {
		if err := s.redis.HSet(ctx, key, field, value); err != nil {
			return fmt.Errorf("failed to store metadata for %s: %w", r.SensorID, err)
		}
	}

	return nil
}

// RecordTimeline appends the reading to the durable Postgres timeline.
// Readings without a resolved area are skipped, the learner has no use
// for them.
func (s *Storage) RecordTimeline(ctx context.Context, r *RawReading) error {
	if r.AreaID == "" {
		return nil
	}

	return s.history.InsertState(ctx, occupancy.StateRow{
		SensorID:   r.SensorID,
		SensorType: r.SensorType,
		AreaID:     r.AreaID,
		Active:     r.Active,
		Available:  r.Available,
		ObservedAt: r.Timestamp,
	})
}
