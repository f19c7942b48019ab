package occupancy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkoskela/presence-platform/pkg/postgres"
)

const sensorStatesSchema = `
CREATE TABLE IF NOT EXISTS sensor_states (
	id          BIGSERIAL PRIMARY KEY,
	sensor_id   TEXT        NOT NULL,
	sensor_type TEXT        NOT NULL,
	area_id     TEXT        NOT NULL,
	active      BOOLEAN     NOT NULL,
	available   BOOLEAN     NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sensor_states_area_time
	ON sensor_states (area_id, observed_at);
CREATE INDEX IF NOT EXISTS idx_sensor_states_sensor_time
	ON sensor_states (sensor_id, observed_at);
`

// StateRow is one recorded sensor observation from the timeline.
type StateRow struct {
	SensorID   string
	SensorType SensorType
	AreaID     string
	Active     bool
	Available  bool
	ObservedAt time.Time
}

// History is the recorded sensor timeline in Postgres. The recorder
// agent appends to it; the learner reads it back.
type History struct {
	postgres postgres.Client
	logger   *slog.Logger
}

// NewHistory creates a history reader
func NewHistory(pgClient postgres.Client, logger *slog.Logger) *History {
	return &History{
		postgres: pgClient,
		logger:   logger,
	}
}

// EnsureSchema creates the timeline table if it does not exist yet.
// Both agents run this on startup so either can come up first.
func (h *History) EnsureSchema(ctx context.Context) error {
	if _, err := h.postgres.Exec(ctx, sensorStatesSchema); err != nil {
		return fmt.Errorf("failed to ensure sensor_states schema: %w", err)
	}
	return nil
}

// InsertState appends one observation to the timeline
func (h *History) InsertState(ctx context.Context, row StateRow) error {
	_, err := h.postgres.Exec(ctx, `
		INSERT INTO sensor_states (sensor_id, sensor_type, area_id, active, available, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		row.SensorID, string(row.SensorType), row.AreaID, row.Active, row.Available, row.ObservedAt)
	if err != nil {
		return fmt.Errorf("failed to insert sensor state for %s: %w", row.SensorID, err)
	}
	return nil
}

// StateRows returns every recorded observation for an area in the
// given window, ordered per sensor by time so callers can rebuild
// state intervals by walking the rows.
func (h *History) StateRows(ctx context.Context, areaID string, from, to time.Time) ([]StateRow, error) {
	rows, err := h.postgres.Query(ctx, `
		SELECT sensor_id, sensor_type, active, available, observed_at
		FROM sensor_states
		WHERE area_id = $1 AND observed_at >= $2 AND observed_at < $3
		ORDER BY sensor_id, observed_at`,
		areaID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor states for area %s: %w", areaID, err)
	}
	defer rows.Close()

	var result []StateRow
	for rows.Next() {
		var row StateRow
		var sensorType string
		if err := rows.Scan(&row.SensorID, &sensorType, &row.Active, &row.Available, &row.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sensor state row: %w", err)
		}
		row.SensorType = SensorType(sensorType)
		row.AreaID = areaID
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sensor state rows: %w", err)
	}

	return result, nil
}

// PruneBefore deletes timeline rows older than the cutoff
func (h *History) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := h.postgres.Exec(ctx,
		`DELETE FROM sensor_states WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sensor states: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return deleted, nil
}
