package recorder

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mkoskela/presence-platform/internal/occupancy"
)

// RawReading is a normalized raw sensor observation.
type RawReading struct {
	SensorID   string               `json:"sensor_id"`
	SensorType occupancy.SensorType `json:"sensor_type"`
	AreaID     string               `json:"area_id,omitempty"`
	State      string               `json:"state,omitempty"`
	Value      *float64             `json:"value,omitempty"`
	Active     bool                 `json:"active"`
	Available  bool                 `json:"available"`
	Timestamp  time.Time            `json:"timestamp"`
}

// rawPayload is the wire format on the raw sensor topics
type rawPayload struct {
	State     string   `json:"state,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	AreaID    string   `json:"area_id,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// Processor normalizes raw sensor messages into readings ready for
// storage and republication.
type Processor struct {
	areas      *occupancy.AreasConfig
	classifier *occupancy.Classifier
	logger     *slog.Logger
}

// NewProcessor creates a raw message processor. The areas config may be
// nil, in which case area resolution relies on the payload alone.
func NewProcessor(areas *occupancy.AreasConfig, classifier *occupancy.Classifier, logger *slog.Logger) *Processor {
	return &Processor{
		areas:      areas,
		classifier: classifier,
		logger:     logger,
	}
}

// ParseMessage parses a raw sensor message. The topic carries sensor
// type and id: automation/raw/{type}/{id}.
func (p *Processor) ParseMessage(topic string, payload []byte) (*RawReading, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "automation" || parts[1] != "raw" {
		return nil, fmt.Errorf("unexpected raw sensor topic format: %s", topic)
	}
	if parts[2] == "" || parts[3] == "" {
		return nil, fmt.Errorf("empty sensor type or id in topic: %s", topic)
	}
	sensorType := occupancy.SensorType(parts[2])
	sensorID := parts[3]

	var msg rawPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse payload for %s: %w", sensorID, err)
	}

	timestamp := time.Now().UTC()
	if msg.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, msg.Timestamp); err == nil {
			timestamp = parsed.UTC()
		}
	}

	reading := &RawReading{
		SensorID:   sensorID,
		SensorType: sensorType,
		AreaID:     msg.AreaID,
		State:      msg.State,
		Value:      msg.Value,
		Timestamp:  timestamp,
	}
	if reading.AreaID == "" && p.areas != nil {
		if areaCfg, _, ok := p.areas.SensorArea(sensorID); ok {
			reading.AreaID = areaCfg.ID
		}
	}

	if msg.Value != nil {
		reading.Active, reading.Available = p.classifier.ResolveNumeric(
			sensorID, *msg.Value, timestamp, isIlluminance(sensorID))
	} else {
		reading.Active, reading.Available = occupancy.ResolveState(sensorType, msg.State)
	}

	return reading, nil
}

func isIlluminance(sensorID string) bool {
	id := strings.ToLower(sensorID)
	return strings.Contains(id, "illuminance") || strings.Contains(id, "lux")
}
