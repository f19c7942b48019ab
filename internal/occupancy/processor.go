package occupancy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// sensorPayload is the wire format published on the processed sensor
// topics. Binary sensors carry a state string, environmental sensors a
// numeric value.
type sensorPayload struct {
	State     string   `json:"state,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	AreaID    string   `json:"area_id,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// Processor turns incoming sensor messages into evidence readings.
type Processor struct {
	cfg        *AreasConfig
	classifier *Classifier
	logger     *slog.Logger
}

// NewProcessor creates a message processor
func NewProcessor(cfg *AreasConfig, classifier *Classifier, logger *slog.Logger) *Processor {
	return &Processor{
		cfg:        cfg,
		classifier: classifier,
		logger:     logger,
	}
}

// ProcessMessage parses a sensor message into a Reading. The topic
// carries the sensor type and id: automation/sensor/{type}/{id}.
func (p *Processor) ProcessMessage(topic string, payload []byte) (Reading, error) {
	sensorType, sensorID, err := parseSensorTopic(topic)
	if err != nil {
		return Reading{}, err
	}

	var msg sensorPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Reading{}, fmt.Errorf("failed to parse payload for %s: %w", sensorID, err)
	}

	timestamp := time.Now().UTC()
	if msg.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, msg.Timestamp); err == nil {
			timestamp = parsed.UTC()
		} else {
			p.logger.Debug("Ignoring unparseable timestamp",
				"sensor", sensorID, "timestamp", msg.Timestamp)
		}
	}

	reading := Reading{
		SensorID:   sensorID,
		SensorType: sensorType,
		AreaID:     msg.AreaID,
		Timestamp:  timestamp,
	}
	areaCfg, sensorCfg, configured := p.cfg.SensorArea(sensorID)
	if reading.AreaID == "" && configured {
		reading.AreaID = areaCfg.ID
	}

	switch {
	case msg.Value != nil:
		// A configured predicate wins over the rolling baseline
		if configured {
			if active, ok := sensorCfg.Predicate(*msg.Value); ok {
				reading.Active, reading.Available = active, true
				break
			}
		}
		reading.Active, reading.Available = p.classifier.ResolveNumeric(
			sensorID, *msg.Value, timestamp, isIlluminance(sensorID))
	default:
		reading.Active, reading.Available = ResolveState(sensorType, msg.State)
	}

	return reading, nil
}

// parseSensorTopic extracts sensor type and id from a processed sensor
// topic.
func parseSensorTopic(topic string) (SensorType, string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "automation" || parts[1] != "sensor" {
		return "", "", fmt.Errorf("unexpected sensor topic format: %s", topic)
	}
	if parts[2] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("empty sensor type or id in topic: %s", topic)
	}
	return SensorType(parts[2]), parts[3], nil
}

func isIlluminance(sensorID string) bool {
	id := strings.ToLower(sensorID)
	return strings.Contains(id, "illuminance") || strings.Contains(id, "lux")
}
