package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mkoskela/presence-platform/internal/occupancy"
	"github.com/mkoskela/presence-platform/pkg/config"
	"github.com/mkoskela/presence-platform/pkg/mqtt"
	"github.com/mkoskela/presence-platform/pkg/postgres"
	"github.com/mkoskela/presence-platform/pkg/redis"
)

// Agent is the recorder: it consumes raw sensor messages, normalizes
// them, stores them in Redis and the Postgres timeline, and republishes
// them on the processed sensor topics for the occupancy engine.
type Agent struct {
	mqtt      mqtt.Client
	redis     redis.Client
	postgres  postgres.Client
	processor *Processor
	storage   *Storage
	history   *occupancy.History
	cfg       *config.Config
	logger    *slog.Logger
}

// NewAgent creates a new recorder agent with the given dependencies.
// The areas config is optional and only used to resolve areas for
// sensors whose payloads do not carry one.
func NewAgent(mqttClient mqtt.Client, redisClient redis.Client, pgClient postgres.Client, cfg *config.Config, areas *occupancy.AreasConfig, logger *slog.Logger) *Agent {
	classifier := occupancy.NewClassifier(cfg.Latitude, cfg.Longitude)
	processor := NewProcessor(areas, classifier, logger)
	history := occupancy.NewHistory(pgClient, logger)
	storage := NewStorage(redisClient, history, logger)

	return &Agent{
		mqtt:      mqttClient,
		redis:     redisClient,
		postgres:  pgClient,
		processor: processor,
		storage:   storage,
		history:   history,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start starts the recorder agent and begins processing raw messages
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting recorder agent",
		"service_name", a.cfg.ServiceName,
		"mqtt_broker", a.cfg.MQTTAddress())

	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}
	if err := a.redis.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	if err := a.postgres.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if err := a.history.EnsureSchema(ctx); err != nil {
		return err
	}

	for _, topic := range a.cfg.SensorTopics {
		if err := a.mqtt.Subscribe(topic, 0, a.handleMessage); err != nil {
			a.logger.Error("Failed to subscribe to topic", "topic", topic, "error", err)
			continue
		}
	}

	a.logger.Info("Recorder agent started and ready to receive messages",
		"subscribed_topics", strings.Join(a.cfg.SensorTopics, ", "))

	<-ctx.Done()
	a.logger.Info("Recorder agent stopping")

	return nil
}

// Stop gracefully stops the recorder agent
func (a *Agent) Stop() error {
	a.logger.Info("Stopping recorder agent")

	a.mqtt.Disconnect()
	if err := a.redis.Close(); err != nil {
		a.logger.Error("Error closing Redis connection", "error", err)
	}
	if err := a.postgres.Disconnect(); err != nil {
		a.logger.Error("Error closing Postgres connection", "error", err)
	}

	a.logger.Info("Recorder agent stopped")
	return nil
}

// handleMessage processes one raw sensor message
func (a *Agent) handleMessage(msg mqtt.Message) {
	topic := msg.Topic()
	a.logger.Debug("Received raw message", "topic", topic, "size", len(msg.Payload()))

	reading, err := a.processor.ParseMessage(topic, msg.Payload())
	if err != nil {
		a.logger.Error("Failed to parse raw message", "topic", topic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.storage.StoreReading(ctx, reading); err != nil {
		a.logger.Error("Failed to store reading",
			"sensor", reading.SensorID, "error", err)
		// Republish anyway, the engine can still act on the reading
	}
	if err := a.storage.RecordTimeline(ctx, reading); err != nil {
		a.logger.Error("Failed to record timeline entry",
			"sensor", reading.SensorID, "error", err)
	}

	if err := a.republish(reading); err != nil {
		a.logger.Error("Failed to republish reading",
			"sensor", reading.SensorID, "error", err)
	}
}

// republish forwards the normalized reading on the processed sensor
// topic the occupancy engine listens on.
func (a *Agent) republish(r *RawReading) error {
	payload := map[string]interface{}{
		"area_id":   r.AreaID,
		"timestamp": r.Timestamp.Format(time.RFC3339Nano),
	}
	if r.Value != nil {
		payload["value"] = *r.Value
	} else {
		payload["state"] = r.State
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal processed payload: %w", err)
	}

	topic := mqtt.ProcessedSensorTopic(string(r.SensorType), r.SensorID)
	return a.mqtt.Publish(topic, 0, false, data)
}
