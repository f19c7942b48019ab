package occupancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mkoskela/presence-platform/pkg/config"
	"github.com/mkoskela/presence-platform/pkg/mqtt"
	"github.com/mkoskela/presence-platform/pkg/postgres"
	"github.com/mkoskela/presence-platform/pkg/redis"
)

// Agent is the occupancy engine: it consumes processed sensor messages,
// maintains per-area occupancy probabilities, serves threshold and
// learning actions over MQTT, and runs the scheduled prior learning.
type Agent struct {
	mqtt     mqtt.Client
	redis    redis.Client
	postgres postgres.Client
	cfg      *config.Config
	areas    *AreasConfig
	logger   *slog.Logger

	store      *PriorStore
	storage    *Storage
	history    *History
	learner    *Learner
	classifier *Classifier
	processor  *Processor
	manager    *Manager
	metrics    *Metrics

	learnMu     sync.Mutex
	learnActive map[string]bool
}

// NewAgent wires up the occupancy agent from its dependencies
func NewAgent(mqttClient mqtt.Client, redisClient redis.Client, pgClient postgres.Client, cfg *config.Config, areas *AreasConfig, logger *slog.Logger) *Agent {
	store := NewPriorStore()
	storage := NewStorage(redisClient, logger)
	history := NewHistory(pgClient, logger)
	learner := NewLearner(history, store, storage, DefaultHistoryPeriod, logger)
	classifier := NewClassifier(cfg.Latitude, cfg.Longitude)
	processor := NewProcessor(areas, classifier, logger)
	metrics := NewMetrics()

	agent := &Agent{
		mqtt:        mqttClient,
		redis:       redisClient,
		postgres:    pgClient,
		cfg:         cfg,
		areas:       areas,
		logger:      logger,
		store:       store,
		storage:     storage,
		history:     history,
		learner:     learner,
		classifier:  classifier,
		processor:   processor,
		metrics:     metrics,
		learnActive: make(map[string]bool),
	}

	agent.manager = NewManager(areas, store, storage, agent.publishSnapshot,
		time.Duration(cfg.DecayTickSec)*time.Second, logger)

	return agent
}

// Metrics returns the agent's Prometheus metric set
func (a *Agent) Metrics() *Metrics {
	return a.metrics
}

// Start connects to the brokers, restores persisted state, subscribes
// to the sensor and action topics, and blocks until ctx is cancelled.
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting occupancy agent",
		"service_name", a.cfg.ServiceName,
		"mqtt_broker", a.cfg.MQTTAddress(),
		"areas", len(a.areas.Areas))

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

	a.restorePriors(ctx)

	a.manager.Start(ctx)

	subscriptions := map[string]mqtt.MessageHandler{
		mqtt.TopicSensorAll:       a.handleSensorMessage,
		mqtt.TopicThresholdSetAll: a.handleThresholdSet,
		mqtt.TopicThresholdGetAll: a.handleThresholdGet,
		mqtt.TopicPriorsUpdateAll: a.handlePriorsUpdate,
	}
	for topic, handler := range subscriptions {
		if err := a.mqtt.Subscribe(topic, 0, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	go a.runLearnSchedule(ctx)
	go a.runRetention(ctx)

	a.logger.Info("Occupancy agent started and ready to receive messages")

	<-ctx.Done()
	a.logger.Info("Occupancy agent stopping")
	a.manager.Stop()

	return nil
}

// Stop gracefully stops the agent
func (a *Agent) Stop() error {
	a.logger.Info("Stopping occupancy agent")

	a.mqtt.Disconnect()
	if err := a.redis.Close(); err != nil {
		a.logger.Error("Error closing Redis connection", "error", err)
	}
	if err := a.postgres.Disconnect(); err != nil {
		a.logger.Error("Error closing Postgres connection", "error", err)
	}

	a.logger.Info("Occupancy agent stopped")
	return nil
}

// restorePriors loads learned models persisted by earlier runs
func (a *Agent) restorePriors(ctx context.Context) {
	for _, area := range a.areas.Areas {
		models, err := a.storage.LoadPriors(ctx, area.ID)
		if err != nil {
			a.logger.Warn("Failed to restore priors", "area", area.ID, "error", err)
			continue
		}
		if len(models) > 0 {
			a.store.CommitArea(area.ID, models)
			a.logger.Info("Restored learned priors", "area", area.ID, "types", len(models))
		}
	}
}

func (a *Agent) handleSensorMessage(msg mqtt.Message) {
	reading, err := a.processor.ProcessMessage(msg.Topic(), msg.Payload())
	if err != nil {
		a.logger.Error("Failed to process sensor message", "topic", msg.Topic(), "error", err)
		a.metrics.RecordDropped()
		return
	}

	a.metrics.RecordReading(reading.SensorType)
	a.manager.Dispatch(reading)
}

func (a *Agent) handleThresholdSet(msg mqtt.Message) {
	areaID, ok := areaFromActionTopic(msg.Topic())
	if !ok {
		return
	}

	value, err := parseThresholdPayload(msg.Payload())
	if err != nil {
		a.logger.Error("Rejected threshold update", "area", areaID, "error", err)
		return
	}

	if err := a.manager.SetThreshold(areaID, value); err != nil {
		a.logger.Error("Rejected threshold update", "area", areaID, "error", err)
		return
	}

	a.logger.Info("Threshold updated", "area", areaID, "threshold", value)
	a.publishThreshold(areaID, value)
}

func (a *Agent) handleThresholdGet(msg mqtt.Message) {
	areaID, ok := areaFromActionTopic(msg.Topic())
	if !ok {
		return
	}

	snapshot, err := a.manager.Snapshot(areaID)
	if err != nil {
		a.logger.Error("Threshold query for unknown area", "area", areaID)
		return
	}

	a.publishThreshold(areaID, snapshot.Threshold)
}

func (a *Agent) handlePriorsUpdate(msg mqtt.Message) {
	areaID, ok := areaFromActionTopic(msg.Topic())
	if !ok {
		return
	}

	area, found := a.areas.Area(areaID)
	if !found {
		a.logger.Error("Learning request for unknown area", "area", areaID)
		return
	}
	if !area.HistoricalAnalysis.Enabled() {
		a.logger.Warn("Learning request for area with historical analysis disabled", "area", areaID)
		return
	}

	// An optional payload can narrow or widen the analysis window
	var period time.Duration
	var req struct {
		HistoryDays int `json:"history_days"`
	}
	if len(msg.Payload()) > 0 {
		if err := json.Unmarshal(msg.Payload(), &req); err == nil && req.HistoryDays > 0 {
			period = time.Duration(req.HistoryDays) * 24 * time.Hour
		}
	}

	go a.learnArea(context.Background(), area, period)
}

// learnArea runs one learning pass for an area under the configured
// timeout. Concurrent requests for the same area collapse into one run.
func (a *Agent) learnArea(ctx context.Context, area *AreaConfig, period time.Duration) {
	a.learnMu.Lock()
	if a.learnActive[area.ID] {
		a.learnMu.Unlock()
		a.logger.Debug("Learning already in progress", "area", area.ID)
		return
	}
	a.learnActive[area.ID] = true
	a.learnMu.Unlock()

	defer func() {
		a.learnMu.Lock()
		delete(a.learnActive, area.ID)
		a.learnMu.Unlock()
	}()

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(a.cfg.LearnTimeoutSec)*time.Second)
	defer cancel()

	started := time.Now()
	result, err := a.learner.Run(runCtx, area, period)
	elapsed := time.Since(started)

	outcome := learnOutcome(err)
	switch outcome {
	case "ok":
	case "insufficient_history":
		a.logger.Info("Skipped learning run", "area", area.ID, "reason", err)
	case "timeout":
		a.logger.Error("Learning run timed out", "area", area.ID, "error", err)
	default:
		a.logger.Error("Learning run failed", "area", area.ID, "error", err)
	}
	a.metrics.RecordLearnRun(area.ID, outcome, elapsed)

	// Every attempt gets a result on the wire; callers must be able to
	// tell a failed run from a hung one.
	if result == nil {
		result = &LearnResult{AreaID: area.ID, Elapsed: elapsed}
	}
	result.Outcome = outcome
	if err != nil {
		result.Error = err.Error()
	}

	payload, merr := json.Marshal(result)
	if merr != nil {
		a.logger.Error("Failed to marshal learning result", "area", area.ID, "error", merr)
		return
	}
	if perr := a.mqtt.Publish(mqtt.PriorsResultTopic(area.ID), 0, false, payload); perr != nil {
		a.logger.Error("Failed to publish learning result", "area", area.ID, "error", perr)
	}
}

// learnOutcome classifies a learning run's error for metrics and the
// published result.
func learnOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}

// runLearnSchedule triggers a learning pass for every area on the
// configured interval.
func (a *Agent) runLearnSchedule(ctx context.Context) {
	interval := time.Duration(a.cfg.LearnIntervalHours) * time.Hour
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for i := range a.areas.Areas {
				if !a.areas.Areas[i].HistoricalAnalysis.Enabled() {
					continue
				}
				a.learnArea(ctx, &a.areas.Areas[i], 0)
			}
		case <-ctx.Done():
			return
		}
	}
}

// runRetention prunes timeline rows past the retention window once a
// day.
func (a *Agent) runRetention(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.HistoryRetentionDays)
			deleted, err := a.history.PruneBefore(ctx, cutoff)
			if err != nil {
				a.logger.Error("Failed to prune sensor history", "error", err)
				continue
			}
			a.logger.Info("Pruned sensor history", "deleted", deleted, "cutoff", cutoff)
		case <-ctx.Done():
			return
		}
	}
}

// publishSnapshot publishes a fresh area snapshot as a retained
// message, so late subscribers see the current state immediately.
func (a *Agent) publishSnapshot(snapshot AreaSnapshot) {
	a.metrics.RecordSnapshot(snapshot)

	payload, err := json.Marshal(snapshot)
	if err != nil {
		a.logger.Error("Failed to marshal snapshot", "area", snapshot.AreaID, "error", err)
		return
	}

	if err := a.mqtt.Publish(mqtt.OccupancyStateTopic(snapshot.AreaID), 0, true, payload); err != nil {
		a.logger.Error("Failed to publish snapshot", "area", snapshot.AreaID, "error", err)
	}
}

func (a *Agent) publishThreshold(areaID string, value int) {
	payload, err := json.Marshal(map[string]interface{}{
		"area_id":   areaID,
		"threshold": value,
	})
	if err != nil {
		return
	}
	if err := a.mqtt.Publish(mqtt.ThresholdTopic(areaID), 0, true, payload); err != nil {
		a.logger.Error("Failed to publish threshold", "area", areaID, "error", err)
	}
}

// areaFromActionTopic extracts the area id from an occupancy action
// topic: automation/occupancy/{area}/...
func areaFromActionTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != "automation" || parts[1] != "occupancy" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// parseThresholdPayload accepts either a bare integer or a JSON object
// with a threshold field.
func parseThresholdPayload(payload []byte) (int, error) {
	text := strings.TrimSpace(string(payload))
	if value, err := strconv.Atoi(text); err == nil {
		return value, nil
	}

	var msg struct {
		Threshold int `json:"threshold"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return 0, fmt.Errorf("unparseable threshold payload %q", text)
	}
	return msg.Threshold, nil
}
