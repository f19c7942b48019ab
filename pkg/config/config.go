package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// Config holds the configuration for a presence-platform agent
type Config struct {
	// MQTT configuration
	MQTTBroker   string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTClientID string

	// Redis configuration
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Postgres configuration
	PostgresHost               string
	PostgresPort               int
	PostgresUser               string
	PostgresPassword           string
	PostgresDB                 string
	PostgresSSLMode            string
	PostgresMaxConnections     int
	PostgresMaxIdleConnections int
	PostgresConnMaxLifetime    time.Duration

	// Service configuration
	ServiceName string
	HealthPort  int
	LogLevel    string

	// Recorder agent configuration
	SensorTopics     []string
	MaxSensorHistory int

	// Occupancy agent configuration
	AreasConfigPath      string
	DecayTickSec         int
	LearnIntervalHours   int
	LearnTimeoutSec      int
	HistoryRetentionDays int

	// Location for the daylight model
	Latitude  float64
	Longitude float64
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBroker:    "localhost",
		MQTTPort:      1883,
		MQTTUser:      "",
		MQTTPassword:  "",
		MQTTClientID:  "",
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		PostgresHost:               "localhost",
		PostgresPort:               5432,
		PostgresUser:               "presence",
		PostgresPassword:           "",
		PostgresDB:                 "presence",
		PostgresSSLMode:            "disable",
		PostgresMaxConnections:     10,
		PostgresMaxIdleConnections: 5,
		PostgresConnMaxLifetime:    30 * time.Minute,

		ServiceName: "presence-agent",
		HealthPort:  8080,
		LogLevel:    "info",

		SensorTopics:     []string{"automation/raw/+/+"},
		MaxSensorHistory: 1000,

		AreasConfigPath:      "areas.yaml",
		DecayTickSec:         10,
		LearnIntervalHours:   6,
		LearnTimeoutSec:      120,
		HistoryRetentionDays: 30,

		Latitude:  60.1699,
		Longitude: 24.9384,
	}
}

// LoadFromEnv loads configuration from environment variables with PRESENCE_ prefix
func (c *Config) LoadFromEnv() {
	// MQTT configuration
	if v := os.Getenv("PRESENCE_MQTT_BROKER"); v != "" {
		c.MQTTBroker = v
	}
	if v := os.Getenv("PRESENCE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.MQTTPort = port
		}
	}
	if v := os.Getenv("PRESENCE_MQTT_USER"); v != "" {
		c.MQTTUser = v
	}
	if v := os.Getenv("PRESENCE_MQTT_PASSWORD"); v != "" {
		c.MQTTPassword = v
	}
	if v := os.Getenv("PRESENCE_MQTT_CLIENT_ID"); v != "" {
		c.MQTTClientID = v
	}

	// Redis configuration
	if v := os.Getenv("PRESENCE_REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := os.Getenv("PRESENCE_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.RedisPort = port
		}
	}
	if v := os.Getenv("PRESENCE_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("PRESENCE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.RedisDB = db
		}
	}

	// Postgres configuration
	if v := os.Getenv("PRESENCE_POSTGRES_HOST"); v != "" {
		c.PostgresHost = v
	}
	if v := os.Getenv("PRESENCE_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.PostgresPort = port
		}
	}
	if v := os.Getenv("PRESENCE_POSTGRES_USER"); v != "" {
		c.PostgresUser = v
	}
	if v := os.Getenv("PRESENCE_POSTGRES_PASSWORD"); v != "" {
		c.PostgresPassword = v
	}
	if v := os.Getenv("PRESENCE_POSTGRES_DB"); v != "" {
		c.PostgresDB = v
	}
	if v := os.Getenv("PRESENCE_POSTGRES_SSLMODE"); v != "" {
		c.PostgresSSLMode = v
	}

	// Service configuration
	if v := os.Getenv("PRESENCE_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("PRESENCE_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HealthPort = port
		}
	}
	if v := os.Getenv("PRESENCE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	// Recorder agent configuration
	if v := os.Getenv("PRESENCE_MAX_SENSOR_HISTORY"); v != "" {
		if max, err := strconv.Atoi(v); err == nil {
			c.MaxSensorHistory = max
		}
	}

	// Occupancy agent configuration
	if v := os.Getenv("PRESENCE_AREAS_CONFIG"); v != "" {
		c.AreasConfigPath = v
	}
	if v := os.Getenv("PRESENCE_DECAY_TICK_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			c.DecayTickSec = sec
		}
	}
	if v := os.Getenv("PRESENCE_LEARN_INTERVAL_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			c.LearnIntervalHours = hours
		}
	}
	if v := os.Getenv("PRESENCE_LEARN_TIMEOUT_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			c.LearnTimeoutSec = sec
		}
	}
	if v := os.Getenv("PRESENCE_HISTORY_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			c.HistoryRetentionDays = days
		}
	}

	// Location
	if v := os.Getenv("PRESENCE_LATITUDE"); v != "" {
		if lat, err := strconv.ParseFloat(v, 64); err == nil {
			c.Latitude = lat
		}
	}
	if v := os.Getenv("PRESENCE_LONGITUDE"); v != "" {
		if lon, err := strconv.ParseFloat(v, 64); err == nil {
			c.Longitude = lon
		}
	}
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags() {
	// MQTT flags
	pflag.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	pflag.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	pflag.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	pflag.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	pflag.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Redis flags
	pflag.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname")
	pflag.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	pflag.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	pflag.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")

	// Postgres flags
	pflag.StringVar(&c.PostgresHost, "postgres-host", c.PostgresHost, "Postgres hostname")
	pflag.IntVar(&c.PostgresPort, "postgres-port", c.PostgresPort, "Postgres port")
	pflag.StringVar(&c.PostgresUser, "postgres-user", c.PostgresUser, "Postgres username")
	pflag.StringVar(&c.PostgresPassword, "postgres-password", c.PostgresPassword, "Postgres password")
	pflag.StringVar(&c.PostgresDB, "postgres-db", c.PostgresDB, "Postgres database name")
	pflag.StringVar(&c.PostgresSSLMode, "postgres-sslmode", c.PostgresSSLMode, "Postgres SSL mode")

	// Service flags
	pflag.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	pflag.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	pflag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")

	// Recorder agent flags
	pflag.IntVar(&c.MaxSensorHistory, "max-sensor-history", c.MaxSensorHistory, "Maximum sensor history entries per key")

	// Occupancy agent flags
	pflag.StringVar(&c.AreasConfigPath, "areas-config", c.AreasConfigPath, "Path to the area configuration YAML file")
	pflag.IntVar(&c.DecayTickSec, "decay-tick", c.DecayTickSec, "Decay recomputation tick interval in seconds")
	pflag.IntVar(&c.LearnIntervalHours, "learn-interval", c.LearnIntervalHours, "Scheduled prior learning interval in hours")
	pflag.IntVar(&c.LearnTimeoutSec, "learn-timeout", c.LearnTimeoutSec, "Prior learning run timeout in seconds")
	pflag.IntVar(&c.HistoryRetentionDays, "history-retention-days", c.HistoryRetentionDays, "Days of sensor state history to retain")

	// Location flags
	pflag.Float64Var(&c.Latitude, "latitude", c.Latitude, "Latitude for the daylight model")
	pflag.Float64Var(&c.Longitude, "longitude", c.Longitude, "Longitude for the daylight model")

	pflag.Parse()
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT broker is required")
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("Redis host is required")
	}
	if c.RedisPort <= 0 || c.RedisPort > 65535 {
		return fmt.Errorf("Redis port must be between 1 and 65535")
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("Postgres host is required")
	}
	if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
		return fmt.Errorf("Postgres port must be between 1 and 65535")
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}
	if c.DecayTickSec <= 0 {
		return fmt.Errorf("Decay tick must be positive")
	}
	if c.LearnTimeoutSec <= 0 {
		return fmt.Errorf("Learn timeout must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresConnectionString returns the Postgres connection string
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode)
}
