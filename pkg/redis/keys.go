package redis

import "fmt"

// Key construction helpers for the occupancy schema

// SensorReadingKey returns the key for recent sensor readings (sorted set by timestamp)
// Pattern: sensor:{sensor_type}:{sensor_id}
func SensorReadingKey(sensorType, sensorID string) string {
	return fmt.Sprintf("sensor:%s:%s", sensorType, sensorID)
}

// SensorMetaKey returns the key for sensor metadata (hash)
// Pattern: meta:{sensor_type}:{sensor_id}
func SensorMetaKey(sensorType, sensorID string) string {
	return fmt.Sprintf("meta:%s:%s", sensorType, sensorID)
}

// AreaStateKey returns the key for the latest area snapshot (JSON)
// Pattern: occupancy:state:{area}
func AreaStateKey(area string) string {
	return fmt.Sprintf("occupancy:state:%s", area)
}

// AreaThresholdKey returns the key for the runtime threshold override (string)
// Pattern: occupancy:threshold:{area}
func AreaThresholdKey(area string) string {
	return fmt.Sprintf("occupancy:threshold:%s", area)
}

// AreaPriorsKey returns the key for a learned prior model (JSON)
// Pattern: occupancy:priors:{area}:{sensor_type}
func AreaPriorsKey(area, sensorType string) string {
	return fmt.Sprintf("occupancy:priors:%s:%s", area, sensorType)
}
