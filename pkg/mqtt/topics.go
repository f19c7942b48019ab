package mqtt

import "fmt"

// Topic constants for the sensor and occupancy message flow
const (
	// Raw sensor data topics (recorder input)
	TopicRawSensors = "automation/raw/+/+"

	// Processed sensor topics (engine input)
	TopicSensorAll = "automation/sensor/+/+"

	// Occupancy action topics (per-area wildcards for subscription)
	TopicPriorsUpdateAll = "automation/occupancy/+/priors/update"
	TopicThresholdSetAll = "automation/occupancy/+/threshold/set"
	TopicThresholdGetAll = "automation/occupancy/+/threshold/get"
)

// RawSensorTopic constructs a raw sensor topic for a specific sensor type and id
// Pattern: automation/raw/{sensor_type}/{sensor_id}
func RawSensorTopic(sensorType, sensorID string) string {
	return fmt.Sprintf("automation/raw/%s/%s", sensorType, sensorID)
}

// ProcessedSensorTopic constructs a processed sensor topic for a specific sensor type and id
// Pattern: automation/sensor/{sensor_type}/{sensor_id}
// This is the output topic after the recorder stores a normalized reading
func ProcessedSensorTopic(sensorType, sensorID string) string {
	return fmt.Sprintf("automation/sensor/%s/%s", sensorType, sensorID)
}

// OccupancyStateTopic constructs the retained area snapshot topic
// Pattern: automation/occupancy/{area}
func OccupancyStateTopic(area string) string {
	return fmt.Sprintf("automation/occupancy/%s", area)
}

// PriorsUpdateTopic constructs the action topic that triggers a learning run
func PriorsUpdateTopic(area string) string {
	return fmt.Sprintf("automation/occupancy/%s/priors/update", area)
}

// PriorsResultTopic constructs the topic learning results are reported on
func PriorsResultTopic(area string) string {
	return fmt.Sprintf("automation/occupancy/%s/priors/result", area)
}

// ThresholdSetTopic constructs the action topic for runtime threshold changes
func ThresholdSetTopic(area string) string {
	return fmt.Sprintf("automation/occupancy/%s/threshold/set", area)
}

// ThresholdGetTopic constructs the action topic for threshold queries
func ThresholdGetTopic(area string) string {
	return fmt.Sprintf("automation/occupancy/%s/threshold/get", area)
}

// ThresholdTopic constructs the topic the current threshold is reported on
func ThresholdTopic(area string) string {
	return fmt.Sprintf("automation/occupancy/%s/threshold", area)
}
