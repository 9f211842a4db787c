package mqtt

import "strings"

// SensorType defines the type of sensor for Home Assistant
type SensorType string

const (
	SensorTypeVoltage SensorType = "voltage"
)

// SensorConfig contains sensor configuration for Home Assistant Discovery
type SensorConfig struct {
	// Basic parameters
	SensorID   string     // Unique sensor ID
	Name       string     // Display name
	SensorType SensorType // Sensor type

	Unit string // mV

	// StateTopic is used verbatim; telemetry topics are absolute
	StateTopic string

	DeviceClass string // voltage
	StateClass  string // measurement

	// Device grouping
	DeviceInfo *DeviceInfo
}

// DeviceInfo contains device information for grouping in Home Assistant
type DeviceInfo struct {
	Identifiers  []string
	Name         string
	Model        string
	Manufacturer string
}

// VoltageSensor describes one gas sensor channel published in millivolts.
func VoltageSensor(sensorID, name, stateTopic string, device *DeviceInfo) *SensorConfig {
	return &SensorConfig{
		SensorID:    SanitizeID(sensorID),
		Name:        name,
		SensorType:  SensorTypeVoltage,
		Unit:        "mV",
		StateTopic:  stateTopic,
		DeviceClass: "voltage",
		StateClass:  "measurement",
		DeviceInfo:  device,
	}
}

// SanitizeID turns a display name into a discovery-safe identifier.
func SanitizeID(name string) string {
	result := strings.ToLower(name)
	result = strings.ReplaceAll(result, " ", "_")
	result = strings.ReplaceAll(result, "/", "_")
	result = strings.ReplaceAll(result, ".", "_")
	return result
}
