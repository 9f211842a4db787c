package mqtt

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/veftodii/air-quality-monitor/internal/storage"
)

const discoveryNamespace = "mqtt"

// Publisher is the part of Session used for discovery.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) (uint16, error)
}

// DiscoveryManager manages Home Assistant MQTT Discovery
type DiscoveryManager struct {
	publisher Publisher
	log       logrus.FieldLogger
	storage   storage.Storage
	nodeID    string

	// Cache of pre-generated discovery configs
	discoveryConfigs map[string][]byte
	discoveryMu      sync.RWMutex

	// Used only when there is no storage
	lastSensorCount int
	published       bool
	mu              sync.Mutex
}

// NewDiscoveryManager creates a new DiscoveryManager instance
func NewDiscoveryManager(p Publisher, log logrus.FieldLogger, store storage.Storage, nodeID string) *DiscoveryManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DiscoveryManager{
		publisher:        p,
		log:              log.WithField("component", "discovery"),
		storage:          store,
		nodeID:           nodeID,
		discoveryConfigs: make(map[string][]byte),
	}
}

// ShouldRepublishDiscovery reports whether discovery configs must be sent.
// The published flag and the sensor count it was set for are both stored, so
// a restart with the same sensor set does not republish.
func (d *DiscoveryManager) ShouldRepublishDiscovery(currentSensorCount int) bool {
	published, count := d.lastPublished()
	return !published || currentSensorCount != count
}

func (d *DiscoveryManager) lastPublished() (bool, int) {
	if d.storage == nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.published, d.lastSensorCount
	}

	// Missing key means first run
	published, err := d.storage.GetBool(discoveryNamespace, d.nodeID+".published")
	if err != nil || !published {
		return false, 0
	}
	count, err := d.storage.GetInt(discoveryNamespace, d.nodeID+".sensors")
	if err != nil {
		return false, 0
	}
	return true, count
}

// PublishDiscoveryConfig publishes discovery config for a single sensor
func (d *DiscoveryManager) PublishDiscoveryConfig(cfg *SensorConfig) error {
	if cfg == nil {
		return nil
	}

	configJSON, err := d.generateDiscoveryConfig(cfg)
	if err != nil {
		return err
	}

	// Topic: homeassistant/sensor/{node_id}/{sensor_id}/config
	topic := "homeassistant/sensor/" + d.nodeID + "/" + cfg.SensorID + "/config"
	_, err = d.publisher.Publish(topic, 1, true, configJSON)
	return err
}

// PublishMultipleDiscoveryConfigs publishes discovery configs for multiple sensors.
// The set is marked published only if at least one config went out.
func (d *DiscoveryManager) PublishMultipleDiscoveryConfigs(configs []*SensorConfig) error {
	sent := 0
	for _, cfg := range configs {
		if err := d.PublishDiscoveryConfig(cfg); err != nil {
			d.log.WithError(err).Warnf("Failed to publish discovery for %s", cfg.SensorID)
			continue
		}
		sent++
	}
	if sent == 0 {
		d.log.Warnf("No discovery config published out of %d sensors", len(configs))
		return nil
	}

	d.markDiscoveryPublished(len(configs))
	d.log.Infof("Published MQTT discovery config for %d of %d sensors", sent, len(configs))
	return nil
}

// generateDiscoveryConfig generates and caches Home Assistant discovery config
func (d *DiscoveryManager) generateDiscoveryConfig(cfg *SensorConfig) ([]byte, error) {
	d.discoveryMu.RLock()
	if config, ok := d.discoveryConfigs[cfg.SensorID]; ok {
		d.discoveryMu.RUnlock()
		return config, nil
	}
	d.discoveryMu.RUnlock()

	discoveryConfig := map[string]interface{}{
		"name":                cfg.Name,
		"unique_id":           d.nodeID + "_" + cfg.SensorID,
		"state_topic":         cfg.StateTopic,
		"unit_of_measurement": cfg.Unit,
	}
	if cfg.DeviceClass != "" {
		discoveryConfig["device_class"] = cfg.DeviceClass
	}
	if cfg.StateClass != "" {
		discoveryConfig["state_class"] = cfg.StateClass
	}
	if cfg.DeviceInfo != nil {
		discoveryConfig["device"] = map[string]interface{}{
			"identifiers":  cfg.DeviceInfo.Identifiers,
			"name":         cfg.DeviceInfo.Name,
			"model":        cfg.DeviceInfo.Model,
			"manufacturer": cfg.DeviceInfo.Manufacturer,
		}
	}

	configJSON, err := json.Marshal(discoveryConfig)
	if err != nil {
		return nil, err
	}

	d.discoveryMu.Lock()
	d.discoveryConfigs[cfg.SensorID] = configJSON
	d.discoveryMu.Unlock()
	return configJSON, nil
}

func (d *DiscoveryManager) markDiscoveryPublished(sensorCount int) {
	if d.storage == nil {
		d.mu.Lock()
		d.published, d.lastSensorCount = true, sensorCount
		d.mu.Unlock()
		return
	}
	if err := d.storage.SetInt(discoveryNamespace, d.nodeID+".sensors", sensorCount); err != nil {
		d.log.WithError(err).Warn("Failed to store discovery sensor count")
		return
	}
	if err := d.storage.SetBool(discoveryNamespace, d.nodeID+".published", true); err != nil {
		d.log.WithError(err).Warn("Failed to mark discovery as published")
	}
}
