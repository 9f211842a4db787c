package main

import (
	"fmt"
	"net/netip"
	"runtime"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/veftodii/air-quality-monitor/internal/mqtt"
	"github.com/veftodii/air-quality-monitor/internal/storage"
	"github.com/veftodii/air-quality-monitor/internal/wifi"
)

const (
	nsSystem = "system"
	nsWiFi   = "wifi"
)

// stationRecord is the persisted view of the last join. The passphrase
// stays in the configuration file only.
type stationRecord struct {
	SSID     string `json:"ssid"`
	AuthMode string `json:"auth_mode"`
	Addr     string `json:"addr"`
}

func recordBoot(store storage.Storage) (int, error) {
	n, err := store.Increment(nsSystem, "boot_count")
	if err != nil {
		return 0, errors.Wrap(err, "failed to update boot count")
	}
	return n, nil
}

func recordStation(store storage.Storage, cfg wifi.StationConfig, addr netip.Addr) error {
	return store.SetJSON(nsWiFi, "last_station", stationRecord{
		SSID:     cfg.SSID,
		AuthMode: cfg.AuthMode.String(),
		Addr:     addr.String(),
	})
}

// heapSummary reports heap spans held but not in use, and the total
// reserved from the OS.
func heapSummary(mem *runtime.MemStats) string {
	return fmt.Sprintf("Idle heap: %d bytes (heap reserved %d bytes)", mem.HeapIdle, mem.HeapSys)
}

// fatalJoinError returns the error that stops startup, or nil when the
// session and the loop should run without a network join.
func fatalJoinError(err error) error {
	if errors.Is(err, wifi.ErrInvalidConfig) {
		return errors.Wrap(err, "station parameters rejected")
	}
	return nil
}

// lastStation returns the join recorded by a previous run, if any.
func lastStation(store storage.Storage) (stationRecord, bool) {
	var rec stationRecord
	if err := store.GetJSON(nsWiFi, "last_station", &rec); err != nil {
		return stationRecord{}, false
	}
	return rec, true
}

// enableDiscovery announces the published channel to Home Assistant every
// time the session connects, unless it was already announced.
func enableDiscovery(session *mqtt.Session, store storage.Storage, nodeID, topic string, logger log.FieldLogger) {
	if nodeID == "" {
		nodeID = "aqm"
	}
	nodeID = mqtt.SanitizeID(nodeID)
	dm := mqtt.NewDiscoveryManager(session, logger, store, nodeID)
	device := &mqtt.DeviceInfo{
		Identifiers:  []string{nodeID},
		Name:         "Air quality monitor",
		Model:        "MQ-7 / MQ-135",
		Manufacturer: "DIY",
	}
	sensors := []*mqtt.SensorConfig{
		mqtt.VoltageSensor("mq7", primaryName, topic, device),
	}

	session.OnEvent(func(ev mqtt.Event) {
		if _, ok := ev.(mqtt.Connected); !ok {
			return
		}
		if !dm.ShouldRepublishDiscovery(len(sensors)) {
			return
		}
		go dm.PublishMultipleDiscoveryConfigs(sensors)
	})
}
