// Package config loads the monitor settings from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/veftodii/air-quality-monitor/internal/adc"
	"github.com/veftodii/air-quality-monitor/internal/mqtt"
	"github.com/veftodii/air-quality-monitor/internal/wifi"
)

// Environment variable names
const (
	EnvWiFiSSID        = "AQM_WIFI_SSID"
	EnvWiFiPassword    = "AQM_WIFI_PASSWORD"
	EnvWiFiAuthMode    = "AQM_WIFI_AUTH_MODE"
	EnvWiFiMaxRetry    = "AQM_WIFI_MAX_RETRY"
	EnvWiFiDriver      = "AQM_WIFI_DRIVER"
	EnvWiFiInterface   = "AQM_WIFI_INTERFACE"
	EnvWiFiJoinTimeout = "AQM_WIFI_JOIN_TIMEOUT"
	// MQTT settings
	EnvMQTTURL       = "AQM_MQTT_URL"
	EnvMQTTClientID  = "AQM_MQTT_CLIENT_ID"
	EnvMQTTTopic     = "AQM_MQTT_TOPIC"
	EnvMQTTQoS       = "AQM_MQTT_QOS"
	EnvMQTTRetain    = "AQM_MQTT_RETAIN"
	EnvMQTTDiscovery = "AQM_MQTT_DISCOVERY"
	// ADC settings
	EnvADCSource    = "AQM_ADC_SOURCE"
	EnvADCIIODevice = "AQM_ADC_IIO_DEVICE"
	EnvADCVRef      = "AQM_ADC_VREF_MV"
	EnvADCAtten     = "AQM_ADC_ATTEN_DB"
	EnvADCWidth     = "AQM_ADC_WIDTH_BITS"
	EnvADCSamples   = "AQM_ADC_SAMPLES"
	EnvMQ7Channel   = "AQM_MQ7_CHANNEL"
	EnvMQ135Channel = "AQM_MQ135_CHANNEL"

	EnvSampleInterval = "AQM_SAMPLE_INTERVAL_MS"
	EnvStoragePath    = "AQM_STORAGE_PATH"
	EnvHTTPAddr       = "AQM_HTTP_ADDR"
	EnvConsoleSerial  = "AQM_CONSOLE_SERIAL"
	EnvConsoleBaud    = "AQM_CONSOLE_BAUD"
	EnvLogLevel       = "AQM_LOG_LEVEL"
)

// Driver and source names
const (
	DriverNetif = "netif"
	DriverSim   = "sim"
	SourceIIO   = "iio"
	SourceSim   = "sim"
)

// Default values
const (
	DefaultWiFiAuthMode    = "open"
	DefaultWiFiMaxRetry    = wifi.DefaultMaxRetries
	DefaultWiFiDriver      = DriverNetif
	DefaultWiFiInterface   = wifi.DefaultInterface
	DefaultWiFiJoinTimeout = 0 // wait forever
	// MQTT defaults
	DefaultMQTTURL   = "mqtt://localhost"
	DefaultMQTTTopic = "/user/out/adc"
	DefaultMQTTQoS   = 1
	// ADC defaults
	DefaultADCSource    = SourceIIO
	DefaultADCVRef      = adc.DefaultVRef
	DefaultADCAtten     = 11.0
	DefaultADCWidth     = 12
	DefaultADCSamples   = adc.DefaultSamples
	DefaultMQ7Channel   = 6
	DefaultMQ135Channel = 7

	DefaultSampleInterval = 5000 * time.Millisecond
	DefaultStoragePath    = "aqm.db"
	DefaultConsoleBaud    = 115200
	DefaultLogLevel       = "info"
)

// WiFiConfig holds station settings.
type WiFiConfig struct {
	SSID        string
	Password    string
	AuthMode    wifi.AuthMode
	MaxRetry    int
	Driver      string
	Interface   string
	JoinTimeout time.Duration // zero waits forever
}

// Station returns the join parameters handed to the driver.
func (w WiFiConfig) Station() wifi.StationConfig {
	return wifi.StationConfig{SSID: w.SSID, Passphrase: w.Password, AuthMode: w.AuthMode}
}

// MQTTConfig holds telemetry session settings.
type MQTTConfig struct {
	URL       string
	ClientID  string
	Topic     string
	QoS       byte
	Retain    bool
	Discovery bool
}

// ADCConfig holds converter and channel settings.
type ADCConfig struct {
	Source       string
	IIODevice    string
	VRef         int
	Atten        adc.Attenuation
	Width        adc.BitWidth
	Samples      int
	MQ7Channel   adc.Channel
	MQ135Channel adc.Channel
}

// ConsoleConfig holds the diagnostic console settings.
type ConsoleConfig struct {
	Serial string // empty: stdout only
	Baud   int
}

// Config holds all application configuration.
// All access should be through getter methods for thread safety.
type Config struct {
	mu       sync.RWMutex
	filePath string
	dirty    bool // tracks if config was modified

	wifi    WiFiConfig
	mqtt    MQTTConfig
	adc     ADCConfig
	console ConsoleConfig

	sampleInterval time.Duration
	storagePath    string
	httpAddr       string
	logLevel       string

	// keeps the unparsed value so Save round-trips 2.5 dB
	attenDB float64
}

// Load loads configuration from .env file or creates it with defaults.
// This is the main entry point for configuration initialization.
func Load(filePath string) (*Config, error) {
	cfg := &Config{
		filePath: filePath,
	}

	// Set defaults first
	cfg.setDefaults()

	// Try to load existing file
	if err := cfg.loadFromFile(); err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrap(err, "failed to load config")
		}
		// File doesn't exist - will be created with defaults
		cfg.dirty = true
	}

	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	if cfg.dirty {
		if err := cfg.Save(); err != nil {
			return nil, errors.Wrap(err, "failed to save config")
		}
	}

	return cfg, nil
}

// setDefaults initializes all fields with default values.
func (c *Config) setDefaults() {
	c.wifi = WiFiConfig{
		AuthMode:    wifi.AuthOpen,
		MaxRetry:    DefaultWiFiMaxRetry,
		Driver:      DefaultWiFiDriver,
		Interface:   DefaultWiFiInterface,
		JoinTimeout: DefaultWiFiJoinTimeout,
	}
	c.mqtt = MQTTConfig{
		URL:   DefaultMQTTURL,
		Topic: DefaultMQTTTopic,
		QoS:   DefaultMQTTQoS,
	}
	c.adc = ADCConfig{
		Source:       DefaultADCSource,
		IIODevice:    adc.DefaultIIODevice,
		VRef:         DefaultADCVRef,
		Atten:        adc.Atten11dB,
		Width:        adc.BitWidth(DefaultADCWidth),
		Samples:      DefaultADCSamples,
		MQ7Channel:   DefaultMQ7Channel,
		MQ135Channel: DefaultMQ135Channel,
	}
	c.attenDB = DefaultADCAtten
	c.console = ConsoleConfig{Baud: DefaultConsoleBaud}
	c.sampleInterval = DefaultSampleInterval
	c.storagePath = DefaultStoragePath
	c.httpAddr = ""
	c.logLevel = DefaultLogLevel
}

// loadFromFile reads configuration from .env file.
func (c *Config) loadFromFile() error {
	file, err := os.Open(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	values, err := ParseEnvFile(file)
	if err != nil {
		return err
	}

	return c.applyValues(values)
}

// applyValues applies parsed key-value pairs to config.
func (c *Config) applyValues(values map[string]string) error {
	var err error
	str := func(key string, dst *string) {
		if v, ok := values[key]; ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := values[key]
		if !ok || v == "" || err != nil {
			return
		}
		n, perr := strconv.Atoi(v)
		if perr != nil {
			err = errors.Errorf("%s: %q is not a number", key, v)
			return
		}
		*dst = n
	}

	str(EnvWiFiSSID, &c.wifi.SSID)
	str(EnvWiFiPassword, &c.wifi.Password)
	if v, ok := values[EnvWiFiAuthMode]; ok && v != "" {
		mode, perr := wifi.ParseAuthMode(v)
		if perr != nil {
			return errors.Wrap(perr, EnvWiFiAuthMode)
		}
		c.wifi.AuthMode = mode
	}
	num(EnvWiFiMaxRetry, &c.wifi.MaxRetry)
	str(EnvWiFiDriver, &c.wifi.Driver)
	str(EnvWiFiInterface, &c.wifi.Interface)
	joinSeconds := int(c.wifi.JoinTimeout / time.Second)
	num(EnvWiFiJoinTimeout, &joinSeconds)
	c.wifi.JoinTimeout = time.Duration(joinSeconds) * time.Second

	// MQTT settings
	str(EnvMQTTURL, &c.mqtt.URL)
	str(EnvMQTTClientID, &c.mqtt.ClientID)
	str(EnvMQTTTopic, &c.mqtt.Topic)
	qos := int(c.mqtt.QoS)
	num(EnvMQTTQoS, &qos)
	if qos < 0 || qos > 2 {
		return errors.Errorf("%s: qos must be 0, 1 or 2, got %d", EnvMQTTQoS, qos)
	}
	c.mqtt.QoS = byte(qos)
	if v, ok := values[EnvMQTTRetain]; ok {
		c.mqtt.Retain = parseBool(v)
	}
	if v, ok := values[EnvMQTTDiscovery]; ok {
		c.mqtt.Discovery = parseBool(v)
	}

	// ADC settings
	str(EnvADCSource, &c.adc.Source)
	str(EnvADCIIODevice, &c.adc.IIODevice)
	num(EnvADCVRef, &c.adc.VRef)
	if v, ok := values[EnvADCAtten]; ok && v != "" {
		db, perr := strconv.ParseFloat(strings.TrimSuffix(strings.ToLower(v), "db"), 64)
		if perr != nil {
			return errors.Errorf("%s: %q is not a number", EnvADCAtten, v)
		}
		atten, perr := adc.ParseAttenuation(db)
		if perr != nil {
			return errors.Wrap(perr, EnvADCAtten)
		}
		c.adc.Atten, c.attenDB = atten, db
	}
	width := int(c.adc.Width)
	num(EnvADCWidth, &width)
	c.adc.Width = adc.BitWidth(width)
	num(EnvADCSamples, &c.adc.Samples)
	mq7, mq135 := int(c.adc.MQ7Channel), int(c.adc.MQ135Channel)
	num(EnvMQ7Channel, &mq7)
	num(EnvMQ135Channel, &mq135)
	c.adc.MQ7Channel, c.adc.MQ135Channel = adc.Channel(mq7), adc.Channel(mq135)

	interval := int(c.sampleInterval / time.Millisecond)
	num(EnvSampleInterval, &interval)
	c.sampleInterval = time.Duration(interval) * time.Millisecond

	str(EnvStoragePath, &c.storagePath)
	str(EnvHTTPAddr, &c.httpAddr)
	str(EnvConsoleSerial, &c.console.Serial)
	num(EnvConsoleBaud, &c.console.Baud)
	str(EnvLogLevel, &c.logLevel)

	return err
}

// validate checks if configuration is valid.
func (c *Config) validate() error {
	if c.wifi.MaxRetry < 0 {
		return errors.Errorf("%s cannot be negative", EnvWiFiMaxRetry)
	}
	if c.wifi.Driver != DriverNetif && c.wifi.Driver != DriverSim {
		return errors.Errorf("%s must be %q or %q, got %q", EnvWiFiDriver, DriverNetif, DriverSim, c.wifi.Driver)
	}
	if c.wifi.JoinTimeout < 0 {
		return errors.Errorf("%s cannot be negative", EnvWiFiJoinTimeout)
	}
	// An empty SSID is left for the station to reject, so a fresh file still loads
	if c.wifi.SSID != "" {
		if err := c.wifi.Station().Validate(); err != nil {
			return err
		}
	}

	if _, err := mqtt.ParseBrokerURI(c.mqtt.URL); err != nil {
		return errors.Wrap(err, EnvMQTTURL)
	}
	if c.mqtt.Topic == "" {
		return errors.Errorf("%s cannot be empty", EnvMQTTTopic)
	}
	if strings.ContainsAny(c.mqtt.Topic, "+#") {
		return errors.Errorf("%s cannot contain wildcards", EnvMQTTTopic)
	}

	if c.adc.Source != SourceIIO && c.adc.Source != SourceSim {
		return errors.Errorf("%s must be %q or %q, got %q", EnvADCSource, SourceIIO, SourceSim, c.adc.Source)
	}
	if c.adc.Width < adc.Width9Bit || c.adc.Width > adc.Width12Bit {
		return errors.Errorf("%s must be between 9 and 12, got %d", EnvADCWidth, c.adc.Width)
	}
	if c.adc.VRef <= 0 {
		return errors.Errorf("%s must be positive", EnvADCVRef)
	}
	if c.adc.Samples < 1 {
		return errors.Errorf("%s must be at least 1", EnvADCSamples)
	}
	if c.adc.MQ7Channel < 0 || c.adc.MQ135Channel < 0 {
		return errors.New("channel numbers cannot be negative")
	}
	if c.adc.MQ7Channel == c.adc.MQ135Channel {
		return errors.New("MQ7 and MQ135 must use different channels")
	}

	if c.sampleInterval <= 0 {
		return errors.Errorf("%s must be positive", EnvSampleInterval)
	}
	if c.storagePath == "" {
		return errors.Errorf("%s cannot be empty", EnvStoragePath)
	}
	if c.console.Serial != "" && c.console.Baud <= 0 {
		return errors.Errorf("%s must be positive", EnvConsoleBaud)
	}
	if _, err := logrus.ParseLevel(c.logLevel); err != nil {
		return errors.Wrap(err, EnvLogLevel)
	}
	return nil
}

// Save writes current configuration to .env file.
func (c *Config) Save() error {
	c.mu.RLock()
	values := c.toMap()
	filePath := c.filePath
	c.mu.RUnlock()

	if err := WriteEnvFile(filePath, values); err != nil {
		return err
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()

	return nil
}

// toMap converts config to key-value map for saving.
func (c *Config) toMap() map[string]string {
	itoa := strconv.Itoa
	return map[string]string{
		EnvWiFiSSID:        c.wifi.SSID,
		EnvWiFiPassword:    c.wifi.Password,
		EnvWiFiAuthMode:    c.wifi.AuthMode.String(),
		EnvWiFiMaxRetry:    itoa(c.wifi.MaxRetry),
		EnvWiFiDriver:      c.wifi.Driver,
		EnvWiFiInterface:   c.wifi.Interface,
		EnvWiFiJoinTimeout: itoa(int(c.wifi.JoinTimeout / time.Second)),
		// MQTT settings
		EnvMQTTURL:       c.mqtt.URL,
		EnvMQTTClientID:  c.mqtt.ClientID,
		EnvMQTTTopic:     c.mqtt.Topic,
		EnvMQTTQoS:       itoa(int(c.mqtt.QoS)),
		EnvMQTTRetain:    strconv.FormatBool(c.mqtt.Retain),
		EnvMQTTDiscovery: strconv.FormatBool(c.mqtt.Discovery),
		// ADC settings
		EnvADCSource:    c.adc.Source,
		EnvADCIIODevice: c.adc.IIODevice,
		EnvADCVRef:      itoa(c.adc.VRef),
		EnvADCAtten:     strconv.FormatFloat(c.attenDB, 'f', -1, 64),
		EnvADCWidth:     itoa(int(c.adc.Width)),
		EnvADCSamples:   itoa(c.adc.Samples),
		EnvMQ7Channel:   itoa(int(c.adc.MQ7Channel)),
		EnvMQ135Channel: itoa(int(c.adc.MQ135Channel)),

		EnvSampleInterval: itoa(int(c.sampleInterval / time.Millisecond)),
		EnvStoragePath:    c.storagePath,
		EnvHTTPAddr:       c.httpAddr,
		EnvConsoleSerial:  c.console.Serial,
		EnvConsoleBaud:    itoa(c.console.Baud),
		EnvLogLevel:       c.logLevel,
	}
}

// Getters (thread-safe)

// WiFi returns the station settings.
func (c *Config) WiFi() WiFiConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wifi
}

// MQTT returns the telemetry session settings.
func (c *Config) MQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqtt
}

// ADC returns the converter settings.
func (c *Config) ADC() ADCConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.adc
}

// Console returns the diagnostic console settings.
func (c *Config) Console() ConsoleConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.console
}

// SampleInterval returns the delay between sampling cycles.
func (c *Config) SampleInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sampleInterval
}

// StoragePath returns the settings database path.
func (c *Config) StoragePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.storagePath
}

// HTTPAddr returns the API listen address; empty disables the API.
func (c *Config) HTTPAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpAddr
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logrus.Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lvl, err := logrus.ParseLevel(c.logLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// FilePath returns the path to the .env file.
func (c *Config) FilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filePath
}

// parseBool parses a boolean string value.
// Accepts: true, false, 1, 0, yes, no, on (case-insensitive)
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// String returns a string representation of the config (without secrets).
func (c *Config) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	passDisplay := "[not set]"
	if c.wifi.Password != "" {
		passDisplay = "[set]"
	}
	broker := c.mqtt.URL
	if b, err := mqtt.ParseBrokerURI(c.mqtt.URL); err == nil {
		broker = b.String()
	}

	return fmt.Sprintf(
		"Config{SSID: %q, Password: %s, Auth: %s, Driver: %s, Broker: %s, Topic: %q, ADC: %s/%s/%dbit, Interval: %v}",
		c.wifi.SSID, passDisplay, c.wifi.AuthMode, c.wifi.Driver, broker, c.mqtt.Topic,
		c.adc.Source, c.adc.Atten, c.adc.Width, c.sampleInterval,
	)
}
