// Package metrics exposes the monitor state to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veftodii/air-quality-monitor/internal/adc"
	"github.com/veftodii/air-quality-monitor/internal/monitor"
	"github.com/veftodii/air-quality-monitor/internal/mqtt"
	"github.com/veftodii/air-quality-monitor/internal/wifi"
)

// Metrics holds the collectors and the registry they are exposed from.
type Metrics struct {
	registry *prometheus.Registry

	channelRaw        *prometheus.GaugeVec
	channelMillivolts *prometheus.GaugeVec
	associationState  prometheus.Gauge
	brokerConnected   prometheus.Gauge

	publishTotal       prometheus.Counter
	publishErrors      prometheus.Counter
	publishAcked       prometheus.Counter
	sampleErrors       prometheus.Counter
	associationRetries prometheus.Counter
}

func newGauge(name string, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		[]string{"channel"},
	)
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

// New creates the collectors on a private registry together with the Go
// runtime and build info collectors.
func New() *Metrics {
	m := &Metrics{
		registry:          prometheus.NewRegistry(),
		channelRaw:        newGauge("aqm_channel_raw", "Averaged raw ADC code of the last cycle"),
		channelMillivolts: newGauge("aqm_channel_millivolts", "Calibrated voltage of the last cycle (units: mV)"),
		associationState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aqm_association_state",
			Help: "Station association state (0 idle, 1 connecting, 2 connected, 3 failed)",
		}),
		brokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aqm_broker_connected",
			Help: "1 while the broker session is connected",
		}),
		publishTotal:       newCounter("aqm_publish_total", "Telemetry messages handed to the session"),
		publishErrors:      newCounter("aqm_publish_errors_total", "Telemetry messages the session refused"),
		publishAcked:       newCounter("aqm_publish_acked_total", "Telemetry messages acknowledged by the broker"),
		sampleErrors:       newCounter("aqm_sample_errors_total", "Sampling cycles skipped because of a read error"),
		associationRetries: newCounter("aqm_association_retries_total", "Station reconnection attempts"),
	}

	m.registry.MustRegister(
		m.channelRaw,
		m.channelMillivolts,
		m.associationState,
		m.brokerConnected,
		m.publishTotal,
		m.publishErrors,
		m.publishAcked,
		m.sampleErrors,
		m.associationRetries,
		collectors.NewGoCollector(),
		collectors.NewBuildInfoCollector(),
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		// Opt into OpenMetrics to support exemplars.
		EnableOpenMetrics: true,
	})
}

// ObserveCycle records the outcome of a sampling cycle.
func (m *Metrics) ObserveCycle(c monitor.Cycle) {
	if c.SampleErr != nil {
		m.sampleErrors.Inc()
		return
	}
	m.setChannel(c.Primary)
	if c.SecondaryErr != nil {
		m.sampleErrors.Inc()
	} else {
		m.setChannel(c.Secondary)
	}
	if c.Published {
		m.publishTotal.Inc()
	} else if c.PublishErr != nil {
		m.publishErrors.Inc()
	}
}

func (m *Metrics) setChannel(r adc.Reading) {
	m.channelRaw.WithLabelValues(r.Name).Set(float64(r.Averaged))
	m.channelMillivolts.WithLabelValues(r.Name).Set(float64(r.MilliVolts))
}

// ObserveTransition records a station state change.
func (m *Metrics) ObserveTransition(t wifi.Transition) {
	m.associationState.Set(float64(t.To))
	if t.From == wifi.StateConnecting && t.To == wifi.StateConnecting {
		m.associationRetries.Inc()
	}
}

// ObserveSession records a broker session event.
func (m *Metrics) ObserveSession(ev mqtt.Event) {
	switch ev.(type) {
	case mqtt.Connected:
		m.brokerConnected.Set(1)
	case mqtt.Disconnected, mqtt.Reconnecting:
		m.brokerConnected.Set(0)
	case mqtt.PublishAcked:
		m.publishAcked.Inc()
	}
}
