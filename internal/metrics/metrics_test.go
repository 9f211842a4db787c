package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veftodii/air-quality-monitor/internal/adc"
	"github.com/veftodii/air-quality-monitor/internal/monitor"
	"github.com/veftodii/air-quality-monitor/internal/mqtt"
	"github.com/veftodii/air-quality-monitor/internal/wifi"
)

func TestObserveCycle(t *testing.T) {
	m := New()

	m.ObserveCycle(monitor.Cycle{
		Primary:   adc.Reading{Name: "MQ7", Averaged: 100, MilliVolts: 223},
		Secondary: adc.Reading{Name: "MQ135", Averaged: 200, MilliVolts: 303},
		Published: true,
	})
	assert.Equal(t, 223.0, testutil.ToFloat64(m.channelMillivolts.WithLabelValues("MQ7")))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.channelRaw.WithLabelValues("MQ135")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishTotal))

	m.ObserveCycle(monitor.Cycle{SampleErr: adc.ErrOutOfRange})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sampleErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishTotal))

	m.ObserveCycle(monitor.Cycle{
		Primary:      adc.Reading{Name: "MQ7", Averaged: 110, MilliVolts: 240},
		SecondaryErr: adc.ErrOutOfRange,
		Published:    true,
	})
	assert.Equal(t, 240.0, testutil.ToFloat64(m.channelMillivolts.WithLabelValues("MQ7")))
	assert.Equal(t, 303.0, testutil.ToFloat64(m.channelMillivolts.WithLabelValues("MQ135")), "stale value kept")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sampleErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.publishTotal))

	m.ObserveCycle(monitor.Cycle{PublishErr: errors.New("not connected")})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishErrors))
}

func TestObserveTransition(t *testing.T) {
	m := New()

	m.ObserveTransition(wifi.Transition{From: wifi.StateIdle, To: wifi.StateConnecting})
	m.ObserveTransition(wifi.Transition{From: wifi.StateConnecting, To: wifi.StateConnecting})
	m.ObserveTransition(wifi.Transition{From: wifi.StateConnecting, To: wifi.StateConnecting})
	m.ObserveTransition(wifi.Transition{From: wifi.StateConnecting, To: wifi.StateConnected})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.associationRetries))
	assert.Equal(t, float64(wifi.StateConnected), testutil.ToFloat64(m.associationState))
}

func TestObserveSession(t *testing.T) {
	m := New()

	m.ObserveSession(mqtt.Connected{})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.brokerConnected))
	m.ObserveSession(mqtt.PublishAcked{MessageID: 1})
	m.ObserveSession(mqtt.PublishAcked{MessageID: 2})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.publishAcked))
	m.ObserveSession(mqtt.Disconnected{})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.brokerConnected))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveSession(mqtt.Connected{})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "aqm_broker_connected 1"))
	assert.Contains(t, string(body), "go_goroutines")
}
