package events

import (
	"fmt"

	"github.com/veftodii/air-quality-monitor/internal/mqtt"
	"github.com/veftodii/air-quality-monitor/internal/wifi"
)

// RecordTransition stores a station state change.
func (s *Store) RecordTransition(t wifi.Transition) {
	switch t.To {
	case wifi.StateConnecting:
		if t.From == wifi.StateConnecting {
			s.Add(EventWiFiRetry, "wifi", false, fmt.Sprintf("retry %d: %s", t.Retries, t.Reason))
			return
		}
		s.Add(EventWiFiConnecting, "wifi", true, t.Reason)
	case wifi.StateConnected:
		s.Add(EventWiFiConnected, "wifi", true, t.Addr.String())
	case wifi.StateFailed:
		s.Add(EventWiFiFailed, "wifi", false, t.Reason)
	}
}

// RecordSession stores a broker session event. Publish acknowledgements
// are not kept; they would push everything else out of the buffer.
func (s *Store) RecordSession(ev mqtt.Event) {
	switch e := ev.(type) {
	case mqtt.Connected:
		s.Add(EventBrokerConnected, "mqtt", true, e.Server)
	case mqtt.Disconnected:
		s.Add(EventBrokerDisconnected, "mqtt", false, errString(e.Err))
	case mqtt.Reconnecting:
		s.Add(EventBrokerReconnecting, "mqtt", true, "")
	case mqtt.BrokerError:
		s.Add(EventBrokerError, "mqtt", false, errString(e.Err))
	case mqtt.DataArrived:
		s.Add(EventDataReceived, "mqtt", true, e.Topic)
	}
}

// RecordSampleError stores a failed sampling cycle.
func (s *Store) RecordSampleError(err error) {
	s.Add(EventSampleError, "monitor", false, errString(err))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
