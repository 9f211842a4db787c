package events

import (
	"net/netip"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veftodii/air-quality-monitor/internal/mqtt"
	"github.com/veftodii/air-quality-monitor/internal/wifi"
)

func TestStore_RingBuffer(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.Add(EventBrokerError, "mqtt", false, "")
	}

	assert.Equal(t, 3, s.Count())
	assert.Equal(t, int64(5), s.LastID())

	all := s.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, []int64{5, 4, 3}, []int64{all[0].ID, all[1].ID, all[2].ID})
}

func TestStore_GetLastAndSince(t *testing.T) {
	s := NewStore(0)
	for i := 0; i < 4; i++ {
		s.Add(EventWiFiRetry, "wifi", false, "")
	}

	assert.Len(t, s.GetLast(2), 2)
	assert.Len(t, s.GetLast(10), 4)
	assert.Empty(t, s.GetLast(-1))

	since := s.GetSince(2)
	require.Len(t, since, 2)
	assert.Equal(t, int64(4), since[0].ID)
	assert.Nil(t, s.GetSince(4))
}

func TestStore_RecordTransition(t *testing.T) {
	s := NewStore(10)
	addr := netip.MustParseAddr("192.168.1.42")

	s.RecordTransition(wifi.Transition{From: wifi.StateIdle, To: wifi.StateConnecting, Reason: "station started"})
	s.RecordTransition(wifi.Transition{From: wifi.StateConnecting, To: wifi.StateConnecting, Retries: 1, Reason: "no ap"})
	s.RecordTransition(wifi.Transition{From: wifi.StateConnecting, To: wifi.StateConnected, Addr: addr})

	got := s.GetAll()
	require.Len(t, got, 3)
	assert.Equal(t, EventWiFiConnected, got[0].Type)
	assert.Equal(t, "192.168.1.42", got[0].Details)
	assert.Equal(t, EventWiFiRetry, got[1].Type)
	assert.Equal(t, "retry 1: no ap", got[1].Details)
	assert.Equal(t, EventWiFiConnecting, got[2].Type)

	s.RecordTransition(wifi.Transition{From: wifi.StateConnecting, To: wifi.StateFailed, Reason: "no ap"})
	last := s.GetLast(1)[0]
	assert.Equal(t, EventWiFiFailed, last.Type)
	assert.False(t, last.Success)
}

func TestStore_RecordSession(t *testing.T) {
	s := NewStore(10)

	s.RecordSession(mqtt.Connected{Server: "tcp://broker:1883"})
	s.RecordSession(mqtt.PublishAcked{MessageID: 7})
	s.RecordSession(mqtt.Disconnected{Err: errors.New("eof")})
	s.RecordSession(mqtt.BrokerError{})

	got := s.GetAll()
	require.Len(t, got, 3, "acks are not recorded")
	assert.Equal(t, EventBrokerError, got[0].Type)
	assert.Empty(t, got[0].Details)
	assert.Equal(t, "eof", got[1].Details)
	assert.Equal(t, "tcp://broker:1883", got[2].Details)
	assert.Equal(t, "mqtt", got[2].Source)
}

func TestStore_RecordSampleError(t *testing.T) {
	s := NewStore(10)
	s.RecordSampleError(errors.New("adc: raw code out of range"))

	ev := s.GetLast(1)[0]
	assert.Equal(t, EventSampleError, ev.Type)
	assert.Equal(t, "monitor", ev.Source)
}
