package wifi

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDriver posts a fixed sequence of events once started.
type scriptedDriver struct {
	hub
	script     []Event
	startErr   error
	connectErr error

	mu       sync.Mutex
	connects int
}

func (d *scriptedDriver) Start(StationConfig) error {
	if d.startErr != nil {
		return d.startErr
	}
	go func() {
		for _, ev := range d.script {
			d.emit(ev)
		}
	}()
	return nil
}

func (d *scriptedDriver) Connect() error {
	d.mu.Lock()
	d.connects++
	d.mu.Unlock()
	return d.connectErr
}

func (d *scriptedDriver) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

func (d *scriptedDriver) subscribers() int {
	d.hub.mu.Lock()
	defer d.hub.mu.Unlock()
	return len(d.hub.subs)
}

var openNet = StationConfig{SSID: "Eftodii House-1   2.4GHz", AuthMode: AuthOpen}

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func disconnects(n int) []Event {
	evs := make([]Event, n)
	for i := range evs {
		evs[i] = Disconnected{Reason: "no ap"}
	}
	return evs
}

func TestAssociate_FailsAfterMaxRetries(t *testing.T) {
	script := append([]Event{StationStarted{}}, disconnects(5)...)
	d := &scriptedDriver{script: script}
	a := NewAssociation(d, 3, quietLogger())

	var maxSeen int
	a.OnTransition(func(tr Transition) {
		if tr.Retries > maxSeen {
			maxSeen = tr.Retries
		}
	})

	_, err := a.Associate(context.Background(), openNet)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAssociationFailed))
	assert.Equal(t, StateFailed, a.State())
	assert.Equal(t, 3, a.Retries())
	assert.LessOrEqual(t, maxSeen, 3)

	// One initial attempt plus three retries; nothing after the failure.
	assert.Equal(t, 4, d.Connects())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 4, d.Connects())
	assert.Zero(t, d.subscribers())
}

func TestAssociate_ConnectsAfterTwoRetries(t *testing.T) {
	want := netip.MustParseAddr("10.0.0.7")
	script := append([]Event{StationStarted{}}, disconnects(2)...)
	script = append(script, AddressAcquired{Addr: want})
	d := &scriptedDriver{script: script}
	a := NewAssociation(d, 3, quietLogger())

	var states []State
	a.OnTransition(func(tr Transition) { states = append(states, tr.To) })

	got, err := a.Associate(context.Background(), openNet)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want, a.Addr())
	assert.Equal(t, StateConnected, a.State())
	assert.Zero(t, a.Retries())
	assert.Equal(t, 3, d.Connects())
	assert.Equal(t, []State{StateConnecting, StateConnecting, StateConnecting, StateConnected}, states)
	assert.Zero(t, d.subscribers())
}

func TestAssociate_RetryCounterNeverExceedsMax(t *testing.T) {
	for limit := 0; limit <= 5; limit++ {
		script := append([]Event{StationStarted{}}, disconnects(limit+3)...)
		d := &scriptedDriver{script: script}
		a := NewAssociation(d, limit, quietLogger())
		a.OnTransition(func(tr Transition) {
			assert.LessOrEqual(t, tr.Retries, limit)
		})
		_, err := a.Associate(context.Background(), openNet)
		require.Error(t, err)
		assert.Equal(t, limit, a.Retries())
		assert.Equal(t, limit+1, d.Connects())
	}
}

func TestAssociate_DriverRejectsConnect(t *testing.T) {
	d := &scriptedDriver{script: []Event{StationStarted{}}, connectErr: errors.New("radio off")}
	a := NewAssociation(d, 2, quietLogger())

	_, err := a.Associate(context.Background(), openNet)
	assert.True(t, errors.Is(err, ErrAssociationFailed))
	assert.Equal(t, 3, d.Connects())
}

func TestAssociate_ContextDeadline(t *testing.T) {
	d := &scriptedDriver{script: []Event{StationStarted{}}}
	a := NewAssociation(d, 3, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := a.Associate(ctx, openNet)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, StateConnecting, a.State())
	assert.Zero(t, d.subscribers())
}

func TestAssociate_OnlyOnce(t *testing.T) {
	d := &scriptedDriver{script: []Event{StationStarted{}, AddressAcquired{Addr: netip.MustParseAddr("10.0.0.2")}}}
	a := NewAssociation(d, 3, quietLogger())

	_, err := a.Associate(context.Background(), openNet)
	require.NoError(t, err)
	_, err = a.Associate(context.Background(), openNet)
	assert.Error(t, err)
}

func TestAssociate_StartError(t *testing.T) {
	d := &scriptedDriver{startErr: errors.New("no radio")}
	a := NewAssociation(d, 3, quietLogger())
	_, err := a.Associate(context.Background(), openNet)
	assert.EqualError(t, errors.Cause(err), "no radio")
	assert.Zero(t, d.subscribers())
}

func TestAssociate_InvalidConfig(t *testing.T) {
	a := NewAssociation(&scriptedDriver{}, 3, quietLogger())
	_, err := a.Associate(context.Background(), StationConfig{})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Equal(t, StateIdle, a.State())
}

func TestSimDriver(t *testing.T) {
	d := NewSimDriver()
	d.Delay = 0
	d.FailuresBeforeJoin = 2
	a := NewAssociation(d, 3, quietLogger())

	addr, err := a.Associate(context.Background(), openNet)
	require.NoError(t, err)
	assert.Equal(t, d.Addr, addr)
	assert.Equal(t, 3, d.Attempts())
}

func TestStationConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  StationConfig
		ok   bool
	}{
		{"open empty pass", StationConfig{SSID: "net", AuthMode: AuthOpen}, true},
		{"empty ssid", StationConfig{AuthMode: AuthOpen}, false},
		{"long ssid", StationConfig{SSID: "0123456789012345678901234567890123", AuthMode: AuthOpen}, false},
		{"wpa2 ok", StationConfig{SSID: "net", Passphrase: "password1", AuthMode: AuthWPA2PSK}, true},
		{"wpa2 short", StationConfig{SSID: "net", Passphrase: "short", AuthMode: AuthWPA2PSK}, false},
		{"wep 5", StationConfig{SSID: "net", Passphrase: "abcde", AuthMode: AuthWEP}, true},
		{"wep 6", StationConfig{SSID: "net", Passphrase: "abcdef", AuthMode: AuthWEP}, false},
		{"unknown mode", StationConfig{SSID: "net", Passphrase: "password1", AuthMode: AuthMode(42)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidConfig))
			}
		})
	}
}

func TestParseAuthMode(t *testing.T) {
	m, err := ParseAuthMode(" WPA2-PSK ")
	require.NoError(t, err)
	assert.Equal(t, AuthWPA2PSK, m)
	assert.Equal(t, "wpa2-psk", m.String())

	_, err = ParseAuthMode("enterprise")
	assert.Error(t, err)
}
