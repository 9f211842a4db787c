// Package wifi drives a station-mode network join with bounded retries.
package wifi

import (
	"fmt"
	"net/netip"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrInvalidConfig is returned for station parameters the driver would reject.
var ErrInvalidConfig = errors.New("wifi: invalid station config")

// AuthMode is the minimum authentication mode accepted from an access point.
type AuthMode int

const (
	AuthOpen AuthMode = iota
	AuthWEP
	AuthWPAPSK
	AuthWPA2PSK
	AuthWPAWPA2PSK
	AuthWPA3PSK
	AuthWPA2WPA3PSK
)

var authModeNames = map[AuthMode]string{
	AuthOpen:        "open",
	AuthWEP:         "wep",
	AuthWPAPSK:      "wpa-psk",
	AuthWPA2PSK:     "wpa2-psk",
	AuthWPAWPA2PSK:  "wpa-wpa2-psk",
	AuthWPA3PSK:     "wpa3-psk",
	AuthWPA2WPA3PSK: "wpa2-wpa3-psk",
}

func (m AuthMode) String() string {
	if s, ok := authModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("AuthMode(%d)", int(m))
}

// ParseAuthMode parses names such as "open" or "wpa2-psk".
func ParseAuthMode(s string) (AuthMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range authModeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidConfig, "unknown auth mode %q", s)
}

// StationConfig holds the join parameters.
type StationConfig struct {
	SSID       string
	Passphrase string
	AuthMode   AuthMode
}

// Validate checks the parameters against 802.11 limits.
func (c StationConfig) Validate() error {
	if len(c.SSID) == 0 || len(c.SSID) > 32 {
		return errors.Wrapf(ErrInvalidConfig, "ssid must be 1-32 bytes, got %d", len(c.SSID))
	}
	switch c.AuthMode {
	case AuthOpen:
	case AuthWEP:
		if n := len(c.Passphrase); n != 5 && n != 13 {
			return errors.Wrap(ErrInvalidConfig, "wep key must be 5 or 13 bytes")
		}
	default:
		if _, ok := authModeNames[c.AuthMode]; !ok {
			return errors.Wrapf(ErrInvalidConfig, "auth mode %d", int(c.AuthMode))
		}
		if n := len(c.Passphrase); n < 8 || n > 63 {
			return errors.Wrapf(ErrInvalidConfig, "%s passphrase must be 8-63 bytes", c.AuthMode)
		}
	}
	return nil
}

// Event is a notification from the network stack.
type Event interface {
	isEvent()
}

// StationStarted is posted once the interface is up in station mode.
type StationStarted struct{}

// Disconnected is posted when a connect attempt fails or the link drops.
type Disconnected struct {
	Reason string
}

// AddressAcquired is posted when the station obtains an IP address.
type AddressAcquired struct {
	Addr netip.Addr
}

func (StationStarted) isEvent()  {}
func (Disconnected) isEvent()    {}
func (AddressAcquired) isEvent() {}

// Driver is the network stack underneath the association state machine.
// Events are delivered asynchronously to every subscribed channel.
type Driver interface {
	Subscribe(ch chan<- Event) (unsubscribe func())
	Start(cfg StationConfig) error
	Connect() error
}

type subscription struct {
	ch   chan<- Event
	done chan struct{}
}

// hub fans events out to subscribers. A send never outlives its
// subscription.
type hub struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func (h *hub) Subscribe(ch chan<- Event) func() {
	s := &subscription{ch: ch, done: make(chan struct{})}
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[*subscription]struct{})
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
			close(s.done)
		})
	}
}

func (h *hub) emit(ev Event) {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		case <-s.done:
		}
	}
}
