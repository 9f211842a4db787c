package wifi

import (
	"context"
	"net/netip"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultMaxRetries bounds reconnection to an unreachable access point.
const DefaultMaxRetries = 3

var (
	// ErrAssociationFailed is returned once the retry budget is exhausted.
	ErrAssociationFailed = errors.New("wifi: association failed")

	errFinished = errors.New("wifi: association already finished")
)

// State of the association state machine.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Transition describes one step of the state machine.
type Transition struct {
	From    State
	To      State
	Retries int
	Addr    netip.Addr
	Reason  string
}

// Association runs one station join. It owns its retry counter and the
// event channel it waits on; both live only for the Associate call.
type Association struct {
	driver     Driver
	maxRetries int
	log        logrus.FieldLogger

	mu        sync.RWMutex
	state     State
	retries   int
	addr      netip.Addr
	ssid      string
	observers []func(Transition)
}

// NewAssociation creates an idle state machine. maxRetries < 0 selects
// DefaultMaxRetries.
func NewAssociation(driver Driver, maxRetries int, log logrus.FieldLogger) *Association {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Association{
		driver:     driver,
		maxRetries: maxRetries,
		log:        log.WithField("component", "wifi"),
	}
}

// OnTransition registers fn to be called after every state change.
func (a *Association) OnTransition(fn func(Transition)) {
	a.mu.Lock()
	a.observers = append(a.observers, fn)
	a.mu.Unlock()
}

// Associate starts the station and blocks until it is connected or the
// retries are exhausted. Event delivery is unsubscribed before returning,
// so later link losses are not acted upon.
func (a *Association) Associate(ctx context.Context, cfg StationConfig) (netip.Addr, error) {
	if err := cfg.Validate(); err != nil {
		return netip.Addr{}, err
	}

	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return netip.Addr{}, errFinished
	}
	a.ssid = cfg.SSID
	a.mu.Unlock()

	events := make(chan Event, 8)
	unsubscribe := a.driver.Subscribe(events)
	defer unsubscribe()

	if err := a.driver.Start(cfg); err != nil {
		return netip.Addr{}, errors.Wrap(err, "wifi: start station")
	}
	a.log.Infof("Station started, joining %q (%s)", cfg.SSID, cfg.AuthMode)

	for {
		select {
		case <-ctx.Done():
			return netip.Addr{}, errors.Wrap(ctx.Err(), "wifi: association aborted")
		case ev := <-events:
			if done, addr, err := a.step(ev); done {
				return addr, err
			}
		}
	}
}

// step applies one event. done reports that a terminal state was reached.
func (a *Association) step(ev Event) (done bool, addr netip.Addr, err error) {
	switch e := ev.(type) {
	case StationStarted:
		a.transition(StateConnecting, "station started")
		if err := a.connect(); err != nil {
			return a.step(Disconnected{Reason: err.Error()})
		}

	case Disconnected:
		a.mu.Lock()
		if a.retries < a.maxRetries {
			a.retries++
			n := a.retries
			a.mu.Unlock()
			a.log.WithField("reason", e.Reason).Infof("Retry connecting to %q (%d/%d)", a.ssid, n, a.maxRetries)
			a.transition(StateConnecting, e.Reason)
			if err := a.connect(); err != nil {
				return a.step(Disconnected{Reason: err.Error()})
			}
			return false, netip.Addr{}, nil
		}
		a.mu.Unlock()
		a.transition(StateFailed, e.Reason)
		a.log.Warnf("Failed to connect to %q", a.ssid)
		return true, netip.Addr{}, errors.Wrapf(ErrAssociationFailed, "%q after %d retries", a.ssid, a.maxRetries)

	case AddressAcquired:
		a.mu.Lock()
		a.retries = 0
		a.addr = e.Addr
		a.mu.Unlock()
		a.transition(StateConnected, "address acquired")
		a.log.Infof("Connected to %q", a.ssid)
		a.log.Infof("Allocated IP address: %s", e.Addr)
		return true, e.Addr, nil

	default:
		a.log.Debugf("Ignoring event %T", ev)
	}
	return false, netip.Addr{}, nil
}

// connect issues an attempt. A driver that cannot even try is treated by
// the caller as a disconnect, so the retry budget still applies.
func (a *Association) connect() error {
	a.log.Debugf("Connect attempt to %q", a.ssid)
	if err := a.driver.Connect(); err != nil {
		a.log.WithError(err).Warn("Connect attempt rejected by driver")
		return err
	}
	return nil
}

func (a *Association) transition(to State, reason string) {
	a.mu.Lock()
	t := Transition{From: a.state, To: to, Retries: a.retries, Addr: a.addr, Reason: reason}
	a.state = to
	observers := append([]func(Transition){}, a.observers...)
	a.mu.Unlock()

	for _, fn := range observers {
		fn(t)
	}
}

// State returns the current state.
func (a *Association) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Retries returns the current retry counter.
func (a *Association) Retries() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.retries
}

// Addr returns the address obtained on success.
func (a *Association) Addr() netip.Addr {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.addr
}
