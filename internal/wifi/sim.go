package wifi

import (
	"fmt"
	"net/netip"
	"sync"
	"time"
)

// SimDriver pretends to join a network. It reports FailuresBeforeJoin
// disconnects and then an address; a negative value never joins.
type SimDriver struct {
	hub

	FailuresBeforeJoin int
	Addr               netip.Addr
	Delay              time.Duration

	mu       sync.Mutex
	attempts int
}

// NewSimDriver returns a driver that joins on the first attempt.
func NewSimDriver() *SimDriver {
	return &SimDriver{
		Addr:  netip.AddrFrom4([4]byte{192, 168, 4, 2}),
		Delay: 100 * time.Millisecond,
	}
}

func (d *SimDriver) Start(cfg StationConfig) error {
	go d.emit(StationStarted{})
	return nil
}

func (d *SimDriver) Connect() error {
	d.mu.Lock()
	d.attempts++
	n := d.attempts
	d.mu.Unlock()

	go func() {
		time.Sleep(d.Delay)
		if d.FailuresBeforeJoin < 0 || n <= d.FailuresBeforeJoin {
			d.emit(Disconnected{Reason: fmt.Sprintf("simulated failure %d", n)})
			return
		}
		d.emit(AddressAcquired{Addr: d.Addr})
	}()
	return nil
}

// Attempts returns the number of Connect calls.
func (d *SimDriver) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}
