package wifi

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
)

const (
	DefaultInterface     = "wlan0"
	defaultAttemptWindow = 10 * time.Second
)

// linkSource is the part of netlink the driver needs.
type linkSource interface {
	LinkByName(name string) (netlink.Link, error)
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
	AddrSubscribe(ch chan<- netlink.AddrUpdate, done <-chan struct{}) error
	LinkSubscribe(ch chan<- netlink.LinkUpdate, done <-chan struct{}) error
}

type kernelLinks struct{}

func (kernelLinks) LinkByName(name string) (netlink.Link, error) { return netlink.LinkByName(name) }

func (kernelLinks) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return netlink.AddrList(link, family)
}

func (kernelLinks) AddrSubscribe(ch chan<- netlink.AddrUpdate, done <-chan struct{}) error {
	return netlink.AddrSubscribe(ch, done)
}

func (kernelLinks) LinkSubscribe(ch chan<- netlink.LinkUpdate, done <-chan struct{}) error {
	return netlink.LinkSubscribe(ch, done)
}

// NetifDriver observes a Linux network interface whose join is performed by
// the system supplicant. A connect attempt succeeds when the kernel reports
// an IPv4 address on the interface within the attempt window, and fails when
// the window expires or the link goes down.
type NetifDriver struct {
	hub

	iface   string
	attempt time.Duration
	links   linkSource

	mu      sync.Mutex
	started bool
}

// NewNetifDriver watches iface. attempt <= 0 selects a 10s window.
func NewNetifDriver(iface string, attempt time.Duration) *NetifDriver {
	if iface == "" {
		iface = DefaultInterface
	}
	if attempt <= 0 {
		attempt = defaultAttemptWindow
	}
	return &NetifDriver{
		iface:   iface,
		attempt: attempt,
		links:   kernelLinks{},
	}
}

// Start checks that the interface exists and posts StationStarted.
func (d *NetifDriver) Start(cfg StationConfig) error {
	if _, err := d.links.LinkByName(d.iface); err != nil {
		return errors.Wrapf(err, "wifi: interface %s", d.iface)
	}
	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
	go d.emit(StationStarted{})
	return nil
}

// Connect begins one attempt window.
func (d *NetifDriver) Connect() error {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if !started {
		return errors.New("wifi: station not started")
	}
	go func() { d.emit(d.watch()) }()
	return nil
}

// watch blocks until the attempt resolves and returns the event to post.
func (d *NetifDriver) watch() Event {
	done := make(chan struct{})
	defer close(done)

	// Subscribe before listing so an address added in between is not missed
	addrCh := make(chan netlink.AddrUpdate, 8)
	if err := d.links.AddrSubscribe(addrCh, done); err != nil {
		return Disconnected{Reason: "address subscription: " + err.Error()}
	}
	// Subscriptions close their channels once done is closed
	defer func() { go drain(addrCh) }()

	linkCh := make(chan netlink.LinkUpdate, 8)
	if err := d.links.LinkSubscribe(linkCh, done); err != nil {
		return Disconnected{Reason: "link subscription: " + err.Error()}
	}
	defer func() { go drain(linkCh) }()

	link, err := d.links.LinkByName(d.iface)
	if err != nil {
		return Disconnected{Reason: err.Error()}
	}
	index := link.Attrs().Index

	existing, err := d.links.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return Disconnected{Reason: err.Error()}
	}
	for _, a := range existing {
		if ip, ok := usableIPv4(a.IPNet); ok {
			return AddressAcquired{Addr: ip}
		}
	}

	timer := time.NewTimer(d.attempt)
	defer timer.Stop()
	for {
		select {
		case u, ok := <-addrCh:
			if !ok {
				return Disconnected{Reason: "address subscription closed"}
			}
			if !u.NewAddr || u.LinkIndex != index {
				continue
			}
			if ip, ok := usableIPv4(&u.LinkAddress); ok {
				return AddressAcquired{Addr: ip}
			}
		case u, ok := <-linkCh:
			if !ok {
				return Disconnected{Reason: "link subscription closed"}
			}
			if u.Link == nil || u.Attrs().Index != index {
				continue
			}
			if u.Attrs().OperState == netlink.OperDown {
				return Disconnected{Reason: fmt.Sprintf("link %s down", d.iface)}
			}
		case <-timer.C:
			return Disconnected{Reason: fmt.Sprintf("no address on %s within %s", d.iface, d.attempt)}
		}
	}
}

func drain[T any](ch <-chan T) {
	for range ch {
	}
}

func usableIPv4(n *net.IPNet) (netip.Addr, bool) {
	if n == nil || n.IP == nil || n.IP.IsLoopback() {
		return netip.Addr{}, false
	}
	ip4 := n.IP.To4()
	if ip4 == nil {
		return netip.Addr{}, false
	}
	return netip.AddrFromSlice(ip4)
}
