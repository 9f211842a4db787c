package mqtt

import (
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidBrokerURI is returned for addresses that cannot be dialed.
var ErrInvalidBrokerURI = errors.New("mqtt: invalid broker URI")

// Broker is a parsed broker address.
type Broker struct {
	Server   string // address handed to paho, credentials stripped
	Username string
	Password string
	TLS      bool
}

var schemes = map[string]struct {
	paho string
	port string
	tls  bool
}{
	"mqtt":  {"tcp", "1883", false},
	"tcp":   {"tcp", "1883", false},
	"mqtts": {"ssl", "8883", true},
	"ssl":   {"ssl", "8883", true},
	"tls":   {"tls", "8883", true},
	"ws":    {"ws", "80", false},
	"wss":   {"wss", "443", true},
}

// ParseBrokerURI parses <scheme>://<user>:<password>@<host>[:<port>].
func ParseBrokerURI(raw string) (Broker, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Broker{}, errors.Wrap(ErrInvalidBrokerURI, err.Error())
	}
	sc, ok := schemes[strings.ToLower(u.Scheme)]
	if !ok {
		return Broker{}, errors.Wrapf(ErrInvalidBrokerURI, "unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return Broker{}, errors.Wrap(ErrInvalidBrokerURI, "missing host")
	}
	port := u.Port()
	if port == "" {
		port = sc.port
	}

	b := Broker{TLS: sc.tls}
	if u.User != nil {
		b.Username = u.User.Username()
		b.Password, _ = u.User.Password()
	}
	server := url.URL{Scheme: sc.paho, Host: net.JoinHostPort(host, port)}
	if sc.paho == "ws" || sc.paho == "wss" {
		server.Path = u.Path
	}
	b.Server = server.String()
	return b, nil
}

// String returns the server address with the credentials redacted.
func (b Broker) String() string {
	if b.Username == "" {
		return b.Server
	}
	return b.Username + ":***@" + b.Server
}
