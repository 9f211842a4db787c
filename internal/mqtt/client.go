// Package mqtt provides the telemetry session to the remote broker.
package mqtt

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config holds MQTT session configuration
type Config struct {
	URI       string        // <scheme>://<user>:<password>@<host>[:<port>]
	ClientID  string        // Unique client ID (generated if empty)
	KeepAlive time.Duration // Keep alive interval (30s if zero)
}

// Session is one logical connection to the broker. Reconnection and
// backoff are left to paho; lifecycle notifications are funnelled through
// a single dispatcher goroutine.
type Session struct {
	client mqtt.Client
	broker Broker
	log    logrus.FieldLogger

	events chan Event
	done   chan struct{}
	once   sync.Once

	mu        sync.RWMutex
	observers []func(Event)
}

// StartSession configures the client, starts connecting in the background
// and returns immediately.
func StartSession(cfg Config, log logrus.FieldLogger) (*Session, error) {
	b, err := ParseBrokerURI(cfg.URI)
	if err != nil {
		return nil, err
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("aqm-%d", time.Now().Unix())
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}

	s := newSession(b, log)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.Server)
	opts.SetClientID(cfg.ClientID)
	if b.Username != "" {
		opts.SetUsername(b.Username)
	}
	if b.Password != "" {
		opts.SetPassword(b.Password)
	}
	if b.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(s.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		s.post(Reconnecting{})
	})
	opts.SetDefaultPublishHandler(s.onMessage)

	// Reconnect settings
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(10 * time.Second)

	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)

	s.client = mqtt.NewClient(opts)
	s.start()
	return s, nil
}

func newSession(b Broker, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		broker: b,
		log:    log.WithField("component", "mqtt"),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

func (s *Session) start() {
	go s.dispatch()

	s.log.Infof("Connecting to broker %s", s.broker)
	token := s.client.Connect()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			s.post(BrokerError{Err: errors.Wrap(err, "connect")})
		}
	}()
}

// OnEvent registers fn to receive every event after it was logged.
func (s *Session) OnEvent(fn func(Event)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Session) onConnect(mqtt.Client) {
	s.post(Connected{Server: s.broker.Server})
}

func (s *Session) onConnectionLost(_ mqtt.Client, err error) {
	s.post(Disconnected{Err: err})
}

func (s *Session) onMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := append([]byte(nil), msg.Payload()...)
	s.post(DataArrived{Topic: msg.Topic(), Payload: payload})
}

func (s *Session) post(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) dispatch() {
	for {
		select {
		case ev := <-s.events:
			s.handle(ev)
		case <-s.done:
			return
		}
	}
}

// handle logs an event; state is never exposed from here.
func (s *Session) handle(ev Event) {
	s.log.Debugf("Event dispatched: kind = %d", ev.Kind())

	switch e := ev.(type) {
	case Connected:
		s.log.Infof("Connected to broker %s", e.Server)
	case Disconnected:
		s.log.WithError(e.Err).Info("Disconnected from broker")
	case PublishAcked:
		s.log.Infof("Published: msg_id = %d", e.MessageID)
	case DataArrived:
		s.log.WithFields(logrus.Fields{
			"topic": e.Topic,
			"data":  string(e.Payload),
		}).Info("Data received")
	case BrokerError:
		s.log.WithError(e.Err).Info("Broker error")
	default:
		s.log.Infof("Other event: id = %d", ev.Kind())
	}

	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()
	for _, fn := range observers {
		fn(ev)
	}
}

// Publish queues payload on topic. It does not wait for delivery: the
// broker acknowledgement arrives later as a PublishAcked event.
func (s *Session) Publish(topic string, qos byte, retained bool, payload []byte) (uint16, error) {
	token := s.client.Publish(topic, qos, retained, payload)
	id := messageID(token)

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return id, errors.Wrapf(err, "publish to %s", topic)
		}
	default:
	}

	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			s.post(BrokerError{Err: errors.Wrapf(err, "publish msg_id %d", id)})
			return
		}
		if qos > 0 {
			s.post(PublishAcked{MessageID: id})
		}
	}()
	return id, nil
}

func messageID(t mqtt.Token) uint16 {
	if pt, ok := t.(interface{ MessageID() uint16 }); ok {
		return pt.MessageID()
	}
	return 0
}

// IsConnected returns true if the client currently holds a connection.
func (s *Session) IsConnected() bool {
	return s.client != nil && s.client.IsConnected()
}

// Broker returns the parsed broker address.
func (s *Session) Broker() Broker {
	return s.broker
}

// Close disconnects and stops the dispatcher.
func (s *Session) Close() {
	s.once.Do(func() {
		s.client.Disconnect(250) // Wait up to 250ms for graceful disconnect
		close(s.done)
		s.log.Info("Session closed")
	})
}
