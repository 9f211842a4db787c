package mqtt

import "fmt"

// EventKind numbers the session events.
type EventKind int

const (
	KindConnected EventKind = iota + 1
	KindDisconnected
	KindPublishAcked
	KindDataArrived
	KindError
	KindReconnecting
)

// Event is a session lifecycle notification.
type Event interface {
	Kind() EventKind
}

// Connected is posted when the broker accepted the connection.
type Connected struct {
	Server string
}

// Disconnected is posted when the connection was lost.
type Disconnected struct {
	Err error
}

// PublishAcked is posted when the broker acknowledged a QoS>0 publish.
type PublishAcked struct {
	MessageID uint16
}

// DataArrived carries an inbound message.
type DataArrived struct {
	Topic   string
	Payload []byte
}

// BrokerError reports a failed connect or publish.
type BrokerError struct {
	Err error
}

// Reconnecting is posted before every automatic reconnect attempt.
type Reconnecting struct{}

func (Connected) Kind() EventKind    { return KindConnected }
func (Disconnected) Kind() EventKind { return KindDisconnected }
func (PublishAcked) Kind() EventKind { return KindPublishAcked }
func (DataArrived) Kind() EventKind  { return KindDataArrived }
func (BrokerError) Kind() EventKind  { return KindError }
func (Reconnecting) Kind() EventKind { return KindReconnecting }

func (k EventKind) String() string {
	switch k {
	case KindConnected:
		return "connected"
	case KindDisconnected:
		return "disconnected"
	case KindPublishAcked:
		return "published"
	case KindDataArrived:
		return "data"
	case KindError:
		return "error"
	case KindReconnecting:
		return "reconnecting"
	}
	return fmt.Sprintf("event(%d)", int(k))
}
