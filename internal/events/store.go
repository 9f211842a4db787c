// Package events keeps a short in-memory history of connectivity events.
package events

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of events kept.
const DefaultCapacity = 100

// EventType represents the type of connectivity event
type EventType string

const (
	// Station events
	EventWiFiConnecting EventType = "wifi_connecting"
	EventWiFiRetry      EventType = "wifi_retry"
	EventWiFiConnected  EventType = "wifi_connected"
	EventWiFiFailed     EventType = "wifi_failed"

	// Broker events
	EventBrokerConnected    EventType = "broker_connected"
	EventBrokerDisconnected EventType = "broker_disconnected"
	EventBrokerReconnecting EventType = "broker_reconnecting"
	EventBrokerError        EventType = "broker_error"
	EventDataReceived       EventType = "data_received"

	// Sampling events
	EventSampleError EventType = "sample_error"
)

var knownTypes = map[EventType]struct{}{
	EventWiFiConnecting:     {},
	EventWiFiRetry:          {},
	EventWiFiConnected:      {},
	EventWiFiFailed:         {},
	EventBrokerConnected:    {},
	EventBrokerDisconnected: {},
	EventBrokerReconnecting: {},
	EventBrokerError:        {},
	EventDataReceived:       {},
	EventSampleError:        {},
}

// ParseType maps a query value to an EventType.
func ParseType(s string) (EventType, bool) {
	t := EventType(s)
	_, ok := knownTypes[t]
	return t, ok
}

// Event represents a connectivity event
type Event struct {
	ID        int64     `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Success   bool      `json:"success"`
	Details   string    `json:"details,omitempty"`
}

// Store holds events in memory with a fixed capacity (ring buffer)
type Store struct {
	mu      sync.RWMutex
	events  []Event
	maxSize int
	nextID  int64
	now     func() time.Time
}

// NewStore creates a new event store with specified max capacity
func NewStore(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = DefaultCapacity
	}
	return &Store{
		events:  make([]Event, 0, maxSize),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Add adds a new event to the store and returns its ID
func (s *Store) Add(eventType EventType, source string, success bool, details string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	event := Event{
		ID:        s.nextID,
		Type:      eventType,
		Timestamp: s.now(),
		Source:    source,
		Success:   success,
		Details:   details,
	}

	// Ring buffer: remove oldest if at max capacity
	if len(s.events) >= s.maxSize {
		s.events = s.events[1:]
	}
	s.events = append(s.events, event)
	return event.ID
}

// GetAll returns all events (newest first)
func (s *Store) GetAll() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return copy in reverse order (newest first)
	result := make([]Event, len(s.events))
	for i, e := range s.events {
		result[len(s.events)-1-i] = e
	}
	return result
}

// GetLast returns the last N events (newest first)
func (s *Store) GetLast(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.events) {
		n = len(s.events)
	}
	if n < 0 {
		n = 0
	}

	result := make([]Event, n)
	for i := 0; i < n; i++ {
		result[i] = s.events[len(s.events)-1-i]
	}
	return result
}

// GetSince returns events newer than the given ID (newest first)
func (s *Store) GetSince(lastID int64) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].ID > lastID {
			result = append(result, s.events[i])
		} else {
			break
		}
	}
	return result
}

// Count returns the total number of events
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// LastID returns the ID of the most recent event
func (s *Store) LastID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID
}
