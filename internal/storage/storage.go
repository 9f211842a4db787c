// Package storage persists device settings across restarts.
//
// Settings are grouped into namespaces, one bbolt bucket each. Nothing
// measured by the device is ever written here.
package storage

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("key not found")
)

// Storage is the interface for namespaced settings
type Storage interface {
	// Get retrieves data by key
	// Returns ErrNotFound if the key doesn't exist
	Get(namespace, key string) ([]byte, error)

	// GetInt retrieves int data by key
	GetInt(namespace, key string) (int, error)

	// GetBool retrieves bool data by key
	GetBool(namespace, key string) (bool, error)

	// GetJSON retrieves and unmarshals JSON data by key
	GetJSON(namespace, key string, v interface{}) error

	// Set stores data by key
	Set(namespace, key string, value []byte) error

	// SetInt stores int data by key
	SetInt(namespace, key string, value int) error

	// SetBool stores bool data by key
	SetBool(namespace, key string, value bool) error

	// SetJSON marshals and stores JSON data by key
	SetJSON(namespace, key string, v interface{}) error

	// Increment atomically adds one to an int key and returns the new value
	Increment(namespace, key string) (int, error)

	// Close closes the storage
	Close() error
}
