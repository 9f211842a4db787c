package storage

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

// BoltStorage is a bbolt implementation of the Storage interface
type BoltStorage struct {
	db *bbolt.DB
}

var _ Storage = (*BoltStorage)(nil)

// Open opens the settings file. A file that is corrupt or was written by an
// incompatible format version is erased and opened once more; a second
// failure is returned to the caller.
func Open(path string, log logrus.FieldLogger) (*BoltStorage, error) {
	s, err := NewBoltStorage(path)
	if err == nil {
		return s, nil
	}
	if !isCorrupt(err) {
		return nil, err
	}

	if log != nil {
		log.WithError(err).WithField("component", "storage").Warnf("Erasing settings file %s", path)
	}
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, errors.Wrap(rmErr, "failed to erase settings file")
	}
	return NewBoltStorage(path)
}

func isCorrupt(err error) bool {
	if errors.Is(err, bbolt.ErrInvalid) || errors.Is(err, bbolt.ErrVersionMismatch) || errors.Is(err, bbolt.ErrChecksum) {
		return true
	}
	return strings.Contains(err.Error(), "file size too small")
}

// NewBoltStorage opens or creates the database file at path
func NewBoltStorage(path string) (*BoltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open bolt database")
	}
	return &BoltStorage{db: db}, nil
}

// Get retrieves data by key
func (s *BoltStorage) Get(namespace, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return ErrNotFound
		}

		data := bucket.Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}

		value = make([]byte, len(data))
		copy(value, data)
		return nil
	})

	return value, err
}

// GetInt retrieves int data by key
func (s *BoltStorage) GetInt(namespace, key string) (int, error) {
	data, err := s.Get(namespace, key)
	if err != nil {
		return 0, err
	}

	value, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, errors.Wrap(err, "failed to parse int")
	}
	return value, nil
}

// GetBool retrieves bool data by key
func (s *BoltStorage) GetBool(namespace, key string) (bool, error) {
	data, err := s.Get(namespace, key)
	if err != nil {
		return false, err
	}

	value, err := strconv.ParseBool(string(data))
	if err != nil {
		return false, errors.Wrap(err, "failed to parse bool")
	}
	return value, nil
}

// GetJSON retrieves and unmarshals JSON data by key
func (s *BoltStorage) GetJSON(namespace, key string, v interface{}) error {
	data, err := s.Get(namespace, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "failed to unmarshal JSON")
	}
	return nil
}

// Set stores data by key
func (s *BoltStorage) Set(namespace, key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return errors.Wrap(err, "failed to create namespace bucket")
		}
		return bucket.Put([]byte(key), value)
	})
}

// SetInt stores int data by key
func (s *BoltStorage) SetInt(namespace, key string, value int) error {
	return s.Set(namespace, key, []byte(strconv.Itoa(value)))
}

// SetBool stores bool data by key
func (s *BoltStorage) SetBool(namespace, key string, value bool) error {
	return s.Set(namespace, key, []byte(strconv.FormatBool(value)))
}

// SetJSON marshals and stores JSON data by key
func (s *BoltStorage) SetJSON(namespace, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	return s.Set(namespace, key, data)
}

// Increment atomically adds one to an int key
func (s *BoltStorage) Increment(namespace, key string) (int, error) {
	var n int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return errors.Wrap(err, "failed to create namespace bucket")
		}
		if data := bucket.Get([]byte(key)); data != nil {
			if n, err = strconv.Atoi(string(data)); err != nil {
				return errors.Wrap(err, "failed to parse int")
			}
		}
		n++
		return bucket.Put([]byte(key), []byte(strconv.Itoa(n)))
	})
	return n, err
}

// Close closes the database
func (s *BoltStorage) Close() error {
	return s.db.Close()
}
