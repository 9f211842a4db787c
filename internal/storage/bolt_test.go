package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *BoltStorage {
	t.Helper()
	store, err := NewBoltStorage(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBoltStorage_Values(t *testing.T) {
	store := openTemp(t)

	t.Run("Bytes", func(t *testing.T) {
		require.NoError(t, store.Set("wifi", "ssid", []byte("home")))
		v, err := store.Get("wifi", "ssid")
		require.NoError(t, err)
		assert.Equal(t, []byte("home"), v)
	})

	t.Run("Int", func(t *testing.T) {
		require.NoError(t, store.SetInt("system", "answer", 42))
		v, err := store.GetInt("system", "answer")
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("Bool", func(t *testing.T) {
		require.NoError(t, store.SetBool("mqtt", "flag", true))
		v, err := store.GetBool("mqtt", "flag")
		require.NoError(t, err)
		assert.True(t, v)
	})

	t.Run("JSON", func(t *testing.T) {
		type station struct {
			SSID string `json:"ssid"`
			Auth string `json:"auth"`
		}
		require.NoError(t, store.SetJSON("wifi", "station", station{"home", "open"}))
		var got station
		require.NoError(t, store.GetJSON("wifi", "station", &got))
		assert.Equal(t, station{"home", "open"}, got)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.GetInt("nope", "key")
		assert.True(t, errors.Is(err, ErrNotFound))
		_, err = store.Get("wifi", "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestBoltStorage_Increment(t *testing.T) {
	store := openTemp(t)
	for i := 1; i <= 3; i++ {
		n, err := store.Increment("system", "boot_count")
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	log, _ := test.NewNullLogger()

	store, err := Open(path, log)
	require.NoError(t, err)
	_, err = store.Increment("system", "boot_count")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(path, log)
	require.NoError(t, err)
	defer store.Close()
	n, err := store.GetInt("system", "boot_count")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpen_ErasesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xAB}, 128*1024), 0o600))

	log, hook := test.NewNullLogger()
	store, err := Open(path, log)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SetInt("system", "boot_count", 1))
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "Erasing settings file")
}

func TestOpen_OtherErrorsAreNotErased(t *testing.T) {
	dir := t.TempDir()
	// A directory cannot be opened as a database and must not be removed.
	_, err := Open(dir, nil)
	assert.Error(t, err)
	_, statErr := os.Stat(dir)
	assert.NoError(t, statErr)
}
