package console

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCloser struct {
	bytes.Buffer
	closed bool
}

func (n *nopCloser) Close() error {
	n.closed = true
	return nil
}

type brokenPort struct{ closed bool }

func (b *brokenPort) Write([]byte) (int, error) { return 0, errors.New("device gone") }
func (b *brokenPort) Close() error              { b.closed = true; return nil }

func TestConsole_WritesPrimaryAndMirror(t *testing.T) {
	var out bytes.Buffer
	mirror := &nopCloser{}
	c := New(&out, nil)
	c.Mirror(mirror)

	line := "MQ7: 100 (223 mV)\tMQ135: 200 (303 mV)\n"
	n, err := c.Write([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, len(line), n)
	assert.Equal(t, line, out.String())
	assert.Equal(t, line, mirror.String())

	require.NoError(t, c.Close())
	assert.True(t, mirror.closed)
}

func TestConsole_MirrorFailureIsLoggedOnce(t *testing.T) {
	var out bytes.Buffer
	log, hook := test.NewNullLogger()
	c := New(&out, log)
	c.Mirror(&brokenPort{})

	for i := 0; i < 3; i++ {
		_, err := c.Write([]byte("x\n"))
		require.NoError(t, err)
	}
	assert.Equal(t, "x\nx\nx\n", out.String())
	assert.Len(t, hook.AllEntries(), 1)
}

func TestOpen_WithoutPortIsStdoutOnly(t *testing.T) {
	c, err := Open("", 115200, nil)
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}

func TestOpen_MissingPort(t *testing.T) {
	_, err := Open("/dev/does-not-exist-aqm", 115200, nil)
	assert.Error(t, err)
}
