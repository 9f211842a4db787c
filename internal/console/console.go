// Package console is the diagnostic output of the monitor: one line per
// sampling cycle on stdout, optionally mirrored to a serial UART.
package console

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Console writes to a primary stream and an optional mirror. Mirror write
// failures are logged and never reach the caller.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	mirror io.WriteCloser
	log    logrus.FieldLogger
	failed bool
}

// New returns a console writing to out, or stdout when out is nil.
func New(out io.Writer, log logrus.FieldLogger) *Console {
	if out == nil {
		out = os.Stdout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Console{out: out, log: log.WithField("component", "console")}
}

// Open returns a stdout console mirrored to the serial port (8N1) when
// port is not empty.
func Open(port string, baud int, log logrus.FieldLogger) (*Console, error) {
	c := New(nil, log)
	if port == "" {
		return c, nil
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", port)
	}
	c.log.Infof("Console mirrored to %s at %d baud", port, baud)
	c.Mirror(p)
	return c, nil
}

// Mirror attaches w as the secondary output, replacing any previous one.
func (c *Console) Mirror(w io.WriteCloser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mirror = w
	c.failed = false
}

func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.out.Write(p)
	if c.mirror != nil {
		if _, merr := c.mirror.Write(p); merr != nil {
			// Log the first failure only, a detached UART fails every cycle
			if !c.failed {
				c.log.WithError(merr).Warn("Console mirror write failed")
			}
			c.failed = true
		} else {
			c.failed = false
		}
	}
	return n, err
}

// Close closes the mirror. The primary stream is left open.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mirror == nil {
		return nil
	}
	err := c.mirror.Close()
	c.mirror = nil
	return err
}
