// Package monitor runs the sampling loop: read both gas sensors, print a
// diagnostic line and publish the primary channel.
package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/veftodii/air-quality-monitor/internal/adc"
)

// Defaults of the telemetry contract.
const (
	DefaultTopic    = "/user/out/adc"
	DefaultQoS      = 1
	DefaultInterval = 5000 * time.Millisecond
)

// Reader takes one averaged, converted reading. *adc.Sampler implements it.
type Reader interface {
	Read(ch adc.Channel, name string) (adc.Reading, error)
}

// Publisher sends one telemetry message. *mqtt.Session implements it.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) (uint16, error)
}

// Input names a sensor channel.
type Input struct {
	Channel adc.Channel
	Name    string
}

// Options configures a Loop.
type Options struct {
	Primary   Input // published
	Secondary Input // printed only
	Topic     string
	QoS       byte
	Retain    bool
	Interval  time.Duration
}

// Cycle is the outcome of one iteration.
type Cycle struct {
	Seq        uint64      `json:"seq"`
	Time       time.Time   `json:"time"`
	Primary    adc.Reading `json:"primary"`
	Secondary  adc.Reading `json:"secondary"`
	Published  bool        `json:"published"`
	MessageID  uint16      `json:"message_id,omitempty"`

	// SampleErr is a failed primary read; nothing was printed or published.
	SampleErr    error `json:"-"`
	// SecondaryErr is a failed secondary read; the primary was still published.
	SecondaryErr error `json:"-"`
	PublishErr   error `json:"-"`
}

// ReadErr returns the first sampling failure of the cycle.
func (c Cycle) ReadErr() error {
	if c.SampleErr != nil {
		return c.SampleErr
	}
	return c.SecondaryErr
}

// Loop owns the per-cycle pipeline. Its only state is the cycle counter
// and the last outcome.
type Loop struct {
	reader  Reader
	pub     Publisher
	console io.Writer
	opts    Options
	log     logrus.FieldLogger
	now     func() time.Time

	mu        sync.RWMutex
	seq       uint64
	last      Cycle
	observers []func(Cycle)
}

// NewLoop validates opts and fills in the defaults. A nil console
// selects stdout.
func NewLoop(r Reader, pub Publisher, console io.Writer, opts Options, log logrus.FieldLogger) (*Loop, error) {
	if r == nil || pub == nil {
		return nil, errors.New("monitor: reader and publisher are required")
	}
	if opts.Primary.Channel == opts.Secondary.Channel {
		return nil, errors.Errorf("monitor: primary and secondary share channel %d", opts.Primary.Channel)
	}
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if console == nil {
		console = os.Stdout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Loop{
		reader:  r,
		pub:     pub,
		console: console,
		opts:    opts,
		log:     log.WithField("component", "monitor"),
		now:     time.Now,
	}, nil
}

// OnCycle registers fn to be called after every cycle.
func (l *Loop) OnCycle(fn func(Cycle)) {
	l.mu.Lock()
	l.observers = append(l.observers, fn)
	l.mu.Unlock()
}

// Cycle performs one sample, convert, print and publish pass. A failed
// primary read skips the print and the publish; a failed secondary read
// skips only the print.
func (l *Loop) Cycle() Cycle {
	l.mu.Lock()
	l.seq++
	c := Cycle{Seq: l.seq, Time: l.now()}
	l.mu.Unlock()

	var err error
	c.Primary, err = l.reader.Read(l.opts.Primary.Channel, l.opts.Primary.Name)
	if err != nil {
		c.SampleErr = err
		l.log.WithError(err).Errorf("Sampling %s failed, cycle skipped", l.opts.Primary.Name)
		l.finish(c)
		return c
	}

	c.Secondary, err = l.reader.Read(l.opts.Secondary.Channel, l.opts.Secondary.Name)
	if err != nil {
		c.Secondary = adc.Reading{}
		c.SecondaryErr = err
		l.log.WithError(err).Errorf("Sampling %s failed", l.opts.Secondary.Name)
	} else {
		fmt.Fprintf(l.console, "%s: %d (%d mV)\t%s: %d (%d mV)\n",
			c.Primary.Name, c.Primary.Averaged, c.Primary.MilliVolts,
			c.Secondary.Name, c.Secondary.Averaged, c.Secondary.MilliVolts)
	}

	payload := []byte(strconv.Itoa(c.Primary.MilliVolts))
	id, err := l.pub.Publish(l.opts.Topic, l.opts.QoS, l.opts.Retain, payload)
	if err != nil {
		c.PublishErr = err
		l.log.WithError(err).Warn("Publish failed")
	} else {
		c.Published = true
		c.MessageID = id
		l.log.Debugf("Sent publish: msg_id = %d", id)
	}

	l.finish(c)
	return c
}

func (l *Loop) finish(c Cycle) {
	l.mu.Lock()
	l.last = c
	observers := append([]func(Cycle){}, l.observers...)
	l.mu.Unlock()

	for _, fn := range observers {
		fn(c)
	}
}

// Run repeats Cycle with a fixed delay between the end of one cycle and
// the start of the next until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Infof("Sampling every %v, publishing %s to %s", l.opts.Interval, l.opts.Primary.Name, l.opts.Topic)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Info("Sampling loop stopped")
			return ctx.Err()
		case <-timer.C:
			l.Cycle()
			timer.Reset(l.opts.Interval)
		}
	}
}

// Last returns the most recent cycle; ok is false before the first one.
func (l *Loop) Last() (c Cycle, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last, l.last.Seq > 0
}

// Options returns the effective options.
func (l *Loop) Options() Options {
	return l.opts
}
