package monitor

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veftodii/air-quality-monitor/internal/adc"
	"github.com/veftodii/air-quality-monitor/internal/adc/adctest"
)

type linear struct{ k int }

func (l linear) ToVoltage(raw int) int { return raw * l.k }

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.msgs = append(p.msgs, message{topic, qos, retained, string(payload)})
	return uint16(len(p.msgs)), nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

var gasInputs = Options{
	Primary:   Input{Channel: 6, Name: "MQ7"},
	Secondary: Input{Channel: 7, Name: "MQ135"},
	QoS:       1,
}

func newSampler(t *testing.T, k int, mq7, mq135 *adctest.Playback) *adc.Sampler {
	t.Helper()
	s, err := adc.NewSampler(linear{k}, adc.Width12Bit, 64)
	require.NoError(t, err)
	s.Attach(6, mq7)
	s.Attach(7, mq135)
	return s
}

func TestLoop_CyclePublishesPrimaryOnly(t *testing.T) {
	mq7, mq135 := adctest.Constant("mq7", 100), adctest.Constant("mq135", 200)
	pub := &fakePublisher{}
	var out bytes.Buffer

	l, err := NewLoop(newSampler(t, 3, mq7, mq135), pub, &out, gasInputs, nil)
	require.NoError(t, err)

	c := l.Cycle()
	require.NoError(t, c.SampleErr)
	assert.Equal(t, 100, c.Primary.Averaged)
	assert.Equal(t, 200, c.Secondary.Averaged)
	assert.Equal(t, 300, c.Primary.MilliVolts)
	assert.Equal(t, 600, c.Secondary.MilliVolts)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, message{"/user/out/adc", 1, false, "300"}, pub.msgs[0])
	assert.True(t, c.Published)
	assert.Equal(t, uint16(1), c.MessageID)

	assert.Equal(t, "MQ7: 100 (300 mV)\tMQ135: 200 (600 mV)\n", out.String())
	assert.Equal(t, 64, mq7.Reads())
	assert.Equal(t, 64, mq135.Reads())
}

func TestLoop_SampleErrorSkipsPublish(t *testing.T) {
	mq7 := &adctest.Playback{N: "mq7", Codes: []int32{5000}, Repeat: true}
	pub := &fakePublisher{}
	var out bytes.Buffer
	log, hook := test.NewNullLogger()

	l, err := NewLoop(newSampler(t, 1, mq7, adctest.Constant("mq135", 1)), pub, &out, gasInputs, log)
	require.NoError(t, err)

	var seen []Cycle
	l.OnCycle(func(c Cycle) { seen = append(seen, c) })

	c := l.Cycle()
	assert.True(t, errors.Is(c.SampleErr, adc.ErrOutOfRange))
	assert.False(t, c.Published)
	assert.Zero(t, pub.count())
	assert.Empty(t, out.String())
	require.Len(t, seen, 1)
	assert.Equal(t, "Sampling MQ7 failed, cycle skipped", hook.LastEntry().Message)
}

func TestLoop_SecondaryErrorStillPublishesPrimary(t *testing.T) {
	mq135 := &adctest.Playback{N: "mq135", Codes: []int32{5000}, Repeat: true}
	pub := &fakePublisher{}
	var out bytes.Buffer
	log, hook := test.NewNullLogger()

	l, err := NewLoop(newSampler(t, 3, adctest.Constant("mq7", 100), mq135), pub, &out, gasInputs, log)
	require.NoError(t, err)

	c := l.Cycle()
	assert.NoError(t, c.SampleErr)
	assert.True(t, errors.Is(c.SecondaryErr, adc.ErrOutOfRange))
	assert.True(t, errors.Is(c.ReadErr(), adc.ErrOutOfRange))
	assert.True(t, c.Published)
	require.Equal(t, 1, pub.count())
	assert.Equal(t, "300", pub.msgs[0].payload)
	assert.Empty(t, out.String())
	assert.Equal(t, "Sampling MQ135 failed", hook.LastEntry().Message)
}

func TestLoop_PublishErrorIsReported(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	l, err := NewLoop(newSampler(t, 1, adctest.Constant("a", 1), adctest.Constant("b", 2)), pub, &bytes.Buffer{}, gasInputs, nil)
	require.NoError(t, err)

	c := l.Cycle()
	assert.NoError(t, c.SampleErr)
	assert.Error(t, c.PublishErr)
	assert.False(t, c.Published)

	last, ok := l.Last()
	require.True(t, ok)
	assert.Equal(t, c.Seq, last.Seq)
}

func TestLoop_RunOnePublishPerCycle(t *testing.T) {
	pub := &fakePublisher{}
	opts := gasInputs
	opts.Interval = 5 * time.Millisecond

	l, err := NewLoop(newSampler(t, 2, adctest.Constant("a", 10), adctest.Constant("b", 20)), pub, &bytes.Buffer{}, opts, nil)
	require.NoError(t, err)

	cycles := make(chan Cycle, 100)
	l.OnCycle(func(c Cycle) { cycles <- c })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-cycles:
		case <-time.After(time.Second):
			t.Fatal("cycle did not run")
		}
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, len(cycles)+3, pub.count())
	for _, m := range pub.msgs {
		assert.Equal(t, "/user/out/adc", m.topic)
		assert.Equal(t, "20", m.payload)
	}
}

func TestNewLoop_Validation(t *testing.T) {
	s := newSampler(t, 1, adctest.Constant("a", 1), adctest.Constant("b", 1))

	_, err := NewLoop(nil, &fakePublisher{}, nil, gasInputs, nil)
	assert.Error(t, err)

	_, err = NewLoop(s, &fakePublisher{}, nil, Options{Primary: Input{Channel: 6}, Secondary: Input{Channel: 6}}, nil)
	assert.Error(t, err)

	l, err := NewLoop(s, &fakePublisher{}, nil, gasInputs, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopic, l.Options().Topic)
	assert.Equal(t, DefaultInterval, l.Options().Interval)

	_, ok := l.Last()
	assert.False(t, ok)
}
