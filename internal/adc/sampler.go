package adc

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/analog"
)

// DefaultSamples is the number of raw reads averaged per reading.
const DefaultSamples = 64

// Channel identifies an analog input.
type Channel int

// Converter maps an averaged raw code to millivolts. *Curve implements it.
type Converter interface {
	ToVoltage(raw int) int
}

// Reading is the result of sampling one channel during a cycle.
type Reading struct {
	Channel    Channel `json:"channel"`
	Name       string  `json:"name"`
	Raw        int     `json:"raw"`
	Averaged   int     `json:"averaged"`
	MilliVolts int     `json:"millivolts"`
}

// Sampler reads channels through periph analog pins and converts the codes
// with a calibration curve it owns for its lifetime.
type Sampler struct {
	mu      sync.Mutex
	pins    map[Channel]analog.PinADC
	conv    Converter
	width   BitWidth
	samples int
}

// NewSampler creates a sampler. samples <= 0 selects DefaultSamples.
func NewSampler(conv Converter, width BitWidth, samples int) (*Sampler, error) {
	if conv == nil {
		return nil, errors.New("adc: converter is required")
	}
	if !width.valid() {
		return nil, errors.Wrapf(ErrUnsupported, "bit width %d", int(width))
	}
	if samples <= 0 {
		samples = DefaultSamples
	}
	return &Sampler{
		pins:    make(map[Channel]analog.PinADC),
		conv:    conv,
		width:   width,
		samples: samples,
	}, nil
}

// Attach binds a pin to a channel, replacing any previous binding.
func (s *Sampler) Attach(ch Channel, p analog.PinADC) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins[ch] = p
}

// Samples returns the configured multisample count.
func (s *Sampler) Samples() int {
	return s.samples
}

func (s *Sampler) pin(ch Channel) (analog.PinADC, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[ch]
	if !ok {
		return nil, fmt.Errorf("adc: channel %d not attached", ch)
	}
	return p, nil
}

// Sample returns one instantaneous raw code.
func (s *Sampler) Sample(ch Channel) (int, error) {
	p, err := s.pin(ch)
	if err != nil {
		return 0, err
	}
	return s.read(ch, p)
}

func (s *Sampler) read(ch Channel, p analog.PinADC) (int, error) {
	smp, err := p.Read()
	if err != nil {
		return 0, errors.Wrapf(err, "adc: read channel %d", ch)
	}
	raw := int(smp.Raw)
	if raw < 0 || raw > s.width.Max() {
		return raw, errors.Wrapf(ErrOutOfRange, "channel %d code %d", ch, raw)
	}
	return raw, nil
}

// AveragedSample returns the truncated mean of n consecutive raw reads.
func (s *Sampler) AveragedSample(ch Channel, n int) (int, error) {
	avg, _, err := s.average(ch, n)
	return avg, err
}

func (s *Sampler) average(ch Channel, n int) (avg, last int, err error) {
	if n < 1 {
		return 0, 0, fmt.Errorf("adc: sample count must be positive, got %d", n)
	}
	p, err := s.pin(ch)
	if err != nil {
		return 0, 0, err
	}
	sum := 0
	for i := 0; i < n; i++ {
		last, err = s.read(ch, p)
		if err != nil {
			return 0, last, err
		}
		sum += last
	}
	return sum / n, last, nil
}

// ToVoltage converts a raw code to millivolts.
func (s *Sampler) ToVoltage(raw int) int {
	return s.conv.ToVoltage(raw)
}

// Read takes an averaged reading of ch and converts it to millivolts.
func (s *Sampler) Read(ch Channel, name string) (Reading, error) {
	avg, last, err := s.average(ch, s.samples)
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		Channel:    ch,
		Name:       name,
		Raw:        last,
		Averaged:   avg,
		MilliVolts: s.conv.ToVoltage(avg),
	}, nil
}

// Halt halts every attached pin.
func (s *Sampler) Halt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, p := range s.pins {
		if err := p.Halt(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
