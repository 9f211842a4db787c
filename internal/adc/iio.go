package adc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/analog"
)

// DefaultIIODevice is the first industrial-I/O device exposed by the kernel.
const DefaultIIODevice = "/sys/bus/iio/devices/iio:device0"

// IIOPin reads a channel of a Linux industrial-I/O ADC through sysfs.
type IIOPin struct {
	name  string
	path  string
	ch    Channel
	curve *Curve
}

var _ analog.PinADC = (*IIOPin)(nil)

// NewIIOPin returns a pin reading in_voltage<ch>_raw under device.
func NewIIOPin(device string, ch Channel, name string, curve *Curve) (*IIOPin, error) {
	if device == "" {
		device = DefaultIIODevice
	}
	path := filepath.Join(device, fmt.Sprintf("in_voltage%d_raw", ch))
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "adc: channel %d unavailable", ch)
	}
	return &IIOPin{name: name, path: path, ch: ch, curve: curve}, nil
}

func (p *IIOPin) String() string   { return p.name + "(" + p.path + ")" }
func (p *IIOPin) Name() string     { return p.name }
func (p *IIOPin) Number() int      { return int(p.ch) }
func (p *IIOPin) Function() string { return "ADC" }
func (p *IIOPin) Halt() error      { return nil }

// Range returns the lowest and highest codes the pin can report.
func (p *IIOPin) Range() (analog.Sample, analog.Sample) {
	hi := Width12Bit.Max()
	if p.curve != nil {
		hi = p.curve.Width().Max()
	}
	return p.sample(0), p.sample(hi)
}

// Read reads the current raw code.
func (p *IIOPin) Read() (analog.Sample, error) {
	b, err := os.ReadFile(p.path)
	if err != nil {
		return analog.Sample{}, err
	}
	raw, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return analog.Sample{}, errors.Wrapf(err, "adc: parse %s", p.path)
	}
	return p.sample(raw), nil
}

func (p *IIOPin) sample(raw int) analog.Sample {
	s := analog.Sample{Raw: int32(raw)}
	if p.curve != nil {
		s.V = p.curve.Potential(raw)
	}
	return s
}
