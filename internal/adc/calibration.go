// Package adc converts raw analog-to-digital codes into calibrated voltages.
//
// The conversion follows the linear characterization used by the ESP32 ADC1
// block: every raw code is first normalized to 12 bits, then mapped through
// a per-attenuation scale and offset derived from the reference voltage.
package adc

import (
	"fmt"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
)

// Attenuation is the input attenuation applied in front of the converter.
type Attenuation int

const (
	Atten0dB Attenuation = iota
	Atten2_5dB
	Atten6dB
	Atten11dB
)

// BitWidth is the resolution of a conversion.
type BitWidth int

const (
	Width9Bit  BitWidth = 9
	Width10Bit BitWidth = 10
	Width11Bit BitWidth = 11
	Width12Bit BitWidth = 12
)

// DefaultVRef is the nominal reference voltage used when none was measured.
const DefaultVRef = 1100 // mV

const (
	fullScale12 = 4096
	coeffScale  = 65536
	coeffRound  = coeffScale / 2
)

// Per-attenuation linear coefficients for ADC1.
var (
	attenScales  = [...]int64{57431, 76236, 105481, 196602}
	attenOffsets = [...]int64{75, 78, 107, 142}
)

var (
	// ErrUnsupported is returned when a curve cannot be characterized for the
	// requested parameters.
	ErrUnsupported = errors.New("adc: unsupported characterization")

	// ErrOutOfRange is returned when a raw code falls outside the resolution
	// of the converter.
	ErrOutOfRange = errors.New("adc: raw code out of range")
)

// ParseAttenuation maps a decibel value (0, 2.5, 6, 11) to an Attenuation.
func ParseAttenuation(db float64) (Attenuation, error) {
	switch db {
	case 0:
		return Atten0dB, nil
	case 2.5:
		return Atten2_5dB, nil
	case 6:
		return Atten6dB, nil
	case 11:
		return Atten11dB, nil
	}
	return 0, errors.Wrapf(ErrUnsupported, "attenuation %vdB", db)
}

func (a Attenuation) String() string {
	switch a {
	case Atten0dB:
		return "0dB"
	case Atten2_5dB:
		return "2.5dB"
	case Atten6dB:
		return "6dB"
	case Atten11dB:
		return "11dB"
	}
	return fmt.Sprintf("Attenuation(%d)", int(a))
}

// Max returns the largest raw code for the width.
func (w BitWidth) Max() int {
	return 1<<uint(w) - 1
}

func (w BitWidth) valid() bool {
	return w >= Width9Bit && w <= Width12Bit
}

// Curve maps raw codes to millivolts. It is immutable once characterized.
type Curve struct {
	vref   int
	atten  Attenuation
	width  BitWidth
	coeffA int64
	coeffB int64
}

// Characterize derives a calibration curve for the given reference voltage
// (millivolts), attenuation and bit width.
func Characterize(vref int, atten Attenuation, width BitWidth) (*Curve, error) {
	if vref <= 0 {
		return nil, errors.Wrapf(ErrUnsupported, "reference voltage %d mV", vref)
	}
	if atten < Atten0dB || atten > Atten11dB {
		return nil, errors.Wrapf(ErrUnsupported, "attenuation %s", atten)
	}
	if !width.valid() {
		return nil, errors.Wrapf(ErrUnsupported, "bit width %d", int(width))
	}
	return &Curve{
		vref:   vref,
		atten:  atten,
		width:  width,
		coeffA: int64(vref) * attenScales[atten] / fullScale12,
		coeffB: attenOffsets[atten],
	}, nil
}

// ToVoltage converts a raw code to millivolts.
func (c *Curve) ToVoltage(raw int) int {
	if raw < 0 {
		raw = 0
	}
	raw12 := int64(raw) << uint(Width12Bit-c.width)
	if raw12 > fullScale12-1 {
		raw12 = fullScale12 - 1
	}
	return int((c.coeffA*raw12+coeffRound)/coeffScale + c.coeffB)
}

// Potential is ToVoltage expressed as a physical quantity.
func (c *Curve) Potential(raw int) physic.ElectricPotential {
	return physic.ElectricPotential(c.ToVoltage(raw)) * physic.MilliVolt
}

// Width returns the bit width the curve was characterized for.
func (c *Curve) Width() BitWidth {
	return c.width
}

func (c *Curve) String() string {
	return fmt.Sprintf("Curve{VRef: %d mV, Atten: %s, Width: %d bit, A: %d, B: %d}",
		c.vref, c.atten, int(c.width), c.coeffA, c.coeffB)
}
