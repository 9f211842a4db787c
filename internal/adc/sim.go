package adc

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"periph.io/x/conn/v3/analog"
)

// SimPin produces codes around a baseline with uniform noise. It stands in
// for real hardware on development hosts.
type SimPin struct {
	mu       sync.Mutex
	name     string
	ch       Channel
	width    BitWidth
	baseline int
	noise    int
	rnd      *rand.Rand
}

var _ analog.PinADC = (*SimPin)(nil)

// NewSimPin creates a simulated pin. noise is the maximum deviation in codes.
func NewSimPin(ch Channel, name string, width BitWidth, baseline, noise int) *SimPin {
	return &SimPin{
		name:     name,
		ch:       ch,
		width:    width,
		baseline: baseline,
		noise:    noise,
		rnd:      rand.New(rand.NewPCG(uint64(ch), uint64(baseline))),
	}
}

func (p *SimPin) String() string   { return fmt.Sprintf("%s(sim ch%d)", p.name, p.ch) }
func (p *SimPin) Name() string     { return p.name }
func (p *SimPin) Number() int      { return int(p.ch) }
func (p *SimPin) Function() string { return "ADC" }
func (p *SimPin) Halt() error      { return nil }

func (p *SimPin) Range() (analog.Sample, analog.Sample) {
	return analog.Sample{}, analog.Sample{Raw: int32(p.width.Max())}
}

func (p *SimPin) Read() (analog.Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.baseline
	if p.noise > 0 {
		v += p.rnd.IntN(2*p.noise+1) - p.noise
	}
	if v < 0 {
		v = 0
	}
	if m := p.width.Max(); v > m {
		v = m
	}
	return analog.Sample{Raw: int32(v)}, nil
}
