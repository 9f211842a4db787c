// Package adctest provides a scripted analog pin for tests.
package adctest

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/analog"
)

// ErrExhausted is returned once every scripted code has been read and
// Repeat is false.
var ErrExhausted = errors.New("adctest: playback exhausted")

// Playback replays Codes in order. With Repeat set the script loops.
type Playback struct {
	sync.Mutex
	N      string
	Codes  []int32
	Repeat bool
	Err    error // returned by every Read when set

	reads int
}

var _ analog.PinADC = (*Playback)(nil)

// Constant returns a pin that always reads code.
func Constant(name string, code int32) *Playback {
	return &Playback{N: name, Codes: []int32{code}, Repeat: true}
}

func (p *Playback) String() string   { return fmt.Sprintf("playback(%s)", p.N) }
func (p *Playback) Name() string     { return p.N }
func (p *Playback) Number() int      { return -1 }
func (p *Playback) Function() string { return "ADC" }
func (p *Playback) Halt() error      { return nil }

func (p *Playback) Range() (analog.Sample, analog.Sample) {
	return analog.Sample{}, analog.Sample{Raw: 4095}
}

func (p *Playback) Read() (analog.Sample, error) {
	p.Lock()
	defer p.Unlock()
	if p.Err != nil {
		return analog.Sample{}, p.Err
	}
	if len(p.Codes) == 0 || (!p.Repeat && p.reads >= len(p.Codes)) {
		return analog.Sample{}, ErrExhausted
	}
	c := p.Codes[p.reads%len(p.Codes)]
	p.reads++
	return analog.Sample{Raw: c}, nil
}

// Reads returns how many codes were consumed.
func (p *Playback) Reads() int {
	p.Lock()
	defer p.Unlock()
	return p.reads
}
