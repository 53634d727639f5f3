package simcam

import (
	"sync"
	"time"

	"github.com/cjeanneret/CamDeck/internal/debug"
	"github.com/cjeanneret/CamDeck/internal/hw/gpio"
)

// Signals drives the two status lines of a camera rig:
// - TALLY: lit (HIGH) while the session is acquiring
// - STROBE: pulsed HIGH for a moment on every capture
//
// A pin number of 0 means the line is not wired.
type Signals struct {
	gpio      gpio.Driver
	tallyPin  int
	strobePin int
	pulse     time.Duration // strobe hold time

	mu sync.Mutex // serializes strobe pulses
}

// NewSignals configures the tally and strobe pins as outputs, both LOW.
func NewSignals(g gpio.Driver, tallyPin, strobePin int, pulse time.Duration) *Signals {
	for _, pin := range []int{tallyPin, strobePin} {
		if pin == 0 {
			continue
		}
		_ = g.SetupPin(pin, gpio.Output)
		_ = g.WritePin(pin, gpio.Low)
	}
	return &Signals{
		gpio:      g,
		tallyPin:  tallyPin,
		strobePin: strobePin,
		pulse:     pulse,
	}
}

// Tally switches the tally light.
func (s *Signals) Tally(on bool) error {
	if s == nil || s.tallyPin == 0 {
		return nil
	}
	debug.Verbose("Tally: pin %d -> %v", s.tallyPin, on)
	return s.gpio.WritePin(s.tallyPin, gpio.Level(on))
}

// Strobe raises the strobe line, holds it and drops it again.
func (s *Signals) Strobe() error {
	if s == nil || s.strobePin == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	debug.Verbose("Strobe: pin %d -> HIGH for %v", s.strobePin, s.pulse)
	if err := s.gpio.WritePin(s.strobePin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.pulse)
	return s.gpio.WritePin(s.strobePin, gpio.Low)
}

// Close drops both lines.
func (s *Signals) Close() error {
	if s == nil {
		return nil
	}
	for _, pin := range []int{s.tallyPin, s.strobePin} {
		if pin != 0 {
			_ = s.gpio.WritePin(pin, gpio.Low)
		}
	}
	return nil
}
