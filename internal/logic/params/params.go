// Package params keeps the panel's mirror of the camera parameters in sync
// with the controller.
//
// Continuous parameters (gain, exposure, white balance, gamma) follow the
// operator's drag locally and are pushed once, when the gesture is released.
// Discrete parameters (gamma enabled, pixel format) are pushed on every change.
// Every value is clamped to its domain before it is pushed.
package params

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/cjeanneret/CamDeck/internal/camera"
	"github.com/cjeanneret/CamDeck/internal/debug"
)

var (
	ErrUnknownParam = errors.New("unknown parameter")
	ErrNoGesture    = errors.New("no gesture in progress")
)

// Setter is the part of the controller that accepts parameter writes.
type Setter interface {
	SetParam(p camera.Param, v float64)
	SetGammaEnabled(on bool)
	SetPixelFormat(f camera.PixelFormat)
}

// gesture is the in-flight proposal for one continuous parameter.
type gesture struct {
	active bool
	value  float64
}

// Sync is the two-way binding between the panel and the controller.
type Sync struct {
	ctrl Setter

	mu        sync.RWMutex
	canonical camera.Parameters
	gestures  [len(paramSlots)]gesture
}

var paramSlots = [...]camera.Param{camera.Gain, camera.Exposure, camera.WBRed, camera.Gamma}

// New creates a Sync seeded with the controller's current parameters.
func New(ctrl Setter, initial camera.Parameters) *Sync {
	return &Sync{
		ctrl:      ctrl,
		canonical: initial,
	}
}

func slot(p camera.Param) (int, error) {
	for i, sp := range paramSlots {
		if sp == p {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownParam, p)
}

// ApplyCanonical replaces the mirror with values pushed by the controller.
// Parameters with a gesture in progress keep their local display until the
// gesture is released.
func (s *Sync) ApplyCanonical(p camera.Parameters) {
	s.mu.Lock()
	s.canonical = p
	s.mu.Unlock()
	debug.Verbose("Params: canonical update %+v", p)
}

// Canonical returns the last canonical parameters, including values committed
// by this panel.
func (s *Sync) Canonical() camera.Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canonical
}

// Displayed returns what the operator sees: the canonical values with any
// in-progress gesture values on top.
func (s *Sync) Displayed() camera.Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.canonical
	for i, g := range s.gestures {
		if g.active {
			d = d.With(paramSlots[i], g.value)
		}
	}
	return d
}

// Dragging reports whether a gesture is in progress for p.
func (s *Sync) Dragging(p camera.Param) bool {
	i, err := slot(p)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gestures[i].active
}

// proposal sanitizes an operator value: NaN keeps the current value, anything
// else is clamped to the parameter's domain.
func proposal(p camera.Param, v, current float64) float64 {
	if math.IsNaN(v) {
		v = current
	}
	return p.Clamp(v)
}

// Drag updates the local value of p, starting a gesture if none is in
// progress. Nothing is pushed to the controller.
func (s *Sync) Drag(p camera.Param, v float64) error {
	i, err := slot(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	g := &s.gestures[i]
	current := s.canonical.Get(p)
	if g.active {
		current = g.value
	}
	g.active = true
	g.value = proposal(p, v, current)
	local := g.value
	s.mu.Unlock()
	debug.Verbose("Params: drag %s -> %v", p, local)
	return nil
}

// Nudge drags p by delta steps relative to its displayed value.
func (s *Sync) Nudge(p camera.Param, steps int) error {
	if _, err := slot(p); err != nil {
		return err
	}
	cur := s.Displayed().Get(p)
	return s.Drag(p, cur+float64(steps)*p.Range().Step)
}

// Release ends the gesture on p and pushes its value exactly once. The
// committed value becomes the canonical mirror value, overriding whatever the
// controller reported during the gesture.
func (s *Sync) Release(p camera.Param) (float64, error) {
	i, err := slot(p)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	g := &s.gestures[i]
	if !g.active {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w for %v", ErrNoGesture, p)
	}
	v := g.value
	*g = gesture{}
	s.canonical = s.canonical.With(p, v)
	s.mu.Unlock()

	debug.Param(p.String(), v)
	s.ctrl.SetParam(p, v)
	return v, nil
}

// Commit is a complete gesture in one call: drag to v and release.
// It returns the value that was pushed.
func (s *Sync) Commit(p camera.Param, v float64) (float64, error) {
	if err := s.Drag(p, v); err != nil {
		return 0, err
	}
	return s.Release(p)
}

// Cancel abandons the gesture on p without pushing; the display falls back to
// the canonical value.
func (s *Sync) Cancel(p camera.Param) {
	i, err := slot(p)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.gestures[i] = gesture{}
	s.mu.Unlock()
}

// SetGammaEnabled pushes the gamma switch immediately.
func (s *Sync) SetGammaEnabled(on bool) {
	s.mu.Lock()
	s.canonical.GammaEnabled = on
	s.mu.Unlock()

	debug.Param("gammaEnabled", on)
	s.ctrl.SetGammaEnabled(on)
}

// ToggleGamma flips the displayed gamma switch and pushes the new state.
func (s *Sync) ToggleGamma() bool {
	on := !s.Displayed().GammaEnabled
	s.SetGammaEnabled(on)
	return on
}

// SetPixelFormat pushes a pixel format selection immediately.
func (s *Sync) SetPixelFormat(f camera.PixelFormat) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %d", camera.ErrUnknownPixelFormat, int(f))
	}
	s.mu.Lock()
	s.canonical.PixelFormat = f
	s.mu.Unlock()

	debug.Param("pixelFormatIndex", int(f))
	s.ctrl.SetPixelFormat(f)
	return nil
}

// CyclePixelFormat selects the next pixel format and pushes it.
func (s *Sync) CyclePixelFormat() camera.PixelFormat {
	next := (s.Displayed().PixelFormat + 1) % (camera.BayerRG8 + 1)
	_ = s.SetPixelFormat(next)
	return next
}
