// Package session mirrors the controller's session status and derives which
// operator controls are available from it.
package session

import (
	"sync"

	"github.com/cjeanneret/CamDeck/internal/camera"
	"github.com/cjeanneret/CamDeck/internal/debug"
)

// Controls is the set of availability flags derived from a status.
type Controls struct {
	StartVisible       bool `json:"start_visible"`
	StopVisible        bool `json:"stop_visible"`
	CaptureEnabled     bool `json:"capture_enabled"`
	PlaceholderVisible bool `json:"placeholder_visible"`
}

// Derive computes the control flags for a status. Error behaves like Stopped.
func Derive(s camera.Status) Controls {
	running := s.IsRunning()
	return Controls{
		StartVisible:       !running,
		StopVisible:        running,
		CaptureEnabled:     running,
		PlaceholderVisible: !running,
	}
}

// Commander is the part of the controller the session model drives.
type Commander interface {
	Start()
	Stop()
}

// Model holds the mirrored status. It never changes status on its own:
// Apply is the only way in, and it is fed by controller notifications.
type Model struct {
	ctrl Commander

	mu       sync.RWMutex
	status   camera.Status
	controls Controls
}

// NewModel creates a model in the initial Stopped state.
func NewModel(ctrl Commander) *Model {
	initial := camera.StatusStopped()
	return &Model{
		ctrl:     ctrl,
		status:   initial,
		controls: Derive(initial),
	}
}

// Apply records a status reported by the controller and re-derives the
// controls. It reports whether anything changed.
func (m *Model) Apply(s camera.Status) bool {
	m.mu.Lock()
	prev := m.status
	m.status = s
	m.controls = Derive(s)
	m.mu.Unlock()

	if prev == s {
		return false
	}
	debug.Status(prev.String(), s.String())
	return true
}

// Status returns the mirrored status.
func (m *Model) Status() camera.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Controls returns the control flags for the mirrored status.
func (m *Model) Controls() Controls {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controls
}

// Start asks the controller to start acquisition. This is also the only way
// out of Error: there is no automatic recovery.
func (m *Model) Start() {
	debug.Command("start_camera")
	m.ctrl.Start()
}

// Stop asks the controller to stop acquisition.
func (m *Model) Stop() {
	debug.Command("stop_camera")
	m.ctrl.Stop()
}
