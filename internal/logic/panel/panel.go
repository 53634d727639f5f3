// Package panel wires the control components around a single camera
// controller and runs the loop that applies controller notifications.
package panel

import (
	"context"
	"sync"

	"github.com/cjeanneret/CamDeck/internal/camera"
	"github.com/cjeanneret/CamDeck/internal/debug"
	"github.com/cjeanneret/CamDeck/internal/logic/capture"
	"github.com/cjeanneret/CamDeck/internal/logic/framepipe"
	"github.com/cjeanneret/CamDeck/internal/logic/params"
	"github.com/cjeanneret/CamDeck/internal/logic/preset"
	"github.com/cjeanneret/CamDeck/internal/logic/session"
	"github.com/cjeanneret/CamDeck/internal/logic/telemetry"
)

// Panel is the operator control surface for one camera session.
type Panel struct {
	ctrl camera.Controller

	Session   *session.Model
	Params    *params.Sync
	Telemetry *telemetry.Readout
	Frames    *framepipe.Pipe
	Capture   *capture.Workflow
	Presets   *preset.Workflow

	mu        sync.Mutex
	listeners map[int]func(camera.EventKind)
	nextID    int
}

// New builds a panel around ctrl. Nothing is mirrored until Run starts.
func New(ctrl camera.Controller, captureDefaults capture.Defaults) *Panel {
	p := &Panel{
		ctrl:      ctrl,
		Session:   session.NewModel(ctrl),
		Params:    params.New(ctrl, ctrl.Parameters()),
		Telemetry: telemetry.New(),
		Frames:    framepipe.New(),
		Presets:   preset.New(ctrl),
		listeners: make(map[int]func(camera.EventKind)),
	}
	p.Capture = capture.New(ctrl, func() bool {
		return p.Session.Controls().CaptureEnabled
	}, captureDefaults)
	return p
}

// OnChange registers fn to be called after each applied event. The returned
// function removes it. fn runs on the event loop and must not block.
func (p *Panel) OnChange(fn func(camera.EventKind)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Panel) notify(k camera.EventKind) {
	p.mu.Lock()
	fns := make([]func(camera.EventKind), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(k)
	}
}

// Run subscribes to the controller, seeds every component from the
// controller's current values and applies notifications one at a time until
// ctx is cancelled or the controller closes the subscription.
func (p *Panel) Run(ctx context.Context) error {
	events, unsub := p.ctrl.Subscribe()
	defer unsub()
	defer p.Frames.Close()

	p.seed()
	debug.Info("Panel running (status %s)", p.Session.Status())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				debug.Verbose("Controller closed the event stream")
				return nil
			}
			p.Apply(ev)
		}
	}
}

func (p *Panel) seed() {
	p.Apply(camera.Event{Kind: camera.StatusChanged, Status: p.ctrl.Status()})
	p.Apply(camera.Event{Kind: camera.ParametersChanged, Parameters: p.ctrl.Parameters()})
	p.Apply(camera.Event{Kind: camera.TelemetryChanged, Telemetry: p.ctrl.Telemetry()})
	if f := p.ctrl.Frame(); !f.IsZero() {
		p.Apply(camera.Event{Kind: camera.FrameDelivered, Frame: f})
	}
}

// Apply routes one controller notification to the component that owns it.
func (p *Panel) Apply(ev camera.Event) {
	switch ev.Kind {
	case camera.StatusChanged:
		if !p.Session.Apply(ev.Status) {
			return
		}
	case camera.ParametersChanged:
		p.Params.ApplyCanonical(ev.Parameters)
	case camera.TelemetryChanged:
		p.Telemetry.Apply(ev.Telemetry)
	case camera.FrameDelivered:
		p.Frames.Deliver(ev.Frame)
	default:
		debug.Warn("Ignoring event of unknown kind %d", int(ev.Kind))
		return
	}
	p.notify(ev.Kind)
}

// State is a whole-panel snapshot for readers such as the web API.
type State struct {
	Status    string            `json:"status"`
	Message   string            `json:"message,omitempty"`
	Controls  session.Controls  `json:"controls"`
	Params    camera.Parameters `json:"params"`
	Dragging  []string          `json:"dragging,omitempty"`
	Telemetry camera.Telemetry  `json:"telemetry"`
	FrameSeq  uint64            `json:"frame_seq"`
	Frames    framepipe.Stats   `json:"-"`
	Capture   capture.Form      `json:"-"`
	Raw       camera.Status     `json:"-"`
}

// Snapshot reads every component. Each part is internally consistent.
func (p *Panel) Snapshot() State {
	st := p.Session.Status()
	s := State{
		Status:    st.State.String(),
		Message:   st.Message,
		Controls:  p.Session.Controls(),
		Params:    p.Params.Displayed(),
		Telemetry: p.Telemetry.Snapshot(),
		Frames:    p.Frames.Stats(),
		Capture:   p.Capture.Form(),
		Raw:       st,
	}
	for _, prm := range camera.ContinuousParams {
		if p.Params.Dragging(prm) {
			s.Dragging = append(s.Dragging, prm.String())
		}
	}
	s.FrameSeq = s.Frames.LastSeq
	return s
}
