// Package preset triggers the controller's preset commands. The panel never
// sees preset contents; effects show up as later parameter pushes.
package preset

import (
	"fmt"
	"strings"

	"github.com/cjeanneret/CamDeck/internal/debug"
)

// Action names a preset command.
type Action string

const (
	Reset Action = "reset"
	Load  Action = "load"
	Save  Action = "save"
)

// Commander is the part of the controller the workflow drives.
type Commander interface {
	ResetDefaults()
	LoadPreset()
	SavePreset()
}

// Workflow forwards preset commands without waiting for an outcome.
type Workflow struct {
	ctrl Commander
}

func New(ctrl Commander) *Workflow {
	return &Workflow{ctrl: ctrl}
}

// ResetDefaults asks the controller to restore default parameters.
func (w *Workflow) ResetDefaults() {
	debug.Command("reset_defaults")
	w.ctrl.ResetDefaults()
}

// Load asks the controller to load the stored preset.
func (w *Workflow) Load() {
	debug.Command("load_preset")
	w.ctrl.LoadPreset()
}

// Save asks the controller to store the current parameters.
func (w *Workflow) Save() {
	debug.Command("save_preset")
	w.ctrl.SavePreset()
}

// ParseAction maps "reset", "load" or "save" (any case) to an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case Reset, Load, Save:
		return a, nil
	default:
		return "", fmt.Errorf("unknown preset action %q", s)
	}
}

// Do runs the command for a.
func (w *Workflow) Do(a Action) error {
	switch a {
	case Reset:
		w.ResetDefaults()
	case Load:
		w.Load()
	case Save:
		w.Save()
	default:
		return fmt.Errorf("unknown preset action %q", a)
	}
	return nil
}
