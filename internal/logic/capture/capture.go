// Package capture turns the operator's snapshot form into a single capture
// command for the controller.
package capture

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/CamDeck/internal/camera"
	"github.com/cjeanneret/CamDeck/internal/debug"
)

// ErrCaptureDisabled is returned when a capture is confirmed while the
// session is not running.
var ErrCaptureDisabled = errors.New("capture disabled: session not running")

// ErrEmptyPath is returned when the confirmed path normalizes to nothing.
var ErrEmptyPath = errors.New("capture path is empty")

const (
	MinQuality     = 1
	MaxQuality     = 100
	DefaultQuality = 95
)

// Commander is the part of the controller the workflow drives.
type Commander interface {
	Capture(req camera.CaptureRequest)
}

// Defaults seeds the capture form.
type Defaults struct {
	Directory string
	Format    camera.ImageFormat
	Quality   int
}

// Form is what the operator sees before confirming.
type Form struct {
	Path    string             `json:"path"`
	Format  camera.ImageFormat `json:"format"`
	Quality int                `json:"quality"`
}

// Workflow builds and issues capture requests.
type Workflow struct {
	ctrl     Commander
	enabled  func() bool
	defaults Defaults

	now   func() time.Time
	newID func() string
}

// New creates a workflow. enabled reports whether capture is currently
// allowed (status Running).
func New(ctrl Commander, enabled func() bool, d Defaults) *Workflow {
	if d.Format == "" {
		d.Format = camera.JPEG
	}
	if d.Quality == 0 {
		d.Quality = DefaultQuality
	}
	d.Quality = ClampQuality(d.Quality)
	return &Workflow{
		ctrl:     ctrl,
		enabled:  enabled,
		defaults: d,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Enabled reports whether a capture may be confirmed right now.
func (w *Workflow) Enabled() bool {
	return w.enabled()
}

// Form returns the default form: a timestamped file in the configured
// directory, the default format and quality.
func (w *Workflow) Form() Form {
	name := "capture_" + w.now().Format("20060102_150405") + w.defaults.Format.Ext()
	p := name
	if w.defaults.Directory != "" {
		p = filepath.Join(w.defaults.Directory, name)
	}
	return Form{Path: p, Format: w.defaults.Format, Quality: w.defaults.Quality}
}

// Confirm normalizes the form values and issues exactly one capture
// request. It does not wait for the outcome.
func (w *Workflow) Confirm(rawPath string, format camera.ImageFormat, quality int) (camera.CaptureRequest, error) {
	if !w.enabled() {
		return camera.CaptureRequest{}, ErrCaptureDisabled
	}
	if format == "" {
		format = w.defaults.Format
	}
	f, err := camera.ParseImageFormat(string(format))
	if err != nil {
		return camera.CaptureRequest{}, fmt.Errorf("confirm capture: %w", err)
	}
	p := NormalizePath(rawPath)
	if p == "" {
		return camera.CaptureRequest{}, ErrEmptyPath
	}
	req := camera.CaptureRequest{
		ID:      w.newID(),
		Path:    WithExtension(p, f),
		Format:  f,
		Quality: ClampQuality(quality),
	}
	debug.Command("capture_photo", req.ID, req.Path, req.Format, req.Quality)
	w.ctrl.Capture(req)
	return req, nil
}

// NormalizePath turns a file URL from a file picker into a plain path.
// "file:///tmp/a.jpg" becomes "/tmp/a.jpg" and "file:///C:/a.jpg" becomes
// "C:/a.jpg". Anything else is returned trimmed.
func NormalizePath(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "file:///"):
		rest := s[len("file:///"):]
		if hasDriveLetter(rest) {
			return rest
		}
		return "/" + rest
	case strings.HasPrefix(s, "file://"):
		return s[len("file://"):]
	}
	return s
}

func hasDriveLetter(s string) bool {
	if len(s) < 2 || s[1] != ':' {
		return false
	}
	c := s[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// WithExtension appends the format's extension when p has none.
func WithExtension(p string, f camera.ImageFormat) string {
	if path.Ext(filepath.ToSlash(p)) != "" {
		return p
	}
	return p + f.Ext()
}

// ClampQuality bounds q to 1-100.
func ClampQuality(q int) int {
	if q < MinQuality {
		return MinQuality
	}
	if q > MaxQuality {
		return MaxQuality
	}
	return q
}
