// Package camera holds the domain types shared by the control panel and the
// camera controllers: session status, imaging parameters and their domains,
// telemetry, frames and capture requests.
package camera

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownPixelFormat = errors.New("unknown pixel format")
	ErrUnknownImageFormat = errors.New("unknown image format")
)

// State is the enumerated operating state of a camera session.
type State int

const (
	Stopped State = iota
	Running
	Failed
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Running:
		return "Running"
	case Failed:
		return "Error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is the session status as reported by the controller.
// Message is only meaningful when State is Failed.
type Status struct {
	State   State
	Message string
}

// StatusStopped, StatusRunning and StatusError build the three status values.
func StatusStopped() Status { return Status{State: Stopped} }

func StatusRunning() Status { return Status{State: Running} }

func StatusError(msg string) Status { return Status{State: Failed, Message: msg} }

// IsRunning reports whether the session is acquiring frames.
func (s Status) IsRunning() bool { return s.State == Running }

func (s Status) String() string {
	if s.State == Failed {
		return "Error: " + s.Message
	}
	return s.State.String()
}

// PixelFormat is the sensor output format. Its integer value is the
// pixelFormatIndex used by controllers.
type PixelFormat int

const (
	Mono8 PixelFormat = iota
	RGB8
	BayerRG8
)

var pixelFormatNames = [...]string{"Mono8", "RGB8", "BayerRG8"}

func (f PixelFormat) String() string {
	if f.Valid() {
		return pixelFormatNames[f]
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// Valid reports whether f is one of the supported formats.
func (f PixelFormat) Valid() bool {
	return f >= Mono8 && f <= BayerRG8
}

// ParsePixelFormat accepts a format name (case-insensitive) or its index.
func ParsePixelFormat(s string) (PixelFormat, error) {
	s = strings.TrimSpace(s)
	for i, name := range pixelFormatNames {
		if strings.EqualFold(s, name) || s == fmt.Sprint(i) {
			return PixelFormat(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPixelFormat, s)
}

// MarshalText encodes the format by name.
func (f PixelFormat) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPixelFormat, int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText accepts a name or an index.
func (f *PixelFormat) UnmarshalText(b []byte) error {
	v, err := ParsePixelFormat(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// UnmarshalJSON accepts "BayerRG8" as well as a bare index such as 2.
func (f *PixelFormat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return f.UnmarshalText([]byte(s))
	}
	return f.UnmarshalText(b)
}

// ImageFormat is the file format of a captured snapshot.
type ImageFormat string

const (
	JPEG ImageFormat = "JPEG"
	PNG  ImageFormat = "PNG"
)

// Ext returns the file extension for the format.
func (f ImageFormat) Ext() string {
	if f == PNG {
		return ".png"
	}
	return ".jpg"
}

// ParseImageFormat accepts "JPEG"/"JPG"/"PNG" in any case.
func ParseImageFormat(s string) (ImageFormat, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "JPEG", "JPG":
		return JPEG, nil
	case "PNG":
		return PNG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownImageFormat, s)
	}
}

// Telemetry is the read-only readout pushed by the controller.
type Telemetry struct {
	FPS  float64           `json:"fps"`
	Info map[string]string `json:"camera_info"`
}

// Camera info keys.
const (
	InfoResolution   = "resolution"
	InfoPixelFormat  = "pixel_format"
	InfoPacketSize   = "packet_size"
	InfoCamerasFound = "cameras_found"
	InfoGain         = "gain"
	InfoGamma        = "gamma"
)

// Clone returns a deep copy so readers never share the info map.
func (t Telemetry) Clone() Telemetry {
	c := Telemetry{FPS: t.FPS}
	if t.Info != nil {
		c.Info = make(map[string]string, len(t.Info))
		for k, v := range t.Info {
			c.Info[k] = v
		}
	}
	return c
}

// Frame is an opaque handle to the most recently delivered frame.
// Ref identifies the frame (path or buffer name); Data optionally carries the
// encoded image bytes.
type Frame struct {
	Ref      string
	Data     []byte
	Received time.Time
}

// IsZero reports whether no frame has been delivered.
func (f Frame) IsZero() bool {
	return f.Ref == "" && len(f.Data) == 0
}

// CaptureRequest is a single snapshot command. It is consumed once.
type CaptureRequest struct {
	ID      string      `json:"id"`
	Path    string      `json:"path"`
	Format  ImageFormat `json:"format"`
	Quality int         `json:"quality"`
}
