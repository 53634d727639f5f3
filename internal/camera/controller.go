package camera

// EventKind identifies what changed on the controller side.
type EventKind int

const (
	StatusChanged EventKind = iota
	ParametersChanged
	TelemetryChanged
	FrameDelivered
)

func (k EventKind) String() string {
	switch k {
	case StatusChanged:
		return "status"
	case ParametersChanged:
		return "parameters"
	case TelemetryChanged:
		return "telemetry"
	case FrameDelivered:
		return "frame"
	default:
		return "unknown"
	}
}

// Event is one change notification. Only the field matching Kind is set and
// it always carries the complete new value, never a delta.
type Event struct {
	Kind       EventKind
	Status     Status
	Parameters Parameters
	Telemetry  Telemetry
	Frame      Frame
}

// Controller is the camera backend as seen by the control panel.
//
// Reads return the controller's last-known canonical values. Setters and
// commands are fire-and-forget: they never block on the camera and never
// return a result; outcomes arrive later as events.
type Controller interface {
	Status() Status
	Parameters() Parameters
	Telemetry() Telemetry
	Frame() Frame

	// Subscribe returns a channel of change notifications and a cleanup
	// function that must be called when the subscriber goes away.
	Subscribe() (<-chan Event, func())

	SetParam(p Param, v float64)
	SetGammaEnabled(on bool)
	SetPixelFormat(f PixelFormat)

	Start()
	Stop()
	Capture(req CaptureRequest)
	ResetDefaults()
	LoadPreset()
	SavePreset()
}
