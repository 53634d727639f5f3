package mqttcam

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cjeanneret/CamDeck/internal/camera"
)

// doneToken is an already-completed token carrying err.
type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic string
	qos   byte
	cmd   Command
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var cmd Command
	_ = json.Unmarshal(payload.([]byte), &cmd)
	p.mu.Lock()
	p.msgs = append(p.msgs, published{topic: topic, qos: qos, cmd: cmd})
	p.mu.Unlock()
	return doneToken{err: p.err}
}

func (p *recordingPublisher) last(t *testing.T) published {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.msgs) == 0 {
		t.Fatal("nothing published")
	}
	return p.msgs[len(p.msgs)-1]
}

func newTestController() (*Controller, *recordingPublisher) {
	c := New(Options{TopicPrefix: "lab/cam1/", QoS: 1, Timeout: time.Second})
	pub := &recordingPublisher{}
	c.pub = pub
	return c, pub
}

func waitStatus(t *testing.T, c *Controller, want camera.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.Status().State != want {
		if time.Now().After(deadline) {
			t.Fatalf("status = %v, want %v", c.Status(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCommandsPublishEnvelope(t *testing.T) {
	c, pub := newTestController()

	tests := []struct {
		name   string
		call   func()
		cmd    string
		params map[string]any
	}{
		{"start", c.Start, "start_camera", nil},
		{"stop", c.Stop, "stop_camera", nil},
		{"reset", c.ResetDefaults, "reset_defaults", nil},
		{"load", c.LoadPreset, "load_preset", nil},
		{"save", c.SavePreset, "save_preset", nil},
		{"gain", func() { c.SetParam(camera.Gain, 17.3) }, "set_param",
			map[string]any{"name": "gainValue", "value": 17.3}},
		{"gamma", func() { c.SetGammaEnabled(true) }, "set_gamma_enabled",
			map[string]any{"enabled": true}},
		{"pixel format", func() { c.SetPixelFormat(camera.RGB8) }, "set_pixel_format",
			map[string]any{"format": "RGB8", "index": float64(1)}},
		{"capture", func() {
			c.Capture(camera.CaptureRequest{ID: "abc", Path: "/tmp/shot.jpg", Format: camera.JPEG, Quality: 95})
		}, "capture_photo", map[string]any{"id": "abc", "path": "/tmp/shot.jpg", "format": "JPEG", "quality": float64(95)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.call()
			got := pub.last(t)
			if got.topic != "lab/cam1/cmd" || got.qos != 1 {
				t.Errorf("published to %q qos %d", got.topic, got.qos)
			}
			if got.cmd.Command != tt.cmd {
				t.Errorf("command = %q, want %q", got.cmd.Command, tt.cmd)
			}
			for k, v := range tt.params {
				if got.cmd.Params[k] != v {
					t.Errorf("params[%q] = %v, want %v", k, got.cmd.Params[k], v)
				}
			}
		})
	}
}

func TestFailedPublishBecomesError(t *testing.T) {
	c, pub := newTestController()
	pub.err = errors.New("not connected")
	c.Start()
	waitStatus(t, c, camera.Failed)
	if c.Status().Message != "start_camera: not connected" {
		t.Errorf("message = %q", c.Status().Message)
	}
}

func TestSendWithoutClientBecomesError(t *testing.T) {
	c := New(Options{TopicPrefix: "x"})
	c.Start()
	if c.Status().State != camera.Failed {
		t.Errorf("status = %v", c.Status())
	}
}

func TestRouteStatus(t *testing.T) {
	c, _ := newTestController()
	ch, unsub := c.Subscribe()
	defer unsub()

	c.route("lab/cam1/state/status", []byte(`{"state":"running"}`))
	ev := <-ch
	if ev.Kind != camera.StatusChanged || !ev.Status.IsRunning() {
		t.Errorf("event = %+v", ev)
	}

	c.route("lab/cam1/state/status", []byte(`{"state":"Error","message":"no cameras found"}`))
	ev = <-ch
	if ev.Status != camera.StatusError("no cameras found") {
		t.Errorf("status = %v", ev.Status)
	}

	c.route("lab/cam1/state/status", []byte(`{"state":"dancing"}`))
	c.route("lab/cam1/state/status", []byte(`not json`))
	if c.Status() != camera.StatusError("no cameras found") {
		t.Errorf("bad payload changed status to %v", c.Status())
	}
}

func TestRouteParamsClamps(t *testing.T) {
	c, _ := newTestController()
	ch, unsub := c.Subscribe()
	defer unsub()

	c.route("lab/cam1/state/params", []byte(
		`{"gain_db":17.3,"exposure_us":60000,"wb_red_ratio":1.2,"gamma_value":2.2,"gamma_enabled":true,"pixel_format":"Mono8"}`))
	ev := <-ch
	want := camera.Parameters{GainDB: 17.3, ExposureUs: 50000, WBRedRatio: 1.2, GammaValue: 2.2, GammaEnabled: true, PixelFormat: camera.Mono8}
	if ev.Parameters != want {
		t.Errorf("params = %+v, want %+v", ev.Parameters, want)
	}
	if c.Parameters() != want {
		t.Errorf("mirror = %+v", c.Parameters())
	}
}

func TestRouteTelemetryAndFrame(t *testing.T) {
	c, _ := newTestController()
	ch, unsub := c.Subscribe()
	defer unsub()

	c.route("lab/cam1/state/telemetry", []byte(`{"fps":29.5,"camera_info":{"resolution":"1440x1080"}}`))
	ev := <-ch
	if ev.Telemetry.FPS != 29.5 || ev.Telemetry.Info[camera.InfoResolution] != "1440x1080" {
		t.Errorf("telemetry = %+v", ev.Telemetry)
	}

	payload := []byte{0xff, 0xd8, 0xff}
	c.route("lab/cam1/frame", payload)
	payload[0] = 0
	ev = <-ch
	if ev.Kind != camera.FrameDelivered || ev.Frame.Data[0] != 0xff {
		t.Errorf("frame = %+v", ev.Frame)
	}
	if ev.Frame.Ref != "mqtt://lab/cam1/frame/1" {
		t.Errorf("ref = %q", ev.Frame.Ref)
	}
	if c.Frame().Ref != ev.Frame.Ref {
		t.Errorf("Frame() = %q", c.Frame().Ref)
	}

	c.route("lab/cam1/other", []byte("x"))
	select {
	case ev := <-ch:
		t.Errorf("unexpected event %+v", ev)
	default:
	}
}
