// Package mqttcam is a camera.Controller for a camera node reached over MQTT.
//
// Commands go out as JSON envelopes on <prefix>/cmd. The node reports its
// canonical state on <prefix>/state/{status,params,telemetry} (JSON) and
// encoded frames on <prefix>/frame.
package mqttcam

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cjeanneret/CamDeck/internal/camera"
	"github.com/cjeanneret/CamDeck/internal/debug"
)

// Command is the envelope published on the command topic.
type Command struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// StatusMessage is the payload of the status topic.
type StatusMessage struct {
	State   string `json:"state"` // Stopped, Running or Error
	Message string `json:"message,omitempty"`
}

// Options configures the adapter.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration // connect and publish wait
}

// Topics derived from the prefix.
func (o Options) cmdTopic() string       { return o.TopicPrefix + "/cmd" }
func (o Options) statusTopic() string    { return o.TopicPrefix + "/state/status" }
func (o Options) paramsTopic() string    { return o.TopicPrefix + "/state/params" }
func (o Options) telemetryTopic() string { return o.TopicPrefix + "/state/telemetry" }
func (o Options) frameTopic() string     { return o.TopicPrefix + "/frame" }

// publisher is the part of mqtt.Client used to send commands.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Controller mirrors a remote camera node.
type Controller struct {
	camera.Hub

	opts   Options
	client mqtt.Client
	pub    publisher

	pubMu sync.Mutex

	mu        sync.RWMutex
	status    camera.Status
	params    camera.Parameters
	telemetry camera.Telemetry
	frame     camera.Frame
	frameSeq  uint64
	connected bool
}

// New creates an unconnected adapter. Call Connect before use.
func New(opts Options) *Controller {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	opts.TopicPrefix = strings.TrimSuffix(opts.TopicPrefix, "/")
	return &Controller{
		opts:   opts,
		status: camera.StatusStopped(),
		params: camera.DefaultParameters(),
	}
}

// Connect establishes the broker connection. Subscriptions are (re)made on
// every connect and each connect asks the node for a full state refresh.
func (c *Controller) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.opts.Broker)
	opts.SetClientID(c.opts.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetCleanSession(true)

	opts.OnConnect = c.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		debug.Warn("MQTT connection lost, will auto-reconnect: %v", err)
		c.setStatus(camera.StatusError("connection lost"))
	}

	c.client = mqtt.NewClient(opts)
	c.pub = c.client

	debug.Info("Connecting to MQTT broker %s", c.opts.Broker)
	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(c.opts.Timeout):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

func (c *Controller) onConnect(client mqtt.Client) {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	debug.Info("MQTT connection established (client %s)", c.opts.ClientID)

	filters := map[string]byte{
		c.opts.statusTopic():    c.opts.QoS,
		c.opts.paramsTopic():    c.opts.QoS,
		c.opts.telemetryTopic(): c.opts.QoS,
		c.opts.frameTopic():     0,
	}
	token := client.SubscribeMultiple(filters, c.messageHandler)
	if !token.WaitTimeout(c.opts.Timeout) {
		debug.Error(fmt.Errorf("mqtt subscription timeout"))
		return
	}
	if err := token.Error(); err != nil {
		debug.Error(fmt.Errorf("mqtt subscription failed: %w", err))
		return
	}
	c.send(Command{Command: "get_state"})
}

// Connected reports whether the broker link is up.
func (c *Controller) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close disconnects from the broker and closes every subscription.
func (c *Controller) Close() error {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
		debug.Info("MQTT disconnected")
	}
	c.Hub.Close()
	return nil
}

func (c *Controller) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	c.route(msg.Topic(), msg.Payload())
}

// route applies one inbound message. Malformed payloads are logged and
// dropped.
func (c *Controller) route(topic string, payload []byte) {
	debug.Trace("MQTT <- %s (%d bytes)", topic, len(payload))
	switch topic {
	case c.opts.statusTopic():
		var m StatusMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			debug.Warn("Bad status payload: %v", err)
			return
		}
		s, err := parseStatus(m)
		if err != nil {
			debug.Warn("Bad status payload: %v", err)
			return
		}
		c.setStatus(s)

	case c.opts.paramsTopic():
		var p camera.Parameters
		if err := json.Unmarshal(payload, &p); err != nil {
			debug.Warn("Bad params payload: %v", err)
			return
		}
		p = p.Clamped()
		c.pubMu.Lock()
		c.mu.Lock()
		c.params = p
		c.mu.Unlock()
		c.Publish(camera.Event{Kind: camera.ParametersChanged, Parameters: p})
		c.pubMu.Unlock()

	case c.opts.telemetryTopic():
		var t camera.Telemetry
		if err := json.Unmarshal(payload, &t); err != nil {
			debug.Warn("Bad telemetry payload: %v", err)
			return
		}
		if t.FPS < 0 {
			t.FPS = 0
		}
		c.pubMu.Lock()
		c.mu.Lock()
		c.telemetry = t
		c.mu.Unlock()
		c.Publish(camera.Event{Kind: camera.TelemetryChanged, Telemetry: t.Clone()})
		c.pubMu.Unlock()

	case c.opts.frameTopic():
		data := make([]byte, len(payload))
		copy(data, payload)
		c.mu.Lock()
		c.frameSeq++
		f := camera.Frame{
			Ref:      fmt.Sprintf("mqtt://%s/%d", topic, c.frameSeq),
			Data:     data,
			Received: time.Now(),
		}
		c.frame = f
		c.mu.Unlock()
		c.Publish(camera.Event{Kind: camera.FrameDelivered, Frame: f})

	default:
		debug.Verbose("Ignoring message on %s", topic)
	}
}

func parseStatus(m StatusMessage) (camera.Status, error) {
	switch strings.ToLower(strings.TrimSpace(m.State)) {
	case "stopped":
		return camera.StatusStopped(), nil
	case "running":
		return camera.StatusRunning(), nil
	case "error":
		return camera.StatusError(m.Message), nil
	default:
		return camera.Status{}, fmt.Errorf("unknown state %q", m.State)
	}
}

func (c *Controller) setStatus(s camera.Status) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	c.Publish(camera.Event{Kind: camera.StatusChanged, Status: s})
}

// send publishes cmd without waiting for delivery. A failed publish shows up
// as an Error status.
func (c *Controller) send(cmd Command) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		debug.Error(fmt.Errorf("marshal %s: %w", cmd.Command, err))
		return
	}
	if c.pub == nil {
		debug.Warn("MQTT not connected, dropping %s", cmd.Command)
		c.setStatus(camera.StatusError("not connected"))
		return
	}
	debug.Trace("MQTT -> %s %s", c.opts.cmdTopic(), payload)
	token := c.pub.Publish(c.opts.cmdTopic(), c.opts.QoS, false, payload)
	go func() {
		if !token.WaitTimeout(c.opts.Timeout) {
			debug.Warn("Publish of %s timed out", cmd.Command)
			c.setStatus(camera.StatusError(cmd.Command + ": publish timeout"))
			return
		}
		if err := token.Error(); err != nil {
			debug.Error(fmt.Errorf("publish %s: %w", cmd.Command, err))
			c.setStatus(camera.StatusError(cmd.Command + ": " + err.Error()))
		}
	}()
}

func (c *Controller) Status() camera.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Controller) Parameters() camera.Parameters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

func (c *Controller) Telemetry() camera.Telemetry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.telemetry.Clone()
}

func (c *Controller) Frame() camera.Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frame
}

func (c *Controller) SetParam(p camera.Param, v float64) {
	c.send(Command{Command: "set_param", Params: map[string]any{"name": p.String(), "value": v}})
}

func (c *Controller) SetGammaEnabled(on bool) {
	c.send(Command{Command: "set_gamma_enabled", Params: map[string]any{"enabled": on}})
}

func (c *Controller) SetPixelFormat(f camera.PixelFormat) {
	c.send(Command{Command: "set_pixel_format", Params: map[string]any{"format": f.String(), "index": int(f)}})
}

func (c *Controller) Start() { c.send(Command{Command: "start_camera"}) }

func (c *Controller) Stop() { c.send(Command{Command: "stop_camera"}) }

func (c *Controller) Capture(req camera.CaptureRequest) {
	c.send(Command{Command: "capture_photo", Params: map[string]any{
		"id":      req.ID,
		"path":    req.Path,
		"format":  string(req.Format),
		"quality": req.Quality,
	}})
}

func (c *Controller) ResetDefaults() { c.send(Command{Command: "reset_defaults"}) }

func (c *Controller) LoadPreset() { c.send(Command{Command: "load_preset"}) }

func (c *Controller) SavePreset() { c.send(Command{Command: "save_preset"}) }
