// Package simcam is a camera.Controller that synthesizes frames in process.
// It stands in for real acquisition hardware during development and tests.
package simcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"
	"time"

	"github.com/cjeanneret/CamDeck/internal/camera"
	"github.com/cjeanneret/CamDeck/internal/debug"
)

// PresetName is the single preset slot the simulator reads and writes.
const PresetName = "user"

// lowFPS is the rate under which a warning is logged.
const lowFPS = 10.0

// PresetStore persists parameters by name.
type PresetStore interface {
	Save(ctx context.Context, name string, p camera.Parameters) error
	Load(ctx context.Context, name string) (camera.Parameters, error)
}

// Options configures a simulated camera.
type Options struct {
	Width      int
	Height     int
	Interval   time.Duration // frame period
	Cameras    int           // detected cameras; 0 makes Start fail
	PacketSize int
	Defaults   camera.Parameters // initial and reset values
	Store      PresetStore       // nil disables load/save
	Signals    *Signals          // nil when no GPIO lines are wired
}

// Controller is the simulated camera.
type Controller struct {
	camera.Hub

	opts Options

	// pubMu keeps mutation and publication in the same order across callers.
	pubMu sync.Mutex

	mu        sync.RWMutex
	status    camera.Status
	params    camera.Parameters
	telemetry camera.Telemetry
	frame     camera.Frame
	image     *image.RGBA
	found     int
	failNext  string

	cancel context.CancelFunc
	loop   sync.WaitGroup
	tasks  sync.WaitGroup
}

// New creates a stopped simulator.
func New(opts Options) *Controller {
	if opts.Width <= 0 {
		opts.Width = 640
	}
	if opts.Height <= 0 {
		opts.Height = 480
	}
	if opts.Interval <= 0 {
		opts.Interval = 40 * time.Millisecond
	}
	if opts.PacketSize <= 0 {
		opts.PacketSize = 9000
	}
	opts.Defaults = opts.Defaults.Clamped()

	c := &Controller{
		opts:   opts,
		status: camera.StatusStopped(),
		params: opts.Defaults,
	}
	c.telemetry = camera.Telemetry{Info: c.info(opts.Defaults, 0)}
	return c
}

func (c *Controller) info(p camera.Parameters, found int) map[string]string {
	return map[string]string{
		camera.InfoResolution:   fmt.Sprintf("%dx%d", c.opts.Width, c.opts.Height),
		camera.InfoPixelFormat:  p.PixelFormat.String(),
		camera.InfoPacketSize:   strconv.Itoa(c.opts.PacketSize),
		camera.InfoCamerasFound: strconv.Itoa(found),
		camera.InfoGain:         fmt.Sprintf("%.1f dB", p.GainDB),
		camera.InfoGamma:        gammaText(p),
	}
}

func gammaText(p camera.Parameters) string {
	if !p.GammaEnabled {
		return "off"
	}
	return fmt.Sprintf("%.2f", p.GammaValue)
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

// setStatus records s and publishes it, even when unchanged.
func (c *Controller) setStatus(s camera.Status) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	c.mu.Lock()
	prev := c.status
	c.status = s
	c.mu.Unlock()
	if prev != s {
		debug.Info("Simulator status: %s", s)
	}
	c.Publish(camera.Event{Kind: camera.StatusChanged, Status: s})
}

// setParams applies mutate to the canonical parameters, clamps the result
// like the sensor would and publishes parameters and camera info.
func (c *Controller) setParams(mutate func(*camera.Parameters)) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	c.mu.Lock()
	p := c.params
	mutate(&p)
	p = p.Clamped()
	c.params = p
	c.telemetry.Info = c.info(p, c.found)
	t := c.telemetry.Clone()
	c.mu.Unlock()

	c.Publish(camera.Event{Kind: camera.ParametersChanged, Parameters: p})
	c.Publish(camera.Event{Kind: camera.TelemetryChanged, Telemetry: t})
}

func (c *Controller) SetParam(p camera.Param, v float64) {
	debug.Live("Simulator: %s = %v", p, v)
	c.setParams(func(cp *camera.Parameters) { *cp = cp.With(p, v) })
}

func (c *Controller) SetGammaEnabled(on bool) {
	debug.Live("Simulator: gamma enabled = %v", on)
	c.setParams(func(cp *camera.Parameters) { cp.GammaEnabled = on })
}

func (c *Controller) SetPixelFormat(f camera.PixelFormat) {
	if !f.Valid() {
		debug.Warn("Simulator: ignoring pixel format %d", int(f))
		return
	}
	debug.Live("Simulator: pixel format = %s", f)
	c.setParams(func(cp *camera.Parameters) { cp.PixelFormat = f })
}

// FailNext makes the next Start fail with msg.
func (c *Controller) FailNext(msg string) {
	c.mu.Lock()
	c.failNext = msg
	c.mu.Unlock()
}

// Fail stops acquisition and reports msg as a backend failure.
func (c *Controller) Fail(msg string) {
	c.stopLoop()
	_ = c.opts.Signals.Tally(false)
	c.setStatus(camera.StatusError(msg))
}

// Start begins acquisition. Starting a running session does nothing.
func (c *Controller) Start() {
	c.pubMu.Lock()
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		c.pubMu.Unlock()
		debug.Verbose("Simulator: already running")
		return
	}
	msg := c.failNext
	c.failNext = ""
	if msg == "" && c.opts.Cameras == 0 {
		msg = "no cameras found"
	}
	var ctx context.Context
	if msg == "" {
		ctx, c.cancel = context.WithCancel(context.Background())
		c.loop.Add(1)
		c.found = c.opts.Cameras
		c.telemetry.Info = c.info(c.params, c.found)
	}
	t := c.telemetry.Clone()
	c.mu.Unlock()

	debug.Section("Acquisition session start")
	debug.Info("Cameras detected: %d", c.opts.Cameras)
	c.Publish(camera.Event{Kind: camera.TelemetryChanged, Telemetry: t})
	c.pubMu.Unlock()

	if msg != "" {
		debug.Error(errors.New(msg))
		c.setStatus(camera.StatusError(msg))
		return
	}
	if err := c.opts.Signals.Tally(true); err != nil {
		debug.Warn("Tally on: %v", err)
	}
	c.setStatus(camera.StatusRunning())
	go c.acquire(ctx)
}

// Stop ends acquisition and reports Stopped, even if already stopped.
func (c *Controller) Stop() {
	c.stopLoop()
	if err := c.opts.Signals.Tally(false); err != nil {
		debug.Warn("Tally off: %v", err)
	}
	c.setStatus(camera.StatusStopped())
}

func (c *Controller) stopLoop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.loop.Wait()
	debug.Section("Acquisition session end")
}

func (c *Controller) acquire(ctx context.Context) {
	defer c.loop.Done()

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	var (
		seq      uint64
		counter  int
		fps      float64
		fpsTimer = time.Now()
	)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			seq++
			p := c.Parameters()
			img := renderFrame(c.opts.Width, c.opts.Height, seq, p, fps)
			data, err := encodePreview(img)
			if err != nil {
				debug.Error(fmt.Errorf("encode frame %d: %w", seq, err))
				continue
			}
			f := camera.Frame{Ref: fmt.Sprintf("sim://frame/%d", seq), Data: data, Received: now}
			c.mu.Lock()
			c.frame = f
			c.image = img
			c.mu.Unlock()
			c.Publish(camera.Event{Kind: camera.FrameDelivered, Frame: f})
			counter++

			if elapsed := now.Sub(fpsTimer); elapsed >= time.Second {
				fps = float64(counter) / elapsed.Seconds()
				counter = 0
				fpsTimer = now
				if fps < lowFPS {
					debug.Warn("Low FPS detected: %.2f", fps)
				}
				c.publishFPS(fps)
			}
		}
	}
}

func (c *Controller) publishFPS(fps float64) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	c.mu.Lock()
	c.telemetry.FPS = fps
	t := c.telemetry.Clone()
	c.mu.Unlock()
	debug.Live("FPS: %.1f", fps)
	c.Publish(camera.Event{Kind: camera.TelemetryChanged, Telemetry: t})
}

// Capture writes the latest frame to req.Path in the background. A failure
// is reported as an Error status.
func (c *Controller) Capture(req camera.CaptureRequest) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		if err := c.capture(req); err != nil {
			debug.Error(fmt.Errorf("capture %s: %w", req.ID, err))
			c.Fail(fmt.Sprintf("capture failed: %v", err))
		}
	}()
}

func (c *Controller) capture(req camera.CaptureRequest) error {
	c.mu.RLock()
	img := c.image
	c.mu.RUnlock()
	if img == nil {
		return errors.New("no frame available")
	}
	if err := c.opts.Signals.Strobe(); err != nil {
		debug.Warn("Strobe: %v", err)
	}
	if err := writeImage(req.Path, img, req.Format, req.Quality); err != nil {
		return err
	}
	debug.Info("Photo saved to %s (%s, q=%d, id=%s)", req.Path, req.Format, req.Quality, req.ID)
	return nil
}

// ResetDefaults restores the configured parameters.
func (c *Controller) ResetDefaults() {
	d := c.opts.Defaults
	c.setParams(func(p *camera.Parameters) { *p = d })
}

// LoadPreset applies the stored preset in the background.
func (c *Controller) LoadPreset() {
	c.runPreset("load", func(ctx context.Context) error {
		p, err := c.opts.Store.Load(ctx, PresetName)
		if err != nil {
			return err
		}
		c.setParams(func(cp *camera.Parameters) { *cp = p })
		return nil
	})
}

// SavePreset stores the current parameters in the background.
func (c *Controller) SavePreset() {
	c.runPreset("save", func(ctx context.Context) error {
		return c.opts.Store.Save(ctx, PresetName, c.Parameters())
	})
}

func (c *Controller) runPreset(op string, fn func(context.Context) error) {
	if c.opts.Store == nil {
		debug.Warn("Preset %s ignored: no preset store", op)
		return
	}
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			debug.Error(fmt.Errorf("preset %s: %w", op, err))
			c.Fail(fmt.Sprintf("preset %s failed: %v", op, err))
			return
		}
		debug.Info("Preset %q %s done", PresetName, op)
	}()
}

// Wait blocks until background captures and preset operations finish.
func (c *Controller) Wait() {
	c.tasks.Wait()
}

// Close stops acquisition, waits for background work and closes every
// subscription.
func (c *Controller) Close() error {
	c.stopLoop()
	c.tasks.Wait()
	err := c.opts.Signals.Close()
	c.Hub.Close()
	return err
}
