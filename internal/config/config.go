package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/CamDeck/internal/camera"
)

// MaxConfigFileBytes bounds how much of a config file Load will read.
const MaxConfigFileBytes = 1 << 20

// Backend types.
const (
	BackendSim  = "sim"
	BackendMQTT = "mqtt"
)

// BackendConfig selects the camera controller implementation.
type BackendConfig struct {
	Type string `yaml:"type"` // "sim" or "mqtt"
}

// MQTTConfig describes the connection to a remote camera node.
type MQTTConfig struct {
	Broker           string `yaml:"broker"`             // e.g. "tcp://localhost:1883"
	ClientID         string `yaml:"client_id"`          // default "camdeck"
	TopicPrefix      string `yaml:"topic_prefix"`       // default "camdeck/camera"
	QoS              byte   `yaml:"qos"`                // 0, 1 or 2
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms"` // default 5000
}

// SimConfig configures the simulated camera.
type SimConfig struct {
	FrameIntervalMs int    `yaml:"frame_interval_ms"` // default 40 (25 fps)
	Width           int    `yaml:"width"`             // default 640
	Height          int    `yaml:"height"`            // default 480
	Cameras         int    `yaml:"cameras"`           // detected cameras, default 1. 0 simulates "no cameras found"
	PresetDB        string `yaml:"preset_db"`         // sqlite file, default "camdeck-presets.db"
	TallyPin        int    `yaml:"tally_pin"`         // GPIO (BCM) lit while running. 0 = not used
	StrobePin       int    `yaml:"strobe_pin"`        // GPIO (BCM) pulsed on capture. 0 = not used
	StrobePulseMs   int    `yaml:"strobe_pulse_ms"`   // default 50
	MockGPIO        bool   `yaml:"mock_gpio"`         // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// CameraConfig holds the initial (and reset) imaging parameters.
// Keys left out of the file keep the camera defaults.
type CameraConfig struct {
	GainDB       float64 `yaml:"gain_db"`
	ExposureUs   float64 `yaml:"exposure_us"`
	WBRed        float64 `yaml:"wb_red"`
	Gamma        float64 `yaml:"gamma"`
	GammaEnabled bool    `yaml:"gamma_enabled"`
	PixelFormat  string  `yaml:"pixel_format"`
	PacketSize   int     `yaml:"packet_size"`
}

// CaptureConfig seeds the snapshot form.
type CaptureConfig struct {
	Directory string `yaml:"directory"`
	Format    string `yaml:"format"`  // JPEG or PNG
	Quality   int    `yaml:"quality"` // 1-100
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	WebPort    int `yaml:"web_port"`    // 0 = web UI disabled unless -web is given
}

// Config aggregates all application configuration.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Sim      SimConfig      `yaml:"sim"`
	Camera   CameraConfig   `yaml:"camera"`
	Capture  CaptureConfig  `yaml:"capture"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath rejects anything but a .yaml file directly inside a
// directory named "configs".
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return fmt.Errorf("config path %q must not contain '..'", path)
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	cfg := Config{
		Sim:    SimConfig{Cameras: 1},
		Camera: defaultCamera(),
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	switch c.Backend.Type {
	case BackendSim, BackendMQTT:
	case "":
		return errors.New("backend.type is required")
	default:
		return fmt.Errorf("backend.type must be %q or %q, got %q", BackendSim, BackendMQTT, c.Backend.Type)
	}

	if c.Backend.Type == BackendMQTT && c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required for the mqtt backend")
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "camdeck"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "camdeck/camera"
	}
	c.MQTT.TopicPrefix = strings.TrimSuffix(c.MQTT.TopicPrefix, "/")
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.MQTT.ConnectTimeoutMs <= 0 {
		c.MQTT.ConnectTimeoutMs = 5000
	}

	if c.Sim.FrameIntervalMs <= 0 {
		c.Sim.FrameIntervalMs = 40
	}
	if c.Sim.Width <= 0 {
		c.Sim.Width = 640
	}
	if c.Sim.Height <= 0 {
		c.Sim.Height = 480
	}
	if c.Sim.Cameras < 0 {
		return fmt.Errorf("sim.cameras must be >= 0, got %d", c.Sim.Cameras)
	}
	if c.Sim.PresetDB == "" {
		c.Sim.PresetDB = "camdeck-presets.db"
	}
	if c.Sim.StrobePulseMs <= 0 {
		c.Sim.StrobePulseMs = 50
	}

	if c.Camera.PixelFormat == "" {
		c.Camera.PixelFormat = camera.DefaultParameters().PixelFormat.String()
	}
	if _, err := camera.ParsePixelFormat(c.Camera.PixelFormat); err != nil {
		return fmt.Errorf("camera.pixel_format: %w", err)
	}
	if c.Camera.PacketSize <= 0 {
		c.Camera.PacketSize = 9000
	}
	for _, p := range camera.ContinuousParams {
		if v := c.InitialParameters().Get(p); !p.Range().Contains(v) {
			r := p.Range()
			return fmt.Errorf("camera %s must be between %g and %g, got %g", p, r.Min, r.Max, v)
		}
	}

	if c.Capture.Format == "" {
		c.Capture.Format = string(camera.JPEG)
	}
	if _, err := camera.ParseImageFormat(c.Capture.Format); err != nil {
		return fmt.Errorf("capture.format: %w", err)
	}
	if c.Capture.Quality == 0 {
		c.Capture.Quality = 95
	}
	if c.Capture.Quality < 1 || c.Capture.Quality > 100 {
		return fmt.Errorf("capture.quality must be between 1 and 100, got %d", c.Capture.Quality)
	}
	if c.Capture.Directory == "" {
		c.Capture.Directory = os.TempDir()
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if c.Defaults.WebPort < 0 || c.Defaults.WebPort > 65535 {
		return fmt.Errorf("defaults.web_port must be between 0 and 65535, got %d", c.Defaults.WebPort)
	}
	return nil
}

func defaultCamera() CameraConfig {
	def := camera.DefaultParameters()
	return CameraConfig{
		GainDB:       def.GainDB,
		ExposureUs:   def.ExposureUs,
		WBRed:        def.WBRedRatio,
		Gamma:        def.GammaValue,
		GammaEnabled: def.GammaEnabled,
		PixelFormat:  def.PixelFormat.String(),
		PacketSize:   9000,
	}
}

// InitialParameters returns the configured start-up (and reset) parameters.
func (c *Config) InitialParameters() camera.Parameters {
	pf, err := camera.ParsePixelFormat(c.Camera.PixelFormat)
	if err != nil {
		pf = camera.DefaultParameters().PixelFormat
	}
	return camera.Parameters{
		GainDB:       c.Camera.GainDB,
		ExposureUs:   c.Camera.ExposureUs,
		WBRedRatio:   c.Camera.WBRed,
		GammaValue:   c.Camera.Gamma,
		GammaEnabled: c.Camera.GammaEnabled,
		PixelFormat:  pf,
	}
}

// CaptureFormat returns the default snapshot format.
func (c *Config) CaptureFormat() camera.ImageFormat {
	f, err := camera.ParseImageFormat(c.Capture.Format)
	if err != nil {
		return camera.JPEG
	}
	return f
}

// FrameInterval returns the simulated frame period.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.Sim.FrameIntervalMs) * time.Millisecond
}

// StrobePulse returns how long the strobe line is held high on capture.
func (c *Config) StrobePulse() time.Duration {
	return time.Duration(c.Sim.StrobePulseMs) * time.Millisecond
}

// ConnectTimeout returns the MQTT connect/publish wait.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.ConnectTimeoutMs) * time.Millisecond
}

