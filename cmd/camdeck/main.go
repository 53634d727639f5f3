package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cjeanneret/CamDeck/internal/camera"
	"github.com/cjeanneret/CamDeck/internal/config"
	"github.com/cjeanneret/CamDeck/internal/debug"
	"github.com/cjeanneret/CamDeck/internal/hw/gpio"
	"github.com/cjeanneret/CamDeck/internal/hw/mqttcam"
	"github.com/cjeanneret/CamDeck/internal/hw/simcam"
	"github.com/cjeanneret/CamDeck/internal/logic/capture"
	"github.com/cjeanneret/CamDeck/internal/logic/panel"
	"github.com/cjeanneret/CamDeck/internal/store"
	"github.com/cjeanneret/CamDeck/internal/tui"
	"github.com/cjeanneret/CamDeck/internal/web"
)

// storeListTimeout bounds the startup listing of stored presets.
const storeListTimeout = 5 * time.Second

// backend is a camera controller the process owns and must close.
type backend interface {
	camera.Controller
	Close() error
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	console := flag.Bool("console", false, "run the terminal console")
	backendType := flag.String("backend", "", "override backend type (sim or mqtt)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := applyBackendOverride(cfg, *backendType); err != nil {
		log.Fatalf("invalid -backend: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Backend", cfg.Backend.Type)

	debug.Step(1, "Initializing camera backend")
	ctrl, err := newBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("init backend failed: %v", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.Printf("closing backend failed: %v", err)
		}
	}()

	debug.Step(2, "Building control panel")
	p := panel.New(ctrl, captureDefaults(cfg))
	debug.PrintStruct("Capture defaults", cfg.Capture)

	var (
		outputs     []io.Writer
		broadcaster *web.StatusBroadcaster
		term        *tui.Console
	)
	if *console {
		term = tui.New(p)
		outputs = append(outputs, term.LogWriter())
	} else {
		outputs = append(outputs, os.Stdout)
	}
	port := resolvePort(webPort, cfg)
	if port > 0 {
		broadcaster = web.NewStatusBroadcaster()
		outputs = append(outputs, web.BroadcastWriter(broadcaster))
	}
	debug.SetOutput(io.MultiWriter(outputs...))

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("panel: %w", err)
		}
	}()

	if port > 0 {
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, p)
		if err != nil {
			log.Fatalf("web server: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				errCh <- fmt.Errorf("web server: %w", err)
				cancel()
			}
		}()
	}

	debug.Section("Running")
	if term != nil {
		if err := term.Run(ctx); err != nil {
			errCh <- fmt.Errorf("console: %w", err)
		}
		cancel()
	} else {
		<-ctx.Done()
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		log.Printf("%v", err)
	}
	debug.Info("Shutdown complete")
}

// applyBackendOverride replaces the configured backend type when -backend is set.
func applyBackendOverride(cfg *config.Config, override string) error {
	switch override {
	case "":
		return nil
	case config.BackendSim:
	case config.BackendMQTT:
		if cfg.MQTT.Broker == "" {
			return errors.New("mqtt backend requires mqtt.broker in the config")
		}
	default:
		return fmt.Errorf("unsupported backend %q", override)
	}
	cfg.Backend.Type = override
	return nil
}

// resolvePort prefers the -web flag over defaults.web_port.
func resolvePort(flagPort *webPortFlag, cfg *config.Config) int {
	if p := flagPort.port(); p > 0 {
		return p
	}
	return cfg.Defaults.WebPort
}

func captureDefaults(cfg *config.Config) capture.Defaults {
	return capture.Defaults{
		Directory: cfg.Capture.Directory,
		Format:    cfg.CaptureFormat(),
		Quality:   cfg.Capture.Quality,
	}
}

// newBackend selects a controller implementation based on configuration.
func newBackend(ctx context.Context, cfg *config.Config) (backend, error) {
	switch cfg.Backend.Type {
	case config.BackendSim:
		return newSimBackend(ctx, cfg)
	case config.BackendMQTT:
		c := mqttcam.New(mqttcam.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
			Timeout:     cfg.ConnectTimeout(),
		})
		debug.PrintStruct("MQTT config", cfg.MQTT)
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Backend.Type)
	}
}

// simBackend owns the simulator and the resources wired into it.
type simBackend struct {
	*simcam.Controller
	store *store.Store
	gpio  gpio.Driver
}

func newSimBackend(ctx context.Context, cfg *config.Config) (*simBackend, error) {
	debug.Value("Mock GPIO", cfg.Sim.MockGPIO)
	drv, err := gpio.NewDriver(cfg.Sim.MockGPIO)
	if err != nil {
		return nil, fmt.Errorf("init GPIO: %w", err)
	}
	st, err := store.Open(cfg.Sim.PresetDB)
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("open preset store: %w", err)
	}
	debug.Value("Preset store", cfg.Sim.PresetDB)
	debug.Value("Stored presets", storedPresets(ctx, st))
	debug.Value("Tally pin", cfg.Sim.TallyPin)
	debug.Value("Strobe pin", cfg.Sim.StrobePin)

	ctrl := simcam.New(simcam.Options{
		Width:      cfg.Sim.Width,
		Height:     cfg.Sim.Height,
		Interval:   cfg.FrameInterval(),
		Cameras:    cfg.Sim.Cameras,
		PacketSize: cfg.Camera.PacketSize,
		Defaults:   cfg.InitialParameters(),
		Store:      st,
		Signals:    simcam.NewSignals(drv, cfg.Sim.TallyPin, cfg.Sim.StrobePin, cfg.StrobePulse()),
	})
	return &simBackend{Controller: ctrl, store: st, gpio: drv}, nil
}

// storedPresets lists the presets already in st. A failed listing is logged
// and reported as empty; the store stays usable for saves.
func storedPresets(ctx context.Context, st *store.Store) []string {
	ctx, cancel := context.WithTimeout(ctx, storeListTimeout)
	defer cancel()
	names, err := st.Names(ctx)
	if err != nil {
		debug.Warn("List stored presets: %v", err)
		return nil
	}
	return names
}

// Close stops the simulator before releasing the store and the GPIO lines.
func (b *simBackend) Close() error {
	return errors.Join(b.Controller.Close(), b.store.Close(), b.gpio.Close())
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
