package main

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/cjeanneret/CamDeck/internal/camera"
	"github.com/cjeanneret/CamDeck/internal/config"
	"github.com/cjeanneret/CamDeck/internal/store"
)

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\") error: %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("expected default port 8080, got %d", w.port())
	}
}

func TestWebPortFlag_ValidPorts(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"8080", 8080},
		{"1", 1},
		{"65535", 65535},
		{"3000", 3000},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(tc.input); err != nil {
				t.Fatalf("Set(%q) error: %v", tc.input, err)
			}
			if w.port() != tc.want {
				t.Errorf("port() = %d, want %d", w.port(), tc.want)
			}
		})
	}
}

func TestWebPortFlag_InvalidPorts(t *testing.T) {
	cases := []string{"0", "65536", "-1", "abc", "8080.5"}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(input); err == nil {
				t.Errorf("Set(%q) should fail, got nil", input)
			}
		})
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{val: 0}
	if s := w.String(); s != "0" {
		t.Errorf("String() = %q, want \"0\"", s)
	}
	w.val = 9090
	if s := w.String(); s != "9090" {
		t.Errorf("String() = %q, want \"9090\"", s)
	}
}

// ---------- config wiring ----------

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Backend: config.BackendConfig{Type: config.BackendSim},
		Sim: config.SimConfig{
			FrameIntervalMs: 20,
			Width:           64,
			Height:          48,
			Cameras:         1,
			PresetDB:        filepath.Join(dir, "presets.db"),
			TallyPin:        17,
			StrobePin:       27,
			StrobePulseMs:   1,
			MockGPIO:        true,
		},
		Camera: config.CameraConfig{
			GainDB: 15, ExposureUs: 20000, WBRed: 1.5, Gamma: 1,
			PixelFormat: "BayerRG8", PacketSize: 9000,
		},
		Capture: config.CaptureConfig{Directory: dir, Format: "PNG", Quality: 80},
		Defaults: config.DefaultsConfig{
			WebPort: 8181,
		},
	}
}

func TestApplyBackendOverride(t *testing.T) {
	cases := []struct {
		name     string
		override string
		broker   string
		want     string
		wantErr  bool
	}{
		{"empty_keeps_config", "", "", config.BackendSim, false},
		{"sim", "sim", "", config.BackendSim, false},
		{"mqtt_with_broker", "mqtt", "tcp://localhost:1883", config.BackendMQTT, false},
		{"mqtt_without_broker", "mqtt", "", config.BackendSim, true},
		{"unknown", "usb", "", config.BackendSim, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newTestConfig(t)
			cfg.MQTT.Broker = tc.broker
			err := applyBackendOverride(cfg, tc.override)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if cfg.Backend.Type != tc.want {
				t.Errorf("Backend.Type = %q, want %q", cfg.Backend.Type, tc.want)
			}
		})
	}
}

func TestResolvePort(t *testing.T) {
	cfg := newTestConfig(t)
	if got := resolvePort(&webPortFlag{defaultPort: 8080}, cfg); got != 8181 {
		t.Errorf("no flag: port = %d, want config 8181", got)
	}
	if got := resolvePort(&webPortFlag{val: 9000, defaultPort: 8080}, cfg); got != 9000 {
		t.Errorf("flag: port = %d, want 9000", got)
	}
	cfg.Defaults.WebPort = 0
	if got := resolvePort(&webPortFlag{defaultPort: 8080}, cfg); got != 0 {
		t.Errorf("disabled: port = %d, want 0", got)
	}
}

func TestCaptureDefaults(t *testing.T) {
	cfg := newTestConfig(t)
	d := captureDefaults(cfg)
	if d.Directory != cfg.Capture.Directory || d.Format != camera.PNG || d.Quality != 80 {
		t.Errorf("captureDefaults = %+v", d)
	}
}

func TestNewBackend_Unsupported(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Backend.Type = "usb"
	if _, err := newBackend(context.Background(), cfg); err == nil {
		t.Error("expected error for unsupported backend")
	}
}

func TestNewBackend_SimStartsAndCloses(t *testing.T) {
	cfg := newTestConfig(t)
	b, err := newBackend(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newBackend: %v", err)
	}
	if got := b.Parameters(); got != cfg.InitialParameters() {
		t.Errorf("Parameters = %+v, want %+v", got, cfg.InitialParameters())
	}

	ch, unsub := b.Subscribe()
	defer unsub()
	go func() {
		for range ch {
		}
	}()

	b.Start()
	deadline := time.Now().Add(2 * time.Second)
	for !b.Status().IsRunning() {
		if time.Now().After(deadline) {
			t.Fatalf("status = %v, want Running", b.Status())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestStoredPresets(t *testing.T) {
	cases := []struct {
		name  string
		saved []string
		want  []string
	}{
		{"empty", nil, nil},
		{"one", []string{"default"}, []string{"default"}},
		{"two", []string{"b", "a"}, []string{"a", "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, err := store.Open(filepath.Join(t.TempDir(), "presets.db"))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()
			ctx := context.Background()
			for _, n := range tc.saved {
				if err := st.Save(ctx, n, camera.DefaultParameters()); err != nil {
					t.Fatalf("Save(%q): %v", n, err)
				}
			}
			got := storedPresets(ctx, st)
			slices.Sort(got)
			if len(got) != len(tc.want) {
				t.Fatalf("storedPresets = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("storedPresets = %v, want %v", got, tc.want)
					break
				}
			}
		})
	}
}
