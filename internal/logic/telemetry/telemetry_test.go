package telemetry

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/CamDeck/internal/camera"
)

func TestReadout_InitiallyEmpty(t *testing.T) {
	r := New()
	s := r.Snapshot()
	if s.FPS != 0 || len(s.Info) != 0 {
		t.Errorf("initial snapshot = %+v", s)
	}
	if !r.UpdatedAt().IsZero() {
		t.Error("UpdatedAt should be zero before any push")
	}
}

func TestReadout_ApplyReplacesWholesale(t *testing.T) {
	r := New()
	r.Apply(camera.Telemetry{FPS: 30, Info: map[string]string{
		camera.InfoResolution: "1440x1080",
		camera.InfoGain:       "15.0",
	}})
	r.Apply(camera.Telemetry{FPS: 12.5, Info: map[string]string{
		camera.InfoResolution: "720x540",
	}})

	s := r.Snapshot()
	if s.FPS != 12.5 {
		t.Errorf("FPS = %v, want 12.5", s.FPS)
	}
	if _, ok := s.Info[camera.InfoGain]; ok {
		t.Error("stale key survived a wholesale replace")
	}
	if s.Info[camera.InfoResolution] != "720x540" {
		t.Errorf("resolution = %q", s.Info[camera.InfoResolution])
	}
}

func TestReadout_InvalidFPSClampedToZero(t *testing.T) {
	tests := []struct {
		name string
		fps  float64
		want float64
	}{
		{"negative", -1, 0},
		{"negative infinity", math.Inf(-1), 0},
		{"NaN", math.NaN(), 0},
		{"zero", 0, 0},
		{"positive", 29.97, 29.97},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			r.Apply(camera.Telemetry{FPS: tt.fps})
			if got := r.Snapshot().FPS; got != tt.want {
				t.Errorf("FPS = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadout_SnapshotIsolatedFromPusher(t *testing.T) {
	r := New()
	info := map[string]string{camera.InfoGamma: "1.0"}
	r.Apply(camera.Telemetry{Info: info})
	info[camera.InfoGamma] = "2.2"

	if got := r.Snapshot().Info[camera.InfoGamma]; got != "1.0" {
		t.Errorf("readout shares pusher's map: gamma = %q", got)
	}
}

func TestFormatting(t *testing.T) {
	if got := FPSText(29.97); got != "30.0 FPS" {
		t.Errorf("FPSText = %q", got)
	}
	if got := CountText(1234567); got != "1,234,567" {
		t.Errorf("CountText = %q", got)
	}
	if got := AgeText(time.Time{}); got != "never" {
		t.Errorf("AgeText(zero) = %q", got)
	}
	if got := AgeText(time.Now().Add(-3 * time.Second)); !strings.Contains(got, "ago") {
		t.Errorf("AgeText = %q", got)
	}
	lines := InfoLines(camera.Telemetry{Info: map[string]string{"b": "2", "a": "1"}})
	if len(lines) != 2 || lines[0] != "a: 1" || lines[1] != "b: 2" {
		t.Errorf("InfoLines = %v", lines)
	}
}

func TestReadout_CountsUpdates(t *testing.T) {
	r := New()
	for i := 0; i < 3; i++ {
		r.Apply(camera.Telemetry{FPS: float64(i)})
	}
	if r.Updates() != 3 {
		t.Errorf("Updates = %d, want 3", r.Updates())
	}
	if r.UpdatedAt().IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}
