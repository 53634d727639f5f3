// Package telemetry keeps the read-only readout of frame rate and camera
// metadata pushed by the controller.
package telemetry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cjeanneret/CamDeck/internal/camera"
)

// Readout holds the last telemetry snapshot.
type Readout struct {
	mu        sync.RWMutex
	snap      camera.Telemetry
	updatedAt time.Time
	updates   uint64
}

// New creates an empty readout (0 fps, no camera info).
func New() *Readout {
	return &Readout{}
}

// Apply replaces the snapshot with a controller push.
func (r *Readout) Apply(t camera.Telemetry) {
	c := t.Clone()
	// NaN fails every comparison, so it lands here too.
	if !(c.FPS >= 0) {
		c.FPS = 0
	}
	r.mu.Lock()
	r.snap = c
	r.updatedAt = time.Now()
	r.updates++
	r.mu.Unlock()
}

// Snapshot returns a copy of the current telemetry.
func (r *Readout) Snapshot() camera.Telemetry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.Clone()
}

// UpdatedAt returns when the last push arrived (zero if none).
func (r *Readout) UpdatedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updatedAt
}

// Updates returns how many pushes have been applied.
func (r *Readout) Updates() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updates
}

// FPSText formats the frame rate the way the panel shows it.
func FPSText(fps float64) string {
	return fmt.Sprintf("%.1f FPS", fps)
}

// InfoLines returns the camera info as sorted "key: value" lines.
func InfoLines(t camera.Telemetry) []string {
	keys := make([]string, 0, len(t.Info))
	for k := range t.Info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+t.Info[k])
	}
	return lines
}

// CountText formats a frame counter with thousands separators.
func CountText(n uint64) string {
	return humanize.Comma(int64(n))
}

// SizeText formats a frame size in bytes.
func SizeText(n int) string {
	return humanize.Bytes(uint64(n))
}

// AgeText formats how long ago t was, e.g. "3 seconds ago".
func AgeText(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
