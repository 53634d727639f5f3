package params

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/cjeanneret/CamDeck/internal/camera"
)

type push struct {
	name  string
	value interface{}
}

// recordingSetter records every write sent to the controller.
type recordingSetter struct {
	mu    sync.Mutex
	calls []push
}

func (r *recordingSetter) SetParam(p camera.Param, v float64) {
	r.record(p.String(), v)
}

func (r *recordingSetter) SetGammaEnabled(on bool) {
	r.record("gammaEnabled", on)
}

func (r *recordingSetter) SetPixelFormat(f camera.PixelFormat) {
	r.record("pixelFormatIndex", int(f))
}

func (r *recordingSetter) record(name string, v interface{}) {
	r.mu.Lock()
	r.calls = append(r.calls, push{name, v})
	r.mu.Unlock()
}

func (r *recordingSetter) pushes() []push {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]push(nil), r.calls...)
}

func newTestSync() (*Sync, *recordingSetter) {
	rs := &recordingSetter{}
	return New(rs, camera.DefaultParameters()), rs
}

func TestCommit_RoundTrip(t *testing.T) {
	s, rs := newTestSync()

	v, err := s.Commit(camera.Gain, 17.3)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if v != 17.3 {
		t.Errorf("dispatched %v, want 17.3", v)
	}
	if got := s.Canonical().GainDB; got != 17.3 {
		t.Errorf("canonical gain = %v, want 17.3", got)
	}
	want := []push{{"gainValue", 17.3}}
	if got := rs.pushes(); len(got) != 1 || got[0] != want[0] {
		t.Errorf("pushes = %v, want %v", got, want)
	}
}

func TestCommit_ClampsBeforeDispatch(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want float64
	}{
		{"above_max", 60000, 50000},
		{"below_min", 500, 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, rs := newTestSync()
			if _, err := s.Commit(camera.Exposure, tc.in); err != nil {
				t.Fatalf("Commit: %v", err)
			}
			got := rs.pushes()
			if len(got) != 1 || got[0].value != tc.want {
				t.Errorf("pushes = %v, want exposureValue=%v", got, tc.want)
			}
		})
	}
}

func TestCommit_NaNKeepsCurrentValue(t *testing.T) {
	s, rs := newTestSync()
	v, err := s.Commit(camera.WBRed, math.NaN())
	if err != nil {
		t.Fatal(err)
	}
	if v != camera.DefaultParameters().WBRedRatio {
		t.Errorf("dispatched %v, want current value", v)
	}
	if len(rs.pushes()) != 1 {
		t.Errorf("expected one push, got %v", rs.pushes())
	}
}

func TestDrag_NoPushUntilRelease(t *testing.T) {
	s, rs := newTestSync()

	for _, v := range []float64{16, 18, 21, 24.5} {
		if err := s.Drag(camera.Gain, v); err != nil {
			t.Fatalf("Drag: %v", err)
		}
	}
	if n := len(rs.pushes()); n != 0 {
		t.Fatalf("pushes during drag = %d, want 0", n)
	}
	if got := s.Displayed().GainDB; got != 24.5 {
		t.Errorf("displayed gain = %v, want 24.5", got)
	}
	if !s.Dragging(camera.Gain) {
		t.Error("Dragging(Gain) should be true")
	}

	v, err := s.Release(camera.Gain)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if v != 24.5 {
		t.Errorf("released %v, want 24.5", v)
	}
	if n := len(rs.pushes()); n != 1 {
		t.Errorf("pushes after release = %d, want exactly 1", n)
	}
	if s.Dragging(camera.Gain) {
		t.Error("gesture should be over")
	}
}

func TestDrag_ClampsLocalDisplay(t *testing.T) {
	s, _ := newTestSync()
	_ = s.Drag(camera.Gamma, 12)
	if got := s.Displayed().GammaValue; got != 4.0 {
		t.Errorf("displayed gamma = %v, want 4.0", got)
	}
}

func TestCanonicalUpdateDuringGesture(t *testing.T) {
	s, rs := newTestSync()

	_ = s.Drag(camera.Gain, 30)

	remote := camera.DefaultParameters()
	remote.GainDB = 5
	remote.ExposureUs = 12000
	s.ApplyCanonical(remote)

	d := s.Displayed()
	if d.GainDB != 30 {
		t.Errorf("displayed gain = %v, in-progress gesture must not be overridden", d.GainDB)
	}
	if d.ExposureUs != 12000 {
		t.Errorf("displayed exposure = %v, other params must update", d.ExposureUs)
	}

	if _, err := s.Release(camera.Gain); err != nil {
		t.Fatal(err)
	}
	if got := s.Canonical().GainDB; got != 30 {
		t.Errorf("canonical gain after release = %v, last committed write must win", got)
	}
	if p := rs.pushes(); len(p) != 1 || p[0].value != 30.0 {
		t.Errorf("pushes = %v", p)
	}
}

func TestCancel_RestoresCanonical(t *testing.T) {
	s, rs := newTestSync()
	_ = s.Drag(camera.Exposure, 40000)
	s.Cancel(camera.Exposure)

	if got := s.Displayed().ExposureUs; got != 20000 {
		t.Errorf("displayed exposure = %v, want canonical 20000", got)
	}
	if _, err := s.Release(camera.Exposure); !errors.Is(err, ErrNoGesture) {
		t.Errorf("Release after Cancel: err = %v, want ErrNoGesture", err)
	}
	if len(rs.pushes()) != 0 {
		t.Error("cancelled gesture must not push")
	}
}

func TestGesturesAreIndependent(t *testing.T) {
	s, rs := newTestSync()
	_ = s.Drag(camera.Gain, 10)
	_ = s.Drag(camera.Gamma, 2.2)

	if _, err := s.Release(camera.Gamma); err != nil {
		t.Fatal(err)
	}
	if !s.Dragging(camera.Gain) {
		t.Error("gain gesture should still be active")
	}
	p := rs.pushes()
	if len(p) != 1 || p[0].name != "gammaValue" {
		t.Errorf("pushes = %v, want only gammaValue", p)
	}
}

func TestNudge(t *testing.T) {
	s, _ := newTestSync()
	if err := s.Nudge(camera.Gain, 2); err != nil {
		t.Fatal(err)
	}
	if got := s.Displayed().GainDB; got != 16 {
		t.Errorf("gain after +2 steps = %v, want 16", got)
	}
	_ = s.Nudge(camera.Gain, -100)
	if got := s.Displayed().GainDB; got != 0 {
		t.Errorf("gain after large negative nudge = %v, want 0", got)
	}
}

func TestUnknownParam(t *testing.T) {
	s, _ := newTestSync()
	if err := s.Drag(camera.Param(42), 1); !errors.Is(err, ErrUnknownParam) {
		t.Errorf("Drag: err = %v, want ErrUnknownParam", err)
	}
	if _, err := s.Commit(camera.Param(-1), 1); !errors.Is(err, ErrUnknownParam) {
		t.Errorf("Commit: err = %v, want ErrUnknownParam", err)
	}
}

func TestGammaToggle_PushesEveryChange(t *testing.T) {
	s, rs := newTestSync()

	for i := 0; i < 4; i++ {
		s.ToggleGamma()
	}

	got := rs.pushes()
	want := []push{
		{"gammaEnabled", true},
		{"gammaEnabled", false},
		{"gammaEnabled", true},
		{"gammaEnabled", false},
	}
	if len(got) != len(want) {
		t.Fatalf("pushes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("push %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPixelFormat_ImmediatePush(t *testing.T) {
	s, rs := newTestSync()

	if err := s.SetPixelFormat(camera.Mono8); err != nil {
		t.Fatal(err)
	}
	if got := s.CyclePixelFormat(); got != camera.RGB8 {
		t.Errorf("CyclePixelFormat = %v, want RGB8", got)
	}
	if err := s.SetPixelFormat(camera.PixelFormat(3)); !errors.Is(err, camera.ErrUnknownPixelFormat) {
		t.Errorf("invalid format err = %v", err)
	}

	got := rs.pushes()
	if len(got) != 2 || got[0].value != 0 || got[1].value != 1 {
		t.Errorf("pushes = %v, want pixelFormatIndex 0 then 1", got)
	}
	if s.Canonical().PixelFormat != camera.RGB8 {
		t.Errorf("canonical pixel format = %v", s.Canonical().PixelFormat)
	}
}

func TestCyclePixelFormat_Wraps(t *testing.T) {
	s, _ := newTestSync()
	// default BayerRG8 (index 2) wraps to Mono8
	if got := s.CyclePixelFormat(); got != camera.Mono8 {
		t.Errorf("CyclePixelFormat from BayerRG8 = %v, want Mono8", got)
	}
}

func TestConcurrentReadsSeeWholeUpdates(t *testing.T) {
	s, _ := newTestSync()
	a := camera.Parameters{GainDB: 1, ExposureUs: 1001, WBRedRatio: 1, GammaValue: 1}
	b := camera.Parameters{GainDB: 2, ExposureUs: 2002, WBRedRatio: 2, GammaValue: 2}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				s.ApplyCanonical(a)
			} else {
				s.ApplyCanonical(b)
			}
		}
	}()
	for i := 0; i < 1000; i++ {
		p := s.Displayed()
		if p != a && p != b && p != camera.DefaultParameters() {
			t.Fatalf("observed half-applied parameters %+v", p)
		}
	}
	wg.Wait()
}
