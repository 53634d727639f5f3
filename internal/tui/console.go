// Package tui is the terminal control surface: the same panel the web UI
// drives, rendered with tview and operated from the keyboard.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/cjeanneret/CamDeck/internal/camera"
	"github.com/cjeanneret/CamDeck/internal/debug"
	"github.com/cjeanneret/CamDeck/internal/logic/capture"
	"github.com/cjeanneret/CamDeck/internal/logic/panel"
	"github.com/cjeanneret/CamDeck/internal/logic/telemetry"
)

const (
	redrawInterval = 100 * time.Millisecond
	logMaxLines    = 200
)

const helpText = "[yellow]s[-] start  [yellow]x[-] stop  [yellow]c[-] capture  " +
	"[yellow]tab/↑↓[-] select  [yellow]←→[-] adjust  [yellow]enter[-] commit  [yellow]esc[-] cancel  " +
	"[yellow]g[-] gamma  [yellow]f[-] pixel format  [yellow]r/l/w[-] reset/load/save  [yellow]q[-] quit"

// Console renders a panel in the terminal.
type Console struct {
	app   *tview.Application
	panel *panel.Panel

	statusView    *tview.TextView
	paramTable    *tview.Table
	telemetryView *tview.TextView
	logView       *tview.TextView

	mu       sync.Mutex
	selected int

	frameBytes int // size of the last frame taken from the pipe; UI goroutine only

	dirty chan struct{}
	lines chan string
}

// New builds the console layout for p. Nothing is drawn until Run.
func New(p *panel.Panel) *Console {
	c := &Console{
		app:   tview.NewApplication(),
		panel: p,
		dirty: make(chan struct{}, 1),
		lines: make(chan string, 256),
	}

	c.statusView = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	c.paramTable = tview.NewTable().SetSelectable(false, false)
	c.paramTable.SetBorder(true).SetTitle(" Parameters ").SetTitleAlign(tview.AlignLeft)
	c.telemetryView = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	c.telemetryView.SetBorder(true).SetTitle(" Camera ").SetTitleAlign(tview.AlignLeft)
	c.logView = tview.NewTextView().SetDynamicColors(false).SetMaxLines(logMaxLines)
	c.logView.SetBorder(true).SetTitle(" Log ").SetTitleAlign(tview.AlignLeft)
	c.logView.SetTextColor(tcell.ColorYellow)
	footer := tview.NewTextView().SetDynamicColors(true).SetText(helpText)

	body := tview.NewFlex().
		AddItem(c.paramTable, 0, 1, false).
		AddItem(c.telemetryView, 0, 1, false)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(c.statusView, 1, 0, false).
		AddItem(body, 10, 0, false).
		AddItem(c.logView, 0, 1, false).
		AddItem(footer, 1, 0, false)

	c.app.SetRoot(root, true).EnableMouse(false)
	c.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if c.handleKey(event) {
			return nil
		}
		return event
	})
	c.render(p.Snapshot())
	return c
}

// LogWriter returns a writer that appends to the log pane. Lines are dropped
// when the pane falls behind.
func (c *Console) LogWriter() io.Writer {
	return logWriter{lines: c.lines}
}

type logWriter struct {
	lines chan string
}

func (w logWriter) Write(p []byte) (int, error) {
	select {
	case w.lines <- string(p):
	default:
	}
	return len(p), nil
}

// Run draws the console until ctx is cancelled or the operator quits.
func (c *Console) Run(ctx context.Context) error {
	detach := c.panel.OnChange(func(camera.EventKind) { c.markDirty() })
	defer detach()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.app.Stop()
		case <-done:
		}
	}()
	go c.redrawLoop(done)

	debug.Info("Console started")
	return c.app.Run()
}

func (c *Console) markDirty() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

// redrawLoop coalesces panel changes into at most one redraw per interval and
// flushes queued log lines.
func (c *Console) redrawLoop(done <-chan struct{}) {
	ticker := time.NewTicker(redrawInterval)
	defer ticker.Stop()
	pending := false
	for {
		select {
		case <-done:
			return
		case <-c.dirty:
			pending = true
		case line := <-c.lines:
			c.app.QueueUpdateDraw(func() {
				fmt.Fprint(c.logView, line)
				c.logView.ScrollToEnd()
			})
		case <-ticker.C:
			if !pending {
				continue
			}
			pending = false
			st := c.panel.Snapshot()
			c.app.QueueUpdateDraw(func() { c.render(st) })
		}
	}
}

func (c *Console) selectedParam() camera.Param {
	c.mu.Lock()
	defer c.mu.Unlock()
	return camera.ContinuousParams[c.selected]
}

func (c *Console) moveSelection(delta int) {
	n := len(camera.ContinuousParams)
	c.mu.Lock()
	c.selected = ((c.selected+delta)%n + n) % n
	c.mu.Unlock()
}

// handleKey runs the command bound to event. It reports whether the key was
// consumed.
func (c *Console) handleKey(event *tcell.EventKey) bool {
	p := c.panel
	switch event.Key() {
	case tcell.KeyTab, tcell.KeyDown:
		c.moveSelection(1)
	case tcell.KeyBacktab, tcell.KeyUp:
		c.moveSelection(-1)
	case tcell.KeyLeft:
		c.logErr(p.Params.Nudge(c.selectedParam(), -1))
	case tcell.KeyRight:
		c.logErr(p.Params.Nudge(c.selectedParam(), 1))
	case tcell.KeyEnter:
		_, err := p.Params.Release(c.selectedParam())
		c.logErr(err)
	case tcell.KeyEsc:
		p.Params.Cancel(c.selectedParam())
	case tcell.KeyRune:
		switch event.Rune() {
		case 's':
			if p.Session.Controls().StartVisible {
				p.Session.Start()
			}
		case 'x':
			if p.Session.Controls().StopVisible {
				p.Session.Stop()
			}
		case 'c':
			f := p.Capture.Form()
			_, err := p.Capture.Confirm(f.Path, f.Format, f.Quality)
			c.logErr(err)
		case 'g':
			p.Params.ToggleGamma()
		case 'f':
			p.Params.CyclePixelFormat()
		case 'r':
			p.Presets.ResetDefaults()
		case 'l':
			p.Presets.Load()
		case 'w':
			p.Presets.Save()
		case 'q':
			c.app.Stop()
		default:
			return false
		}
	default:
		return false
	}
	c.render(p.Snapshot())
	return true
}

func (c *Console) logErr(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, capture.ErrCaptureDisabled) {
		debug.Warn("Capture is only available while running")
		return
	}
	debug.Warn("%v", err)
}

// render fills every pane from st.
func (c *Console) render(st panel.State) {
	c.statusView.SetText(StatusLine(st))

	sel := c.selectedParam()
	c.paramTable.Clear()
	for i, prm := range camera.ContinuousParams {
		marker := " "
		if prm == sel {
			marker = ">"
		}
		c.paramTable.SetCell(i, 0, tview.NewTableCell(marker).SetTextColor(tcell.ColorYellow))
		c.paramTable.SetCell(i, 1, tview.NewTableCell(prm.String()))
		c.paramTable.SetCell(i, 2, tview.NewTableCell(ParamValue(prm, st.Params.Get(prm))).SetAlign(tview.AlignRight))
		drag := ""
		if slices.Contains(st.Dragging, prm.String()) {
			drag = "*"
		}
		c.paramTable.SetCell(i, 3, tview.NewTableCell(drag).SetTextColor(tcell.ColorOrange))
	}
	row := len(camera.ContinuousParams)
	c.paramTable.SetCell(row, 1, tview.NewTableCell("gammaEnabled"))
	c.paramTable.SetCell(row, 2, tview.NewTableCell(onOff(st.Params.GammaEnabled)).SetAlign(tview.AlignRight))
	c.paramTable.SetCell(row+1, 1, tview.NewTableCell("pixelFormat"))
	c.paramTable.SetCell(row+1, 2, tview.NewTableCell(st.Params.PixelFormat.String()).SetAlign(tview.AlignRight))

	if held, ok := c.panel.Frames.Render(); ok {
		c.frameBytes = len(held.Frame.Data)
	}
	c.telemetryView.SetText(TelemetryText(st, c.panel.Telemetry.UpdatedAt(), c.frameBytes))
}

// StatusLine formats the session status and the available commands.
func StatusLine(st panel.State) string {
	color := "grey"
	switch st.Raw.State {
	case camera.Running:
		color = "green"
	case camera.Failed:
		color = "red"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s::b]%s[-::-]", color, tview.Escape(st.Status))
	if st.Message != "" {
		fmt.Fprintf(&b, " %s", tview.Escape(st.Message))
	}
	switch {
	case st.Controls.StopVisible:
		b.WriteString("  x: stop")
	case st.Controls.StartVisible:
		b.WriteString("  s: start")
	}
	if st.Controls.CaptureEnabled {
		b.WriteString("  c: capture")
	}
	return b.String()
}

// ParamValue formats v with the unit of p.
func ParamValue(p camera.Param, v float64) string {
	s := fmt.Sprintf("%.2f", v)
	if p == camera.Exposure {
		s = fmt.Sprintf("%.0f", v)
	}
	if u := p.Unit(); u != "" {
		s += " " + u
	}
	return s
}

// TelemetryText formats the readout pane. updated is when telemetry last
// arrived and frameBytes the size of the held frame.
func TelemetryText(st panel.State, updated time.Time, frameBytes int) string {
	var b strings.Builder
	b.WriteString(telemetry.FPSText(st.Telemetry.FPS))
	b.WriteByte('\n')
	for _, line := range telemetry.InfoLines(st.Telemetry) {
		b.WriteString(tview.Escape(line))
		b.WriteByte('\n')
	}
	if st.Controls.PlaceholderVisible {
		b.WriteString("[grey]no live image[-]")
	} else {
		fmt.Fprintf(&b, "frames %s (%s dropped), last %s",
			telemetry.CountText(st.Frames.Delivered), telemetry.CountText(st.Frames.Superseded),
			telemetry.SizeText(frameBytes))
	}
	b.WriteString("\nupdated " + telemetry.AgeText(updated))
	return b.String()
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
