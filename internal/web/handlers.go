package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zeebo/xxh3"

	"github.com/cjeanneret/CamDeck/internal/camera"
	"github.com/cjeanneret/CamDeck/internal/debug"
	"github.com/cjeanneret/CamDeck/internal/logic/capture"
	"github.com/cjeanneret/CamDeck/internal/logic/panel"
	"github.com/cjeanneret/CamDeck/internal/logic/params"
	"github.com/cjeanneret/CamDeck/internal/logic/preset"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// wsWriteTimeout bounds a single frame write to a websocket client.
const wsWriteTimeout = 5 * time.Second

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Panel       *panel.Panel
	staticFS    fs.FS
	upgrader    websocket.Upgrader
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, p *panel.Panel, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Panel:       p,
		staticFS:    staticFS,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Warn("encode response: %v", err)
	}
}

// decodeJSON reads a bounded JSON body into v. A failure has already been
// answered with 400 when it returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "request body too large", http.StatusBadRequest)
			return false
		}
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleState returns a snapshot of the whole panel.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Panel.Snapshot())
}

// HandleStart handles POST /session/start.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.Panel.Session.Start()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested", "command": "start"})
}

// HandleStop handles POST /session/stop.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.Panel.Session.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested", "command": "stop"})
}

type valueRequest struct {
	Value *float64 `json:"value"`
}

type paramResponse struct {
	Param string  `json:"param"`
	Value float64 `json:"value"`
}

func (h *Handlers) paramFromPath(w http.ResponseWriter, r *http.Request) (camera.Param, bool) {
	name := r.PathValue("name")
	p, ok := camera.ParseParam(name)
	if !ok {
		http.Error(w, fmt.Sprintf("%v: %q", params.ErrUnknownParam, name), http.StatusNotFound)
		return 0, false
	}
	return p, true
}

func readValue(w http.ResponseWriter, r *http.Request) (float64, bool) {
	var req valueRequest
	if !decodeJSON(w, r, &req) {
		return 0, false
	}
	if req.Value == nil {
		http.Error(w, "value is required", http.StatusBadRequest)
		return 0, false
	}
	return *req.Value, true
}

// HandleParam handles POST /params/{name}: one committed change.
func (h *Handlers) HandleParam(w http.ResponseWriter, r *http.Request) {
	p, ok := h.paramFromPath(w, r)
	if !ok {
		return
	}
	v, ok := readValue(w, r)
	if !ok {
		return
	}
	sent, err := h.Panel.Params.Commit(p, v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, paramResponse{Param: p.String(), Value: sent})
}

// HandleDrag handles POST /params/{name}/drag: local gesture tracking only.
func (h *Handlers) HandleDrag(w http.ResponseWriter, r *http.Request) {
	p, ok := h.paramFromPath(w, r)
	if !ok {
		return
	}
	v, ok := readValue(w, r)
	if !ok {
		return
	}
	if err := h.Panel.Params.Drag(p, v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, paramResponse{Param: p.String(), Value: h.Panel.Params.Displayed().Get(p)})
}

// HandleRelease handles POST /params/{name}/release: commits the gesture.
func (h *Handlers) HandleRelease(w http.ResponseWriter, r *http.Request) {
	p, ok := h.paramFromPath(w, r)
	if !ok {
		return
	}
	sent, err := h.Panel.Params.Release(p)
	if errors.Is(err, params.ErrNoGesture) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, paramResponse{Param: p.String(), Value: sent})
}

// HandleGammaEnabled handles POST /gamma-enabled.
func (h *Handlers) HandleGammaEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		http.Error(w, "enabled is required", http.StatusBadRequest)
		return
	}
	h.Panel.Params.SetGammaEnabled(*req.Enabled)
	writeJSON(w, http.StatusAccepted, map[string]bool{"gamma_enabled": *req.Enabled})
}

// HandlePixelFormat handles POST /pixel-format with a name or an index.
func (h *Handlers) HandlePixelFormat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Format *camera.PixelFormat `json:"format"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Format == nil {
		http.Error(w, "format is required", http.StatusBadRequest)
		return
	}
	if err := h.Panel.Params.SetPixelFormat(*req.Format); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"pixel_format": req.Format.String()})
}

// HandleCaptureForm returns the capture form defaults.
func (h *Handlers) HandleCaptureForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		capture.Form
		Enabled bool `json:"enabled"`
	}{h.Panel.Capture.Form(), h.Panel.Capture.Enabled()})
}

// HandleCapture handles POST /capture. Omitted fields take the form defaults.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		Format  string `json:"format"`
		Quality *int   `json:"quality"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	form := h.Panel.Capture.Form()
	if req.Path == "" {
		req.Path = form.Path
	}
	format := form.Format
	if req.Format != "" {
		f, err := camera.ParseImageFormat(req.Format)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		format = f
	}
	quality := form.Quality
	if req.Quality != nil {
		quality = *req.Quality
	}

	sent, err := h.Panel.Capture.Confirm(req.Path, format, quality)
	switch {
	case errors.Is(err, capture.ErrCaptureDisabled):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, sent)
}

// HandlePreset handles POST /presets/{action}.
func (h *Handlers) HandlePreset(w http.ResponseWriter, r *http.Request) {
	a, err := preset.ParseAction(r.PathValue("action"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err := h.Panel.Presets.Do(a); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested", "preset": string(a)})
}

func etag(data []byte) string {
	return fmt.Sprintf(`"%016x"`, xxh3.Hash(data))
}

// HandleFrame serves the latest frame bytes. 204 means the placeholder is
// shown (not running, or nothing delivered yet).
func (h *Handlers) HandleFrame(w http.ResponseWriter, r *http.Request) {
	if h.Panel.Session.Controls().PlaceholderVisible {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	held, ok := h.Panel.Frames.Latest()
	if !ok || len(held.Frame.Data) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	tag := etag(held.Frame.Data)
	w.Header().Set("ETag", tag)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Frame-Seq", fmt.Sprint(held.Seq))
	if r.Header.Get("If-None-Match") == tag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(held.Frame.Data))
	w.Write(held.Frame.Data)
}

// HandleFrameSocket streams each new frame as a binary websocket message
// while the session is running.
func (h *Handlers) HandleFrameSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Warn("Websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()
	debug.Verbose("Websocket viewer connected from %s", r.RemoteAddr)

	ctx := r.Context()
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var last uint64
	for {
		waitCtx, cancel := contextUntil(ctx, gone)
		held, ok := h.Panel.Frames.Next(waitCtx, last)
		cancel()
		if !ok {
			debug.Verbose("Websocket viewer %s gone", r.RemoteAddr)
			return
		}
		last = held.Seq
		if h.Panel.Session.Controls().PlaceholderVisible || len(held.Frame.Data) == 0 {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, held.Frame.Data); err != nil {
			debug.Verbose("Websocket write to %s: %v", r.RemoteAddr, err)
			return
		}
	}
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
