package web

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/CamDeck/internal/camera"
	"github.com/cjeanneret/CamDeck/internal/debug"
	"github.com/cjeanneret/CamDeck/internal/logic/panel"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
	detach   func()
}

// NewServer creates a server for the given address. Panel changes other
// than frames are forwarded to SSE clients as change events.
func NewServer(addr string, broadcaster *StatusBroadcaster, p *panel.Panel) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, err
	}

	detach := p.OnChange(func(k camera.EventKind) {
		if k != camera.FrameDelivered {
			broadcaster.BroadcastChange(k.String())
		}
	})

	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, p, subFS),
		detach:   detach,
	}, nil
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	h := s.handlers

	mux.HandleFunc("GET /state", h.HandleState)
	mux.HandleFunc("POST /session/start", h.HandleStart)
	mux.HandleFunc("POST /session/stop", h.HandleStop)
	mux.HandleFunc("POST /params/{name}", h.HandleParam)
	mux.HandleFunc("POST /params/{name}/drag", h.HandleDrag)
	mux.HandleFunc("POST /params/{name}/release", h.HandleRelease)
	mux.HandleFunc("POST /gamma-enabled", h.HandleGammaEnabled)
	mux.HandleFunc("POST /pixel-format", h.HandlePixelFormat)
	mux.HandleFunc("GET /capture", h.HandleCaptureForm)
	mux.HandleFunc("POST /capture", h.HandleCapture)
	mux.HandleFunc("POST /presets/{action}", h.HandlePreset)
	mux.HandleFunc("GET /frame", h.HandleFrame)
	mux.HandleFunc("GET /frame/ws", h.HandleFrameSocket)
	mux.HandleFunc("GET /status/stream", h.HandleStatusStream)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	mux.HandleFunc("GET /{$}", h.ServeIndex) // exact match for root only

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.detach()

	srv := &http.Server{Addr: s.addr, Handler: s.Mux()}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
