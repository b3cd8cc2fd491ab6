package web

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/nfnt/resize"

	"github.com/kioskworks/boothd/internal/debug"
	"github.com/kioskworks/boothd/internal/session"
	"github.com/kioskworks/boothd/internal/template"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The kiosk UI is served from the kiosk itself.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes the operator surface: a websocket for live state and
// commands, JSON endpoints as a fallback, and photo/thumbnail serving
// for the review screen.
type Server struct {
	addr     string
	hub      *Hub
	ctrl     Controller
	lib      *template.Library
	photoDir string
}

// NewServer creates the operator HTTP server. photoDir bounds which
// files the photo endpoints will serve.
func NewServer(addr string, hub *Hub, ctrl Controller, lib *template.Library, photoDir string) *Server {
	return &Server{
		addr:     addr,
		hub:      hub,
		ctrl:     ctrl,
		lib:      lib,
		photoDir: photoDir,
	}
}

// Router returns the chi router with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWS)
	r.Get("/state", s.handleState)
	r.Get("/templates", s.handleTemplates)
	r.Get("/photos/thumb", s.handleThumb)
	r.Get("/photos/full", s.handlePhoto)

	// Command endpoints mirror the websocket commands for clients
	// that only speak HTTP.
	r.Post("/session/start", s.handleStart)
	r.Post("/session/stop", s.command(func(c Controller) { c.Stop() }))
	r.Post("/session/clear", s.command(func(c Controller) { c.Clear() }))
	r.Post("/session/print", s.command(func(c Controller) { c.Print() }))
	r.Post("/session/compose/retry", s.command(func(c Controller) { c.RetryCompose() }))
	r.Post("/session/trigger", s.command(func(c Controller) { c.Trigger() }))
	r.Post("/review/continue", s.command(func(c Controller) { c.ReviewContinue() }))
	r.Post("/review/skip", s.command(func(c Controller) { c.ReviewSkip() }))
	r.Post("/review/retake", s.handleRetake)
	r.Post("/template/select", s.handleTemplateSelect)

	return r
}

// Run starts the server and blocks until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Operator server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Verbose("Websocket upgrade failed: %v", err)
		return
	}
	client := newClient(s.hub, conn)
	s.hub.register <- client
	go client.writePump()
	go client.readPump()
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.ctrl.View())
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event_id")
	var out []template.Template
	if eventID != "" {
		out = s.lib.CandidatesFor(eventID)
	} else {
		out = s.lib.All()
	}
	writeJSON(w, out)
}

type startRequest struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	Mode      string `json:"mode"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	s.ctrl.Start(session.Context{
		EventID:   req.EventID,
		EventName: req.EventName,
		Mode:      parseMode(req.Mode),
	})
	accepted(w)
}

func (s *Server) handleRetake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slot uint `json:"slot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	s.ctrl.Retake(req.Slot)
	accepted(w)
}

func (s *Server) handleTemplateSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID string `json:"template_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.TemplateID == "" {
		http.Error(w, "template_id is required", http.StatusBadRequest)
		return
	}
	s.ctrl.SelectTemplate(req.TemplateID)
	accepted(w)
}

func (s *Server) command(fn func(Controller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(s.ctrl)
		accepted(w)
	}
}

// handlePhoto serves a captured or composed file, bounded to the
// photo directory.
func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	path, ok := s.safePath(r.URL.Query().Get("path"))
	if !ok {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	http.ServeFile(w, r, path)
}

// handleThumb serves a downscaled review thumbnail.
func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	path, ok := s.safePath(r.URL.Query().Get("path"))
	if !ok {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	width := uint(320)
	if ws := r.URL.Query().Get("w"); ws != "" {
		if n, err := strconv.Atoi(ws); err == nil && n > 0 && n <= 1920 {
			width = uint(n)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		http.Error(w, "decode failed", http.StatusInternalServerError)
		return
	}
	thumb := resize.Resize(width, 0, img, resize.Lanczos3)

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "max-age=60")
	if err := jpeg.Encode(w, thumb, &jpeg.Options{Quality: 80}); err != nil {
		debug.Verbose("Thumbnail encode: %v", err)
	}
}

// safePath confines requested paths to the photo directory.
func (s *Server) safePath(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	abs, err := filepath.Abs(filepath.Clean(raw))
	if err != nil {
		return "", false
	}
	root, err := filepath.Abs(s.photoDir)
	if err != nil {
		return "", false
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", false
	}
	return abs, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Verbose("Write JSON: %v", err)
	}
}

func accepted(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, `{"status":"accepted"}`)
}
