// Package web provides the HTTP status server and MJPEG preview stream for
// the feeding monitor.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sweeney/feeding-monitor/internal/log"
	"github.com/sweeney/feeding-monitor/internal/status"
)

// streamInterval is how often a stream client checks for a new preview.
const streamInterval = 50 * time.Millisecond

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	preview    *Preview // nil when streaming is disabled

	// closing is closed when Shutdown starts; long-lived stream handlers
	// watch it because Shutdown does not cancel request contexts.
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a Server that reads state from the given tracker. A nil
// preview disables /stream.
func New(addr string, tracker *status.Tracker, preview *Preview) *Server {
	s := &Server{tracker: tracker, preview: preview, closing: make(chan struct{})}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stream", s.handleStream)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(mux, "feeding-monitor.http"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpServer.RegisterOnShutdown(func() {
		s.closeOnce.Do(func() { close(s.closing) })
	})
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, s.preview != nil)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// HealthJSON is the /health response.
type HealthJSON struct {
	Status           string `json:"status"`
	StreamingEnabled bool   `json:"streaming_enabled"`
	CameraConnected  bool   `json:"camera_connected"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthJSON{
		Status:           "healthy",
		StreamingEnabled: s.preview != nil,
		CameraConnected:  snap.Camera.Connected,
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.preview == nil {
		http.Error(w, "streaming disabled", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Debug("web: stream client connected", "remote", r.RemoteAddr)
	defer log.Debug("web: stream client disconnected", "remote", r.RemoteAddr)

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var last uint64
	for {
		if jpeg, seq := s.preview.Latest(); seq != last && jpeg != nil {
			last = seq
			if err := writePart(w, jpeg); err != nil {
				return
			}
			flusher.Flush()
		}
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case <-ticker.C:
		}
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	header := "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: " + strconv.Itoa(len(jpeg)) + "\r\n\r\n"
	if _, err := fmt.Fprint(w, header); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\r\n")
	return err
}
