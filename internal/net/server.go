package net

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/mdns"

	"SignFlow/internal/config"
	"SignFlow/internal/logger"
	"SignFlow/internal/service"
)

// Server exposes a service over HTTP.
type Server struct {
	svc *service.Service
	hub *Hub
	mux *http.ServeMux
	cfg config.ServerConfig

	// renders started by page changes and uploads
	renders sync.WaitGroup

	mu         sync.RWMutex
	httpServer *http.Server
	zone       *mdns.Server
}

// NewServer builds the routes for svc.
func NewServer(svc *service.Service, cfg config.ServerConfig) *Server {
	s := &Server{
		svc: svc,
		hub: NewHub(),
		mux: http.NewServeMux(),
		cfg: cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.withSession(s.handleSnapshot))
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.withSession(s.handleCloseSession))

	s.mux.HandleFunc("POST /api/sessions/{id}/document", s.withSession(s.handleUpload))
	s.mux.HandleFunc("GET /api/sessions/{id}/document", s.withSession(s.handleDocument))
	s.mux.HandleFunc("GET /api/sessions/{id}/pages/{page}/image", s.withSession(s.handlePageImage))
	s.mux.HandleFunc("POST /api/sessions/{id}/page", s.withSession(s.handlePage))
	s.mux.HandleFunc("POST /api/sessions/{id}/zoom", s.withSession(s.handleZoom))
	s.mux.HandleFunc("POST /api/sessions/{id}/draw-mode", s.withSession(s.handleDrawMode))

	s.mux.HandleFunc("POST /api/sessions/{id}/boxes", s.withSession(s.handleCreateBox))
	s.mux.HandleFunc("DELETE /api/sessions/{id}/boxes", s.withSession(s.handleClearBoxes))
	s.mux.HandleFunc("DELETE /api/sessions/{id}/boxes/{box}", s.withSession(s.handleDeleteBox))
	s.mux.HandleFunc("PUT /api/sessions/{id}/boxes/{box}/signature", s.withSession(s.handleAttachSignature))
	s.mux.HandleFunc("GET /api/sessions/{id}/boxes/{box}/signature.png", s.withSession(s.handleThumbnail))

	s.mux.HandleFunc("POST /api/sessions/{id}/signing", s.withSession(s.handleOpenSigning))
	s.mux.HandleFunc("POST /api/sessions/{id}/signing/{action}", s.withSession(s.handleSigningAction))

	s.mux.HandleFunc("POST /api/sessions/{id}/export", s.withSession(s.handleExport))
	s.mux.HandleFunc("GET /api/sessions/{id}/export", s.withSession(s.handleDownloadExport))

	s.mux.HandleFunc("GET /api/sessions/{id}/ws", s.withSession(s.serveWS))
	s.mux.HandleFunc("POST /api/frontend-log", s.handleFrontendLog)

	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "not_found", "no such endpoint")
	})
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return loggingMiddleware(s.mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// With advertising enabled the service is announced over mDNS while it runs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSeconds) * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	port := ln.Addr().(*net.TCPAddr).Port
	log.Printf("[http] Listening on %s", ln.Addr())
	log.Printf("[http] Share link: %s", ShareURL(port))
	if s.cfg.Advertise {
		zone, err := Advertise(s.cfg.Instance, port)
		if err != nil {
			log.Printf("[mdns] Advertising failed: %v", err)
		} else {
			s.mu.Lock()
			s.zone = zone
			s.mu.Unlock()
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		s.stopAdvertising()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.stopAdvertising()
	err := srv.Shutdown(shutdownCtx)
	s.Wait()
	log.Println("[http] Server stopped")
	return err
}

func (s *Server) stopAdvertising() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.zone != nil {
		if err := s.zone.Shutdown(); err != nil {
			log.Printf("[mdns] Shutdown: %v", err)
		}
		s.zone = nil
	}
}

// Wait blocks until background page renders have finished.
func (s *Server) Wait() {
	s.renders.Wait()
}

// prerender renders a page in the background so the preview is ready when
// the client asks for it. A newer request supersedes it.
func (s *Server) prerender(token string, page int) {
	sess, err := s.svc.Sessions.Get(token)
	if err != nil {
		return
	}
	s.renders.Add(1)
	go func() {
		defer s.renders.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.svc.RenderPage(ctx, sess, page); err != nil {
			logger.Debug("preview", "prerender %s page %d: %v", token, page, err)
		}
	}()
}

// statusWriter records the status and size of a response.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Hijack lets websocket upgrades through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		log.Printf("[http] %s %s %d %s %d bytes", r.Method, r.URL.Path, sw.status, time.Since(start).Round(time.Microsecond), sw.written)
	})
}
