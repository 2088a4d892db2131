// Package api implements the reference classification service: health,
// analysis and chat over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sprite-ai/blinky/internal/safety"
)

// ServiceName is reported by GET /health.
const ServiceName = "Blinky Child Safety API"

// Server is the classification service.
type Server struct {
	addr     string
	mux      *http.ServeMux
	server   *http.Server
	analyzer *safety.Analyzer
	chat     Responder
}

// Option customizes a Server.
type Option func(*Server)

// WithResponder sets the chat responder. The default is CannedResponder.
func WithResponder(r Responder) Option {
	return func(s *Server) { s.chat = r }
}

// New creates a service that analyzes text with analyzer. A nil analyzer
// uses the pattern detectors only.
func New(addr string, analyzer *safety.Analyzer, opts ...Option) *Server {
	if analyzer == nil {
		analyzer = safety.New(nil)
	}
	s := &Server{addr: addr, analyzer: analyzer}
	for _, opt := range opts {
		opt(s)
	}
	if s.chat == nil {
		s.chat = CannedResponder{Analyzer: analyzer}
	}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /chat", s.handleChat)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.addr).Msg("safety service listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler, with CORS applied, for testing.
func (s *Server) Handler() http.Handler {
	return withCORS(s.mux)
}

// withCORS lets browser page agents on any origin call the service.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Error().Err(err).Msg("json encode")
	}
}

// writeError writes a failure envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// readJSON decodes a JSON request body into v.
func readJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(v)
}
