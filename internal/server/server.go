package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/FilipGjorgjeski/klepetalnica/internal/metrics"
	"github.com/FilipGjorgjeski/klepetalnica/relay"
)

// Server exposes the relay over WebSocket plus the operational
// endpoints a node needs (health, metrics).
type Server struct {
	relay  *relay.Relay
	hub    *Hub
	logger zerolog.Logger
	http   *http.Server
}

func New(addr, metricsPath string, rel *relay.Relay, hub *Hub, logger zerolog.Logger) *Server {
	s := &Server{
		relay:  rel,
		hub:    hub,
		logger: logger,
	}
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle(metricsPath, metrics.Handler())

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight
// requests. Open WebSocket connections are closed by the relay
// draining their sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
