package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"erevent/internal/coordinator"
	"erevent/internal/registry"
)

// Housekeeping cadence for the in-memory task table.
const (
	pruneInterval   = 5 * time.Minute
	terminalTaskAge = 30 * time.Minute
	// Devices are never deleted for merely being offline; only entries silent
	// past this retention window are garbage collected.
	deviceRetention = 24 * time.Hour
)

// Server is the coordinator's HTTP face: registration, heartbeats, device
// listing and the transfer handshake endpoints. It never carries file bytes.
type Server struct {
	reg   *registry.Registry
	coord *coordinator.Coordinator
	mux   *http.ServeMux
}

// New wires the API routes over the given registry and coordinator.
func New(reg *registry.Registry, coord *coordinator.Coordinator) *Server {
	s := &Server{
		reg:   reg,
		coord: coord,
		mux:   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/register", wrap(s.handleRegister))
	s.mux.HandleFunc("/api/heartbeat", wrap(s.handleHeartbeat))
	s.mux.HandleFunc("/api/devices", wrap(s.handleDevices))
	s.mux.HandleFunc("/api/transfer/init", wrap(s.handleTransferInit))
	s.mux.HandleFunc("/api/transfer/report", wrap(s.handleTransferReport))
	s.mux.HandleFunc("/api/transfer/status/", wrap(s.handleTransferStatus))
	s.mux.HandleFunc("/health", s.handleHealth)
}

// Handler exposes the routed handler, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves the API until ctx is cancelled, then shuts down cleanly. A slow
// ticker prunes terminal transfer tasks so the table stays bounded.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.mux,
	}

	go s.housekeeping(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", port).Msg("coordinator API listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.coord.PruneTerminal(terminalTaskAge)
			s.reg.Prune(deviceRetention)
		}
	}
}
