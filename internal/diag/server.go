// Package diag exposes a node's runtime status over HTTP, modeled on
// ryx/internal/api/server.go's NodeProvider-interface-plus-ServeMux
// shape but reduced to the read-only status surface this domain
// needs (§2.1).
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/satcoord/satring/internal/collector"
)

// Status is the JSON body served at /status.
type Status struct {
	SelfID           uint64                    `json:"self_id"`
	ClosestToGround  uint64                    `json:"closest_to_ground"`
	AcceptedCount    int                       `json:"accepted_count"`
	ExecutorPending  int                       `json:"executor_pending"`
	CollectorPending int                       `json:"collector_pending"`
	LegacyUDPDropped uint64                    `json:"legacy_udp_dropped"`
	DecisionSummary  collector.DecisionSummary `json:"decision_summary"`
}

// Provider supplies the live values the status endpoint reports. A
// node assembles one from its own components.
type Provider interface {
	Status() Status
}

// Server serves the diagnostic HTTP surface on one port.
type Server struct {
	port     int
	provider Provider
	logger   *zap.SugaredLogger
	server   *http.Server
}

// New returns a Server bound to port, reading from provider. logger
// may be nil.
func New(port int, provider Provider, logger *zap.SugaredLogger) *Server {
	return &Server{port: port, provider: provider, logger: logger}
}

// Start begins serving until Stop is called, mirroring
// ryx/internal/api/server.go's Start(ctx)/goroutine/ListenAndServe
// shape.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorw("diagnostic server stopped unexpectedly", "err", err)
			}
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.provider.Status()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
