// Package api exposes the admin HTTP surface: health, status, stats
// and on-demand reindexing.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kbforge/kbindexd/internal/health"
	"github.com/kbforge/kbindexd/internal/indexer"
)

// StatsSource reads aggregated indexing metrics.
type StatsSource interface {
	CycleTotals() (cycles, sources, durationMS int64, err error)
	OutcomeCounts() (map[string]int64, error)
	CollectionSizes() (map[string]uint64, error)
}

// Server is the admin HTTP server. It only reads service state and
// queues work; all indexing happens in the orchestrator.
type Server struct {
	addr     string
	health   *health.State
	progress *indexer.Progress
	trigger  func(tenantID string) bool
	stats    StatsSource // optional
	logger   *slog.Logger
}

func NewServer(addr string, state *health.State, progress *indexer.Progress,
	trigger func(string) bool, stats StatsSource, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		health:   state,
		progress: progress,
		trigger:  trigger,
		stats:    stats,
		logger:   logger,
	}
}

// Routes builds the handler mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /reindex", s.handleReindex)
	return mux
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", slog.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.health.Snapshot()
	code := http.StatusOK
	if !snap.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.progress.Snapshot())
}

type statsResponse struct {
	Cycles          int64             `json:"cycles"`
	SourcesIndexed  int64             `json:"sources_indexed"`
	TotalDurationMS int64             `json:"total_duration_ms"`
	Outcomes        map[string]int64  `json:"outcomes"`
	Collections     map[string]uint64 `json:"collections"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "metrics collection is disabled",
		})
		return
	}

	cycles, sources, durationMS, err := s.stats.CycleTotals()
	if err != nil {
		s.serverError(w, "read cycle stats", err)
		return
	}
	outcomes, err := s.stats.OutcomeCounts()
	if err != nil {
		s.serverError(w, "read outcome stats", err)
		return
	}
	collections, err := s.stats.CollectionSizes()
	if err != nil {
		s.serverError(w, "read collection stats", err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Cycles:          cycles,
		SourcesIndexed:  sources,
		TotalDurationMS: durationMS,
		Outcomes:        outcomes,
		Collections:     collections,
	})
}

type reindexRequest struct {
	TenantID string `json:"tenant_id"`
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	// An empty body means all tenants.
	var req reindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
		return
	}

	if !s.health.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "service is not healthy, refusing reindex request",
		})
		return
	}

	queued := s.trigger(req.TenantID)
	s.logger.Info("reindex requested",
		slog.String("tenant_id", req.TenantID),
		slog.Bool("queued", queued))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"tenant_id": req.TenantID,
		"queued":    queued,
	})
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
