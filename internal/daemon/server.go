// Package daemon exposes the administrative HTTP surface: a manual sync
// trigger and a status endpoint, both backed by the shared scheduler
// guard and store.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/framelabs/emosync/internal/artifact"
	"github.com/framelabs/emosync/internal/config"
	"github.com/framelabs/emosync/internal/objstore"
	"github.com/framelabs/emosync/internal/scheduler"
	"github.com/framelabs/emosync/internal/storage"
)

// Server is the admin HTTP server.
type Server struct {
	sched  *scheduler.Scheduler
	store  storage.Store
	client objstore.Client
	logger *slog.Logger
	srv    *http.Server
}

// New builds a Server listening per the daemon config.
func New(cfg config.DaemonConfig, sched *scheduler.Scheduler, store storage.Store, client objstore.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{sched: sched, store: store, client: client, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/sync", s.handleSync)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/sessions", s.handleSessions)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // manual syncs can run long
	}
	return s
}

// ListenAndServe blocks serving admin requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("admin server listening", "addr", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the underlying handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleSync triggers an unbounded sync run and reports its result
// synchronously. Refused with 409 when a run is already in flight.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "POST required"})
		return
	}

	result, err := s.sched.TriggerNow(r.Context())
	if errors.Is(err, scheduler.ErrSyncInProgress) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("manual sync failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type statusResponse struct {
	TotalExperiments int64  `json:"total_experiments"`
	TotalAnalyses    int64  `json:"total_analyses"`
	TotalSegments    int64  `json:"total_segments"`
	TotalKeywords    int64  `json:"total_keywords"`
	TotalChartBins   int64  `json:"total_chart_bins"`
	NewestImport     string `json:"newest_import,omitempty"`
}

// handleStatus reports aggregate store statistics.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "GET required"})
		return
	}

	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("status query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	resp := statusResponse{
		TotalExperiments: stats.TotalExperiments,
		TotalAnalyses:    stats.TotalAnalyses,
		TotalSegments:    stats.TotalSegments,
		TotalKeywords:    stats.TotalKeywords,
		TotalChartBins:   stats.TotalChartBins,
	}
	if !stats.NewestImport.IsZero() {
		resp.NewestImport = stats.NewestImport.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSessions lists the sessions discovered in the object store and
// the video names under each, whether imported yet or not.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "GET required"})
		return
	}

	catalog := &artifact.Catalog{Client: s.client, Logger: s.logger}
	writeJSON(w, http.StatusOK, catalog.GroupsBySession(r.Context()))
}
