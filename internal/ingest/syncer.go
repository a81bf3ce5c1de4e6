package ingest

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/framelabs/emosync/internal/artifact"
	"github.com/framelabs/emosync/internal/objstore"
	"github.com/framelabs/emosync/internal/storage"
)

// Result aggregates the outcome of one sync run.
type Result struct {
	RunID           string  `json:"run_id"`
	NewImports      int     `json:"new_imports"`
	Skipped         int     `json:"skipped"`
	Errors          int     `json:"errors"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Syncer drives the catalog, dedupe check, loader, and materializer for
// every discovered artifact group, isolating per-item failures.
type Syncer struct {
	Store  storage.Store
	Client objstore.Client
	Logger *slog.Logger

	// materialize is the per-group import step; overridable in tests.
	materialize func(ctx context.Context, g artifact.Group, b artifact.Bundle) (int64, error)
}

// NewSyncer wires a Syncer over a store and an object-store client.
func NewSyncer(store storage.Store, client objstore.Client, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Syncer{Store: store, Client: client, Logger: logger}
	m := &Materializer{Store: store, Logger: logger}
	s.materialize = m.Materialize
	return s
}

// Sync lists all artifact groups and imports the ones not yet present in
// the store. maxImports > 0 bounds the number of new imports per run;
// remaining groups are picked up by the next invocation. One item's
// failure never aborts the run.
func (s *Syncer) Sync(ctx context.Context, maxImports int) Result {
	start := time.Now()
	result := Result{RunID: uuid.NewString()}
	logger := s.Logger.With("run_id", result.RunID)

	logger.Info("starting sync check")

	catalog := &artifact.Catalog{Client: s.Client, Logger: logger}
	loader := &artifact.Loader{Client: s.Client, Logger: logger}

	listStart := time.Now()
	groups := catalog.Groups(ctx)
	logger.Info("listed artifact groups",
		"count", len(groups), "list_seconds", time.Since(listStart).Seconds())

	for idx, g := range groups {
		if maxImports > 0 && result.NewImports >= maxImports {
			logger.Info("reached import limit, deferring remainder to next cycle", "limit", maxImports)
			break
		}

		if (idx+1)%10 == 0 {
			logger.Info("sync progress",
				"checked", idx+1, "total", len(groups),
				"elapsed_seconds", time.Since(start).Seconds())
		}

		existing, err := s.Store.AnalysisBySourceFilename(ctx, g.VideoName)
		if err != nil {
			result.Errors++
			logger.Error("dedupe check failed", "video", g.VideoName, "error", err)
			continue
		}
		if existing != nil {
			result.Skipped++
			continue
		}

		fileStart := time.Now()
		bundle := loader.LoadBundle(ctx, g)
		if !bundle.HasSentiment() {
			logger.Warn("incomplete data, sentiment document missing", "video", g.VideoName)
			continue
		}

		analysisID, err := s.materialize(ctx, g, bundle)
		if err != nil {
			result.Errors++
			logger.Error("import failed", "video", g.VideoName, "error", err)
			continue
		}

		result.NewImports++
		logger.Info("imported video",
			"video", g.VideoName, "analysis_id", analysisID,
			"seconds", time.Since(fileStart).Seconds())
	}

	result.DurationSeconds = math.Round(time.Since(start).Seconds()*100) / 100
	logger.Info("sync complete",
		"new_imports", result.NewImports, "skipped", result.Skipped,
		"errors", result.Errors, "duration_seconds", result.DurationSeconds)
	return result
}
