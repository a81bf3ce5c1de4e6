package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/framelabs/emosync/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version          string `json:"version"`
	DatabasePath     string `json:"database_path"`
	TotalExperiments int64  `json:"total_experiments"`
	TotalAnalyses    int64  `json:"total_analyses"`
	TotalSegments    int64  `json:"total_segments"`
	TotalKeywords    int64  `json:"total_keywords"`
	TotalChartBins   int64  `json:"total_chart_bins"`
	NewestImport     string `json:"newest_import,omitempty"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}

	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return err
	}
	return c.executeWithStore(store, db, dbPath)
}

// executeWithStore runs status against a provided store and db (for testing).
func (c *StatusCommand) executeWithStore(store storage.Store, db *sql.DB, dbPath string) error {
	ctx := context.Background()

	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return c.printStatusJSON(stats, dbPath)
	}
	return c.printStatusHuman(stats, dbPath)
}

func (c *StatusCommand) printStatusHuman(stats *storage.Stats, dbPath string) error {
	fmt.Println("Emosync Status")
	fmt.Println("==============")
	fmt.Printf("Version:      %s\n", c.version)
	fmt.Printf("Database:     %s\n", dbPath)
	fmt.Printf("Experiments:  %s\n", formatNumber(stats.TotalExperiments))
	fmt.Printf("Analyses:     %s\n", formatNumber(stats.TotalAnalyses))
	fmt.Printf("Segments:     %s\n", formatNumber(stats.TotalSegments))
	fmt.Printf("Keywords:     %s\n", formatNumber(stats.TotalKeywords))
	fmt.Printf("Chart bins:   %s\n", formatNumber(stats.TotalChartBins))
	if !stats.NewestImport.IsZero() {
		fmt.Printf("Last import:  %s\n", stats.NewestImport.UTC().Format(time.RFC3339))
	} else {
		fmt.Println("Last import:  never")
	}
	return nil
}

func (c *StatusCommand) printStatusJSON(stats *storage.Stats, dbPath string) error {
	out := statusJSON{
		Version:          c.version,
		DatabasePath:     dbPath,
		TotalExperiments: stats.TotalExperiments,
		TotalAnalyses:    stats.TotalAnalyses,
		TotalSegments:    stats.TotalSegments,
		TotalKeywords:    stats.TotalKeywords,
		TotalChartBins:   stats.TotalChartBins,
	}
	if !stats.NewestImport.IsZero() {
		out.NewestImport = stats.NewestImport.UTC().Format(time.RFC3339)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
