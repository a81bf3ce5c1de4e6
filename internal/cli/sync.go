package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/framelabs/emosync/internal/ingest"
	"github.com/framelabs/emosync/internal/objstore"
)

// Execute implements the go-flags Commander interface for SyncCommand.
func (c *SyncCommand) Execute(args []string) error {
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

	client, err := objstore.NewMinioClient(cfg.ObjectStore)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg.Logging.Level, c.globals != nil && c.globals.Verbose)
	syncer := ingest.NewSyncer(store, client, logger)

	result := syncer.Sync(context.Background(), c.Max)
	return c.printResult(result)
}

func (c *SyncCommand) printResult(result ingest.Result) error {
	if c.globals != nil && c.globals.JSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	fmt.Printf("Sync complete in %.2fs\n", result.DurationSeconds)
	fmt.Printf("  New imports: %d\n", result.NewImports)
	fmt.Printf("  Skipped:     %d\n", result.Skipped)
	fmt.Printf("  Errors:      %d\n", result.Errors)
	return nil
}
