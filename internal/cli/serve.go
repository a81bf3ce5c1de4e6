package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/framelabs/emosync/internal/daemon"
	"github.com/framelabs/emosync/internal/ingest"
	"github.com/framelabs/emosync/internal/objstore"
	"github.com/framelabs/emosync/internal/scheduler"
)

// Execute implements the go-flags Commander interface for ServeCommand.
// It runs the periodic sync scheduler and the admin HTTP endpoint until
// interrupted.
func (c *ServeCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	if c.Port > 0 {
		cfg.Daemon.Port = c.Port
	}
	if c.Interval > 0 {
		cfg.Sync.IntervalMinutes = c.Interval
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}

	logger := buildLogger(cfg.Logging.Level, c.globals != nil && c.globals.Verbose)

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

	syncer := ingest.NewSyncer(store, client, logger)
	sched := scheduler.New(syncer, scheduler.Config{
		Interval:     time.Duration(cfg.Sync.IntervalMinutes) * time.Minute,
		MisfireGrace: time.Duration(cfg.Sync.MisfireGraceSeconds) * time.Second,
		MaxImports:   cfg.Sync.MaxImportsPerRun,
	}, logger)
	sched.Start()
	defer sched.Stop()

	server := daemon.New(cfg.Daemon, sched, store, client, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	logger.Info("emosync service started",
		"version", c.version,
		"interval_minutes", cfg.Sync.IntervalMinutes,
		"max_imports_per_run", cfg.Sync.MaxImportsPerRun)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
