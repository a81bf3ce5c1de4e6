package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelabs/emosync/internal/storage"
)

// captureOutput redirects stdout while fn runs and returns what it wrote.
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fnErr := fn()

	w.Close()
	os.Stdout = old
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out), fnErr
}

func openTestStore(t *testing.T) (*storage.SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.NewMigrationRunner(db).Run())

	store, err := storage.NewSQLiteStore(db)
	require.NoError(t, err)
	return store, db
}

func TestBuildParser_RegistersCommands(t *testing.T) {
	parser, _, cmds := buildParser("1.2.3")

	names := make([]string, 0, 3)
	for _, c := range parser.Commands() {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"sync", "serve", "status"}, names)

	require.NotNil(t, cmds.Sync)
	require.NotNil(t, cmds.Serve)
	require.NotNil(t, cmds.Status)
	assert.Equal(t, "1.2.3", cmds.Status.version)
}

func TestRunWithArgs_Version(t *testing.T) {
	out, err := captureOutput(t, func() error {
		return RunWithArgs("1.2.3", []string{"--version"})
	})
	require.NoError(t, err)
	assert.Equal(t, "emosync 1.2.3\n", out)
}

func TestRunWithArgs_UnknownCommand(t *testing.T) {
	err := RunWithArgs("1.2.3", []string{"frobnicate"})
	assert.Error(t, err)
}

func TestStatusCommand_HumanOutput(t *testing.T) {
	store, db := openTestStore(t)

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.InsertExperiment(ctx, &storage.Experiment{Title: "Exp", Date: time.Now()})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	cmd := &StatusCommand{globals: &GlobalFlags{}, version: "1.2.3"}
	out, err := captureOutput(t, func() error {
		return cmd.executeWithStore(store, db, "/tmp/emosync.db")
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Emosync Status")
	assert.Contains(t, out, "Version:      1.2.3")
	assert.Contains(t, out, "Experiments:  1")
	assert.Contains(t, out, "Last import:  never")
}

func TestStatusCommand_JSONOutput(t *testing.T) {
	store, db := openTestStore(t)

	cmd := &StatusCommand{globals: &GlobalFlags{JSON: true}, version: "1.2.3"}
	out, err := captureOutput(t, func() error {
		return cmd.executeWithStore(store, db, "/tmp/emosync.db")
	})
	require.NoError(t, err)

	var got statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "1.2.3", got.Version)
	assert.Equal(t, "/tmp/emosync.db", got.DatabasePath)
	assert.Zero(t, got.TotalExperiments)
	assert.Empty(t, got.NewestImport)
}

func TestBuildLogger_Levels(t *testing.T) {
	assert.True(t, buildLogger("debug", false).Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, buildLogger("info", false).Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, buildLogger("error", false).Enabled(context.Background(), slog.LevelWarn))
	// --verbose wins over the configured level.
	assert.True(t, buildLogger("error", true).Enabled(context.Background(), slog.LevelDebug))
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", formatNumber(0))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,000", formatNumber(1000))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
}
