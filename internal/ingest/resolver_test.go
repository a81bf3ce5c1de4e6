package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelabs/emosync/internal/artifact"
	"github.com/framelabs/emosync/internal/storage"
)

func insertExperiment(t *testing.T, store storage.Store, e *storage.Experiment) int64 {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	id, err := tx.InsertExperiment(ctx, e)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return id
}

func resolve(t *testing.T, store storage.Store, g artifact.Group) *storage.Experiment {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	exp, err := ResolveExperiment(ctx, tx, g, testLogger())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return exp
}

func TestResolveExperiment_MatchesByTitle(t *testing.T) {
	store := openTestStore(t)

	// "coffee_tasting_session_video1" cleans to "Coffee Tasting Session
	// Video1", which contains this title as a substring.
	wantID := insertExperiment(t, store, &storage.Experiment{
		Title: "Some Coffee Tasting Session Video1 Notes",
		Date:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	exp := resolve(t, store, testGroup())
	assert.Equal(t, wantID, exp.ID)
}

func TestResolveExperiment_ExactTitleMatch(t *testing.T) {
	store := openTestStore(t)

	wantID := insertExperiment(t, store, &storage.Experiment{
		Title: "Coffee Tasting Session",
		Date:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	g := testGroup()
	g.VideoName = "coffee_tasting_session"
	exp := resolve(t, store, g)
	assert.Equal(t, wantID, exp.ID, "no duplicate experiment is created")
}

func TestResolveExperiment_TitleMatchIsCaseInsensitive(t *testing.T) {
	store := openTestStore(t)

	wantID := insertExperiment(t, store, &storage.Experiment{
		Title: "COFFEE TASTING SESSION VIDEO1",
		Date:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	exp := resolve(t, store, testGroup())
	assert.Equal(t, wantID, exp.ID)
}

func TestResolveExperiment_FallsBackToDateMatch(t *testing.T) {
	store := openTestStore(t)

	wantID := insertExperiment(t, store, &storage.Experiment{
		Title: "Unrelated Title",
		Date:  time.Date(2025, 3, 14, 16, 20, 0, 0, time.UTC),
	})

	exp := resolve(t, store, testGroup())
	assert.Equal(t, wantID, exp.ID)
}

func TestResolveExperiment_TitleMatchWinsOverDateMatch(t *testing.T) {
	store := openTestStore(t)

	insertExperiment(t, store, &storage.Experiment{
		Title: "Unrelated Title",
		Date:  time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	wantID := insertExperiment(t, store, &storage.Experiment{
		Title: "Coffee Tasting Session Video1",
		Date:  time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	exp := resolve(t, store, testGroup())
	assert.Equal(t, wantID, exp.ID)
}

func TestResolveExperiment_AutoCreates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	exp := resolve(t, store, testGroup())
	require.NotZero(t, exp.ID)

	got, err := store.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Session A - Coffee Tasting Session Video1", got.Title)
	assert.Equal(t, "Completed", got.Status)
	assert.Equal(t, AutoImportTag, got.Tags)
	assert.Equal(t, "2025-03-14", got.Date.Format("2006-01-02"))
}

func TestResolveExperiment_MalformedDateFolder(t *testing.T) {
	store := openTestStore(t)

	// A date-matching candidate exists but the folder name does not parse,
	// so the date strategy is skipped and a new experiment is created.
	otherID := insertExperiment(t, store, &storage.Experiment{
		Title: "Unrelated Title",
		Date:  time.Now(),
	})

	g := testGroup()
	g.DateFolder = "not-a-date"
	exp := resolve(t, store, g)
	assert.NotEqual(t, otherID, exp.ID)
	assert.Equal(t, AutoImportTag, exp.Tags)
	assert.False(t, exp.Date.IsZero())
}

func TestResolveExperiment_IsDeterministic(t *testing.T) {
	store := openTestStore(t)

	first := resolve(t, store, testGroup())
	second := resolve(t, store, testGroup())
	assert.Equal(t, first.ID, second.ID)
}
