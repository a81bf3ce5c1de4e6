// Package ingest reconciles artifact groups from the object store into
// the relational entity graph: experiment resolution, transactional
// materialization, and the sync orchestration loop.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/framelabs/emosync/internal/artifact"
	"github.com/framelabs/emosync/internal/storage"
)

// AutoImportTag marks experiments the resolver created itself, so the
// dashboard can tell them apart from manually entered ones.
const AutoImportTag = "Auto-imported"

const dateFolderLayout = "2006-01-02"

// titleCase uppercases the first letter of each word and lowercases the
// rest, e.g. "coffee tasting SESSION" -> "Coffee Tasting Session".
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// cleanVideoName converts a video name like "coffee_tasting_session"
// into the display form "Coffee Tasting Session" used for title matching.
func cleanVideoName(videoName string) string {
	return titleCase(strings.ReplaceAll(videoName, "_", " "))
}

// ResolveExperiment returns the experiment an artifact group's analysis
// should attach to, creating one when no match exists. Matching order:
// title substring match on the normalized video name, then calendar-day
// match on the date folder, then auto-create. The experiment is inserted
// on the caller's transaction without committing, so a later
// materialization failure rolls it back too.
func ResolveExperiment(ctx context.Context, tx *storage.Tx, g artifact.Group, logger *slog.Logger) (*storage.Experiment, error) {
	clean := cleanVideoName(g.VideoName)

	exp, err := tx.ExperimentByTitleLike(ctx, clean)
	if err != nil {
		return nil, err
	}
	if exp != nil {
		logger.Info("found existing experiment by title", "title", exp.Title, "id", exp.ID)
		return exp, nil
	}

	// A malformed date folder silently disables the date strategy.
	if day, perr := time.Parse(dateFolderLayout, g.DateFolder); perr == nil {
		exp, err = tx.ExperimentByDate(ctx, day)
		if err != nil {
			return nil, err
		}
		if exp != nil {
			logger.Info("found existing experiment by date", "title", exp.Title, "id", exp.ID)
			return exp, nil
		}
	}

	date, perr := time.Parse(dateFolderLayout, g.DateFolder)
	if perr != nil {
		date = time.Now()
	}

	exp = &storage.Experiment{
		Title:       fmt.Sprintf("%s - %s", titleCase(strings.ReplaceAll(g.SessionFolder, "_", " ")), clean),
		Description: fmt.Sprintf("Auto-generated from object store import: %s", g.VideoName),
		Date:        date,
		Status:      "Completed",
		Tags:        AutoImportTag,
	}
	if _, err := tx.InsertExperiment(ctx, exp); err != nil {
		return nil, err
	}
	logger.Info("created new experiment", "title", exp.Title, "id", exp.ID)
	return exp, nil
}
