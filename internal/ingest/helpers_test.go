package ingest

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/framelabs/emosync/internal/artifact"
	"github.com/framelabs/emosync/internal/storage"
)

// openTestStore creates a migrated in-memory store.
func openTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	// In-memory SQLite is per-connection; keep the pool at one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.NewMigrationRunner(db).Run())

	store, err := storage.NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient serves canned object listings and bodies.
type fakeClient struct {
	keys    []string
	objects map[string][]byte
	listErr error
}

func (f *fakeClient) ListKeys(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.keys, nil
}

func (f *fakeClient) ReadObject(ctx context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return data, nil
}

func parseDoc(t *testing.T, data string) gjson.Result {
	t.Helper()
	require.True(t, gjson.Valid(data))
	return gjson.Parse(data)
}

func testGroup() artifact.Group {
	return artifact.Group{
		DateFolder:    "2025-03-14",
		SessionFolder: "session_a",
		VideoName:     "coffee_tasting_session_video1",
	}
}

const sentimentDoc = `{
	"analyzed_at": "2025-03-14T12:30:00Z",
	"model_used": "emotion-bert-v2",
	"summary": {
		"total_segments": 3,
		"dominant_emotion": "happy",
		"emotion_percentages": {"happy": 60.0, "neutral": 40.0},
		"emotion_counts": {"happy": 2, "neutral": 1},
		"primary_emotion_counts": {"happy": 2, "neutral": 1}
	},
	"detailed_analyses": [
		{
			"text": "this coffee is wonderful",
			"primary_emotion": "happy",
			"dialogue_emotions": {"happy": 0.85, "neutral": 0.15},
			"sentiment": {"label": "positive", "score": 0.9}
		},
		{
			"text": "pour the next cup",
			"emotion": "neutral",
			"dialogue_emotions": [["neutral", 0.7], ["happy", 0.3]],
			"sentiment": "neutral"
		},
		{
			"text": "hmm"
		}
	]
}`

const chartDoc = `{
	"timeline": {
		"timeline_bins": [
			{
				"bin_index": 0,
				"start_time": 0,
				"end_time": 60,
				"formatted_start": "00:00:00",
				"formatted_end": "00:01:00",
				"dominant_emotion": "happy",
				"emotion_counts": {"happy": 2},
				"emotion_percentages": {"happy": 100.0}
			},
			{
				"bin_index": 1,
				"start_time": 60,
				"end_time": 120,
				"formatted_start": "00:01:00",
				"formatted_end": "00:02:00",
				"dominant_emotion": "neutral",
				"emotion_counts": {"neutral": 1},
				"emotion_percentages": {"neutral": 100.0}
			}
		]
	}
}`

const keywordDoc = `{
	"keywords": [
		{"text": "coffee", "value": 12, "tf_idf_score": 0.7, "relevance_score": 0.9},
		{"text": "taste", "value": 8, "tf_idf_score": 0.5, "relevance_score": 0.6}
	]
}`

const insightsDoc = `{
	"reading_time_minutes": 3.5,
	"lexical_diversity": 0.43,
	"counts": {"words": 420, "unique_words": 180},
	"topics": [["flavor", 4], ["aroma", 2], "oddball", ["short"]],
	"top_bigrams": [["coffee taste", 5]],
	"top_trigrams": [],
	"important_sentences": ["this coffee is wonderful"],
	"text_statistics": {"avg_sentence_length_tokens": 11.2, "avg_word_length": 4.6},
	"sentiment_summary": {
		"questions_detected": {
			"questions_by_time": [
				{"question_text": "What do you taste?", "pattern_matched": "what", "position": 3, "confidence": 0.8},
				"not an object"
			]
		},
		"action_items_detected": {
			"actions_by_time": [
				{"action_text": "Try the next cup", "pattern_matched": "try", "position": 7, "confidence": 0.6}
			]
		}
	}
}`

const summaryDoc = `{
	"final_summary_preview": "A pleasant coffee tasting.",
	"length_profile": "short",
	"num_segments": 3
}`

// fullBundle builds a bundle with all five documents present.
func fullBundle(t *testing.T) artifact.Bundle {
	t.Helper()
	return artifact.Bundle{
		artifact.DocSentiment:    parseDoc(t, sentimentDoc),
		artifact.DocChartData:    parseDoc(t, chartDoc),
		artifact.DocKeywordCloud: parseDoc(t, keywordDoc),
		artifact.DocInsights:     parseDoc(t, insightsDoc),
		artifact.DocSummary:      parseDoc(t, summaryDoc),
	}
}
