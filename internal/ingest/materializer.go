package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/framelabs/emosync/internal/artifact"
	"github.com/framelabs/emosync/internal/storage"
)

// Row caps per analysis. Input lists beyond these lengths are truncated.
const (
	maxKeywords  = 50
	maxTopics    = 10
	maxQuestions = 20
	maxActions   = 20
)

// ErrMissingSentiment is returned when a bundle lacks the one document
// materialization cannot proceed without.
var ErrMissingSentiment = errors.New("bundle has no sentiment document")

// Materializer turns one loaded artifact bundle into a transactional
// write of the full analysis entity graph.
type Materializer struct {
	Store  storage.Store
	Logger *slog.Logger

	// beforeCommit, when set, runs after all writes and before commit.
	// Used by tests to force a rollback mid-transaction.
	beforeCommit func() error
}

func (m *Materializer) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Materialize writes the analysis graph for one artifact group and
// returns the analysis ID. If the group's experiment already owns an
// analysis, the existing ID is returned and nothing is written. Any
// failure rolls back the whole transaction, so no partial child rows
// survive.
func (m *Materializer) Materialize(ctx context.Context, g artifact.Group, bundle artifact.Bundle) (int64, error) {
	sentiment, ok := bundle[artifact.DocSentiment]
	if !ok {
		return 0, ErrMissingSentiment
	}
	// Absent optional documents are zero Results; Get on them simply
	// finds nothing, which is exactly the defaulting we want.
	insights := bundle[artifact.DocInsights]
	chart := bundle[artifact.DocChartData]
	keywordCloud := bundle[artifact.DocKeywordCloud]
	summary := bundle[artifact.DocSummary]

	tx, err := m.Store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	experiment, err := ResolveExperiment(ctx, tx, g, m.logger())
	if err != nil {
		return 0, err
	}

	existing, err := tx.AnalysisForExperiment(ctx, experiment.ID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		m.logger().Info("experiment already has an analysis, skipping",
			"experiment_id", experiment.ID, "analysis_id", existing.ID)
		return existing.ID, nil
	}

	sentimentSummary := sentiment.Get("summary")

	// 1. Analysis root row.
	analysis := &storage.Analysis{
		ExperimentID:       experiment.ID,
		SourceFilename:     g.VideoName,
		GeneratedAt:        time.Now(),
		AnalyzedAt:         parseAnalyzedAt(sentiment.Get("analyzed_at")),
		ModelUsed:          sentiment.Get("model_used").String(),
		TotalSegments:      int(sentimentSummary.Get("total_segments").Int()),
		ReadingTimeMinutes: insights.Get("reading_time_minutes").Float(),
		WordCount:          int(insights.Get("counts.words").Int()),
		UniqueWordsCount:   int(insights.Get("counts.unique_words").Int()),
		LexicalDiversity:   insights.Get("lexical_diversity").Float(),
		DominantEmotion:    stringOr(sentimentSummary.Get("dominant_emotion"), "neutral"),
	}
	analysisID, err := tx.InsertAnalysis(ctx, analysis)
	if err != nil {
		return 0, err
	}

	// 2. Emotion summary.
	if err := tx.InsertEmotionSummary(ctx, &storage.EmotionSummary{
		AnalysisID:           analysisID,
		EmotionPercentages:   floatMap(sentimentSummary.Get("emotion_percentages")),
		EmotionCounts:        intMap(sentimentSummary.Get("emotion_counts")),
		PrimaryEmotionCounts: intMap(sentimentSummary.Get("primary_emotion_counts")),
	}); err != nil {
		return 0, err
	}

	// 3. Timeline segments, one per detailed analysis entry.
	segments := buildTimelineSegments(analysisID, sentiment.Get("detailed_analyses"))
	if err := tx.InsertTimelineSegments(ctx, segments); err != nil {
		return 0, err
	}

	// 4. Chart bins.
	if err := tx.InsertChartBins(ctx, buildChartBins(analysisID, chart.Get("timeline.timeline_bins"))); err != nil {
		return 0, err
	}

	// 5. Transcript summary.
	if _, ok := bundle[artifact.DocSummary]; ok {
		if err := tx.InsertTranscriptSummary(ctx, &storage.TranscriptSummary{
			AnalysisID:    analysisID,
			Content:       summary.Get("final_summary_preview").String(),
			LengthProfile: stringOr(summary.Get("length_profile"), "medium"),
			NumSegments:   int(summary.Get("num_segments").Int()),
		}); err != nil {
			return 0, err
		}
	}

	// 6. Keywords, rank assigned by input order.
	if err := tx.InsertKeywords(ctx, buildKeywords(analysisID, keywordCloud.Get("keywords"))); err != nil {
		return 0, err
	}

	// 7. Topic sentiments. Only (name, count) pairs are accepted; the
	// richer per-topic stats are written as zeros.
	if err := tx.InsertTopicSentiments(ctx, buildTopicSentiments(analysisID, insights.Get("topics"))); err != nil {
		return 0, err
	}

	// 8. Detected questions and actions.
	insightsSummary := insights.Get("sentiment_summary")
	questions := buildDetectedQuestions(analysisID, insightsSummary.Get("questions_detected.questions_by_time"))
	if err := tx.InsertDetectedQuestions(ctx, questions); err != nil {
		return 0, err
	}
	actions := buildDetectedActions(analysisID, insightsSummary.Get("action_items_detected.actions_by_time"))
	if err := tx.InsertDetectedActions(ctx, actions); err != nil {
		return 0, err
	}

	// 9. Text insight.
	if _, ok := bundle[artifact.DocInsights]; ok {
		textStats := insights.Get("text_statistics")
		if err := tx.InsertTextInsight(ctx, &storage.TextInsight{
			AnalysisID:         analysisID,
			TopBigrams:         rawList(insights.Get("top_bigrams")),
			TopTrigrams:        rawList(insights.Get("top_trigrams")),
			ImportantSentences: rawList(insights.Get("important_sentences")),
			AvgSentenceLength:  textStats.Get("avg_sentence_length_tokens").Float(),
			AvgWordLength:      textStats.Get("avg_word_length").Float(),
		}); err != nil {
			return 0, err
		}
	}

	if m.beforeCommit != nil {
		if err := m.beforeCommit(); err != nil {
			return 0, err
		}
	}

	// 10. Single commit for the whole graph.
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	m.logger().Info("materialized analysis",
		"analysis_id", analysisID, "experiment_id", experiment.ID,
		"video", g.VideoName, "segments", len(segments))
	return analysisID, nil
}

// parseAnalyzedAt parses the sentiment document's timestamp, falling back
// to the current time.
func parseAnalyzedAt(res gjson.Result) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, res.String()); err == nil {
			return t
		}
	}
	return time.Now()
}

// stringOr returns the field's string value, or def when the field is
// absent.
func stringOr(res gjson.Result, def string) string {
	if res.Exists() {
		return res.String()
	}
	return def
}

// floatMap converts a JSON object into a label -> value map. Missing or
// non-object input yields an empty map.
func floatMap(res gjson.Result) map[string]float64 {
	m := make(map[string]float64)
	if res.IsObject() {
		res.ForEach(func(key, value gjson.Result) bool {
			m[key.String()] = value.Float()
			return true
		})
	}
	return m
}

// intMap converts a JSON object into a label -> count map. Missing or
// non-object input yields an empty map.
func intMap(res gjson.Result) map[string]int {
	m := make(map[string]int)
	if res.IsObject() {
		res.ForEach(func(key, value gjson.Result) bool {
			m[key.String()] = int(value.Int())
			return true
		})
	}
	return m
}

// emotionVector normalizes a segment's emotion vector. The pipeline
// emits it either as an object or as a list of [label, weight] pairs;
// anything else yields nil.
func emotionVector(res gjson.Result) map[string]float64 {
	vec := make(map[string]float64)
	switch {
	case res.IsArray():
		res.ForEach(func(_, item gjson.Result) bool {
			pair := item.Array()
			if item.IsArray() && len(pair) == 2 {
				vec[pair[0].String()] = pair[1].Float()
			}
			return true
		})
	case res.IsObject():
		res.ForEach(func(key, value gjson.Result) bool {
			vec[key.String()] = value.Float()
			return true
		})
	}
	if len(vec) == 0 {
		return nil
	}
	return vec
}

// segmentSentiment extracts the sentiment label and score from a
// segment's sentiment field. Anything other than an object yields the
// neutral default.
func segmentSentiment(res gjson.Result) (string, float64) {
	if res.IsObject() {
		return stringOr(res.Get("label"), "neutral"), res.Get("score").Float()
	}
	return "neutral", 0.0
}

// buildTimelineSegments derives one row per detailed-analysis entry.
// Start/end times are synthesized as unit-length bins keyed by index;
// the pipeline does not emit real timestamps for segments.
func buildTimelineSegments(analysisID int64, detailed gjson.Result) []storage.TimelineSegment {
	var segments []storage.TimelineSegment
	idx := 0
	detailed.ForEach(func(_, seg gjson.Result) bool {
		primary := stringOr(seg.Get("primary_emotion"), stringOr(seg.Get("emotion"), "neutral"))
		vec := emotionVector(seg.Get("dialogue_emotions"))
		label, score := segmentSentiment(seg.Get("sentiment"))

		confidence := 0.5
		if v, ok := vec[primary]; ok {
			confidence = v
		}

		segments = append(segments, storage.TimelineSegment{
			AnalysisID:      analysisID,
			SegmentIndex:    idx,
			StartTime:       float64(idx),
			EndTime:         float64(idx + 1),
			Duration:        1.0,
			TextContent:     seg.Get("text").String(),
			PrimaryEmotion:  primary,
			SentimentLabel:  label,
			SentimentScore:  score,
			ConfidenceScore: confidence,
			EmotionVector:   vec,
		})
		idx++
		return true
	})
	return segments
}

// buildChartBins derives one row per input timeline bin, uncapped.
func buildChartBins(analysisID int64, bins gjson.Result) []storage.ChartBin {
	var out []storage.ChartBin
	bins.ForEach(func(_, bin gjson.Result) bool {
		out = append(out, storage.ChartBin{
			AnalysisID:         analysisID,
			BinIndex:           int(bin.Get("bin_index").Int()),
			StartTime:          bin.Get("start_time").Float(),
			EndTime:            bin.Get("end_time").Float(),
			FormattedStart:     bin.Get("formatted_start").String(),
			FormattedEnd:       bin.Get("formatted_end").String(),
			DominantEmotion:    stringOr(bin.Get("dominant_emotion"), "neutral"),
			EmotionCounts:      intMap(bin.Get("emotion_counts")),
			EmotionPercentages: floatMap(bin.Get("emotion_percentages")),
		})
		return true
	})
	return out
}

// buildKeywords derives ranked keyword rows, capped at maxKeywords.
func buildKeywords(analysisID int64, keywords gjson.Result) []storage.Keyword {
	var out []storage.Keyword
	keywords.ForEach(func(_, kw gjson.Result) bool {
		if len(out) >= maxKeywords {
			return false
		}
		out = append(out, storage.Keyword{
			AnalysisID:     analysisID,
			Text:           kw.Get("text").String(),
			Rank:           len(out) + 1,
			Value:          int(kw.Get("value").Int()),
			TFIDFScore:     kw.Get("tf_idf_score").Float(),
			RelevanceScore: kw.Get("relevance_score").Float(),
		})
		return true
	})
	return out
}

// buildTopicSentiments accepts only entries shaped as a (name, count)
// pair from the first maxTopics list entries.
func buildTopicSentiments(analysisID int64, topics gjson.Result) []storage.TopicSentiment {
	var out []storage.TopicSentiment
	seen := 0
	topics.ForEach(func(_, topic gjson.Result) bool {
		if seen >= maxTopics {
			return false
		}
		seen++
		pair := topic.Array()
		if !topic.IsArray() || len(pair) < 2 {
			return true
		}
		out = append(out, storage.TopicSentiment{
			AnalysisID:      analysisID,
			TopicName:       pair[0].String(),
			TotalSegments:   int(pair[1].Int()),
			DominantEmotion: "neutral",
		})
		return true
	})
	return out
}

// buildDetectedQuestions keeps object-shaped entries from the first
// maxQuestions list entries.
func buildDetectedQuestions(analysisID int64, questions gjson.Result) []storage.DetectedQuestion {
	var out []storage.DetectedQuestion
	seen := 0
	questions.ForEach(func(_, q gjson.Result) bool {
		if seen >= maxQuestions {
			return false
		}
		seen++
		if !q.IsObject() {
			return true
		}
		out = append(out, storage.DetectedQuestion{
			AnalysisID:     analysisID,
			QuestionText:   q.Get("question_text").String(),
			PatternMatched: q.Get("pattern_matched").String(),
			PositionIndex:  int(q.Get("position").Int()),
			Confidence:     q.Get("confidence").Float(),
		})
		return true
	})
	return out
}

// buildDetectedActions keeps object-shaped entries from the first
// maxActions list entries.
func buildDetectedActions(analysisID int64, actions gjson.Result) []storage.DetectedAction {
	var out []storage.DetectedAction
	seen := 0
	actions.ForEach(func(_, a gjson.Result) bool {
		if seen >= maxActions {
			return false
		}
		seen++
		if !a.IsObject() {
			return true
		}
		out = append(out, storage.DetectedAction{
			AnalysisID:     analysisID,
			ActionText:     a.Get("action_text").String(),
			PatternMatched: a.Get("pattern_matched").String(),
			PositionIndex:  int(a.Get("position").Int()),
			Confidence:     a.Get("confidence").Float(),
		})
		return true
	})
	return out
}

// rawList preserves an upstream JSON list untouched, defaulting to an
// empty list when absent.
func rawList(res gjson.Result) json.RawMessage {
	if res.Exists() {
		return json.RawMessage(res.Raw)
	}
	return json.RawMessage("[]")
}
