package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Tx is a unit of work spanning exactly one artifact group. All ten
// materializer writes and any resolver-created experiment go through the
// same Tx, so either everything for one video commits or nothing does.
type Tx struct {
	tx   *sql.Tx
	done bool
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	t.done = true
	return t.tx.Commit()
}

// Rollback aborts the transaction. Safe to defer after Commit.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

// keep batched statements under SQLite's default host-parameter limit
const insertBatchSize = 50

// batchInsert writes rows in chunks of insertBatchSize using multi-row
// VALUES statements, keeping the one-round-trip-per-batch property.
func (t *Tx) batchInsert(ctx context.Context, table string, cols []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))

	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, 0, len(chunk)*len(cols))
		for i, row := range chunk {
			placeholders[i] = placeholder
			args = append(args, row...)
		}

		if _, err := t.tx.ExecContext(ctx, prefix+strings.Join(placeholders, ", "), args...); err != nil {
			return fmt.Errorf("batch insert %s: %w", table, err)
		}
	}

	return nil
}

// ExperimentByTitleLike returns the first experiment whose title contains
// needle, case-insensitively, or nil when there is no match.
func (t *Tx) ExperimentByTitleLike(ctx context.Context, needle string) (*Experiment, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments
		 WHERE title LIKE ? COLLATE NOCASE ORDER BY id LIMIT 1`,
		"%"+needle+"%",
	)
	e, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("experiment by title: %w", err)
	}
	return e, nil
}

// ExperimentByDate returns the first experiment whose date falls on the
// given calendar day, or nil when there is no match.
func (t *Tx) ExperimentByDate(ctx context.Context, day time.Time) (*Experiment, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments
		 WHERE date(date) = ? ORDER BY id LIMIT 1`,
		day.Format("2006-01-02"),
	)
	e, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("experiment by date: %w", err)
	}
	return e, nil
}

// AnalysisForExperiment returns the analysis owned by an experiment, or
// nil when the experiment has none. This is the materializer's duplicate
// guard.
func (t *Tx) AnalysisForExperiment(ctx context.Context, experimentID int64) (*Analysis, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE experiment_id = ? LIMIT 1`, experimentID,
	)
	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("analysis for experiment: %w", err)
	}
	return a, nil
}

// InsertExperiment inserts an experiment and returns its generated ID
// without committing; the commit belongs to the materializer's
// transaction.
func (t *Tx) InsertExperiment(ctx context.Context, e *Experiment) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO experiments (title, description, date, tags, participant_count, duration, avg_score, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Title, e.Description, e.Date.UTC().Format(time.RFC3339), e.Tags,
		e.ParticipantCount, e.Duration, e.AvgScore, e.Status,
	)
	if err != nil {
		return 0, fmt.Errorf("insert experiment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("experiment id: %w", err)
	}
	e.ID = id
	return id, nil
}

// InsertAnalysis inserts the analysis root row and returns its generated
// ID, needed as a foreign key by every child insert.
func (t *Tx) InsertAnalysis(ctx context.Context, a *Analysis) (int64, error) {
	var expID interface{}
	if a.ExperimentID != 0 {
		expID = a.ExperimentID
	}
	var analyzedAt interface{}
	if !a.AnalyzedAt.IsZero() {
		analyzedAt = a.AnalyzedAt.UTC().Format(time.RFC3339)
	}

	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO analyses (experiment_id, source_filename, generated_at, analyzed_at, model_used,
		                       total_segments, reading_time_minutes, word_count, unique_words_count,
		                       lexical_diversity, dominant_emotion)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expID, a.SourceFilename, a.GeneratedAt.UTC().Format(time.RFC3339), analyzedAt, a.ModelUsed,
		a.TotalSegments, a.ReadingTimeMinutes, a.WordCount, a.UniqueWordsCount,
		a.LexicalDiversity, a.DominantEmotion,
	)
	if err != nil {
		return 0, fmt.Errorf("insert analysis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("analysis id: %w", err)
	}
	a.ID = id
	return id, nil
}

// InsertEmotionSummary inserts the single emotion summary row.
func (t *Tx) InsertEmotionSummary(ctx context.Context, es *EmotionSummary) error {
	pct, err := jsonColumn(es.EmotionPercentages)
	if err != nil {
		return err
	}
	counts, err := jsonColumn(es.EmotionCounts)
	if err != nil {
		return err
	}
	primary, err := jsonColumn(es.PrimaryEmotionCounts)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO emotion_summaries (analysis_id, emotion_percentages, emotion_counts, primary_emotion_counts)
		 VALUES (?, ?, ?, ?)`,
		es.AnalysisID, pct, counts, primary,
	)
	if err != nil {
		return fmt.Errorf("insert emotion summary: %w", err)
	}
	return nil
}

// InsertTimelineSegments batch-inserts timeline segment rows.
func (t *Tx) InsertTimelineSegments(ctx context.Context, segments []TimelineSegment) error {
	cols := []string{
		"analysis_id", "segment_index", "start_time", "end_time", "duration",
		"text_content", "primary_emotion", "sentiment_label", "sentiment_score",
		"confidence_score", "emotion_vector",
	}
	rows := make([][]interface{}, 0, len(segments))
	for _, s := range segments {
		vec, err := jsonColumn(s.EmotionVector)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{
			s.AnalysisID, s.SegmentIndex, s.StartTime, s.EndTime, s.Duration,
			s.TextContent, s.PrimaryEmotion, s.SentimentLabel, s.SentimentScore,
			s.ConfidenceScore, vec,
		})
	}
	return t.batchInsert(ctx, "timeline_segments", cols, rows)
}

// InsertChartBins batch-inserts chart bin rows.
func (t *Tx) InsertChartBins(ctx context.Context, bins []ChartBin) error {
	cols := []string{
		"analysis_id", "bin_index", "start_time", "end_time", "formatted_start",
		"formatted_end", "dominant_emotion", "emotion_counts", "emotion_percentages",
	}
	rows := make([][]interface{}, 0, len(bins))
	for _, b := range bins {
		counts, err := jsonColumn(b.EmotionCounts)
		if err != nil {
			return err
		}
		pct, err := jsonColumn(b.EmotionPercentages)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{
			b.AnalysisID, b.BinIndex, b.StartTime, b.EndTime, b.FormattedStart,
			b.FormattedEnd, b.DominantEmotion, counts, pct,
		})
	}
	return t.batchInsert(ctx, "chart_bins", cols, rows)
}

// InsertTranscriptSummary inserts the single transcript summary row.
func (t *Tx) InsertTranscriptSummary(ctx context.Context, ts *TranscriptSummary) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO transcript_summaries (analysis_id, content, length_profile, num_segments)
		 VALUES (?, ?, ?, ?)`,
		ts.AnalysisID, ts.Content, ts.LengthProfile, ts.NumSegments,
	)
	if err != nil {
		return fmt.Errorf("insert transcript summary: %w", err)
	}
	return nil
}

// InsertKeywords batch-inserts keyword rows.
func (t *Tx) InsertKeywords(ctx context.Context, keywords []Keyword) error {
	cols := []string{"analysis_id", "text", "rank", "value", "tf_idf_score", "relevance_score"}
	rows := make([][]interface{}, 0, len(keywords))
	for _, k := range keywords {
		rows = append(rows, []interface{}{
			k.AnalysisID, k.Text, k.Rank, k.Value, k.TFIDFScore, k.RelevanceScore,
		})
	}
	return t.batchInsert(ctx, "keywords", cols, rows)
}

// InsertTopicSentiments batch-inserts topic sentiment rows.
func (t *Tx) InsertTopicSentiments(ctx context.Context, topics []TopicSentiment) error {
	cols := []string{
		"analysis_id", "topic_name", "total_segments", "dominant_emotion",
		"average_confidence", "emotion_diversity", "time_span_seconds",
	}
	rows := make([][]interface{}, 0, len(topics))
	for _, tp := range topics {
		rows = append(rows, []interface{}{
			tp.AnalysisID, tp.TopicName, tp.TotalSegments, tp.DominantEmotion,
			tp.AverageConfidence, tp.EmotionDiversity, tp.TimeSpanSeconds,
		})
	}
	return t.batchInsert(ctx, "topic_sentiments", cols, rows)
}

// InsertDetectedQuestions batch-inserts detected question rows.
func (t *Tx) InsertDetectedQuestions(ctx context.Context, questions []DetectedQuestion) error {
	cols := []string{"analysis_id", "question_text", "pattern_matched", "position_index", "confidence"}
	rows := make([][]interface{}, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, []interface{}{
			q.AnalysisID, q.QuestionText, q.PatternMatched, q.PositionIndex, q.Confidence,
		})
	}
	return t.batchInsert(ctx, "detected_questions", cols, rows)
}

// InsertDetectedActions batch-inserts detected action rows.
func (t *Tx) InsertDetectedActions(ctx context.Context, actions []DetectedAction) error {
	cols := []string{"analysis_id", "action_text", "pattern_matched", "position_index", "confidence"}
	rows := make([][]interface{}, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, []interface{}{
			a.AnalysisID, a.ActionText, a.PatternMatched, a.PositionIndex, a.Confidence,
		})
	}
	return t.batchInsert(ctx, "detected_actions", cols, rows)
}

// InsertTextInsight inserts the single text insight row.
func (t *Tx) InsertTextInsight(ctx context.Context, ti *TextInsight) error {
	bigrams, err := jsonColumn(ti.TopBigrams)
	if err != nil {
		return err
	}
	trigrams, err := jsonColumn(ti.TopTrigrams)
	if err != nil {
		return err
	}
	sentences, err := jsonColumn(ti.ImportantSentences)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO text_insights (analysis_id, top_bigrams, top_trigrams, important_sentences,
		                            avg_sentence_length, avg_word_length)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ti.AnalysisID, bigrams, trigrams, sentences, ti.AvgSentenceLength, ti.AvgWordLength,
	)
	if err != nil {
		return fmt.Errorf("insert text insight: %w", err)
	}
	return nil
}
