package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store defines the interface for emosync data operations. Writes that
// belong to one artifact group go through a Tx obtained from Begin, so
// transaction boundaries are owned by the caller.
type Store interface {
	Begin(ctx context.Context) (*Tx, error)

	AnalysisBySourceFilename(ctx context.Context, name string) (*Analysis, error)
	GetAnalysis(ctx context.Context, id int64) (*Analysis, error)
	GetExperiment(ctx context.Context, id int64) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]Experiment, error)
	DeleteExperiment(ctx context.Context, id int64) error

	EmotionSummaryFor(ctx context.Context, analysisID int64) (*EmotionSummary, error)
	TimelineSegmentsFor(ctx context.Context, analysisID int64) ([]TimelineSegment, error)
	ChartBinsFor(ctx context.Context, analysisID int64) ([]ChartBin, error)
	TranscriptSummaryFor(ctx context.Context, analysisID int64) (*TranscriptSummary, error)
	KeywordsFor(ctx context.Context, analysisID int64) ([]Keyword, error)
	TopicSentimentsFor(ctx context.Context, analysisID int64) ([]TopicSentiment, error)
	DetectedQuestionsFor(ctx context.Context, analysisID int64) ([]DetectedQuestion, error)
	DetectedActionsFor(ctx context.Context, analysisID int64) ([]DetectedAction, error)
	TextInsightFor(ctx context.Context, analysisID int64) (*TextInsight, error)

	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore from an already-opened and
// migrated database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("nil database handle")
	}
	return &SQLiteStore{db: db}, nil
}

// Begin opens a unit of work. The caller must Commit or Rollback it.
func (s *SQLiteStore) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05.999999999-07:00",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

// jsonColumn marshals v for storage in a TEXT column. nil maps and empty
// raw messages become SQL NULL.
func jsonColumn(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(val) == 0 {
			return nil, nil
		}
		return string(val), nil
	case map[string]float64:
		if val == nil {
			return nil, nil
		}
	case map[string]int:
		if val == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return string(data), nil
}

// scanJSONMap unmarshals a nullable TEXT column into dst (a map pointer).
func scanJSONMap(col sql.NullString, dst interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dst)
}

const analysisColumns = `id, experiment_id, source_filename, generated_at, analyzed_at,
	model_used, total_segments, reading_time_minutes, word_count,
	unique_words_count, lexical_diversity, dominant_emotion`

// scanAnalysis scans one analyses row from a *sql.Row or *sql.Rows.
func scanAnalysis(row interface {
	Scan(dest ...interface{}) error
}) (*Analysis, error) {
	var a Analysis
	var expID sql.NullInt64
	var generatedStr string
	var analyzedStr sql.NullString

	err := row.Scan(
		&a.ID, &expID, &a.SourceFilename, &generatedStr, &analyzedStr,
		&a.ModelUsed, &a.TotalSegments, &a.ReadingTimeMinutes, &a.WordCount,
		&a.UniqueWordsCount, &a.LexicalDiversity, &a.DominantEmotion,
	)
	if err != nil {
		return nil, err
	}

	if expID.Valid {
		a.ExperimentID = expID.Int64
	}
	a.GeneratedAt, _ = parseTimestamp(generatedStr)
	if analyzedStr.Valid {
		a.AnalyzedAt, _ = parseTimestamp(analyzedStr.String)
	}
	return &a, nil
}

// AnalysisBySourceFilename returns the analysis imported from the given
// video name, or nil if none exists. This is the sync path's dedupe gate.
func (s *SQLiteStore) AnalysisBySourceFilename(ctx context.Context, name string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE source_filename = ? ORDER BY id LIMIT 1`, name,
	)
	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("analysis by source filename: %w", err)
	}
	return a, nil
}

// GetAnalysis retrieves a single analysis by ID.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, id int64) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id,
	)
	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("analysis %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return a, nil
}

const experimentColumns = `id, title, description, date, tags, participant_count, duration, avg_score, status`

func scanExperiment(row interface {
	Scan(dest ...interface{}) error
}) (*Experiment, error) {
	var e Experiment
	var dateStr string
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &dateStr, &e.Tags,
		&e.ParticipantCount, &e.Duration, &e.AvgScore, &e.Status,
	)
	if err != nil {
		return nil, err
	}
	e.Date, _ = parseTimestamp(dateStr)
	return &e, nil
}

// GetExperiment retrieves a single experiment by ID.
func (s *SQLiteStore) GetExperiment(ctx context.Context, id int64) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id,
	)
	e, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("experiment %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get experiment: %w", err)
	}
	return e, nil
}

// ListExperiments returns all experiments, newest first.
func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY date DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		experiments = append(experiments, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if experiments == nil {
		experiments = []Experiment{}
	}
	return experiments, nil
}

// DeleteExperiment removes an experiment. Its analysis and all analysis
// children are cascade-deleted by the schema.
func (s *SQLiteStore) DeleteExperiment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM experiments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete experiment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("experiment %d not found", id)
	}
	return nil
}

// EmotionSummaryFor returns the emotion summary row for an analysis, or
// nil if none was materialized.
func (s *SQLiteStore) EmotionSummaryFor(ctx context.Context, analysisID int64) (*EmotionSummary, error) {
	var es EmotionSummary
	var pct, counts, primary sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT analysis_id, emotion_percentages, emotion_counts, primary_emotion_counts
		 FROM emotion_summaries WHERE analysis_id = ?`, analysisID,
	).Scan(&es.AnalysisID, &pct, &counts, &primary)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("emotion summary: %w", err)
	}
	if err := scanJSONMap(pct, &es.EmotionPercentages); err != nil {
		return nil, err
	}
	if err := scanJSONMap(counts, &es.EmotionCounts); err != nil {
		return nil, err
	}
	if err := scanJSONMap(primary, &es.PrimaryEmotionCounts); err != nil {
		return nil, err
	}
	return &es, nil
}

// TimelineSegmentsFor returns all timeline segments for an analysis,
// ordered by segment index.
func (s *SQLiteStore) TimelineSegmentsFor(ctx context.Context, analysisID int64) ([]TimelineSegment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT analysis_id, segment_index, start_time, end_time, duration, text_content,
		        primary_emotion, sentiment_label, sentiment_score, confidence_score, emotion_vector
		 FROM timeline_segments WHERE analysis_id = ? ORDER BY segment_index`, analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("timeline segments: %w", err)
	}
	defer rows.Close()

	var segments []TimelineSegment
	for rows.Next() {
		var seg TimelineSegment
		var vec sql.NullString
		if err := rows.Scan(
			&seg.AnalysisID, &seg.SegmentIndex, &seg.StartTime, &seg.EndTime, &seg.Duration,
			&seg.TextContent, &seg.PrimaryEmotion, &seg.SentimentLabel, &seg.SentimentScore,
			&seg.ConfidenceScore, &vec,
		); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if err := scanJSONMap(vec, &seg.EmotionVector); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// ChartBinsFor returns all chart bins for an analysis, ordered by bin index.
func (s *SQLiteStore) ChartBinsFor(ctx context.Context, analysisID int64) ([]ChartBin, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT analysis_id, bin_index, start_time, end_time, formatted_start, formatted_end,
		        dominant_emotion, emotion_counts, emotion_percentages
		 FROM chart_bins WHERE analysis_id = ? ORDER BY bin_index`, analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("chart bins: %w", err)
	}
	defer rows.Close()

	var bins []ChartBin
	for rows.Next() {
		var b ChartBin
		var counts, pct sql.NullString
		if err := rows.Scan(
			&b.AnalysisID, &b.BinIndex, &b.StartTime, &b.EndTime,
			&b.FormattedStart, &b.FormattedEnd, &b.DominantEmotion, &counts, &pct,
		); err != nil {
			return nil, fmt.Errorf("scan chart bin: %w", err)
		}
		if err := scanJSONMap(counts, &b.EmotionCounts); err != nil {
			return nil, err
		}
		if err := scanJSONMap(pct, &b.EmotionPercentages); err != nil {
			return nil, err
		}
		bins = append(bins, b)
	}
	return bins, rows.Err()
}

// TranscriptSummaryFor returns the transcript summary for an analysis, or
// nil if none was materialized.
func (s *SQLiteStore) TranscriptSummaryFor(ctx context.Context, analysisID int64) (*TranscriptSummary, error) {
	var ts TranscriptSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT analysis_id, content, length_profile, num_segments
		 FROM transcript_summaries WHERE analysis_id = ?`, analysisID,
	).Scan(&ts.AnalysisID, &ts.Content, &ts.LengthProfile, &ts.NumSegments)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript summary: %w", err)
	}
	return &ts, nil
}

// KeywordsFor returns all keywords for an analysis, ordered by rank.
func (s *SQLiteStore) KeywordsFor(ctx context.Context, analysisID int64) ([]Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT analysis_id, text, rank, value, tf_idf_score, relevance_score
		 FROM keywords WHERE analysis_id = ? ORDER BY rank`, analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("keywords: %w", err)
	}
	defer rows.Close()

	var keywords []Keyword
	for rows.Next() {
		var k Keyword
		if err := rows.Scan(&k.AnalysisID, &k.Text, &k.Rank, &k.Value, &k.TFIDFScore, &k.RelevanceScore); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		keywords = append(keywords, k)
	}
	return keywords, rows.Err()
}

// TopicSentimentsFor returns all topic sentiments for an analysis.
func (s *SQLiteStore) TopicSentimentsFor(ctx context.Context, analysisID int64) ([]TopicSentiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT analysis_id, topic_name, total_segments, dominant_emotion,
		        average_confidence, emotion_diversity, time_span_seconds
		 FROM topic_sentiments WHERE analysis_id = ? ORDER BY id`, analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("topic sentiments: %w", err)
	}
	defer rows.Close()

	var topics []TopicSentiment
	for rows.Next() {
		var t TopicSentiment
		if err := rows.Scan(
			&t.AnalysisID, &t.TopicName, &t.TotalSegments, &t.DominantEmotion,
			&t.AverageConfidence, &t.EmotionDiversity, &t.TimeSpanSeconds,
		); err != nil {
			return nil, fmt.Errorf("scan topic sentiment: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// DetectedQuestionsFor returns all detected questions for an analysis.
func (s *SQLiteStore) DetectedQuestionsFor(ctx context.Context, analysisID int64) ([]DetectedQuestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT analysis_id, question_text, pattern_matched, position_index, confidence
		 FROM detected_questions WHERE analysis_id = ? ORDER BY id`, analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("detected questions: %w", err)
	}
	defer rows.Close()

	var questions []DetectedQuestion
	for rows.Next() {
		var q DetectedQuestion
		if err := rows.Scan(&q.AnalysisID, &q.QuestionText, &q.PatternMatched, &q.PositionIndex, &q.Confidence); err != nil {
			return nil, fmt.Errorf("scan detected question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// DetectedActionsFor returns all detected action items for an analysis.
func (s *SQLiteStore) DetectedActionsFor(ctx context.Context, analysisID int64) ([]DetectedAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT analysis_id, action_text, pattern_matched, position_index, confidence
		 FROM detected_actions WHERE analysis_id = ? ORDER BY id`, analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("detected actions: %w", err)
	}
	defer rows.Close()

	var actions []DetectedAction
	for rows.Next() {
		var a DetectedAction
		if err := rows.Scan(&a.AnalysisID, &a.ActionText, &a.PatternMatched, &a.PositionIndex, &a.Confidence); err != nil {
			return nil, fmt.Errorf("scan detected action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// TextInsightFor returns the text insight row for an analysis, or nil if
// none was materialized.
func (s *SQLiteStore) TextInsightFor(ctx context.Context, analysisID int64) (*TextInsight, error) {
	var ti TextInsight
	var bigrams, trigrams, sentences sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT analysis_id, top_bigrams, top_trigrams, important_sentences,
		        avg_sentence_length, avg_word_length
		 FROM text_insights WHERE analysis_id = ?`, analysisID,
	).Scan(&ti.AnalysisID, &bigrams, &trigrams, &sentences, &ti.AvgSentenceLength, &ti.AvgWordLength)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("text insight: %w", err)
	}
	if bigrams.Valid {
		ti.TopBigrams = json.RawMessage(bigrams.String)
	}
	if trigrams.Valid {
		ti.TopTrigrams = json.RawMessage(trigrams.String)
	}
	if sentences.Valid {
		ti.ImportantSentences = json.RawMessage(sentences.String)
	}
	return &ti, nil
}

// GetStats returns aggregate statistics about the database.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	counts := []struct {
		query string
		dst   *int64
	}{
		{"SELECT COUNT(*) FROM experiments", &stats.TotalExperiments},
		{"SELECT COUNT(*) FROM analyses", &stats.TotalAnalyses},
		{"SELECT COUNT(*) FROM timeline_segments", &stats.TotalSegments},
		{"SELECT COUNT(*) FROM keywords", &stats.TotalKeywords},
		{"SELECT COUNT(*) FROM chart_bins", &stats.TotalChartBins},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("stats (%s): %w", c.query, err)
		}
	}

	if stats.TotalAnalyses > 0 {
		var newestStr string
		err := s.db.QueryRowContext(ctx, "SELECT MAX(generated_at) FROM analyses").Scan(&newestStr)
		if err != nil {
			return nil, fmt.Errorf("newest import: %w", err)
		}
		stats.NewestImport, _ = parseTimestamp(newestStr)
	}

	return stats, nil
}

// Close is a no-op for the store itself. The underlying *sql.DB is NOT
// closed here; that is the caller's responsibility.
func (s *SQLiteStore) Close() error {
	return nil
}
