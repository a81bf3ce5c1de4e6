package storage

import "database/sql"

// migrateV001 creates the initial emosync schema: experiments, the
// analysis root table, and all cascade-deleted child tables. JSON-valued
// columns (emotion distributions, n-gram lists) are stored as TEXT
// holding serialized JSON. Every statement uses IF NOT EXISTS for
// idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		// ── Tables ──────────────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS experiments (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			title             TEXT NOT NULL,
			description       TEXT NOT NULL DEFAULT '',
			date              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			tags              TEXT NOT NULL DEFAULT '',
			participant_count INTEGER NOT NULL DEFAULT 0,
			duration          INTEGER NOT NULL DEFAULT 0,
			avg_score         REAL NOT NULL DEFAULT 0.0,
			status            TEXT NOT NULL DEFAULT 'Completed',
			created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS analyses (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			experiment_id        INTEGER REFERENCES experiments(id) ON DELETE CASCADE,
			source_filename      TEXT NOT NULL,
			generated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			analyzed_at          DATETIME,
			model_used           TEXT NOT NULL DEFAULT '',
			total_segments       INTEGER NOT NULL DEFAULT 0,
			reading_time_minutes REAL NOT NULL DEFAULT 0.0,
			word_count           INTEGER NOT NULL DEFAULT 0,
			unique_words_count   INTEGER NOT NULL DEFAULT 0,
			lexical_diversity    REAL NOT NULL DEFAULT 0.0,
			dominant_emotion     TEXT NOT NULL DEFAULT 'neutral'
		)`,

		`CREATE TABLE IF NOT EXISTS emotion_summaries (
			id                     INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id            INTEGER NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			emotion_percentages    TEXT,
			emotion_counts         TEXT,
			primary_emotion_counts TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS timeline_segments (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id      INTEGER NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			segment_index    INTEGER NOT NULL,
			start_time       REAL NOT NULL DEFAULT 0.0,
			end_time         REAL NOT NULL DEFAULT 0.0,
			duration         REAL NOT NULL DEFAULT 0.0,
			text_content     TEXT NOT NULL DEFAULT '',
			primary_emotion  TEXT NOT NULL DEFAULT 'neutral',
			sentiment_label  TEXT NOT NULL DEFAULT 'neutral',
			sentiment_score  REAL NOT NULL DEFAULT 0.0,
			confidence_score REAL NOT NULL DEFAULT 0.0,
			emotion_vector   TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS chart_bins (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id         INTEGER NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			bin_index           INTEGER NOT NULL,
			start_time          REAL NOT NULL DEFAULT 0.0,
			end_time            REAL NOT NULL DEFAULT 0.0,
			formatted_start     TEXT NOT NULL DEFAULT '',
			formatted_end       TEXT NOT NULL DEFAULT '',
			dominant_emotion    TEXT NOT NULL DEFAULT 'neutral',
			emotion_counts      TEXT,
			emotion_percentages TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS transcript_summaries (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id    INTEGER NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			content        TEXT NOT NULL DEFAULT '',
			length_profile TEXT NOT NULL DEFAULT 'medium',
			num_segments   INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS keywords (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id     INTEGER NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			text            TEXT NOT NULL DEFAULT '',
			rank            INTEGER NOT NULL,
			value           INTEGER NOT NULL DEFAULT 0,
			tf_idf_score    REAL NOT NULL DEFAULT 0.0,
			relevance_score REAL NOT NULL DEFAULT 0.0
		)`,

		`CREATE TABLE IF NOT EXISTS topic_sentiments (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id        INTEGER NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			topic_name         TEXT NOT NULL DEFAULT '',
			total_segments     INTEGER NOT NULL DEFAULT 0,
			dominant_emotion   TEXT NOT NULL DEFAULT 'neutral',
			average_confidence REAL NOT NULL DEFAULT 0.0,
			emotion_diversity  REAL NOT NULL DEFAULT 0.0,
			time_span_seconds  REAL NOT NULL DEFAULT 0.0
		)`,

		`CREATE TABLE IF NOT EXISTS detected_questions (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id     INTEGER NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			question_text   TEXT NOT NULL DEFAULT '',
			pattern_matched TEXT NOT NULL DEFAULT '',
			position_index  INTEGER NOT NULL DEFAULT 0,
			confidence      REAL NOT NULL DEFAULT 0.0
		)`,

		`CREATE TABLE IF NOT EXISTS detected_actions (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id     INTEGER NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			action_text     TEXT NOT NULL DEFAULT '',
			pattern_matched TEXT NOT NULL DEFAULT '',
			position_index  INTEGER NOT NULL DEFAULT 0,
			confidence      REAL NOT NULL DEFAULT 0.0
		)`,

		`CREATE TABLE IF NOT EXISTS text_insights (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id         INTEGER NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			top_bigrams         TEXT,
			top_trigrams        TEXT,
			important_sentences TEXT,
			avg_sentence_length REAL NOT NULL DEFAULT 0.0,
			avg_word_length     REAL NOT NULL DEFAULT 0.0
		)`,

		// ── Indexes ────────────────────────────────────────────

		// One Analysis per Experiment, enforced at the schema level.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_analyses_experiment ON analyses(experiment_id)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_source           ON analyses(source_filename)`,
		`CREATE INDEX IF NOT EXISTS idx_experiments_date          ON experiments(date)`,
		`CREATE INDEX IF NOT EXISTS idx_segments_analysis         ON timeline_segments(analysis_id, segment_index)`,
		`CREATE INDEX IF NOT EXISTS idx_chart_bins_analysis       ON chart_bins(analysis_id, bin_index)`,
		`CREATE INDEX IF NOT EXISTS idx_keywords_analysis         ON keywords(analysis_id, rank)`,
		`CREATE INDEX IF NOT EXISTS idx_topics_analysis           ON topic_sentiments(analysis_id)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_analysis        ON detected_questions(analysis_id)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_analysis          ON detected_actions(analysis_id)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
