package storage

import (
	"encoding/json"
	"time"
)

// Experiment is a study session record. Experiments are created manually
// through the dashboard or auto-created by the ingest resolver; each owns
// at most one Analysis.
type Experiment struct {
	ID               int64
	Title            string
	Description      string
	Date             time.Time
	Tags             string
	ParticipantCount int
	Duration         int // minutes
	AvgScore         float64
	Status           string
}

// Analysis is the root entity materialized from one artifact group. All
// child rows hang off it and are cascade-deleted with it.
type Analysis struct {
	ID           int64
	ExperimentID int64 // 0 means unlinked
	// SourceFilename is the video name the artifact group was keyed by,
	// e.g. "3x_ptz_cameras_part_2_video1". It doubles as the dedupe key
	// for the sync path.
	SourceFilename     string
	GeneratedAt        time.Time
	AnalyzedAt         time.Time
	ModelUsed          string
	TotalSegments      int
	ReadingTimeMinutes float64
	WordCount          int
	UniqueWordsCount   int
	LexicalDiversity   float64
	DominantEmotion    string
}

// EmotionSummary holds aggregate emotion distributions for one Analysis.
type EmotionSummary struct {
	AnalysisID           int64
	EmotionPercentages   map[string]float64
	EmotionCounts        map[string]int
	PrimaryEmotionCounts map[string]int
}

// TimelineSegment is one sentence-level emotion/sentiment observation.
type TimelineSegment struct {
	AnalysisID      int64
	SegmentIndex    int
	StartTime       float64
	EndTime         float64
	Duration        float64
	TextContent     string
	PrimaryEmotion  string
	SentimentLabel  string
	SentimentScore  float64
	ConfidenceScore float64
	EmotionVector   map[string]float64
}

// ChartBin is a pre-aggregated fixed-width time bucket for charting.
type ChartBin struct {
	AnalysisID         int64
	BinIndex           int
	StartTime          float64
	EndTime            float64
	FormattedStart     string // "00:00:00"
	FormattedEnd       string
	DominantEmotion    string
	EmotionCounts      map[string]int
	EmotionPercentages map[string]float64
}

// TranscriptSummary is the generated narrative summary for one Analysis.
type TranscriptSummary struct {
	AnalysisID    int64
	Content       string
	LengthProfile string // "short", "medium", "long"
	NumSegments   int
}

// Keyword is one ranked word-cloud entry.
type Keyword struct {
	AnalysisID     int64
	Text           string
	Rank           int
	Value          int
	TFIDFScore     float64
	RelevanceScore float64
}

// TopicSentiment holds per-topic segment counts. The richer per-topic
// stats are currently always written as zero values by the materializer.
type TopicSentiment struct {
	AnalysisID        int64
	TopicName         string
	TotalSegments     int
	DominantEmotion   string
	AverageConfidence float64
	EmotionDiversity  float64
	TimeSpanSeconds   float64
}

// DetectedQuestion is a question found in the transcript.
type DetectedQuestion struct {
	AnalysisID     int64
	QuestionText   string
	PatternMatched string
	PositionIndex  int
	Confidence     float64
}

// DetectedAction is an action item found in the transcript.
type DetectedAction struct {
	AnalysisID     int64
	ActionText     string
	PatternMatched string
	PositionIndex  int
	Confidence     float64
}

// TextInsight holds linguistic statistics for one Analysis. The n-gram
// and sentence lists keep their upstream JSON shape untouched.
type TextInsight struct {
	AnalysisID         int64
	TopBigrams         json.RawMessage
	TopTrigrams        json.RawMessage
	ImportantSentences json.RawMessage
	AvgSentenceLength  float64
	AvgWordLength      float64
}

// Stats holds aggregate statistics about the emosync database.
type Stats struct {
	TotalExperiments int64
	TotalAnalyses    int64
	TotalSegments    int64
	TotalKeywords    int64
	TotalChartBins   int64
	NewestImport     time.Time
}
