package artifact

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/framelabs/emosync/internal/objstore"
)

// DocKind names one of the five pipeline documents in an artifact group.
type DocKind string

const (
	DocChartData    DocKind = "chart_data"
	DocKeywordCloud DocKind = "keyword_cloud"
	DocInsights     DocKind = "insights"
	DocSentiment    DocKind = "sentiment"
	DocSummary      DocKind = "summary"
)

// Bundle maps document kinds to their parsed JSON. Only successfully
// fetched and parsed documents appear; everything except sentiment is
// optional downstream.
type Bundle map[DocKind]gjson.Result

// HasSentiment reports whether the mandatory sentiment document loaded.
func (b Bundle) HasSentiment() bool {
	_, ok := b[DocSentiment]
	return ok
}

// documentPaths returns the fixed object key for each document kind of a
// group.
func documentPaths(g Group) map[DocKind]string {
	base := fmt.Sprintf("%s/%s/pipeline_outputs", g.DateFolder, g.SessionFolder)
	return map[DocKind]string{
		DocChartData:    fmt.Sprintf("%s/analysis/%s.chart_data.json", base, g.VideoName),
		DocKeywordCloud: fmt.Sprintf("%s/analysis/%s.keyword_cloud.json", base, g.VideoName),
		DocInsights:     fmt.Sprintf("%s/insights/%s.insights.json", base, g.VideoName),
		DocSentiment:    fmt.Sprintf("%s/sentiment_analysis/%s.sentiment.json", base, g.VideoName),
		DocSummary:      fmt.Sprintf("%s/summaries/%s.summary.json", base, g.VideoName),
	}
}

// Loader fetches and parses the JSON documents belonging to one group.
type Loader struct {
	Client objstore.Client
	Logger *slog.Logger
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// LoadBundle fetches each of the group's five documents. Fetch or parse
// failures are soft: the document is logged and omitted from the bundle,
// never propagated.
func (l *Loader) LoadBundle(ctx context.Context, g Group) Bundle {
	bundle := make(Bundle)

	for kind, key := range documentPaths(g) {
		data, err := l.Client.ReadObject(ctx, key)
		if err != nil {
			l.logger().Warn("document fetch failed", "kind", string(kind), "key", key, "error", err)
			continue
		}
		if !gjson.ValidBytes(data) {
			l.logger().Warn("document is not valid JSON", "kind", string(kind), "key", key)
			continue
		}
		bundle[kind] = gjson.ParseBytes(data)
	}

	return bundle
}
