// Package artifact discovers and loads the per-video JSON document
// bundles the analysis pipeline writes to the object store.
package artifact

import (
	"context"
	"log/slog"
	"strings"

	"github.com/framelabs/emosync/internal/objstore"
)

// chartDataSuffix marks the document used as each group's existence
// sentinel during discovery. The file itself is fetched later with the
// rest of the bundle, not parsed here.
const chartDataSuffix = ".chart_data.json"

// Group identifies one analyzed video's artifact set in the object store.
type Group struct {
	DateFolder    string
	SessionFolder string
	VideoName     string
}

// SessionKey returns the "date_folder/session_folder" grouping key.
func (g Group) SessionKey() string {
	return g.DateFolder + "/" + g.SessionFolder
}

// Catalog lists the object store and decodes its fixed key-naming
// convention into artifact groups.
type Catalog struct {
	Client objstore.Client
	Logger *slog.Logger
}

func (c *Catalog) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// decodeKey decodes one object key per the pipeline's layout:
// {date}/{session}/pipeline_outputs/analysis/{video}.chart_data.json.
// Keys for other stages or documents are rejected.
func decodeKey(key string) (Group, bool) {
	parts := strings.Split(key, "/")
	if len(parts) < 5 {
		return Group{}, false
	}
	if parts[2] != "pipeline_outputs" || parts[3] != "analysis" {
		return Group{}, false
	}
	filename := parts[len(parts)-1]
	if !strings.Contains(filename, chartDataSuffix) {
		return Group{}, false
	}
	return Group{
		DateFolder:    parts[0],
		SessionFolder: parts[1],
		VideoName:     strings.ReplaceAll(filename, chartDataSuffix, ""),
	}, true
}

// Groups returns every artifact group discovered in the store, in
// listing order. A listing failure is logged and yields an empty
// result; the caller treats it as nothing to do, not as fatal.
func (c *Catalog) Groups(ctx context.Context) []Group {
	keys, err := c.Client.ListKeys(ctx)
	if err != nil {
		c.logger().Error("listing object store failed", "error", err)
		return nil
	}

	var groups []Group
	for _, key := range keys {
		if g, ok := decodeKey(key); ok {
			groups = append(groups, g)
		}
	}
	return groups
}

// GroupsBySession maps each session key to the video names discovered
// under it, preserving listing order within a session.
func (c *Catalog) GroupsBySession(ctx context.Context) map[string][]string {
	sessions := make(map[string][]string)
	for _, g := range c.Groups(ctx) {
		sessions[g.SessionKey()] = append(sessions[g.SessionKey()], g.VideoName)
	}
	return sessions
}
