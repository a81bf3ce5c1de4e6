package artifact

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory objstore.Client for tests.
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

func TestDecodeKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want Group
		ok   bool
	}{
		{
			name: "chart data key",
			key:  "2025-03-14/session_a/pipeline_outputs/analysis/video1.chart_data.json",
			want: Group{DateFolder: "2025-03-14", SessionFolder: "session_a", VideoName: "video1"},
			ok:   true,
		},
		{
			name: "multi-part video name",
			key:  "2025-03-14/s1/pipeline_outputs/analysis/3x_cams_part_2_video1.chart_data.json",
			want: Group{DateFolder: "2025-03-14", SessionFolder: "s1", VideoName: "3x_cams_part_2_video1"},
			ok:   true,
		},
		{
			name: "other document in analysis stage",
			key:  "2025-03-14/s1/pipeline_outputs/analysis/video1.keyword_cloud.json",
			ok:   false,
		},
		{
			name: "other stage",
			key:  "2025-03-14/s1/pipeline_outputs/sentiment_analysis/video1.chart_data.json",
			ok:   false,
		},
		{
			name: "too few path parts",
			key:  "2025-03-14/video1.chart_data.json",
			ok:   false,
		},
		{
			name: "no pipeline_outputs folder",
			key:  "2025-03-14/s1/other/analysis/video1.chart_data.json",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeKey(tt.key)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCatalog_Groups(t *testing.T) {
	client := &fakeClient{keys: []string{
		"2025-03-14/s1/pipeline_outputs/analysis/video1.chart_data.json",
		"2025-03-14/s1/pipeline_outputs/analysis/video1.keyword_cloud.json",
		"2025-03-14/s1/pipeline_outputs/analysis/video2.chart_data.json",
		"2025-03-15/s2/pipeline_outputs/analysis/video3.chart_data.json",
		"2025-03-15/s2/raw/video3.mp4",
	}}

	catalog := &Catalog{Client: client}
	groups := catalog.Groups(context.Background())

	require.Len(t, groups, 3)
	assert.Equal(t, "video1", groups[0].VideoName)
	assert.Equal(t, "video2", groups[1].VideoName)
	assert.Equal(t, "2025-03-15", groups[2].DateFolder)
}

func TestCatalog_Groups_ListErrorYieldsEmpty(t *testing.T) {
	catalog := &Catalog{Client: &fakeClient{listErr: errors.New("connection refused")}}

	groups := catalog.Groups(context.Background())
	assert.Empty(t, groups)
}

func TestCatalog_GroupsBySession(t *testing.T) {
	client := &fakeClient{keys: []string{
		"2025-03-14/s1/pipeline_outputs/analysis/video1.chart_data.json",
		"2025-03-14/s1/pipeline_outputs/analysis/video2.chart_data.json",
		"2025-03-15/s2/pipeline_outputs/analysis/video3.chart_data.json",
	}}

	catalog := &Catalog{Client: client}
	sessions := catalog.GroupsBySession(context.Background())

	require.Len(t, sessions, 2)
	assert.Equal(t, []string{"video1", "video2"}, sessions["2025-03-14/s1"])
	assert.Equal(t, []string{"video3"}, sessions["2025-03-15/s2"])
}
