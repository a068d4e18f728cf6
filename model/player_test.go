package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryAssetIDRoundTrip(t *testing.T) {
	id := LibraryAssetID(42)
	assert.Equal(t, "lib-42", id)

	trackID, ok := ParseLibraryAssetID(id)
	require.True(t, ok)
	assert.Equal(t, int64(42), trackID)
}

func TestParseLibraryAssetID(t *testing.T) {
	tests := []struct {
		name    string
		assetID string
		want    int64
		ok      bool
	}{
		{"library track", "lib-7", 7, true},
		{"large id", "lib-9223372036854775807", 9223372036854775807, true},
		{"catalog asset", "cat-7", 0, false},
		{"missing prefix", "7", 0, false},
		{"empty", "", 0, false},
		{"non numeric", "lib-abc", 0, false},
		{"zero id", "lib-0", 0, false},
		{"negative id", "lib--3", 0, false},
		{"trailing garbage", "lib-7x", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLibraryAssetID(tt.assetID)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewQueueItem(t *testing.T) {
	track := &Track{
		ID:       3,
		Title:    "夜曲",
		Artist:   "测试歌手",
		Album:    "测试专辑",
		CoverURL: "https://cdn.example/cover.jpg",
		Duration: 215.3,
	}

	before := time.Now().UnixMilli()
	item := NewQueueItem(track, "https://minio.example/audio/3.mp3", 5)

	assert.Equal(t, "lib-3", item.AssetID)
	assert.Equal(t, int64(3), item.TrackID)
	assert.Equal(t, "夜曲", item.Title)
	assert.Equal(t, "https://minio.example/audio/3.mp3", item.StreamURL)
	assert.Equal(t, TrackSourceLibrary, item.Source)
	assert.Equal(t, 5, item.Position)
	assert.GreaterOrEqual(t, item.AddedAt, before)
}

func TestTrackAssetID(t *testing.T) {
	track := &Track{ID: 99}
	assert.Equal(t, "lib-99", track.AssetID())
}
