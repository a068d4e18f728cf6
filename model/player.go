package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LibraryAssetID 生成本地曲库曲目的资产标识
func LibraryAssetID(trackID int64) string {
	return fmt.Sprintf("lib-%d", trackID)
}

// ParseLibraryAssetID 解析曲库资产标识，非曲库资产返回 false
func ParseLibraryAssetID(assetID string) (int64, bool) {
	rest, ok := strings.CutPrefix(assetID, "lib-")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// QueueItem 播放队列中的一项。
// AssetID 是预加载子系统使用的唯一键，StreamURL 是原始远端播放地址，
// 缓存未命中时播放端直接用它兜底。
type QueueItem struct {
	AssetID   string  `json:"assetId"`
	TrackID   int64   `json:"trackId,omitempty"` // 本地曲库 ID，目录曲目为 0
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	Album     string  `json:"album,omitempty"`
	CoverURL  string  `json:"coverUrl,omitempty"`
	StreamURL string  `json:"streamUrl"`
	Duration  float64 `json:"duration,omitempty"`
	Source    string  `json:"source"`
	Position  int     `json:"position"`
	AddedAt   int64   `json:"addedAt"`
}

// PlaybackState 当前播放状态
type PlaybackState struct {
	AssetID    string `json:"assetId"`
	PositionMs int64  `json:"positionMs"`
	Playing    bool   `json:"playing"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// NewQueueItem 从曲目构造队列项
func NewQueueItem(t *Track, streamURL string, position int) *QueueItem {
	return &QueueItem{
		AssetID:   t.AssetID(),
		TrackID:   t.ID,
		Title:     t.Title,
		Artist:    t.Artist,
		Album:     t.Album,
		CoverURL:  t.CoverURL,
		StreamURL: streamURL,
		Duration:  t.Duration,
		Source:    TrackSourceLibrary,
		Position:  position,
		AddedAt:   time.Now().UnixMilli(),
	}
}
