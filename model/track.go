package model

import "time"

// 曲目来源
const (
	TrackSourceLibrary = "library" // 本地曲库，音频对象存放在 MinIO
	TrackSourceCatalog = "catalog" // 远端目录服务提供的曲目
)

// Track represents an audio track in the music library.
type Track struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Album     string    `json:"album"`
	ObjectKey string    `json:"-"`        // MinIO 对象键，不直接暴露，播放地址用预签名 URL
	CoverURL  string    `json:"coverUrl"`
	Duration  float64   `json:"duration"` // Duration in seconds
	State     int8      `json:"state"`    // 0=soft deleted, 1=normal
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AssetID 返回曲目在预加载子系统中的资产标识
func (t *Track) AssetID() string {
	return LibraryAssetID(t.ID)
}
