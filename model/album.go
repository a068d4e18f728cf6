package model

import "time"

// Album 表示一张专辑，对应 UI 里的"合集"
type Album struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Artist      string    `json:"artist" gorm:"size:255;index"`
	Name        string    `json:"name" gorm:"size:255"`
	CoverURL    string    `json:"coverUrl" gorm:"size:512"`
	ReleaseTime time.Time `json:"releaseTime"`
	Genre       string    `json:"genre" gorm:"size:64"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AlbumTrack 表示专辑中的一首歌曲
type AlbumTrack struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	AlbumID   int64     `json:"albumId" gorm:"index:idx_album_position"`
	TrackID   int64     `json:"trackId" gorm:"index"`
	Position  int       `json:"position" gorm:"index:idx_album_position"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AlbumWithLead 专辑及其第一首曲目，用于合集预加载
type AlbumWithLead struct {
	Album Album  `json:"album"`
	Lead  *Track `json:"lead,omitempty"`
}
