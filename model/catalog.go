package model

// CatalogEntry 目录服务返回的一条可播放曲目
type CatalogEntry struct {
	AssetID   string  `json:"assetId"`
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	CoverURL  string  `json:"coverUrl"`
	StreamURL string  `json:"streamUrl"`
	Duration  float64 `json:"duration"`
}

// CatalogCollection 目录服务返回的一个合集（歌单/专辑）
type CatalogCollection struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	CoverURL string        `json:"coverUrl"`
	Lead     *CatalogEntry `json:"lead,omitempty"` // 合集第一首，用于预加载
}
