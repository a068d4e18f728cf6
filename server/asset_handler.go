package server

import (
	"bytes"
	"net/http"
	"time"

	"CineFM/core/player"
	"CineFM/logger"

	"github.com/gorilla/mux"
)

// AssetHandler 提供缓存音频句柄服务。
// 预加载缓存命中的曲目通过 /cache/assets/{asset_id}?t={token} 播放，
// 句柄随缓存替换或淘汰立即失效，之后只能重新解析。
type AssetHandler struct {
	player *player.Player
}

// NewAssetHandler 创建缓存资产处理器
func NewAssetHandler(p *player.Player) *AssetHandler {
	return &AssetHandler{player: p}
}

// ServeAssetHandler 返回缓存中的音频载荷
func (h *AssetHandler) ServeAssetHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	assetID := vars["asset_id"]
	token := r.URL.Query().Get("t")

	if token == "" {
		http.Error(w, "缺少句柄令牌", http.StatusBadRequest)
		return
	}

	payload, contentType, fingerprint, ok := h.player.Preloader().Cache().ResolveHandle(assetID, token)
	if !ok {
		logger.Debug("缓存句柄已失效",
			logger.String("assetId", assetID),
			logger.String("token", token))
		http.Error(w, "缓存句柄已失效", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("ETag", `"`+fingerprint+`"`)
	w.Header().Set("Cache-Control", "no-store")

	// ServeContent 处理 Range 请求，播放器拖动进度条依赖它
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(payload))
}

// RegisterAssetRoutes 注册缓存资产路由
func RegisterAssetRoutes(router *mux.Router, handler *AssetHandler) {
	router.HandleFunc("/cache/assets/{asset_id}", handler.ServeAssetHandler).Methods(http.MethodGet, http.MethodHead)
}
