package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"CineFM/core/player"
	"CineFM/core/preload"
	"CineFM/logger"
	"CineFM/model"

	"github.com/gorilla/mux"
)

// PlayerHandler 播放队列与预加载接口
type PlayerHandler struct {
	player *player.Player
}

// NewPlayerHandler 创建播放器处理器
func NewPlayerHandler(p *player.Player) *PlayerHandler {
	return &PlayerHandler{player: p}
}

// QueueResponse 播放队列响应
type QueueResponse struct {
	Items        []model.QueueItem `json:"items"`
	CurrentIndex int               `json:"currentIndex"`
}

// GetQueueHandler 获取播放队列
func (h *PlayerHandler) GetQueueHandler(w http.ResponseWriter, r *http.Request) {
	items, index, err := h.player.Queue(r.Context())
	if err != nil {
		logger.Error("获取播放队列失败", logger.ErrorField(err))
		http.Error(w, "获取播放队列失败", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&QueueResponse{Items: items, CurrentIndex: index})
}

// ReplaceQueueRequest 整队列替换请求
type ReplaceQueueRequest struct {
	TrackIDs []int64 `json:"trackIds"`
}

// ReplaceQueueHandler 用曲库曲目替换整个播放队列
func (h *PlayerHandler) ReplaceQueueHandler(w http.ResponseWriter, r *http.Request) {
	var req ReplaceQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}

	items, err := h.player.ReplaceQueue(r.Context(), req.TrackIDs)
	if err != nil {
		logger.Error("替换播放队列失败", logger.ErrorField(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&QueueResponse{Items: items, CurrentIndex: 0})
}

// AddTracksRequest 入队请求，曲库曲目和目录曲目分两个字段
type AddTracksRequest struct {
	TrackIDs []int64  `json:"trackIds,omitempty"`
	AssetIDs []string `json:"assetIds,omitempty"`
}

// AddTracksResponse 入队响应
type AddTracksResponse struct {
	Added []model.QueueItem `json:"added"`
}

// AddTracksHandler 向队列追加曲目
func (h *PlayerHandler) AddTracksHandler(w http.ResponseWriter, r *http.Request) {
	var req AddTracksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}
	if len(req.TrackIDs) == 0 && len(req.AssetIDs) == 0 {
		http.Error(w, "请求中没有曲目", http.StatusBadRequest)
		return
	}

	added := make([]model.QueueItem, 0, len(req.TrackIDs)+len(req.AssetIDs))
	if len(req.TrackIDs) > 0 {
		items, err := h.player.AddLibraryTracks(r.Context(), req.TrackIDs)
		if err != nil {
			logger.Error("添加曲库曲目失败", logger.ErrorField(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		added = append(added, items...)
	}
	if len(req.AssetIDs) > 0 {
		items, err := h.player.AddCatalogEntries(r.Context(), req.AssetIDs)
		if err != nil {
			logger.Error("添加目录曲目失败", logger.ErrorField(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		added = append(added, items...)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&AddTracksResponse{Added: added})
}

// RemoveTrackHandler 从队列移除一首曲目
func (h *PlayerHandler) RemoveTrackHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	assetID := vars["asset_id"]

	removed, err := h.player.RemoveItem(r.Context(), assetID)
	if err != nil {
		logger.Error("移除队列曲目失败", logger.ErrorField(err))
		http.Error(w, "移除队列曲目失败", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"removed": removed})
}

// ClearQueueHandler 清空播放队列
func (h *PlayerHandler) ClearQueueHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.player.ClearQueue(r.Context()); err != nil {
		logger.Error("清空播放队列失败", logger.ErrorField(err))
		http.Error(w, "清空播放队列失败", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "队列已清空"})
}

// SetPositionRequest 跳转播放位置请求
type SetPositionRequest struct {
	Index int `json:"index"`
}

// SetPositionHandler 跳转到队列中的指定位置
func (h *PlayerHandler) SetPositionHandler(w http.ResponseWriter, r *http.Request) {
	var req SetPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}

	if err := h.player.SetPosition(r.Context(), req.Index); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"currentIndex": req.Index})
}

// ShuffleQueueHandler 随机打乱队列
func (h *PlayerHandler) ShuffleQueueHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.player.Shuffle(r.Context()); err != nil {
		logger.Error("打乱播放队列失败", logger.ErrorField(err))
		http.Error(w, "打乱播放队列失败", http.StatusInternalServerError)
		return
	}

	items, index, err := h.player.Queue(r.Context())
	if err != nil {
		http.Error(w, "获取播放队列失败", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&QueueResponse{Items: items, CurrentIndex: index})
}

// ReportPlaybackHandler 上报播放状态（开始播放/进度/暂停）
func (h *PlayerHandler) ReportPlaybackHandler(w http.ResponseWriter, r *http.Request) {
	var state model.PlaybackState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}
	if state.AssetID == "" {
		http.Error(w, "assetId 不能为空", http.StatusBadRequest)
		return
	}

	if err := h.player.ReportPlayback(r.Context(), &state); err != nil {
		logger.Error("上报播放状态失败", logger.ErrorField(err))
		http.Error(w, "上报播放状态失败", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&state)
}

// GetPlaybackHandler 获取最近一次上报的播放状态
func (h *PlayerHandler) GetPlaybackHandler(w http.ResponseWriter, r *http.Request) {
	state, err := h.player.PlaybackState(r.Context())
	if err != nil {
		logger.Error("获取播放状态失败", logger.ErrorField(err))
		http.Error(w, "获取播放状态失败", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

// ResolveResponse 播放地址解析响应
type ResolveResponse struct {
	AssetID string `json:"assetId"`
	URL     string `json:"url"`
	Cached  bool   `json:"cached"`
}

// ResolveStreamHandler 解析资产的播放地址。
// 缓存命中返回缓存句柄地址，未命中时在限定时间内等待下载，
// 超时则返回原始远端地址兜底，从不让播放端空手而归。
func (h *PlayerHandler) ResolveStreamHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	assetID := vars["asset_id"]

	var timeout time.Duration
	if ms := r.URL.Query().Get("timeoutMs"); ms != "" {
		if parsed, err := strconv.Atoi(ms); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Millisecond
		}
	}

	url, err := h.player.ResolveStreamURL(r.Context(), assetID, timeout)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&ResolveResponse{
		AssetID: assetID,
		URL:     url,
		Cached:  strings.HasPrefix(url, "/cache/assets/"),
	})
}

// HoverRequest 悬停预热请求
type HoverRequest struct {
	AssetID string `json:"assetId"`
}

// HoverHandler 悬停预热：高优先级预取，已缓存或冷却中时为空操作
func (h *PlayerHandler) HoverHandler(w http.ResponseWriter, r *http.Request) {
	var req HoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}
	if req.AssetID == "" {
		http.Error(w, "assetId 不能为空", http.StatusBadRequest)
		return
	}

	h.player.Hover(r.Context(), req.AssetID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "悬停预热已触发"})
}

// PreloadStatusHandler 获取预加载子系统状态快照
func (h *PlayerHandler) PreloadStatusHandler(w http.ResponseWriter, r *http.Request) {
	status := h.player.Status()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&status)
}

// NetworkSignalsHandler 上报网络条件，返回重算后的预加载策略。
// 与 WebSocket 信令通道等价，供不维持长连接的客户端使用。
func (h *PlayerHandler) NetworkSignalsHandler(w http.ResponseWriter, r *http.Request) {
	var signals preload.NetworkSignals
	if err := json.NewDecoder(r.Body).Decode(&signals); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}

	h.player.Preloader().OnNetworkChanged(signals)
	profile := h.player.Preloader().Config()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&profile)
}

// RegisterPlayerRoutes 注册播放器相关路由
func RegisterPlayerRoutes(router *mux.Router, handler *PlayerHandler) {
	router.HandleFunc("/api/player/queue", handler.GetQueueHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/player/queue", handler.ReplaceQueueHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/player/queue", handler.ClearQueueHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/player/queue/tracks", handler.AddTracksHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/queue/tracks/{asset_id}", handler.RemoveTrackHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/player/queue/position", handler.SetPositionHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/queue/shuffle", handler.ShuffleQueueHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/playback", handler.ReportPlaybackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/playback", handler.GetPlaybackHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/player/resolve/{asset_id}", handler.ResolveStreamHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/player/hover", handler.HoverHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/preload/status", handler.PreloadStatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/player/network", handler.NetworkSignalsHandler).Methods(http.MethodPost)

	logger.Info("播放器API端点注册完成",
		logger.String("endpoints", "GET/PUT/DELETE /api/player/queue, POST /api/player/queue/tracks, GET /api/player/resolve/{id}, GET /api/player/preload/status"))
}
