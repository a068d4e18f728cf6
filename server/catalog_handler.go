package server

import (
	"encoding/json"
	"net/http"

	"CineFM/core/player"
	"CineFM/logger"
	"CineFM/model"

	"github.com/gorilla/mux"
)

// CatalogHandler 精选与合集目录接口
type CatalogHandler struct {
	player *player.Player
}

// NewCatalogHandler 创建目录处理器
func NewCatalogHandler(p *player.Player) *CatalogHandler {
	return &CatalogHandler{player: p}
}

// GetFeaturedHandler 获取精选推荐列表。目录服务未配置时返回空列表
func (h *CatalogHandler) GetFeaturedHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.player.Featured(r.Context())
	if err != nil {
		logger.Error("获取精选列表失败", logger.ErrorField(err))
		http.Error(w, "获取精选列表失败", http.StatusBadGateway)
		return
	}
	if entries == nil {
		entries = []model.CatalogEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// GetCollectionsHandler 获取合集列表
func (h *CatalogHandler) GetCollectionsHandler(w http.ResponseWriter, r *http.Request) {
	collections, err := h.player.Collections(r.Context())
	if err != nil {
		logger.Error("获取合集列表失败", logger.ErrorField(err))
		http.Error(w, "获取合集列表失败", http.StatusBadGateway)
		return
	}
	if collections == nil {
		collections = []model.CatalogCollection{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(collections)
}

// RegisterCatalogRoutes 注册目录路由
func RegisterCatalogRoutes(router *mux.Router, handler *CatalogHandler) {
	router.HandleFunc("/api/catalog/featured", handler.GetFeaturedHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/catalog/collections", handler.GetCollectionsHandler).Methods(http.MethodGet)

	logger.Info("目录API端点注册完成",
		logger.String("endpoints", "GET /api/catalog/featured, GET /api/catalog/collections"))
}
