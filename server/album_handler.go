package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"CineFM/logger"
	"CineFM/model"
	"CineFM/repository"

	"github.com/gorilla/mux"
)

// AlbumHandler 专辑（合集）接口
type AlbumHandler struct {
	albumRepo repository.AlbumRepository
	trackRepo repository.TrackRepository
}

// NewAlbumHandler 创建专辑处理器
func NewAlbumHandler(albumRepo repository.AlbumRepository, trackRepo repository.TrackRepository) *AlbumHandler {
	return &AlbumHandler{albumRepo: albumRepo, trackRepo: trackRepo}
}

// CreateAlbumRequest 创建专辑请求
type CreateAlbumRequest struct {
	Artist      string `json:"artist"`
	Name        string `json:"name"`
	CoverURL    string `json:"coverUrl"`
	Genre       string `json:"genre"`
	Description string `json:"description"`
	ReleaseTime string `json:"releaseTime"` // RFC3339，可为空
}

// CreateAlbumHandler 创建专辑
func (h *AlbumHandler) CreateAlbumHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateAlbumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "专辑名不能为空", http.StatusBadRequest)
		return
	}

	album := &model.Album{
		Artist:      req.Artist,
		Name:        req.Name,
		CoverURL:    req.CoverURL,
		Genre:       req.Genre,
		Description: req.Description,
	}
	if req.ReleaseTime != "" {
		if t, err := time.Parse(time.RFC3339, req.ReleaseTime); err == nil {
			album.ReleaseTime = t
		}
	}

	id, err := h.albumRepo.CreateAlbum(r.Context(), album)
	if err != nil {
		logger.Error("创建专辑失败", logger.ErrorField(err))
		http.Error(w, "创建专辑失败", http.StatusInternalServerError)
		return
	}
	album.ID = id

	logger.Info("专辑已创建", logger.Int64("albumId", id), logger.String("name", album.Name))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(album)
}

// GetAlbumsHandler 获取最近专辑列表，附带每张专辑的第一首曲目
func (h *AlbumHandler) GetAlbumsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	albums, err := h.albumRepo.ListRecentAlbums(r.Context(), limit)
	if err != nil {
		logger.Error("获取专辑列表失败", logger.ErrorField(err))
		http.Error(w, "获取专辑列表失败", http.StatusInternalServerError)
		return
	}

	result := make([]model.AlbumWithLead, 0, len(albums))
	for _, a := range albums {
		lead, err := h.albumRepo.GetAlbumLeadTrack(r.Context(), a.ID)
		if err != nil {
			logger.Warn("获取专辑首曲失败",
				logger.ErrorField(err),
				logger.Int64("albumId", a.ID))
		}
		result = append(result, model.AlbumWithLead{Album: *a, Lead: lead})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetAlbumHandler 获取单张专辑
func (h *AlbumHandler) GetAlbumHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "无效的专辑ID", http.StatusBadRequest)
		return
	}

	album, err := h.albumRepo.GetAlbumByID(r.Context(), id)
	if err != nil {
		logger.Error("查询专辑失败", logger.ErrorField(err))
		http.Error(w, "查询专辑失败", http.StatusInternalServerError)
		return
	}
	if album == nil {
		http.Error(w, "专辑不存在", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(album)
}

// GetAlbumTracksHandler 获取专辑内全部曲目
func (h *AlbumHandler) GetAlbumTracksHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "无效的专辑ID", http.StatusBadRequest)
		return
	}

	tracks, err := h.albumRepo.GetAlbumTracks(r.Context(), id)
	if err != nil {
		logger.Error("获取专辑曲目失败", logger.ErrorField(err))
		http.Error(w, "获取专辑曲目失败", http.StatusInternalServerError)
		return
	}

	views := make([]TrackView, 0, len(tracks))
	for _, t := range tracks {
		views = append(views, newTrackView(t))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// AddAlbumTrackRequest 添加曲目到专辑请求
type AddAlbumTrackRequest struct {
	TrackID  int64 `json:"trackId"`
	Position int   `json:"position"`
}

// AddAlbumTrackHandler 向专辑添加曲目
func (h *AlbumHandler) AddAlbumTrackHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	albumID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || albumID <= 0 {
		http.Error(w, "无效的专辑ID", http.StatusBadRequest)
		return
	}

	var req AddAlbumTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}

	album, err := h.albumRepo.GetAlbumByID(r.Context(), albumID)
	if err != nil {
		http.Error(w, "查询专辑失败", http.StatusInternalServerError)
		return
	}
	if album == nil {
		http.Error(w, "专辑不存在", http.StatusNotFound)
		return
	}

	track, err := h.trackRepo.GetTrackByID(req.TrackID)
	if err != nil {
		http.Error(w, "查询曲目失败", http.StatusInternalServerError)
		return
	}
	if track == nil {
		http.Error(w, "曲目不存在", http.StatusNotFound)
		return
	}

	if err := h.albumRepo.AddTrackToAlbum(r.Context(), albumID, req.TrackID, req.Position); err != nil {
		logger.Error("添加曲目到专辑失败", logger.ErrorField(err))
		http.Error(w, "添加曲目到专辑失败", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "曲目已添加到专辑"})
}

// RegisterAlbumRoutes 注册专辑相关路由
func RegisterAlbumRoutes(router *mux.Router, handler *AlbumHandler) {
	router.HandleFunc("/api/albums", handler.CreateAlbumHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/albums", handler.GetAlbumsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/albums/{id}", handler.GetAlbumHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/albums/{id}/tracks", handler.GetAlbumTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/albums/{id}/tracks", handler.AddAlbumTrackHandler).Methods(http.MethodPost)

	logger.Info("专辑API端点注册完成",
		logger.String("endpoints", "GET/POST /api/albums, GET /api/albums/{id}, GET/POST /api/albums/{id}/tracks"))
}
