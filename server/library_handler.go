package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"CineFM/config"
	"CineFM/logger"
	"CineFM/model"
	"CineFM/repository"
	"CineFM/storage"

	"github.com/gorilla/mux"
)

// LibraryHandler 本地曲库接口
type LibraryHandler struct {
	trackRepo repository.TrackRepository
	cfg       *config.Config
}

// NewLibraryHandler 创建曲库处理器
func NewLibraryHandler(trackRepo repository.TrackRepository, cfg *config.Config) *LibraryHandler {
	return &LibraryHandler{trackRepo: trackRepo, cfg: cfg}
}

// TrackView 曲目视图，带预加载资产标识
type TrackView struct {
	*model.Track
	AssetID string `json:"assetId"`
}

func newTrackView(t *model.Track) TrackView {
	return TrackView{Track: t, AssetID: t.AssetID()}
}

var nonAlphaNumeric = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)
var multipleSpaces = regexp.MustCompile(`\s+`)

// safeObjectPrefix 由曲目元数据生成安全的对象键前缀
func safeObjectPrefix(title, artist, album string) string {
	if strings.TrimSpace(title) == "" {
		title = "Untitled_Track"
	}

	var parts []string
	if strings.TrimSpace(artist) != "" {
		parts = append(parts, strings.TrimSpace(artist))
	}
	if strings.TrimSpace(album) != "" {
		parts = append(parts, strings.TrimSpace(album))
	}
	parts = append(parts, strings.TrimSpace(title))

	base := strings.Join(parts, " - ")
	base = multipleSpaces.ReplaceAllString(base, "_")
	base = nonAlphaNumeric.ReplaceAllString(base, "")

	maxLength := 150
	if len(base) > maxLength {
		base = base[:maxLength]
	}
	if base == "" {
		base = "fallback_filename"
	}
	return base
}

// GetTracksHandler 获取最近入库的曲目
func (h *LibraryHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	tracks, err := h.trackRepo.ListRecentTracks(limit)
	if err != nil {
		logger.Error("获取曲目列表失败", logger.ErrorField(err))
		http.Error(w, "获取曲目列表失败", http.StatusInternalServerError)
		return
	}

	views := make([]TrackView, 0, len(tracks))
	for _, t := range tracks {
		views = append(views, newTrackView(t))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// UploadTrackHandler 上传音频文件并登记曲目。
// multipart 表单字段：trackFile（音频文件）、title、artist、album、
// coverUrl、duration（秒）
func (h *LibraryHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max memory
		http.Error(w, "解析上传表单失败", http.StatusBadRequest)
		return
	}

	trackFile, trackHeader, err := r.FormFile("trackFile")
	if err != nil {
		http.Error(w, "缺少 trackFile 字段", http.StatusBadRequest)
		return
	}
	defer trackFile.Close()

	if h.cfg.Preload.MaxPayloadBytes > 0 && trackHeader.Size > h.cfg.Preload.MaxPayloadBytes {
		http.Error(w, "音频文件超出大小限制", http.StatusRequestEntityTooLarge)
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(trackHeader.Filename, filepath.Ext(trackHeader.Filename))
	}
	artist := strings.TrimSpace(r.FormValue("artist"))
	album := strings.TrimSpace(r.FormValue("album"))
	coverURL := strings.TrimSpace(r.FormValue("coverUrl"))

	var duration float64
	if d := r.FormValue("duration"); d != "" {
		if parsed, err := strconv.ParseFloat(d, 64); err == nil && parsed > 0 {
			duration = parsed
		}
	}

	ext := strings.ToLower(filepath.Ext(trackHeader.Filename))
	if ext == "" {
		ext = ".mp3"
	}
	objectKey := fmt.Sprintf("audio/%s%s", safeObjectPrefix(title, artist, album), ext)

	contentType := trackHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	if err := storage.UploadTrackObject(r.Context(), objectKey, trackFile, trackHeader.Size, contentType); err != nil {
		logger.Error("上传音频到曲库失败",
			logger.ErrorField(err),
			logger.String("objectKey", objectKey))
		http.Error(w, "上传音频失败", http.StatusInternalServerError)
		return
	}

	track := &model.Track{
		Title:     title,
		Artist:    artist,
		Album:     album,
		ObjectKey: objectKey,
		CoverURL:  coverURL,
		Duration:  duration,
	}
	id, err := h.trackRepo.CreateTrack(track)
	if err != nil {
		logger.Error("写入曲目元数据失败", logger.ErrorField(err))
		http.Error(w, "写入曲目元数据失败", http.StatusInternalServerError)
		return
	}
	track.ID = id

	logger.Info("曲目入库完成",
		logger.Int64("trackId", id),
		logger.String("objectKey", objectKey),
		logger.String("title", title))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(newTrackView(track))
}

// RegisterTrackRequest 登记已存在于存储桶中的音频对象
type RegisterTrackRequest struct {
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	Album     string  `json:"album"`
	ObjectKey string  `json:"objectKey"`
	CoverURL  string  `json:"coverUrl"`
	Duration  float64 `json:"duration"`
}

// RegisterTrackHandler 登记曲目元数据，音频对象须已在曲库存储桶中
func (h *LibraryHandler) RegisterTrackHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}
	if req.ObjectKey == "" {
		http.Error(w, "objectKey 不能为空", http.StatusBadRequest)
		return
	}

	// 确认对象确实存在，避免登记出一条永远拉不到音频的曲目
	if _, err := storage.StatTrackObject(r.Context(), req.ObjectKey); err != nil {
		logger.Warn("登记的音频对象不存在",
			logger.ErrorField(err),
			logger.String("objectKey", req.ObjectKey))
		http.Error(w, "音频对象不存在", http.StatusBadRequest)
		return
	}

	track := &model.Track{
		Title:     req.Title,
		Artist:    req.Artist,
		Album:     req.Album,
		ObjectKey: req.ObjectKey,
		CoverURL:  req.CoverURL,
		Duration:  req.Duration,
	}
	id, err := h.trackRepo.CreateTrack(track)
	if err != nil {
		logger.Error("登记曲目失败", logger.ErrorField(err))
		http.Error(w, "登记曲目失败", http.StatusInternalServerError)
		return
	}
	track.ID = id

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(newTrackView(track))
}

// DeleteTrackHandler 删除曲目（软删除，不触碰存储桶中的音频对象）
func (h *LibraryHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "无效的曲目ID", http.StatusBadRequest)
		return
	}

	track, err := h.trackRepo.GetTrackByID(id)
	if err != nil {
		logger.Error("查询曲目失败", logger.ErrorField(err))
		http.Error(w, "查询曲目失败", http.StatusInternalServerError)
		return
	}
	if track == nil {
		http.Error(w, "曲目不存在", http.StatusNotFound)
		return
	}

	if err := h.trackRepo.DeleteTrack(id); err != nil {
		logger.Error("删除曲目失败", logger.ErrorField(err))
		http.Error(w, "删除曲目失败", http.StatusInternalServerError)
		return
	}

	logger.Info("曲目已删除", logger.Int64("trackId", id), logger.String("title", track.Title))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "曲目已删除"})
}

// LibraryStatsHandler 曲库存储统计
func (h *LibraryHandler) LibraryStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := storage.GetLibraryStats(r.Context())
	if err != nil {
		logger.Error("统计曲库存储失败", logger.ErrorField(err))
		http.Error(w, "统计曲库存储失败", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// ListLibraryObjectsHandler 列出曲库存储桶中的音频对象
func (h *LibraryHandler) ListLibraryObjectsHandler(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	max := 100
	if m := r.URL.Query().Get("max"); m != "" {
		if parsed, err := strconv.Atoi(m); err == nil && parsed > 0 && parsed <= 1000 {
			max = parsed
		}
	}

	objects, err := storage.ListLibraryObjects(r.Context(), prefix, max)
	if err != nil {
		logger.Error("列出曲库对象失败", logger.ErrorField(err))
		http.Error(w, "列出曲库对象失败", http.StatusInternalServerError)
		return
	}
	if objects == nil {
		objects = []storage.ObjectInfo{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(objects)
}

// RegisterLibraryRoutes 注册曲库相关路由
func RegisterLibraryRoutes(router *mux.Router, handler *LibraryHandler) {
	router.HandleFunc("/api/tracks", handler.GetTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks", handler.RegisterTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}", handler.DeleteTrackHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/upload", handler.UploadTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/library/stats", handler.LibraryStatsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/library/objects", handler.ListLibraryObjectsHandler).Methods(http.MethodGet)

	logger.Info("曲库API端点注册完成",
		logger.String("endpoints", "GET/POST /api/tracks, DELETE /api/tracks/{id}, POST /api/upload, GET /api/library/stats, GET /api/library/objects"))
}
