package server

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"CineFM/config"
	"CineFM/logger"
	"CineFM/storage"

	"github.com/minio/minio-go/v7"
)

// StaticHandler 提供曲库存储桶中的静态文件（封面等）
type StaticHandler struct {
	cfg *config.Config
}

// NewStaticHandler 创建 StaticHandler 实例
func NewStaticHandler(cfg *config.Config) *StaticHandler {
	return &StaticHandler{cfg: cfg}
}

// ServeHTTP 实现 http.Handler 接口
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	objectPath := strings.TrimPrefix(r.URL.Path, "/static/")

	client := storage.GetMinioClient()
	if client == nil {
		http.Error(w, "存储服务不可用", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	object, err := client.GetObject(ctx, h.cfg.MinioBucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		http.Error(w, "文件不存在", http.StatusNotFound)
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", detectContentType(objectPath))
	w.Header().Set("Cache-Control", "public, max-age=31536000")

	if _, err := io.Copy(w, object); err != nil {
		logger.Error("静态文件传输失败",
			logger.ErrorField(err),
			logger.String("objectPath", objectPath))
	}
}

// detectContentType 根据路径推断内容类型
func detectContentType(objectPath string) string {
	switch strings.ToLower(path.Ext(objectPath)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
