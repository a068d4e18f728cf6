package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CineFM/cache"
	"CineFM/config"
	"CineFM/core/player"
	"CineFM/db"
	"CineFM/logger"
	"CineFM/model"
	"CineFM/repository"
	"CineFM/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
	})
	defer logger.Sync()

	// 初始化 MinIO 客户端（曲库源站）
	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("MinIO 初始化失败", logger.ErrorField(err))
	}

	// 连接数据库
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("数据库连接失败", logger.ErrorField(err))
	}
	defer db.CloseDB()

	if err := db.InitDB(); err != nil {
		logger.Fatal("数据库初始化失败", logger.ErrorField(err))
	}

	// GORM 连接，专辑模块使用
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("GORM 连接失败", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.Album{}, &model.AlbumTrack{}); err != nil {
		logger.Fatal("数据库迁移失败", logger.ErrorField(err))
	}

	// 连接 Redis（播放队列与目录缓存）
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Fatal("Redis 连接失败", logger.ErrorField(err))
	}
	defer cache.CloseRedis()

	// 播放器核心：队列 + 预加载编排器
	p := player.NewPlayer(cfg)
	defer p.Close()

	// 信令中心：窗口连接、可见性聚合、状态推送
	hub := player.NewSignalHub(p)
	go hub.Run()
	defer hub.Stop()

	trackRepo := repository.NewMySQLTrackRepository()
	albumRepo := repository.NewGormAlbumRepository()

	playerHandler := NewPlayerHandler(p)
	assetHandler := NewAssetHandler(p)
	signalHandler := NewSignalHandler(hub, p)
	catalogHandler := NewCatalogHandler(p)
	libraryHandler := NewLibraryHandler(trackRepo, cfg)
	albumHandler := NewAlbumHandler(albumRepo, trackRepo)
	staticHandler := NewStaticHandler(cfg)

	router := mux.NewRouter()
	router.Use(corsMiddleware(cfg.AllowOrigins))

	RegisterPlayerRoutes(router, playerHandler)
	RegisterAssetRoutes(router, assetHandler)
	RegisterSignalRoutes(router, signalHandler)
	RegisterCatalogRoutes(router, catalogHandler)
	RegisterLibraryRoutes(router, libraryHandler)
	RegisterAlbumRoutes(router, albumHandler)

	// Prometheus 指标与健康检查
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	// MinIO 静态文件（封面等）
	router.PathPrefix("/static/").Handler(staticHandler)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("服务启动", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务启动失败", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("收到退出信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服务强制关闭", logger.ErrorField(err))
	}

	logger.Info("服务已停止")
}

// corsMiddleware 跨域中间件
func corsMiddleware(allowOrigins string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, ETag")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
