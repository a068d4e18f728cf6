package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config stores the application configuration.
// Values come from the .env file or process environment, with defaults
// suitable for a local single-listener node.
type Config struct {
	// 服务配置
	ServerAddr   string // HTTP 监听地址，例如 ":8080"
	LogLevel     string
	LogPath      string // 为空时不写日志文件
	AllowOrigins string // CORS 允许的来源

	// MySQL 配置
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis 配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO 配置（曲库源站）
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
	MinioPresignTTL time.Duration // 预签名播放地址有效期

	// 目录服务配置（精选/合集远端接口，可为空，为空时仅用本地曲库）
	CatalogAPIURL  string
	CatalogTimeout time.Duration

	// 预加载配置
	Preload PreloadTunables
}

// PreloadTunables 预加载子系统的可调参数。
// 这些都是缺省值而非契约，运行时可通过 .env 热更新。
type PreloadTunables struct {
	FailureCooldown time.Duration // 失败冷却窗口
	MaxAttempts     int           // 冷却窗口内的最大失败次数
	VisibleDebounce time.Duration // 可见列表预加载防抖
	HiddenGrace     time.Duration // 页面隐藏多久后回收内存
	ReclaimKeep     int           // 回收时保留的缓存条目数
	ResolveTimeout  time.Duration // waitForCachedUrl 的默认超时
	FetchTimeout    time.Duration // 单次下载的硬超时
	MaxPayloadBytes int64         // 单条音频载荷上限
	CatalogCacheTTL time.Duration // 精选/合集元数据的 Redis 缓存时长
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvSeconds 以秒为单位读取时长配置
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	secs := getEnvInt(key, int(fallback/time.Second))
	return time.Duration(secs) * time.Second
}

// getEnvMillis 以毫秒为单位读取时长配置
func getEnvMillis(key string, fallback time.Duration) time.Duration {
	ms := getEnvInt(key, int(fallback/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() 不会覆盖已有环境变量
	if err := loadEnvFile(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogPath:      getEnv("LOG_PATH", ""),
		AllowOrigins: getEnv("ALLOW_ORIGINS", "*"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "cinefm"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:   getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:     getEnv("MINIO_BUCKET", "cinefm-library"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),
		MinioPresignTTL: getEnvSeconds("MINIO_PRESIGN_TTL_SECONDS", time.Hour),

		CatalogAPIURL:  getEnv("CATALOG_API_URL", ""),
		CatalogTimeout: getEnvSeconds("CATALOG_TIMEOUT_SECONDS", 10*time.Second),

		Preload: loadPreloadTunables(),
	}
}

func loadPreloadTunables() PreloadTunables {
	return PreloadTunables{
		FailureCooldown: getEnvSeconds("PRELOAD_FAILURE_COOLDOWN_SECONDS", 5*time.Minute),
		MaxAttempts:     getEnvInt("PRELOAD_MAX_ATTEMPTS", 2),
		VisibleDebounce: getEnvMillis("PRELOAD_VISIBLE_DEBOUNCE_MS", 50*time.Millisecond),
		HiddenGrace:     getEnvSeconds("PRELOAD_HIDDEN_GRACE_SECONDS", 5*time.Minute),
		ReclaimKeep:     getEnvInt("PRELOAD_RECLAIM_KEEP", 2),
		ResolveTimeout:  getEnvMillis("PRELOAD_RESOLVE_TIMEOUT_MS", 3*time.Second),
		FetchTimeout:    getEnvSeconds("PRELOAD_FETCH_TIMEOUT_SECONDS", 2*time.Minute),
		MaxPayloadBytes: int64(getEnvInt("PRELOAD_MAX_PAYLOAD_MB", 32)) * 1024 * 1024,
		CatalogCacheTTL: getEnvSeconds("PRELOAD_CATALOG_CACHE_TTL_SECONDS", 5*time.Minute),
	}
}
