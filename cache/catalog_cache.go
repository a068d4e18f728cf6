package cache

import (
	"context"
	"time"

	"CineFM/logger"

	"github.com/go-redis/redis/v8"
)

// 目录元数据缓存键。只缓存精选/合集的 JSON 元数据，音频载荷永远不进 Redis。
const (
	CatalogFeaturedKey    = "catalog:featured"
	CatalogCollectionsKey = "catalog:collections"
)

// SetCatalogCache 写入目录元数据缓存。Redis 未初始化时跳过，
// 元数据缓存是尽力而为的。
func SetCatalogCache(key string, data []byte, expiration time.Duration) error {
	if RedisClient == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := RedisClient.Set(ctx, key, data, expiration).Err(); err != nil {
		logger.Error("设置目录缓存失败",
			logger.String("key", key),
			logger.Int("dataSize", len(data)),
			logger.ErrorField(err))
		return err
	}

	logger.Debug("目录缓存设置成功",
		logger.String("key", key),
		logger.Int("dataSize", len(data)),
		logger.Duration("expiration", expiration))
	return nil
}

// GetCatalogCache 读取目录元数据缓存。
// 未命中或 Redis 持续不可用都返回 (nil, nil)，调用方回源目录服务。
func GetCatalogCache(key string) ([]byte, error) {
	if RedisClient == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	maxRetries := 2
	retryDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		data, err := RedisClient.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				logger.Debug("目录缓存不存在", logger.String("key", key))
				return nil, nil
			}

			if attempt < maxRetries-1 {
				logger.Warn("获取目录缓存失败，准备重试",
					logger.String("key", key),
					logger.Int("attempt", attempt+1),
					logger.Int("maxRetries", maxRetries),
					logger.ErrorField(err))
				time.Sleep(retryDelay)
				retryDelay *= 2
				continue
			}

			logger.Error("获取目录缓存最终失败，回源目录服务",
				logger.String("key", key),
				logger.Int("totalAttempts", maxRetries),
				logger.ErrorField(err))
			return nil, nil
		}

		logger.Debug("目录缓存命中",
			logger.String("key", key),
			logger.Int("dataSize", len(data)))
		return data, nil
	}

	return nil, nil
}

// DeleteCatalogCache 删除目录元数据缓存
func DeleteCatalogCache(key string) error {
	if RedisClient == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := RedisClient.Del(ctx, key).Err(); err != nil {
		logger.Error("删除目录缓存失败",
			logger.String("key", key),
			logger.ErrorField(err))
		return err
	}

	logger.Debug("目录缓存删除成功", logger.String("key", key))
	return nil
}
