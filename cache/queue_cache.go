package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"CineFM/model"

	"github.com/go-redis/redis/v8"
)

// 播放队列是单听者节点的状态，键不带用户维度
const (
	queueKey      = "player:queue"       // Sorted Set: QueueItem JSON，分数为位置
	queueIndexKey = "player:queue:index" // String: 当前播放下标
	playbackKey   = "player:playback"    // String: PlaybackState JSON
	queueTTL      = 24 * time.Hour
)

// GetQueue 按播放顺序返回整个队列
func GetQueue(ctx context.Context) ([]model.QueueItem, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	result, err := RedisClient.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return []model.QueueItem{}, nil
		}
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}

	var items []model.QueueItem
	for _, raw := range result {
		var item model.QueueItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// rewriteQueue 以给定顺序整体重写队列，位置字段重新编号
func rewriteQueue(ctx context.Context, items []model.QueueItem) error {
	pipe := RedisClient.Pipeline()
	pipe.Del(ctx, queueKey)
	for i := range items {
		items[i].Position = i
		raw, err := json.Marshal(items[i])
		if err != nil {
			return fmt.Errorf("failed to marshal queue item: %w", err)
		}
		pipe.ZAdd(ctx, queueKey, &redis.Z{
			Score:  float64(i),
			Member: raw,
		})
	}
	if len(items) > 0 {
		pipe.Expire(ctx, queueKey, queueTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to rewrite queue: %w", err)
	}
	return nil
}

// ReplaceQueue 用新列表替换整个队列
func ReplaceQueue(ctx context.Context, items []model.QueueItem) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return rewriteQueue(ctx, items)
}

// AppendQueueItem 将一项追加到队列末尾
func AppendQueueItem(ctx context.Context, item model.QueueItem) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	size, err := RedisClient.ZCard(ctx, queueKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to get queue size: %w", err)
	}

	item.Position = int(size)
	if item.AddedAt == 0 {
		item.AddedAt = time.Now().UnixMilli()
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}

	pipe := RedisClient.Pipeline()
	pipe.ZAdd(ctx, queueKey, &redis.Z{
		Score:  float64(item.Position),
		Member: raw,
	})
	pipe.Expire(ctx, queueKey, queueTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append queue item: %w", err)
	}
	return nil
}

// RemoveQueueItem 按资产标识移除一项并重新编号。返回是否确实移除了。
func RemoveQueueItem(ctx context.Context, assetID string) (bool, error) {
	if RedisClient == nil {
		return false, fmt.Errorf("Redis client not initialized")
	}

	items, err := GetQueue(ctx)
	if err != nil {
		return false, err
	}

	kept := items[:0]
	removed := false
	for _, item := range items {
		if item.AssetID == assetID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return false, nil
	}
	return true, rewriteQueue(ctx, kept)
}

// ShuffleQueue 随机打乱队列顺序
func ShuffleQueue(ctx context.Context) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	items, err := GetQueue(ctx)
	if err != nil {
		return err
	}
	if len(items) <= 1 {
		return nil
	}

	rand.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
	return rewriteQueue(ctx, items)
}

// ClearQueue 清空队列
func ClearQueue(ctx context.Context) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	if err := RedisClient.Del(ctx, queueKey).Err(); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}

// GetCurrentIndex 返回当前播放下标，未设置时为 0
func GetCurrentIndex(ctx context.Context) (int, error) {
	if RedisClient == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}

	idx, err := RedisClient.Get(ctx, queueIndexKey).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current index: %w", err)
	}
	return idx, nil
}

// SetCurrentIndex 设置当前播放下标
func SetCurrentIndex(ctx context.Context, index int) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	if err := RedisClient.Set(ctx, queueIndexKey, index, queueTTL).Err(); err != nil {
		return fmt.Errorf("failed to set current index: %w", err)
	}
	return nil
}

// GetPlaybackState 返回持久化的播放状态，不存在时为 nil
func GetPlaybackState(ctx context.Context) (*model.PlaybackState, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	raw, err := RedisClient.Get(ctx, playbackKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get playback state: %w", err)
	}

	var state model.PlaybackState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal playback state: %w", err)
	}
	return &state, nil
}

// SetPlaybackState 持久化播放状态
func SetPlaybackState(ctx context.Context, state *model.PlaybackState) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	state.UpdatedAt = time.Now().UnixMilli()
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal playback state: %w", err)
	}
	if err := RedisClient.Set(ctx, playbackKey, raw, queueTTL).Err(); err != nil {
		return fmt.Errorf("failed to set playback state: %w", err)
	}
	return nil
}
