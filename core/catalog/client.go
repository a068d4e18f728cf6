package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"CineFM/cache"
	"CineFM/config"
	"CineFM/logger"
	"CineFM/model"

	"golang.org/x/sync/singleflight"
)

// Client 目录服务API客户端。
// 精选和合集的响应会进 Redis 缓存；并发回源请求用 singleflight 合并，
// 避免多个 UI 窗口同时打开时重复打目录服务。
type Client struct {
	baseURL    string
	httpClient *http.Client
	cacheTTL   time.Duration
	group      singleflight.Group
}

// NewClient 创建目录服务客户端。CATALOG_API_URL 为空时客户端处于未启用状态。
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.CatalogAPIURL,
		httpClient: &http.Client{
			Timeout: cfg.CatalogTimeout,
		},
		cacheTTL: cfg.Preload.CatalogCacheTTL,
	}
}

// Enabled 目录服务是否已配置
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// SetCacheTTL 热更新元数据缓存时长
func (c *Client) SetCacheTTL(ttl time.Duration) {
	c.cacheTTL = ttl
}

func (c *Client) fetchJSON(ctx context.Context, path string, out interface{}) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("目录服务返回状态码 %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}

// GetFeatured 获取精选曲目列表
func (c *Client) GetFeatured(ctx context.Context) ([]model.CatalogEntry, error) {
	if !c.Enabled() {
		return nil, nil
	}

	v, err, shared := c.group.Do("featured", func() (interface{}, error) {
		if data, _ := cache.GetCatalogCache(cache.CatalogFeaturedKey); data != nil {
			var entries []model.CatalogEntry
			if err := json.Unmarshal(data, &entries); err == nil {
				return entries, nil
			}
			logger.Warn("[GetFeatured] 缓存内容损坏，回源目录服务")
		}

		var result struct {
			Entries []model.CatalogEntry `json:"entries"`
		}
		if err := c.fetchJSON(ctx, "/featured", &result); err != nil {
			logger.Error("[GetFeatured] 获取精选列表失败", logger.ErrorField(err))
			return nil, err
		}

		if data, err := json.Marshal(result.Entries); err == nil {
			_ = cache.SetCatalogCache(cache.CatalogFeaturedKey, data, c.cacheTTL)
		}

		logger.Info("[GetFeatured] 成功获取精选列表", logger.Int("count", len(result.Entries)))
		return result.Entries, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug("[GetFeatured] 合并了并发请求")
	}
	return v.([]model.CatalogEntry), nil
}

// GetCollections 获取合集列表（含每个合集的第一首曲目）
func (c *Client) GetCollections(ctx context.Context) ([]model.CatalogCollection, error) {
	if !c.Enabled() {
		return nil, nil
	}

	v, err, shared := c.group.Do("collections", func() (interface{}, error) {
		if data, _ := cache.GetCatalogCache(cache.CatalogCollectionsKey); data != nil {
			var collections []model.CatalogCollection
			if err := json.Unmarshal(data, &collections); err == nil {
				return collections, nil
			}
			logger.Warn("[GetCollections] 缓存内容损坏，回源目录服务")
		}

		var result struct {
			Collections []model.CatalogCollection `json:"collections"`
		}
		if err := c.fetchJSON(ctx, "/collections", &result); err != nil {
			logger.Error("[GetCollections] 获取合集列表失败", logger.ErrorField(err))
			return nil, err
		}

		if data, err := json.Marshal(result.Collections); err == nil {
			_ = cache.SetCatalogCache(cache.CatalogCollectionsKey, data, c.cacheTTL)
		}

		logger.Info("[GetCollections] 成功获取合集列表", logger.Int("count", len(result.Collections)))
		return result.Collections, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug("[GetCollections] 合并了并发请求")
	}
	return v.([]model.CatalogCollection), nil
}
