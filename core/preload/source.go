package preload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Asset 是一次预载的目标：资产 ID 与其源地址。
type Asset struct {
	ID  string `json:"assetId"`
	URL string `json:"url"`
}

// FetchResult 是一次源拉取的产物。
type FetchResult struct {
	Payload     []byte
	ContentType string
}

// AssetSource 从源站拉取资产负载。
type AssetSource interface {
	Fetch(ctx context.Context, asset Asset) (*FetchResult, error)
}

// QueueSnapshot 是播放队列的一次只读快照。
type QueueSnapshot struct {
	Assets       []Asset
	CurrentIndex int
}

// QueueProvider 暴露当前播放队列与资产的回退播放地址。
type QueueProvider interface {
	QueueSnapshot(ctx context.Context) (*QueueSnapshot, error)
	FallbackURL(ctx context.Context, assetID string) (string, error)
}

// FeaturedProvider 暴露精选曲目与合集首曲列表。
type FeaturedProvider interface {
	FeaturedAssets(ctx context.Context, limit int) ([]Asset, error)
	CollectionLeadAssets(ctx context.Context, limit int) ([]Asset, error)
}

// HTTPAssetSource 通过 HTTP 拉取资产，负载大小受 maxBytes 限制。
type HTTPAssetSource struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPAssetSource 创建 HTTP 资产源。timeout 与 maxBytes 非正时
// 取内置默认值。
func NewHTTPAssetSource(timeout time.Duration, maxBytes int64) *HTTPAssetSource {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &HTTPAssetSource{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

func (s *HTTPAssetSource) Fetch(ctx context.Context, asset Asset) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建下载请求失败: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下载请求失败，状态码: %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("读取音频数据失败: %w", err)
	}
	if int64(len(payload)) > s.maxBytes {
		return nil, fmt.Errorf("音频负载超过大小上限: %d 字节", s.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &FetchResult{Payload: payload, ContentType: contentType}, nil
}
