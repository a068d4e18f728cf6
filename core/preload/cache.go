package preload

import (
	"container/list"
	"encoding/hex"
	"fmt"
	"sync"

	"CineFM/logger"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// PlaybackHandle 指向缓存内的一段音频负载。条目被淘汰、释放或
// 替换时句柄失效，且恰好失效一次，此后 Valid 恒为 false。
type PlaybackHandle struct {
	assetID     string
	token       string
	fingerprint string

	mu    sync.Mutex
	valid bool
}

func newPlaybackHandle(assetID string, payload []byte) *PlaybackHandle {
	sum := blake2b.Sum256(payload)
	return &PlaybackHandle{
		assetID:     assetID,
		token:       uuid.NewString(),
		fingerprint: hex.EncodeToString(sum[:]),
		valid:       true,
	}
}

// URL 返回节点内播放地址，token 绑定当前句柄。
func (h *PlaybackHandle) URL() string {
	return fmt.Sprintf("/cache/assets/%s?t=%s", h.assetID, h.token)
}

func (h *PlaybackHandle) AssetID() string { return h.assetID }

func (h *PlaybackHandle) Token() string { return h.token }

// Fingerprint 返回负载的 BLAKE2b-256 摘要，回放路由用作 ETag。
func (h *PlaybackHandle) Fingerprint() string { return h.fingerprint }

// Valid 报告句柄是否仍指向缓存内的条目。
func (h *PlaybackHandle) Valid() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.valid
}

func (h *PlaybackHandle) invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.valid = false
}

type cacheEntry struct {
	assetID     string
	payload     []byte
	contentType string
	handle      *PlaybackHandle
}

// AssetCache 是按条目数计数的 LRU 音频缓存。淘汰顺序为最久未用
// 优先，从未被访问过的条目之间按插入顺序决定先后。
type AssetCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // Front 为最近使用
	items   map[string]*list.Element
}

// NewAssetCache 创建容量为 maxSize 的缓存，上限最小为 1。
func NewAssetCache(maxSize int) *AssetCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &AssetCache{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
	}
}

// Get 返回资产的播放句柄并将其提升为最近使用。未命中返回 nil。
func (c *AssetCache) Get(assetID string) *PlaybackHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[assetID]
	if !ok {
		cacheMissesTotal.Inc()
		return nil
	}
	c.order.MoveToFront(el)
	cacheHitsTotal.Inc()
	return el.Value.(*cacheEntry).handle
}

// Contains 报告资产是否在缓存内，不改变其热度。
func (c *AssetCache) Contains(assetID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[assetID]
	return ok
}

// Put 写入资产负载并返回新句柄。同键旧条目的句柄立即失效，
// 超出容量时从最久未用一端淘汰。
func (c *AssetCache) Put(assetID string, payload []byte, contentType string) *PlaybackHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[assetID]; ok {
		c.removeElement(el)
	}

	entry := &cacheEntry{
		assetID:     assetID,
		payload:     payload,
		contentType: contentType,
		handle:      newPlaybackHandle(assetID, payload),
	}
	c.items[assetID] = c.order.PushFront(entry)
	for c.order.Len() > c.maxSize {
		c.evictOldest()
	}
	cacheEntriesGauge.Set(float64(c.order.Len()))
	return entry.handle
}

// Release 移除资产并使其句柄失效。条目不存在时返回 false。
func (c *AssetCache) Release(assetID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[assetID]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// ShrinkTo 淘汰最久未用的条目直到数量不超过 n，返回淘汰数。
// 不修改容量上限。
func (c *AssetCache) ShrinkTo(n int) int {
	if n < 0 {
		n = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for c.order.Len() > n {
		c.evictOldest()
		evicted++
	}
	return evicted
}

// Resize 调整容量上限并按需淘汰，上限最小为 1。
func (c *AssetCache) Resize(maxSize int) {
	if maxSize < 1 {
		maxSize = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxSize = maxSize
	for c.order.Len() > c.maxSize {
		c.evictOldest()
	}
}

// ResolveHandle 按 token 取出负载，供 /cache/assets 路由回放。
// token 不匹配视为未命中，避免旧句柄读到替换后的负载。
func (c *AssetCache) ResolveHandle(assetID, token string) ([]byte, string, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[assetID]
	if !ok {
		return nil, "", "", false
	}
	entry := el.Value.(*cacheEntry)
	if entry.handle.token != token {
		return nil, "", "", false
	}
	c.order.MoveToFront(el)
	return entry.payload, entry.contentType, entry.handle.fingerprint, true
}

// Len 返回当前条目数。
func (c *AssetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// MaxSize 返回当前容量上限。
func (c *AssetCache) MaxSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSize
}

// Snapshot 返回缓存内的资产 ID，最近使用在前。
func (c *AssetCache) Snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Value.(*cacheEntry).assetID)
	}
	return ids
}

// Clear 清空缓存并使全部句柄失效。
func (c *AssetCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.order.Front(); el != nil; {
		next := el.Next()
		c.removeElement(el)
		el = next
	}
}

// removeElement 是条目移除的唯一入口，保证句柄恰好失效一次。
// 调用方持锁。
func (c *AssetCache) removeElement(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	c.order.Remove(el)
	delete(c.items, entry.assetID)
	entry.handle.invalidate()
	cacheEntriesGauge.Set(float64(c.order.Len()))
}

// evictOldest 淘汰链表尾部的条目。调用方持锁。
func (c *AssetCache) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	entry := el.Value.(*cacheEntry)
	c.removeElement(el)
	cacheEvictionsTotal.Inc()
	logger.Debug("淘汰最久未用的缓存资产", logger.String("assetId", entry.assetID))
}
