package preload

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetCacheBoundAndInsertionOrder(t *testing.T) {
	c := NewAssetCache(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		c.Put(id, []byte("payload-"+id), "audio/mpeg")
	}

	// 容量恒定，最早插入的先被淘汰
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Contains("a"))
	assert.False(t, c.Contains("b"))
	assert.Equal(t, []string{"e", "d", "c"}, c.Snapshot())
}

func TestAssetCacheRecencyPromotion(t *testing.T) {
	c := NewAssetCache(3)
	c.Put("a", []byte("a"), "audio/mpeg")
	c.Put("b", []byte("b"), "audio/mpeg")
	c.Put("c", []byte("c"), "audio/mpeg")

	// 命中把 a 提升为最近使用，下一次淘汰轮到 b
	require.NotNil(t, c.Get("a"))
	c.Put("d", []byte("d"), "audio/mpeg")

	assert.False(t, c.Contains("b"))
	assert.True(t, c.Contains("a"))
	assert.Equal(t, []string{"d", "a", "c"}, c.Snapshot())
}

func TestAssetCacheContainsDoesNotPromote(t *testing.T) {
	c := NewAssetCache(2)
	c.Put("a", []byte("a"), "audio/mpeg")
	c.Put("b", []byte("b"), "audio/mpeg")

	require.True(t, c.Contains("a"))
	c.Put("c", []byte("c"), "audio/mpeg")

	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))
}

func TestAssetCacheEvictionInvalidatesHandle(t *testing.T) {
	c := NewAssetCache(2)
	h := c.Put("a", []byte("a"), "audio/mpeg")
	require.True(t, h.Valid())

	c.Put("b", []byte("b"), "audio/mpeg")
	c.Put("c", []byte("c"), "audio/mpeg")

	assert.False(t, h.Valid())
	assert.Nil(t, c.Get("a"))
}

func TestAssetCacheReplaceIssuesFreshHandle(t *testing.T) {
	c := NewAssetCache(4)
	h1 := c.Put("a", []byte("v1"), "audio/mpeg")
	h2 := c.Put("a", []byte("v2"), "audio/mpeg")

	assert.False(t, h1.Valid())
	assert.True(t, h2.Valid())
	assert.NotEqual(t, h1.Token(), h2.Token())
	assert.NotEqual(t, h1.Fingerprint(), h2.Fingerprint())
	assert.Equal(t, 1, c.Len())
}

func TestAssetCacheRelease(t *testing.T) {
	c := NewAssetCache(4)
	h := c.Put("a", []byte("a"), "audio/mpeg")

	assert.True(t, c.Release("a"))
	assert.False(t, h.Valid())
	assert.Nil(t, c.Get("a"))

	// 重复释放不报错也不生效
	assert.False(t, c.Release("a"))
}

func TestAssetCacheShrinkTo(t *testing.T) {
	c := NewAssetCache(6)
	for i := 0; i < 5; i++ {
		c.Put(fmt.Sprintf("t%d", i), []byte{byte(i)}, "audio/mpeg")
	}

	assert.Equal(t, 3, c.ShrinkTo(2))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"t4", "t3"}, c.Snapshot())

	// 目标不小于当前条目数时不淘汰，也不改容量上限
	assert.Equal(t, 0, c.ShrinkTo(10))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 6, c.MaxSize())
}

func TestAssetCacheResize(t *testing.T) {
	c := NewAssetCache(6)
	for i := 0; i < 6; i++ {
		c.Put(fmt.Sprintf("t%d", i), []byte{byte(i)}, "audio/mpeg")
	}

	c.Resize(2)
	assert.Equal(t, 2, c.MaxSize())
	assert.Equal(t, []string{"t5", "t4"}, c.Snapshot())

	// 上限最小钳制到 1
	c.Resize(0)
	assert.Equal(t, 1, c.MaxSize())
	assert.Equal(t, 1, c.Len())
}

func TestAssetCacheResolveHandle(t *testing.T) {
	c := NewAssetCache(4)
	payload := []byte("mp3-bytes")
	h := c.Put("a", payload, "audio/flac")

	got, contentType, fingerprint, ok := c.ResolveHandle("a", h.Token())
	require.True(t, ok)
	assert.Equal(t, payload, got)
	assert.Equal(t, "audio/flac", contentType)
	assert.Equal(t, h.Fingerprint(), fingerprint)
	assert.Len(t, fingerprint, 64)

	// 旧 token 不能读到替换后的负载
	_, _, _, ok = c.ResolveHandle("a", "stale-token")
	assert.False(t, ok)
	_, _, _, ok = c.ResolveHandle("missing", h.Token())
	assert.False(t, ok)
}

func TestPlaybackHandleURL(t *testing.T) {
	c := NewAssetCache(2)
	h := c.Put("lib-42", []byte("x"), "audio/mpeg")

	assert.True(t, strings.HasPrefix(h.URL(), "/cache/assets/lib-42?t="))
	assert.Contains(t, h.URL(), h.Token())
	assert.Equal(t, "lib-42", h.AssetID())
}

func TestAssetCacheClampMaxSize(t *testing.T) {
	c := NewAssetCache(0)
	assert.Equal(t, 1, c.MaxSize())

	c.Put("a", []byte("a"), "audio/mpeg")
	c.Put("b", []byte("b"), "audio/mpeg")
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains("b"))
}

func TestAssetCacheClear(t *testing.T) {
	c := NewAssetCache(4)
	h1 := c.Put("a", []byte("a"), "audio/mpeg")
	h2 := c.Put("b", []byte("b"), "audio/mpeg")

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.False(t, h1.Valid())
	assert.False(t, h2.Valid())
	assert.Empty(t, c.Snapshot())
}
