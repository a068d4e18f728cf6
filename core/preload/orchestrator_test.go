package preload

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	fetches  map[string]int
	failWith map[string]error
	blocks   map[string]chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		fetches:  make(map[string]int),
		failWith: make(map[string]error),
		blocks:   make(map[string]chan struct{}),
	}
}

func (f *fakeSource) Fetch(ctx context.Context, asset Asset) (*FetchResult, error) {
	f.mu.Lock()
	f.fetches[asset.ID]++
	block := f.blocks[asset.ID]
	err := f.failWith[asset.ID]
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &FetchResult{Payload: []byte("audio-" + asset.ID), ContentType: "audio/mpeg"}, nil
}

func (f *fakeSource) fetchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

type fakeQueue struct {
	mu   sync.Mutex
	snap QueueSnapshot
}

func (q *fakeQueue) QueueSnapshot(ctx context.Context) (*QueueSnapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	snap := QueueSnapshot{
		Assets:       append([]Asset(nil), q.snap.Assets...),
		CurrentIndex: q.snap.CurrentIndex,
	}
	return &snap, nil
}

func (q *fakeQueue) FallbackURL(ctx context.Context, assetID string) (string, error) {
	return "https://origin.example/stream/" + assetID, nil
}

type fakeFeatured struct {
	featured []Asset
	leads    []Asset
}

func (f *fakeFeatured) FeaturedAssets(ctx context.Context, limit int) ([]Asset, error) {
	if limit < len(f.featured) {
		return f.featured[:limit], nil
	}
	return f.featured, nil
}

func (f *fakeFeatured) CollectionLeadAssets(ctx context.Context, limit int) ([]Asset, error) {
	if limit < len(f.leads) {
		return f.leads[:limit], nil
	}
	return f.leads, nil
}

// newTestOrchestrator 用压缩过的时间参数创建编排器，测试结束自动关闭。
func newTestOrchestrator(t *testing.T, src AssetSource, q QueueProvider, f FeaturedProvider) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(Options{
		Source:   src,
		Queue:    q,
		Featured: f,
		Tunables: Tunables{
			FailureCooldown: time.Minute,
			MaxAttempts:     2,
			VisibleDebounce: 20 * time.Millisecond,
			HiddenGrace:     40 * time.Millisecond,
			ReclaimKeep:     2,
			ResolveTimeout:  200 * time.Millisecond,
			FetchTimeout:    time.Second,
		},
	})
	t.Cleanup(o.Close)
	return o
}

func cdn(id string) Asset {
	return Asset{ID: id, URL: "https://cdn.example/" + id}
}

func TestOrchestratorQueueLookahead(t *testing.T) {
	src := newFakeSource()
	q := &fakeQueue{snap: QueueSnapshot{
		Assets:       []Asset{cdn("A"), cdn("B"), cdn("C"), cdn("D")},
		CurrentIndex: 0,
	}}
	o := newTestOrchestrator(t, src, q, nil)

	// 默认档位前瞻 2：队列 [A,B,C,D] 播放 A 时恰好预载 B 和 C
	o.OnQueueChanged(context.Background())

	assert.Eventually(t, func() bool {
		return o.Cache().Contains("B") && o.Cache().Contains("C")
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, src.fetchCount("A"))
	assert.Equal(t, 1, src.fetchCount("B"))
	assert.Equal(t, 1, src.fetchCount("C"))
	assert.Equal(t, 0, src.fetchCount("D"))
}

func TestOrchestratorQueueChangeIsIdempotent(t *testing.T) {
	src := newFakeSource()
	q := &fakeQueue{snap: QueueSnapshot{
		Assets:       []Asset{cdn("A"), cdn("B"), cdn("C")},
		CurrentIndex: 0,
	}}
	o := newTestOrchestrator(t, src, q, nil)

	o.OnQueueChanged(context.Background())
	assert.Eventually(t, func() bool { return o.Cache().Contains("B") }, 2*time.Second, 10*time.Millisecond)

	// 已缓存的资产静默跳过，不产生新的下载
	o.OnQueueChanged(context.Background())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, src.fetchCount("B"))
	assert.Equal(t, 1, src.fetchCount("C"))
}

func TestOrchestratorResolveDownloadsAndCaches(t *testing.T) {
	src := newFakeSource()
	o := newTestOrchestrator(t, src, nil, nil)

	url := o.WaitForCachedURL(context.Background(), cdn("X"), 0)
	assert.True(t, strings.HasPrefix(url, "/cache/assets/X?t="))
	assert.Equal(t, 1, src.fetchCount("X"))

	// 二次解析命中缓存，不再下载
	url2 := o.WaitForCachedURL(context.Background(), cdn("X"), 0)
	assert.Equal(t, url, url2)
	assert.Equal(t, 1, src.fetchCount("X"))
}

func TestOrchestratorResolveTimeoutCancelsAndFallsBack(t *testing.T) {
	src := newFakeSource()
	src.blocks["S"] = make(chan struct{})
	q := &fakeQueue{}
	o := newTestOrchestrator(t, src, q, nil)

	url := o.WaitForCachedURL(context.Background(), cdn("S"), 50*time.Millisecond)
	assert.Equal(t, "https://origin.example/stream/S", url)

	// 超时同时取消下载，不留悬挂任务，取消不计入失败
	assert.Eventually(t, func() bool {
		st := o.Status()
		return st.ActiveCount == 0 && st.QueuedCount == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, o.Status().FailedCount)
	assert.False(t, o.Cache().Contains("S"))
}

func TestOrchestratorResolveJoinsInflightPreload(t *testing.T) {
	src := newFakeSource()
	block := make(chan struct{})
	src.blocks["B"] = block
	q := &fakeQueue{snap: QueueSnapshot{
		Assets:       []Asset{cdn("A"), cdn("B")},
		CurrentIndex: 0,
	}}
	o := newTestOrchestrator(t, src, q, nil)

	o.OnQueueChanged(context.Background())
	assert.Eventually(t, func() bool { return src.fetchCount("B") == 1 }, time.Second, 5*time.Millisecond)

	// 解析请求合并到进行中的预载，同一资产只抓取一次
	done := make(chan string, 1)
	go func() {
		done <- o.WaitForCachedURL(context.Background(), cdn("B"), time.Second)
	}()
	time.Sleep(20 * time.Millisecond)
	close(block)

	url := <-done
	assert.True(t, strings.HasPrefix(url, "/cache/assets/B?t="))
	assert.Equal(t, 1, src.fetchCount("B"))
}

func TestOrchestratorFailureFallsBackAndEntersCooldown(t *testing.T) {
	src := newFakeSource()
	src.failWith["F"] = errors.New("下载请求失败，状态码: 503")
	q := &fakeQueue{}
	o := newTestOrchestrator(t, src, q, nil)

	url := o.WaitForCachedURL(context.Background(), cdn("F"), 0)
	assert.Equal(t, "https://origin.example/stream/F", url)
	assert.Equal(t, 1, src.fetchCount("F"))
	assert.Equal(t, 1, o.Status().FailedCount)

	// 第二次失败达到重试上限
	o.WaitForCachedURL(context.Background(), cdn("F"), 0)
	assert.Equal(t, 2, src.fetchCount("F"))

	// 冷却期内的解析直接回退，不再尝试下载
	url = o.WaitForCachedURL(context.Background(), cdn("F"), 0)
	assert.Equal(t, "https://origin.example/stream/F", url)
	assert.Equal(t, 2, src.fetchCount("F"))
}

func TestOrchestratorResolveNeverFails(t *testing.T) {
	src := newFakeSource()
	src.failWith["F"] = errors.New("boom")
	o := newTestOrchestrator(t, src, nil, nil)

	// 没有队列提供方时退到资产自带的源地址
	url := o.WaitForCachedURL(context.Background(), cdn("F"), 0)
	assert.Equal(t, "https://cdn.example/F", url)

	// 信息不全的资产同样只回退
	url = o.WaitForCachedURL(context.Background(), Asset{ID: "naked"}, 0)
	assert.Equal(t, "", url)
}

func TestOrchestratorGetCachedURL(t *testing.T) {
	src := newFakeSource()
	o := newTestOrchestrator(t, src, nil, nil)

	// 未缓存返回空串，且不触发下载
	assert.Equal(t, "", o.GetCachedURL("X"))
	assert.Equal(t, 0, src.fetchCount("X"))

	url := o.WaitForCachedURL(context.Background(), cdn("X"), 0)
	assert.Equal(t, url, o.GetCachedURL("X"))
}

func TestOrchestratorReleaseTrackEvictsAndCancels(t *testing.T) {
	src := newFakeSource()
	src.blocks["R2"] = make(chan struct{})
	o := newTestOrchestrator(t, src, nil, nil)

	o.WaitForCachedURL(context.Background(), cdn("R1"), 0)
	require.True(t, o.Cache().Contains("R1"))

	o.ReleaseTrack("R1")
	assert.False(t, o.Cache().Contains("R1"))
	assert.Equal(t, "", o.GetCachedURL("R1"))

	// 在途下载被取消，取消不计入失败
	o.OnTrackHover(cdn("R2"))
	assert.Eventually(t, func() bool { return o.Status().ActiveCount == 1 }, time.Second, 5*time.Millisecond)
	o.ReleaseTrack("R2")
	assert.Eventually(t, func() bool { return o.Status().ActiveCount == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, o.Cache().Contains("R2"))
	assert.Equal(t, 0, o.Status().FailedCount)

	// 重复释放与释放未知资产都是无害空操作
	o.ReleaseTrack("R1")
	o.ReleaseTrack("missing")
}

func TestOrchestratorVisibleDebounceCollapsesBursts(t *testing.T) {
	src := newFakeSource()
	o := newTestOrchestrator(t, src, nil, nil)

	// 快速滚动触发的连续快照，只有最后一次生效
	o.OnVisibleTracksChanged([]Asset{cdn("v1")})
	o.OnVisibleTracksChanged([]Asset{cdn("v2")})
	o.OnVisibleTracksChanged([]Asset{cdn("v3")})

	assert.Eventually(t, func() bool { return o.Cache().Contains("v3") }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, src.fetchCount("v1"))
	assert.Equal(t, 0, src.fetchCount("v2"))
	assert.Equal(t, 1, src.fetchCount("v3"))
}

func TestOrchestratorVisibleListRespectsLimit(t *testing.T) {
	src := newFakeSource()
	o := newTestOrchestrator(t, src, nil, nil)

	// 默认档位可见预载上限为 4，超出部分忽略
	assets := []Asset{cdn("w1"), cdn("w2"), cdn("w3"), cdn("w4"), cdn("w5"), cdn("w6")}
	o.OnVisibleTracksChanged(assets)

	assert.Eventually(t, func() bool {
		return o.Cache().Contains("w1") && o.Cache().Contains("w4")
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, src.fetchCount("w5"))
	assert.Equal(t, 0, src.fetchCount("w6"))
}

func TestOrchestratorFeaturedPrefetchGatedOnPlayback(t *testing.T) {
	src := newFakeSource()
	f := &fakeFeatured{
		featured: []Asset{cdn("feat1"), cdn("feat2")},
		leads:    []Asset{cdn("lead1")},
	}
	o := newTestOrchestrator(t, src, nil, f)

	// 首次播放动作之前精选不预载
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, src.fetchCount("feat1"))

	o.OnPlaybackStarted()
	assert.Eventually(t, func() bool {
		return o.Cache().Contains("feat1") && o.Cache().Contains("feat2") && o.Cache().Contains("lead1")
	}, 2*time.Second, 10*time.Millisecond)

	// 再次播放不重复预载
	o.OnPlaybackStarted()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, src.fetchCount("feat1"))
	assert.Equal(t, 1, src.fetchCount("lead1"))
}

func TestOrchestratorFeaturedPrefetchDisabledOnSaveData(t *testing.T) {
	src := newFakeSource()
	f := &fakeFeatured{featured: []Asset{cdn("feat1")}}
	o := newTestOrchestrator(t, src, nil, f)

	o.OnNetworkChanged(NetworkSignals{SaveData: true})
	o.OnPlaybackStarted()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, src.fetchCount("feat1"))
}

func TestOrchestratorHiddenReclaimShrinksCache(t *testing.T) {
	src := newFakeSource()
	o := newTestOrchestrator(t, src, nil, nil)

	for _, id := range []string{"a", "b", "c", "d"} {
		o.WaitForCachedURL(context.Background(), cdn(id), 0)
	}
	require.Equal(t, 4, o.Cache().Len())

	o.OnPageHidden()
	assert.Eventually(t, func() bool { return o.Cache().Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	// 保留的是最近使用的两个
	assert.Equal(t, []string{"d", "c"}, o.Cache().Snapshot())
}

func TestOrchestratorHiddenReclaimCancelsLowPriority(t *testing.T) {
	src := newFakeSource()
	src.blocks["feat1"] = make(chan struct{})
	f := &fakeFeatured{featured: []Asset{cdn("feat1")}}
	o := newTestOrchestrator(t, src, nil, f)

	// 精选预热走低优先级，页面隐藏回收时被整体取消
	o.OnPlaybackStarted()
	assert.Eventually(t, func() bool { return o.Status().ActiveCount == 1 }, time.Second, 5*time.Millisecond)

	o.OnPageHidden()
	assert.Eventually(t, func() bool { return o.Status().ActiveCount == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, o.Cache().Contains("feat1"))
	assert.Equal(t, 0, o.Status().FailedCount)
}

func TestOrchestratorVisibilityReturnCancelsReclaim(t *testing.T) {
	src := newFakeSource()
	o := newTestOrchestrator(t, src, nil, nil)

	for _, id := range []string{"a", "b", "c"} {
		o.WaitForCachedURL(context.Background(), cdn(id), 0)
	}

	o.OnPageHidden()
	o.OnPageVisible()

	// 宽限期过后缓存原封不动
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 3, o.Cache().Len())
}

func TestOrchestratorNetworkChangeAppliesProfile(t *testing.T) {
	src := newFakeSource()
	o := newTestOrchestrator(t, src, nil, nil)

	for _, id := range []string{"a", "b", "c"} {
		o.WaitForCachedURL(context.Background(), cdn(id), 0)
	}
	require.Equal(t, 3, o.Cache().Len())

	// 省流量档位立即把缓存收缩到 1
	o.OnNetworkChanged(NetworkSignals{SaveData: true})
	assert.Equal(t, 1, o.Config().MaxCacheSize)
	assert.Equal(t, 1, o.Cache().Len())
	assert.Equal(t, []string{"c"}, o.Cache().Snapshot())

	o.OnNetworkChanged(NetworkSignals{EffectiveType: Connection4G, DownlinkMbps: 10, DeviceMemoryGB: 8})
	assert.Equal(t, 8, o.Config().MaxCacheSize)
}

func TestOrchestratorCloseTeardown(t *testing.T) {
	src := newFakeSource()
	src.blocks["slow"] = make(chan struct{})
	q := &fakeQueue{}
	o := newTestOrchestrator(t, src, q, nil)

	o.OnTrackHover(cdn("slow"))
	o.WaitForCachedURL(context.Background(), cdn("x"), 0)
	require.Equal(t, 1, o.Cache().Len())

	o.Close()
	o.Close()

	assert.Equal(t, 0, o.Cache().Len())

	// 关闭后的解析不再发起下载，直接回退
	url := o.WaitForCachedURL(context.Background(), cdn("y"), 0)
	assert.Equal(t, "https://origin.example/stream/y", url)
	assert.Equal(t, 0, src.fetchCount("y"))
}

func TestOrchestratorStatusSnapshot(t *testing.T) {
	src := newFakeSource()
	o := newTestOrchestrator(t, src, nil, nil)

	o.WaitForCachedURL(context.Background(), cdn("a"), 0)
	o.OnPlaybackStarted()

	st := o.Status()
	assert.Equal(t, []string{"a"}, st.CachedAssets)
	assert.True(t, st.PlaybackSeen)
	assert.False(t, st.PageHidden)
	assert.Equal(t, 6, st.Profile.MaxCacheSize)
}
