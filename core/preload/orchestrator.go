package preload

import (
	"context"
	"errors"
	"sync"
	"time"

	"CineFM/logger"
)

// Tunables 汇总编排器的可调常量，便于测试注入与热更新。
type Tunables struct {
	FailureCooldown time.Duration
	MaxAttempts     int
	VisibleDebounce time.Duration
	HiddenGrace     time.Duration
	ReclaimKeep     int
	ResolveTimeout  time.Duration
	FetchTimeout    time.Duration
}

// DefaultTunables 返回默认参数。
func DefaultTunables() Tunables {
	return Tunables{
		FailureCooldown: 5 * time.Minute,
		MaxAttempts:     2,
		VisibleDebounce: 50 * time.Millisecond,
		HiddenGrace:     5 * time.Minute,
		ReclaimKeep:     2,
		ResolveTimeout:  3 * time.Second,
		FetchTimeout:    2 * time.Minute,
	}
}

func (t Tunables) withDefaults() Tunables {
	d := DefaultTunables()
	if t.FailureCooldown <= 0 {
		t.FailureCooldown = d.FailureCooldown
	}
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = d.MaxAttempts
	}
	if t.VisibleDebounce <= 0 {
		t.VisibleDebounce = d.VisibleDebounce
	}
	if t.HiddenGrace <= 0 {
		t.HiddenGrace = d.HiddenGrace
	}
	if t.ReclaimKeep < 0 {
		t.ReclaimKeep = d.ReclaimKeep
	}
	if t.ResolveTimeout <= 0 {
		t.ResolveTimeout = d.ResolveTimeout
	}
	if t.FetchTimeout <= 0 {
		t.FetchTimeout = d.FetchTimeout
	}
	return t
}

// Status 是推送给前端的预载状态快照。
type Status struct {
	Profile      PreloadConfig `json:"profile"`
	CachedAssets []string      `json:"cachedAssets"`
	ActiveCount  int           `json:"activeCount"`
	QueuedCount  int           `json:"queuedCount"`
	FailedCount  int           `json:"failedCount"`
	PageHidden   bool          `json:"pageHidden"`
	PlaybackSeen bool          `json:"playbackSeen"`
}

// Options 组装编排器的协作方。Source 为空时使用 HTTP 源。
type Options struct {
	Source   AssetSource
	Queue    QueueProvider
	Featured FeaturedProvider
	Tunables Tunables
	OnStatus func(Status)
}

// Orchestrator 驱动整个预载流程：监听队列、可见性与网络信号，
// 按档位调度下载，并为播放请求解析缓存地址。实例自持有全部状态，
// 多个实例互不干扰。
type Orchestrator struct {
	cache     *AssetCache
	scheduler *Scheduler
	failures  *FailureTracker
	resolver  *ProfileResolver
	source    AssetSource
	queue     QueueProvider
	featured  FeaturedProvider

	mu             sync.Mutex
	tunables       Tunables
	cfg            PreloadConfig
	signals        NetworkSignals
	playbackSeen   bool
	featuredDone   bool
	hidden         bool
	reclaimTimer   *time.Timer
	visibleTicket  uint64
	visibleTimer   *time.Timer
	pendingVisible []Asset
	closed         bool
	onStatus       func(Status)
}

// NewOrchestrator 创建编排器。初始档位按空网络信号解析，
// 之后随 OnNetworkChanged 动态调整。
func NewOrchestrator(opts Options) *Orchestrator {
	t := opts.Tunables.withDefaults()
	resolver := NewProfileResolver()
	cfg := resolver.Resolve(NetworkSignals{})

	source := opts.Source
	if source == nil {
		source = NewHTTPAssetSource(t.FetchTimeout, 0)
	}

	return &Orchestrator{
		cache:     NewAssetCache(cfg.MaxCacheSize),
		scheduler: NewScheduler(cfg.MaxConcurrentDownloads, cfg.ReservedHighPrioritySlots),
		failures:  NewFailureTracker(t.FailureCooldown, t.MaxAttempts),
		resolver:  resolver,
		source:    source,
		queue:     opts.Queue,
		featured:  opts.Featured,
		tunables:  t,
		cfg:       cfg,
		onStatus:  opts.OnStatus,
	}
}

// Cache 返回资产缓存，供节点回放路由读取负载。
func (o *Orchestrator) Cache() *AssetCache { return o.cache }

// Config 返回当前生效的预载档位。
func (o *Orchestrator) Config() PreloadConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// Signals 返回最近一次上报的网络信号。
func (o *Orchestrator) Signals() NetworkSignals {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.signals
}

// SetStatusListener 注册状态推送回调。
func (o *Orchestrator) SetStatusListener(fn func(Status)) {
	o.mu.Lock()
	o.onStatus = fn
	o.mu.Unlock()
}

// OnNetworkChanged 按最新网络信号重算档位并应用到缓存与调度器。
func (o *Orchestrator) OnNetworkChanged(signals NetworkSignals) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.signals = signals
	cfg := o.resolver.Resolve(signals)
	changed := cfg != o.cfg
	o.cfg = cfg
	o.mu.Unlock()

	if !changed {
		return
	}
	o.cache.Resize(cfg.MaxCacheSize)
	o.scheduler.Resize(cfg.MaxConcurrentDownloads, cfg.ReservedHighPrioritySlots)
	logger.Info("[OnNetworkChanged] 网络档位已更新",
		logger.Int("maxCacheSize", cfg.MaxCacheSize),
		logger.Int("queueLookahead", cfg.QueuePreloadLookahead),
		logger.Int("maxConcurrent", cfg.MaxConcurrentDownloads),
		logger.Bool("prefetchFeatured", cfg.PrefetchFeaturedOnLoad))
	o.notifyStatus()
}

// OnQueueChanged 重新计算队列前瞻：只预载当前曲目之后 lookahead
// 首，当前曲目本身从不预载，已缓存与下载中的资产静默跳过。
func (o *Orchestrator) OnQueueChanged(ctx context.Context) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	lookahead := o.cfg.QueuePreloadLookahead
	o.mu.Unlock()

	if o.queue == nil || lookahead <= 0 {
		return
	}
	snap, err := o.queue.QueueSnapshot(ctx)
	if err != nil {
		logger.Warn("[OnQueueChanged] 获取队列快照失败", logger.ErrorField(err))
		return
	}
	start := snap.CurrentIndex
	if start < -1 {
		start = -1
	}
	for i := start + 1; i <= start+lookahead && i < len(snap.Assets); i++ {
		o.preloadAsset(snap.Assets[i], PriorityHigh)
	}
}

// OnVisibleTracksChanged 记录可见曲目并去抖合并突发滚动，
// 只有静默期后的最后一次快照会被调度。
func (o *Orchestrator) OnVisibleTracksChanged(assets []Asset) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.visibleTicket++
	ticket := o.visibleTicket
	o.pendingVisible = append([]Asset(nil), assets...)
	if o.visibleTimer != nil {
		o.visibleTimer.Stop()
	}
	o.visibleTimer = time.AfterFunc(o.tunables.VisibleDebounce, func() {
		o.flushVisible(ticket)
	})
	o.mu.Unlock()
}

func (o *Orchestrator) flushVisible(ticket uint64) {
	o.mu.Lock()
	if o.closed || ticket != o.visibleTicket {
		o.mu.Unlock()
		return
	}
	assets := o.pendingVisible
	o.pendingVisible = nil
	limit := o.cfg.VisiblePreloadLimit
	o.mu.Unlock()

	if limit <= 0 {
		return
	}
	if len(assets) > limit {
		assets = assets[:limit]
	}
	for _, a := range assets {
		o.preloadAsset(a, PriorityHigh)
	}
}

// OnPlaybackStarted 标记首次播放动作。精选与合集首曲的低优先级
// 预载只在首次播放之后、且档位允许时启动一次。
func (o *Orchestrator) OnPlaybackStarted() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	first := !o.playbackSeen
	o.playbackSeen = true
	prefetch := first && o.cfg.PrefetchFeaturedOnLoad && !o.featuredDone
	if prefetch {
		o.featuredDone = true
	}
	o.mu.Unlock()

	if prefetch {
		go o.preloadFeatured(context.Background())
	}
}

// OnTrackHover 在用户悬停曲目时预热。悬停是明确的播放意图，
// 按高优先级调度。
func (o *Orchestrator) OnTrackHover(asset Asset) {
	o.mu.Lock()
	skip := o.closed || o.hidden
	o.mu.Unlock()
	if skip {
		return
	}
	o.preloadAsset(asset, PriorityHigh)
}

// OnPageHidden 启动隐藏宽限计时。宽限期满仍隐藏时收缩缓存并取消
// 全部低优先级下载。重复的隐藏信号不会重置计时。
func (o *Orchestrator) OnPageHidden() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.hidden {
		return
	}
	o.hidden = true
	if o.reclaimTimer != nil {
		o.reclaimTimer.Stop()
	}
	o.reclaimTimer = time.AfterFunc(o.tunables.HiddenGrace, o.reclaim)
	logger.Debug("页面隐藏，启动回收宽限计时")
}

// OnPageVisible 终止宽限计时，恢复正常预载。
func (o *Orchestrator) OnPageVisible() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || !o.hidden {
		return
	}
	o.hidden = false
	if o.reclaimTimer != nil {
		o.reclaimTimer.Stop()
		o.reclaimTimer = nil
	}
	logger.Debug("页面恢复可见，取消回收")
}

// WaitForCachedURL 解析资产的播放地址：缓存命中直接返回节点地址，
// 否则发起高优先级下载并限时等待；超时、失败或冷却中一律回退到
// 源地址，从不返回错误。timeout 非正时取默认解析超时。
func (o *Orchestrator) WaitForCachedURL(ctx context.Context, asset Asset, timeout time.Duration) string {
	if h := o.cache.Get(asset.ID); h != nil {
		return h.URL()
	}

	o.mu.Lock()
	closed := o.closed
	if timeout <= 0 {
		timeout = o.tunables.ResolveTimeout
	}
	o.mu.Unlock()

	if closed || asset.URL == "" {
		return o.fallback(ctx, asset)
	}
	if !o.failures.IsEligible(asset.ID) {
		logger.Debug("[WaitForCachedURL] 资产处于失败冷却期，直接回退",
			logger.String("assetId", asset.ID))
		return o.fallback(ctx, asset)
	}

	dl := o.requestDownload(asset, PriorityHigh)
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := dl.Wait(wctx); err != nil {
		if wctx.Err() != nil {
			if errors.Is(wctx.Err(), context.DeadlineExceeded) {
				resolveTimeoutsTotal.Inc()
			}
			o.scheduler.Cancel(asset.ID)
			logger.Debug("[WaitForCachedURL] 等待超时，取消下载并回退",
				logger.String("assetId", asset.ID))
		}
		return o.fallback(ctx, asset)
	}

	if h := o.cache.Get(asset.ID); h != nil {
		return h.URL()
	}
	return o.fallback(ctx, asset)
}

// GetCachedURL 同步查询资产的本地播放地址，命中时刷新其新近度。
// 未缓存返回空串，不会触发下载。
func (o *Orchestrator) GetCachedURL(assetID string) string {
	if h := o.cache.Get(assetID); h != nil {
		return h.URL()
	}
	return ""
}

// ReleaseTrack 立即放弃一条资产：取消在途下载并逐出缓存条目。
// 调用方确定资产短期内不会重播时使用，例如从队列移除之后。
func (o *Orchestrator) ReleaseTrack(assetID string) {
	cancelled := o.scheduler.Cancel(assetID)
	released := o.cache.Release(assetID)
	if cancelled || released {
		logger.Debug("[ReleaseTrack] 释放资产",
			logger.String("assetId", assetID),
			logger.Bool("cancelled", cancelled),
			logger.Bool("released", released))
	}
}

// fallback 返回资产的源播放地址。队列提供方能重新签发时优先用它，
// 否则退到资产自带的源地址。
func (o *Orchestrator) fallback(ctx context.Context, asset Asset) string {
	if o.queue == nil {
		return asset.URL
	}
	u, err := o.queue.FallbackURL(ctx, asset.ID)
	if err != nil {
		logger.Warn("获取回退播放地址失败",
			logger.String("assetId", asset.ID),
			logger.ErrorField(err))
		return asset.URL
	}
	if u == "" {
		return asset.URL
	}
	return u
}

// Status 返回当前预载状态快照。
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	cfg := o.cfg
	hidden := o.hidden
	seen := o.playbackSeen
	o.mu.Unlock()

	active, queued := o.scheduler.Counts()
	return Status{
		Profile:      cfg,
		CachedAssets: o.cache.Snapshot(),
		ActiveCount:  active,
		QueuedCount:  queued,
		FailedCount:  o.failures.Size(),
		PageHidden:   hidden,
		PlaybackSeen: seen,
	}
}

// Reconfigure 应用热更新后的可调参数。
func (o *Orchestrator) Reconfigure(t Tunables) {
	t = t.withDefaults()
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.tunables = t
	o.mu.Unlock()

	o.failures.Reconfigure(t.FailureCooldown, t.MaxAttempts)
	logger.Info("[Reconfigure] 预载参数已热更新",
		logger.Duration("failureCooldown", t.FailureCooldown),
		logger.Duration("hiddenGrace", t.HiddenGrace),
		logger.Duration("resolveTimeout", t.ResolveTimeout))
}

// Close 停止计时器、取消全部下载并清空缓存。幂等。
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.visibleTimer != nil {
		o.visibleTimer.Stop()
		o.visibleTimer = nil
	}
	if o.reclaimTimer != nil {
		o.reclaimTimer.Stop()
		o.reclaimTimer = nil
	}
	o.mu.Unlock()

	o.scheduler.Close()
	o.cache.Clear()
}

// preloadAsset 发起一次后台预载。已缓存、冷却中或信息不全的资产
// 静默跳过，下载中的资产由调度器合并。
func (o *Orchestrator) preloadAsset(asset Asset, priority Priority) {
	if asset.ID == "" || asset.URL == "" {
		return
	}
	if o.cache.Contains(asset.ID) {
		return
	}
	if !o.failures.IsEligible(asset.ID) {
		return
	}
	o.requestDownload(asset, priority)
}

// requestDownload 向调度器提交下载。拉取成功写缓存并清除失败记录，
// 失败记入追踪器，取消与超时不计为失败。
func (o *Orchestrator) requestDownload(asset Asset, priority Priority) *Download {
	fetch := func(ctx context.Context) error {
		o.mu.Lock()
		fetchTimeout := o.tunables.FetchTimeout
		o.mu.Unlock()

		fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()

		res, err := o.source.Fetch(fctx, asset)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				o.failures.RecordFailure(asset.ID)
			}
			return err
		}
		o.cache.Put(asset.ID, res.Payload, res.ContentType)
		o.failures.RecordSuccess(asset.ID)
		return nil
	}
	return o.scheduler.Request(asset.ID, priority, fetch)
}

// preloadFeatured 以低优先级预热精选与合集首曲。
func (o *Orchestrator) preloadFeatured(ctx context.Context) {
	if o.featured == nil {
		return
	}
	o.mu.Lock()
	featuredCount := o.cfg.FeaturedPreloadLimit
	leadCount := o.cfg.CollectionLookaheadLimit
	o.mu.Unlock()

	if featuredCount > 0 {
		assets, err := o.featured.FeaturedAssets(ctx, featuredCount)
		if err != nil {
			logger.Warn("[PreloadFeatured] 获取精选列表失败", logger.ErrorField(err))
		} else {
			for _, a := range assets {
				o.preloadAsset(a, PriorityLow)
			}
		}
	}
	if leadCount > 0 {
		assets, err := o.featured.CollectionLeadAssets(ctx, leadCount)
		if err != nil {
			logger.Warn("[PreloadFeatured] 获取合集首曲失败", logger.ErrorField(err))
		} else {
			for _, a := range assets {
				o.preloadAsset(a, PriorityLow)
			}
		}
	}
}

// reclaim 在宽限期满后执行回收，期间页面恢复可见则放弃。
func (o *Orchestrator) reclaim() {
	o.mu.Lock()
	if o.closed || !o.hidden {
		o.mu.Unlock()
		return
	}
	keep := o.tunables.ReclaimKeep
	o.mu.Unlock()

	evicted := o.cache.ShrinkTo(keep)
	cancelled := o.scheduler.CancelLowPriority()
	reclaimsTotal.Inc()
	logger.Info("[Reclaim] 页面长期隐藏，回收预载资源",
		logger.Int("evicted", evicted),
		logger.Int("cancelledLow", cancelled))
	o.notifyStatus()
}

func (o *Orchestrator) notifyStatus() {
	o.mu.Lock()
	fn := o.onStatus
	o.mu.Unlock()
	if fn != nil {
		fn(o.Status())
	}
}
