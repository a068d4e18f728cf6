package player

import (
	"context"
	"fmt"
	"time"

	"CineFM/cache"
	"CineFM/config"
	"CineFM/core/catalog"
	"CineFM/core/preload"
	"CineFM/logger"
	"CineFM/model"
	"CineFM/repository"
	"CineFM/storage"
)

// Player 节点的核心服务：维护播放队列，驱动预载编排器，为曲库与
// 目录曲目解析播放地址。同时实现编排器的 QueueProvider 和
// FeaturedProvider。
type Player struct {
	cfg     *config.Config
	tracks  repository.TrackRepository
	albums  repository.AlbumRepository
	catalog *catalog.Client
	orch    *preload.Orchestrator
	watcher *config.TunablesWatcher
}

// TunablesFromConfig 把配置映射为编排器参数
func TunablesFromConfig(pt config.PreloadTunables) preload.Tunables {
	return preload.Tunables{
		FailureCooldown: pt.FailureCooldown,
		MaxAttempts:     pt.MaxAttempts,
		VisibleDebounce: pt.VisibleDebounce,
		HiddenGrace:     pt.HiddenGrace,
		ReclaimKeep:     pt.ReclaimKeep,
		ResolveTimeout:  pt.ResolveTimeout,
		FetchTimeout:    pt.FetchTimeout,
	}
}

// NewPlayer 组装播放服务并启动 .env 参数热更新监听
func NewPlayer(cfg *config.Config) *Player {
	p := &Player{
		cfg:     cfg,
		tracks:  repository.NewMySQLTrackRepository(),
		albums:  repository.NewGormAlbumRepository(),
		catalog: catalog.NewClient(cfg),
	}

	p.orch = preload.NewOrchestrator(preload.Options{
		Source:   preload.NewHTTPAssetSource(cfg.Preload.FetchTimeout, cfg.Preload.MaxPayloadBytes),
		Queue:    p,
		Featured: p,
		Tunables: TunablesFromConfig(cfg.Preload),
	})

	w, err := config.WatchTunables(func(pt config.PreloadTunables) {
		p.orch.Reconfigure(TunablesFromConfig(pt))
		p.catalog.SetCacheTTL(pt.CatalogCacheTTL)
	})
	if err != nil {
		logger.Warn("[NewPlayer] 启动参数热更新监听失败", logger.ErrorField(err))
	} else {
		p.watcher = w
	}
	return p
}

// Preloader 返回预载编排器
func (p *Player) Preloader() *preload.Orchestrator { return p.orch }

// Queue 返回当前队列与播放位置
func (p *Player) Queue(ctx context.Context) ([]model.QueueItem, int, error) {
	items, err := cache.GetQueue(ctx)
	if err != nil {
		return nil, 0, err
	}
	index, err := cache.GetCurrentIndex(ctx)
	if err != nil {
		return nil, 0, err
	}
	return items, index, nil
}

// ReplaceQueue 用指定曲库曲目重建队列并复位播放位置。被换下的资产
// 已不在播放计划内，立即释放其缓存与在途下载。
func (p *Player) ReplaceQueue(ctx context.Context, trackIDs []int64) ([]model.QueueItem, error) {
	previous, err := cache.GetQueue(ctx)
	if err != nil {
		return nil, err
	}
	items, err := p.buildLibraryItems(ctx, trackIDs, 0)
	if err != nil {
		return nil, err
	}
	if err := cache.ReplaceQueue(ctx, items); err != nil {
		return nil, err
	}
	if err := cache.SetCurrentIndex(ctx, 0); err != nil {
		return nil, err
	}

	kept := make(map[string]struct{}, len(items))
	for _, item := range items {
		kept[item.AssetID] = struct{}{}
	}
	for _, item := range previous {
		if _, ok := kept[item.AssetID]; !ok {
			p.orch.ReleaseTrack(item.AssetID)
		}
	}
	p.orch.OnQueueChanged(ctx)
	return items, nil
}

// AddLibraryTracks 把曲库曲目追加到队尾
func (p *Player) AddLibraryTracks(ctx context.Context, trackIDs []int64) ([]model.QueueItem, error) {
	existing, err := cache.GetQueue(ctx)
	if err != nil {
		return nil, err
	}
	items, err := p.buildLibraryItems(ctx, trackIDs, len(existing))
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := cache.AppendQueueItem(ctx, item); err != nil {
			return nil, err
		}
	}
	p.orch.OnQueueChanged(ctx)
	return items, nil
}

// AddCatalogEntries 把目录曲目追加到队尾
func (p *Player) AddCatalogEntries(ctx context.Context, assetIDs []string) ([]model.QueueItem, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}
	if !p.catalog.Enabled() {
		return nil, fmt.Errorf("目录服务未配置")
	}
	entries, err := p.lookupCatalogEntries(ctx, assetIDs)
	if err != nil {
		return nil, err
	}
	existing, err := cache.GetQueue(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]model.QueueItem, 0, len(entries))
	pos := len(existing)
	for _, e := range entries {
		item := model.QueueItem{
			AssetID:   e.AssetID,
			Title:     e.Title,
			Artist:    e.Artist,
			CoverURL:  e.CoverURL,
			StreamURL: e.StreamURL,
			Duration:  e.Duration,
			Source:    model.TrackSourceCatalog,
			Position:  pos,
			AddedAt:   time.Now().UnixMilli(),
		}
		if err := cache.AppendQueueItem(ctx, item); err != nil {
			return nil, err
		}
		items = append(items, item)
		pos++
	}
	p.orch.OnQueueChanged(ctx)
	return items, nil
}

// RemoveItem 从队列移除资产，释放其缓存并触发前瞻重算
func (p *Player) RemoveItem(ctx context.Context, assetID string) (bool, error) {
	removed, err := cache.RemoveQueueItem(ctx, assetID)
	if err != nil || !removed {
		return removed, err
	}
	p.orch.ReleaseTrack(assetID)
	p.orch.OnQueueChanged(ctx)
	return true, nil
}

// Shuffle 打乱队列顺序
func (p *Player) Shuffle(ctx context.Context) error {
	if err := cache.ShuffleQueue(ctx); err != nil {
		return err
	}
	p.orch.OnQueueChanged(ctx)
	return nil
}

// ClearQueue 清空队列，释放全部队内资产并复位播放位置
func (p *Player) ClearQueue(ctx context.Context) error {
	items, err := cache.GetQueue(ctx)
	if err != nil {
		return err
	}
	if err := cache.ClearQueue(ctx); err != nil {
		return err
	}
	for _, item := range items {
		p.orch.ReleaseTrack(item.AssetID)
	}
	return cache.SetCurrentIndex(ctx, 0)
}

// SetPosition 切换当前播放位置。切歌是播放动作，同时推进前瞻预载。
func (p *Player) SetPosition(ctx context.Context, index int) error {
	items, err := cache.GetQueue(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(items) {
		return fmt.Errorf("播放位置越界: %d", index)
	}
	if err := cache.SetCurrentIndex(ctx, index); err != nil {
		return err
	}
	p.orch.OnPlaybackStarted()
	p.orch.OnQueueChanged(ctx)
	return nil
}

// ReportPlayback 记录播放状态。播放、暂停、跳转都算播放动作。
func (p *Player) ReportPlayback(ctx context.Context, state *model.PlaybackState) error {
	if err := cache.SetPlaybackState(ctx, state); err != nil {
		return err
	}
	p.orch.OnPlaybackStarted()
	return nil
}

// PlaybackState 返回最近一次上报的播放状态，没有时返回 nil
func (p *Player) PlaybackState(ctx context.Context) (*model.PlaybackState, error) {
	return cache.GetPlaybackState(ctx)
}

// ResolveStreamURL 为资产解析播放地址，优先节点缓存，失败回退源地址
func (p *Player) ResolveStreamURL(ctx context.Context, assetID string, timeout time.Duration) (string, error) {
	asset, err := p.findAsset(ctx, assetID)
	if err != nil {
		return "", err
	}
	return p.orch.WaitForCachedURL(ctx, asset, timeout), nil
}

// Hover 用户悬停曲目时发起高优先级预热
func (p *Player) Hover(ctx context.Context, assetID string) {
	asset, err := p.findAsset(ctx, assetID)
	if err != nil {
		logger.Debug("[Hover] 忽略未知资产", logger.String("assetId", assetID))
		return
	}
	p.orch.OnTrackHover(asset)
}

// ResolveAssets 把资产 ID 列表解析为预载候选，未知资产静默跳过
func (p *Player) ResolveAssets(ctx context.Context, assetIDs []string) []preload.Asset {
	assets := make([]preload.Asset, 0, len(assetIDs))
	for _, id := range assetIDs {
		asset, err := p.findAsset(ctx, id)
		if err != nil {
			continue
		}
		assets = append(assets, asset)
	}
	return assets
}

// Featured 返回精选曲目，目录服务未配置时返回空列表
func (p *Player) Featured(ctx context.Context) ([]model.CatalogEntry, error) {
	if !p.catalog.Enabled() {
		return []model.CatalogEntry{}, nil
	}
	return p.catalog.GetFeatured(ctx)
}

// Collections 返回目录合集，目录服务未配置时返回空列表
func (p *Player) Collections(ctx context.Context) ([]model.CatalogCollection, error) {
	if !p.catalog.Enabled() {
		return []model.CatalogCollection{}, nil
	}
	return p.catalog.GetCollections(ctx)
}

// Status 返回预载状态快照
func (p *Player) Status() preload.Status {
	return p.orch.Status()
}

// Close 释放预载资源并停止热更新监听
func (p *Player) Close() {
	if p.watcher != nil {
		p.watcher.Close()
	}
	p.orch.Close()
}

// QueueSnapshot 实现 preload.QueueProvider
func (p *Player) QueueSnapshot(ctx context.Context) (*preload.QueueSnapshot, error) {
	items, err := cache.GetQueue(ctx)
	if err != nil {
		return nil, err
	}
	index, err := cache.GetCurrentIndex(ctx)
	if err != nil {
		return nil, err
	}
	assets := make([]preload.Asset, 0, len(items))
	for _, item := range items {
		assets = append(assets, preload.Asset{ID: item.AssetID, URL: item.StreamURL})
	}
	return &preload.QueueSnapshot{Assets: assets, CurrentIndex: index}, nil
}

// FallbackURL 实现 preload.QueueProvider。曲库资产重新签发地址，
// 避免把已过期的预签名地址回传给播放端。
func (p *Player) FallbackURL(ctx context.Context, assetID string) (string, error) {
	if trackID, ok := model.ParseLibraryAssetID(assetID); ok {
		track, err := p.tracks.GetTrackByID(trackID)
		if err == nil && track != nil {
			if u, err := storage.PresignTrackURL(ctx, track.ObjectKey); err == nil {
				return u, nil
			}
		}
	}
	items, err := cache.GetQueue(ctx)
	if err != nil {
		return "", err
	}
	for _, item := range items {
		if item.AssetID == assetID {
			return item.StreamURL, nil
		}
	}
	return "", nil
}

// FeaturedAssets 实现 preload.FeaturedProvider
func (p *Player) FeaturedAssets(ctx context.Context, limit int) ([]preload.Asset, error) {
	if !p.catalog.Enabled() {
		return nil, nil
	}
	entries, err := p.catalog.GetFeatured(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	assets := make([]preload.Asset, 0, len(entries))
	for _, e := range entries {
		if e.StreamURL == "" {
			continue
		}
		assets = append(assets, preload.Asset{ID: e.AssetID, URL: e.StreamURL})
	}
	return assets, nil
}

// CollectionLeadAssets 实现 preload.FeaturedProvider。目录合集的
// 首曲优先，数量不足时用本地专辑首曲补齐。
func (p *Player) CollectionLeadAssets(ctx context.Context, limit int) ([]preload.Asset, error) {
	assets := make([]preload.Asset, 0, limit)
	if p.catalog.Enabled() {
		cols, err := p.catalog.GetCollections(ctx)
		if err != nil {
			logger.Warn("[CollectionLeadAssets] 获取目录合集失败", logger.ErrorField(err))
		} else {
			for _, c := range cols {
				if limit > 0 && len(assets) >= limit {
					return assets, nil
				}
				if c.Lead != nil && c.Lead.StreamURL != "" {
					assets = append(assets, preload.Asset{ID: c.Lead.AssetID, URL: c.Lead.StreamURL})
				}
			}
		}
	}
	if limit <= 0 || len(assets) >= limit {
		return assets, nil
	}

	albums, err := p.albums.ListRecentAlbums(ctx, limit-len(assets))
	if err != nil {
		logger.Warn("[CollectionLeadAssets] 获取本地专辑失败", logger.ErrorField(err))
		return assets, nil
	}
	for _, album := range albums {
		lead, err := p.albums.GetAlbumLeadTrack(ctx, album.ID)
		if err != nil || lead == nil {
			continue
		}
		streamURL, err := storage.PresignTrackURL(ctx, lead.ObjectKey)
		if err != nil {
			continue
		}
		assets = append(assets, preload.Asset{ID: lead.AssetID(), URL: streamURL})
		if len(assets) >= limit {
			break
		}
	}
	return assets, nil
}

// buildLibraryItems 批量构造曲库队列项，逐曲签发播放地址
func (p *Player) buildLibraryItems(ctx context.Context, trackIDs []int64, startPos int) ([]model.QueueItem, error) {
	if len(trackIDs) == 0 {
		return nil, nil
	}
	tracks, err := p.tracks.GetTracksByIDs(trackIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*model.Track, len(tracks))
	for _, t := range tracks {
		byID[t.ID] = t
	}

	items := make([]model.QueueItem, 0, len(trackIDs))
	pos := startPos
	for _, id := range trackIDs {
		t, ok := byID[id]
		if !ok {
			logger.Warn("[buildLibraryItems] 曲目不存在，跳过", logger.Int64("trackId", id))
			continue
		}
		streamURL, err := storage.PresignTrackURL(ctx, t.ObjectKey)
		if err != nil {
			return nil, fmt.Errorf("生成播放地址失败: %w", err)
		}
		items = append(items, *model.NewQueueItem(t, streamURL, pos))
		pos++
	}
	return items, nil
}

// findAsset 按队列、曲库、目录的顺序定位资产
func (p *Player) findAsset(ctx context.Context, assetID string) (preload.Asset, error) {
	if items, err := cache.GetQueue(ctx); err == nil {
		for _, item := range items {
			if item.AssetID == assetID {
				return preload.Asset{ID: item.AssetID, URL: item.StreamURL}, nil
			}
		}
	}
	if trackID, ok := model.ParseLibraryAssetID(assetID); ok {
		track, err := p.tracks.GetTrackByID(trackID)
		if err != nil {
			return preload.Asset{}, err
		}
		if track != nil {
			streamURL, err := storage.PresignTrackURL(ctx, track.ObjectKey)
			if err != nil {
				return preload.Asset{}, err
			}
			return preload.Asset{ID: assetID, URL: streamURL}, nil
		}
	}
	if p.catalog.Enabled() {
		entries, err := p.lookupCatalogEntries(ctx, []string{assetID})
		if err == nil && len(entries) == 1 {
			return preload.Asset{ID: assetID, URL: entries[0].StreamURL}, nil
		}
	}
	return preload.Asset{}, fmt.Errorf("未知资产: %s", assetID)
}

// lookupCatalogEntries 在目录的精选与合集首曲里查找资产
func (p *Player) lookupCatalogEntries(ctx context.Context, assetIDs []string) ([]model.CatalogEntry, error) {
	want := make(map[string]bool, len(assetIDs))
	for _, id := range assetIDs {
		want[id] = true
	}
	var found []model.CatalogEntry

	featured, err := p.catalog.GetFeatured(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range featured {
		if want[e.AssetID] {
			found = append(found, e)
			delete(want, e.AssetID)
		}
	}

	if len(want) > 0 {
		cols, err := p.catalog.GetCollections(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			if c.Lead != nil && want[c.Lead.AssetID] {
				found = append(found, *c.Lead)
				delete(want, c.Lead.AssetID)
			}
		}
	}

	for id := range want {
		logger.Warn("[lookupCatalogEntries] 目录中找不到资产", logger.String("assetId", id))
	}
	return found, nil
}
