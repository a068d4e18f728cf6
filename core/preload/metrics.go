package preload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus 指标。包级注册一次，多个编排器实例共享计数。
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinefm_preload_cache_hits_total",
		Help: "资产缓存命中总数",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinefm_preload_cache_misses_total",
		Help: "资产缓存未命中总数",
	})
	cacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinefm_preload_cache_evictions_total",
		Help: "资产缓存淘汰总数",
	})
	cacheEntriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cinefm_preload_cache_entries",
		Help: "资产缓存当前条目数",
	})
	downloadsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinefm_preload_downloads_started_total",
		Help: "按优先级统计的下载启动总数",
	}, []string{"priority"})
	downloadsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinefm_preload_downloads_settled_total",
		Help: "按结果统计的下载完结总数",
	}, []string{"outcome"})
	downloadsCoalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinefm_preload_downloads_coalesced_total",
		Help: "合并到已有下载的请求总数",
	})
	activeDownloadsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cinefm_preload_active_downloads",
		Help: "当前执行中的下载数",
	})
	queuedDownloadsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cinefm_preload_queued_downloads",
		Help: "低优先级等待队列长度",
	})
	resolveTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinefm_preload_resolve_timeouts_total",
		Help: "waitForCachedUrl 超时回退总数",
	})
	reclaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinefm_preload_reclaims_total",
		Help: "页面隐藏触发的内存回收总数",
	})
)

const (
	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
	outcomeCancelled = "cancelled"
)
