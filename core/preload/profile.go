package preload

// 连接质量档位，取值与浏览器 Network Information API 对齐
const (
	ConnectionSlow2G  = "slow-2g"
	Connection2G      = "2g"
	Connection3G      = "3g"
	Connection4G      = "4g"
	ConnectionUnknown = "unknown"
)

// NetworkSignals 播放端上报的网络与设备信号。
// 取不到的字段保持零值，解析时按未知处理。
type NetworkSignals struct {
	EffectiveType  string  `json:"effectiveType"`
	SaveData       bool    `json:"saveData"`
	DownlinkMbps   float64 `json:"downlinkMbps"`
	DeviceMemoryGB float64 `json:"deviceMemoryGB"`
}

// PreloadConfig 预加载策略配置。
// 网络条件变化时整体重算替换，从不逐字段修改。
type PreloadConfig struct {
	MaxCacheSize              int  `json:"maxCacheSize"`
	FeaturedPreloadLimit      int  `json:"featuredPreloadLimit"`
	VisiblePreloadLimit       int  `json:"visiblePreloadLimit"`
	QueuePreloadLookahead     int  `json:"queuePreloadLookahead"`
	MaxConcurrentDownloads    int  `json:"maxConcurrentDownloads"`
	ReservedHighPrioritySlots int  `json:"reservedHighPrioritySlots"`
	PrefetchFeaturedOnLoad    bool `json:"prefetchFeaturedOnLoad"`
	CollectionLookaheadLimit  int  `json:"collectionLookaheadLimit"`
}

// ProfileResolver 把网络信号解析为预加载策略。
// Resolve 是纯函数，阈值是可调的默认值而非契约。
type ProfileResolver struct {
	LowMemoryGB     float64 // 低于此内存视为低内存设备
	FastMinDownlink float64 // 高速档位要求的最低下行带宽 (Mbps)
	FastMinMemoryGB float64 // 高速档位要求的最低设备内存
}

// NewProfileResolver 返回使用默认阈值的解析器
func NewProfileResolver() *ProfileResolver {
	return &ProfileResolver{
		LowMemoryGB:     1,
		FastMinDownlink: 5,
		FastMinMemoryGB: 4,
	}
}

// Resolve 根据信号推导预加载策略
func (r *ProfileResolver) Resolve(sig NetworkSignals) PreloadConfig {
	if sig.SaveData {
		return PreloadConfig{
			MaxCacheSize:              1,
			FeaturedPreloadLimit:      0,
			VisiblePreloadLimit:       1,
			QueuePreloadLookahead:     0,
			MaxConcurrentDownloads:    1,
			ReservedHighPrioritySlots: 1,
			PrefetchFeaturedOnLoad:    false,
			CollectionLookaheadLimit:  0,
		}
	}

	slowConnection := sig.EffectiveType == ConnectionSlow2G || sig.EffectiveType == Connection2G
	lowMemory := sig.DeviceMemoryGB > 0 && sig.DeviceMemoryGB < r.LowMemoryGB
	if slowConnection || lowMemory {
		return PreloadConfig{
			MaxCacheSize:              3,
			FeaturedPreloadLimit:      2,
			VisiblePreloadLimit:       2,
			QueuePreloadLookahead:     1,
			MaxConcurrentDownloads:    1,
			ReservedHighPrioritySlots: 1,
			PrefetchFeaturedOnLoad:    false,
			CollectionLookaheadLimit:  1,
		}
	}

	fast := sig.EffectiveType == Connection4G &&
		sig.DownlinkMbps >= r.FastMinDownlink &&
		sig.DeviceMemoryGB >= r.FastMinMemoryGB
	if fast {
		return PreloadConfig{
			MaxCacheSize:              8,
			FeaturedPreloadLimit:      6,
			VisiblePreloadLimit:       6,
			QueuePreloadLookahead:     3,
			MaxConcurrentDownloads:    3,
			ReservedHighPrioritySlots: 1,
			PrefetchFeaturedOnLoad:    true,
			CollectionLookaheadLimit:  3,
		}
	}

	return PreloadConfig{
		MaxCacheSize:              6,
		FeaturedPreloadLimit:      4,
		VisiblePreloadLimit:       4,
		QueuePreloadLookahead:     2,
		MaxConcurrentDownloads:    2,
		ReservedHighPrioritySlots: 1,
		PrefetchFeaturedOnLoad:    true,
		CollectionLookaheadLimit:  2,
	}
}
