package preload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	minimalTier = PreloadConfig{
		MaxCacheSize:              1,
		FeaturedPreloadLimit:      0,
		VisiblePreloadLimit:       1,
		QueuePreloadLookahead:     0,
		MaxConcurrentDownloads:    1,
		ReservedHighPrioritySlots: 1,
		PrefetchFeaturedOnLoad:    false,
		CollectionLookaheadLimit:  0,
	}
	conservativeTier = PreloadConfig{
		MaxCacheSize:              3,
		FeaturedPreloadLimit:      2,
		VisiblePreloadLimit:       2,
		QueuePreloadLookahead:     1,
		MaxConcurrentDownloads:    1,
		ReservedHighPrioritySlots: 1,
		PrefetchFeaturedOnLoad:    false,
		CollectionLookaheadLimit:  1,
	}
	standardTier = PreloadConfig{
		MaxCacheSize:              6,
		FeaturedPreloadLimit:      4,
		VisiblePreloadLimit:       4,
		QueuePreloadLookahead:     2,
		MaxConcurrentDownloads:    2,
		ReservedHighPrioritySlots: 1,
		PrefetchFeaturedOnLoad:    true,
		CollectionLookaheadLimit:  2,
	}
	aggressiveTier = PreloadConfig{
		MaxCacheSize:              8,
		FeaturedPreloadLimit:      6,
		VisiblePreloadLimit:       6,
		QueuePreloadLookahead:     3,
		MaxConcurrentDownloads:    3,
		ReservedHighPrioritySlots: 1,
		PrefetchFeaturedOnLoad:    true,
		CollectionLookaheadLimit:  3,
	}
)

func TestProfileResolverTiers(t *testing.T) {
	r := NewProfileResolver()

	tests := []struct {
		name    string
		signals NetworkSignals
		want    PreloadConfig
	}{
		{
			name:    "data saver wins over fast signals",
			signals: NetworkSignals{EffectiveType: Connection4G, SaveData: true, DownlinkMbps: 50, DeviceMemoryGB: 16},
			want:    minimalTier,
		},
		{
			name:    "slow-2g connection",
			signals: NetworkSignals{EffectiveType: ConnectionSlow2G, DeviceMemoryGB: 8},
			want:    conservativeTier,
		},
		{
			name:    "2g connection",
			signals: NetworkSignals{EffectiveType: Connection2G, DownlinkMbps: 0.3, DeviceMemoryGB: 8},
			want:    conservativeTier,
		},
		{
			name:    "low memory device on 4g",
			signals: NetworkSignals{EffectiveType: Connection4G, DownlinkMbps: 20, DeviceMemoryGB: 0.5},
			want:    conservativeTier,
		},
		{
			name:    "fast connection with ample memory",
			signals: NetworkSignals{EffectiveType: Connection4G, DownlinkMbps: 10, DeviceMemoryGB: 8},
			want:    aggressiveTier,
		},
		{
			name:    "4g below downlink threshold",
			signals: NetworkSignals{EffectiveType: Connection4G, DownlinkMbps: 2, DeviceMemoryGB: 8},
			want:    standardTier,
		},
		{
			name:    "4g with modest memory",
			signals: NetworkSignals{EffectiveType: Connection4G, DownlinkMbps: 10, DeviceMemoryGB: 2},
			want:    standardTier,
		},
		{
			name:    "3g connection",
			signals: NetworkSignals{EffectiveType: Connection3G, DownlinkMbps: 1.5, DeviceMemoryGB: 4},
			want:    standardTier,
		},
		{
			name:    "empty signals fall back to standard",
			signals: NetworkSignals{},
			want:    standardTier,
		},
		{
			name:    "unreported memory is not low memory",
			signals: NetworkSignals{EffectiveType: Connection3G, DeviceMemoryGB: 0},
			want:    standardTier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.signals))
		})
	}
}

// 同一输入多次解析必须得到相同结果，解析器不携带状态
func TestProfileResolverIsPure(t *testing.T) {
	r := NewProfileResolver()
	slow := NetworkSignals{EffectiveType: Connection2G}
	fast := NetworkSignals{EffectiveType: Connection4G, DownlinkMbps: 10, DeviceMemoryGB: 8}

	first := r.Resolve(slow)
	r.Resolve(fast)
	r.Resolve(NetworkSignals{SaveData: true})

	assert.Equal(t, first, r.Resolve(slow))
}

func TestProfileResolverCustomThresholds(t *testing.T) {
	r := &ProfileResolver{LowMemoryGB: 2, FastMinDownlink: 20, FastMinMemoryGB: 8}

	// 1.5GB 在自定义阈值下视为低内存设备
	assert.Equal(t, conservativeTier, r.Resolve(NetworkSignals{EffectiveType: Connection4G, DownlinkMbps: 30, DeviceMemoryGB: 1.5}))
	// 下行带宽未达到提高后的门槛
	assert.Equal(t, standardTier, r.Resolve(NetworkSignals{EffectiveType: Connection4G, DownlinkMbps: 10, DeviceMemoryGB: 16}))
	assert.Equal(t, aggressiveTier, r.Resolve(NetworkSignals{EffectiveType: Connection4G, DownlinkMbps: 25, DeviceMemoryGB: 16}))
}
