package preload

import (
	"sync"
	"time"

	"CineFM/logger"
)

// failureRecord 单个资产的失败记录
type failureRecord struct {
	lastFailureAt time.Time
	attempts      int
}

// FailureTracker 记录资产的下载失败，实施冷却窗口和重试上限，
// 避免对一个持续失败的资产打紧密重试循环。
// 取消永远不计入失败。
type FailureTracker struct {
	mu          sync.Mutex
	cooldown    time.Duration
	maxAttempts int
	records     map[string]*failureRecord
	now         func() time.Time // 测试中可替换
}

// NewFailureTracker 创建失败跟踪器
func NewFailureTracker(cooldown time.Duration, maxAttempts int) *FailureTracker {
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	return &FailureTracker{
		cooldown:    cooldown,
		maxAttempts: maxAttempts,
		records:     make(map[string]*failureRecord),
		now:         time.Now,
	}
}

// Reconfigure 热更新冷却窗口和重试上限
func (t *FailureTracker) Reconfigure(cooldown time.Duration, maxAttempts int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cooldown > 0 {
		t.cooldown = cooldown
	}
	if maxAttempts > 0 {
		t.maxAttempts = maxAttempts
	}
}

// IsEligible 判断资产当前是否允许调度下载。
// 冷却窗口已过的记录视为不存在并顺手清除。
func (t *FailureTracker) IsEligible(assetID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[assetID]
	if !ok {
		return true
	}
	if t.now().Sub(rec.lastFailureAt) >= t.cooldown {
		delete(t.records, assetID)
		return true
	}
	return rec.attempts < t.maxAttempts
}

// RecordFailure 记录一次非取消失败
func (t *FailureTracker) RecordFailure(assetID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec, ok := t.records[assetID]
	if !ok || now.Sub(rec.lastFailureAt) >= t.cooldown {
		t.records[assetID] = &failureRecord{lastFailureAt: now, attempts: 1}
		return
	}
	rec.attempts++
	rec.lastFailureAt = now

	if rec.attempts >= t.maxAttempts {
		logger.Debug("资产进入失败冷却",
			logger.String("assetId", assetID),
			logger.Int("attempts", rec.attempts),
			logger.Duration("cooldown", t.cooldown))
	}
}

// RecordSuccess 成功后清除失败记录
func (t *FailureTracker) RecordSuccess(assetID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, assetID)
}

// Clear 显式清除某个资产的失败记录
func (t *FailureTracker) Clear(assetID string) {
	t.RecordSuccess(assetID)
}

// Size 返回当前存活的失败记录数（过期记录顺手清除）
func (t *FailureTracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for id, rec := range t.records {
		if now.Sub(rec.lastFailureAt) >= t.cooldown {
			delete(t.records, id)
		}
	}
	return len(t.records)
}
