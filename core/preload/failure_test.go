package preload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestTracker(cooldown time.Duration, maxAttempts int) (*FailureTracker, *time.Time) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ft := NewFailureTracker(cooldown, maxAttempts)
	ft.now = func() time.Time { return current }
	return ft, &current
}

func TestFailureTrackerCooldownAndAttempts(t *testing.T) {
	ft, current := newTestTracker(5*time.Minute, 2)

	assert.True(t, ft.IsEligible("a"))

	// 第一次失败后仍允许重试
	ft.RecordFailure("a")
	assert.True(t, ft.IsEligible("a"))

	// 达到重试上限进入冷却
	ft.RecordFailure("a")
	assert.False(t, ft.IsEligible("a"))

	// 冷却窗口过后恢复，过期记录顺手清除
	*current = current.Add(5*time.Minute + time.Second)
	assert.True(t, ft.IsEligible("a"))
	assert.Equal(t, 0, ft.Size())
}

func TestFailureTrackerExpiredRecordRestamps(t *testing.T) {
	ft, current := newTestTracker(5*time.Minute, 2)

	ft.RecordFailure("a")
	ft.RecordFailure("a")
	assert.False(t, ft.IsEligible("a"))

	// 过期后的失败从第一次重新计数
	*current = current.Add(6 * time.Minute)
	ft.RecordFailure("a")
	assert.True(t, ft.IsEligible("a"))
	assert.Equal(t, 1, ft.Size())
}

func TestFailureTrackerSuccessClears(t *testing.T) {
	ft, _ := newTestTracker(5*time.Minute, 2)

	ft.RecordFailure("a")
	ft.RecordFailure("a")
	assert.False(t, ft.IsEligible("a"))

	ft.RecordSuccess("a")
	assert.True(t, ft.IsEligible("a"))
	assert.Equal(t, 0, ft.Size())
}

func TestFailureTrackerTracksAssetsIndependently(t *testing.T) {
	ft, _ := newTestTracker(5*time.Minute, 2)

	ft.RecordFailure("a")
	ft.RecordFailure("a")
	ft.RecordFailure("b")

	assert.False(t, ft.IsEligible("a"))
	assert.True(t, ft.IsEligible("b"))
	assert.True(t, ft.IsEligible("c"))
	assert.Equal(t, 2, ft.Size())
}

func TestFailureTrackerLazyPurge(t *testing.T) {
	ft, current := newTestTracker(5*time.Minute, 2)

	ft.RecordFailure("a")
	ft.RecordFailure("b")
	assert.Equal(t, 2, ft.Size())

	*current = current.Add(10 * time.Minute)
	assert.Equal(t, 0, ft.Size())
}

func TestFailureTrackerReconfigure(t *testing.T) {
	ft, _ := newTestTracker(5*time.Minute, 2)
	ft.Reconfigure(time.Minute, 5)

	for i := 0; i < 4; i++ {
		ft.RecordFailure("a")
	}
	assert.True(t, ft.IsEligible("a"))

	ft.RecordFailure("a")
	assert.False(t, ft.IsEligible("a"))
}

func TestFailureTrackerDefaultsOnInvalidArgs(t *testing.T) {
	ft := NewFailureTracker(0, 0)
	assert.Equal(t, 5*time.Minute, ft.cooldown)
	assert.Equal(t, 2, ft.maxAttempts)
}
