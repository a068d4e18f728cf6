package preload

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingFetch 返回在启动时向 started 发信号、阻塞到 release 关闭
// 的抓取函数。release 为 nil 时只能被 ctx 终止。
func blockingFetch(started chan<- string, id string, release <-chan struct{}) FetchFunc {
	return func(ctx context.Context) error {
		if started != nil {
			started <- id
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func waitSettled(t *testing.T, dl *Download) error {
	t.Helper()
	select {
	case <-dl.Done():
		return dl.Err()
	case <-time.After(2 * time.Second):
		t.Fatal("下载未在限时内完结")
		return nil
	}
}

func TestSchedulerCoalescesConcurrentRequests(t *testing.T) {
	s := NewScheduler(4, 1)
	defer s.Close()

	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	dl1 := s.Request("a", PriorityLow, fetch)
	dl2 := s.Request("a", PriorityHigh, fetch)
	require.Same(t, dl1, dl2)

	close(release)
	assert.NoError(t, waitSettled(t, dl1))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, s.InFlight("a"))
}

func TestSchedulerLowPriorityQueuesWhenSlotsFull(t *testing.T) {
	s := NewScheduler(2, 1) // 低优先级只有一个槽位
	defer s.Close()

	started := make(chan string, 8)
	releaseA := make(chan struct{})
	releaseB := make(chan struct{})

	dlA := s.Request("a", PriorityLow, blockingFetch(started, "a", releaseA))
	require.Equal(t, "a", <-started)

	dlB := s.Request("b", PriorityLow, blockingFetch(started, "b", releaseB))
	active, queued := s.Counts()
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, queued)

	// 槽位释放后按 FIFO 启动排队任务
	close(releaseA)
	require.NoError(t, waitSettled(t, dlA))
	require.Equal(t, "b", <-started)

	close(releaseB)
	require.NoError(t, waitSettled(t, dlB))
	active, queued = s.Counts()
	assert.Equal(t, 0, active)
	assert.Equal(t, 0, queued)
}

func TestSchedulerHighPriorityBypassesSlotLimit(t *testing.T) {
	s := NewScheduler(1, 1) // 低优先级槽位为零
	defer s.Close()

	started := make(chan string, 8)
	release := make(chan struct{})

	dlLow := s.Request("low", PriorityLow, blockingFetch(started, "low", release))
	active, queued := s.Counts()
	assert.Equal(t, 0, active)
	assert.Equal(t, 1, queued)

	// 高优先级无视槽位限制立即执行
	dlHigh := s.Request("high", PriorityHigh, blockingFetch(started, "high", release))
	require.Equal(t, "high", <-started)
	active, _ = s.Counts()
	assert.Equal(t, 1, active)

	// 扩容后排队任务被启动
	s.Resize(2, 0)
	require.Equal(t, "low", <-started)

	close(release)
	require.NoError(t, waitSettled(t, dlHigh))
	require.NoError(t, waitSettled(t, dlLow))
}

func TestSchedulerPromotesQueuedTaskOnHighRequest(t *testing.T) {
	s := NewScheduler(1, 1)
	defer s.Close()

	started := make(chan string, 4)
	release := make(chan struct{})

	dl1 := s.Request("a", PriorityLow, blockingFetch(started, "a", release))
	_, queued := s.Counts()
	require.Equal(t, 1, queued)

	dl2 := s.Request("a", PriorityHigh, func(ctx context.Context) error {
		t.Error("合并请求不应触发第二次抓取")
		return nil
	})
	require.Same(t, dl1, dl2)

	// 提升优先级后立即启动
	require.Equal(t, "a", <-started)
	assert.Equal(t, PriorityHigh, dl1.Priority)

	close(release)
	require.NoError(t, waitSettled(t, dl1))
}

func TestSchedulerCancelQueuedSettlesAsCancelled(t *testing.T) {
	s := NewScheduler(1, 1)
	defer s.Close()

	dl := s.Request("a", PriorityLow, func(ctx context.Context) error {
		t.Error("被取消的排队任务不应执行")
		return nil
	})

	require.True(t, s.Cancel("a"))
	assert.ErrorIs(t, waitSettled(t, dl), context.Canceled)

	active, queued := s.Counts()
	assert.Equal(t, 0, active)
	assert.Equal(t, 0, queued)
	assert.False(t, s.InFlight("a"))

	// 取消不存在的资产是空操作
	assert.False(t, s.Cancel("missing"))
}

func TestSchedulerCancelRunningTask(t *testing.T) {
	s := NewScheduler(2, 0)
	defer s.Close()

	started := make(chan string, 1)
	dl := s.Request("a", PriorityLow, blockingFetch(started, "a", nil))
	require.Equal(t, "a", <-started)

	require.True(t, s.Cancel("a"))
	assert.ErrorIs(t, waitSettled(t, dl), context.Canceled)

	active, _ := s.Counts()
	assert.Equal(t, 0, active)
}

func TestSchedulerCloseSettlesEverything(t *testing.T) {
	s := NewScheduler(1, 1)

	started := make(chan string, 2)
	dlHigh := s.Request("h", PriorityHigh, blockingFetch(started, "h", nil))
	require.Equal(t, "h", <-started)

	dlLow := s.Request("l", PriorityLow, func(ctx context.Context) error {
		t.Error("排队任务不应在 Close 后执行")
		return nil
	})

	s.Close()
	assert.ErrorIs(t, waitSettled(t, dlLow), context.Canceled)
	assert.ErrorIs(t, waitSettled(t, dlHigh), context.Canceled)

	// 关闭后的请求直接以取消完结
	dl := s.Request("x", PriorityHigh, blockingFetch(nil, "x", nil))
	assert.ErrorIs(t, dl.Err(), context.Canceled)
}

func TestDownloadWaitHonorsCallerContext(t *testing.T) {
	s := NewScheduler(2, 0)
	defer s.Close()

	dl := s.Request("a", PriorityLow, blockingFetch(nil, "a", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, dl.Wait(ctx), context.DeadlineExceeded)

	// 等待方放弃不影响下载本身
	assert.True(t, s.InFlight("a"))
}
