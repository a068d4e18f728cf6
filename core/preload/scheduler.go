package preload

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"CineFM/logger"
)

// Priority 表示下载优先级。
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "low"
}

// FetchFunc 执行一次资产下载。写缓存与失败记录由实现方完成。
type FetchFunc func(ctx context.Context) error

// Download 是一次下载的完结结果，同一资产的并发请求共享同一个实例。
type Download struct {
	AssetID  string
	Priority Priority

	done chan struct{}
	err  error
}

func newDownload(assetID string, priority Priority) *Download {
	return &Download{AssetID: assetID, Priority: priority, done: make(chan struct{})}
}

// Wait 阻塞到下载完结或 ctx 结束，返回下载错误或 ctx.Err()。
func (d *Download) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done 返回完结信号通道。
func (d *Download) Done() <-chan struct{} { return d.done }

// Err 返回完结后的错误，未完结时为 nil。
func (d *Download) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

type downloadTask struct {
	assetID  string
	priority Priority
	fetch    FetchFunc
	dl       *Download
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	queueEl  *list.Element
}

// Scheduler 管理并发下载：同资产请求合并为单飞，高优先级总是立即
// 执行，低优先级受槽位限制，满载时按 FIFO 排队等待。
type Scheduler struct {
	mu            sync.Mutex
	maxConcurrent int
	reservedHigh  int
	active        int
	inflight      map[string]*downloadTask
	waitQueue     *list.List
	baseCtx       context.Context
	baseCancel    context.CancelFunc
	closed        bool
}

// NewScheduler 创建调度器。reservedHigh 个槽位只留给高优先级任务。
func NewScheduler(maxConcurrent, reservedHigh int) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if reservedHigh < 0 {
		reservedHigh = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		maxConcurrent: maxConcurrent,
		reservedHigh:  reservedHigh,
		inflight:      make(map[string]*downloadTask),
		waitQueue:     list.New(),
		baseCtx:       ctx,
		baseCancel:    cancel,
	}
}

// Request 发起或合并一次下载。命中已有任务时共享其结果；高优先级
// 命中低优先级任务会提升优先级，排队中的任务被立即启动。
func (s *Scheduler) Request(assetID string, priority Priority, fetch FetchFunc) *Download {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		dl := newDownload(assetID, priority)
		dl.err = context.Canceled
		close(dl.done)
		return dl
	}

	if t, ok := s.inflight[assetID]; ok {
		downloadsCoalescedTotal.Inc()
		if priority == PriorityHigh && t.priority == PriorityLow {
			t.priority = PriorityHigh
			t.dl.Priority = PriorityHigh
			if !t.started {
				s.promoteLocked(t)
			}
		}
		return t.dl
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	t := &downloadTask{
		assetID:  assetID,
		priority: priority,
		fetch:    fetch,
		dl:       newDownload(assetID, priority),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.inflight[assetID] = t

	if priority == PriorityHigh || s.active < s.maxConcurrent-s.reservedHigh {
		s.startLocked(t)
	} else {
		t.queueEl = s.waitQueue.PushBack(t)
		queuedDownloadsGauge.Set(float64(s.waitQueue.Len()))
		logger.Debug("下载槽位已满，任务进入等待队列",
			logger.String("assetId", assetID),
			logger.Int("queued", s.waitQueue.Len()))
	}
	return t.dl
}

// Cancel 取消指定资产的下载。排队中的任务直接以取消完结且不占用
// 槽位计数，执行中的任务通过 ctx 终止，由执行协程完结。
func (s *Scheduler) Cancel(assetID string) bool {
	s.mu.Lock()
	t, ok := s.inflight[assetID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if !t.started {
		delete(s.inflight, assetID)
		if t.queueEl != nil {
			s.waitQueue.Remove(t.queueEl)
			t.queueEl = nil
			queuedDownloadsGauge.Set(float64(s.waitQueue.Len()))
		}
		s.mu.Unlock()
		t.cancel()
		t.dl.err = context.Canceled
		close(t.dl.done)
		downloadsSettledTotal.WithLabelValues(outcomeCancelled).Inc()
		return true
	}
	s.mu.Unlock()
	t.cancel()
	return true
}

// CancelLowPriority 取消全部低优先级下载，含排队与执行中的，
// 返回发出取消的任务数。
func (s *Scheduler) CancelLowPriority() int {
	s.mu.Lock()
	var victims []string
	for id, t := range s.inflight {
		if t.priority == PriorityLow {
			victims = append(victims, id)
		}
	}
	s.mu.Unlock()

	n := 0
	for _, id := range victims {
		if s.Cancel(id) {
			n++
		}
	}
	return n
}

// Resize 更新并发上限与高优先级预留，随后尽可能启动排队任务。
func (s *Scheduler) Resize(maxConcurrent, reservedHigh int) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if reservedHigh < 0 {
		reservedHigh = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxConcurrent = maxConcurrent
	s.reservedHigh = reservedHigh
	s.pumpLocked()
}

// Counts 返回当前执行中与排队中的任务数。
func (s *Scheduler) Counts() (active, queued int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.waitQueue.Len()
}

// InFlight 报告资产是否有未完结的下载。
func (s *Scheduler) InFlight(assetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[assetID]
	return ok
}

// Close 取消全部任务并拒绝后续请求。
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var queued []*downloadTask
	for el := s.waitQueue.Front(); el != nil; el = el.Next() {
		queued = append(queued, el.Value.(*downloadTask))
	}
	s.waitQueue.Init()
	queuedDownloadsGauge.Set(0)
	for _, t := range queued {
		delete(s.inflight, t.assetID)
	}
	s.mu.Unlock()

	s.baseCancel()
	for _, t := range queued {
		t.cancel()
		t.dl.err = context.Canceled
		close(t.dl.done)
		downloadsSettledTotal.WithLabelValues(outcomeCancelled).Inc()
	}
}

// startLocked 启动任务执行协程。调用方持锁。
func (s *Scheduler) startLocked(t *downloadTask) {
	t.started = true
	s.active++
	activeDownloadsGauge.Set(float64(s.active))
	downloadsStartedTotal.WithLabelValues(t.priority.String()).Inc()
	go s.run(t)
}

// promoteLocked 把排队中的任务移出等待队列并立即启动。调用方持锁。
func (s *Scheduler) promoteLocked(t *downloadTask) {
	if t.queueEl != nil {
		s.waitQueue.Remove(t.queueEl)
		t.queueEl = nil
		queuedDownloadsGauge.Set(float64(s.waitQueue.Len()))
	}
	s.startLocked(t)
}

func (s *Scheduler) run(t *downloadTask) {
	err := t.fetch(t.ctx)
	s.settle(t, err)
}

// settle 完结一个已启动的任务：释放槽位、唤醒等待队列，最后关闭
// done 通知全部等待方。
func (s *Scheduler) settle(t *downloadTask, err error) {
	s.mu.Lock()
	if s.inflight[t.assetID] == t {
		delete(s.inflight, t.assetID)
	}
	s.active--
	activeDownloadsGauge.Set(float64(s.active))
	s.pumpLocked()
	s.mu.Unlock()

	t.cancel()
	t.dl.err = err
	close(t.dl.done)

	switch {
	case err == nil:
		downloadsSettledTotal.WithLabelValues(outcomeSuccess).Inc()
	case errors.Is(err, context.Canceled):
		downloadsSettledTotal.WithLabelValues(outcomeCancelled).Inc()
	default:
		downloadsSettledTotal.WithLabelValues(outcomeFailure).Inc()
		logger.Warn("资产下载失败",
			logger.String("assetId", t.assetID),
			logger.ErrorField(err))
	}
}

// pumpLocked 在低优先级槽位可用时按 FIFO 启动排队任务。调用方持锁。
func (s *Scheduler) pumpLocked() {
	if s.closed {
		return
	}
	for s.waitQueue.Len() > 0 && s.active < s.maxConcurrent-s.reservedHigh {
		el := s.waitQueue.Front()
		t := el.Value.(*downloadTask)
		s.waitQueue.Remove(el)
		t.queueEl = nil
		s.startLocked(t)
	}
	queuedDownloadsGauge.Set(float64(s.waitQueue.Len()))
}
