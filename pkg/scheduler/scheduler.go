package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type Job interface{ Run(ctx context.Context) }

type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }

// Scheduler 进程内定时器，Stop 后不再触发任何任务
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{ctx: ctx, cancel: cancel}
}

// Stop 取消所有未触发的任务并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) Every(d time.Duration, job Job) {
	s.wg.Add(1)
	go s.loopEvery(d, job)
}

// Timer 一次性任务句柄
type Timer struct {
	state atomic.Int32
	stop  chan struct{}
	done  chan struct{}
}

const (
	timerPending int32 = iota
	timerFired
	timerCancelled
)

// Cancel 在任务触发前取消，返回 true 表示取消成功
func (t *Timer) Cancel() bool {
	if t.state.CompareAndSwap(timerPending, timerCancelled) {
		close(t.stop)
		return true
	}
	return false
}

// Fired 任务是否已经开始执行
func (t *Timer) Fired() bool { return t.state.Load() == timerFired }

// Done 在任务执行完毕、被取消或调度器停止后关闭
func (t *Timer) Done() <-chan struct{} { return t.done }

// OnceAfter d 之后执行一次 job
func (s *Scheduler) OnceAfter(d time.Duration, job Job) *Timer {
	t := &Timer{stop: make(chan struct{}), done: make(chan struct{})}
	s.wg.Add(1)
	go s.onceAfter(d, job, t)
	return t
}

func (s *Scheduler) loopEvery(d time.Duration, job Job) {
	defer s.wg.Done()
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			job.Run(s.ctx)
		}
	}
}

func (s *Scheduler) onceAfter(d time.Duration, job Job, t *Timer) {
	defer s.wg.Done()
	defer close(t.done)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		t.state.CompareAndSwap(timerPending, timerCancelled)
		return
	case <-t.stop:
		return
	case <-timer.C:
		if t.state.CompareAndSwap(timerPending, timerFired) {
			job.Run(s.ctx)
		}
	}
}
