package lifecycle

import (
	"context"
	"sync"
	"time"

	"VocalForge/internal/models"
	apperrors "VocalForge/pkg/errors"
	"VocalForge/pkg/logger"
	"VocalForge/pkg/scheduler"
	"VocalForge/pkg/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CompletionDelay 模拟生成耗时，与时长、提示词无关
const CompletionDelay = 5 * time.Second

// Tracker 为每条 Processing 记录安排一次到 Completed 的状态迁移
type Tracker struct {
	db    *gorm.DB
	sched *scheduler.Scheduler
	sig   *util.Signals
	delay time.Duration
	now   func() time.Time

	mu      sync.Mutex
	handles map[string]*Handle
}

type Option func(*Tracker)

// WithDelay 替换默认延迟，测试使用
func WithDelay(d time.Duration) Option {
	return func(t *Tracker) { t.delay = d }
}

func WithSignals(sig *util.Signals) Option {
	return func(t *Tracker) { t.sig = sig }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func New(db *gorm.DB, opts ...Option) *Tracker {
	t := &Tracker{
		db:      db,
		sched:   scheduler.New(),
		sig:     util.Sig(),
		delay:   CompletionDelay,
		now:     time.Now,
		handles: make(map[string]*Handle),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Handle 一次待执行的状态迁移
type Handle struct {
	ID      string
	timer   *scheduler.Timer
	tracker *Tracker
}

// Cancel 取消尚未触发的迁移
func (h *Handle) Cancel() bool {
	ok := h.timer.Cancel()
	h.tracker.forget(h)
	return ok
}

// Done 迁移执行完毕或被取消后关闭
func (h *Handle) Done() <-chan struct{} { return h.timer.Done() }

func (h *Handle) Fired() bool { return h.timer.Fired() }

// Delay 当前使用的延迟
func (t *Tracker) Delay() time.Duration { return t.delay }

// Submit 记录必须已持久化且处于 Processing
func (t *Tracker) Submit(g *models.Generation) (*Handle, error) {
	if err := validate(g); err != nil {
		return nil, err
	}
	return t.schedule(g, t.delay), nil
}

// Resume 服务启动时重新安排仍在 Processing 的记录，剩余时间按 createdAt 计算
func (t *Tracker) Resume(records []models.Generation) int {
	n := 0
	for i := range records {
		g := &records[i]
		if validate(g) != nil {
			continue
		}
		remaining := g.CreatedAt.Add(t.delay).Sub(t.now())
		if remaining < 0 {
			remaining = 0
		}
		t.schedule(g, remaining)
		n++
	}
	return n
}

// Cancel 按记录 id 取消
func (t *Tracker) Cancel(id string) bool {
	t.mu.Lock()
	h, ok := t.handles[id]
	t.mu.Unlock()
	if !ok {
		return false
	}
	return h.Cancel()
}

// Pending 尚未触发的迁移数量
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}

// Stop 取消全部未触发的迁移并等待执行中的迁移结束
func (t *Tracker) Stop() {
	t.sched.Stop()
	t.mu.Lock()
	t.handles = make(map[string]*Handle)
	t.mu.Unlock()
}

func validate(g *models.Generation) error {
	if g == nil || g.ID == "" {
		return apperrors.ErrNotFound
	}
	if g.Status != models.GenerationProcessing {
		return apperrors.ErrInvalidStatus.WithContext("status", string(g.Status))
	}
	return nil
}

func (t *Tracker) schedule(g *models.Generation, d time.Duration) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.handles[g.ID]; ok {
		return h
	}
	record := *g
	h := &Handle{ID: g.ID, tracker: t}
	h.timer = t.sched.OnceAfter(d, scheduler.FuncJob(func(ctx context.Context) {
		t.complete(h, &record)
	}))
	t.handles[g.ID] = h
	return h
}

func (t *Tracker) forget(h *Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.handles[h.ID]; ok && cur == h {
		delete(t.handles, h.ID)
	}
}

func (t *Tracker) complete(h *Handle, record *models.Generation) {
	defer t.forget(h)

	changed, err := models.CompleteGeneration(t.db, record.ID)
	if err != nil {
		logger.Error("complete generation failed", zap.String("generation_id", record.ID), zap.Error(err))
		return
	}
	if !changed {
		// 已删除或已是终态
		logger.Debug("generation transition skipped", zap.String("generation_id", record.ID))
		return
	}
	record.Status = models.GenerationCompleted
	record.UpdatedAt = t.now().UTC()
	logger.Info("generation completed", zap.String("generation_id", record.ID), zap.String("user_id", record.UserID))
	t.sig.Emit(models.SigGenerationCompleted, record)
}
