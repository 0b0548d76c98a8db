package util

import (
	"sync"

	"VocalForge/pkg/logger"

	"go.uber.org/zap"
)

// SigHandler 信号处理函数，sender 为触发对象
type SigHandler func(sender any, params ...any)

// Signals 进程内的简单事件总线
type Signals struct {
	mu       sync.RWMutex
	handlers map[string][]SigHandler
}

var globalSignals = NewSignals()

func NewSignals() *Signals {
	return &Signals{handlers: make(map[string][]SigHandler)}
}

// Sig 返回全局事件总线
func Sig() *Signals { return globalSignals }

func (s *Signals) Connect(event string, handler SigHandler) {
	if handler == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], handler)
}

// Emit 同步调用所有处理函数；处理函数内的 panic 不会影响其它监听者
func (s *Signals) Emit(event string, sender any, params ...any) {
	s.mu.RLock()
	handlers := append([]SigHandler(nil), s.handlers[event]...)
	s.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("signal handler panic",
						zap.String("event", event),
						zap.Any("panic", r),
						zap.Stack("stack"))
				}
			}()
			h(sender, params...)
		}()
	}
}

func (s *Signals) Clear(events ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(events) == 0 {
		s.handlers = make(map[string][]SigHandler)
		return
	}
	for _, e := range events {
		delete(s.handlers, e)
	}
}
