package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// MonitorConfig 监控配置
type MonitorConfig struct {
	Enabled        bool
	SystemInterval time.Duration
	SlowQuery      time.Duration
	DiskPath       string
}

// DefaultMonitorConfig 默认监控配置
func DefaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		Enabled:        true,
		SystemInterval: 30 * time.Second,
		SlowQuery:      200 * time.Millisecond,
		DiskPath:       "/",
	}
}

// Monitor 组合 Prometheus 指标与系统采样
type Monitor struct {
	config  *MonitorConfig
	metrics *Metrics
	system  *SystemMonitor

	mu     sync.RWMutex
	latest *SystemStats
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor 创建监控器
func NewMonitor(config *MonitorConfig) *Monitor {
	if config == nil {
		config = DefaultMonitorConfig()
	}
	return &Monitor{
		config:  config,
		metrics: NewMetrics(),
		system:  NewSystemMonitor(config.DiskPath),
	}
}

// Start 按间隔采集系统信息
func (m *Monitor) Start() {
	if !m.config.Enabled || m.config.SystemInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		m.sample(ctx)
		t := time.NewTicker(m.config.SystemInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.sample(ctx)
			}
		}
	}()
}

// Stop 停止采集
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
		m.cancel = nil
	}
}

func (m *Monitor) sample(ctx context.Context) *SystemStats {
	s := m.system.Collect(ctx)
	m.metrics.SetSystemStats(s)
	m.mu.Lock()
	m.latest = s
	m.mu.Unlock()
	return s
}

// GetMetrics 获取指标管理器
func (m *Monitor) GetMetrics() *Metrics { return m.metrics }

// IsEnabled 是否启用
func (m *Monitor) IsEnabled() bool { return m.config.Enabled }

// GetLatestSystemStats 最近一次采样，未采样时立即采集
func (m *Monitor) GetLatestSystemStats(ctx context.Context) *SystemStats {
	m.mu.RLock()
	s := m.latest
	m.mu.RUnlock()
	if s != nil {
		return s
	}
	return m.sample(ctx)
}

// RegisterRoutes 注册 /metrics 与 /system
func (m *Monitor) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/metrics", gin.WrapH(m.metrics.Handler()))
	r.GET("/system", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "msg": "ok", "data": m.GetLatestSystemStats(c.Request.Context())})
	})
}
