package middleware

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "VocalForge/pkg/errors"
	"VocalForge/pkg/logger"
	"VocalForge/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// RateLimiterConfig 限流配置
//
// Rate: "100-M"、Identifier: "ip"/"user"/"ip+route"
// SkipPaths: ["/monitor", "/api/system/health"] 前缀匹配
type RateLimiterConfig struct {
	Name           string   `json:"name"` // 指标标签
	Rate           string   `json:"rate"` // e.g. "100-M", "1000-H"
	Identifier     string   `json:"identifier"`
	WhitelistCIDRs []string `json:"whitelist_cidrs"`
	SkipPaths      []string `json:"skip_paths"`
	AddHeaders     bool     `json:"add_headers"`
	// UserID 在 Identifier=user 时提取用户标识，未登录则回退到 IP
	UserID func(c *gin.Context) string `json:"-"`
}

// MetricsObserver 指标上报接口
type MetricsObserver interface {
	OnAllow(route string, key string)
	OnDeny(route string, key string)
}

// RateLimiter 面向实例的限流器
type RateLimiter struct {
	cfg        RateLimiterConfig
	limiter    *limiter.Limiter
	observer   MetricsObserver
	whiteCIDRs []*net.IPNet
	mu         sync.RWMutex
}

// NewMemoryLimiterStore 进程内存储
func NewMemoryLimiterStore() limiter.Store {
	return memory.NewStore()
}

// NewRedisLimiterStore 多实例部署时共享计数
func NewRedisLimiterStore(client *redis.Client, prefix string) (limiter.Store, error) {
	if prefix == "" {
		prefix = "vocalforge:limiter"
	}
	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   prefix,
		MaxRetry: 3,
	})
}

// NewRateLimiter 构造函数；速率格式错误时返回错误
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) (*RateLimiter, error) {
	if store == nil {
		store = memory.NewStore()
	}
	if cfg.Rate == "" {
		cfg.Rate = "10-S"
	}
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "global"
	}
	l := &RateLimiter{
		cfg:     cfg,
		limiter: limiter.New(store, rate),
	}
	for _, c := range cfg.WhitelistCIDRs {
		if _, ipnet, err := net.ParseCIDR(strings.TrimSpace(c)); err == nil {
			l.whiteCIDRs = append(l.whiteCIDRs, ipnet)
		}
	}
	return l, nil
}

// WithObserver 配置指标观察者
func (l *RateLimiter) WithObserver(observer MetricsObserver) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = observer
	return l
}

// Middleware 返回 Gin 中间件
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if pathSkipped(l.cfg.SkipPaths, c.FullPath(), c.Request.URL.Path) {
			c.Next()
			return
		}

		clientIP := clientIPFromRequest(c)
		if ipListed(clientIP, l.whiteCIDRs) {
			c.Next()
			return
		}

		key := l.buildKey(c, clientIP)
		ctx, err := l.limiter.Get(c.Request.Context(), key)
		if err != nil {
			logger.Warn("rate limiter store error", zap.String("limiter", l.cfg.Name), zap.Error(err))
			c.Next()
			return
		}
		if l.cfg.AddHeaders {
			setStandardHeaders(c, ctx)
		}
		if ctx.Reached {
			setRetryAfter(c, time.Until(time.Unix(ctx.Reset, 0)))
			l.report(false, key)
			response.Error(c, apperrors.ErrRateLimited)
			return
		}

		l.report(true, key)
		c.Next()
	}
}

func (l *RateLimiter) report(allowed bool, key string) {
	l.mu.RLock()
	obs := l.observer
	l.mu.RUnlock()
	if obs == nil {
		return
	}
	if allowed {
		obs.OnAllow(l.cfg.Name, key)
	} else {
		obs.OnDeny(l.cfg.Name, key)
	}
}

func (l *RateLimiter) buildKey(c *gin.Context, ip string) string {
	switch l.cfg.Identifier {
	case "user":
		if l.cfg.UserID != nil {
			if uid := l.cfg.UserID(c); uid != "" {
				return l.cfg.Name + ":user:" + uid
			}
		}
		return l.cfg.Name + ":ip:" + ip
	case "ip+route":
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		return l.cfg.Name + ":iprt:" + ip + ":" + route
	default: // ip
		return l.cfg.Name + ":ip:" + ip
	}
}

func pathSkipped(prefixes []string, fullPath, rawPath string) bool {
	p := fullPath
	if p == "" {
		p = rawPath
	}
	for _, pref := range prefixes {
		if pref != "" && strings.HasPrefix(p, pref) {
			return true
		}
	}
	return false
}

func clientIPFromRequest(c *gin.Context) string {
	return strings.TrimPrefix(c.ClientIP(), "::ffff:")
}

func ipListed(ip string, nets []*net.IPNet) bool {
	pip := net.ParseIP(ip)
	if pip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(pip) {
			return true
		}
	}
	return false
}

func setStandardHeaders(c *gin.Context, ctx limiter.Context) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
	resetSec := int(time.Until(time.Unix(ctx.Reset, 0)).Seconds())
	if resetSec < 0 {
		resetSec = 0
	}
	c.Header("X-RateLimit-Reset", strconv.Itoa(resetSec))
}

func setRetryAfter(c *gin.Context, d time.Duration) {
	sec := int(d.Seconds())
	if sec < 0 {
		sec = 0
	}
	c.Header("Retry-After", strconv.Itoa(sec))
}
