package middleware

import (
	"strings"
	"time"

	"VocalForge/pkg/cache"
	apperrors "VocalForge/pkg/errors"
	"VocalForge/pkg/logger"
	"VocalForge/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type IdempotencyConfig struct {
	HeaderName string        // Idempotency-Key 的请求头名
	TTL        time.Duration // 决定一段时间内重复请求的拒绝窗口
	Prefix     string
	// Scope 返回键的作用域（通常是用户 ID），避免不同用户的键互相冲突
	Scope func(c *gin.Context) string
}

// IdempotencyMiddleware 仅在请求携带幂等键时生效，窗口内的重复请求返回 409
func IdempotencyMiddleware(store cache.Cache, cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Idempotency-Key"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "idem:"
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" {
			c.Next()
			return
		}
		scope := ""
		if cfg.Scope != nil {
			scope = cfg.Scope(c)
		}
		full := cfg.Prefix + scope + ":" + c.FullPath() + ":" + key

		ok, err := store.SetNX(c.Request.Context(), full, time.Now().Unix(), cfg.TTL)
		if err != nil {
			// 缓存不可用时放行
			logger.Warn("idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			response.Error(c, apperrors.ErrDuplicateRequest)
			return
		}
		c.Next()

		// 失败的请求允许用同一个键重试
		if c.Writer.Status() >= 400 {
			if err := store.Delete(c.Request.Context(), full); err != nil {
				logger.Warn("idempotency key release failed", zap.String("key", full), zap.Error(err))
			}
		}
	}
}
