package handlers

import (
	"net/http"
	"time"

	"VocalForge/internal/models"
	"VocalForge/internal/studio"
	"VocalForge/pkg/cache"
	"VocalForge/pkg/config"
	"VocalForge/pkg/i18n"
	"VocalForge/pkg/llm"
	"VocalForge/pkg/logger"
	"VocalForge/pkg/metrics"
	"VocalForge/pkg/middleware"
	"VocalForge/pkg/sse"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const SessionName = "vocalforge_session"

// Deps 路由依赖，可选项为 nil 时对应功能关闭
type Deps struct {
	DB        *gorm.DB
	Config    *config.Config
	Studio    *studio.Studio
	Hub       *sse.Hub
	Suggester *llm.Suggester

	I18n         *i18n.I18nSupport
	Monitor      *metrics.Monitor
	Idempotency  cache.Cache
	LimiterStore limiter.Store
	Auditor      *middleware.Auditor
}

type Handlers struct {
	db        *gorm.DB
	cfg       *config.Config
	studio    *studio.Studio
	hub       *sse.Hub
	suggester *llm.Suggester

	i18n         *i18n.I18nSupport
	monitor      *metrics.Monitor
	idem         cache.Cache
	limiterStore limiter.Store
	auditor      *middleware.Auditor
}

func NewHandlers(d Deps) *Handlers {
	h := &Handlers{
		db:           d.DB,
		cfg:          d.Config,
		studio:       d.Studio,
		hub:          d.Hub,
		suggester:    d.Suggester,
		i18n:         d.I18n,
		monitor:      d.Monitor,
		idem:         d.Idempotency,
		limiterStore: d.LimiterStore,
		auditor:      d.Auditor,
	}
	if h.hub == nil {
		h.hub = sse.NewHub(0)
	}
	if h.suggester == nil {
		h.suggester = llm.NewSuggester(llm.SuggesterConfig{}, nil)
	}
	return h
}

func (h *Handlers) Register(engine *gin.Engine) {
	engine.Use(h.sessionMiddleware())

	if h.monitor != nil {
		engine.Use(metrics.MonitorMiddleware(h.monitor))
		h.monitor.RegisterRoutes(engine.Group(h.cfg.MonitorPrefix))
	}

	r := engine.Group(h.cfg.APIPrefix)

	// Register Global Singleton DB
	r.Use(middleware.InjectDB(h.db))
	if h.i18n != nil {
		r.Use(middleware.LanguageMiddleware(h.i18n))
	}
	if rl := h.newLimiter(middleware.RateLimiterConfig{
		Name:       "global",
		Rate:       h.cfg.RateLimit,
		AddHeaders: true,
		SkipPaths:  []string{h.cfg.APIPrefix + "/system/health", h.cfg.APIPrefix + "/events"},
	}); rl != nil {
		r.Use(rl.Middleware())
	}
	if h.auditor != nil {
		r.Use(h.auditor.Middleware())
	}

	// Register System Module Routes
	h.registerSystemRoutes(r)

	// Register Business Module Routes
	h.registerAuthRoutes(r)
	h.registerProfileRoutes(r)
	h.registerVoiceModelRoutes(r)
	h.registerGenerationRoutes(r)
	h.registerStudioRoutes(r)
}

func (h *Handlers) sessionMiddleware() gin.HandlerFunc {
	secret := h.cfg.SessionSecret
	if secret == "" {
		secret = "vocalforge-dev-secret"
		logger.Warn("SESSION_SECRET not set, using development secret")
	}
	store := cookie.NewStore([]byte(secret))
	days := h.cfg.SessionExpireDays
	if days <= 0 {
		days = 7
	}
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int((time.Duration(days) * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(SessionName, store)
}

func (h *Handlers) newLimiter(cfg middleware.RateLimiterConfig) *middleware.RateLimiter {
	if cfg.Rate == "" {
		return nil
	}
	rl, err := middleware.NewRateLimiter(cfg, h.limiterStore)
	if err != nil {
		logger.Warn("invalid rate limit, limiter disabled", zap.String("limiter", cfg.Name), zap.String("rate", cfg.Rate), zap.Error(err))
		return nil
	}
	if h.monitor != nil {
		rl.WithObserver(h.monitor.GetMetrics())
	}
	return rl
}

func sessionUserID(c *gin.Context) string {
	if s, ok := models.CurrentSession(c); ok {
		return s.UserID
	}
	return ""
}

// User Module
func (h *Handlers) registerAuthRoutes(r *gin.RouterGroup) {
	auth := r.Group(h.cfg.AuthPrefix)
	{
		auth.POST("/register", h.handleUserSignup)

		auth.POST("/login", h.handleUserSignin)

		auth.POST("/logout", models.AuthRequired, h.handleUserLogout)

		auth.GET("/info", models.AuthRequired, h.handleUserInfo)
	}
}

func (h *Handlers) registerProfileRoutes(r *gin.RouterGroup) {
	r.GET("/profile", models.AuthRequired, h.handleGetProfile)
	r.PUT("/profile", models.AuthRequired, h.handleUpdateProfile)
	r.GET("/dashboard", models.AuthRequired, h.handleDashboard)
}

func (h *Handlers) registerVoiceModelRoutes(r *gin.RouterGroup) {
	vm := r.Group("voice-models")
	vm.Use(models.AuthRequired)
	{
		vm.GET("", h.handleListVoiceModels)

		vm.POST("", h.handleCreateVoiceModel)

		vm.GET("/:id", h.handleGetVoiceModel)
	}
}

func (h *Handlers) registerGenerationRoutes(r *gin.RouterGroup) {
	gen := r.Group("generations")
	gen.Use(models.AuthRequired)
	{
		gen.GET("", h.handleListGenerations)

		compose := []gin.HandlerFunc{}
		if rl := h.newLimiter(middleware.RateLimiterConfig{
			Name:       "compose",
			Rate:       h.cfg.ComposeRateLimit,
			Identifier: "user",
			AddHeaders: true,
			UserID:     sessionUserID,
		}); rl != nil {
			compose = append(compose, rl.Middleware())
		}
		if h.idem != nil {
			compose = append(compose, middleware.IdempotencyMiddleware(h.idem, middleware.IdempotencyConfig{
				TTL:   10 * time.Minute,
				Scope: sessionUserID,
			}))
		}
		gen.POST("", append(compose, h.handleCompose)...)

		gen.GET("/:id", h.handleGetGeneration)

		gen.DELETE("/:id", h.handleDeleteGeneration)
	}
}

func (h *Handlers) registerStudioRoutes(r *gin.RouterGroup) {
	r.GET("/studio/options", h.handleStudioOptions)
	r.GET("/studio/suggest", models.AuthRequired, h.handleSuggest)
	r.GET("/events", models.AuthRequired, h.handleEvents)
	r.GET("/files/*key", models.AuthRequired, h.handleFile)
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)
	}
}
