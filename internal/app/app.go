package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	handlers "VocalForge/internal/handler"
	"VocalForge/internal/lifecycle"
	"VocalForge/internal/listeners"
	"VocalForge/internal/models"
	"VocalForge/internal/studio"
	"VocalForge/pkg/backup"
	"VocalForge/pkg/cache"
	"VocalForge/pkg/config"
	"VocalForge/pkg/grpcx"
	"VocalForge/pkg/i18n"
	"VocalForge/pkg/llm"
	"VocalForge/pkg/logger"
	"VocalForge/pkg/metrics"
	"VocalForge/pkg/middleware"
	"VocalForge/pkg/scheduler"
	"VocalForge/pkg/search"
	"VocalForge/pkg/sse"
	"VocalForge/pkg/stores"
	"VocalForge/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

// App 进程内的全部组件
type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Cache   cache.Cache
	Store   stores.Store
	Index   *search.GenerationIndex
	Hub     *sse.Hub
	Monitor *metrics.Monitor
	Tracker *lifecycle.Tracker
	Studio  *studio.Studio
	Signals *util.Signals

	redis        *redis.Client
	limiterStore limiter.Store
	auditor      *middleware.Auditor
	sched        *scheduler.Scheduler
	cron         *scheduler.Cron
}

// OpenDB 打开数据库并迁移
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := util.InitDatabase(cfg.DBDriver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := models.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// New 按配置组装组件，可选组件初始化失败时降级并记录日志
func New(cfg *config.Config) (*App, error) {
	a := &App{
		Config:  cfg,
		Hub:     sse.NewHub(30 * time.Second),
		Signals: util.NewSignals(),
		sched:   scheduler.New(),
	}

	a.Monitor = metrics.NewMonitor(metrics.DefaultMonitorConfig())

	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Use(metrics.NewGormPlugin(a.Monitor.GetMetrics(), metrics.DefaultMonitorConfig().SlowQuery)); err != nil {
		return nil, err
	}
	a.DB = db

	a.Cache, err = cache.NewCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Cache.Type) {
	case "redis", "layered":
		client, err := cache.NewRedisClient(cfg.Cache.Redis)
		if err != nil {
			logger.Warn("redis unavailable, rate limits are per process", zap.Error(err))
		} else {
			a.redis = client
			a.limiterStore, err = middleware.NewRedisLimiterStore(client, "")
			if err != nil {
				logger.Warn("redis limiter store failed", zap.Error(err))
			}
		}
	}

	storageCfg := cfg.Storage
	if storageCfg.LocalBaseURL == "" {
		storageCfg.LocalBaseURL = strings.TrimRight(cfg.APIPrefix, "/") + "/files"
	}
	if a.Store, err = stores.New(storageCfg); err != nil {
		logger.Warn("beat storage unavailable, uploads disabled", zap.String("driver", storageCfg.Driver), zap.Error(err))
		a.Store = nil
	}

	if cfg.SearchEnabled {
		idx, err := search.Open(search.Config{IndexPath: cfg.SearchPath})
		if err != nil {
			logger.Warn("search index unavailable", zap.Error(err))
		} else {
			a.Index = idx
		}
	}

	a.Tracker = lifecycle.New(db, lifecycle.WithSignals(a.Signals))

	opts := []studio.Option{
		studio.WithCache(a.Cache),
		studio.WithCacheObserver(a.Monitor.GetMetrics()),
		studio.WithSignals(a.Signals),
	}
	if a.Store != nil {
		opts = append(opts, studio.WithStore(a.Store))
	}
	if a.Index != nil {
		opts = append(opts, studio.WithSearcher(a.Index))
	}
	a.Studio = studio.New(db, a.Tracker, studio.Config{
		StartingCredits: cfg.StartingCredits,
		MaxBeatSize:     cfg.MaxBeatSize,
	}, opts...)

	if cfg.AuditEnabled {
		a.auditor = middleware.NewAuditor(middleware.AuditConfig{
			GeoIPPath: cfg.GeoIPPath,
			UserID:    currentUserID,
		}, middleware.AuditWriterFunc(func(rec *middleware.AuditRecord) error {
			return models.CreateAuditLog(db, &models.AuditLog{
				UserID:    rec.UserID,
				Method:    rec.Method,
				Path:      rec.Path,
				Status:    rec.Status,
				IPAddress: rec.IPAddress,
				Device:    rec.Device,
				Browser:   rec.Browser,
				OS:        rec.OS,
				Location:  rec.Location,
				LatencyMs: rec.Latency.Milliseconds(),
			})
		}))
	}

	listeners.InitUserListeners(a.Signals)
	listeners.InitGenerationListeners(a.Signals, listeners.Targets{
		Hub:     a.Hub,
		Index:   a.Index,
		Metrics: a.Monitor.GetMetrics(),
	})
	return a, nil
}

func currentUserID(c *gin.Context) string {
	if s, ok := models.CurrentSession(c); ok {
		return s.UserID
	}
	return ""
}

// Engine 构建 HTTP 路由
func (a *App) Engine() (*gin.Engine, error) {
	if a.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	var support *i18n.I18nSupport
	if a.Config.LanguageEnabled {
		s, err := i18n.NewI18nSupport("en")
		if err != nil {
			return nil, err
		}
		support = s
	}

	llmLog := logrus.New()
	if a.Config.IsProduction() {
		llmLog.SetFormatter(&logrus.JSONFormatter{})
	}
	suggester := llm.NewSuggester(llm.SuggesterConfig{
		APIKey:  a.Config.LLMApiKey,
		BaseURL: a.Config.LLMBaseURL,
		Model:   a.Config.LLMModel,
	}, llmLog)

	handlers.NewHandlers(handlers.Deps{
		DB:           a.DB,
		Config:       a.Config,
		Studio:       a.Studio,
		Hub:          a.Hub,
		Suggester:    suggester,
		I18n:         support,
		Monitor:      a.Monitor,
		Idempotency:  a.Cache,
		LimiterStore: a.limiterStore,
		Auditor:      a.auditor,
	}).Register(engine)
	return engine, nil
}

// Start 重建索引、恢复未完成的生成并启动后台任务。
// 索引先于恢复重建，立即到期的记录不会被批量写入覆盖。
func (a *App) Start(ctx context.Context) error {
	if a.Index != nil {
		gens, err := models.AllGenerations(a.DB.WithContext(ctx))
		if err != nil {
			return err
		}
		if err := listeners.RebuildIndex(ctx, a.Index, gens); err != nil {
			logger.Warn("rebuild search index failed", zap.Error(err))
		}
	}

	n, err := a.Studio.Resume(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("resumed processing generations", zap.Int("count", n))
	}

	a.Monitor.Start()
	a.sched.Every(15*time.Second, scheduler.FuncJob(func(ctx context.Context) {
		a.Monitor.GetMetrics().SetSSEClients(a.Hub.ClientCount())
	}))

	if a.Config.BackupEnabled {
		a.cron = scheduler.NewCron(time.Local)
		runner := backup.NewRunner(backup.Config{
			Driver:   a.Config.DBDriver,
			DSN:      a.Config.DSN,
			Dir:      a.Config.BackupPath,
			Schedule: a.Config.BackupSchedule,
		})
		if err := runner.StartBackupScheduler(a.cron); err != nil {
			return err
		}
		a.cron.Start()
	}
	return nil
}

// Run 启动 HTTP 与可选的 gRPC 健康检查，ctx 结束后优雅退出
func (a *App) Run(ctx context.Context) error {
	engine, err := a.Engine()
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", zap.String("addr", a.Config.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if a.Config.GRPCAddr != "" {
		lis, err := net.Listen("tcp", a.Config.GRPCAddr)
		if err != nil {
			return err
		}
		gs := grpcx.NewServer(grpcx.ServerConfig{Addr: a.Config.GRPCAddr, UnaryTimeout: 5 * time.Second})
		hs := grpcx.RegisterHealth(gs)
		go func() {
			if err := grpcx.Serve(ctx, gs, lis); err != nil {
				errCh <- err
			}
		}()
		defer hs.SetServingStatus(grpcx.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", zap.Error(serr))
	}
	return err
}

// Close 停止后台任务并释放资源
func (a *App) Close() {
	if a.cron != nil {
		a.cron.Stop()
	}
	a.sched.Stop()
	a.Monitor.Stop()
	if a.Tracker != nil {
		a.Tracker.Stop()
	}
	if a.auditor != nil {
		_ = a.auditor.Close()
	}
	if a.Index != nil {
		_ = a.Index.Close()
	}
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
