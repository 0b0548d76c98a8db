package config

import (
	"log"
	"os"
	"time"

	"VocalForge/pkg/cache"
	"VocalForge/pkg/logger"
	"VocalForge/pkg/stores"
	"VocalForge/pkg/util"
)

// Config 全局配置，全部来自环境变量
type Config struct {
	DBDriver          string `env:"DB_DRIVER"`
	DSN               string `env:"DSN"`
	Log               logger.LogConfig
	Cache             cache.Config
	Storage           stores.Config
	Addr              string `env:"ADDR"`
	GRPCAddr          string `env:"GRPC_ADDR"`
	Mode              string `env:"MODE"`
	APIPrefix         string `env:"API_PREFIX"`
	AuthPrefix        string `env:"AUTH_PREFIX"`
	MonitorPrefix     string `env:"MONITOR_PREFIX"`
	SessionSecret     string `env:"SESSION_SECRET"`
	SessionExpireDays int    `env:"SESSION_EXPIRE_DAYS"`
	LLMApiKey         string `env:"LLM_API_KEY"`
	LLMBaseURL        string `env:"LLM_BASE_URL"`
	LLMModel          string `env:"LLM_MODEL"`
	SearchEnabled     bool   `env:"SEARCH_ENABLED"`
	SearchPath        string `env:"SEARCH_PATH"`
	LanguageEnabled   bool   `env:"LANGUAGE_ENABLED"`
	RateLimit         string `env:"RATE_LIMIT"`
	ComposeRateLimit  string `env:"COMPOSE_RATE_LIMIT"`
	BackupEnabled     bool   `env:"BACKUP_ENABLED"`
	BackupPath        string `env:"BACKUP_PATH"`
	BackupSchedule    string `env:"BACKUP_SCHEDULE"`
	StartingCredits   int    `env:"STARTING_CREDITS"`
	MaxBeatSize       int64  `env:"MAX_BEAT_SIZE"`
	AuditEnabled      bool   `env:"AUDIT_ENABLED"`
	GeoIPPath         string `env:"GEOIP_PATH"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development" // 默认使用开发环境
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = FromEnv()
	return nil
}

// FromEnv 从当前进程环境构建配置并补齐默认值
func FromEnv() *Config {
	cfg := &Config{
		DBDriver:      util.GetEnvDefault("DB_DRIVER", "sqlite"),
		DSN:           util.GetEnvDefault("DSN", "file:vocalforge.db"),
		Addr:          util.GetEnvDefault("ADDR", ":8080"),
		GRPCAddr:      util.GetEnv("GRPC_ADDR"),
		Mode:          util.GetEnvDefault("MODE", "development"),
		APIPrefix:     util.GetEnvDefault("API_PREFIX", "/api"),
		AuthPrefix:    util.GetEnvDefault("AUTH_PREFIX", "/auth"),
		MonitorPrefix: util.GetEnvDefault("MONITOR_PREFIX", "/monitor"),
		SessionSecret: util.GetEnvDefault("SESSION_SECRET", "vocalforge-dev-secret"),
		Log: logger.LogConfig{
			Level:      util.GetEnvDefault("LOG_LEVEL", "info"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		Cache: cache.Config{
			Type: util.GetEnvDefault("CACHE_TYPE", "local"),
			Redis: cache.RedisConfig{
				Addr:         util.GetEnvDefault("REDIS_ADDR", "127.0.0.1:6379"),
				Password:     util.GetEnv("REDIS_PASSWORD"),
				DB:           int(util.GetIntEnv("REDIS_DB")),
				PoolSize:     int(util.GetIntEnv("REDIS_POOL_SIZE")),
				MinIdleConns: int(util.GetIntEnv("REDIS_MIN_IDLE_CONNS")),
				DialTimeout:  util.GetDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
				ReadTimeout:  util.GetDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
				WriteTimeout: util.GetDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			},
			Local: cache.LocalConfig{
				MaxSize:           int(util.GetIntEnv("LOCAL_CACHE_MAX_SIZE")),
				DefaultExpiration: util.GetDurationEnv("LOCAL_CACHE_DEFAULT_EXPIRATION", 5*time.Minute),
				CleanupInterval:   util.GetDurationEnv("LOCAL_CACHE_CLEANUP_INTERVAL", 10*time.Minute),
			},
		},
		Storage: stores.Config{
			Driver:       util.GetEnvDefault("STORAGE_DRIVER", "local"),
			LocalRoot:    util.GetEnvDefault("STORAGE_LOCAL_ROOT", "./data/uploads"),
			LocalBaseURL: util.GetEnv("STORAGE_PUBLIC_BASE"),
			Minio: stores.MinioConfig{
				Endpoint:  util.GetEnv("MINIO_ENDPOINT"),
				AccessKey: util.GetEnv("MINIO_ACCESS_KEY"),
				SecretKey: util.GetEnv("MINIO_SECRET_KEY"),
				Bucket:    util.GetEnvDefault("MINIO_BUCKET", "vocalforge"),
				UseSSL:    util.GetBoolEnv("MINIO_USE_SSL"),
				BaseURL:   util.GetEnv("MINIO_PUBLIC_BASE"),
			},
			Cos: stores.CosConfig{
				BucketURL: util.GetEnv("COS_BUCKET_URL"),
				SecretID:  util.GetEnv("COS_SECRET_ID"),
				SecretKey: util.GetEnv("COS_SECRET_KEY"),
				BaseURL:   util.GetEnv("COS_PUBLIC_BASE"),
			},
		},
		LLMApiKey:        util.GetEnv("LLM_API_KEY"),
		LLMBaseURL:       util.GetEnv("LLM_BASE_URL"),
		LLMModel:         util.GetEnvDefault("LLM_MODEL", "gpt-4o-mini"),
		SearchEnabled:    util.GetBoolEnv("SEARCH_ENABLED"),
		SearchPath:       util.GetEnv("SEARCH_PATH"),
		LanguageEnabled:  util.GetBoolEnv("LANGUAGE_ENABLED"),
		RateLimit:        util.GetEnvDefault("RATE_LIMIT", "120-M"),
		ComposeRateLimit: util.GetEnvDefault("COMPOSE_RATE_LIMIT", "10-M"),
		BackupEnabled:    util.GetBoolEnv("BACKUP_ENABLED"),
		BackupPath:       util.GetEnvDefault("BACKUP_PATH", "./backups"),
		BackupSchedule:   util.GetEnvDefault("BACKUP_SCHEDULE", "0 3 * * *"),
		AuditEnabled:     util.GetBoolEnv("AUDIT_ENABLED"),
		GeoIPPath:        util.GetEnv("GEOIP_PATH"),
	}

	cfg.SessionExpireDays = int(util.GetIntEnv("SESSION_EXPIRE_DAYS"))
	if cfg.SessionExpireDays <= 0 {
		cfg.SessionExpireDays = 7
	}
	cfg.StartingCredits = 100
	if v := util.GetEnv("STARTING_CREDITS"); v != "" {
		cfg.StartingCredits = int(util.GetIntEnv("STARTING_CREDITS"))
	}
	// 0 表示使用默认上限
	cfg.MaxBeatSize = util.GetIntEnv("MAX_BEAT_SIZE")
	return cfg
}

// IsProduction 是否生产模式
func (c *Config) IsProduction() bool {
	return c.Mode == "production"
}
