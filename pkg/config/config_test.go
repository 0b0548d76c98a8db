package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"DB_DRIVER", "API_PREFIX", "STARTING_CREDITS", "SESSION_EXPIRE_DAYS", "CACHE_TYPE", "STORAGE_DRIVER"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, 100, cfg.StartingCredits)
	assert.Equal(t, 7, cfg.SessionExpireDays)
	assert.Equal(t, "local", cfg.Cache.Type)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.False(t, cfg.IsProduction())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STARTING_CREDITS", "0")
	t.Setenv("MODE", "production")
	t.Setenv("SEARCH_ENABLED", "true")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("STORAGE_DRIVER", "minio")
	t.Setenv("MINIO_USE_SSL", "1")

	cfg := FromEnv()
	assert.Equal(t, 0, cfg.StartingCredits)
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.SearchEnabled)
	assert.Equal(t, 3, cfg.Cache.Redis.DB)
	assert.Equal(t, "minio", cfg.Storage.Driver)
	assert.True(t, cfg.Storage.Minio.UseSSL)
}
