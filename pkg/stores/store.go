package stores

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// Store 对象存储接口，key 使用 "/" 分隔
type Store interface {
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Read(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
}

// Config 存储配置
type Config struct {
	Driver string `env:"STORAGE_DRIVER"`

	LocalRoot string `env:"STORAGE_LOCAL_ROOT"`
	// 本地存储对外访问前缀，如 /api/files
	LocalBaseURL string `env:"STORAGE_PUBLIC_BASE"`

	Minio MinioConfig
	Cos   CosConfig
}

// New 按驱动创建存储
func New(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "local":
		root := cfg.LocalRoot
		if root == "" {
			root = "./data/uploads"
		}
		return NewLocalStore(root, cfg.LocalBaseURL), nil
	case "minio":
		return NewMinioStore(cfg.Minio)
	case "cos":
		return NewCosStore(cfg.Cos)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// CleanKey 规整 key，拒绝跳出根目录
func CleanKey(key string) (string, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" || cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return cleaned, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
