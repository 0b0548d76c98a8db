package stores

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tencentyun/cos-go-sdk-v5"
)

// CosConfig 腾讯云 COS 配置
type CosConfig struct {
	// 形如 https://<bucket>-<appid>.cos.<region>.myqcloud.com
	BucketURL string `env:"COS_BUCKET_URL"`
	SecretID  string `env:"COS_SECRET_ID"`
	SecretKey string `env:"COS_SECRET_KEY"`
	BaseURL   string `env:"COS_PUBLIC_BASE"`
}

type CosStore struct {
	cfg CosConfig
	cli *cos.Client
}

func NewCosStore(cfg CosConfig) (*CosStore, error) {
	u, err := url.Parse(cfg.BucketURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid COS bucket url %q", cfg.BucketURL)
	}
	cli := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})
	return &CosStore{cfg: cfg, cli: cli}, nil
}

func (s *CosStore) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{ContentType: contentType},
	}
	if size >= 0 {
		opt.ObjectPutHeaderOptions.ContentLength = size
	}
	_, err := s.cli.Object.Put(ctx, key, r, opt)
	return err
}

func (s *CosStore) Read(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	resp, err := s.cli.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

func (s *CosStore) Delete(ctx context.Context, key string) error {
	_, err := s.cli.Object.Delete(ctx, key)
	return err
}

func (s *CosStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.cli.Object.IsExist(ctx, key)
}

func (s *CosStore) PublicURL(key string) string {
	if s.cfg.BaseURL != "" {
		return joinURL(s.cfg.BaseURL, key)
	}
	return s.cli.Object.GetObjectURL(key).String()
}
