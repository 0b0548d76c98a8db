package stores

import (
	"context"
	"io"
	"os"
	"path"

	"github.com/spf13/afero"
)

// LocalStore 基于 afero 的文件存储，测试中可替换为内存文件系统
type LocalStore struct {
	fs      afero.Fs
	baseURL string
}

// NewLocalStore 在 root 目录下存储文件
func NewLocalStore(root, baseURL string) *LocalStore {
	return NewFsStore(afero.NewBasePathFs(afero.NewOsFs(), root), baseURL)
}

// NewFsStore 使用任意 afero.Fs
func NewFsStore(fs afero.Fs, baseURL string) *LocalStore {
	if baseURL == "" {
		baseURL = "/files"
	}
	return &LocalStore{fs: fs, baseURL: baseURL}
}

func (s *LocalStore) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return err
	}
	f, err := s.fs.OpenFile(key, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(key)
		return err
	}
	return f.Close()
}

func (s *LocalStore) Read(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := s.fs.Open(key)
	if err != nil {
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, st.Size(), nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	err = s.fs.Remove(key)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	key, err := CleanKey(key)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, key)
}

func (s *LocalStore) PublicURL(key string) string {
	return joinURL(s.baseURL, key)
}
