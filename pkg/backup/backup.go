package backup

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"VocalForge/pkg/logger"
	"VocalForge/pkg/scheduler"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Config 备份配置
type Config struct {
	Driver   string
	DSN      string
	Dir      string
	Schedule string
}

// Runner 执行数据库备份，文件系统可替换以便测试
type Runner struct {
	cfg Config
	fs  afero.Fs
	now func() time.Time
}

func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg, fs: afero.NewOsFs(), now: time.Now}
}

// WithFs 替换文件系统
func (r *Runner) WithFs(fs afero.Fs) *Runner {
	r.fs = fs
	return r
}

// StartBackupScheduler 注册定时备份任务
func (r *Runner) StartBackupScheduler(cr *scheduler.Cron) error {
	id, err := cr.Add(r.cfg.Schedule, scheduler.FuncJob(func(ctx context.Context) {
		dst, err := r.Execute(ctx)
		if err != nil {
			logger.Warn("backup failed", zap.Error(err))
			return
		}
		logger.Info("backup completed", zap.String("file", dst))
	}))
	if err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", r.cfg.Schedule, err)
	}
	logger.Info("backup scheduled", zap.String("schedule", r.cfg.Schedule), zap.Int("entry", int(id)))
	return nil
}

// Execute 根据配置执行数据库备份，返回备份文件路径
func (r *Runner) Execute(ctx context.Context) (string, error) {
	stamp := r.now().Format("20060102_150405")
	switch strings.ToLower(r.cfg.Driver) {
	case "", "sqlite":
		dst := filepath.Join(r.cfg.Dir, fmt.Sprintf("vocalforge_%s.db", stamp))
		src, err := SQLitePath(r.cfg.DSN)
		if err != nil {
			return "", err
		}
		return dst, r.copyFile(src, dst)
	case "mysql":
		dst := filepath.Join(r.cfg.Dir, fmt.Sprintf("vocalforge_%s.sql", stamp))
		return dst, r.dumpMySQL(ctx, dst)
	case "pg", "postgres":
		dst := filepath.Join(r.cfg.Dir, fmt.Sprintf("vocalforge_%s.sql", stamp))
		return dst, r.dump(ctx, dst, "pg_dump", "--dbname="+r.cfg.DSN)
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER: %s", r.cfg.Driver)
	}
}

// SQLitePath 从 DSN 中取出数据库文件路径，内存库无法备份
func SQLitePath(dsn string) (string, error) {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		if strings.Contains(p[i:], "mode=memory") {
			return "", fmt.Errorf("in-memory sqlite database cannot be backed up")
		}
		p = p[:i]
	}
	if p == "" || p == ":memory:" {
		return "", fmt.Errorf("in-memory sqlite database cannot be backed up")
	}
	return p, nil
}

func (r *Runner) copyFile(src, dst string) error {
	if err := r.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	in, err := r.fs.Open(src)
	if err != nil {
		return fmt.Errorf("error opening source file: %w", err)
	}
	defer in.Close()

	out, err := r.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("error creating destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("error copying data: %w", err)
	}
	return out.Close()
}

// mysqldumpArgs 由 DSN 生成 mysqldump 参数
func mysqldumpArgs(dsn string) ([]string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	args := []string{"--single-transaction"}
	if cfg.Net == "unix" {
		args = append(args, "--socket="+cfg.Addr)
	} else if cfg.Addr != "" {
		host, port, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			host = cfg.Addr
		}
		args = append(args, "--host="+host)
		if port != "" {
			args = append(args, "--port="+port)
		}
	}
	if cfg.User != "" {
		args = append(args, "--user="+cfg.User)
	}
	if cfg.Passwd != "" {
		args = append(args, "--password="+cfg.Passwd)
	}
	return append(args, cfg.DBName), nil
}

func (r *Runner) dumpMySQL(ctx context.Context, dst string) error {
	args, err := mysqldumpArgs(r.cfg.DSN)
	if err != nil {
		return err
	}
	return r.dump(ctx, dst, "mysqldump", args...)
}

func (r *Runner) dump(ctx context.Context, dst, bin string, args ...string) error {
	if err := r.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	out, err := r.fs.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", bin, err)
	}
	return nil
}
