package xsingle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// lockFileSuffix 锁文件后缀，锁文件路径为 <dir>/<key>.lock。
const lockFileSuffix = ".lock"

// FileBackend 基于本地（或共享）文件系统的锁后端。
//
// 每个锁对应一个文件，内容为最近一次获取时的 Unix 秒级时间戳。
// 读取-判断-写入的过程不是原子的，多个进程同时获取同一个过期锁
// 时可能都成功，因此只适用于开发环境或单生产者部署。
type FileBackend struct {
	dir    string
	logger Logger
	now    func() time.Time
}

// FileOption FileBackend 配置选项
type FileOption func(*FileBackend)

// WithFileLogger 设置文件后端的日志记录器。
func WithFileLogger(logger Logger) FileOption {
	return func(b *FileBackend) {
		b.logger = logger
	}
}

// NewFileBackend 创建文件后端。
//
// 目录不存在时会被创建；路径已存在但不是目录时返回 ErrNotDirectory。
func NewFileBackend(dir string, opts ...FileOption) (*FileBackend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("xsingle: lock directory must not be empty")
	}

	b := &FileBackend{
		dir: filepath.Clean(dir),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = loggerOrDefault(b.logger)

	info, err := os.Stat(b.dir)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, b.dir)
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(b.dir, 0o750); err != nil {
			return nil, fmt.Errorf("xsingle: failed to create lock directory: %w", err)
		}
	default:
		return nil, fmt.Errorf("xsingle: failed to stat lock directory: %w", err)
	}

	b.logger.Warn(context.Background(),
		"filesystem lock backend is only suitable for development or a single task producer",
		slog.String("dir", b.dir))
	return b, nil
}

// Acquire 尝试获取锁。
//
// 锁文件不存在、内容为空、无法解析或已过期时写入当前时间并返回 true。
func (b *FileBackend) Acquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	path, err := b.lockPath(key, timeout)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	now := b.now()
	held, err := b.held(path, now, timeout)
	if err != nil {
		return false, err
	}
	if held {
		return false, nil
	}

	content := strconv.FormatInt(now.Unix(), 10)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("xsingle: failed to write lock file: %w", err)
	}
	return true, nil
}

// Release 删除锁文件，文件不存在不是错误。
func (b *FileBackend) Release(ctx context.Context, key string) error {
	if err := validateFileKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(b.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("xsingle: failed to remove lock file: %w", err)
	}
	return nil
}

// Exists 检查锁文件是否存在且未过期，不写入任何内容。
func (b *FileBackend) Exists(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	path, err := b.lockPath(key, timeout)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return b.held(path, b.now(), timeout)
}

// Dir 返回锁目录。
func (b *FileBackend) Dir() string {
	return b.dir
}

// held 读取锁文件并判断是否有效。
//
// 与写入端保持一致，比较在整秒精度上进行：now < created + ceil(timeout)。
func (b *FileBackend) held(path string, now time.Time, timeout time.Duration) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("xsingle: failed to read lock file: %w", err)
	}

	created, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		// 空内容或脏数据视为不存在
		return false, nil
	}
	return now.Unix() < created+timeoutSeconds(timeout), nil
}

func (b *FileBackend) lockPath(key string, timeout time.Duration) (string, error) {
	if err := validateAcquire(key, timeout); err != nil {
		return "", err
	}
	if err := validateFileKey(key); err != nil {
		return "", err
	}
	return b.path(key), nil
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, key+lockFileSuffix)
}

// validateFileKey 拒绝会逃逸出锁目录的 key。
func validateFileKey(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if strings.ContainsAny(key, "/\\\x00") || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// timeoutSeconds 将超时向上取整到秒。
func timeoutSeconds(timeout time.Duration) int64 {
	return int64(math.Ceil(timeout.Seconds()))
}

// 确保 FileBackend 实现了 Backend 接口
var _ Backend = (*FileBackend)(nil)
