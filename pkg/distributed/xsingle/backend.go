package xsingle

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -source=backend.go -destination=mock_backend_test.go -package=xsingle

// Backend 锁存储后端接口。
//
// 所有后端必须满足同一契约：锁在 now - created < timeout 时有效；
// 过期的锁在逻辑上视为不存在，即使其物理表示（行/文件/键）仍在。
//
// # 实现要求
//
//   - Acquire 必须是非阻塞的，锁被他人持有时返回 (false, nil)，
//     只有存储层故障（I/O、连接、事务）才返回 error
//   - Release 必须幂等，释放不存在的锁不是错误
//   - Exists 只读，不得修改状态，也不得接管过期锁
//   - 实现必须是并发安全的，同一实例可用于任意多个 key
//   - 不得在本地缓存锁状态，每次调用都重新读取存储
type Backend interface {
	// Acquire 尝试获取锁。
	//
	// 返回 true 表示锁现在由调用方持有（新建或接管了过期锁）；
	// 返回 false 表示已有他人持有的有效锁。
	Acquire(ctx context.Context, key string, timeout time.Duration) (bool, error)

	// Release 删除锁（如果存在）。
	Release(ctx context.Context, key string) error

	// Exists 检查当前是否存在有效（未过期）的锁。
	Exists(ctx context.Context, key string, timeout time.Duration) (bool, error)
}

// Close 关闭后端持有的客户端或连接。
//
// 对不持有资源的后端（或外部注入客户端的后端）是空操作。
func Close(b Backend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// validateKey 校验 key 的通用约束。
func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}

// validateAcquire 校验 Acquire / Exists 的参数。
func validateAcquire(key string, timeout time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if timeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// isValid 判断创建于 created 的锁在 now 时刻是否仍然有效。
func isValid(created, now time.Time, timeout time.Duration) bool {
	return now.Sub(created) < timeout
}

// defaultIdentity 生成默认实例标识（hostname:pid）
func defaultIdentity() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s:%d", hostname, os.Getpid())
}

// newToken 为一次获取生成唯一的持有者标记，带实例标识便于排查。
func newToken(identity string) string {
	return identity + ":" + uuid.NewString()
}

// backendName 返回用于日志和指标的后端类型名。
func backendName(b Backend) string {
	switch b.(type) {
	case *DBBackend:
		return "db"
	case *FileBackend:
		return "file"
	case *RedisBackend:
		return "redis"
	case *EtcdBackend:
		return "etcd"
	case *MongoBackend:
		return "mongo"
	case *LeaseBackend:
		return "k8s"
	default:
		return "custom"
	}
}
