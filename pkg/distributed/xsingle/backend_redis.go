package xsingle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix Redis 锁 key 的默认前缀，完整 key 为 <prefix>.<key>。
const DefaultRedisPrefix = "xsingle.single_instance"

// RedisBackend 基于 Redis 原生过期的锁后端。
//
// 使用 SET key value NX PX timeout 原子地获取锁，有效性完全交给
// Redis 的 TTL：key 存在即有效。Exists 的 timeout 参数仅做校验。
//
// 用法：
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	backend, err := xsingle.NewRedisBackend(client)
type RedisBackend struct {
	client   redis.UniversalClient
	prefix   string
	identity string
	owned    bool
}

// RedisOption RedisBackend 配置选项
type RedisOption func(*RedisBackend)

// WithRedisPrefix 设置锁 key 前缀。
//
// 默认 "xsingle.single_instance"。用于区分共享同一 Redis 的不同应用。
func WithRedisPrefix(prefix string) RedisOption {
	return func(b *RedisBackend) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithRedisIdentity 设置写入锁值的实例标识，默认 hostname:pid。
func WithRedisIdentity(identity string) RedisOption {
	return func(b *RedisBackend) {
		if identity != "" {
			b.identity = identity
		}
	}
}

// NewRedisBackend 基于已有客户端创建 Redis 后端。
//
// client 可以是 *redis.Client、*redis.ClusterClient 等任意 UniversalClient，
// 由调用方负责关闭。
func NewRedisBackend(client redis.UniversalClient, opts ...RedisOption) (*RedisBackend, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	b := &RedisBackend{
		client:   client,
		prefix:   DefaultRedisPrefix,
		identity: defaultIdentity(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// OpenRedis 根据 redis://、rediss:// 或 unix:// URI 创建后端。
//
// 构造时执行 PING，目标不可达立即返回错误。返回的后端拥有该客户端。
func OpenRedis(ctx context.Context, uri string, opts ...RedisOption) (*RedisBackend, error) {
	options, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("xsingle: invalid redis uri: %w", err)
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("xsingle: redis ping failed: %w", err)
	}

	b, err := NewRedisBackend(client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	b.owned = true
	return b, nil
}

// Acquire 尝试获取锁，TTL 为 timeout。
func (b *RedisBackend) Acquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	if err := validateAcquire(key, timeout); err != nil {
		return false, err
	}

	ok, err := b.client.SetNX(ctx, b.redisKey(key), newToken(b.identity), timeout).Result()
	if err != nil {
		return false, fmt.Errorf("xsingle: redis setnx failed: %w", err)
	}
	return ok, nil
}

// Release 删除锁 key，key 不存在不是错误。
//
// 不校验持有者：作用域退出时总是无条件释放。
func (b *RedisBackend) Release(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := b.client.Del(ctx, b.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("xsingle: redis del failed: %w", err)
	}
	return nil
}

// Exists 检查锁 key 是否存在。
func (b *RedisBackend) Exists(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	if err := validateAcquire(key, timeout); err != nil {
		return false, err
	}

	n, err := b.client.Exists(ctx, b.redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("xsingle: redis exists failed: %w", err)
	}
	return n > 0, nil
}

// Prefix 返回锁 key 前缀。
func (b *RedisBackend) Prefix() string {
	return b.prefix
}

// Client 返回底层 Redis 客户端。
func (b *RedisBackend) Client() redis.UniversalClient {
	return b.client
}

// Close 关闭由 OpenRedis 创建的客户端。
func (b *RedisBackend) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}

func (b *RedisBackend) redisKey(key string) string {
	return b.prefix + "." + key
}

// 确保 RedisBackend 实现了 Backend 接口
var _ Backend = (*RedisBackend)(nil)
