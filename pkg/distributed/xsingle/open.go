package xsingle

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// openOptions Open 的配置
type openOptions struct {
	logger    Logger
	keyPrefix string
	table     string
}

// OpenOption Open 配置选项
type OpenOption func(*openOptions)

// WithBackendLogger 设置后端日志记录器（目前只有文件后端会输出日志）。
func WithBackendLogger(logger Logger) OpenOption {
	return func(o *openOptions) {
		o.logger = logger
	}
}

// WithKeyPrefix 设置键值类后端（Redis、etcd）和 Lease 后端的 key 前缀。
func WithKeyPrefix(prefix string) OpenOption {
	return func(o *openOptions) {
		o.keyPrefix = prefix
	}
}

// WithTable 设置数据库表名或 MongoDB 集合名。
func WithTable(table string) OpenOption {
	return func(o *openOptions) {
		o.table = table
	}
}

// Open 根据 URI scheme 创建后端。
//
// 支持的 scheme：
//   - sqlite, postgres, postgresql, mysql: [DBBackend]
//   - file: [FileBackend]，路径为 URI 的 path 部分，如 file:///var/lock/xsingle
//   - redis, rediss, unix: [RedisBackend]
//   - etcd: [EtcdBackend]
//   - mongodb, mongodb+srv: [MongoBackend]
//   - k8s: [LeaseBackend]，如 k8s://my-namespace
//
// 构造阶段的任何失败（目标不可达、路径不是目录等）都在此返回，
// 不会推迟到第一次使用。用 [Close] 释放返回的后端。
func Open(ctx context.Context, uri string, opts ...OpenOption) (Backend, error) {
	o := &openOptions{}
	for _, opt := range opts {
		opt(o)
	}

	scheme, _, ok := strings.Cut(uri, "://")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, uri)
	}

	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "mysql":
		return asBackend(OpenDB(uri, WithDBTable(o.table)))
	case "file":
		u, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("xsingle: invalid file uri: %w", err)
		}
		return asBackend(NewFileBackend(u.Path, WithFileLogger(o.logger)))
	case "redis", "rediss", "unix":
		return asBackend(OpenRedis(ctx, uri, WithRedisPrefix(o.keyPrefix)))
	case "etcd":
		return asBackend(OpenEtcd(ctx, uri, WithEtcdPrefix(o.keyPrefix)))
	case "mongodb", "mongodb+srv":
		return asBackend(OpenMongo(ctx, uri, o.table))
	case "k8s":
		return asBackend(OpenLease(uri, WithLeasePrefix(o.keyPrefix)))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// asBackend 避免把 nil 指针装进非 nil 的接口值。
func asBackend[T Backend](b T, err error) (Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}
