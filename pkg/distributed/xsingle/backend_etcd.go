package xsingle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultEtcdPrefix etcd 锁 key 的默认前缀。
const DefaultEtcdPrefix = "/xsingle/lock/"

// etcdDialTimeout OpenEtcd 建连与探活的超时。
const etcdDialTimeout = 5 * time.Second

// etcdClient 定义 EtcdBackend 需要的 etcd 操作，方法与 clientv3 保持一致。
// *clientv3.Client 实现了此接口。
type etcdClient interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Txn(ctx context.Context) clientv3.Txn
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
	Close() error
}

// 确保 *clientv3.Client 实现 etcdClient 接口（编译时检查）
var _ etcdClient = (*clientv3.Client)(nil)

// EtcdBackend 基于 etcd 租约的锁后端。
//
// 与 Redis 后端一样依赖存储自身的过期机制：每次获取授予一个
// TTL 为 timeout（向上取整到秒，至少 1 秒）的租约，并在事务中
// 仅当 key 不存在时写入。租约到期后 etcd 自动删除 key。
type EtcdBackend struct {
	client   etcdClient
	prefix   string
	identity string
	owned    bool
}

// EtcdOption EtcdBackend 配置选项
type EtcdOption func(*EtcdBackend)

// WithEtcdPrefix 设置锁 key 前缀，默认 "/xsingle/lock/"。
func WithEtcdPrefix(prefix string) EtcdOption {
	return func(b *EtcdBackend) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// NewEtcdBackend 基于已有客户端创建 etcd 后端，客户端由调用方关闭。
func NewEtcdBackend(client *clientv3.Client, opts ...EtcdOption) (*EtcdBackend, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return newEtcdBackend(client, opts...), nil
}

func newEtcdBackend(client etcdClient, opts ...EtcdOption) *EtcdBackend {
	b := &EtcdBackend{
		client:   client,
		prefix:   DefaultEtcdPrefix,
		identity: defaultIdentity(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OpenEtcd 根据 etcd://host1:2379,host2:2379/prefix URI 创建后端。
//
// URI 的路径部分（如有）作为 key 前缀。构造时读取一次集群，
// 不可达立即返回错误。
func OpenEtcd(ctx context.Context, uri string, opts ...EtcdOption) (*EtcdBackend, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("xsingle: invalid etcd uri: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("xsingle: etcd uri %q has no endpoints", uri)
	}

	endpoints := strings.Split(u.Host, ",")
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: etcdDialTimeout,
		Context:     ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("xsingle: failed to create etcd client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, etcdDialTimeout)
	defer cancel()
	if _, err := client.Get(pingCtx, "xsingle-ping", clientv3.WithCountOnly()); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("xsingle: etcd is unreachable: %w", err)
	}

	if path := strings.Trim(u.Path, "/"); path != "" {
		opts = append([]EtcdOption{WithEtcdPrefix("/" + path + "/")}, opts...)
	}
	b := newEtcdBackend(client, opts...)
	b.owned = true
	return b, nil
}

// Acquire 尝试获取锁。
//
// 先授予租约，再以 CreateRevision == 0 为条件写入；写入失败时
// 立即撤销刚授予的租约。
func (b *EtcdBackend) Acquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	if err := validateAcquire(key, timeout); err != nil {
		return false, err
	}

	lease, err := b.client.Grant(ctx, leaseTTL(timeout))
	if err != nil {
		return false, fmt.Errorf("xsingle: etcd grant failed: %w", err)
	}

	fullKey := b.etcdKey(key)
	resp, err := b.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(fullKey), "=", 0)).
		Then(clientv3.OpPut(fullKey, newToken(b.identity), clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		b.revoke(lease.ID)
		return false, fmt.Errorf("xsingle: etcd txn failed: %w", err)
	}
	if !resp.Succeeded {
		b.revoke(lease.ID)
		return false, nil
	}
	return true, nil
}

// Release 删除锁 key 并撤销其租约，key 不存在不是错误。
func (b *EtcdBackend) Release(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	fullKey := b.etcdKey(key)
	resp, err := b.client.Get(ctx, fullKey)
	if err != nil {
		return fmt.Errorf("xsingle: etcd get failed: %w", err)
	}
	if _, err := b.client.Delete(ctx, fullKey); err != nil {
		return fmt.Errorf("xsingle: etcd delete failed: %w", err)
	}
	for _, kv := range resp.Kvs {
		if kv.Lease == 0 {
			continue
		}
		_, err := b.client.Revoke(ctx, clientv3.LeaseID(kv.Lease))
		if err != nil && !errors.Is(err, rpctypes.ErrLeaseNotFound) {
			return fmt.Errorf("xsingle: etcd revoke failed: %w", err)
		}
	}
	return nil
}

// Exists 检查锁 key 是否存在。
func (b *EtcdBackend) Exists(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	if err := validateAcquire(key, timeout); err != nil {
		return false, err
	}

	resp, err := b.client.Get(ctx, b.etcdKey(key), clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("xsingle: etcd get failed: %w", err)
	}
	return resp.Count > 0, nil
}

// Prefix 返回锁 key 前缀。
func (b *EtcdBackend) Prefix() string {
	return b.prefix
}

// Close 关闭由 OpenEtcd 创建的客户端。
func (b *EtcdBackend) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}

func (b *EtcdBackend) etcdKey(key string) string {
	return b.prefix + key
}

// revoke 撤销未使用的租约，失败时等待其自然过期。
func (b *EtcdBackend) revoke(id clientv3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.Background(), etcdDialTimeout)
	defer cancel()
	_, _ = b.client.Revoke(ctx, id) //nolint:errcheck // 租约会自然过期
}

// leaseTTL 将超时转换为 etcd 租约秒数，至少 1 秒。
func leaseTTL(timeout time.Duration) int64 {
	return max(int64(math.Ceil(timeout.Seconds())), 1)
}

// 确保 EtcdBackend 实现了 Backend 接口
var _ Backend = (*EtcdBackend)(nil)
