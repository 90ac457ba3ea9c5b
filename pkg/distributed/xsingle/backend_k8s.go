package xsingle

import (
	"context"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

const (
	// DefaultLeasePrefix Lease 资源名前缀。
	DefaultLeasePrefix = "xsingle-"

	// leaseKeyAnnotation 记录原始锁 key，名称经过清理后不可逆。
	leaseKeyAnnotation = "xsingle.omeyang.github.io/key"

	k8sNameMaxLen = 63

	// leasePrefixMaxLen 前缀上限，给 key 部分至少留出 31 个字符。
	leasePrefixMaxLen = 32
)

var (
	k8sNameInvalid  = regexp.MustCompile(`[^a-z0-9-]`)
	k8sNameCollapse = regexp.MustCompile(`-+`)
)

// LeaseBackend 基于 Kubernetes coordination.k8s.io/v1 Lease 的锁后端。
//
// 每个锁 key 对应一个 Lease，spec.acquireTime 即锁的创建时间，
// 有效性与数据库后端一致：now - acquireTime < timeout。
// 接管过期 Lease 使用带 resourceVersion 的 Update，版本冲突
// 说明他人先一步接管，返回 false。
//
// 前置条件：ServiceAccount 需要 Lease 的 get/create/update/delete 权限。
type LeaseBackend struct {
	client    kubernetes.Interface
	namespace string
	prefix    string
	identity  string
	now       func() time.Time
}

// LeaseOption LeaseBackend 配置选项
type LeaseOption func(*LeaseBackend)

// WithLeaseNamespace 设置命名空间。
//
// 默认读取环境变量 POD_NAMESPACE，未设置时为 "default"。
func WithLeaseNamespace(namespace string) LeaseOption {
	return func(b *LeaseBackend) {
		if namespace != "" {
			b.namespace = namespace
		}
	}
}

// WithLeasePrefix 设置 Lease 名称前缀，默认 "xsingle-"。
//
// 前缀按资源名规则清理（小写，非法字符替换为 '-'），并以 '-' 与 key 分隔，
// 如 "Billing.Jobs" 变为 "billing-jobs-"。清理后为空时保持默认值。
func WithLeasePrefix(prefix string) LeaseOption {
	return func(b *LeaseBackend) {
		if p := normalizeLeasePrefix(prefix); p != "" {
			b.prefix = p
		}
	}
}

// normalizeLeasePrefix 返回以 '-' 结尾的合法前缀，无可用字符时返回空串。
func normalizeLeasePrefix(prefix string) string {
	p := strings.ToLower(prefix)
	p = k8sNameInvalid.ReplaceAllString(p, "-")
	p = k8sNameCollapse.ReplaceAllString(p, "-")
	p = strings.Trim(p, "-")
	if len(p) > leasePrefixMaxLen-1 {
		p = strings.TrimRight(p[:leasePrefixMaxLen-1], "-")
	}
	if p == "" {
		return ""
	}
	return p + "-"
}

// WithLeaseIdentity 设置持有者标识，默认读取 POD_NAME，否则为 hostname:pid。
func WithLeaseIdentity(identity string) LeaseOption {
	return func(b *LeaseBackend) {
		if identity != "" {
			b.identity = identity
		}
	}
}

// NewLeaseBackend 基于已有客户端创建 Lease 后端。
func NewLeaseBackend(client kubernetes.Interface, opts ...LeaseOption) (*LeaseBackend, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	b := &LeaseBackend{
		client:    client,
		namespace: envOrDefault("POD_NAMESPACE", "default"),
		prefix:    DefaultLeasePrefix,
		identity:  envOrDefault("POD_NAME", defaultIdentity()),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// OpenLease 根据 k8s://namespace URI 创建后端。
//
// 使用 InClusterConfig，适用于在 Pod 内运行的场景。
func OpenLease(uri string, opts ...LeaseOption) (*LeaseBackend, error) {
	namespace := strings.Trim(strings.TrimPrefix(uri, "k8s://"), "/")

	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("xsingle: failed to get in-cluster config: %w", err)
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("xsingle: failed to create k8s client: %w", err)
	}
	return NewLeaseBackend(client, append([]LeaseOption{WithLeaseNamespace(namespace)}, opts...)...)
}

// Acquire 尝试获取锁。
func (b *LeaseBackend) Acquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	if err := validateAcquire(key, timeout); err != nil {
		return false, err
	}

	acquired, err := retryOnConflict(ctx, func() (bool, error) {
		return b.tryAcquire(ctx, key, timeout)
	})
	if err != nil {
		return false, fmt.Errorf("xsingle: lease acquire failed: %w", err)
	}
	return acquired, nil
}

func (b *LeaseBackend) tryAcquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	leases := b.client.CoordinationV1().Leases(b.namespace)
	name := b.leaseName(key)
	now := metav1.NewMicroTime(b.now())
	holder := newToken(b.identity)
	duration := int32(min(math.Ceil(timeout.Seconds()), math.MaxInt32))

	lease := &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: b.namespace,
			Labels: map[string]string{
				"app.kubernetes.io/managed-by": "xsingle",
			},
			Annotations: map[string]string{
				leaseKeyAnnotation: key,
			},
		},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       &holder,
			LeaseDurationSeconds: &duration,
			AcquireTime:          &now,
			RenewTime:            &now,
		},
	}

	_, err := leases.Create(ctx, lease, metav1.CreateOptions{})
	if err == nil {
		return true, nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return false, err
	}

	existing, err := leases.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, errTransientConflict
	}
	if err != nil {
		return false, err
	}
	if b.leaseValid(existing, timeout) {
		return false, nil
	}

	// 过期，带 resourceVersion 接管
	existing.Spec = lease.Spec
	_, err = leases.Update(ctx, existing, metav1.UpdateOptions{})
	switch {
	case err == nil:
		return true, nil
	case apierrors.IsConflict(err):
		return false, nil
	case apierrors.IsNotFound(err):
		return false, errTransientConflict
	default:
		return false, err
	}
}

// Release 删除 Lease，不存在不是错误。
func (b *LeaseBackend) Release(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	err := b.client.CoordinationV1().Leases(b.namespace).Delete(ctx, b.leaseName(key), metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("xsingle: failed to delete lease: %w", err)
	}
	return nil
}

// Exists 检查 Lease 是否存在且未过期。
func (b *LeaseBackend) Exists(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	if err := validateAcquire(key, timeout); err != nil {
		return false, err
	}

	lease, err := b.client.CoordinationV1().Leases(b.namespace).Get(ctx, b.leaseName(key), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("xsingle: failed to get lease: %w", err)
	}
	return b.leaseValid(lease, timeout), nil
}

// Namespace 返回使用的命名空间。
func (b *LeaseBackend) Namespace() string {
	return b.namespace
}

func (b *LeaseBackend) leaseValid(lease *coordinationv1.Lease, timeout time.Duration) bool {
	if lease.Spec.AcquireTime == nil {
		return false
	}
	return isValid(lease.Spec.AcquireTime.Time, b.now(), timeout)
}

func (b *LeaseBackend) leaseName(key string) string {
	return b.prefix + sanitizeLeaseName(key, len(b.prefix))
}

// sanitizeLeaseName 将锁 key 转换为合法的 K8S 资源名（不含前缀）。
//
// 名称只允许小写字母、数字和 '-'，加上前缀不超过 63 字符。
// 清理改变了 key 或长度超限时追加原始 key 的哈希，避免 "a.b" 与 "a/b" 碰撞。
func sanitizeLeaseName(key string, prefixLen int) string {
	name := strings.ToLower(key)
	name = k8sNameInvalid.ReplaceAllString(name, "-")
	name = k8sNameCollapse.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")

	room := max(k8sNameMaxLen-prefixLen, 1)
	if name == key && len(name) <= room {
		return name
	}

	suffix := fmt.Sprintf("%08x", uint32(xxhash.Sum64String(key)))
	keep := max(room-len(suffix)-1, 0)
	name = strings.TrimRight(name[:min(len(name), keep)], "-")
	if name == "" {
		return suffix
	}
	return name + "-" + suffix
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// 确保 LeaseBackend 实现了 Backend 接口
var _ Backend = (*LeaseBackend)(nil)
