package xsingle

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Job 任务注册时构造一次的单实例配置。
//
// 零值字段表示"未设置"，超时按 ResolveTimeout 的优先级回退。
type Job struct {
	// Name 任务的完全限定名，默认即为锁 key。
	Name string

	// IncludeArgs 为 true 时锁 key 包含调用参数摘要，
	// 参数不同的调用可以并发执行。
	IncludeArgs bool

	// LockTimeout 显式锁超时，优先级最高。
	LockTimeout time.Duration

	// Limits 任务级硬/软时间限制。
	Limits Limits
}

// Timeout 在给定进程级默认值下解析任务的锁超时。
func (j Job) Timeout(defaults Limits) time.Duration {
	return ResolveTimeout(j.LockTimeout, j.Limits, defaults)
}

// Key 解析一次调用的锁 key。
func (j Job) Key(inv Invocation) (string, error) {
	return ResolveKey(j.Name, j.IncludeArgs, inv)
}

// Guard 单实例守卫，围绕任务体打开加锁作用域。
//
// Guard 是并发安全的，一个进程通常只需要一个。
type Guard struct {
	backend        Backend
	defaults       Limits
	logger         Logger
	metrics        *Metrics
	tracer         trace.Tracer
	releaseTimeout time.Duration
}

// NewGuard 创建单实例守卫。
func NewGuard(backend Backend, opts ...Option) (*Guard, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}

	o := defaultGuardOptions()
	for _, opt := range opts {
		opt(o)
	}

	metrics, err := NewMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("xsingle: failed to create metrics: %w", err)
	}

	return &Guard{
		backend:        backend,
		defaults:       o.defaults,
		logger:         loggerOrDefault(o.logger),
		metrics:        metrics,
		tracer:         getTracer(o.tracerProvider),
		releaseTimeout: o.releaseTimeout,
	}, nil
}

// Backend 返回守卫使用的后端。
func (g *Guard) Backend() Backend {
	return g.backend
}

// Defaults 返回进程级默认时间限制快照。
func (g *Guard) Defaults() Limits {
	return g.defaults
}

// Manager 为一次调用解析 key 与超时并创建作用域（尚未获取锁）。
func (g *Guard) Manager(job Job, inv Invocation) (*Manager, error) {
	key, err := job.Key(inv)
	if err != nil {
		return nil, err
	}
	return NewManager(g.backend, key, job.Timeout(g.defaults),
		WithManagerLogger(g.logger),
		WithManagerReleaseTimeout(g.releaseTimeout),
		withObservability(job.Name, g.metrics, g.tracer),
	)
}

// Run 在单实例保护下执行 body。
//
// 其他实例正在执行时返回 *AlreadyRunningError 且不执行 body；
// 否则 body 的返回值原样透传，无论成功与否锁都会被释放。
func (g *Guard) Run(ctx context.Context, job Job, inv Invocation, body func(ctx context.Context) error) error {
	m, err := g.Manager(job, inv)
	if err != nil {
		return err
	}
	return m.Do(ctx, body)
}

// Running 报告该调用对应的锁当前是否被有效持有，不修改任何状态。
func (g *Guard) Running(ctx context.Context, job Job, inv Invocation) (bool, error) {
	key, err := job.Key(inv)
	if err != nil {
		return false, err
	}
	return g.backend.Exists(ctx, key, job.Timeout(g.defaults))
}
