package xsingle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultReleaseTimeout 作用域退出时释放锁的超时。
const DefaultReleaseTimeout = 5 * time.Second

// ErrScopeEntered Manager 只能进入一次。
var ErrScopeEntered = errors.New("xsingle: lock scope already entered")

type scopeState int

const (
	scopeIdle scopeState = iota
	scopeHeld
	scopeClosed
)

// Manager 一次加锁作用域，包装 (key, timeout, backend) 三元组。
//
// Enter 获取锁，获取失败返回 *AlreadyRunningError；Exit 释放锁，
// 对每次成功的 Enter 恰好生效一次，重复调用是空操作。
// 推荐使用 Do，它在任务体的每一条退出路径（包括 panic）上释放锁。
//
// Manager 不可复用，每次执行创建一个新的。
type Manager struct {
	backend        Backend
	key            string
	job            string
	timeout        time.Duration
	releaseTimeout time.Duration
	logger         Logger
	metrics        *Metrics
	tracer         trace.Tracer

	mu    sync.Mutex
	state scopeState
}

// ManagerOption Manager 配置选项
type ManagerOption func(*Manager)

// WithManagerLogger 设置日志记录器。
func WithManagerLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerReleaseTimeout 设置退出时释放锁的超时，默认 5 秒。
func WithManagerReleaseTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.releaseTimeout = d
		}
	}
}

// withObservability 由 Guard 注入指标与追踪。
func withObservability(job string, metrics *Metrics, tracer trace.Tracer) ManagerOption {
	return func(m *Manager) {
		m.job = job
		m.metrics = metrics
		m.tracer = tracer
	}
}

// NewManager 创建加锁作用域。
func NewManager(backend Backend, key string, timeout time.Duration, opts ...ManagerOption) (*Manager, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	if err := validateAcquire(key, timeout); err != nil {
		return nil, err
	}

	m := &Manager{
		backend:        backend,
		key:            key,
		job:            key,
		timeout:        timeout,
		releaseTimeout: DefaultReleaseTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = loggerOrDefault(m.logger)
	return m, nil
}

// Key 返回锁 key。
func (m *Manager) Key() string {
	return m.key
}

// Timeout 返回解析后的锁超时。
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// Held 报告作用域当前是否持有锁。
func (m *Manager) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == scopeHeld
}

// Enter 获取锁。
//
// 锁被他人持有时返回 *AlreadyRunningError（errors.Is(err, ErrAlreadyRunning)）；
// 存储故障原样返回，二者不会混淆。
func (m *Manager) Enter(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != scopeIdle {
		return ErrScopeEntered
	}

	backend := backendName(m.backend)
	ctx, span := startSpan(ctx, m.tracer, spanNameAcquire, trace.WithAttributes(
		attribute.String(attrJob, m.job),
		attribute.String(attrKey, m.key),
		attribute.String(attrBackend, backend),
		attribute.Int64(attrTimeout, m.timeout.Milliseconds()),
	))

	start := time.Now()
	acquired, err := m.backend.Acquire(ctx, m.key, m.timeout)
	m.metrics.RecordAcquire(ctx, m.job, backend, acquired, err, time.Since(start))
	span.SetAttributes(attribute.Bool(attrAcquired, acquired))
	endSpan(span, err)

	if err != nil {
		m.state = scopeClosed
		m.logger.Warn(ctx, "xsingle: acquire failed",
			slog.String("key", m.key),
			slog.String("backend", backend),
			slog.Any("error", err))
		return err
	}
	if !acquired {
		m.state = scopeClosed
		m.logger.Debug(ctx, "xsingle: another instance is running",
			slog.String("key", m.key),
			slog.Duration("timeout", m.timeout))
		return &AlreadyRunningError{Key: m.key, Timeout: m.timeout}
	}

	m.state = scopeHeld
	return nil
}

// Exit 释放锁。
//
// 只有持有锁时才调用后端 Release，之后的调用都是空操作。
// 释放使用脱离 ctx 取消的独立 context（超时 releaseTimeout），
// 被截止时间取消的任务也能释放锁。
func (m *Manager) Exit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != scopeHeld {
		m.state = scopeClosed
		return nil
	}
	m.state = scopeClosed

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.releaseTimeout)
	defer cancel()

	backend := backendName(m.backend)
	releaseCtx, span := startSpan(releaseCtx, m.tracer, spanNameRelease, trace.WithAttributes(
		attribute.String(attrJob, m.job),
		attribute.String(attrKey, m.key),
		attribute.String(attrBackend, backend),
	))

	err := m.backend.Release(releaseCtx, m.key)
	m.metrics.RecordRelease(releaseCtx, m.job, backend, err)
	endSpan(span, err)

	if err != nil {
		return fmt.Errorf("%w (key=%s): %w", ErrReleaseFailed, m.key, err)
	}
	return nil
}

// Do 在作用域内执行 fn。
//
// 获取失败时不执行 fn。fn 的返回值原样透传；
// fn 成功但释放失败时返回释放错误，fn 失败时返回 fn 的错误并记录释放失败。
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := m.Enter(ctx); err != nil {
		return err
	}
	defer func() {
		releaseErr := m.Exit(ctx)
		if releaseErr == nil {
			return
		}
		if err == nil {
			err = releaseErr
			return
		}
		m.logger.Error(ctx, "xsingle: release failed after job error",
			slog.String("key", m.key),
			slog.Any("error", releaseErr))
	}()
	return fn(ctx)
}
