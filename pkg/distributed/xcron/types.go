package xcron

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xsingle/pkg/distributed/xsingle"
)

var (
	// ErrNilJob 任务为 nil。
	ErrNilJob = errors.New("xcron: job cannot be nil")

	// ErrNilGuard 未提供单实例守卫。
	ErrNilGuard = errors.New("xcron: guard cannot be nil")

	// ErrMissingName 任务未设置名称。任务名即锁 key，不可省略。
	ErrMissingName = errors.New("xcron: job name is required")

	// ErrJobPanic 任务执行时发生 panic。
	ErrJobPanic = errors.New("xcron: job panicked")

	// ErrSoftTimeLimit 任务超过软时间限制。
	ErrSoftTimeLimit = errors.New("xcron: soft time limit exceeded")

	// ErrHardTimeLimit 任务超过硬时间限制。
	ErrHardTimeLimit = errors.New("xcron: hard time limit exceeded")
)

// JobID 任务唯一标识，直接复用 cron.EntryID。
type JobID = cron.EntryID

// Job 定时任务接口。
type Job interface {
	// Run 执行任务。
	// ctx 携带时间限制，任务应响应 ctx.Done()，
	// 可用 context.Cause(ctx) 区分软/硬时间限制。
	Run(ctx context.Context) error
}

// JobFunc 函数适配器，将普通函数转换为 [Job] 接口。
type JobFunc func(ctx context.Context) error

// Run 实现 [Job] 接口。
func (f JobFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Logger 与 xsingle 共用的结构化日志接口。
type Logger = xsingle.Logger

// Hook 任务执行钩子接口。
//
// 通过 [WithHook] 或 [WithHooks] 配置，按添加顺序执行。
//
// 执行时机：
//   - BeforeJob: 获取单实例锁之后、执行任务之前
//   - AfterJob: 任务结束之后、释放锁之前（无论成功、失败或 panic）
//
// 因其他实例正在执行而跳过的调度不会触发钩子。
//
// # 示例
//
//	type auditHook struct{ log Logger }
//
//	func (h auditHook) BeforeJob(ctx context.Context, name string) context.Context {
//	    h.log.Info(ctx, "job start", slog.String("job", name))
//	    return ctx
//	}
//
//	func (h auditHook) AfterJob(ctx context.Context, name string, d time.Duration, err error) {
//	    h.log.Info(ctx, "job done", slog.String("job", name), slog.Duration("took", d))
//	}
type Hook interface {
	// BeforeJob 在任务执行前调用，返回的 context 传给任务与后续钩子。
	BeforeJob(ctx context.Context, name string) context.Context

	// AfterJob 在任务执行后调用。
	// duration 为任务体耗时，err 为任务返回值（panic 时为包装了 [ErrJobPanic] 的错误）。
	AfterJob(ctx context.Context, name string, duration time.Duration, err error)
}

// HookFunc 函数对适配器，任一字段可为 nil。
type HookFunc struct {
	Before func(ctx context.Context, name string) context.Context
	After  func(ctx context.Context, name string, duration time.Duration, err error)
}

// BeforeJob 实现 [Hook] 接口。
func (h HookFunc) BeforeJob(ctx context.Context, name string) context.Context {
	if h.Before != nil {
		return h.Before(ctx, name)
	}
	return ctx
}

// AfterJob 实现 [Hook] 接口。
func (h HookFunc) AfterJob(ctx context.Context, name string, duration time.Duration, err error) {
	if h.After != nil {
		h.After(ctx, name, duration, err)
	}
}
