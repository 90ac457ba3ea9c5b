package xcron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omeyang/xsingle/pkg/distributed/xsingle"
)

// jobWrapper 把任务包装成 cron.Job：单实例保护、时间限制、钩子与统计。
type jobWrapper struct {
	job    Job
	spec   xsingle.Job
	inv    xsingle.Invocation
	hooks  []Hook
	guard  *xsingle.Guard
	logger Logger
	stats  *Stats

	// baseCtx 为 nil 时使用 context.Background()。
	// 立即执行的副本会设置为调度器的可取消上下文。
	baseCtx context.Context
}

func newJobWrapper(job Job, guard *xsingle.Guard, logger Logger, stats *Stats, opts *jobOptions) *jobWrapper {
	return &jobWrapper{
		job:    job,
		spec:   opts.spec,
		inv:    opts.inv,
		hooks:  opts.hooks,
		guard:  guard,
		logger: logger,
		stats:  stats,
	}
}

// Run 实现 cron.Job 接口
func (w *jobWrapper) Run() {
	ctx := w.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		entered  bool
		duration time.Duration
	)
	err := w.guard.Run(ctx, w.spec, w.inv, func(ctx context.Context) error {
		entered = true
		start := time.Now()
		err := w.runBody(ctx)
		duration = time.Since(start)
		return err
	})

	switch {
	case !entered && xsingle.IsAlreadyRunning(err):
		w.stats.recordSkip(w.spec.Name)
		w.logDebug(ctx, "job already running elsewhere, skipping")
	case !entered:
		// 后端故障或 key 非法，任务体未执行
		w.stats.recordLockError(w.spec.Name, err)
		w.logWarn(ctx, "failed to acquire job lock", slog.Any("error", err))
	default:
		w.stats.recordExecution(w.spec.Name, duration, err)
		w.logResult(ctx, err)
	}
}

// runBody 在锁内执行：时间限制 → BeforeJob → 任务 → AfterJob。
func (w *jobWrapper) runBody(ctx context.Context) error {
	ctx, cancel := w.applyLimits(ctx)
	defer cancel()

	ctx = w.runBeforeHooks(ctx)
	start := time.Now()
	err := w.execute(ctx)
	w.runAfterHooks(ctx, time.Since(start), err)
	return err
}

// limits 返回生效的时间限制：任务级优先，其次守卫默认值。
func (w *jobWrapper) limits() xsingle.Limits {
	defaults := w.guard.Defaults()
	l := w.spec.Limits
	if l.Hard <= 0 {
		l.Hard = defaults.Hard
	}
	if l.Soft <= 0 {
		l.Soft = defaults.Soft
	}
	return l
}

// applyLimits 把软/硬时间限制设为 context 截止时间，原因可由 context.Cause 读取。
func (w *jobWrapper) applyLimits(ctx context.Context) (context.Context, context.CancelFunc) {
	l := w.limits()
	cancelHard, cancelSoft := context.CancelFunc(func() {}), context.CancelFunc(func() {})
	if l.Hard > 0 {
		ctx, cancelHard = context.WithTimeoutCause(ctx, l.Hard, ErrHardTimeLimit)
	}
	if l.Soft > 0 && (l.Hard <= 0 || l.Soft < l.Hard) {
		ctx, cancelSoft = context.WithTimeoutCause(ctx, l.Soft, ErrSoftTimeLimit)
	}
	return ctx, func() {
		cancelSoft()
		cancelHard()
	}
}

// execute 执行任务，panic 转为错误，超时错误附带时间限制原因。
func (w *jobWrapper) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanic, r)
		}
	}()

	err = w.job.Run(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		if cause := context.Cause(ctx); errors.Is(cause, ErrSoftTimeLimit) || errors.Is(cause, ErrHardTimeLimit) {
			err = fmt.Errorf("%w: %w", cause, err)
		}
	}
	return err
}

// runBeforeHooks 正序执行 BeforeJob
func (w *jobWrapper) runBeforeHooks(ctx context.Context) context.Context {
	for _, hook := range w.hooks {
		ctx = hook.BeforeJob(ctx, w.spec.Name)
	}
	return ctx
}

// runAfterHooks 逆序执行 AfterJob
func (w *jobWrapper) runAfterHooks(ctx context.Context, duration time.Duration, err error) {
	for i := len(w.hooks) - 1; i >= 0; i-- {
		w.hooks[i].AfterJob(ctx, w.spec.Name, duration, err)
	}
}

func (w *jobWrapper) logResult(ctx context.Context, err error) {
	if err != nil {
		w.logError(ctx, "job failed", slog.Any("error", err))
		return
	}
	w.logDebug(ctx, "job completed")
}

// 日志辅助方法，未配置 logger 时只输出警告及以上级别。

func (w *jobWrapper) logDebug(ctx context.Context, msg string, attrs ...slog.Attr) {
	if w.logger != nil {
		w.logger.Debug(ctx, msg, w.withJob(attrs)...)
	}
}

func (w *jobWrapper) logWarn(ctx context.Context, msg string, attrs ...slog.Attr) {
	if w.logger != nil {
		w.logger.Warn(ctx, msg, w.withJob(attrs)...)
		return
	}
	slog.Default().LogAttrs(ctx, slog.LevelWarn, "xcron: "+msg, w.withJob(attrs)...)
}

func (w *jobWrapper) logError(ctx context.Context, msg string, attrs ...slog.Attr) {
	if w.logger != nil {
		w.logger.Error(ctx, msg, w.withJob(attrs)...)
		return
	}
	slog.Default().LogAttrs(ctx, slog.LevelError, "xcron: "+msg, w.withJob(attrs)...)
}

func (w *jobWrapper) withJob(attrs []slog.Attr) []slog.Attr {
	return append([]slog.Attr{slog.String("job", w.spec.Name)}, attrs...)
}
