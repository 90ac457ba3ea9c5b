package xcron

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xsingle/pkg/distributed/xsingle"
)

// ===================== Scheduler Options =====================

// schedulerOptions 调度器配置
type schedulerOptions struct {
	logger   Logger
	location *time.Location
	parser   cron.Parser
}

func defaultSchedulerOptions() *schedulerOptions {
	return &schedulerOptions{
		location: time.Local,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// SchedulerOption 调度器配置选项
type SchedulerOption func(*schedulerOptions)

// WithLogger 设置日志记录器。不设置时警告与错误写入 slog.Default()。
func WithLogger(logger Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		o.logger = logger
	}
}

// WithLocation 设置 cron 表达式的解释时区，默认本地时区。
func WithLocation(loc *time.Location) SchedulerOption {
	return func(o *schedulerOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithParser 自定义 cron 表达式解析器。
func WithParser(parser cron.Parser) SchedulerOption {
	return func(o *schedulerOptions) {
		o.parser = parser
	}
}

// WithSeconds 启用秒级精度，表达式多一个秒字段：
//
//	scheduler.AddFunc("*/5 * * * * *", task, xcron.WithName("tick")) // 每 5 秒
func WithSeconds() SchedulerOption {
	return func(o *schedulerOptions) {
		o.parser = cron.NewParser(
			cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		)
	}
}

// ===================== Job Options =====================

// jobOptions 任务配置，注册时一次性解析为 xsingle.Job。
type jobOptions struct {
	spec      xsingle.Job
	inv       xsingle.Invocation
	immediate bool
	hooks     []Hook
}

// JobOption 任务配置选项
type JobOption func(*jobOptions)

// WithName 设置任务名（必填）。
//
// 任务名即单实例锁 key，多副本间同名任务互斥。
func WithName(name string) JobOption {
	return func(o *jobOptions) {
		o.spec.Name = name
	}
}

// WithArgs 设置每次调度使用的固定参数，并让锁 key 包含参数摘要。
//
// 同名任务以不同参数注册时可以并发执行：
//
//	scheduler.AddFunc("@hourly", syncTenant("a"), xcron.WithName("sync"), xcron.WithArgs(xsingle.Args("a")))
//	scheduler.AddFunc("@hourly", syncTenant("b"), xcron.WithName("sync"), xcron.WithArgs(xsingle.Args("b")))
func WithArgs(inv xsingle.Invocation) JobOption {
	return func(o *jobOptions) {
		o.inv = inv
		o.spec.IncludeArgs = true
	}
}

// WithLockTimeout 显式指定锁超时，优先于所有时间限制。
//
// 实例崩溃后，锁在该时间之后才能被其他实例接管。
func WithLockTimeout(d time.Duration) JobOption {
	return func(o *jobOptions) {
		if d > 0 {
			o.spec.LockTimeout = d
		}
	}
}

// WithTimeLimits 设置任务级硬/软时间限制，0 表示沿用守卫的默认值。
//
// 两者都参与锁超时的推导，同时作为任务 context 的截止时间：
// 软限制到期时 context.Cause 为 [ErrSoftTimeLimit]，硬限制为 [ErrHardTimeLimit]。
func WithTimeLimits(hard, soft time.Duration) JobOption {
	return func(o *jobOptions) {
		o.spec.Limits = xsingle.Limits{Hard: max(hard, 0), Soft: max(soft, 0)}
	}
}

// WithImmediate 注册后立即异步执行一次，同样受单实例保护。
func WithImmediate() JobOption {
	return func(o *jobOptions) {
		o.immediate = true
	}
}

// WithHook 添加单个任务执行钩子。
//
// 执行顺序：
//   - BeforeJob: hook1 → hook2 → hook3
//   - AfterJob: hook3 → hook2 → hook1
func WithHook(hook Hook) JobOption {
	return func(o *jobOptions) {
		if hook != nil {
			o.hooks = append(o.hooks, hook)
		}
	}
}

// WithHooks 批量添加任务执行钩子，等同于多次调用 [WithHook]。
func WithHooks(hooks ...Hook) JobOption {
	return func(o *jobOptions) {
		for _, hook := range hooks {
			if hook != nil {
				o.hooks = append(o.hooks, hook)
			}
		}
	}
}
