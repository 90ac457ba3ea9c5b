// Package xcron 提供多副本安全的定时任务调度。
//
// # 概述
//
// xcron 基于 [robfig/cron/v3] 构建，每次调度都经由 [xsingle.Guard] 执行：
// 多副本部署时，同一任务在任一时刻只有一个实例在运行，
// 其余副本的同一次调度被记为跳过。
//
// # 核心概念
//
//   - Scheduler: 调度器，负责管理和执行定时任务
//   - Job: 任务接口，定义任务执行逻辑
//   - xsingle.Guard: 单实例守卫，决定锁后端与默认时间限制
//
// # 快速开始
//
//	backend, err := xsingle.Open(ctx, "redis://redis:6379/0")
//	guard, err := xsingle.NewGuard(backend)
//	scheduler, err := xcron.New(guard)
//	scheduler.AddFunc("@every 1m", func(ctx context.Context) error {
//	    return doSomething(ctx)
//	}, xcron.WithName("my-task"))
//	scheduler.Start()
//	defer scheduler.Stop()
//
// # 任务选项
//
//   - WithName: 任务名（必填，即锁 key）
//   - WithArgs: 固定参数，锁 key 包含参数摘要
//   - WithLockTimeout: 显式锁超时
//   - WithTimeLimits: 任务级硬/软时间限制
//   - WithImmediate: 注册后立即执行一次
//   - WithHook / WithHooks: 执行钩子
//
// # 时间限制
//
// 硬/软时间限制同时决定锁超时与任务 context 的截止时间。
// 任务必须响应 ctx.Done()，否则超时后锁可能被其他实例接管，造成并发执行：
//
//	func myTask(ctx context.Context) error {
//	    for _, item := range items {
//	        if err := ctx.Err(); err != nil {
//	            return err
//	        }
//	        process(item)
//	    }
//	    return nil
//	}
//
// [robfig/cron/v3]: https://github.com/robfig/cron
package xcron
