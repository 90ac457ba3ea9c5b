package xcron

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xsingle/pkg/distributed/xsingle"
)

// Scheduler 定时任务调度器接口。
//
// 封装 robfig/cron/v3，每次调度都经由 [xsingle.Guard] 执行，
// 多副本部署时同一任务同一时刻只有一个实例在运行。
// 使用 [New] 创建默认实现。
type Scheduler interface {
	// AddFunc 添加函数任务。
	//
	// spec 是 cron 表达式，如 "@every 1m" 或 "0 * * * *"。
	// cmd 是任务函数，接收 context 用于超时控制和追踪。
	// opts 是任务选项，必须包含 WithName。
	//
	// 返回 JobID 用于后续移除任务。
	//
	// 用法：
	//
	//	id, err := scheduler.AddFunc("@every 1m", func(ctx context.Context) error {
	//	    return doSomething(ctx)
	//	}, xcron.WithName("my-task"))
	AddFunc(spec string, cmd func(ctx context.Context) error, opts ...JobOption) (JobID, error)

	// AddJob 添加实现了 [Job] 接口的任务。
	//
	// 用法：
	//
	//	id, err := scheduler.AddJob("@daily", &MyJob{}, xcron.WithName("daily-job"))
	AddJob(spec string, job Job, opts ...JobOption) (JobID, error)

	// Remove 移除任务。
	//
	// 移除后任务将不再被调度，正在执行的任务不受影响。
	Remove(id JobID)

	// Start 启动调度器（非阻塞）。
	//
	// 调用后调度器开始按计划执行任务。
	// 重复调用无效果。
	Start()

	// Stop 优雅停止调度器。
	//
	// 停止接受新的任务调度，返回的 context 在所有运行中的任务完成后 Done。
	//
	// 用法：
	//
	//	ctx := scheduler.Stop()
	//	<-ctx.Done() // 等待所有任务完成
	Stop() context.Context

	// Cron 返回底层 *cron.Cron。
	//
	// 直接在其上注册的任务不受单实例保护。
	Cron() *cron.Cron

	// Guard 返回调度器使用的单实例守卫。
	Guard() *xsingle.Guard

	// Entries 返回所有已注册的任务。
	Entries() []cron.Entry

	// Stats 返回执行统计信息。
	//
	// 返回的 Stats 对象是线程安全的，可以在任务执行期间安全读取。
	// 因其他实例正在执行而跳过的调度计入 SkipCount，不算失败。
	//
	// 用法：
	//
	//	stats := scheduler.Stats()
	//	fmt.Printf("总执行: %d, 成功: %d, 失败: %d\n",
	//	    stats.TotalExecutions(),
	//	    stats.SuccessCount(),
	//	    stats.FailureCount())
	Stats() *Stats
}
