package xsingle

import "time"

// DefaultTimeout 所有来源都未设置时使用的锁超时。
const DefaultTimeout = 300 * time.Second

// Limits 一组时间限制。零值表示未设置。
//
// 用于两处：任务级限制（[Job] 内）与进程级默认限制（[Guard] 的快照）。
type Limits struct {
	// Hard 硬时间限制，超过后任务被强制中止。
	Hard time.Duration
	// Soft 软时间限制，超过后任务收到取消信号。
	Soft time.Duration
}

// ResolveTimeout 计算一次任务调用的有效锁超时。
//
// 按以下顺序取第一个正值：
//  1. override（注册时显式指定）
//  2. job.Hard
//  3. job.Soft
//  4. defaults.Hard
//  5. defaults.Soft
//  6. DefaultTimeout
//
// 纯函数，不读取任何全局状态。
func ResolveTimeout(override time.Duration, job, defaults Limits) time.Duration {
	for _, d := range [...]time.Duration{override, job.Hard, job.Soft, defaults.Hard, defaults.Soft} {
		if d > 0 {
			return d
		}
	}
	return DefaultTimeout
}
