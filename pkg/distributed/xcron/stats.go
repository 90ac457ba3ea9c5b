package xcron

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// counters 一组执行计数，Stats（全局）与 JobStats（单任务）共用。
//
// 一次调度只会落入以下三类之一：
//   - 执行：拿到锁并运行了任务体，按结果计成功或失败
//   - 跳过：其他实例正持有锁
//   - 锁错误：后端故障，任务体未运行
type counters struct {
	executions atomic.Int64
	successes  atomic.Int64
	failures   atomic.Int64
	skips      atomic.Int64
	lockErrors atomic.Int64

	totalDuration atomic.Int64 // 纳秒
	minDuration   atomic.Int64 // 纳秒，未执行时为 math.MaxInt64
	maxDuration   atomic.Int64 // 纳秒

	mu           sync.RWMutex
	lastExecTime time.Time
	lastDuration time.Duration
	lastError    error
}

func (c *counters) init() {
	c.minDuration.Store(math.MaxInt64)
}

// TotalExecutions 返回任务体实际运行的次数（不含跳过与锁错误）。
func (c *counters) TotalExecutions() int64 { return c.executions.Load() }

// SuccessCount 返回成功次数。
func (c *counters) SuccessCount() int64 { return c.successes.Load() }

// FailureCount 返回任务体失败次数。
func (c *counters) FailureCount() int64 { return c.failures.Load() }

// SkipCount 返回因其他实例正在执行而跳过的次数。
func (c *counters) SkipCount() int64 { return c.skips.Load() }

// LockErrorCount 返回因锁后端故障未能执行的次数。
func (c *counters) LockErrorCount() int64 { return c.lockErrors.Load() }

// LastExecTime 返回最后一次执行或锁错误的时间。
func (c *counters) LastExecTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastExecTime
}

// LastDuration 返回最后一次执行耗时。
func (c *counters) LastDuration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastDuration
}

// LastError 返回最后一次执行或锁错误，nil 表示最近一次成功。
func (c *counters) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// AvgDuration 返回平均执行耗时。
func (c *counters) AvgDuration() time.Duration {
	n := c.executions.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(c.totalDuration.Load() / n)
}

// MinDuration 返回最小执行耗时，尚未执行时为 0。
func (c *counters) MinDuration() time.Duration {
	v := c.minDuration.Load()
	if v == math.MaxInt64 {
		return 0
	}
	return time.Duration(v)
}

// MaxDuration 返回最大执行耗时。
func (c *counters) MaxDuration() time.Duration {
	return time.Duration(c.maxDuration.Load())
}

// SuccessRate 返回成功率（0-1），按实际执行次数计算。
func (c *counters) SuccessRate() float64 {
	n := c.executions.Load()
	if n == 0 {
		return 0
	}
	return float64(c.successes.Load()) / float64(n)
}

func (c *counters) addExecution(now time.Time, duration time.Duration, err error) {
	ns := int64(duration)
	c.executions.Add(1)
	c.totalDuration.Add(ns)
	if err != nil {
		c.failures.Add(1)
	} else {
		c.successes.Add(1)
	}

	for old := c.minDuration.Load(); ns < old; old = c.minDuration.Load() {
		if c.minDuration.CompareAndSwap(old, ns) {
			break
		}
	}
	for old := c.maxDuration.Load(); ns > old; old = c.maxDuration.Load() {
		if c.maxDuration.CompareAndSwap(old, ns) {
			break
		}
	}

	c.mu.Lock()
	c.lastExecTime = now
	c.lastDuration = duration
	c.lastError = err
	c.mu.Unlock()
}

func (c *counters) addLockError(now time.Time, err error) {
	c.lockErrors.Add(1)
	c.mu.Lock()
	c.lastExecTime = now
	c.lastError = err
	c.mu.Unlock()
}

func (c *counters) summary() Summary {
	s := Summary{
		TotalExecutions: c.TotalExecutions(),
		SuccessCount:    c.SuccessCount(),
		FailureCount:    c.FailureCount(),
		SkipCount:       c.SkipCount(),
		LockErrorCount:  c.LockErrorCount(),
		SuccessRate:     c.SuccessRate(),
		LastExecTime:    c.LastExecTime(),
		LastDuration:    c.LastDuration(),
		AvgDuration:     c.AvgDuration(),
		MinDuration:     c.MinDuration(),
		MaxDuration:     c.MaxDuration(),
	}
	if err := c.LastError(); err != nil {
		s.LastError = err.Error()
	}
	return s
}

// Stats 调度器级执行统计，线程安全。
//
//	stats := scheduler.Stats()
//	fmt.Printf("执行: %d, 跳过: %d\n", stats.TotalExecutions(), stats.SkipCount())
type Stats struct {
	counters
	jobs sync.Map // map[string]*JobStats
}

// JobStats 单个任务的执行统计。
type JobStats struct {
	Name string
	counters
}

func newStats() *Stats {
	s := &Stats{}
	s.init()
	return s
}

// JobStats 返回指定任务的统计，任务从未被调度过时返回 nil。
func (s *Stats) JobStats(name string) *JobStats {
	if v, ok := s.jobs.Load(name); ok {
		return v.(*JobStats)
	}
	return nil
}

// AllJobStats 返回所有任务的统计。
func (s *Stats) AllJobStats() map[string]*JobStats {
	result := make(map[string]*JobStats)
	s.jobs.Range(func(key, value any) bool {
		result[key.(string)] = value.(*JobStats)
		return true
	})
	return result
}

func (s *Stats) job(name string) *JobStats {
	if v, ok := s.jobs.Load(name); ok {
		return v.(*JobStats)
	}
	js := &JobStats{Name: name}
	js.init()
	actual, _ := s.jobs.LoadOrStore(name, js)
	return actual.(*JobStats)
}

// recordExecution 记录一次任务体执行。
func (s *Stats) recordExecution(name string, duration time.Duration, err error) {
	now := time.Now()
	s.addExecution(now, duration, err)
	s.job(name).addExecution(now, duration, err)
}

// recordSkip 记录一次因锁被占用的跳过。
func (s *Stats) recordSkip(name string) {
	s.skips.Add(1)
	s.job(name).skips.Add(1)
}

// recordLockError 记录一次锁后端故障。
func (s *Stats) recordLockError(name string, err error) {
	now := time.Now()
	s.addLockError(now, err)
	s.job(name).addLockError(now, err)
}

// Summary 一组计数的快照，用于序列化。
type Summary struct {
	TotalExecutions int64         `json:"total_executions"`
	SuccessCount    int64         `json:"success_count"`
	FailureCount    int64         `json:"failure_count"`
	SkipCount       int64         `json:"skip_count"`
	LockErrorCount  int64         `json:"lock_error_count"`
	SuccessRate     float64       `json:"success_rate"`
	LastExecTime    time.Time     `json:"last_exec_time,omitempty"`
	LastDuration    time.Duration `json:"last_duration"`
	LastError       string        `json:"last_error,omitempty"`
	AvgDuration     time.Duration `json:"avg_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
}

// StatsSnapshot 调度器统计快照。
type StatsSnapshot struct {
	Summary
	Jobs map[string]*JobStatsSnapshot `json:"jobs,omitempty"`
}

// JobStatsSnapshot 任务统计快照。
type JobStatsSnapshot struct {
	Name string `json:"name"`
	Summary
}

// Snapshot 返回统计快照。
func (s *Stats) Snapshot() *StatsSnapshot {
	snap := &StatsSnapshot{
		Summary: s.summary(),
		Jobs:    make(map[string]*JobStatsSnapshot),
	}
	for name, js := range s.AllJobStats() {
		snap.Jobs[name] = js.Snapshot()
	}
	return snap
}

// Snapshot 返回任务统计快照。
func (js *JobStats) Snapshot() *JobStatsSnapshot {
	return &JobStatsSnapshot{Name: js.Name, Summary: js.summary()}
}
