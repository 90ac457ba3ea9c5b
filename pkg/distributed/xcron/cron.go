package xcron

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xsingle/pkg/distributed/xsingle"
)

// cronScheduler 基于 robfig/cron/v3 的调度器实现
type cronScheduler struct {
	cron   *cron.Cron
	guard  *xsingle.Guard
	logger Logger
	stats  *Stats

	immediateWg     sync.WaitGroup
	immediateCtx    context.Context
	immediateCancel context.CancelFunc
}

// New 创建调度器。
//
// guard 决定锁后端与进程级默认时间限制：
//
//	backend, _ := xsingle.Open(ctx, "redis://redis:6379/0")
//	guard, _ := xsingle.NewGuard(backend, xsingle.WithDefaults(xsingle.Limits{Hard: 10 * time.Minute}))
//	scheduler, err := xcron.New(guard, xcron.WithSeconds())
func New(guard *xsingle.Guard, opts ...SchedulerOption) (Scheduler, error) {
	if guard == nil {
		return nil, ErrNilGuard
	}

	options := defaultSchedulerOptions()
	for _, opt := range opts {
		opt(options)
	}

	c := cron.New(
		cron.WithLocation(options.location),
		cron.WithParser(options.parser),
	)

	immediateCtx, immediateCancel := context.WithCancel(context.Background())

	return &cronScheduler{
		cron:            c,
		guard:           guard,
		logger:          options.logger,
		stats:           newStats(),
		immediateCtx:    immediateCtx,
		immediateCancel: immediateCancel,
	}, nil
}

// AddFunc 添加函数任务
func (s *cronScheduler) AddFunc(spec string, cmd func(ctx context.Context) error, opts ...JobOption) (JobID, error) {
	if cmd == nil {
		return 0, ErrNilJob
	}
	return s.AddJob(spec, JobFunc(cmd), opts...)
}

// AddJob 添加 Job 接口任务
func (s *cronScheduler) AddJob(spec string, job Job, opts ...JobOption) (JobID, error) {
	if job == nil {
		return 0, ErrNilJob
	}

	jobOpts := &jobOptions{}
	for _, opt := range opts {
		opt(jobOpts)
	}
	if jobOpts.spec.Name == "" {
		return 0, ErrMissingName
	}
	// key 与参数在注册时校验
	if _, err := jobOpts.spec.Key(jobOpts.inv); err != nil {
		return 0, fmt.Errorf("xcron: invalid job %q: %w", jobOpts.spec.Name, err)
	}

	wrapper := newJobWrapper(job, s.guard, s.logger, s.stats, jobOpts)

	id, err := s.cron.AddJob(spec, wrapper)
	if err != nil {
		return 0, fmt.Errorf("xcron: failed to add job: %w", err)
	}

	// 立即执行使用独立副本与可取消上下文，Stop 时会被取消并等待
	if jobOpts.immediate {
		s.immediateWg.Add(1)
		go func() {
			defer s.immediateWg.Done()
			w := *wrapper
			w.baseCtx = s.immediateCtx
			w.Run()
		}()
	}

	return id, nil
}

// Remove 移除任务
func (s *cronScheduler) Remove(id JobID) {
	s.cron.Remove(id)
}

// Start 启动调度器
func (s *cronScheduler) Start() {
	s.cron.Start()
}

// Stop 优雅停止，等待运行中的任务（含立即执行任务）结束。
func (s *cronScheduler) Stop() context.Context {
	s.immediateCancel()
	ctx := s.cron.Stop()
	s.immediateWg.Wait()
	return ctx
}

// Cron 返回底层 *cron.Cron 实例。
//
// 警告：直接使用底层 cron 添加的任务会绕过单实例保护。
func (s *cronScheduler) Cron() *cron.Cron {
	return s.cron
}

// Guard 返回单实例守卫
func (s *cronScheduler) Guard() *xsingle.Guard {
	return s.guard
}

// Entries 返回所有已注册的任务
func (s *cronScheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Stats 返回执行统计信息
func (s *cronScheduler) Stats() *Stats {
	return s.stats
}

var _ Scheduler = (*cronScheduler)(nil)
