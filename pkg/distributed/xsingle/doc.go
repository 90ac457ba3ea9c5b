// Package xsingle 为周期性后台任务提供单实例互斥能力。
//
// # 概述
//
// 给定一个任务标识，xsingle 保证同一时刻最多只有一次该任务的执行处于"进行中"，
// 跨任意数量的进程和机器生效。所有协调都通过外部共享存储（数据库表、目录、
// 键值存储）完成，进程之间不共享内存。
//
// 提供的是"尽力互斥 + 超时自愈"语义，而非线性一致的 fencing token：
// 持有者崩溃未释放时，锁在超时后被视为过期，可被其他调用方接管。
//
// # 核心概念
//
//   - Backend: 存储后端接口，只有 Acquire / Release / Exists 三个操作
//   - Manager: 一次加锁作用域，进入时获取，退出时恰好释放一次
//   - Guard: 任务执行的集成点，解析 key 与超时、打开 Manager、执行任务体
//   - Job: 任务注册时构造一次的配置记录（名称、是否包含参数、超时覆盖、时间限制）
//
// # 后端
//
//   - [DBBackend]: 关系型数据库（gorm: sqlite / postgres / mysql），唯一约束 + 创建时间
//   - [FileBackend]: 每个 key 一个标记文件，仅适用于单机或单生产者场景
//   - [RedisBackend]: Redis SET NX PX，由存储自身负责过期
//   - [EtcdBackend]: etcd 事务 + 租约，由存储自身负责过期
//   - [MongoBackend]: MongoDB 唯一索引 + 创建时间
//   - [LeaseBackend]: Kubernetes coordination.k8s.io/v1 Lease
//
// 通过 [Open] 按 URI scheme 选择后端：
//
//	backend, err := xsingle.Open(ctx, "redis://localhost:6379/1")
//	if err != nil {
//	    return err
//	}
//	defer xsingle.Close(backend)
//
// # 超时优先级
//
// 有效超时按以下顺序取第一个设置了的值（见 [ResolveTimeout]）：
//
//  1. 注册时显式指定的锁超时
//  2. 任务级硬时间限制
//  3. 任务级软时间限制
//  4. 进程级默认硬时间限制
//  5. 进程级默认软时间限制
//  6. [DefaultTimeout]（300 秒）
//
// # 快速开始
//
//	guard, err := xsingle.NewGuard(backend, xsingle.WithDefaults(cfg.Defaults()))
//	if err != nil {
//	    return err
//	}
//
//	job := xsingle.Job{Name: "billing.sync", IncludeArgs: true}
//	err = guard.Run(ctx, job, xsingle.Args(accountID), func(ctx context.Context) error {
//	    return syncAccount(ctx, accountID)
//	})
//	if errors.Is(err, xsingle.ErrAlreadyRunning) {
//	    return nil // 其他实例正在执行，本次跳过
//	}
//
// 锁竞争通过 [ErrAlreadyRunning] 表达，与任务体自身返回的错误可区分；
// 存储故障以包装后的原始错误返回，不会被误判为竞争。
package xsingle
