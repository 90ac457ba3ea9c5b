// Package distributed 提供分布式协调相关的子包。
//
// 子包列表：
//   - xsingle: 周期任务的单实例互斥，支持数据库、文件、Redis、etcd、MongoDB、K8s Lease 后端
//   - xcron: 定时任务调度，每次调度都经由 xsingle.Guard 执行
package distributed
