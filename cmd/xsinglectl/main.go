// xsinglectl 是单实例锁的运维命令行工具。
//
// 用法:
//
//	xsinglectl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-b, --backend    锁后端 URI（环境变量 XSINGLE_BACKEND），优先于配置文件
//	-c, --config     配置文件（.yaml / .yml / .json）
//	    --log-level  日志级别 (debug/info/warn/error)
//
// 命令:
//
//	acquire <key>              尝试获取锁
//	release <key>              释放锁（幂等）
//	exists <key>               查询锁是否被有效持有，输出 held / free
//	run --name N -- cmd args   在单实例保护下运行外部命令
//
// 退出码:
//
//	0: 成功（exists: 锁被持有）
//	1: 失败（exists: 锁空闲）
//	2: 参数错误
//	3: 已有其他实例持有锁
//
// run 命令成功拿到锁时，退出码为外部命令自身的退出码。
//
// 示例:
//
//	xsinglectl -b redis://localhost:6379/0 acquire reports.daily --timeout 10m
//	xsinglectl -b file:///var/lock/xsingle exists reports.daily
//	xsinglectl -c /etc/xsingle.yaml run --name backup --time-limit 1h -- /usr/local/bin/backup.sh
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// 版本信息，可通过 -ldflags "-X main.Version=..." 注入。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := runApp(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
